// Package lywsd02 describes the GATT contract of the Xiaomi LYWSD02 clock and
// builds the session commands that operate it.
package lywsd02

// DeviceName is the local name the clock advertises.
const DeviceName = "LYWSD02"

// Vendor service and characteristics.
const (
	ServiceUUID          = "ebe0ccb0-7a0a-4b0c-8a1a-6ff2997da3a6"
	TimeCharUUID         = "ebe0ccb7-7a0a-4b0c-8a1a-6ff2997da3a6"
	UnitsCharUUID        = "ebe0ccbe-7a0a-4b0c-8a1a-6ff2997da3a6"
	SensorDataCharUUID   = "ebe0ccc1-7a0a-4b0c-8a1a-6ff2997da3a6"
	BatteryLevelCharUUID = "ebe0ccc4-7a0a-4b0c-8a1a-6ff2997da3a6"
)

// Standard Current Time Service, exposed by some members of the family.
const (
	CurrentTimeServiceUUID = "1805"
	CurrentTimeCharUUID    = "2a2b"
)

// Command names, used in logs and spans.
const (
	CmdSetCurrentTime = "set-current-time"
	CmdReadTime       = "read-time"
	CmdSetUnits       = "set-units"
	CmdReadUnits      = "read-units"
	CmdReadSensor     = "read-sensor"
	CmdReadBattery    = "read-battery"
)
