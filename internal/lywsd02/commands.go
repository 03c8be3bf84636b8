package lywsd02

import (
	"fmt"
	"time"

	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/session"
)

// MaxClockSkew is how far the read-back time may drift from what was written.
const MaxClockSkew = 5 * time.Second

// SetCurrentTime writes now in format and reads the clock back; the reply
// value is the DeviceTime the device reports. A read-back with a different
// offset or a timestamp more than MaxClockSkew away fails the command.
func SetCurrentTime(now time.Time, format TimeFormat) (session.Command, error) {
	payload, err := EncodeTime(format, now)
	if err != nil {
		return session.Command{}, device.WrapError(device.CodeParam, CmdSetCurrentTime, err)
	}
	written, err := DecodeTime(format, payload)
	if err != nil {
		return session.Command{}, device.WrapError(device.CodeParam, CmdSetCurrentTime, err)
	}

	service, char := format.Target()
	return session.NewCommand(CmdSetCurrentTime, service, char, payload, true, &session.Expectation{
		Service:        service,
		Characteristic: char,
		Source:         session.SourceRead,
		Decode: func(data []byte) (any, error) {
			got, err := DecodeTime(format, data)
			if err != nil {
				return nil, err
			}
			if got.OffsetHours != written.OffsetHours {
				return nil, fmt.Errorf("device kept UTC offset %+d, wrote %+d", got.OffsetHours, written.OffsetHours)
			}
			skew := time.Duration(got.wallSeconds()-written.wallSeconds()) * time.Second
			if skew < -MaxClockSkew || skew > MaxClockSkew {
				return nil, fmt.Errorf("device clock is %s off the written time", skew)
			}
			return got, nil
		},
	}), nil
}

// ReadTime reads the device clock.
func ReadTime(format TimeFormat) session.Command {
	service, char := format.Target()
	return session.NewCommand(CmdReadTime, "", "", nil, false, &session.Expectation{
		Service:        service,
		Characteristic: char,
		Source:         session.SourceRead,
		Decode: func(data []byte) (any, error) {
			return DecodeTime(format, data)
		},
	})
}

// SetUnits writes the display unit. It completes on the write acknowledgement.
func SetUnits(u Units) (session.Command, error) {
	payload, err := EncodeUnits(u)
	if err != nil {
		return session.Command{}, device.WrapError(device.CodeParam, CmdSetUnits, err)
	}
	return session.NewCommand(CmdSetUnits, ServiceUUID, UnitsCharUUID, payload, true, nil), nil
}

// ReadUnits reads the display unit; the reply value is a Units.
func ReadUnits() session.Command {
	return session.NewCommand(CmdReadUnits, "", "", nil, false, &session.Expectation{
		Service:        ServiceUUID,
		Characteristic: UnitsCharUUID,
		Source:         session.SourceRead,
		Decode: func(data []byte) (any, error) {
			return DecodeUnits(data)
		},
	})
}

// ReadSensor waits for the next sensor notification; the reply value is a
// SensorReading.
func ReadSensor() session.Command {
	return session.NewCommand(CmdReadSensor, "", "", nil, false, &session.Expectation{
		Service:        ServiceUUID,
		Characteristic: SensorDataCharUUID,
		Source:         session.SourceNotify,
		Decode: func(data []byte) (any, error) {
			return DecodeSensor(data)
		},
	})
}

// ReadBattery reads the battery level; the reply value is an int percentage.
func ReadBattery() session.Command {
	return session.NewCommand(CmdReadBattery, "", "", nil, false, &session.Expectation{
		Service:        ServiceUUID,
		Characteristic: BatteryLevelCharUUID,
		Source:         session.SourceRead,
		Decode: func(data []byte) (any, error) {
			return DecodeBattery(data)
		},
	})
}

// Filter matches LYWSD02 advertisements: by the vendor service, or by the
// advertised name for firmware that omits its service list.
func Filter() device.Filter {
	return device.Filter{
		Services:   []string{ServiceUUID},
		NamePrefix: DeviceName,
	}
}
