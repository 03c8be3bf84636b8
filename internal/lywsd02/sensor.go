package lywsd02

import (
	"encoding/binary"
	"fmt"
)

// SensorReading is one notification from the sensor data characteristic.
type SensorReading struct {
	Temperature float64 // °C
	Humidity    int     // %RH
}

// DecodeSensor parses int16 LE temperature in hundredths of a degree followed
// by a humidity byte.
func DecodeSensor(data []byte) (SensorReading, error) {
	if len(data) < 3 {
		return SensorReading{}, fmt.Errorf("sensor value is %d bytes, want 3", len(data))
	}
	raw := int16(binary.LittleEndian.Uint16(data))
	humidity := int(data[2])
	if humidity > 100 {
		return SensorReading{}, fmt.Errorf("humidity %d%% out of range", humidity)
	}
	return SensorReading{
		Temperature: float64(raw) / 100,
		Humidity:    humidity,
	}, nil
}

// DecodeBattery parses the battery level percentage.
func DecodeBattery(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("battery value is empty")
	}
	level := int(data[0])
	if level > 100 {
		return 0, fmt.Errorf("battery level %d%% out of range", level)
	}
	return level, nil
}
