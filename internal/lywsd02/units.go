package lywsd02

import (
	"errors"
	"fmt"
	"strings"
)

// Units is the temperature unit shown on the display.
type Units int

const (
	// UnitsUnchanged leaves the device setting alone.
	UnitsUnchanged Units = iota
	Celsius
	Fahrenheit
)

const (
	unitsCelsiusByte    = 0xFF
	unitsFahrenheitByte = 0x01
)

var ErrInvalidUnits = errors.New("invalid temperature units")

func (u Units) String() string {
	switch u {
	case Celsius:
		return "Celsius"
	case Fahrenheit:
		return "Fahrenheit"
	case UnitsUnchanged:
		return "unchanged"
	}
	return fmt.Sprintf("units(%d)", int(u))
}

// Symbol returns "°C" or "°F".
func (u Units) Symbol() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// ParseUnits accepts celsius, celcius, c, fahrenheit and f in any case.
func ParseUnits(s string) (Units, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "celsius", "celcius", "c":
		return Celsius, nil
	case "fahrenheit", "f":
		return Fahrenheit, nil
	}
	return UnitsUnchanged, fmt.Errorf("%w: %q", ErrInvalidUnits, s)
}

// EncodeUnits returns the one-byte units value.
func EncodeUnits(u Units) ([]byte, error) {
	switch u {
	case Celsius:
		return []byte{unitsCelsiusByte}, nil
	case Fahrenheit:
		return []byte{unitsFahrenheitByte}, nil
	}
	return nil, fmt.Errorf("%w: %s has no wire value", ErrInvalidUnits, u)
}

// DecodeUnits parses the units characteristic.
func DecodeUnits(data []byte) (Units, error) {
	if len(data) != 1 {
		return UnitsUnchanged, fmt.Errorf("units value is %d bytes, want 1", len(data))
	}
	switch data[0] {
	case unitsCelsiusByte:
		return Celsius, nil
	case unitsFahrenheitByte:
		return Fahrenheit, nil
	}
	return UnitsUnchanged, fmt.Errorf("unknown units byte 0x%02x", data[0])
}

// ToDisplay converts a Celsius reading to u.
func (u Units) ToDisplay(celsius float64) float64 {
	if u == Fahrenheit {
		return celsius*9/5 + 32
	}
	return celsius
}
