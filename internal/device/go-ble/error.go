package goble

import (
	"fmt"
	"strings"

	"github.com/srg/lywsd02/internal/device"
)

// NormalizeError maps known go-ble error strings onto the device error taxonomy.
// It ensures consistent handling even if the upstream library changes messages slightly.
// The original error stays in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"),
		containsIgnoreCase(msg, "connection closed"):
		return device.WrapError(device.CodeNotConnected, "", err)
	case containsIgnoreCase(msg, "can't dial"),
		containsIgnoreCase(msg, "connection failed"):
		return device.WrapError(device.CodeConnect, "", err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
