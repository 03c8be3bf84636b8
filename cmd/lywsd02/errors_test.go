package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/srg/lywsd02/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"bluetooth off", fmt.Errorf("scan failed: %w", device.ErrBluetoothOff), "Bluetooth is turned off; enable it and try again"},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), "operation timed out"},
		{"connect", fmt.Errorf("failed to connect: %w", device.NewError(device.CodeConnect, "connect", "no match")), "could not connect to a LYWSD02 device; make sure it is nearby and not connected to another host"},
		{"timeout", device.NewError(device.CodeTimeout, "send", "no reply"), "device did not respond in time"},
		{"not connected", device.NewError(device.CodeNotConnected, "send", "idle"), "device is not connected"},
		{"bad response", device.NewError(device.CodeBadResponse, "send", "short"), "device sent an unexpected response: send: bad_response: short"},
		{"write failed", device.NewError(device.CodeWriteFailed, "send", "att"), "device rejected the write: send: write_failed: att"},
		{"connection lost", fmt.Errorf("%w: %w", ErrConnectionLost, device.ErrNotConnected), "BLE connection lost: connection lost: not_connected"},
		{"other", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestUnitsArg(t *testing.T) {
	cmd := &cobra.Command{Use: "lywsd02"}

	for _, ok := range [][]string{nil, {"Celsius"}, {"Celcius"}, {"c"}, {"Fahrenheit"}, {"F"}} {
		assert.NoError(t, unitsArg(cmd, ok), "%v", ok)
	}

	for _, bad := range [][]string{{"kelvin"}, {"C", "F"}, {""}} {
		err := unitsArg(cmd, bad)
		require.Error(t, err, "%v", bad)
		var uerr usageError
		assert.ErrorAs(t, err, &uerr)
	}

	assert.EqualError(t, unitsArg(cmd, []string{"kelvin"}), "'kelvin' isn't a valid command line flag")
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
