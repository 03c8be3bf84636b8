package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/lywsd02"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE connection was unexpectedly lost during operation.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a device that was never connected or was already disconnected.
	ErrConnectionLost = errors.New("connection lost")
)

// usageError marks errors caused by how the command was invoked; main follows
// them with the usage text.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// unitsArg accepts zero or one temperature unit argument.
func unitsArg(cmd *cobra.Command, args []string) error {
	if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
		return usageError{err}
	}
	if len(args) == 1 {
		if _, err := lywsd02.ParseUnits(args[0]); err != nil {
			return usageError{fmt.Errorf("'%s' isn't a valid command line flag", args[0])}
		}
	}
	return nil
}

// FormatUserError turns err into a message for people rather than logs.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, ErrConnectionLost):
		return fmt.Sprintf("BLE connection lost: %s", err)
	}

	var derr *device.Error
	if errors.As(err, &derr) {
		switch derr.Code {
		case device.CodeConnect:
			return "could not connect to a LYWSD02 device; make sure it is nearby and not connected to another host"
		case device.CodeNotConnected:
			return "device is not connected"
		case device.CodeTimeout:
			return "device did not respond in time"
		case device.CodeBadResponse:
			return fmt.Sprintf("device sent an unexpected response: %s", err)
		case device.CodeWriteFailed:
			return fmt.Sprintf("device rejected the write: %s", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "operation timed out"
	}
	return err.Error()
}
