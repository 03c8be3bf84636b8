package device

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable result code. The numeric values are part of the API.
type Code int

const (
	CodeUnknown      Code = -1
	CodeNone         Code = 0 // Success
	CodeConnect      Code = 1 // Connection to device failed.
	CodeParam        Code = 2 // Invalid parameter passed to API.
	CodeMemory       Code = 3 // Out of memory.
	CodeNotConnected Code = 4 // No device connected.
	CodeNoRequest    Code = 5 // Not waiting for a response from a request.
	CodeTimeout      Code = 6 // Timed out waiting for response.
	CodeEmpty        Code = 7 // The queue was empty.
	CodeBadResponse  Code = 8 // Unexpected response from device.
	CodeWriteFailed  Code = 9 // Write failed.
)

var codeNames = map[Code]string{
	CodeUnknown:      "unknown",
	CodeNone:         "none",
	CodeConnect:      "connect",
	CodeParam:        "param",
	CodeMemory:       "memory",
	CodeNotConnected: "not_connected",
	CodeNoRequest:    "no_request",
	CodeTimeout:      "timeout",
	CodeEmpty:        "empty",
	CodeBadResponse:  "bad_response",
	CodeWriteFailed:  "write_failed",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error carries a result code plus optional operation, message and cause.
type Error struct {
	Code Code
	Op   string // "connect", "send", "disconnect", ...
	Msg  string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Code.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Code
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Predefined sentinels, one per code. Compare with errors.Is.
var (
	ErrConnect      = &Error{Code: CodeConnect}
	ErrParam        = &Error{Code: CodeParam}
	ErrMemory       = &Error{Code: CodeMemory}
	ErrNotConnected = &Error{Code: CodeNotConnected}
	ErrNoRequest    = &Error{Code: CodeNoRequest}
	ErrTimeout      = &Error{Code: CodeTimeout}
	ErrEmpty        = &Error{Code: CodeEmpty}
	ErrBadResponse  = &Error{Code: CodeBadResponse}
	ErrWriteFailed  = &Error{Code: CodeWriteFailed}
)

// ErrBluetoothOff is reported by radios whose adapter is powered off.
var ErrBluetoothOff = errors.New("bluetooth is turned off")

// NewError builds an *Error for op with a formatted message.
func NewError(code Code, op string, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error for op around cause.
func WrapError(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// CodeOf extracts the result code from err.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	return CodeUnknown
}
