package session

import "github.com/srg/lywsd02/internal/device"

// Source tells how the reply to a command arrives.
type Source int

const (
	// SourceRead issues a GATT read of the expected characteristic after the write.
	SourceRead Source = iota
	// SourceNotify waits for a notification on the expected characteristic.
	SourceNotify
)

func (s Source) String() string {
	if s == SourceNotify {
		return "notify"
	}
	return "read"
}

// DecodeFunc turns a raw reply into a value. A non-nil error makes the
// command fail with BAD_RESPONSE.
type DecodeFunc func(data []byte) (any, error)

// Expectation describes the single reply a command waits for.
type Expectation struct {
	Service        string
	Characteristic string
	Source         Source
	Decode         DecodeFunc
}

// Command is an immutable description of one request. A nil Payload skips the
// write, which turns the command into a pure read or wait-for-notification.
type Command struct {
	Name           string
	Service        string
	Characteristic string
	Payload        []byte
	WithResponse   bool
	Expect         *Expectation
}

// NewCommand builds a Command, copying payload.
func NewCommand(name, service, characteristic string, payload []byte, withResponse bool, expect *Expectation) Command {
	var p []byte
	if payload != nil {
		p = append([]byte{}, payload...)
	}
	return Command{
		Name:           name,
		Service:        service,
		Characteristic: characteristic,
		Payload:        p,
		WithResponse:   withResponse,
		Expect:         expect,
	}
}

func (c Command) validate() error {
	if c.Payload != nil && (c.Service == "" || c.Characteristic == "") {
		return device.NewError(device.CodeParam, "send", "command %q has a payload but no target characteristic", c.Name)
	}
	if c.Payload == nil && c.Expect == nil {
		return device.NewError(device.CodeParam, "send", "command %q neither writes nor expects a reply", c.Name)
	}
	if c.Expect != nil && (c.Expect.Service == "" || c.Expect.Characteristic == "") {
		return device.NewError(device.CodeParam, "send", "command %q expects a reply on an unnamed characteristic", c.Name)
	}
	return nil
}

// Reply is the outcome of a command that expected one.
type Reply struct {
	RequestID      string
	Characteristic string
	Raw            []byte
	Value          any
}
