package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeValuesAreStable(t *testing.T) {
	codes := []Code{
		CodeNone, CodeConnect, CodeParam, CodeMemory, CodeNotConnected,
		CodeNoRequest, CodeTimeout, CodeEmpty, CodeBadResponse, CodeWriteFailed,
	}
	for i, c := range codes {
		assert.Equal(t, i, int(c), "code %s", c)
	}
}

func TestError_Is(t *testing.T) {
	err := NewError(CodeTimeout, "send", "no reply on %s", "ebe0ccb7")

	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrBadResponse)

	wrapped := fmt.Errorf("time step: %w", err)
	assert.ErrorIs(t, wrapped, ErrTimeout)
	assert.Equal(t, CodeTimeout, CodeOf(wrapped))
}

func TestError_UnwrapCause(t *testing.T) {
	cause := errors.New("att: write rejected")
	err := WrapError(CodeWriteFailed, "send", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.Equal(t, "send: write_failed: att: write rejected", err.Error())
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "code only", err: &Error{Code: CodeConnect}, want: "connect"},
		{name: "op and code", err: &Error{Code: CodeNotConnected, Op: "send"}, want: "send: not_connected"},
		{name: "op code message", err: NewError(CodeParam, "connect", "already %s", "connected"), want: "connect: param: already connected"},
		{name: "nil", err: nil, want: "<nil>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNone, CodeOf(nil))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeBadResponse, CodeOf(ErrBadResponse))

	var derr *Error
	require.ErrorAs(t, fmt.Errorf("outer: %w", NewError(CodeEmpty, "", "")), &derr)
	assert.Equal(t, CodeEmpty, derr.Code)
}

func TestCode_String(t *testing.T) {
	assert.Equal(t, "not_connected", CodeNotConnected.String())
	assert.Equal(t, "code(42)", Code(42).String())
}
