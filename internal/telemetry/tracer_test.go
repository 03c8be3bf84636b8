package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(false, nil)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "session.Connect")
	assert.False(t, span.SpanContext().IsValid(), "noop provider MUST produce invalid span contexts")
	End(span, nil)

	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(true, &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = Setup(false, nil) })

	_, span := StartSpan(context.Background(), "session.Send", attribute.String("command", "set-units"))
	End(span, errors.New("write_failed"))

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "session.Send")
	assert.Contains(t, buf.String(), "set-units")
	assert.Contains(t, buf.String(), "write_failed")
}
