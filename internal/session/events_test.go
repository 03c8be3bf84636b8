package session

import (
	"context"
	"testing"
	"time"

	"github.com/srg/lywsd02/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedManager(t *testing.T) *Manager {
	t.Helper()
	radio := testutils.NewFakeRadio().AddPeripheral(testutils.NewClockPeripheral())
	m := New(radio, DefaultOptions(), testutils.NewTestHelper(t).Logger)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Connect(context.Background(), testutils.ClockName))
	return m
}

func notifyRequest(id string) *pendingRequest {
	return &pendingRequest{
		id:       id,
		command:  "read-sensor",
		charKey:  charKey(testutils.ClockService, testutils.ClockSensorChar),
		source:   SourceNotify,
		deadline: time.Now().Add(time.Second),
		done:     make(chan result, 1),
	}
}

func TestHandleValue_NotificationStampedForEarlierRequestIsIgnored(t *testing.T) {
	m := connectedManager(t)
	req := notifyRequest("second")

	m.mu.Lock()
	m.pending = req
	m.mu.Unlock()

	m.handle(event{
		kind:      eventValue,
		link:      m.link,
		requestID: "first",
		charKey:   req.charKey,
		data:      []byte{0x29, 0x09, 45},
		notify:    true,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Same(t, req, m.pending)
	assert.Empty(t, req.done)
}

func TestHandleValue_NotificationStampedForPendingRequestResolvesIt(t *testing.T) {
	m := connectedManager(t)
	req := notifyRequest("current")

	m.mu.Lock()
	m.pending = req
	m.mu.Unlock()

	m.handle(event{
		kind:      eventValue,
		link:      m.link,
		requestID: "current",
		charKey:   req.charKey,
		data:      []byte{0x29, 0x09, 45},
		notify:    true,
	})

	r := <-req.done
	require.NoError(t, r.err)
	assert.Equal(t, "current", r.reply.RequestID)
	assert.Equal(t, []byte{0x29, 0x09, 45}, r.reply.Raw)
}

func TestHandleWritten_StaleAckIsIgnored(t *testing.T) {
	m := connectedManager(t)
	req := &pendingRequest{id: "current", command: "set-units", done: make(chan result, 1)}

	m.mu.Lock()
	m.pending = req
	m.mu.Unlock()

	m.handle(event{kind: eventWritten, link: m.link, requestID: "earlier"})
	assert.Empty(t, req.done)

	m.handle(event{kind: eventWritten, link: m.link, requestID: "current"})
	r := <-req.done
	assert.NoError(t, r.err)
}
