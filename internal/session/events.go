package session

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/groutine"
)

type eventKind int

const (
	eventValue eventKind = iota
	eventWritten
	eventLinkLost
)

// event is something the radio reported. requestID is the request the event
// answers; notifications are stamped with whatever was pending when they arrived.
type event struct {
	kind      eventKind
	link      device.Link
	requestID string
	charKey   string
	data      []byte
	notify    bool
	err       error
}

// post queues ev for the event loop. It blocks only while the queue is full and
// gives up once the Manager is closed.
func (m *Manager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.stop:
	}
}

// loop applies radio events one at a time in arrival order.
func (m *Manager) loop(ctx context.Context) {
	log := m.logger.WithField("goroutine", groutine.GetName(ctx))
	log.Debug("Session event loop started")
	defer log.Debug("Session event loop stopped")

	for {
		select {
		case ev := <-m.events:
			m.handle(ev)
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) handle(ev event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Anything from a link we have already released is history.
	if ev.link != m.link {
		m.logger.WithField("char", ev.charKey).Debug("Ignoring event from a released link")
		return
	}

	switch ev.kind {
	case eventLinkLost:
		m.handleLinkLost()
	case eventWritten:
		m.handleWritten(ev)
	case eventValue:
		m.handleValue(ev)
	}
}

// handleLinkLost applies radio:disconnected. Caller holds m.mu.
func (m *Manager) handleLinkLost() {
	switch m.state {
	case Connected:
		m.logger.WithField("address", m.link.Address()).Warn("BLE connection lost")
		m.failPending(device.NewError(device.CodeNotConnected, "send", "connection lost"))
		m.release()
		m.setState(Disconnected)
	case Disconnecting:
		m.release()
		m.setState(Disconnected)
	}
}

// handleWritten applies the outcome of the subscribe and write steps. A
// write-only request completes here. Caller holds m.mu.
func (m *Manager) handleWritten(ev event) {
	p := m.pending
	log := m.logger.WithField("request_id", ev.requestID)

	if p == nil || ev.requestID != p.id {
		log.Debug("Ignoring stale write completion")
		return
	}
	if ev.err != nil {
		log.WithField("error", ev.err).Warn("Write rejected by transport")
		m.resolve(result{err: transportError(device.CodeWriteFailed, "send", ev.err)})
		return
	}

	log.Debug("Write acknowledged")
	if p.charKey == "" {
		m.resolve(result{})
	}
}

// handleValue correlates a characteristic value with the pending request.
// Caller holds m.mu.
func (m *Manager) handleValue(ev event) {
	p := m.pending
	log := m.logger.WithFields(logrus.Fields{
		"char":       device.ShortenUUID(ev.charKey),
		"request_id": ev.requestID,
		"bytes":      len(ev.data),
	})

	switch {
	case p == nil:
		log.Debug("Ignoring value with no pending request")
		return
	case ev.notify && ev.requestID != p.id:
		log.Debug("Ignoring stale notification")
		return
	case ev.requestID != p.id:
		log.Debug("Ignoring late read completion")
		return
	case ev.notify && (p.source != SourceNotify || ev.charKey != p.charKey):
		log.Debug("Ignoring unsolicited notification")
		return
	}

	if ev.err != nil {
		m.resolve(result{err: transportError(device.CodeBadResponse, "send", ev.err)})
		return
	}
	if ev.charKey != p.charKey {
		m.resolve(result{err: device.NewError(device.CodeBadResponse, "send", "reply on %s, expected %s", ev.charKey, p.charKey)})
		return
	}

	reply := Reply{
		Characteristic: ev.charKey,
		Raw:            append([]byte(nil), ev.data...),
	}
	if p.decode != nil {
		value, err := p.decode(ev.data)
		if err != nil {
			m.resolve(result{err: device.WrapError(device.CodeBadResponse, "send", err)})
			return
		}
		reply.Value = value
	}

	log.Debug("Reply matched pending request")
	m.resolve(result{reply: reply})
}
