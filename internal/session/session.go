package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/groutine"
	"github.com/srg/lywsd02/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultResponseTimeout   = 5 * time.Second
	DefaultDisconnectTimeout = 5 * time.Second
	DefaultEventBuffer       = 64
)

// Options configures a Manager.
type Options struct {
	ConnectTimeout    time.Duration
	ResponseTimeout   time.Duration
	DisconnectTimeout time.Duration

	// Filter is the base peripheral filter; Connect's name argument overrides Filter.Name.
	Filter device.Filter

	EventBuffer int

	// OnStateChange, if set, is called for every applied transition while the
	// session lock is held. It must not call back into the Manager.
	OnStateChange func(from, to State)
}

// DefaultOptions returns the default timeouts with an accept-anything filter.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:    DefaultConnectTimeout,
		ResponseTimeout:   DefaultResponseTimeout,
		DisconnectTimeout: DefaultDisconnectTimeout,
		EventBuffer:       DefaultEventBuffer,
	}
}

func (o *Options) applyDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = DefaultResponseTimeout
	}
	if o.DisconnectTimeout <= 0 {
		o.DisconnectTimeout = DefaultDisconnectTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
}

type result struct {
	reply Reply
	err   error
}

// pendingRequest is the single outstanding request. done is buffered so the
// resolver never blocks; it receives exactly one result.
type pendingRequest struct {
	id       string
	command  string
	charKey  string // "" for write-only commands
	source   Source
	decode   DecodeFunc
	deadline time.Time
	done     chan result
}

// Manager owns one BLE connection and serializes request/response exchanges
// over it. API methods block the caller; radio callbacks are funneled through
// a single event loop goroutine and never block on API callers.
type Manager struct {
	radio  device.Radio
	opts   Options
	logger *logrus.Logger

	mu         sync.Mutex
	state      State
	link       device.Link
	linkDown   chan struct{} // closed when the current link is released
	subscribed map[string]bool
	pending    *pendingRequest
	entropy    *ulid.MonotonicEntropy

	events    chan event
	stop      chan struct{}
	loopDone  <-chan struct{}
	closeOnce sync.Once
}

// New creates a Manager in the Disconnected state and starts its event loop.
// Call Close to stop the loop.
func New(radio device.Radio, opts Options, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	opts.applyDefaults()

	m := &Manager{
		radio:   radio,
		opts:    opts,
		logger:  logger,
		state:   Disconnected,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		events:  make(chan event, opts.EventBuffer),
		stop:    make(chan struct{}),
	}
	m.loopDone = groutine.Go(context.Background(), "ble-session-events", m.loop)
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Address returns the connected peripheral address, or "" when not connected.
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link == nil {
		return ""
	}
	return m.link.Address()
}

// Connect scans for the first peripheral accepted by the filter and connects to it.
// A non-empty name restricts the match to that advertised local name.
// Fails with CONNECT when nothing matches or the link cannot be established
// within ConnectTimeout, and with PARAM when the session is not Disconnected.
func (m *Manager) Connect(ctx context.Context, name string) (err error) {
	const op = "connect"

	m.mu.Lock()
	if m.state != Disconnected {
		state := m.state
		m.mu.Unlock()
		return device.NewError(device.CodeParam, op, "session is %s", state)
	}
	m.setState(Connecting)
	m.mu.Unlock()

	filter := m.opts.Filter
	if name != "" {
		filter.Name = name
	}

	ctx, span := telemetry.StartSpan(ctx, "session.Connect", attribute.String("name_filter", filter.Name))
	defer func() { telemetry.End(span, err) }()

	m.logger.WithFields(logrus.Fields{
		"name":    filter.Name,
		"address": filter.Address,
		"timeout": m.opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	link, err := m.establish(connCtx, filter)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.setState(Disconnected)
		m.logger.WithField("error", err).Error("Failed to connect")
		return device.WrapError(device.CodeConnect, op, err)
	}

	m.link = link
	m.linkDown = make(chan struct{})
	m.subscribed = make(map[string]bool)
	m.setState(Connected)
	m.watchLink(link)

	m.logger.WithField("address", link.Address()).Info("BLE device connected")
	return nil
}

// establish scans until the first match, then dials it.
func (m *Manager) establish(ctx context.Context, filter device.Filter) (device.Link, error) {
	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()

	found := make(chan device.Advertisement, 1)
	scanErr := make(chan error, 1)
	groutine.Go(scanCtx, "ble-connect-scan", func(c context.Context) {
		scanErr <- m.radio.Scan(c, func(adv device.Advertisement) {
			if !filter.Matches(adv) {
				return
			}
			select {
			case found <- adv:
				stopScan()
			default:
			}
		})
	})

	var adv device.Advertisement
	scanStopped := false
	select {
	case adv = <-found:
	case err := <-scanErr:
		scanStopped = true
		select {
		case adv = <-found:
		default:
			if err != nil {
				return nil, fmt.Errorf("scan failed: %w", err)
			}
			return nil, errors.New("scan ended without a matching peripheral")
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("no matching peripheral found: %w", ctx.Err())
	}

	// The radio must leave scanning before it can dial.
	stopScan()
	if !scanStopped {
		select {
		case <-scanErr:
		case <-ctx.Done():
		}
	}

	m.logger.WithFields(logrus.Fields{
		"address": adv.Addr(),
		"name":    adv.LocalName(),
		"rssi":    adv.RSSI(),
	}).Debug("Found matching peripheral")

	return m.radio.Dial(ctx, adv.Addr())
}

// watchLink posts a link-lost event when the radio reports the link gone.
// Caller holds m.mu.
func (m *Manager) watchLink(link device.Link) {
	gone := link.Disconnected()
	groutine.Go(context.Background(), "ble-link-monitor", func(context.Context) {
		select {
		case <-gone:
			m.post(event{kind: eventLinkLost, link: link})
		case <-m.stop:
		}
	})
}

// Disconnect tears the link down and waits for the radio to confirm, bounded by
// DisconnectTimeout. It is a no-op when already Disconnected. The peripheral
// handle is always released and any pending request fails with NOT_CONNECTED.
func (m *Manager) Disconnect(ctx context.Context) (err error) {
	const op = "disconnect"

	m.mu.Lock()
	switch m.state {
	case Disconnected:
		m.mu.Unlock()
		m.logger.Debug("Disconnect called but already disconnected")
		return nil
	case Connecting, Disconnecting:
		state := m.state
		m.mu.Unlock()
		return device.NewError(device.CodeParam, op, "session is %s", state)
	}

	link := m.link
	linkDown := m.linkDown
	m.setState(Disconnecting)
	m.failPending(device.NewError(device.CodeNotConnected, "send", "disconnect requested"))
	m.mu.Unlock()

	_, span := telemetry.StartSpan(ctx, "session.Disconnect", attribute.String("address", link.Address()))
	defer func() { telemetry.End(span, err) }()

	m.logger.WithField("address", link.Address()).Info("Disconnecting BLE device...")

	if closeErr := link.Close(); closeErr != nil {
		m.logger.WithField("error", closeErr).Warn("BLE link close reported an error")
	}

	timer := time.NewTimer(m.opts.DisconnectTimeout)
	defer timer.Stop()

	select {
	case <-linkDown:
	case <-timer.C:
		err = device.NewError(device.CodeTimeout, op, "no disconnect confirmation within %s", m.opts.DisconnectTimeout)
	case <-ctx.Done():
		err = device.WrapError(device.CodeTimeout, op, ctx.Err())
	}

	m.mu.Lock()
	if m.state == Disconnecting && m.link == link {
		m.release()
		m.setState(Disconnected)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.WithField("error", err).Warn("BLE device released without disconnect confirmation")
	} else {
		m.logger.Info("BLE device disconnected successfully")
	}
	return err
}

// Send issues cmd and blocks until the write is acknowledged (write-only
// commands) or the reply arrives, ResponseTimeout elapses, the link drops or
// ctx is done. The bound covers the subscribe and write steps too. Only one
// command may be in flight; a second concurrent Send fails fast with PARAM.
func (m *Manager) Send(ctx context.Context, cmd Command) (reply Reply, err error) {
	const op = "send"

	if err := cmd.validate(); err != nil {
		return Reply{}, err
	}

	m.mu.Lock()
	if m.state != Connected {
		state := m.state
		m.mu.Unlock()
		return Reply{}, device.NewError(device.CodeNotConnected, op, "cannot send %q while %s", cmd.Name, state)
	}
	if m.pending != nil {
		id := m.pending.id
		m.mu.Unlock()
		return Reply{}, device.NewError(device.CodeParam, op, "request %s is still pending", id)
	}

	link := m.link
	req := &pendingRequest{
		id:       ulid.MustNew(ulid.Now(), m.entropy).String(),
		command:  cmd.Name,
		deadline: time.Now().Add(m.opts.ResponseTimeout),
		done:     make(chan result, 1),
	}
	needSubscribe := false
	if exp := cmd.Expect; exp != nil {
		req.charKey = charKey(exp.Service, exp.Characteristic)
		req.source = exp.Source
		req.decode = exp.Decode
		needSubscribe = exp.Source == SourceNotify && !m.subscribed[req.charKey]
	}
	m.pending = req
	m.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "session.Send",
		attribute.String("command", cmd.Name),
		attribute.String("request_id", req.id))
	defer func() { telemetry.End(span, err) }()

	log := m.logger.WithFields(logrus.Fields{
		"command":    cmd.Name,
		"request_id": req.id,
	})
	log.Debug("Request created")

	timer := time.NewTimer(time.Until(req.deadline))
	defer timer.Stop()

	groutine.Go(context.Background(), "ble-request", func(context.Context) {
		m.transmit(link, req, cmd, needSubscribe)
	})

	var r result
	select {
	case r = <-req.done:
	case <-timer.C:
		r = m.finish(req, result{err: device.NewError(device.CodeTimeout, op, "no reply to %q within %s", cmd.Name, m.opts.ResponseTimeout)})
	case <-ctx.Done():
		r = m.finish(req, result{err: device.WrapError(device.CodeTimeout, op, ctx.Err())})
	}

	if r.err != nil {
		log.WithField("error", r.err).Warn("Request failed")
	} else {
		log.Debug("Request completed")
	}
	return r.reply, r.err
}

// transmit performs the subscribe, write and read steps of req and reports
// each outcome to the event loop.
func (m *Manager) transmit(link device.Link, req *pendingRequest, cmd Command, subscribe bool) {
	exp := cmd.Expect

	if subscribe {
		key := req.charKey
		err := link.Subscribe(exp.Service, exp.Characteristic, func(data []byte) {
			m.post(event{kind: eventValue, link: link, requestID: m.pendingID(), charKey: key, data: data, notify: true})
		})
		if err != nil {
			m.post(event{kind: eventWritten, link: link, requestID: req.id, err: err})
			return
		}
		m.mu.Lock()
		if m.link == link {
			m.subscribed[key] = true
		}
		m.mu.Unlock()
	}

	if cmd.Payload != nil {
		if err := link.Write(cmd.Service, cmd.Characteristic, cmd.Payload, cmd.WithResponse); err != nil {
			m.post(event{kind: eventWritten, link: link, requestID: req.id, err: err})
			return
		}
	}
	m.post(event{kind: eventWritten, link: link, requestID: req.id})

	if exp == nil || exp.Source != SourceRead || m.pendingID() != req.id {
		return
	}
	data, err := link.Read(exp.Service, exp.Characteristic)
	m.post(event{
		kind:      eventValue,
		link:      link,
		requestID: req.id,
		charKey:   charKey(exp.Service, exp.Characteristic),
		data:      data,
		err:       err,
	})
}

// pendingID returns the id of the outstanding request, or "".
func (m *Manager) pendingID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return ""
	}
	return m.pending.id
}

// finish clears req if it is still pending and returns fallback. If req was
// already resolved (by the event loop or a disconnect) that result wins.
func (m *Manager) finish(req *pendingRequest, fallback result) result {
	m.mu.Lock()
	if m.pending == req {
		m.pending = nil
		m.mu.Unlock()
		fallback.reply.RequestID = req.id
		return fallback
	}
	m.mu.Unlock()
	return <-req.done
}

// Close disconnects if needed and stops the event loop.
func (m *Manager) Close() error {
	var err error
	if m.State() == Connected {
		err = m.Disconnect(context.Background())
	}
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.loopDone
	})
	return err
}

// setState applies a transition if it is an edge of the state machine.
// Caller holds m.mu.
func (m *Manager) setState(to State) bool {
	from := m.state
	if !CanTransition(from, to) {
		m.logger.WithFields(logrus.Fields{
			"from": from.String(),
			"to":   to.String(),
		}).Error("Rejected invalid connection state transition")
		return false
	}
	m.state = to
	m.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("Connection state changed")
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(from, to)
	}
	return true
}

// failPending resolves the pending request, if any, with err. Caller holds m.mu.
func (m *Manager) failPending(err error) {
	m.resolve(result{err: err})
}

// resolve hands r to the pending request and clears it. Caller holds m.mu.
func (m *Manager) resolve(r result) {
	p := m.pending
	if p == nil {
		return
	}
	m.pending = nil
	r.reply.RequestID = p.id
	p.done <- r
}

// release drops the peripheral handle. Caller holds m.mu.
func (m *Manager) release() {
	m.link = nil
	m.subscribed = nil
	if m.linkDown != nil {
		close(m.linkDown)
		m.linkDown = nil
	}
}

func charKey(service, characteristic string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(characteristic)
}

// transportError keeps NOT_CONNECTED from the transport and files anything
// else under code.
func transportError(code device.Code, op string, err error) error {
	if device.CodeOf(err) == device.CodeNotConnected {
		return device.WrapError(device.CodeNotConnected, op, err)
	}
	return device.WrapError(code, op, err)
}
