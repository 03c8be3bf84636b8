package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/srg/lywsd02/internal/device"
)

// FakeRadio is an in-memory device.Radio. Scan reports every registered
// advertisement once and then idles until its context is done, like a real
// radio that sees nothing new.
type FakeRadio struct {
	mu          sync.Mutex
	ads         []device.Advertisement
	peripherals map[string]*FakePeripheral
	scanErr     error
	dialErr     error
	dialDelay   time.Duration
	scans       int
	dials       int
}

func NewFakeRadio() *FakeRadio {
	return &FakeRadio{peripherals: make(map[string]*FakePeripheral)}
}

// Advertise adds an advertisement with no dialable peripheral behind it.
func (r *FakeRadio) Advertise(ads ...device.Advertisement) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ads = append(r.ads, ads...)
	return r
}

// AddPeripheral registers p as dialable and advertises it.
func (r *FakeRadio) AddPeripheral(p *FakePeripheral) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peripherals[strings.ToLower(p.Address)] = p
	r.ads = append(r.ads, p.Advertisement())
	return r
}

func (r *FakeRadio) FailScan(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanErr = err
}

func (r *FakeRadio) FailDial(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialErr = err
}

// DelayDial makes Dial wait d (or until ctx is done) before connecting.
func (r *FakeRadio) DelayDial(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialDelay = d
}

func (r *FakeRadio) ScanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

func (r *FakeRadio) DialCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dials
}

func (r *FakeRadio) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	r.mu.Lock()
	r.scans++
	ads := append([]device.Advertisement(nil), r.ads...)
	scanErr := r.scanErr
	r.mu.Unlock()

	if scanErr != nil {
		return scanErr
	}
	for _, adv := range ads {
		if ctx.Err() != nil {
			return nil
		}
		handler(adv)
	}
	<-ctx.Done()
	return nil
}

func (r *FakeRadio) Dial(ctx context.Context, address string) (device.Link, error) {
	r.mu.Lock()
	r.dials++
	p := r.peripherals[strings.ToLower(address)]
	dialErr := r.dialErr
	delay := r.dialDelay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}
	if p == nil {
		return nil, device.NewError(device.CodeConnect, "dial", "no peripheral at %s", address)
	}
	return p.connect(), nil
}

// WriteRecord is one write the peripheral received.
type WriteRecord struct {
	Characteristic string
	Data           []byte
	WithResponse   bool
}

// FakePeripheral models a GATT server keyed by characteristic UUID. By
// default a write stores the value, so reading it back echoes the write.
type FakePeripheral struct {
	Name     string
	Address  string
	Services []string

	mu          sync.Mutex
	values      map[string][]byte
	writes      []WriteRecord
	writeErr    map[string]error
	readErr     map[string]error
	holds       map[string]chan struct{}
	writeHolds  map[string]chan struct{}
	autoNotify  map[string][]byte
	noEcho      bool
	ignoreClose bool
	link        *FakeLink
	connections int
}

func NewFakePeripheral(name, address string, services ...string) *FakePeripheral {
	return &FakePeripheral{
		Name:       name,
		Address:    strings.ToLower(address),
		Services:   services,
		values:     make(map[string][]byte),
		writeErr:   make(map[string]error),
		readErr:    make(map[string]error),
		holds:      make(map[string]chan struct{}),
		writeHolds: make(map[string]chan struct{}),
		autoNotify: make(map[string][]byte),
	}
}

func key(characteristic string) string {
	return device.NormalizeUUID(characteristic)
}

func (p *FakePeripheral) Advertisement() device.Advertisement {
	return NewAdvertisementBuilder().
		WithName(p.Name).
		WithAddress(p.Address).
		WithServices(p.Services...).
		Build()
}

func (p *FakePeripheral) SetValue(characteristic string, data []byte) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key(characteristic)] = append([]byte(nil), data...)
	return p
}

func (p *FakePeripheral) Value(characteristic string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.values[key(characteristic)]...)
}

// DisableEcho keeps reads returning the stored value regardless of writes.
func (p *FakePeripheral) DisableEcho() *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.noEcho = true
	return p
}

func (p *FakePeripheral) FailWrites(characteristic string, err error) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr[key(characteristic)] = err
	return p
}

func (p *FakePeripheral) FailReads(characteristic string, err error) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr[key(characteristic)] = err
	return p
}

// HoldReads blocks reads of characteristic until the returned release func is
// called or the link goes down. Release is idempotent.
func (p *FakePeripheral) HoldReads(characteristic string) (release func()) {
	return p.hold(p.holds, characteristic)
}

// HoldWrites blocks writes to characteristic, before they are recorded, until
// the returned release func is called or the link goes down.
func (p *FakePeripheral) HoldWrites(characteristic string) (release func()) {
	return p.hold(p.writeHolds, characteristic)
}

func (p *FakePeripheral) hold(gates map[string]chan struct{}, characteristic string) func() {
	gate := make(chan struct{})
	k := key(characteristic)
	p.mu.Lock()
	gates[k] = gate
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if gates[k] == gate {
				delete(gates, k)
			}
			p.mu.Unlock()
			close(gate)
		})
	}
}

// wait blocks on the gate for k, if any. It reports false when the link went
// down first.
func (l *FakeLink) wait(gates map[string]chan struct{}, k string) bool {
	p := l.peripheral
	p.mu.Lock()
	gate := gates[k]
	p.mu.Unlock()
	if gate == nil {
		return true
	}
	select {
	case <-gate:
		return true
	case <-l.gone:
		return false
	}
}

// NotifyOnSubscribe sends data once a central subscribes to characteristic.
func (p *FakePeripheral) NotifyOnSubscribe(characteristic string, data []byte) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoNotify[key(characteristic)] = append([]byte(nil), data...)
	return p
}

// IgnoreClose makes Link.Close succeed without the link ever reporting down.
func (p *FakePeripheral) IgnoreClose() *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ignoreClose = true
	return p
}

func (p *FakePeripheral) Writes() []WriteRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WriteRecord(nil), p.writes...)
}

// Connections counts successful dials.
func (p *FakePeripheral) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connections
}

// Link returns the most recent link, or nil if never dialed.
func (p *FakePeripheral) Link() *FakeLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.link
}

// Notify delivers data to the current subscriber and reports whether anyone
// was listening.
func (p *FakePeripheral) Notify(characteristic string, data []byte) bool {
	link := p.Link()
	if link == nil {
		return false
	}
	return link.notify(key(characteristic), data)
}

// DropLink simulates the peripheral going out of range.
func (p *FakePeripheral) DropLink() {
	if link := p.Link(); link != nil {
		link.down()
	}
}

func (p *FakePeripheral) connect() *FakeLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connections++
	p.link = &FakeLink{
		peripheral: p,
		subs:       make(map[string]device.NotificationHandler),
		gone:       make(chan struct{}),
	}
	return p.link
}

// FakeLink is the device.Link handed out by FakeRadio.
type FakeLink struct {
	peripheral *FakePeripheral

	mu       sync.Mutex
	subs     map[string]device.NotificationHandler
	gone     chan struct{}
	downOnce sync.Once
	closed   bool
}

var _ device.Link = (*FakeLink)(nil)

func (l *FakeLink) Address() string { return l.peripheral.Address }

func (l *FakeLink) Disconnected() <-chan struct{} { return l.gone }

func (l *FakeLink) isDown() bool {
	select {
	case <-l.gone:
		return true
	default:
		return false
	}
}

func (l *FakeLink) notConnected(op string) error {
	return device.NewError(device.CodeNotConnected, op, "link to %s is down", l.peripheral.Address)
}

func (l *FakeLink) Write(_, characteristic string, data []byte, withResponse bool) error {
	if l.isDown() {
		return l.notConnected("write")
	}
	p := l.peripheral
	k := key(characteristic)
	if !l.wait(p.writeHolds, k) {
		return l.notConnected("write")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, WriteRecord{
		Characteristic: k,
		Data:           append([]byte(nil), data...),
		WithResponse:   withResponse,
	})
	if err := p.writeErr[k]; err != nil {
		return err
	}
	if !p.noEcho {
		p.values[k] = append([]byte(nil), data...)
	}
	return nil
}

func (l *FakeLink) Read(_, characteristic string) ([]byte, error) {
	if l.isDown() {
		return nil, l.notConnected("read")
	}
	p := l.peripheral
	k := key(characteristic)

	if !l.wait(p.holds, k) {
		return nil, l.notConnected("read")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readErr[k]; err != nil {
		return nil, err
	}
	v, ok := p.values[k]
	if !ok {
		return nil, device.NewError(device.CodeParam, "read", "characteristic %s not found", k)
	}
	return append([]byte(nil), v...), nil
}

func (l *FakeLink) Subscribe(_, characteristic string, handler device.NotificationHandler) error {
	if l.isDown() {
		return l.notConnected("subscribe")
	}
	if handler == nil {
		return errors.New("nil notification handler")
	}
	k := key(characteristic)

	l.mu.Lock()
	l.subs[k] = handler
	l.mu.Unlock()

	p := l.peripheral
	p.mu.Lock()
	data, ok := p.autoNotify[k]
	p.mu.Unlock()
	if ok {
		go l.notify(k, data)
	}
	return nil
}

// Subscribed reports whether a handler is registered for characteristic.
func (l *FakeLink) Subscribed(characteristic string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.subs[key(characteristic)]
	return ok
}

func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *FakeLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.subs = make(map[string]device.NotificationHandler)
	l.mu.Unlock()

	l.peripheral.mu.Lock()
	ignore := l.peripheral.ignoreClose
	l.peripheral.mu.Unlock()
	if !ignore {
		l.down()
	}
	return nil
}

func (l *FakeLink) notify(k string, data []byte) bool {
	if l.isDown() {
		return false
	}
	l.mu.Lock()
	handler := l.subs[k]
	l.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(append([]byte(nil), data...))
	return true
}

func (l *FakeLink) down() {
	l.downOnce.Do(func() { close(l.gone) })
}
