package scanner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/lywsd02"
	"github.com/srg/lywsd02/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// EventType marks if the peripheral was newly discovered or updated
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

func (t EventType) String() string {
	if t == EventNew {
		return "new"
	}
	return "updated"
}

type Event struct {
	Type       EventType
	Peripheral Peripheral
}

// Peripheral is what a scan learned about one advertiser.
type Peripheral struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	RSSI        int       `json:"rssi"`
	Services    []string  `json:"services,omitempty"`
	Connectable bool      `json:"connectable"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Seen        int       `json:"seen"`
}

// Options configures scanning behavior
type Options struct {
	Duration  time.Duration
	Filter    device.Filter
	AllowList []string
	BlockList []string
}

// DefaultOptions scans for 10s and accepts LYWSD02 clocks only.
func DefaultOptions() Options {
	return Options{
		Duration: 10 * time.Second,
		Filter:   lywsd02.Filter(),
	}
}

type entry struct {
	seq uint64
	mu  sync.Mutex
	p   Peripheral
}

// Scanner handles BLE discovery of nearby clocks
type Scanner struct {
	radio  device.Radio
	logger *logrus.Logger
	events *ringchan.Ring[Event]

	seen *hashmap.Map[string, *entry]
	seq  atomic.Uint64
	now  func() time.Time
}

func NewScanner(radio device.Radio, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		radio:  radio,
		logger: logger,
		events: ringchan.New[Event](100),
		now:    time.Now,
	}
}

// Scan listens for opts.Duration (or until ctx is done) and returns the
// accepted peripherals keyed by address, in discovery order.
func (s *Scanner) Scan(ctx context.Context, opts Options, progress ProgressCallback) (*orderedmap.OrderedMap[string, Peripheral], error) {
	if opts.Duration <= 0 {
		opts.Duration = DefaultOptions().Duration
	}
	if progress == nil {
		progress = func(string) {}
	}

	s.seen = hashmap.New[string, *entry]()
	s.seq.Store(0)

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progress("Scanning")

	scanCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	err := s.radio.Scan(scanCtx, func(adv device.Advertisement) {
		s.handleAdvertisement(adv, &opts)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.seen.Len()).Info("BLE scan completed")
	progress("Processing results")

	entries := make([]*entry, 0, s.seen.Len())
	s.seen.Range(func(_ string, e *entry) bool {
		entries = append(entries, e)
		return true
	})
	slices.SortFunc(entries, func(a, b *entry) int {
		return cmp.Compare(a.seq, b.seq)
	})

	result := orderedmap.New[string, Peripheral](len(entries))
	for _, e := range entries {
		e.mu.Lock()
		p := e.p
		e.mu.Unlock()
		result.Set(p.Address, p)
	}
	return result, nil
}

// handleAdvertisement updates an existing peripheral or adds a new one
func (s *Scanner) handleAdvertisement(adv device.Advertisement, opts *Options) {
	addr := strings.ToLower(adv.Addr())

	e, existing := s.seen.Get(addr)
	if !existing {
		if !s.accept(adv, opts) {
			return
		}
		fresh := &entry{p: Peripheral{Address: addr, FirstSeen: s.now()}}
		e, existing = s.seen.GetOrInsert(addr, fresh)
		if !existing {
			e.seq = s.seq.Add(1)
		}
	}

	e.mu.Lock()
	p := &e.p
	if name := strings.TrimSpace(adv.LocalName()); name != "" {
		p.Name = name
	}
	p.RSSI = adv.RSSI()
	if svcs := adv.Services(); len(svcs) > 0 {
		p.Services = device.NormalizeUUIDs(svcs)
	}
	p.Connectable = adv.Connectable()
	p.LastSeen = s.now()
	p.Seen++
	snapshot := *p
	snapshot.Services = slices.Clone(p.Services)
	e.mu.Unlock()

	ev := Event{Type: EventUpdated, Peripheral: snapshot}
	if !existing {
		ev.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"device":  snapshot.Name,
			"address": snapshot.Address,
			"rssi":    snapshot.RSSI,
		}).Info("Discovered new device")
	}

	s.events.Push(ev)
}

// accept applies block, allow and advertisement filters
func (s *Scanner) accept(adv device.Advertisement, opts *Options) bool {
	addr := adv.Addr()

	for _, blocked := range opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if strings.EqualFold(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return opts.Filter.Matches(adv)
}

// Events returns a read-only channel of discovery events. Slow readers lose
// the oldest events rather than stalling the radio.
func (s *Scanner) Events() <-chan Event {
	return s.events.C()
}

// Close ends the Events channel.
func (s *Scanner) Close() {
	s.events.Close()
	stats := s.events.Stats()
	s.logger.WithFields(logrus.Fields{
		"written": stats.Written,
		"dropped": stats.Overwritten,
	}).Debug("Scan event stream closed")
}
