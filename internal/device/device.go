package device

import (
	"context"
	"strings"
)

// Advertisement is the subset of a BLE advertising report the session and scanner need.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Services() []string
	ManufacturerData() []byte
	Connectable() bool
}

// Radio is the platform BLE stack as seen by the session manager.
// Scan blocks until ctx is done or the stack fails; handler is invoked from the
// radio's own goroutine for every advertisement.
type Radio interface {
	Scan(ctx context.Context, handler func(Advertisement)) error
	Dial(ctx context.Context, address string) (Link, error)
}

// NotificationHandler receives characteristic notification payloads.
// It is called from the radio's event context and must not block.
type NotificationHandler func(data []byte)

// Link is a live connection to one peripheral. Characteristic and service
// arguments accept any UUID form understood by NormalizeUUID.
type Link interface {
	Address() string
	Write(service, characteristic string, data []byte, withResponse bool) error
	Read(service, characteristic string) ([]byte, error)
	Subscribe(service, characteristic string, handler NotificationHandler) error

	// Disconnected is closed once the link is gone, whether by Close or link loss.
	Disconnected() <-chan struct{}
	Close() error
}

// Filter selects which advertisement a connect or scan accepts.
type Filter struct {
	// Name, when set, must equal the advertised local name (case-insensitive).
	// A named filter does not additionally require Services.
	Name string
	// Address, when set, pins the peripheral address (case-insensitive).
	Address string
	// Services accepted when Name is empty; any one advertised service matches.
	Services []string
	// NamePrefix is accepted when Name is empty and the peripheral does not
	// advertise its service list.
	NamePrefix string
}

// Matches reports whether adv passes the filter.
func (f Filter) Matches(adv Advertisement) bool {
	if adv == nil {
		return false
	}
	if f.Address != "" && !strings.EqualFold(f.Address, adv.Addr()) {
		return false
	}
	if f.Name != "" {
		return strings.EqualFold(strings.TrimSpace(adv.LocalName()), f.Name)
	}
	if len(f.Services) == 0 && f.NamePrefix == "" {
		return true
	}

	for _, want := range f.Services {
		want = NormalizeUUID(want)
		for _, got := range adv.Services() {
			if NormalizeUUID(got) == want {
				return true
			}
		}
	}

	if f.NamePrefix != "" {
		return strings.HasPrefix(strings.ToUpper(adv.LocalName()), strings.ToUpper(f.NamePrefix))
	}
	return false
}
