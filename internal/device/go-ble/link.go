package goble

import (
	"context"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/lywsd02/internal/device"
	"golang.org/x/time/rate"
)

// Link is a connected go-ble client with its discovered profile indexed by
// normalized service/characteristic UUID pairs.
type Link struct {
	address string
	client  ble.Client
	logger  *logrus.Logger
	chars   map[string]*ble.Characteristic

	// Serializes GATT writes and paces them.
	writeMutex sync.Mutex
	limiter    *rate.Limiter

	closeOnce sync.Once
	closeErr  error
}

func newLink(address string, client ble.Client, profile *ble.Profile, writeInterval time.Duration, logger *logrus.Logger) *Link {
	return &Link{
		address: address,
		client:  client,
		logger:  logger,
		chars:   indexProfile(profile),
		limiter: rate.NewLimiter(rate.Every(writeInterval), 1),
	}
}

func charKey(service, characteristic string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(characteristic)
}

// indexProfile flattens a discovered profile into a lookup table.
func indexProfile(profile *ble.Profile) map[string]*ble.Characteristic {
	chars := make(map[string]*ble.Characteristic)
	if profile == nil {
		return chars
	}
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			chars[charKey(svc.UUID.String(), c.UUID.String())] = c
		}
	}
	return chars
}

func (l *Link) lookup(service, characteristic string) (*ble.Characteristic, error) {
	c, ok := l.chars[charKey(service, characteristic)]
	if !ok {
		return nil, device.NewError(device.CodeParam, "", "characteristic %q not found in service %q", characteristic, service)
	}
	return c, nil
}

// Address returns the peer address this link was dialed with.
func (l *Link) Address() string {
	return l.address
}

// Write writes data to a characteristic. Without response the write is acknowledged
// as soon as the host stack accepts it.
func (l *Link) Write(service, characteristic string, data []byte, withResponse bool) error {
	c, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	if err := l.limiter.Wait(context.Background()); err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"char_uuid":     device.ShortenUUID(device.NormalizeUUID(characteristic)),
		"bytes":         len(data),
		"with_response": withResponse,
	}).Debug("Writing characteristic")

	return NormalizeError(l.client.WriteCharacteristic(c, data, !withResponse))
}

// Read issues a GATT read and returns the value.
func (l *Link) Read(service, characteristic string) ([]byte, error) {
	c, err := l.lookup(service, characteristic)
	if err != nil {
		return nil, err
	}
	data, err := l.client.ReadCharacteristic(c)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return data, nil
}

// Subscribe enables notifications (or indications when the characteristic only
// supports those). handler receives a private copy of every payload.
func (l *Link) Subscribe(service, characteristic string, handler device.NotificationHandler) error {
	c, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}
	if c.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return device.NewError(device.CodeParam, "", "characteristic %q does not support notifications", characteristic)
	}

	err = l.client.Subscribe(c, useIndication(c), func(data []byte) {
		handler(append([]byte(nil), data...))
	})
	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"char_uuid": characteristic,
			"error":     err,
		}).Error("Failed to subscribe to characteristic notifications")
		return NormalizeError(err)
	}
	return nil
}

// Disconnected is closed by go-ble when the connection goes away.
func (l *Link) Disconnected() <-chan struct{} {
	return l.client.Disconnected()
}

// Close cancels the connection. Safe to call more than once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		if err := l.client.ClearSubscriptions(); err != nil {
			l.logger.WithField("error", err).Debug("Failed to clear subscriptions before disconnect")
		}
		l.closeErr = NormalizeError(l.client.CancelConnection())
	})
	return l.closeErr
}

func useIndication(c *ble.Characteristic) bool {
	return c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
}
