package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/lywsd02/internal/device"
)

const (
	// DefaultWriteInterval is the minimum spacing between consecutive GATT writes on one link.
	// The LYWSD02 drops writes that arrive back to back right after connection setup.
	DefaultWriteInterval = 10 * time.Millisecond
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Radio implements device.Radio on top of the go-ble host stack.
// The underlying ble.Device is created lazily on first use and shared by
// scans and dials.
type Radio struct {
	logger        *logrus.Logger
	writeInterval time.Duration

	mu  sync.Mutex
	dev ble.Device
}

// NewRadio creates a go-ble backed radio. A zero writeInterval selects DefaultWriteInterval.
func NewRadio(logger *logrus.Logger, writeInterval time.Duration) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	if writeInterval <= 0 {
		writeInterval = DefaultWriteInterval
	}
	return &Radio{logger: logger, writeInterval: writeInterval}
}

func (r *Radio) device() (ble.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev != nil {
		return r.dev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		r.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	r.dev = dev
	return dev, nil
}

// Scan reports advertisements until ctx is done. Context cancellation is not an error.
func (r *Radio) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := r.device()
	if err != nil {
		return err
	}

	r.logger.Debug("Starting BLE scan...")
	err = dev.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return NormalizeError(err)
	}
	r.logger.Debug("BLE scan stopped")
	return nil
}

// Dial connects to address and discovers its GATT profile.
func (r *Radio) Dial(ctx context.Context, address string) (device.Link, error) {
	dev, err := r.device()
	if err != nil {
		return nil, err
	}

	r.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	r.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			r.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	link := newLink(address, client, profile, r.writeInterval, r.logger)
	r.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(profile.Services),
		"characteristics": len(link.chars),
	}).Info("BLE device connected successfully")
	return link, nil
}
