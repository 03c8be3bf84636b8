package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/lywsd02/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }
func (a *BLEAdvertisement) Addr() string             { return a.adv.Addr().String() }

// Services returns advertised service UUIDs, including overflow entries.
func (a *BLEAdvertisement) Services() []string {
	uuids := append(append([]ble.UUID{}, a.adv.Services()...), a.adv.OverflowService()...)
	result := make([]string, len(uuids))
	for i, svc := range uuids {
		result[i] = svc.String()
	}
	return result
}
