package goble

import (
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/lywsd02/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clockService = "ebe0ccb0-7a0a-4b0c-8a1a-6ff2997da3a6"
	clockTime    = "ebe0ccb7-7a0a-4b0c-8a1a-6ff2997da3a6"
	clockSensor  = "ebe0ccc1-7a0a-4b0c-8a1a-6ff2997da3a6"
)

func testProfile() *ble.Profile {
	return &ble.Profile{
		Services: []*ble.Service{
			{
				UUID: ble.MustParse(clockService),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.MustParse(clockTime), Property: ble.CharRead | ble.CharWrite},
					{UUID: ble.MustParse(clockSensor), Property: ble.CharRead | ble.CharNotify},
				},
			},
			{
				UUID: ble.UUID16(0x180f),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.UUID16(0x2a19), Property: ble.CharIndicate},
				},
			},
		},
	}
}

func TestIndexProfile(t *testing.T) {
	chars := indexProfile(testProfile())

	assert.Len(t, chars, 3)
	assert.Contains(t, chars, charKey(clockService, clockTime))
	assert.Contains(t, chars, charKey("180F", "2A19"))
	assert.Contains(t, chars, charKey("0000180f-0000-1000-8000-00805f9b34fb", "0x2a19"))
	assert.Empty(t, indexProfile(nil))
}

func TestLink_LookupMissingCharacteristic(t *testing.T) {
	link := newLink("e7:2e:00:11:22:33", nil, testProfile(), time.Millisecond, logrus.New())

	err := link.Write(clockService, "ebe0ccbe-7a0a-4b0c-8a1a-6ff2997da3a6", []byte{0xff}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrParam)

	_, err = link.Read("1805", "2a2b")
	assert.ErrorIs(t, err, device.ErrParam)

	assert.Equal(t, "e7:2e:00:11:22:33", link.Address())
}

func TestLink_SubscribeRequiresNotifySupport(t *testing.T) {
	link := newLink("e7:2e:00:11:22:33", nil, testProfile(), time.Millisecond, logrus.New())

	err := link.Subscribe(clockService, clockTime, func([]byte) {})
	assert.ErrorIs(t, err, device.ErrParam)
}

func TestUseIndication(t *testing.T) {
	assert.False(t, useIndication(&ble.Characteristic{Property: ble.CharNotify}))
	assert.False(t, useIndication(&ble.Characteristic{Property: ble.CharNotify | ble.CharIndicate}))
	assert.True(t, useIndication(&ble.Characteristic{Property: ble.CharIndicate}))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		input  error
		target error
	}{
		{name: "bluetooth off (darwin)", input: errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), target: device.ErrBluetoothOff},
		{name: "not connected", input: errors.New("device not connected"), target: device.ErrNotConnected},
		{name: "disconnected", input: errors.New("ATT: Disconnected"), target: device.ErrNotConnected},
		{name: "dial failure", input: errors.New("can't dial: timeout"), target: device.ErrConnect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.input)
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), tt.input.Error())
		})
	}

	assert.NoError(t, NormalizeError(nil))
	plain := errors.New("insufficient authentication")
	assert.Same(t, plain, NormalizeError(plain))
}
