package testutils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/lywsd02/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRadio_ScanReportsAdvertisementsThenIdles(t *testing.T) {
	radio := NewFakeRadio().
		Advertise(CreateMockAdvertisement("Other", "11:22:33:44:55:66", -80).Build()).
		AddPeripheral(NewClockPeripheral())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var names []string
	err := radio.Scan(ctx, func(adv device.Advertisement) {
		names = append(names, adv.LocalName())
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Other", ClockName}, names)
	assert.Equal(t, 1, radio.ScanCount())
}

func TestFakeRadio_DialUnknownAddress(t *testing.T) {
	_, err := NewFakeRadio().Dial(context.Background(), "00:00:00:00:00:00")
	assert.ErrorIs(t, err, device.ErrConnect)
}

func TestFakePeripheral_EchoesWrites(t *testing.T) {
	p := NewClockPeripheral()
	link, err := NewFakeRadio().AddPeripheral(p).Dial(context.Background(), ClockAddress)
	require.NoError(t, err)

	require.NoError(t, link.Write(ClockService, ClockUnitsChar, []byte{0x01}, true))
	got, err := link.Read(ClockService, ClockUnitsChar)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, got)

	writes := p.Writes()
	require.Len(t, writes, 1)
	assert.True(t, writes[0].WithResponse)
}

func TestFakePeripheral_HoldReadsUntilReleased(t *testing.T) {
	p := NewClockPeripheral()
	link, err := NewFakeRadio().AddPeripheral(p).Dial(context.Background(), ClockAddress)
	require.NoError(t, err)

	release := p.HoldReads(ClockBattery)
	got := make(chan []byte, 1)
	go func() {
		data, _ := link.Read(ClockService, ClockBattery)
		got <- data
	}()

	select {
	case <-got:
		t.Fatal("read returned while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()
	assert.Equal(t, []byte{77}, <-got)
}

func TestFakePeripheral_DropLinkUnblocksReads(t *testing.T) {
	p := NewClockPeripheral()
	link, err := NewFakeRadio().AddPeripheral(p).Dial(context.Background(), ClockAddress)
	require.NoError(t, err)

	p.HoldReads(ClockTimeChar)
	errc := make(chan error, 1)
	go func() {
		_, err := link.Read(ClockService, ClockTimeChar)
		errc <- err
	}()

	p.DropLink()
	assert.ErrorIs(t, <-errc, device.ErrNotConnected)
	assert.ErrorIs(t, link.Write(ClockService, ClockTimeChar, []byte{1}, true), device.ErrNotConnected)
}

func TestFakePeripheral_NotifyOnSubscribe(t *testing.T) {
	p := NewClockPeripheral()
	link, err := NewFakeRadio().AddPeripheral(p).Dial(context.Background(), ClockAddress)
	require.NoError(t, err)

	got := make(chan []byte, 1)
	require.NoError(t, link.Subscribe(ClockService, ClockSensorChar, func(data []byte) { got <- data }))

	select {
	case data := <-got:
		assert.Equal(t, DefaultSensorReading, data)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestFakeLink_CloseHonorsIgnoreClose(t *testing.T) {
	p := NewClockPeripheral().IgnoreClose()
	link, err := NewFakeRadio().AddPeripheral(p).Dial(context.Background(), ClockAddress)
	require.NoError(t, err)

	require.NoError(t, link.Close())
	select {
	case <-link.Disconnected():
		t.Fatal("link reported down despite IgnoreClose")
	default:
	}
	assert.True(t, p.Link().Closed())
}

func TestFakePeripheral_FailWrites(t *testing.T) {
	boom := errors.New("att error 0x03")
	p := NewClockPeripheral().FailWrites(ClockUnitsChar, boom)
	link, err := NewFakeRadio().AddPeripheral(p).Dial(context.Background(), ClockAddress)
	require.NoError(t, err)

	assert.Same(t, boom, link.Write(ClockService, ClockUnitsChar, []byte{1}, true))
	assert.Equal(t, []byte{0xFF}, p.Value(ClockUnitsChar))
}
