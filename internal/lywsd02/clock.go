package lywsd02

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// TimeFormat selects the layout of the time characteristic.
type TimeFormat string

const (
	// FormatLYWSD02 is the vendor layout: uint32 LE Unix seconds + int8 UTC offset in hours.
	FormatLYWSD02 TimeFormat = "lywsd02"
	// FormatCTS is the Bluetooth Current Time Service "Exact Time 256" layout.
	FormatCTS TimeFormat = "cts"
)

const (
	vendorTimeLen = 5
	ctsTimeLen    = 10

	// ctsAdjustManual flags a manual time update in the CTS adjust-reason byte.
	ctsAdjustManual = 0x01
)

// ParseTimeFormat accepts "lywsd02" (or "") and "cts", case-insensitive.
func ParseTimeFormat(s string) (TimeFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatLYWSD02):
		return FormatLYWSD02, nil
	case string(FormatCTS):
		return FormatCTS, nil
	}
	return "", fmt.Errorf("unknown time format %q (want lywsd02 or cts)", s)
}

// Target returns the service and characteristic holding the clock in this format.
func (f TimeFormat) Target() (service, characteristic string) {
	if f == FormatCTS {
		return CurrentTimeServiceUUID, CurrentTimeCharUUID
	}
	return ServiceUUID, TimeCharUUID
}

// DeviceTime is the clock as the device stores it. The displayed wall clock is
// Unix shifted by OffsetHours.
type DeviceTime struct {
	Unix        int64
	OffsetHours int8
}

// Wall returns the time the device displays, in a fixed zone of its offset.
func (d DeviceTime) Wall() time.Time {
	offset := int(d.OffsetHours) * 3600
	return time.Unix(d.Unix, 0).In(time.FixedZone(fmt.Sprintf("UTC%+d", d.OffsetHours), offset))
}

// ToDeviceTime converts t to what the device should store so that it displays
// t's local wall clock. Offsets that are not whole hours are folded into the
// timestamp.
func ToDeviceTime(t time.Time) DeviceTime {
	_, offset := t.Zone()
	hours := offset / 3600
	return DeviceTime{
		Unix:        t.Unix() + int64(offset-hours*3600),
		OffsetHours: int8(hours),
	}
}

// EncodeTime serializes t's local wall clock in the given format.
func EncodeTime(format TimeFormat, t time.Time) ([]byte, error) {
	switch format {
	case FormatLYWSD02, "":
		dt := ToDeviceTime(t)
		if dt.Unix < 0 || dt.Unix > int64(^uint32(0)) {
			return nil, fmt.Errorf("time %s is outside the device range", t)
		}
		buf := make([]byte, vendorTimeLen)
		binary.LittleEndian.PutUint32(buf, uint32(dt.Unix))
		buf[4] = byte(dt.OffsetHours)
		return buf, nil
	case FormatCTS:
		return encodeCTS(t), nil
	}
	return nil, fmt.Errorf("unknown time format %q", format)
}

// DecodeTime parses a time characteristic value.
func DecodeTime(format TimeFormat, data []byte) (DeviceTime, error) {
	switch format {
	case FormatLYWSD02, "":
		if len(data) != vendorTimeLen {
			return DeviceTime{}, fmt.Errorf("time value is %d bytes, want %d", len(data), vendorTimeLen)
		}
		return DeviceTime{
			Unix:        int64(binary.LittleEndian.Uint32(data)),
			OffsetHours: int8(data[4]),
		}, nil
	case FormatCTS:
		return decodeCTS(data)
	}
	return DeviceTime{}, fmt.Errorf("unknown time format %q", format)
}

func encodeCTS(t time.Time) []byte {
	buf := make([]byte, ctsTimeLen)
	binary.LittleEndian.PutUint16(buf, uint16(t.Year()))
	buf[2] = byte(t.Month())
	buf[3] = byte(t.Day())
	buf[4] = byte(t.Hour())
	buf[5] = byte(t.Minute())
	buf[6] = byte(t.Second())
	buf[7] = ctsWeekday(t.Weekday())
	buf[8] = byte(t.Nanosecond() * 256 / int(time.Second))
	buf[9] = ctsAdjustManual
	return buf
}

func decodeCTS(data []byte) (DeviceTime, error) {
	if len(data) < ctsTimeLen-1 {
		return DeviceTime{}, fmt.Errorf("current time value is %d bytes, want %d", len(data), ctsTimeLen)
	}
	year := int(binary.LittleEndian.Uint16(data))
	month, day := int(data[2]), int(data[3])
	hour, minute, second := int(data[4]), int(data[5]), int(data[6])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return DeviceTime{}, fmt.Errorf("malformed current time % x", data)
	}
	// CTS carries local wall-clock fields only; model them as UTC+0.
	wall := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	return DeviceTime{Unix: wall.Unix()}, nil
}

// ctsWeekday maps Go's Sunday-first weekday to CTS 1=Monday..7=Sunday.
func ctsWeekday(d time.Weekday) byte {
	if d == time.Sunday {
		return 7
	}
	return byte(d)
}

// wallSeconds is the displayed wall clock as seconds since the epoch.
func (d DeviceTime) wallSeconds() int64 {
	return d.Unix + int64(d.OffsetHours)*3600
}
