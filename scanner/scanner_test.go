package scanner_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/testutils"
	"github.com/srg/lywsd02/scanner"
	"github.com/stretchr/testify/suite"
)

type ScannerTestSuite struct {
	testutils.MockRadioSuite

	scanner *scanner.Scanner
}

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}

func (s *ScannerTestSuite) SetupTest() {
	s.MockRadioSuite.SetupTest()

	s.Radio.Advertise(
		testutils.CreateMockAdvertisement("Mi Band 4", "C8:0F:10:00:00:01", -70).WithServices("fee0").Build(),
		testutils.CreateMockAdvertisementFromJSON(`{
			"name": "LYWSD02",
			"address": "E7:2E:01:02:03:99",
			"rssi": -81
		}`).Build(),
		testutils.CreateMockAdvertisement("", "11:22:33:44:55:66", -40).Build(),
		// repeated advertisement of the default clock with a stronger signal
		testutils.CreateMockAdvertisement(testutils.ClockName, testutils.ClockAddress, -42).
			WithServices(testutils.ClockService).Build(),
	)
	s.scanner = scanner.NewScanner(s.Radio, s.Logger)
}

func (s *ScannerTestSuite) scan(opts scanner.Options) []scanner.Peripheral {
	opts.Duration = 50 * time.Millisecond
	found, err := s.scanner.Scan(context.Background(), opts, nil)
	s.Require().NoError(err)

	var out []scanner.Peripheral
	for pair := found.Oldest(); pair != nil; pair = pair.Next() {
		s.Equal(pair.Key, pair.Value.Address)
		out = append(out, pair.Value)
	}
	return out
}

func (s *ScannerTestSuite) TestDefaultOptionsFindClocksOnly() {
	found := s.scan(scanner.DefaultOptions())

	s.Require().Len(found, 2)
	s.Equal(testutils.ClockAddress, found[0].Address)
	s.Equal("e7:2e:01:02:03:99", found[1].Address)
}

func (s *ScannerTestSuite) TestDuplicatesAreMerged() {
	found := s.scan(scanner.DefaultOptions())

	clock := found[0]
	s.Equal(2, clock.Seen)
	s.Equal(-42, clock.RSSI)
	s.Equal([]string{device.NormalizeUUID(testutils.ClockService)}, clock.Services)
	s.False(clock.LastSeen.Before(clock.FirstSeen))
}

func (s *ScannerTestSuite) TestEmptyFilterAcceptsEverything() {
	found := s.scan(scanner.Options{})
	s.Len(found, 4)
}

func (s *ScannerTestSuite) TestBlockAndAllowLists() {
	opts := scanner.DefaultOptions()
	opts.BlockList = []string{"E7:2E:01:02:03:04"}
	found := s.scan(opts)
	s.Require().Len(found, 1)
	s.Equal("e7:2e:01:02:03:99", found[0].Address)

	opts = scanner.Options{AllowList: []string{"11:22:33:44:55:66"}}
	found = s.scan(opts)
	s.Require().Len(found, 1)
	s.Equal("11:22:33:44:55:66", found[0].Address)
}

func (s *ScannerTestSuite) TestEventsReportNewThenUpdated() {
	s.scan(scanner.DefaultOptions())

	var got []scanner.EventType
	for len(got) < 3 {
		select {
		case ev := <-s.scanner.Events():
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			s.FailNow("missing scan events", "got %v", got)
		}
	}
	s.Equal([]scanner.EventType{scanner.EventNew, scanner.EventNew, scanner.EventUpdated}, got)
}

func (s *ScannerTestSuite) TestScanFailure() {
	s.Radio.FailScan(device.ErrBluetoothOff)

	_, err := s.scanner.Scan(context.Background(), scanner.Options{Duration: time.Second}, nil)
	s.ErrorIs(err, device.ErrBluetoothOff)
}

func (s *ScannerTestSuite) TestProgressPhases() {
	var phases []string
	_, err := s.scanner.Scan(context.Background(), scanner.Options{Duration: 20 * time.Millisecond}, func(p string) {
		phases = append(phases, p)
	})
	s.Require().NoError(err)
	s.Equal([]string{"Scanning", "Processing results"}, phases)
}

func (s *ScannerTestSuite) TestResultMarshalsInDiscoveryOrder() {
	opts := scanner.DefaultOptions()
	opts.Duration = 50 * time.Millisecond
	found, err := s.scanner.Scan(context.Background(), opts, nil)
	s.Require().NoError(err)

	data, err := json.Marshal(found)
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T(), testutils.WithIgnoredFields("first_seen", "last_seen")).Assert(string(data), `{
		"e7:2e:01:02:03:04": {
			"name": "LYWSD02",
			"address": "e7:2e:01:02:03:04",
			"rssi": -42,
			"services": ["ebe0ccb07a0a4b0c8a1a6ff2997da3a6"],
			"connectable": true,
			"seen": 2
		},
		"e7:2e:01:02:03:99": {
			"name": "LYWSD02",
			"address": "e7:2e:01:02:03:99",
			"rssi": "<<PRESENCE>>",
			"connectable": true,
			"seen": 1
		}
	}`)
}
