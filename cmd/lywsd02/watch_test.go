package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type WatchCommandSuite struct {
	CommandTestSuite
}

func TestWatchCommandSuite(t *testing.T) {
	suite.Run(t, new(WatchCommandSuite))
}

func (s *WatchCommandSuite) TestSyncsNowAndOnSchedule() {
	// GOAL: Verify watch syncs immediately, again on the next tick, and exits cleanly when cancelled

	ctx, cancel := context.WithTimeout(context.Background(), 1800*time.Millisecond)
	defer cancel()

	res := s.ExecuteContext(ctx, "watch", "--every", "1s", "C")

	s.Equal(0, res.Code, res.Stderr)
	s.GreaterOrEqual(strings.Count(res.Stdout, "Updating time..."), 2)
	s.Contains(res.Stdout, "Next sync at ")
	s.True(strings.HasSuffix(strings.TrimSpace(res.Stdout), "Stopped."))
	s.GreaterOrEqual(s.Peripheral.Connections(), 2)

	units := 0
	for _, w := range s.Peripheral.Writes() {
		if w.Characteristic == device.NormalizeUUID(testutils.ClockUnitsChar) {
			units++
		}
	}
	s.GreaterOrEqual(units, 2)
}

func (s *WatchCommandSuite) TestSkipImmediateSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	res := s.ExecuteContext(ctx, "watch", "--every", "1h", "--now=false")

	s.Equal(0, res.Code)
	s.NotContains(res.Stdout, "Updating time...")
	s.Zero(s.Radio.ScanCount())
}

func (s *WatchCommandSuite) TestInvalidSchedule() {
	res := s.Execute("watch", "--every", "sometimes")

	s.Equal(1, res.Code)
	s.Contains(res.Stderr, "ERROR: scheduler: not a valid cron expression or duration")
	s.Contains(res.Stdout, "Usage:")
	s.Zero(s.Radio.ScanCount())
}

func (s *WatchCommandSuite) TestInvalidUnits() {
	res := s.Execute("watch", "kelvin")

	s.Equal(1, res.Code)
	s.Contains(res.Stderr, "ERROR: 'kelvin' isn't a valid command line flag")
	s.Contains(res.Stdout, "lywsd02 watch [Celsius | C | Fahrenheit | F]")
}
