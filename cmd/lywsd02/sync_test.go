package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/testutils"
	"github.com/srg/lywsd02/pkg/config"
	"github.com/stretchr/testify/suite"
)

type SyncCommandSuite struct {
	CommandTestSuite
}

func TestSyncCommandSuite(t *testing.T) {
	suite.Run(t, new(SyncCommandSuite))
}

func (s *SyncCommandSuite) writesTo(characteristic string) [][]byte {
	k := device.NormalizeUUID(characteristic)
	var out [][]byte
	for _, w := range s.Peripheral.Writes() {
		if w.Characteristic == k {
			out = append(out, w.Data)
		}
	}
	return out
}

func (s *SyncCommandSuite) TestSyncTimeOnly() {
	// GOAL: Verify the bare command sets the time and leaves the units alone
	//
	// TEST SCENARIO: run without arguments → time written, units untouched → exit 0

	res := s.Execute()

	s.Equal(0, res.Code)
	s.Empty(res.Stderr)
	testutils.NewTextAsserter(s.T()).Assert(res.Stdout, `
Attempting to connect to LYWSD02 device...
LYWSD02 device connected!
Updating time...
Disconnecting...
`)
	s.Len(s.writesTo(testutils.ClockTimeChar), 1)
	s.Empty(s.writesTo(testutils.ClockUnitsChar))
	s.True(s.Peripheral.Link().Closed(), "link MUST be closed after the sync")
}

func (s *SyncCommandSuite) TestSyncUnitsArgument() {
	// GOAL: Verify every accepted spelling selects the right units byte

	tests := []struct {
		arg   string
		label string
		want  byte
	}{
		{"Celsius", "Celsius", 0xFF},
		{"celcius", "Celsius", 0xFF},
		{"C", "Celsius", 0xFF},
		{"c", "Celsius", 0xFF},
		{"Fahrenheit", "Fahrenheit", 0x01},
		{"FAHRENHEIT", "Fahrenheit", 0x01},
		{"F", "Fahrenheit", 0x01},
		{"f", "Fahrenheit", 0x01},
	}

	for _, tt := range tests {
		s.Run(tt.arg, func() {
			s.SetupTest()
			defer s.TearDownTest()

			res := s.Execute(tt.arg)

			s.Equal(0, res.Code)
			testutils.NewTextAsserter(s.T()).Assert(res.Stdout, `
Attempting to connect to LYWSD02 device...
LYWSD02 device connected!
Updating time...
Setting temperature units to `+tt.label+`...
Disconnecting...
`)
			s.Equal([][]byte{{tt.want}}, s.writesTo(testutils.ClockUnitsChar))
		})
	}
}

func (s *SyncCommandSuite) TestInvalidArguments() {
	// GOAL: Verify bad arguments print an error and usage and exit 1 without touching the radio

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown unit", []string{"kelvin"}, "ERROR: 'kelvin' isn't a valid command line flag"},
		{"too many args", []string{"C", "F"}, "ERROR: accepts at most 1 arg(s), received 2"},
		{"unknown flag", []string{"--colour"}, "ERROR: unknown flag: --colour"},
		{"bad log level", []string{"--log-level", "loud"}, "ERROR: invalid log level: loud"},
		{"bad time format", []string{"--time-format", "rtc"}, "ERROR: time_format"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			res := s.Execute(tt.args...)

			s.Equal(1, res.Code)
			s.Contains(res.Stderr, tt.wantErr)
			s.Contains(res.Stdout, "Usage:")
			s.Contains(res.Stdout, "lywsd02 [Celsius | C | Fahrenheit | F]")
			s.NotContains(res.Stdout, "Attempting to connect")
		})
	}
	s.Zero(s.Radio.ScanCount(), "radio MUST NOT be used for invalid invocations")
}

func (s *SyncCommandSuite) TestNoDeviceStillExitsZero() {
	// GOAL: Verify a failed connect is reported, disconnect is still announced, exit code is 0

	empty := testutils.NewFakeRadio()
	newRadio = func(*config.Config, *logrus.Logger) device.Radio { return empty }

	res := s.Execute()

	s.Equal(0, res.Code)
	s.Contains(res.Stderr, "error: Failed to connect to LYWSD02 device.")
	testutils.NewTextAsserter(s.T()).Assert(res.Stdout, `
Attempting to connect to LYWSD02 device...
Disconnecting...
`)
}

func (s *SyncCommandSuite) TestTimeTimeoutStillSetsUnits() {
	// GOAL: Verify a failed time update does not prevent the units update
	//
	// TEST SCENARIO: time read-back never answers → TIMEOUT reported → units still written → exit 0

	release := s.Peripheral.HoldReads(testutils.ClockTimeChar)
	defer release()

	res := s.Execute("F")

	s.Equal(0, res.Code)
	testutils.NewTextAsserter(s.T()).Assert(res.Stdout, `
Attempting to connect to LYWSD02 device...
LYWSD02 device connected!
Updating time...
BLE transmit returned error: 6 (timeout)
Setting temperature units to Fahrenheit...
Disconnecting...
`)
	s.Equal([][]byte{{0x01}}, s.writesTo(testutils.ClockUnitsChar))
}

func (s *SyncCommandSuite) TestRejectedUnitsWrite() {
	s.Peripheral.FailWrites(testutils.ClockUnitsChar, errors.New("att: write not permitted"))

	res := s.Execute("C")

	s.Equal(0, res.Code)
	testutils.NewTextAsserter(s.T()).Assert(res.Stdout, `
Attempting to connect to LYWSD02 device...
LYWSD02 device connected!
Updating time...
Setting temperature units to Celsius...
BLE transmit returned error: 9 (write_failed)
Disconnecting...
`)
}

func (s *SyncCommandSuite) TestConnectionLostIsReportedDistinctly() {
	// GOAL: Verify link loss mid-sequence prints the connection-lost message for each remaining step

	release := s.Peripheral.HoldReads(testutils.ClockTimeChar)
	defer release()

	peripheral := s.Peripheral
	go func() {
		if testutils.WaitFor(s.TestTimeout, func() bool { return len(peripheral.Writes()) > 0 }) {
			peripheral.DropLink()
		}
	}()

	res := s.Execute("C")

	s.Equal(0, res.Code)
	testutils.NewTextAsserter(s.T()).Assert(res.Stdout, `
Attempting to connect to LYWSD02 device...
LYWSD02 device connected!
Updating time...
BLE connection lost!
Setting temperature units to Celsius...
BLE connection lost!
Disconnecting...
`)
}

func (s *SyncCommandSuite) TestConfigFileSuppliesUnitsAndFormat() {
	path := filepath.Join(s.T().TempDir(), "lywsd02.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("units: fahrenheit\ntime_format: cts\n"), 0o600))

	res := s.Execute("--config", path)

	s.Equal(0, res.Code)
	s.Contains(res.Stdout, "Setting temperature units to Fahrenheit...")
	s.Len(s.writesTo("2a2b"), 1, "cts layout MUST write the Current Time characteristic")
	s.Empty(s.writesTo(testutils.ClockTimeChar))
	s.Equal([][]byte{{0x01}}, s.writesTo(testutils.ClockUnitsChar))
}

func (s *SyncCommandSuite) TestArgumentOverridesConfigUnits() {
	path := filepath.Join(s.T().TempDir(), "lywsd02.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("units: fahrenheit\n"), 0o600))

	res := s.Execute("--config", path, "C")

	s.Equal(0, res.Code)
	s.Equal([][]byte{{0xFF}}, s.writesTo(testutils.ClockUnitsChar))
}

func (s *SyncCommandSuite) TestNameFilterSkipsOtherClocks() {
	res := s.Execute("--name", "Bedroom")

	s.Equal(0, res.Code)
	s.Contains(res.Stderr, "error: Failed to connect to LYWSD02 device.")
	s.Zero(s.Radio.DialCount())
}

func (s *SyncCommandSuite) TestTraceFlagExportsSpans() {
	res := s.Execute("--trace")

	s.Equal(0, res.Code)
	s.Contains(res.Stderr, `"Name": "session.Connect"`)
	s.Contains(res.Stderr, `"Name": "session.Send"`)
	s.Contains(res.Stdout, "LYWSD02 device connected!")
}
