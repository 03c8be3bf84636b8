package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// Identity and GATT layout of the default fake clock.
const (
	ClockName    = "LYWSD02"
	ClockAddress = "e7:2e:01:02:03:04"

	ClockService    = "ebe0ccb0-7a0a-4b0c-8a1a-6ff2997da3a6"
	ClockTimeChar   = "ebe0ccb7-7a0a-4b0c-8a1a-6ff2997da3a6"
	ClockUnitsChar  = "ebe0ccbe-7a0a-4b0c-8a1a-6ff2997da3a6"
	ClockSensorChar = "ebe0ccc1-7a0a-4b0c-8a1a-6ff2997da3a6"
	ClockBattery    = "ebe0ccc4-7a0a-4b0c-8a1a-6ff2997da3a6"
)

// DefaultSensorReading is 23.45 °C at 45 % relative humidity.
var DefaultSensorReading = []byte{0x29, 0x09, 45}

// NewClockPeripheral returns a fake LYWSD02 showing Celsius with 77 % battery
// that publishes DefaultSensorReading on subscribe.
func NewClockPeripheral() *FakePeripheral {
	return NewFakePeripheral(ClockName, ClockAddress, ClockService).
		SetValue(ClockTimeChar, []byte{0, 0, 0, 0, 0}).
		SetValue(ClockUnitsChar, []byte{0xFF}).
		SetValue(ClockBattery, []byte{77}).
		NotifyOnSubscribe(ClockSensorChar, DefaultSensorReading)
}

// MockRadioSuite provides a fake radio with one clock peripheral per test.
//
//	type SyncSuite struct {
//	    testutils.MockRadioSuite
//	}
//
//	func (s *SyncSuite) SetupTest() {
//	    s.MockRadioSuite.SetupTest()
//	    s.Peripheral.HoldReads(testutils.ClockTimeChar)
//	}
type MockRadioSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	// TestTimeout bounds waits in tests; session timeouts are much shorter.
	TestTimeout time.Duration

	Radio      *FakeRadio
	Peripheral *FakePeripheral
}

// SetupSuite is called once before all tests in the suite.
func (s *MockRadioSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
	s.Logger.Debug("Suite setup completed")
}

// SetupTest builds a fresh radio advertising the default clock.
func (s *MockRadioSuite) SetupTest() {
	s.Helper.Hook.Reset()
	s.Peripheral = NewClockPeripheral()
	s.Radio = NewFakeRadio().AddPeripheral(s.Peripheral)
	s.Logger.Debug("Test setup completed - ready for execution")
}

func (s *MockRadioSuite) TearDownTest() {
	if s.Peripheral != nil {
		s.Peripheral.DropLink()
	}
	s.Radio = nil
	s.Peripheral = nil
}

// WaitUntil fails the test unless cond holds within TestTimeout.
func (s *MockRadioSuite) WaitUntil(cond func() bool, msgAndArgs ...interface{}) {
	s.Require().True(WaitFor(s.TestTimeout, cond), msgAndArgs...)
}
