package main

import (
	"bytes"
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/testutils"
	"github.com/srg/lywsd02/pkg/config"
)

// CommandTestSuite extends MockRadioSuite with command execution helpers.
// All cmd/lywsd02 test suites should embed this instead of MockRadioSuite.
type CommandTestSuite struct {
	testutils.MockRadioSuite

	originalNewRadio func(*config.Config, *logrus.Logger) device.Radio
}

// CommandResult is what one CLI invocation produced.
type CommandResult struct {
	Stdout string
	Stderr string
	Code   int
}

func (s *CommandTestSuite) SetupSuite() {
	s.MockRadioSuite.SetupSuite()
	s.originalNewRadio = newRadio
}

func (s *CommandTestSuite) TearDownSuite() {
	newRadio = s.originalNewRadio
}

// SetupTest routes the CLI to this test's fake radio.
func (s *CommandTestSuite) SetupTest() {
	s.MockRadioSuite.SetupTest()
	radio := s.Radio
	newRadio = func(*config.Config, *logrus.Logger) device.Radio { return radio }
}

// Execute runs the CLI with args, short session timeouts unless args set them.
func (s *CommandTestSuite) Execute(args ...string) CommandResult {
	return s.ExecuteContext(context.Background(), args...)
}

// ExecuteContext runs the CLI with args under ctx.
func (s *CommandTestSuite) ExecuteContext(ctx context.Context, args ...string) CommandResult {
	full := append([]string{"--connect-timeout=500ms", "--response-timeout=300ms"}, args...)

	var stdout, stderr bytes.Buffer
	done := make(chan int, 1)
	go func() { done <- execute(ctx, full, &stdout, &stderr) }()

	select {
	case code := <-done:
		return CommandResult{Stdout: stdout.String(), Stderr: stderr.String(), Code: code}
	case <-time.After(s.TestTimeout):
		s.FailNow("command did not finish", "args: %v", args)
		return CommandResult{}
	}
}
