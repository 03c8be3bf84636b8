// Package clocksync runs the connect, set time, set units, disconnect
// sequence against one LYWSD02 and reports the outcome of every step.
package clocksync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lywsd02/internal/device"
	"github.com/srg/lywsd02/internal/lywsd02"
	"github.com/srg/lywsd02/internal/session"
)

// Session is the part of session.Manager the sequence drives.
type Session interface {
	Connect(ctx context.Context, name string) error
	Send(ctx context.Context, cmd session.Command) (session.Reply, error)
	Disconnect(ctx context.Context) error
}

type Step string

const (
	StepConnect    Step = "connect"
	StepSetTime    Step = "set-time"
	StepSetUnits   Step = "set-units"
	StepDisconnect Step = "disconnect"
)

// Plan is everything one sync needs to know.
type Plan struct {
	// DeviceName restricts the connection to this advertised name; empty
	// accepts the first LYWSD02.
	DeviceName string
	Units      lywsd02.Units
	TimeFormat lywsd02.TimeFormat
	// Now defaults to time.Now.
	Now func() time.Time
}

func (p Plan) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// StepResult is the outcome of one step. Code is CodeNone on success.
type StepResult struct {
	Step     Step
	Code     device.Code
	Err      error
	Duration time.Duration
}

// ConnectionLost reports whether the step failed because the link went away.
func (r StepResult) ConnectionLost() bool {
	return r.Step != StepConnect && r.Code == device.CodeNotConnected
}

// Report lists the steps that ran, in order.
type Report struct {
	Steps      []StepResult
	DeviceTime *lywsd02.DeviceTime
}

// Step returns the result of step, if it ran.
func (r Report) Step(step Step) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}

// OK reports whether every step that ran succeeded.
func (r Report) OK() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return false
		}
	}
	return true
}

// ConnectionLost reports whether any step saw the link drop.
func (r Report) ConnectionLost() bool {
	for _, s := range r.Steps {
		if s.ConnectionLost() {
			return true
		}
	}
	return false
}

// Observer is told about each step as it starts and ends. Calls come from the
// goroutine running the sequence.
type Observer interface {
	StepStarted(step Step, plan Plan)
	StepFinished(result StepResult)
}

// Runner executes sync plans.
type Runner struct {
	logger   *logrus.Logger
	observer Observer
}

// NewRunner creates a Runner. observer may be nil.
func NewRunner(logger *logrus.Logger, observer Observer) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{logger: logger, observer: observer}
}

// Run connects, sets the time, sets the units when the plan asks for it, and
// disconnects. A failed step is logged and recorded and the sequence goes on;
// only a failed connect skips the commands. Disconnect is attempted exactly
// once on every path.
func (r *Runner) Run(ctx context.Context, sess Session, plan Plan) (report Report) {
	defer func() {
		// Teardown must run even when ctx is already cancelled.
		res := r.step(StepDisconnect, plan, func() error {
			return sess.Disconnect(context.WithoutCancel(ctx))
		})
		report.Steps = append(report.Steps, res)
	}()

	res := r.step(StepConnect, plan, func() error {
		return sess.Connect(ctx, plan.DeviceName)
	})
	report.Steps = append(report.Steps, res)
	if res.Err != nil {
		return report
	}

	res = r.step(StepSetTime, plan, func() error {
		cmd, err := lywsd02.SetCurrentTime(plan.now(), plan.TimeFormat)
		if err != nil {
			return err
		}
		reply, err := sess.Send(ctx, cmd)
		if err != nil {
			return err
		}
		if dt, ok := reply.Value.(lywsd02.DeviceTime); ok {
			report.DeviceTime = &dt
		}
		return nil
	})
	report.Steps = append(report.Steps, res)

	if plan.Units != lywsd02.UnitsUnchanged {
		res = r.step(StepSetUnits, plan, func() error {
			cmd, err := lywsd02.SetUnits(plan.Units)
			if err != nil {
				return err
			}
			_, err = sess.Send(ctx, cmd)
			return err
		})
		report.Steps = append(report.Steps, res)
	}

	return report
}

func (r *Runner) step(step Step, plan Plan, fn func() error) StepResult {
	if r.observer != nil {
		r.observer.StepStarted(step, plan)
	}

	start := time.Now()
	err := fn()
	res := StepResult{
		Step:     step,
		Code:     device.CodeOf(err),
		Err:      err,
		Duration: time.Since(start),
	}

	log := r.logger.WithFields(logrus.Fields{
		"step":     string(step),
		"code":     res.Code.String(),
		"duration": res.Duration,
	})
	switch {
	case err == nil:
		log.Info("Sync step completed")
	case res.ConnectionLost():
		log.WithField("error", err).Warn("BLE connection lost")
	default:
		log.WithField("error", err).Error("Sync step failed")
	}

	if r.observer != nil {
		r.observer.StepFinished(res)
	}
	return res
}
