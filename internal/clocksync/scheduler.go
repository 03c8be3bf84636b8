package clocksync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler repeats a job on a cron expression or a fixed interval. A tick
// that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

func NewScheduler(logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	cronLogger := cron.PrintfLogger(logger.WithField("component", "scheduler"))
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		logger: logger,
	}
}

// ParseSchedule accepts a standard 5-field cron expression, a descriptor such
// as "@daily", or a positive Go duration.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(spec); err == nil {
		return sched, nil
	}

	d, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", spec)
	}
	if d < time.Second {
		return nil, fmt.Errorf("interval must be at least 1s: %q", spec)
	}
	return cron.Every(d), nil
}

// Every registers job on spec. job receives a context cancelled by Stop.
func (s *Scheduler) Every(spec string, name string, job func(ctx context.Context) error) error {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			s.logger.WithField("job", name).Debug("Scheduler stopped, skipping job")
			return
		}

		start := time.Now()
		log := s.logger.WithField("job", name)
		if err := job(ctx); err != nil {
			log.WithFields(logrus.Fields{"error": err, "duration": time.Since(start)}).Warn("Scheduled job failed")
			return
		}
		log.WithField("duration", time.Since(start)).Info("Scheduled job completed")
	}))

	s.logger.WithFields(logrus.Fields{"job": name, "schedule": spec}).Info("Job scheduled")
	return nil
}

// Start begins firing jobs until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
}

// Next returns when the scheduled jobs fire next; zero if none are scheduled.
// Before Start it is computed from the current time.
func (s *Scheduler) Next() time.Time {
	now := time.Now()
	var next time.Time
	for _, e := range s.cron.Entries() {
		at := e.Next
		if at.IsZero() {
			at = e.Schedule.Next(now)
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	return next
}
