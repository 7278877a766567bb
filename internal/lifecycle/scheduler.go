package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wolfman30/booking-platform/pkg/logging"
)

// DefaultSchedule runs the jobs every five minutes.
const DefaultSchedule = "@every 5m"

// Scheduler runs Jobs on a cron spec. Overlapping runs of the same job are
// skipped rather than queued.
type Scheduler struct {
	cron    *cron.Cron
	jobs    *Jobs
	timeout time.Duration
	logger  *logging.Logger
}

// NewScheduler registers the expiry and reminder jobs under spec (standard
// five-field cron or a descriptor such as "@every 1m").
func NewScheduler(jobs *Jobs, spec string, loc *time.Location, logger *logging.Logger) (*Scheduler, error) {
	if jobs == nil {
		panic("lifecycle: jobs required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:    jobs,
		timeout: time.Minute,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, s.run("expire_pending", jobs.ExpirePending)); err != nil {
		return nil, fmt.Errorf("lifecycle: schedule %q: %w", spec, err)
	}
	if _, err := s.cron.AddFunc(spec, s.run("send_reminders", jobs.SendReminders)); err != nil {
		return nil, fmt.Errorf("lifecycle: schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run(name string, job func(context.Context) (int, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		n, err := job(ctx)
		if err != nil {
			s.logger.Error("lifecycle job failed", "job", name, "processed", n, "error", err)
			return
		}
		s.logger.Debug("lifecycle job finished", "job", name, "processed", n)
	}
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("lifecycle scheduler started", "entries", len(s.cron.Entries()))
}

// Stop prevents new runs and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("lifecycle scheduler stop timed out")
	}
}

// RunOnce runs every job immediately, used by the operator CLI.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if _, err := s.jobs.ExpirePending(ctx); err != nil {
		return err
	}
	_, err := s.jobs.SendReminders(ctx)
	return err
}
