package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"sjsage522/pricecompare/logger"
)

// Job is one refresh check
type Job func(ctx context.Context)

// Scheduler wraps robfig/cron and fires the refresh check on a fixed interval.
// A tick is skipped while the previous check is still running.
type Scheduler struct {
	cron *cron.Cron
	job  Job
	spec string
}

// New creates a Scheduler running job every interval
func New(job Job, interval time.Duration) *Scheduler {
	l := cronLogger{log: logger.ForScheduler()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		job:  job,
		spec: fmt.Sprintf("@every %s", interval),
	}
}

// Start registers the job and starts the scheduler. The first check runs
// immediately instead of waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	entryID, err := s.cron.AddFunc(s.spec, func() {
		s.job(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	logger.ForScheduler().Info().Str("spec", s.spec).Msg("Cron started")

	// Run immediately through the wrapped entry so it counts as running
	go s.cron.Entry(entryID).WrappedJob.Run()

	return nil
}

// Stop stops the scheduler and waits for a running check to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.ForScheduler().Info().Msg("Cron stopped")
}

// cronLogger adapts the zerolog wrapper to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
