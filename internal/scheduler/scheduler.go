package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Specs holds the cron expression per job. Empty disables the job.
type Specs struct {
	ExpirePurchases string
	ExpireGrants    string
	TrialReminders  string
}

type Scheduler struct {
	cron  *cron.Cron
	jobs  *Jobs
	specs Specs
	log   *zap.Logger
}

func New(jobs *Jobs, specs Specs, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron:  cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs:  jobs,
		specs: specs,
		log:   log,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	for _, e := range []struct{ name, spec string }{
		{JobExpirePurchases, s.specs.ExpirePurchases},
		{JobExpireGrants, s.specs.ExpireGrants},
		{JobTrialReminders, s.specs.TrialReminders},
	} {
		if e.spec == "" {
			s.log.Info("job disabled", zap.String("job", e.name))
			continue
		}
		if _, err := s.cron.AddFunc(e.spec, s.jobs.runner(e.name)); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", e.name, e.spec, err)
		}
		s.log.Info("job scheduled", zap.String("job", e.name), zap.String("schedule", e.spec))
	}
	s.cron.Start()
	return nil
}

// Stop stops scheduling; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
