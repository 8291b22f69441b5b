package release

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/refit/pkg/log"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Never disables scheduled checks
const Never = "@never"

// Job is run on every scheduled tick
type Job func(ctx context.Context) error

// Scheduler runs a release check on a cron schedule
type Scheduler struct {
	spec   string
	job    Job
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewScheduler creates a scheduler for spec. An empty spec or "@never"
// yields a scheduler whose Start is a no-op.
func NewScheduler(spec string, job Job) (*Scheduler, error) {
	s := &Scheduler{
		spec:   spec,
		job:    job,
		logger: log.WithComponent("release-scheduler"),
	}
	if !s.Enabled() {
		return s, nil
	}

	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger}),
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("failed to parse check schedule %q: %w", spec, err)
	}
	return s, nil
}

// Enabled reports whether checks are scheduled
func (s *Scheduler) Enabled() bool {
	return s.spec != "" && s.spec != Never
}

// Start begins running checks until Stop
func (s *Scheduler) Start() {
	if !s.Enabled() {
		s.logger.Debug().Msg("Scheduled release checks disabled")
		return
	}
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Str("schedule", s.spec).Msg("Scheduled release checks started")
}

// Stop halts the schedule and waits for a running check to return
func (s *Scheduler) Stop() {
	if !s.Enabled() {
		return
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	if err := s.job(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Scheduled release check failed")
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
