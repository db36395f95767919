package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler hosts the periodic maintenance jobs: the hourly rate-limiter
// dead-key sweep and the opt-in daily retention sweep.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logger,
	}
}

// Add registers fn under a cron spec. Failures are logged, never fatal.
func (s *Scheduler) Add(spec, name string, fn func() error) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug("scheduled job triggered", zap.String("job", name))
		if err := fn(); err != nil {
			s.logger.Warn("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
