package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/finance"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

type lateFeeRunner interface {
	Run(ctx context.Context, opts models.LateFeeRunOptions) (*models.LateFeeBatchReport, error)
}

type reminderDispatcher interface {
	Options(asOf time.Time, windowDays *int, overdueOnly *bool) models.ReminderOptions
	BuildAndDispatch(ctx context.Context, opts models.ReminderOptions) (*models.ReminderDispatchResult, error)
}

type exportCleaner interface {
	Cleanup(ttl time.Duration) ([]string, error)
}

// SchedulerConfig controls when the daily jobs fire.
type SchedulerConfig struct {
	RunHour      int
	PollInterval time.Duration
}

// Scheduler runs the late-fee batch, reminder dispatch and export cleanup
// once per UTC day, after RunHour. A late-fee run that fails at batch level is
// retried on the next poll until it succeeds for the day.
type Scheduler struct {
	lateFees  lateFeeRunner
	reminders reminderDispatcher
	exports   exportCleaner
	logger    *zap.Logger
	cfg       SchedulerConfig
	now       func() time.Time

	mu             sync.Mutex
	running        bool
	lateFeesOn     time.Time
	housekeepingOn time.Time
}

// NewScheduler constructs a scheduler. reminders and exports may be nil.
func NewScheduler(lateFees lateFeeRunner, reminders reminderDispatcher, exports exportCleaner, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.RunHour < 0 || cfg.RunHour > 23 {
		cfg.RunHour = 1
	}
	return &Scheduler{
		lateFees:  lateFees,
		reminders: reminders,
		exports:   exports,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start boots the polling goroutine; it stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Tick runs the daily jobs if they are due and reports whether they ran.
func (s *Scheduler) Tick(ctx context.Context) bool {
	now := s.now()
	today := finance.Date(now)

	s.mu.Lock()
	needLateFees := s.lateFeesOn.Before(today)
	needHousekeeping := s.housekeepingOn.Before(today)
	if now.Hour() < s.cfg.RunHour || s.running || (!needLateFees && !needHousekeeping) {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log := s.logger.With(zap.Time("as_of", today))
	if needLateFees {
		if s.runLateFees(ctx, today, log) {
			s.mu.Lock()
			s.lateFeesOn = today
			s.mu.Unlock()
		}
	}
	if !needHousekeeping {
		return true
	}
	s.mu.Lock()
	s.housekeepingOn = today
	s.mu.Unlock()

	if s.reminders != nil {
		result, err := s.reminders.BuildAndDispatch(ctx, s.reminders.Options(today, nil, nil))
		if err != nil {
			log.Error("scheduled reminder dispatch failed", zap.Error(err))
		} else {
			log.Info("scheduled reminders dispatched", zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
		}
	}
	if s.exports != nil {
		removed, err := s.exports.Cleanup(0)
		if err != nil {
			log.Warn("export cleanup failed", zap.Error(err))
		} else if len(removed) > 0 {
			log.Info("expired exports removed", zap.Int("count", len(removed)))
		}
	}
	return true
}

func (s *Scheduler) runLateFees(ctx context.Context, today time.Time, log *zap.Logger) bool {
	if s.lateFees == nil {
		return true
	}
	report, err := s.lateFees.Run(ctx, models.LateFeeRunOptions{AsOf: today})
	if err != nil {
		log.Error("scheduled late fee run failed, retrying on next poll", zap.Error(err))
		return false
	}
	log.Info("scheduled late fee run finished", zap.Int("charged", report.Charged), zap.Int("failed", report.Failed))
	return true
}
