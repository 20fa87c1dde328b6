package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/finance"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/jobs"
)

const (
	reminderCachePattern = "reminders:*"
	reminderJobType      = "fee_reminders"
)

// Reminder dispatch results, also used as metric labels.
const (
	ReminderResultSent      = "sent"
	ReminderResultFailed    = "failed"
	ReminderResultNoPending = "no_pending"
)

type outstandingFeeStore interface {
	ListOutstanding(ctx context.Context, filter models.OutstandingFeeFilter) ([]models.Fee, error)
}

type guardianLinkStore interface {
	ListResponsibleByStudents(ctx context.Context, studentIDs []string) ([]models.GuardianLink, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// NotificationSink delivers one reminder. An empty id means the message was
// not accepted.
type NotificationSink interface {
	Send(ctx context.Context, notification models.Notification) (string, error)
}

type notificationWriter interface {
	Create(ctx context.Context, notification *models.Notification) (string, error)
}

// OutboxSink stores reminders in the notifications outbox for the delivery
// transport to pick up.
type OutboxSink struct {
	repo notificationWriter
}

// NewOutboxSink wraps a notification repository.
func NewOutboxSink(repo notificationWriter) *OutboxSink {
	return &OutboxSink{repo: repo}
}

// Send implements NotificationSink.
func (s *OutboxSink) Send(ctx context.Context, notification models.Notification) (string, error) {
	return s.repo.Create(ctx, &notification)
}

// ReminderServiceConfig holds reminder defaults.
type ReminderServiceConfig struct {
	WindowDays  int
	OverdueOnly bool
	CacheTTL    time.Duration
}

// ReminderService builds guardian reminder digests and dispatches them.
type ReminderService struct {
	fees      outstandingFeeStore
	waivers   approvedWaiverStore
	guardians guardianLinkStore
	sink      NotificationSink
	queue     jobDispatcher
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ReminderServiceConfig
	now       func() time.Time
}

// NewReminderService constructs the service. queue may be nil, in which case
// DispatchAsync is unavailable.
func NewReminderService(fees outstandingFeeStore, waivers approvedWaiverStore, guardians guardianLinkStore, sink NotificationSink, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg ReminderServiceConfig) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WindowDays < 0 {
		cfg.WindowDays = 0
	}
	return &ReminderService{
		fees:      fees,
		waivers:   waivers,
		guardians: guardians,
		sink:      sink,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetDispatcher attaches the async dispatch queue.
func (s *ReminderService) SetDispatcher(queue jobDispatcher) {
	s.queue = queue
}

// Options fills unset reminder parameters from configuration.
func (s *ReminderService) Options(asOf time.Time, windowDays *int, overdueOnly *bool) models.ReminderOptions {
	opts := models.ReminderOptions{
		AsOf:        asOf,
		WindowDays:  s.cfg.WindowDays,
		OverdueOnly: s.cfg.OverdueOnly,
	}
	if opts.AsOf.IsZero() {
		opts.AsOf = s.now()
	}
	opts.AsOf = finance.Date(opts.AsOf)
	if windowDays != nil && *windowDays >= 0 {
		opts.WindowDays = *windowDays
	}
	if overdueOnly != nil {
		opts.OverdueOnly = *overdueOnly
	}
	return opts
}

// Build assembles the reminder digest for opts.
func (s *ReminderService) Build(ctx context.Context, opts models.ReminderOptions) (*models.ReminderDigest, error) {
	if opts.WindowDays < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "days must not be negative")
	}
	opts.AsOf = finance.Date(opts.AsOf)
	key := reminderCacheKey(opts)

	var cached models.ReminderDigest
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	fees, err := s.fees.ListOutstanding(ctx, models.OutstandingFeeFilter{
		AsOf:        opts.AsOf,
		WindowDays:  opts.WindowDays,
		OverdueOnly: opts.OverdueOnly,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrFetchFailure.Code, appErrors.ErrFetchFailure.Status, "failed to load outstanding fees")
	}
	studentIDs := uniqueStudentIDs(fees)

	var waivers []models.FeeWaiver
	var links []models.GuardianLink
	if len(studentIDs) > 0 {
		if waivers, err = s.waivers.ListApprovedByStudents(ctx, studentIDs); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrFetchFailure.Code, appErrors.ErrFetchFailure.Status, "failed to load waivers")
		}
		if links, err = s.guardians.ListResponsibleByStudents(ctx, studentIDs); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrFetchFailure.Code, appErrors.ErrFetchFailure.Status, "failed to load guardians")
		}
	}

	digest := finance.BuildReminders(opts, fees, waivers, links)
	if len(digest.Unassigned) > 0 {
		s.logger.Warn("fees without a responsible guardian", zap.Int("count", len(digest.Unassigned)))
	}
	s.cache.Set(ctx, key, digest, s.cfg.CacheTTL)
	return &digest, nil
}

// Dispatch sends one notification per guardian bundle. Bundles without
// pending items are counted but not sent. Failed deliveries are logged and
// not retried.
func (s *ReminderService) Dispatch(ctx context.Context, digest *models.ReminderDigest) (*models.ReminderDispatchResult, error) {
	if digest == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "digest is required")
	}
	if s.sink == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "notification sink not configured")
	}
	result := &models.ReminderDispatchResult{}
	for _, bundle := range digest.Bundles {
		if bundle.NoPendingItems {
			result.NoPending++
			s.metrics.RecordReminder(ReminderResultNoPending)
			continue
		}
		payload, err := json.Marshal(bundle)
		if err != nil {
			s.recordFailure(result, bundle.Guardian.ID, err)
			continue
		}
		id, err := s.sink.Send(ctx, models.Notification{
			Type:          models.NotificationTypeFeeReminder,
			RecipientID:   bundle.Guardian.ID,
			RecipientType: models.RecipientTypeGuardian,
			Payload:       payload,
			CreatedAt:     s.now(),
		})
		if err == nil && strings.TrimSpace(id) == "" {
			err = fmt.Errorf("sink returned no notification id")
		}
		if err != nil {
			s.recordFailure(result, bundle.Guardian.ID, err)
			continue
		}
		result.Sent++
		s.metrics.RecordReminder(ReminderResultSent)
	}
	s.logger.Info("reminders dispatched",
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("no_pending", result.NoPending),
	)
	return result, nil
}

func (s *ReminderService) recordFailure(result *models.ReminderDispatchResult, guardianID string, err error) {
	result.Failed++
	result.FailedIDs = append(result.FailedIDs, guardianID)
	s.metrics.RecordReminder(ReminderResultFailed)
	s.logger.Warn("reminder delivery failed", zap.String("guardian_id", guardianID), zap.Error(err))
}

// BuildAndDispatch is the synchronous path used by the scheduler and CLI.
func (s *ReminderService) BuildAndDispatch(ctx context.Context, opts models.ReminderOptions) (*models.ReminderDispatchResult, error) {
	digest, err := s.Build(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s.Dispatch(ctx, digest)
}

// DispatchAsync queues a build-and-dispatch job and returns its id.
func (s *ReminderService) DispatchAsync(opts models.ReminderOptions) (string, error) {
	if s.queue == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "reminder queue not configured")
	}
	jobID := uuid.NewString()
	if err := s.queue.Enqueue(jobs.Job{ID: jobID, Type: reminderJobType, Payload: opts}); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			return "", appErrors.Wrap(err, appErrors.ErrDispatchBusy.Code, appErrors.ErrDispatchBusy.Status, appErrors.ErrDispatchBusy.Message)
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue reminder dispatch")
	}
	return jobID, nil
}

// HandleJob processes a queued dispatch job.
func (s *ReminderService) HandleJob(ctx context.Context, job jobs.Job) error {
	opts, ok := job.Payload.(models.ReminderOptions)
	if !ok {
		return fmt.Errorf("unexpected reminder job payload %T", job.Payload)
	}
	_, err := s.BuildAndDispatch(ctx, opts)
	return err
}

func reminderCacheKey(opts models.ReminderOptions) string {
	return fmt.Sprintf("reminders:%s:%d:%t", opts.AsOf.Format("2006-01-02"), opts.WindowDays, opts.OverdueOnly)
}

func uniqueStudentIDs(fees []models.Fee) []string {
	seen := make(map[string]struct{}, len(fees))
	ids := make([]string, 0, len(fees))
	for _, fee := range fees {
		if _, ok := seen[fee.StudentID]; ok {
			continue
		}
		seen[fee.StudentID] = struct{}{}
		ids = append(ids, fee.StudentID)
	}
	return ids
}
