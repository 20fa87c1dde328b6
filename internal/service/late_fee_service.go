package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/finance"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/logger"
	"github.com/noah-isme/sma-fee-ledger/pkg/middleware/requestid"
)

const lateFeeLockKey = "locks:late-fee-batch"

type lateFeeFeeStore interface {
	ListOverdue(ctx context.Context, asOf time.Time, feeType string) ([]models.Fee, error)
	ListInstallmentsByFees(ctx context.Context, feeIDs []string) (map[string][]models.Installment, error)
	ApplyLateFee(ctx context.Context, charge models.LateFeeCharge) (bool, error)
	UpdateStatus(ctx context.Context, feeID string, status models.FeeStatus) error
}

type lateFeePolicyStore interface {
	ListActive(ctx context.Context) ([]models.LateFeePolicy, error)
}

type approvedWaiverStore interface {
	ListApprovedByStudents(ctx context.Context, studentIDs []string) ([]models.FeeWaiver, error)
}

type batchLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error)
}

// LateFeeService runs the late-fee batch: it scans overdue fees, resolves the
// effective policy per fee type and charges at most once per fee per day.
type LateFeeService struct {
	fees     lateFeeFeeStore
	policies lateFeePolicyStore
	waivers  approvedWaiverStore
	audit    auditLogger
	calc     finance.LateFeeCalculator
	lock     batchLocker
	lockTTL  time.Duration
	metrics  *MetricsService
	cache    *CacheService
	logger   *zap.Logger
	now      func() time.Time
}

// LateFeeServiceOption configures the service.
type LateFeeServiceOption func(*LateFeeService)

// WithLateFeeCalculator swaps the penalty strategy.
func WithLateFeeCalculator(calc finance.LateFeeCalculator) LateFeeServiceOption {
	return func(s *LateFeeService) {
		if calc != nil {
			s.calc = calc
		}
	}
}

// WithBatchLock serialises live runs; ttl bounds a crashed holder.
func WithBatchLock(lock batchLocker, ttl time.Duration) LateFeeServiceOption {
	return func(s *LateFeeService) {
		if lock != nil {
			s.lock = lock
		}
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithLateFeeMetrics records run outcomes.
func WithLateFeeMetrics(metrics *MetricsService) LateFeeServiceOption {
	return func(s *LateFeeService) { s.metrics = metrics }
}

// WithLateFeeCache invalidates cached reminder digests after live runs.
func WithLateFeeCache(cache *CacheService) LateFeeServiceOption {
	return func(s *LateFeeService) { s.cache = cache }
}

// WithLateFeeClock overrides the default asOf source.
func WithLateFeeClock(now func() time.Time) LateFeeServiceOption {
	return func(s *LateFeeService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewLateFeeService constructs the batch service.
func NewLateFeeService(fees lateFeeFeeStore, policies lateFeePolicyStore, waivers approvedWaiverStore, audit auditLogger, log *zap.Logger, opts ...LateFeeServiceOption) *LateFeeService {
	if log == nil {
		log = zap.NewNop()
	}
	svc := &LateFeeService{
		fees:     fees,
		policies: policies,
		waivers:  waivers,
		audit:    audit,
		calc:     finance.StandardCalculator{},
		lock:     NewBatchLock(nil, log),
		lockTTL:  30 * time.Minute,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// batchInputs is everything loaded before the per-fee loop.
type batchInputs struct {
	fees         []models.Fee
	resolver     *finance.PolicyResolver
	waivers      map[string][]models.FeeWaiver
	installments map[string][]models.Installment
}

// Run executes one batch. The report is always returned; the error is set for
// batch-level failures (fetch failure, run already in progress). Dry runs
// never write and do not take the lock.
func (s *LateFeeService) Run(ctx context.Context, opts models.LateFeeRunOptions) (*models.LateFeeBatchReport, error) {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = finance.Date(asOf)

	report := &models.LateFeeBatchReport{
		RunID:        uuid.NewString(),
		AsOf:         asOf,
		DryRun:       opts.DryRun,
		FeeType:      opts.FeeType,
		Status:       models.BatchStatusCompleted,
		TotalCharged: decimal.Zero,
		Lines:        make([]models.LateFeeBatchLine, 0),
		StartedAt:    time.Now().UTC(),
	}
	log := logger.ForJob(s.logger, "late-fees", report.RunID).With(
		zap.Time("as_of", asOf),
		zap.Bool("dry_run", opts.DryRun),
		zap.String("fee_type", opts.FeeType),
	)
	if reqID := requestid.FromContext(ctx); reqID != "" {
		log = log.With(zap.String("request_id", reqID))
	}

	if !opts.DryRun {
		release, ok, err := s.lock.Acquire(ctx, lateFeeLockKey, s.lockTTL)
		if err != nil {
			return s.fail(report, log, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire late fee lock"))
		}
		if !ok {
			return s.fail(report, log, appErrors.ErrBatchInProgress)
		}
		defer release()
	}

	inputs, err := s.load(ctx, asOf, opts.FeeType)
	if err != nil {
		return s.fail(report, log, err)
	}
	log.Info("late fee batch started", zap.Int("candidates", len(inputs.fees)))

	for _, fee := range inputs.fees {
		if ctx.Err() != nil {
			return s.fail(report, log, appErrors.Wrap(ctx.Err(), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "late fee batch interrupted"))
		}
		report.Processed++
		line, err := s.processFee(ctx, fee, inputs, asOf, opts.DryRun, report.RunID)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, models.LateFeeBatchFailure{FeeID: fee.ID, Error: err.Error()})
			log.Warn("late fee record failed", zap.String("fee_id", fee.ID), zap.Error(err))
			continue
		}
		report.Lines = append(report.Lines, line)
		switch line.Outcome {
		case models.BatchOutcomeCharged, models.BatchOutcomeProjected:
			report.Charged++
			report.TotalCharged = report.TotalCharged.Add(line.Charge)
		default:
			report.Skipped++
		}
	}

	report.FinishedAt = time.Now().UTC()
	s.metrics.ObserveLateFeeRun(report)
	if !opts.DryRun && report.Charged > 0 {
		s.cache.Invalidate(ctx, reminderCachePattern)
	}
	log.Info("late fee batch finished",
		zap.Int("processed", report.Processed),
		zap.Int("charged", report.Charged),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.String("total", report.TotalCharged.StringFixed(2)),
	)
	return report, nil
}

func (s *LateFeeService) load(ctx context.Context, asOf time.Time, feeType string) (*batchInputs, error) {
	fetchFailure := func(err error, what string) error {
		return appErrors.Wrap(err, appErrors.ErrFetchFailure.Code, appErrors.ErrFetchFailure.Status, "failed to load "+what)
	}

	start := time.Now()
	fees, err := s.fees.ListOverdue(ctx, asOf, feeType)
	s.metrics.ObserveDBQuery("late_fee_overdue", time.Since(start))
	if err != nil {
		return nil, fetchFailure(err, "overdue fees")
	}
	policies, err := s.policies.ListActive(ctx)
	if err != nil {
		return nil, fetchFailure(err, "late fee policies")
	}

	studentIDs := make([]string, 0, len(fees))
	feeIDs := make([]string, 0, len(fees))
	seen := make(map[string]struct{}, len(fees))
	for _, fee := range fees {
		feeIDs = append(feeIDs, fee.ID)
		if _, ok := seen[fee.StudentID]; !ok {
			seen[fee.StudentID] = struct{}{}
			studentIDs = append(studentIDs, fee.StudentID)
		}
	}

	waivers, err := s.waivers.ListApprovedByStudents(ctx, studentIDs)
	if err != nil {
		return nil, fetchFailure(err, "waivers")
	}
	byStudent := make(map[string][]models.FeeWaiver, len(studentIDs))
	for _, w := range waivers {
		byStudent[w.StudentID] = append(byStudent[w.StudentID], w)
	}

	installments, err := s.fees.ListInstallmentsByFees(ctx, feeIDs)
	if err != nil {
		return nil, fetchFailure(err, "installments")
	}

	return &batchInputs{
		fees:         fees,
		resolver:     finance.NewPolicyResolver(policies),
		waivers:      byStudent,
		installments: installments,
	}, nil
}

// processFee evaluates and, on live runs, charges one fee. Panics are turned
// into record failures so one bad row cannot stop the batch.
func (s *LateFeeService) processFee(ctx context.Context, fee models.Fee, in *batchInputs, asOf time.Time, dryRun bool, runID string) (line models.LateFeeBatchLine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = appErrors.Clone(appErrors.ErrRecordProcessing, fmt.Sprintf("fee %s: panic: %v", fee.ID, r))
		}
	}()
	recordFailure := func(cause error) error {
		return appErrors.Wrap(cause, appErrors.ErrRecordProcessing.Code, appErrors.ErrRecordProcessing.Status, "fee "+fee.ID)
	}

	line = models.LateFeeBatchLine{
		FeeID:     fee.ID,
		StudentID: fee.StudentID,
		FeeType:   fee.FeeTypeName(),
		Charge:    decimal.Zero,
	}
	if fee.DueDate.IsZero() {
		return line, recordFailure(fmt.Errorf("missing due date"))
	}

	ledger, err := finance.NewLedger(fee, in.waivers[fee.StudentID], in.installments[fee.ID])
	if err != nil {
		return line, recordFailure(err)
	}
	// Stored status lags waivers whose validity window opened after approval.
	if ledger.RefreshStatus(asOf) && !dryRun {
		if err := s.fees.UpdateStatus(ctx, fee.ID, ledger.Fee.Status); err != nil {
			return line, recordFailure(err)
		}
	}
	if !ledger.Remaining(asOf).IsPositive() {
		line.Outcome = models.BatchOutcomeSettled
		return line, nil
	}

	policy := in.resolver.Resolve(fee.FeeType)
	if policy == nil {
		line.Outcome = models.BatchOutcomeNoPolicy
		return line, nil
	}
	line.PolicyID = policy.ID
	if err := finance.ValidatePolicy(*policy); err != nil {
		return line, recordFailure(err)
	}
	if !s.calc.Applicable(*policy, fee.DueDate, asOf) {
		line.Outcome = models.BatchOutcomeInGrace
		return line, nil
	}

	line.DaysOverdue = finance.DaysOverdue(fee.DueDate, asOf)
	line.BaseAmount = ledger.NetAmount(asOf)
	charge := s.calc.Compute(*policy, line.BaseAmount, line.DaysOverdue)
	if !charge.IsPositive() {
		line.Outcome = models.BatchOutcomeZeroCharge
		return line, nil
	}
	line.Charge = charge

	if fee.LastLateFeeOn != nil && !finance.Date(*fee.LastLateFeeOn).Before(asOf) {
		line.Outcome = models.BatchOutcomeDuplicate
		return line, nil
	}
	if dryRun {
		line.Outcome = models.BatchOutcomeProjected
		return line, nil
	}

	apply := models.LateFeeCharge{FeeID: fee.ID, Amount: charge, AppliedOn: asOf}
	if target, ok := ledger.Plan.LateFeeTarget(asOf); ok {
		seq := target.Sequence
		apply.InstallmentSequence = &seq
	}
	applied, err := s.fees.ApplyLateFee(ctx, apply)
	if err != nil {
		return line, recordFailure(err)
	}
	if !applied {
		line.Outcome = models.BatchOutcomeDuplicate
		return line, nil
	}
	line.Outcome = models.BatchOutcomeCharged

	feeID := fee.ID
	emitAudit(ctx, s.audit, s.logger, "late-fee-batch", &models.AuditLog{
		Action:     models.AuditActionLateFeeApplied,
		Resource:   "fee",
		ResourceID: &feeID,
		NewValues: auditPayload(map[string]interface{}{
			"fee_id":       fee.ID,
			"amount":       charge.StringFixed(2),
			"days_overdue": line.DaysOverdue,
			"policy_id":    policy.ID,
			"run_id":       runID,
		}),
	})
	return line, nil
}

func (s *LateFeeService) fail(report *models.LateFeeBatchReport, log *zap.Logger, err error) (*models.LateFeeBatchReport, error) {
	report.Status = models.BatchStatusFailed
	report.Error = err.Error()
	report.FinishedAt = time.Now().UTC()
	s.metrics.ObserveLateFeeRun(report)
	log.Error("late fee batch failed", zap.Error(err))
	return report, err
}
