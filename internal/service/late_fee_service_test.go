package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

var lateFeeAsOf = day(2024, time.January, 20)

func overdueFee(id, studentID string, feeType *string, base string) models.Fee {
	return models.Fee{
		ID:           id,
		StudentID:    studentID,
		FeeType:      feeType,
		Title:        "Tuition " + id,
		BaseAmount:   dec(base),
		PaidAmount:   decimal.Zero,
		DueDate:      day(2024, time.January, 10),
		Status:       models.FeeStatusUnpaid,
		LateFeeTotal: decimal.Zero,
	}
}

func percentagePolicy(id string, feeType *string, rate string, grace int) models.LateFeePolicy {
	return models.LateFeePolicy{
		ID:              id,
		FeeType:         feeType,
		GracePeriodDays: grace,
		Kind:            models.LateFeeKindPercentage,
		Rate:            dec(rate),
		Active:          true,
		UpdatedAt:       day(2024, time.January, 1),
	}
}

type fixedLock struct {
	ok  bool
	err error
}

func (l fixedLock) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func() {}, true, nil
}

func newLateFeeFixture(fees ...models.Fee) (*stubFeeStore, *stubPolicyStore, *stubWaiverStore, *stubAudit) {
	return newStubFeeStore(fees...),
		&stubPolicyStore{policies: []models.LateFeePolicy{percentagePolicy("pol-global", nil, "10", 5)}},
		newStubWaiverStore(),
		&stubAudit{}
}

func TestLateFeeRunChargesOverdueFees(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	metrics := NewMetricsService()
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop(), WithLateFeeMetrics(metrics))

	report, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.NoError(t, err)

	assert.Equal(t, models.BatchStatusCompleted, report.Status)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Charged)
	assert.True(t, dec("100.00").Equal(report.TotalCharged))
	require.Len(t, report.Lines, 1)
	assert.Equal(t, models.BatchOutcomeCharged, report.Lines[0].Outcome)
	assert.Equal(t, 10, report.Lines[0].DaysOverdue)
	assert.Equal(t, "pol-global", report.Lines[0].PolicyID)

	stored, _ := fees.FindByID(context.Background(), "fee-1")
	assert.True(t, dec("100.00").Equal(stored.LateFeeTotal))
	require.NotNil(t, stored.LastLateFeeOn)
	assert.Equal(t, lateFeeAsOf, *stored.LastLateFeeOn)
	assert.Equal(t, []string{models.AuditActionLateFeeApplied}, audit.actions())
	assert.Equal(t, uint64(1), metrics.Snapshot().LateFeeRuns)
}

func TestLateFeeDryRunIsIdempotent(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(
		overdueFee("fee-1", "stu-1", nil, "1000.00"),
		overdueFee("fee-2", "stu-2", nil, "500.00"),
	)
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop(), WithBatchLock(fixedLock{ok: false}, 0))

	first, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf, DryRun: true})
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf, DryRun: true})
	require.NoError(t, err)

	assert.True(t, dec("150.00").Equal(first.TotalCharged))
	assert.True(t, first.TotalCharged.Equal(second.TotalCharged))
	assert.Equal(t, first.Charged, second.Charged)
	for _, line := range first.Lines {
		assert.Equal(t, models.BatchOutcomeProjected, line.Outcome)
	}
	assert.Empty(t, fees.applied)
	assert.Empty(t, audit.logs)
}

func TestLateFeeRunChargesOncePerDay(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop())

	_, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.NoError(t, err)
	again, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.NoError(t, err)

	assert.Equal(t, 0, again.Charged)
	assert.Equal(t, 1, again.Skipped)
	assert.Equal(t, models.BatchOutcomeDuplicate, again.Lines[0].Outcome)
	assert.Len(t, fees.applied, 1)
}

func TestLateFeeRunSkipsGraceAndMissingPolicy(t *testing.T) {
	uniform := strPtr("uniform")
	tuition := strPtr("tuition")
	inGrace := overdueFee("fee-grace", "stu-1", tuition, "1000.00")
	inGrace.DueDate = day(2024, time.January, 15)
	fees := newStubFeeStore(inGrace, overdueFee("fee-uniform", "stu-2", uniform, "300.00"))
	policies := &stubPolicyStore{policies: []models.LateFeePolicy{percentagePolicy("pol-tuition", tuition, "10", 5)}}
	svc := NewLateFeeService(fees, policies, newStubWaiverStore(), &stubAudit{}, zap.NewNop())

	report, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.NoError(t, err)

	outcomes := map[string]models.BatchOutcome{}
	for _, line := range report.Lines {
		outcomes[line.FeeID] = line.Outcome
	}
	assert.Equal(t, models.BatchOutcomeInGrace, outcomes["fee-grace"])
	assert.Equal(t, models.BatchOutcomeNoPolicy, outcomes["fee-uniform"])
	assert.Equal(t, 2, report.Skipped)
	assert.True(t, report.TotalCharged.IsZero())
}

func TestLateFeeRunUsesWaivedBase(t *testing.T) {
	fees, policies, _, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	waivers := newStubWaiverStore(models.FeeWaiver{
		ID:         "w-1",
		StudentID:  "stu-1",
		FeeID:      strPtr("fee-1"),
		AmountType: models.WaiverAmountPercentage,
		Value:      dec("10"),
		ValidFrom:  day(2024, time.January, 1),
		Status:     models.WaiverStatusApproved,
	})
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop())

	report, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf, DryRun: true})
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.True(t, dec("900.00").Equal(report.Lines[0].BaseAmount))
	assert.True(t, dec("90.00").Equal(report.Lines[0].Charge))
}

func TestLateFeeRunFetchFailure(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	fees.overdueErr = errors.New("connection refused")
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop())

	report, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrFetchFailure))
	require.NotNil(t, report)
	assert.Equal(t, models.BatchStatusFailed, report.Status)
	assert.Equal(t, 0, report.Processed)
	assert.NotEmpty(t, report.Error)
}

func TestLateFeeRunFetchFailureOnInstallments(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	fees.installmentsErr = errors.New("timeout")
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop())

	report, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	assert.True(t, errors.Is(err, appErrors.ErrFetchFailure))
	assert.Equal(t, 0, report.Processed)
}

func TestLateFeeRunContinuesAfterRecordFailure(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(
		overdueFee("fee-1", "stu-1", nil, "1000.00"),
		overdueFee("fee-2", "stu-2", nil, "500.00"),
	)
	fees.applyErr["fee-1"] = errors.New("deadlock detected")
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop())

	report, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.NoError(t, err)

	assert.Equal(t, models.BatchStatusCompleted, report.Status)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Charged)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "fee-1", report.Failures[0].FeeID)
	assert.Contains(t, report.Failures[0].Error, "deadlock detected")
	assert.True(t, dec("50.00").Equal(report.TotalCharged))
}

func TestLateFeeRunRejectsConcurrentRun(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop(), WithBatchLock(fixedLock{ok: false}, time.Minute))

	report, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	assert.True(t, errors.Is(err, appErrors.ErrBatchInProgress))
	assert.Equal(t, models.BatchStatusFailed, report.Status)
	assert.Empty(t, fees.applied)
}

func TestLateFeeRunFailsWhenLockBackendErrors(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	store := &stubLockStore{available: true, acquireErr: errors.New("redis down")}
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop(), WithBatchLock(NewBatchLock(store, zap.NewNop()), time.Minute))

	_, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.Error(t, err)
	assert.Empty(t, fees.applied)
}

func TestLateFeeChargeAttributedToNextInstallment(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	fees.installments["fee-1"] = []models.Installment{
		{ID: "i-1", FeeID: "fee-1", Sequence: 1, Amount: dec("500.00"), PaidAmount: dec("500.00"), Status: models.InstallmentStatusPaid, DueDate: day(2024, time.January, 10)},
		{ID: "i-2", FeeID: "fee-1", Sequence: 2, Amount: dec("500.00"), Status: models.InstallmentStatusPending, DueDate: day(2024, time.February, 10)},
	}
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop())

	_, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.NoError(t, err)
	require.Len(t, fees.applied, 1)
	require.NotNil(t, fees.applied[0].InstallmentSequence)
	assert.Equal(t, 2, *fees.applied[0].InstallmentSequence)
	assert.True(t, dec("100.00").Equal(fees.installments["fee-1"][1].LateFee))
}

func TestLateFeeRunInvalidatesReminderCache(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop(), WithLateFeeCache(cache))

	_, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.NoError(t, err)
	assert.Equal(t, []string{reminderCachePattern}, repo.deleted)
}

func TestLateFeeRunDefaultsAsOfToClock(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	clock := func() time.Time { return time.Date(2024, time.January, 20, 15, 30, 0, 0, time.UTC) }
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop(), WithLateFeeClock(clock))

	report, err := svc.Run(context.Background(), models.LateFeeRunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, lateFeeAsOf, report.AsOf)
}

func futureWaiverFixture() (*stubFeeStore, *stubWaiverStore) {
	fee := overdueFee("fee-1", "stu-1", nil, "1000.00")
	fee.PaidAmount = dec("900.00")
	fee.Status = models.FeeStatusPartial
	fees := newStubFeeStore(fee)
	waivers := newStubWaiverStore(models.FeeWaiver{
		ID:          "w-1",
		StudentID:   "stu-1",
		FeeID:       strPtr("fee-1"),
		AmountType:  models.WaiverAmountPercentage,
		Value:       dec("10"),
		ValidFrom:   day(2024, time.January, 15),
		Status:      models.WaiverStatusPending,
		RequestedBy: "bursar-1",
	})
	return fees, waivers
}

func TestLateFeeRunSkipsFeeSettledByLaterWaiver(t *testing.T) {
	fees, waivers := futureWaiverFixture()
	waiverSvc := NewWaiverService(waivers, fees, &stubAudit{}, nil, nil, zap.NewNop())
	waiverSvc.now = func() time.Time { return day(2024, time.January, 12) }
	_, err := waiverSvc.Approve(context.Background(), "w-1", "admin-1")
	require.NoError(t, err)

	stored, _ := fees.FindByID(context.Background(), "fee-1")
	require.Equal(t, models.FeeStatusPartial, stored.Status)

	policies := &stubPolicyStore{policies: []models.LateFeePolicy{percentagePolicy("pol-global", nil, "10", 5)}}
	svc := NewLateFeeService(fees, policies, waivers, &stubAudit{}, zap.NewNop())
	report, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.NoError(t, err)

	assert.Empty(t, fees.applied)
	assert.Equal(t, 0, report.Charged)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, models.BatchOutcomeSettled, report.Lines[0].Outcome)
	assert.Equal(t, models.FeeStatusPaid, fees.statusUpdates["fee-1"])

	stored, _ = fees.FindByID(context.Background(), "fee-1")
	assert.Equal(t, models.FeeStatusPaid, stored.Status)
	assert.True(t, stored.LateFeeTotal.IsZero())
}

func TestLateFeeDryRunSkipsSettledFeeWithoutWriting(t *testing.T) {
	fees, waivers := futureWaiverFixture()
	w := waivers.waivers["w-1"]
	w.Status = models.WaiverStatusApproved
	waivers.waivers["w-1"] = w

	policies := &stubPolicyStore{policies: []models.LateFeePolicy{percentagePolicy("pol-global", nil, "10", 5)}}
	svc := NewLateFeeService(fees, policies, waivers, &stubAudit{}, zap.NewNop())
	report, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf, DryRun: true})
	require.NoError(t, err)

	require.Len(t, report.Lines, 1)
	assert.Equal(t, models.BatchOutcomeSettled, report.Lines[0].Outcome)
	assert.Empty(t, fees.statusUpdates)
}

func TestLateFeeChargeAttributedToOverdueInstallment(t *testing.T) {
	fees, policies, waivers, audit := newLateFeeFixture(overdueFee("fee-1", "stu-1", nil, "1000.00"))
	fees.installments["fee-1"] = []models.Installment{
		{ID: "i-1", FeeID: "fee-1", Sequence: 1, Amount: dec("500.00"), Status: models.InstallmentStatusPending, DueDate: day(2024, time.February, 10)},
		{ID: "i-2", FeeID: "fee-1", Sequence: 2, Amount: dec("500.00"), Status: models.InstallmentStatusPending, DueDate: day(2024, time.January, 10)},
	}
	svc := NewLateFeeService(fees, policies, waivers, audit, zap.NewNop())

	_, err := svc.Run(context.Background(), models.LateFeeRunOptions{AsOf: lateFeeAsOf})
	require.NoError(t, err)
	require.Len(t, fees.applied, 1)
	require.NotNil(t, fees.applied[0].InstallmentSequence)
	assert.Equal(t, 2, *fees.applied[0].InstallmentSequence)
}
