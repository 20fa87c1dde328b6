package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/finance"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

type ledgerFeeStore interface {
	FindByID(ctx context.Context, id string) (*models.Fee, error)
	ListInstallments(ctx context.Context, feeID string) ([]models.Installment, error)
	WithLockedFee(ctx context.Context, feeID string, fn repository.PaymentFunc) error
	UpdateStatus(ctx context.Context, feeID string, status models.FeeStatus) error
}

// LedgerService serves fee ledger views and records payments.
type LedgerService struct {
	fees      ledgerFeeStore
	waivers   approvedWaiverStore
	audit     auditLogger
	metrics   *MetricsService
	cache     *CacheService
	validator *validator.Validate
	locks     *keyedMutex
	logger    *zap.Logger
	now       func() time.Time
}

// NewLedgerService constructs the service.
func NewLedgerService(fees ledgerFeeStore, waivers approvedWaiverStore, audit auditLogger, metrics *MetricsService, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		fees:      fees,
		waivers:   waivers,
		audit:     audit,
		metrics:   metrics,
		cache:     cache,
		validator: validate,
		locks:     newKeyedMutex(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetLedger returns the fee with its derived balances as of asOf (today when
// zero).
func (s *LedgerService) GetLedger(ctx context.Context, feeID string, asOf time.Time) (*dto.FeeLedgerView, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	fee, err := s.fees.FindByID(ctx, feeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}
	waivers, err := s.waivers.ListApprovedByStudents(ctx, []string{fee.StudentID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waivers")
	}
	installments, err := s.fees.ListInstallments(ctx, fee.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load installments")
	}
	ledger, err := finance.NewLedger(*fee, waivers, installments)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "inconsistent installment plan")
	}

	view := &dto.FeeLedgerView{
		AsOf:           finance.Date(asOf),
		Fee:            ledger.Fee,
		NetAmount:      ledger.NetAmount(asOf),
		Remaining:      ledger.Remaining(asOf),
		Overdue:        ledger.IsOverdue(asOf),
		DaysOverdue:    ledger.DaysOverdue(asOf),
		AppliedWaivers: finance.AppliedWaivers(ledger.Fee, waivers, asOf),
	}
	if !ledger.Plan.Empty() {
		for _, inst := range ledger.Plan.Installments {
			view.Installments = append(view.Installments, dto.InstallmentView{
				Installment:     inst,
				EffectiveStatus: finance.EffectiveStatus(inst, asOf),
				Payable:         !finance.Settled(inst) && ledger.Plan.CanPay(inst.Sequence),
			})
		}
	}
	return view, nil
}

// RecordPayment applies a payment under a per-fee lock. Fees with an
// installment plan are paid installment by installment, in sequence.
func (s *LedgerService) RecordPayment(ctx context.Context, feeID string, req dto.RecordPaymentRequest, collectorID string) (*dto.PaymentReceipt, error) {
	receipt, err := s.recordPayment(ctx, feeID, req, collectorID)
	s.metrics.RecordPayment(err == nil)
	return receipt, err
}

func (s *LedgerService) recordPayment(ctx context.Context, feeID string, req dto.RecordPaymentRequest, collectorID string) (*dto.PaymentReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	if req.Amount.Exponent() < -2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount supports at most two decimal places")
	}

	unlock := s.locks.Lock(feeID)
	defer unlock()

	fee, err := s.fees.FindByID(ctx, feeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}
	waivers, err := s.waivers.ListApprovedByStudents(ctx, []string{fee.StudentID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waivers")
	}

	asOf := s.now()
	payment := models.PaymentRecord{
		Amount:         req.Amount,
		Method:         strings.TrimSpace(req.Method),
		TransactionRef: strings.TrimSpace(req.TransactionRef),
		CollectedBy:    collectorID,
		PaidAt:         asOf,
	}
	if req.PaidAt != nil && !req.PaidAt.IsZero() {
		payment.PaidAt = req.PaidAt.UTC()
	}

	var (
		receipt     *dto.PaymentReceipt
		staleStatus models.FeeStatus
	)
	err = s.fees.WithLockedFee(ctx, feeID, func(locked models.Fee, installments []models.Installment) (*repository.PaymentMutation, error) {
		ledger, err := finance.NewLedger(locked, waivers, installments)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "inconsistent installment plan")
		}
		if ledger.RefreshStatus(asOf) {
			staleStatus = ledger.Fee.Status
		}
		applied, inst, err := ledger.Pay(req.InstallmentSequence, payment, asOf)
		if err != nil {
			return nil, err
		}
		receipt = &dto.PaymentReceipt{
			FeeID:       ledger.Fee.ID,
			Applied:     applied,
			PaidAmount:  ledger.Fee.PaidAmount,
			Remaining:   ledger.Remaining(asOf),
			Status:      ledger.Fee.Status,
			Installment: inst,
			RecordedAt:  asOf,
		}
		return &repository.PaymentMutation{Fee: ledger.Fee, Installment: inst}, nil
	})
	if err != nil && staleStatus == models.FeeStatusPaid && errors.Is(err, appErrors.ErrFeeSettled) {
		if uerr := s.fees.UpdateStatus(ctx, feeID, staleStatus); uerr != nil {
			s.logger.Warn("failed to repair settled fee status", zap.String("fee_id", feeID), zap.Error(uerr))
		} else {
			s.cache.Invalidate(ctx, reminderCachePattern)
		}
	}
	if err != nil {
		var appErr *appErrors.Error
		switch {
		case errors.As(err, &appErr):
			return nil, appErr
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
		}
	}

	s.cache.Invalidate(ctx, reminderCachePattern)
	actor := collectorID
	emitAudit(ctx, s.audit, s.logger, "ledger-service", &models.AuditLog{
		UserID:     optionalString(actor),
		Action:     models.AuditActionPaymentRecorded,
		Resource:   "fee",
		ResourceID: &receipt.FeeID,
		NewValues: auditPayload(map[string]interface{}{
			"applied":         receipt.Applied.StringFixed(2),
			"paid_amount":     receipt.PaidAmount.StringFixed(2),
			"status":          receipt.Status,
			"method":          payment.Method,
			"transaction_ref": payment.TransactionRef,
			"installment":     installmentSequence(receipt.Installment),
		}),
	})
	s.logger.Info("payment recorded",
		zap.String("fee_id", receipt.FeeID),
		zap.String("applied", receipt.Applied.StringFixed(2)),
		zap.String("status", string(receipt.Status)),
	)
	return receipt, nil
}

func installmentSequence(inst *models.Installment) interface{} {
	if inst == nil {
		return nil
	}
	return inst.Sequence
}
