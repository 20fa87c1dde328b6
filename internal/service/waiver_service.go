package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/finance"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

type waiverStore interface {
	Create(ctx context.Context, waiver *models.FeeWaiver) error
	GetByID(ctx context.Context, id string) (*models.FeeWaiver, error)
	List(ctx context.Context, filter models.WaiverFilter) ([]models.FeeWaiver, error)
	ListApprovedByStudents(ctx context.Context, studentIDs []string) ([]models.FeeWaiver, error)
	UpdateReview(ctx context.Context, params repository.ReviewWaiverParams) error
}

type waiverFeeStore interface {
	FindByID(ctx context.Context, id string) (*models.Fee, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Fee, error)
	UpdateStatus(ctx context.Context, feeID string, status models.FeeStatus) error
}

var hundredPercent = decimal.NewFromInt(100)

// WaiverService runs the waiver request/approve/reject workflow.
type WaiverService struct {
	waivers   waiverStore
	fees      waiverFeeStore
	audit     auditLogger
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewWaiverService constructs the service.
func NewWaiverService(waivers waiverStore, fees waiverFeeStore, audit auditLogger, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *WaiverService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WaiverService{
		waivers:   waivers,
		fees:      fees,
		audit:     audit,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns waivers matching the query.
func (s *WaiverService) List(ctx context.Context, query dto.WaiverListQuery) ([]models.FeeWaiver, error) {
	filter := models.WaiverFilter{
		StudentID: strings.TrimSpace(query.StudentID),
		FeeID:     strings.TrimSpace(query.FeeID),
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		switch models.WaiverStatus(status) {
		case models.WaiverStatusPending, models.WaiverStatusApproved, models.WaiverStatusRejected:
			filter.Status = []models.WaiverStatus{models.WaiverStatus(status)}
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown waiver status")
		}
	}
	waivers, err := s.waivers.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waivers")
	}
	return waivers, nil
}

// Request records a pending waiver.
func (s *WaiverService) Request(ctx context.Context, req dto.CreateWaiverRequest, requestedBy string) (*models.FeeWaiver, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waiver payload")
	}
	if !req.Value.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "value must be greater than zero")
	}
	if req.AmountType == models.WaiverAmountPercentage && req.Value.GreaterThan(hundredPercent) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "percentage waivers cannot exceed 100")
	}
	if req.ValidFrom.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "validFrom is required")
	}
	validFrom := finance.Date(req.ValidFrom)
	var validUntil *time.Time
	if req.ValidUntil != nil && !req.ValidUntil.IsZero() {
		until := finance.Date(*req.ValidUntil)
		if until.Before(validFrom) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "validUntil must not precede validFrom")
		}
		validUntil = &until
	}

	var feeID *string
	if req.FeeID != nil && strings.TrimSpace(*req.FeeID) != "" {
		id := strings.TrimSpace(*req.FeeID)
		fee, err := s.fees.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
		}
		if fee.StudentID != req.StudentID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "fee does not belong to student")
		}
		feeID = &id
	}

	waiver := &models.FeeWaiver{
		StudentID:   req.StudentID,
		FeeID:       feeID,
		Kind:        strings.TrimSpace(req.Kind),
		AmountType:  req.AmountType,
		Value:       req.Value,
		Reason:      strings.TrimSpace(req.Reason),
		ValidFrom:   validFrom,
		ValidUntil:  validUntil,
		Status:      models.WaiverStatusPending,
		RequestedBy: requestedBy,
		CreatedAt:   s.now(),
	}
	if err := s.waivers.Create(ctx, waiver); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create waiver")
	}

	emitAudit(ctx, s.audit, s.logger, "waiver-service", &models.AuditLog{
		UserID:     optionalString(requestedBy),
		Action:     models.AuditActionWaiverRequested,
		Resource:   "waiver",
		ResourceID: &waiver.ID,
		NewValues:  auditPayload(waiver),
	})
	return waiver, nil
}

// Approve moves a pending waiver to approved and recomputes the status of the
// fees it now reduces.
func (s *WaiverService) Approve(ctx context.Context, id, reviewerID string) (*models.FeeWaiver, error) {
	waiver, err := s.review(ctx, id, reviewerID, models.WaiverStatusApproved, nil)
	if err != nil {
		return nil, err
	}
	s.refreshFeeStatuses(ctx, waiver)
	s.cache.Invalidate(ctx, reminderCachePattern)
	return waiver, nil
}

// Reject moves a pending waiver to rejected with a reason.
func (s *WaiverService) Reject(ctx context.Context, id, reviewerID string, req dto.RejectWaiverRequest) (*models.FeeWaiver, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is required")
	}
	return s.review(ctx, id, reviewerID, models.WaiverStatusRejected, &reason)
}

func (s *WaiverService) review(ctx context.Context, id, reviewerID string, status models.WaiverStatus, reason *string) (*models.FeeWaiver, error) {
	waiver, err := s.waivers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "waiver not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waiver")
	}
	if waiver.Status != models.WaiverStatusPending {
		return nil, appErrors.Clone(appErrors.ErrWaiverConflict, "waiver already "+string(waiver.Status))
	}

	reviewedAt := s.now()
	err = s.waivers.UpdateReview(ctx, repository.ReviewWaiverParams{
		ID:              id,
		Status:          status,
		ReviewedBy:      reviewerID,
		ReviewedAt:      reviewedAt,
		RejectionReason: reason,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrWaiverConflict, "waiver was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update waiver")
	}

	previous := waiver.Status
	waiver.Status = status
	waiver.ReviewedBy = optionalString(reviewerID)
	waiver.ReviewedAt = &reviewedAt
	waiver.RejectionReason = reason

	action := models.AuditActionWaiverApproved
	if status == models.WaiverStatusRejected {
		action = models.AuditActionWaiverRejected
	}
	emitAudit(ctx, s.audit, s.logger, "waiver-service", &models.AuditLog{
		UserID:     optionalString(reviewerID),
		Action:     action,
		Resource:   "waiver",
		ResourceID: &waiver.ID,
		OldValues:  auditPayload(map[string]interface{}{"status": previous}),
		NewValues:  auditPayload(map[string]interface{}{"status": status, "rejection_reason": reason}),
	})
	return waiver, nil
}

// refreshFeeStatuses is best effort; failures are logged.
func (s *WaiverService) refreshFeeStatuses(ctx context.Context, waiver *models.FeeWaiver) {
	fees, err := s.fees.ListByStudent(ctx, waiver.StudentID)
	if err != nil {
		s.logger.Warn("failed to load fees for status refresh", zap.String("waiver_id", waiver.ID), zap.Error(err))
		return
	}
	approved, err := s.waivers.ListApprovedByStudents(ctx, []string{waiver.StudentID})
	if err != nil {
		s.logger.Warn("failed to load waivers for status refresh", zap.String("waiver_id", waiver.ID), zap.Error(err))
		return
	}
	asOf := s.now()
	for _, fee := range fees {
		if waiver.FeeID != nil && *waiver.FeeID != fee.ID {
			continue
		}
		if !finance.WaiverApplies(*waiver, fee, asOf) {
			continue
		}
		ledger := &finance.Ledger{Fee: fee, Waivers: approved}
		if !ledger.RefreshStatus(asOf) {
			continue
		}
		if err := s.fees.UpdateStatus(ctx, fee.ID, ledger.Fee.Status); err != nil {
			s.logger.Warn("failed to refresh fee status", zap.String("fee_id", fee.ID), zap.Error(err))
			continue
		}
		s.logger.Info("fee status refreshed after waiver approval",
			zap.String("fee_id", fee.ID),
			zap.String("status", string(ledger.Fee.Status)),
		)
	}
}
