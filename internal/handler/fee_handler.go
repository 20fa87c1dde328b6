package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/response"
)

type ledgerService interface {
	GetLedger(ctx context.Context, feeID string, asOf time.Time) (*dto.FeeLedgerView, error)
	RecordPayment(ctx context.Context, feeID string, req dto.RecordPaymentRequest, collectorID string) (*dto.PaymentReceipt, error)
}

// FeeHandler exposes fee ledger and payment endpoints.
type FeeHandler struct {
	ledger ledgerService
}

// NewFeeHandler constructs the handler.
func NewFeeHandler(ledger ledgerService) *FeeHandler {
	return &FeeHandler{ledger: ledger}
}

// Ledger godoc
// @Summary Fee ledger
// @Description Net amount, remaining balance, overdue state and installments as of a date
// @Tags Fees
// @Produce json
// @Param id path string true "Fee ID"
// @Param asOf query string false "Evaluation date (YYYY-MM-DD). Defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fees/{id}/ledger [get]
func (h *FeeHandler) Ledger(c *gin.Context) {
	asOf, err := parseAsOf(c.Query("asOf"))
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.ledger.GetLedger(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// RecordPayment godoc
// @Summary Record a payment
// @Description Applies a payment capped at the remaining balance. Fees with installments are paid in sequence.
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Fee ID"
// @Param payload body dto.RecordPaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/{id}/payments [post]
func (h *FeeHandler) RecordPayment(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	h.record(c, req)
}

// RecordInstallmentPayment godoc
// @Summary Pay a specific installment
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Fee ID"
// @Param seq path int true "Installment sequence"
// @Param payload body dto.RecordPaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/{id}/installments/{seq}/payments [post]
func (h *FeeHandler) RecordInstallmentPayment(c *gin.Context) {
	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil || seq < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "seq must be a positive integer"))
		return
	}
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	req.InstallmentSequence = &seq
	h.record(c, req)
}

func (h *FeeHandler) record(c *gin.Context, req dto.RecordPaymentRequest) {
	receipt, err := h.ledger.RecordPayment(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}
