package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/response"
)

type waiverService interface {
	List(ctx context.Context, query dto.WaiverListQuery) ([]models.FeeWaiver, error)
	Request(ctx context.Context, req dto.CreateWaiverRequest, requestedBy string) (*models.FeeWaiver, error)
	Approve(ctx context.Context, id, reviewerID string) (*models.FeeWaiver, error)
	Reject(ctx context.Context, id, reviewerID string, req dto.RejectWaiverRequest) (*models.FeeWaiver, error)
}

// WaiverHandler exposes the waiver workflow.
type WaiverHandler struct {
	waivers waiverService
}

// NewWaiverHandler constructs the handler.
func NewWaiverHandler(waivers waiverService) *WaiverHandler {
	return &WaiverHandler{waivers: waivers}
}

// List godoc
// @Summary List waivers
// @Tags Waivers
// @Produce json
// @Param studentId query string false "Student ID"
// @Param feeId query string false "Fee ID"
// @Param status query string false "pending, approved or rejected"
// @Success 200 {object} response.Envelope
// @Router /waivers [get]
func (h *WaiverHandler) List(c *gin.Context) {
	var query dto.WaiverListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	waivers, err := h.waivers.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, waivers, map[string]interface{}{"count": len(waivers)})
}

// Create godoc
// @Summary Request a waiver
// @Tags Waivers
// @Accept json
// @Produce json
// @Param payload body dto.CreateWaiverRequest true "Waiver"
// @Success 201 {object} response.Envelope
// @Router /waivers [post]
func (h *WaiverHandler) Create(c *gin.Context) {
	var req dto.CreateWaiverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	waiver, err := h.waivers.Request(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, waiver)
}

// Approve godoc
// @Summary Approve a pending waiver
// @Tags Waivers
// @Produce json
// @Param id path string true "Waiver ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /waivers/{id}/approve [post]
func (h *WaiverHandler) Approve(c *gin.Context) {
	waiver, err := h.waivers.Approve(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, waiver)
}

// Reject godoc
// @Summary Reject a pending waiver
// @Tags Waivers
// @Accept json
// @Produce json
// @Param id path string true "Waiver ID"
// @Param payload body dto.RejectWaiverRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /waivers/{id}/reject [post]
func (h *WaiverHandler) Reject(c *gin.Context) {
	var req dto.RejectWaiverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	waiver, err := h.waivers.Reject(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, waiver)
}
