package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/response"
)

type lateFeeRunner interface {
	Run(ctx context.Context, opts models.LateFeeRunOptions) (*models.LateFeeBatchReport, error)
}

// LateFeeHandler triggers late-fee batch runs.
type LateFeeHandler struct {
	runner lateFeeRunner
}

// NewLateFeeHandler constructs the handler.
func NewLateFeeHandler(runner lateFeeRunner) *LateFeeHandler {
	return &LateFeeHandler{runner: runner}
}

// Run godoc
// @Summary Run the late-fee batch
// @Description Charges overdue fees once per day. dryRun projects charges without writing.
// @Tags LateFees
// @Accept json
// @Produce json
// @Param payload body dto.RunLateFeesRequest false "Run options"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /late-fees/run [post]
func (h *LateFeeHandler) Run(c *gin.Context) {
	var req dto.RunLateFeesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
			return
		}
	}
	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.runner.Run(c.Request.Context(), models.LateFeeRunOptions{
		DryRun:  req.DryRun,
		FeeType: strings.TrimSpace(req.FeeType),
		AsOf:    asOf,
	})
	if err != nil {
		if report != nil && errors.Is(err, appErrors.ErrFetchFailure) {
			appErr := appErrors.FromError(err)
			c.JSON(appErr.Status, response.Envelope{Data: report, Error: appErr})
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}
