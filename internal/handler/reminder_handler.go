package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/service"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/response"
)

type reminderService interface {
	Options(asOf time.Time, windowDays *int, overdueOnly *bool) models.ReminderOptions
	Build(ctx context.Context, opts models.ReminderOptions) (*models.ReminderDigest, error)
	DispatchAsync(opts models.ReminderOptions) (string, error)
}

type reminderExporter interface {
	Render(digest *models.ReminderDigest, format string) (*service.ExportResult, error)
}

// ReminderHandler exposes reminder digests, dispatch and exports.
type ReminderHandler struct {
	reminders reminderService
	exporter  reminderExporter
}

// NewReminderHandler constructs the handler.
func NewReminderHandler(reminders reminderService, exporter reminderExporter) *ReminderHandler {
	return &ReminderHandler{reminders: reminders, exporter: exporter}
}

func (h *ReminderHandler) options(c *gin.Context, query *dto.ReminderQuery) (models.ReminderOptions, bool) {
	if err := c.ShouldBindQuery(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return models.ReminderOptions{}, false
	}
	asOf, err := parseAsOf(query.AsOf)
	if err != nil {
		response.Error(c, err)
		return models.ReminderOptions{}, false
	}
	if query.Days != nil && *query.Days < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "days must not be negative"))
		return models.ReminderOptions{}, false
	}
	return h.reminders.Options(asOf, query.Days, query.OverdueOnly), true
}

// List godoc
// @Summary Build the reminder digest
// @Description Groups open fees by financially responsible guardian and student
// @Tags Reminders
// @Produce json
// @Param asOf query string false "Evaluation date (YYYY-MM-DD)"
// @Param days query int false "Days ahead to include"
// @Param overdueOnly query bool false "Only overdue fees"
// @Success 200 {object} response.Envelope
// @Router /reminders [get]
func (h *ReminderHandler) List(c *gin.Context) {
	var query dto.ReminderQuery
	opts, ok := h.options(c, &query)
	if !ok {
		return
	}
	digest, err := h.reminders.Build(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, digest, map[string]interface{}{
		"guardians":  len(digest.Bundles),
		"unassigned": len(digest.Unassigned),
	})
}

// Dispatch godoc
// @Summary Queue reminder dispatch
// @Tags Reminders
// @Produce json
// @Param asOf query string false "Evaluation date (YYYY-MM-DD)"
// @Param days query int false "Days ahead to include"
// @Param overdueOnly query bool false "Only overdue fees"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /reminders/dispatch [post]
func (h *ReminderHandler) Dispatch(c *gin.Context) {
	var query dto.ReminderQuery
	opts, ok := h.options(c, &query)
	if !ok {
		return
	}
	jobID, err := h.reminders.DispatchAsync(opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.ReminderDispatchAccepted{JobID: jobID})
}

// Export godoc
// @Summary Export the reminder digest
// @Tags Reminders
// @Produce octet-stream
// @Param asOf query string false "Evaluation date (YYYY-MM-DD)"
// @Param days query int false "Days ahead to include"
// @Param overdueOnly query bool false "Only overdue fees"
// @Param format query string false "csv, pdf or xlsx"
// @Success 200 {file} file
// @Router /reminders/export [get]
func (h *ReminderHandler) Export(c *gin.Context) {
	var query dto.ReminderQuery
	opts, ok := h.options(c, &query)
	if !ok {
		return
	}
	digest, err := h.reminders.Build(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exporter.Render(digest, query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, result.Filename, result.ContentType, result.Payload)
}
