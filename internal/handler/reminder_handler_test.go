package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/service"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/export"
)

type reminderServiceMock struct {
	opts     models.ReminderOptions
	buildErr error
	queueErr error
}

func (m *reminderServiceMock) Options(asOf time.Time, windowDays *int, overdueOnly *bool) models.ReminderOptions {
	opts := models.ReminderOptions{AsOf: asOf, WindowDays: 7}
	if windowDays != nil {
		opts.WindowDays = *windowDays
	}
	if overdueOnly != nil {
		opts.OverdueOnly = *overdueOnly
	}
	return opts
}

func (m *reminderServiceMock) Build(ctx context.Context, opts models.ReminderOptions) (*models.ReminderDigest, error) {
	m.opts = opts
	if m.buildErr != nil {
		return nil, m.buildErr
	}
	return &models.ReminderDigest{
		AsOf:       opts.AsOf,
		Bundles:    []models.GuardianBundle{{Guardian: models.Guardian{ID: "g-1"}, TotalPending: decimal.RequireFromString("800")}},
		Unassigned: []string{"fee-x"},
		Total:      decimal.RequireFromString("800"),
	}, nil
}

func (m *reminderServiceMock) DispatchAsync(opts models.ReminderOptions) (string, error) {
	m.opts = opts
	if m.queueErr != nil {
		return "", m.queueErr
	}
	return "job-1", nil
}

type exporterMock struct {
	format string
}

func (m *exporterMock) Render(digest *models.ReminderDigest, format string) (*service.ExportResult, error) {
	m.format = format
	if format == "docx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return &service.ExportResult{
		Filename:    "fee_reminders.csv",
		ContentType: "text/csv",
		Format:      export.FormatCSV,
		Payload:     []byte("Guardian\nAni\n"),
	}, nil
}

func TestReminderHandlerList(t *testing.T) {
	svc := &reminderServiceMock{}
	handler := NewReminderHandler(svc, &exporterMock{})
	c, w := newTestContext(http.MethodGet, "/reminders?asOf=2024-03-10&days=3&overdueOnly=true", nil)

	handler.List(c)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, 3, svc.opts.WindowDays)
	assert.True(t, svc.opts.OverdueOnly)
	env := decodeEnvelope(t, w)
	assert.EqualValues(t, 1, env.Meta["guardians"])
	assert.EqualValues(t, 1, env.Meta["unassigned"])
}

func TestReminderHandlerRejectsBadQuery(t *testing.T) {
	handler := NewReminderHandler(&reminderServiceMock{}, &exporterMock{})

	for _, target := range []string{
		"/reminders?days=-1",
		"/reminders?days=abc",
		"/reminders?asOf=yesterday",
	} {
		c, w := newTestContext(http.MethodGet, target, nil)
		handler.List(c)
		requireStatus(t, w, http.StatusBadRequest)
	}
}

func TestReminderHandlerListFetchFailure(t *testing.T) {
	handler := NewReminderHandler(&reminderServiceMock{buildErr: appErrors.Clone(appErrors.ErrFetchFailure, "failed to load outstanding fees")}, &exporterMock{})
	c, w := newTestContext(http.MethodGet, "/reminders", nil)

	handler.List(c)
	requireStatus(t, w, http.StatusServiceUnavailable)
}

func TestReminderHandlerDispatch(t *testing.T) {
	handler := NewReminderHandler(&reminderServiceMock{}, &exporterMock{})
	c, w := newTestContext(http.MethodPost, "/reminders/dispatch", nil)

	handler.Dispatch(c)
	requireStatus(t, w, http.StatusAccepted)
	assert.JSONEq(t, `{"jobId":"job-1"}`, string(decodeEnvelope(t, w).Data))

	handler = NewReminderHandler(&reminderServiceMock{queueErr: errors.New("queue full")}, &exporterMock{})
	c, w = newTestContext(http.MethodPost, "/reminders/dispatch", nil)
	handler.Dispatch(c)
	requireStatus(t, w, http.StatusInternalServerError)
}

func TestReminderHandlerExport(t *testing.T) {
	exporter := &exporterMock{}
	handler := NewReminderHandler(&reminderServiceMock{}, exporter)
	c, w := newTestContext(http.MethodGet, "/reminders/export?format=csv", nil)

	handler.Export(c)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "csv", exporter.format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="fee_reminders.csv"`, w.Header().Get("Content-Disposition"))
	require.Equal(t, "Guardian\nAni\n", w.Body.String())

	c, w = newTestContext(http.MethodGet, "/reminders/export?format=docx", nil)
	handler.Export(c)
	requireStatus(t, w, http.StatusBadRequest)
}
