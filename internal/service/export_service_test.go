package service

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/export"
	"github.com/noah-isme/sma-fee-ledger/pkg/storage"
)

func sampleDigest() *models.ReminderDigest {
	asOf := day(2024, time.March, 10)
	return &models.ReminderDigest{
		AsOf:  asOf,
		Total: dec("800.00"),
		Bundles: []models.GuardianBundle{{
			Guardian:     models.Guardian{ID: "g-1", FullName: "Ani", Email: strPtr("ani@example.com")},
			TotalPending: dec("800.00"),
			Students: []models.ReminderStudent{{
				StudentID:   "stu-1",
				StudentName: "Budi",
				StudentNIS:  "1001",
				Subtotal:    dec("800.00"),
				Fees: []models.ReminderFeeLine{
					{FeeID: "fee-a", Title: "SPP Maret", FeeType: "tuition", DueDate: day(2024, time.March, 1), NetAmount: dec("500"), PaidAmount: dec("0"), Remaining: dec("500"), LateFeeTotal: dec("50"), Overdue: true, DaysOverdue: 9},
					{FeeID: "fee-b", Title: "Buku", FeeType: "books", DueDate: day(2024, time.March, 14), NetAmount: dec("300"), PaidAmount: dec("0"), Remaining: dec("300"), LateFeeTotal: dec("0")},
				},
			}},
		}},
	}
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewExportService(store, ExportConfig{Currency: "IDR", ResultTTL: time.Hour}, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC) }
	return svc, store
}

func TestExportServiceRenderCSV(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	result, err := svc.Render(sampleDigest(), "csv")
	require.NoError(t, err)
	assert.Equal(t, export.FormatCSV, result.Format)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "fee_reminders_20240310_20240310_093000.csv", result.Filename)

	body := string(result.Payload)
	assert.Contains(t, body, "Ani,ani@example.com,,Budi,1001,SPP Maret,tuition,2024-03-01,500.00,0.00,500.00,50.00,9")
	assert.Contains(t, body, "Total")
	assert.Contains(t, body, "800.00")
	assert.Equal(t, 1, strings.Count(body, "Buku"))
}

func TestExportServiceSavePDF(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	result, err := svc.Save(sampleDigest(), "pdf", "march.pdf")
	require.NoError(t, err)
	assert.Equal(t, "march.pdf", result.Filename)
	assert.Equal(t, "application/pdf", result.ContentType)

	info, err := os.Stat(result.Path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	removed, err := svc.Cleanup(time.Nanosecond)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.Render(sampleDigest(), "docx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Render(nil, "csv")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceWithoutStorage(t *testing.T) {
	svc := NewExportService(nil, ExportConfig{}, nil)

	_, err := svc.Save(sampleDigest(), "xlsx", "")
	require.Error(t, err)

	removed, err := svc.Cleanup(0)
	require.NoError(t, err)
	assert.Nil(t, removed)
}
