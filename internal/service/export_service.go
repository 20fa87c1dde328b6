package service

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/export"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Currency  string
	ResultTTL time.Duration
}

// ExportResult describes one rendered reminder export.
type ExportResult struct {
	Filename    string
	Path        string
	ContentType string
	Format      export.Format
	Payload     []byte
}

var reminderExportHeaders = []string{
	"Guardian", "Email", "Phone", "Student", "NIS", "Fee", "Fee Type",
	"Due Date", "Net", "Paid", "Remaining", "Late Fees", "Days Overdue",
}

// ExportService renders reminder digests to csv, pdf or xlsx and optionally
// persists them.
type ExportService struct {
	storage fileStorage
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService. storage may be nil when files
// are only streamed.
func NewExportService(storage fileStorage, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 72 * time.Hour
	}
	return &ExportService{
		storage: storage,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Render converts the digest into the requested format.
func (s *ExportService) Render(digest *models.ReminderDigest, format string) (*ExportResult, error) {
	if digest == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "digest is required")
	}
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	exporter, err := export.For(parsed)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	payload, err := exporter.Render(s.dataset(digest))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportResult{
		Filename:    s.buildFilename(digest, exporter.Extension()),
		ContentType: exporter.ContentType(),
		Format:      parsed,
		Payload:     payload,
	}, nil
}

// Save renders and writes the export to storage. A non-empty filename
// overrides the generated one.
func (s *ExportService) Save(digest *models.ReminderDigest, format, filename string) (*ExportResult, error) {
	if s.storage == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export storage not configured")
	}
	result, err := s.Render(digest, format)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(filename); name != "" {
		result.Filename = name
	}
	path, err := s.storage.Save(result.Filename, result.Payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	result.Path = path
	s.logger.Info("reminder export written", zap.String("path", path), zap.String("format", string(result.Format)))
	return result, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(digest *models.ReminderDigest, ext string) string {
	timestamp := s.now().Format("20060102_150405")
	return fmt.Sprintf("fee_reminders_%s_%s.%s", digest.AsOf.Format("20060102"), timestamp, ext)
}

func (s *ExportService) dataset(digest *models.ReminderDigest) export.Dataset {
	title := fmt.Sprintf("Fee Reminders as of %s", digest.AsOf.Format("2006-01-02"))
	if s.cfg.Currency != "" {
		title = fmt.Sprintf("%s (%s)", title, s.cfg.Currency)
	}
	rows := make([]map[string]string, 0)
	for _, bundle := range digest.Bundles {
		for _, student := range bundle.Students {
			for _, fee := range student.Fees {
				rows = append(rows, map[string]string{
					"Guardian":     bundle.Guardian.FullName,
					"Email":        deref(bundle.Guardian.Email),
					"Phone":        deref(bundle.Guardian.Phone),
					"Student":      student.StudentName,
					"NIS":          student.StudentNIS,
					"Fee":          fee.Title,
					"Fee Type":     fee.FeeType,
					"Due Date":     fee.DueDate.Format("2006-01-02"),
					"Net":          fee.NetAmount.StringFixed(2),
					"Paid":         fee.PaidAmount.StringFixed(2),
					"Remaining":    fee.Remaining.StringFixed(2),
					"Late Fees":    fee.LateFeeTotal.StringFixed(2),
					"Days Overdue": fmt.Sprintf("%d", fee.DaysOverdue),
				})
			}
		}
	}
	return export.Dataset{
		Title:   title,
		Headers: reminderExportHeaders,
		Rows:    rows,
		Footer: map[string]string{
			"Guardian":  "Total",
			"Remaining": digest.Total.StringFixed(2),
		},
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
