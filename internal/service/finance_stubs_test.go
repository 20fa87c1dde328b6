package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/finance"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func strPtr(v string) *string { return &v }

type stubFeeStore struct {
	mu              sync.Mutex
	fees            map[string]models.Fee
	installments    map[string][]models.Installment
	overdueErr      error
	installmentsErr error
	outstandingErr  error
	applyErr        map[string]error
	applied         []models.LateFeeCharge
	statusUpdates   map[string]models.FeeStatus
}

func newStubFeeStore(fees ...models.Fee) *stubFeeStore {
	s := &stubFeeStore{
		fees:          make(map[string]models.Fee),
		installments:  make(map[string][]models.Installment),
		applyErr:      make(map[string]error),
		statusUpdates: make(map[string]models.FeeStatus),
	}
	for _, fee := range fees {
		s.fees[fee.ID] = fee
	}
	return s
}

func (s *stubFeeStore) sorted() []models.Fee {
	out := make([]models.Fee, 0, len(s.fees))
	for _, fee := range s.fees {
		out = append(out, fee)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *stubFeeStore) FindByID(_ context.Context, id string) (*models.Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fee, ok := s.fees[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &fee, nil
}

func (s *stubFeeStore) ListOverdue(_ context.Context, asOf time.Time, feeType string) ([]models.Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overdueErr != nil {
		return nil, s.overdueErr
	}
	var out []models.Fee
	for _, fee := range s.sorted() {
		if fee.Status == models.FeeStatusPaid || !fee.DueDate.Before(asOf) {
			continue
		}
		if feeType != "" && fee.FeeTypeName() != feeType {
			continue
		}
		out = append(out, fee)
	}
	return out, nil
}

func (s *stubFeeStore) ListOutstanding(_ context.Context, filter models.OutstandingFeeFilter) ([]models.Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outstandingErr != nil {
		return nil, s.outstandingErr
	}
	opts := models.ReminderOptions{AsOf: filter.AsOf, WindowDays: filter.WindowDays, OverdueOnly: filter.OverdueOnly}
	var out []models.Fee
	for _, fee := range s.sorted() {
		if finance.SelectForReminder(fee, opts) {
			out = append(out, fee)
		}
	}
	return out, nil
}

func (s *stubFeeStore) ListByStudent(_ context.Context, studentID string) ([]models.Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Fee
	for _, fee := range s.sorted() {
		if fee.StudentID == studentID {
			out = append(out, fee)
		}
	}
	return out, nil
}

func (s *stubFeeStore) ListInstallments(_ context.Context, feeID string) ([]models.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Installment(nil), s.installments[feeID]...), nil
}

func (s *stubFeeStore) ListInstallmentsByFees(_ context.Context, feeIDs []string) (map[string][]models.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installmentsErr != nil {
		return nil, s.installmentsErr
	}
	out := make(map[string][]models.Installment)
	for _, id := range feeIDs {
		if items, ok := s.installments[id]; ok {
			out[id] = append([]models.Installment(nil), items...)
		}
	}
	return out, nil
}

func (s *stubFeeStore) ApplyLateFee(_ context.Context, charge models.LateFeeCharge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyErr[charge.FeeID]; err != nil {
		return false, err
	}
	fee := s.fees[charge.FeeID]
	if fee.LastLateFeeOn != nil && !fee.LastLateFeeOn.Before(charge.AppliedOn) {
		return false, nil
	}
	fee.LateFeeTotal = fee.LateFeeTotal.Add(charge.Amount)
	appliedOn := charge.AppliedOn
	fee.LastLateFeeOn = &appliedOn
	s.fees[charge.FeeID] = fee
	if charge.InstallmentSequence != nil {
		items := s.installments[charge.FeeID]
		for i := range items {
			if items[i].Sequence == *charge.InstallmentSequence {
				items[i].LateFee = items[i].LateFee.Add(charge.Amount)
			}
		}
	}
	s.applied = append(s.applied, charge)
	return true, nil
}

func (s *stubFeeStore) WithLockedFee(_ context.Context, feeID string, fn repository.PaymentFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fee, ok := s.fees[feeID]
	if !ok {
		return sql.ErrNoRows
	}
	items := append([]models.Installment(nil), s.installments[feeID]...)
	mutation, err := fn(fee, items)
	if err != nil || mutation == nil {
		return err
	}
	s.fees[feeID] = mutation.Fee
	if mutation.Installment != nil {
		stored := s.installments[feeID]
		for i := range stored {
			if stored[i].Sequence == mutation.Installment.Sequence {
				stored[i] = *mutation.Installment
			}
		}
	}
	return nil
}

func (s *stubFeeStore) UpdateStatus(_ context.Context, feeID string, status models.FeeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fee := s.fees[feeID]
	fee.Status = status
	s.fees[feeID] = fee
	s.statusUpdates[feeID] = status
	return nil
}

type stubPolicyStore struct {
	policies []models.LateFeePolicy
	err      error
}

func (s *stubPolicyStore) ListActive(context.Context) ([]models.LateFeePolicy, error) {
	return s.policies, s.err
}

type stubWaiverStore struct {
	mu          sync.Mutex
	waivers     map[string]models.FeeWaiver
	approvedErr error
	reviewErr   error
	created     *models.FeeWaiver
}

func newStubWaiverStore(waivers ...models.FeeWaiver) *stubWaiverStore {
	s := &stubWaiverStore{waivers: make(map[string]models.FeeWaiver)}
	for _, w := range waivers {
		s.waivers[w.ID] = w
	}
	return s
}

func (s *stubWaiverStore) Create(_ context.Context, waiver *models.FeeWaiver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if waiver.ID == "" {
		waiver.ID = "waiver-new"
	}
	s.waivers[waiver.ID] = *waiver
	s.created = waiver
	return nil
}

func (s *stubWaiverStore) GetByID(_ context.Context, id string) (*models.FeeWaiver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.waivers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &w, nil
}

func (s *stubWaiverStore) List(_ context.Context, filter models.WaiverFilter) ([]models.FeeWaiver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FeeWaiver
	for _, w := range s.waivers {
		if filter.StudentID != "" && w.StudentID != filter.StudentID {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *stubWaiverStore) ListApprovedByStudents(_ context.Context, studentIDs []string) ([]models.FeeWaiver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.approvedErr != nil {
		return nil, s.approvedErr
	}
	wanted := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = struct{}{}
	}
	var out []models.FeeWaiver
	for _, w := range s.waivers {
		if _, ok := wanted[w.StudentID]; ok && w.Status == models.WaiverStatusApproved {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubWaiverStore) UpdateReview(_ context.Context, params repository.ReviewWaiverParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reviewErr != nil {
		return s.reviewErr
	}
	w, ok := s.waivers[params.ID]
	if !ok || w.Status != models.WaiverStatusPending {
		return sql.ErrNoRows
	}
	w.Status = params.Status
	reviewer := params.ReviewedBy
	w.ReviewedBy = &reviewer
	reviewedAt := params.ReviewedAt
	w.ReviewedAt = &reviewedAt
	w.RejectionReason = params.RejectionReason
	s.waivers[params.ID] = w
	return nil
}

type stubAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
	err  error
}

func (s *stubAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, *log)
	return nil
}

func (s *stubAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, l.Action)
	}
	return out
}

type stubGuardianStore struct {
	links []models.GuardianLink
	err   error
}

func (s *stubGuardianStore) ListResponsibleByStudents(_ context.Context, studentIDs []string) ([]models.GuardianLink, error) {
	if s.err != nil {
		return nil, s.err
	}
	wanted := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = struct{}{}
	}
	var out []models.GuardianLink
	for _, l := range s.links {
		if _, ok := wanted[l.StudentID]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

type stubSink struct {
	mu     sync.Mutex
	empty  map[string]bool
	errs   map[string]error
	sent   []models.Notification
}

func (s *stubSink) Send(_ context.Context, n models.Notification) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[n.RecipientID]; err != nil {
		return "", err
	}
	if s.empty[n.RecipientID] {
		return "", nil
	}
	s.sent = append(s.sent, n)
	return "notif-" + n.RecipientID, nil
}

type stubLockStore struct {
	mu         sync.Mutex
	available  bool
	acquireErr error
	held       map[string]string
	released   []string
}

func (s *stubLockStore) Available() bool { return s.available }

func (s *stubLockStore) AcquireLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return false, s.acquireErr
	}
	if s.held == nil {
		s.held = make(map[string]string)
	}
	if _, ok := s.held[key]; ok {
		return false, nil
	}
	s.held[key] = token
	return true, nil
}

func (s *stubLockStore) ReleaseLock(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held[key] != token {
		return errors.New("token mismatch")
	}
	delete(s.held, key)
	s.released = append(s.released, key)
	return nil
}

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	m.deleted = append(m.deleted, pattern)
	return nil
}
