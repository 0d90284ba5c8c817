package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"korner-support-service/internal/lock"
	"korner-support-service/internal/models"
	"korner-support-service/internal/repositories"
)

// memKYCStore keeps the KYC tables in maps and counts every write.
type memKYCStore struct {
	mu sync.Mutex

	settings    map[int64]*models.KYCUserSettings
	apps        map[int64]*models.KYCApplication
	files       map[string]*models.KYCFile
	decisions   []models.KYCDecision
	reasonCodes map[string]bool

	nextAppID  int64
	nextFileID int64
	writes     int
	now        func() time.Time
}

func newMemKYCStore() *memKYCStore {
	return &memKYCStore{
		settings: map[int64]*models.KYCUserSettings{},
		apps:     map[int64]*models.KYCApplication{},
		files:    map[string]*models.KYCFile{},
		reasonCodes: map[string]bool{
			"DOC_BLURRY":      true,
			"SELFIE_MISMATCH": true,
			"FRAUD_SUSPECTED": true,
		},
		now: time.Now,
	}
}

func (m *memKYCStore) GetOrCreateSettings(_ context.Context, userID int64, maxAttempts int) (*models.KYCUserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[userID]
	if !ok {
		s = &models.KYCUserSettings{UserID: userID, MaxAttempts: maxAttempts, CreatedAt: m.now()}
		m.settings[userID] = s
	}
	cp := *s
	return &cp, nil
}

func (m *memKYCStore) IncrementAttempts(_ context.Context, userID int64, maxAttempts int) (*models.KYCUserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.increment(userID, maxAttempts), nil
}

func (m *memKYCStore) increment(userID int64, maxAttempts int) *models.KYCUserSettings {
	s, ok := m.settings[userID]
	if !ok {
		s = &models.KYCUserSettings{UserID: userID, MaxAttempts: maxAttempts}
		m.settings[userID] = s
	}
	s.TotalAttempts++
	if s.TotalAttempts >= s.MaxAttempts && !s.IsBlocked {
		now := m.now()
		s.IsBlocked = true
		s.BlockedAt = &now
	}
	m.writes++
	cp := *s
	return &cp
}

func (m *memKYCStore) GetActiveApplication(_ context.Context, userID int64) (*models.KYCApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.KYCApplication
	for _, a := range m.apps {
		if a.UserID == userID && (latest == nil || a.ID > latest.ID) {
			latest = a
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memKYCStore) GetApplicationByID(_ context.Context, id int64) (*models.KYCApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memKYCStore) GetLatestApprovedApplication(_ context.Context, userID int64) (*models.KYCApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.KYCApplication
	for _, a := range m.apps {
		if a.UserID == userID && a.Status == models.KYCStatusApproved && (latest == nil || a.ID > latest.ID) {
			latest = a
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memKYCStore) DeleteExpiredDraft(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.apps[id]; ok && a.Status == models.KYCStatusDraft {
		delete(m.apps, id)
		m.writes++
	}
	return nil
}

func (m *memKYCStore) CreateDraft(_ context.Context, a *models.KYCApplication) (*models.KYCApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAppID++
	cp := *a
	cp.ID = m.nextAppID
	cp.Status = models.KYCStatusDraft
	cp.CreatedAt = m.now()
	cp.UpdatedAt = cp.CreatedAt
	m.apps[cp.ID] = &cp
	m.writes++
	out := cp
	return &out, nil
}

func (m *memKYCStore) UpdateDraft(_ context.Context, id int64, p *models.KYCApplication, expiresAt time.Time) (*models.KYCApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok || a.Status != models.KYCStatusDraft {
		return nil, repositories.ErrStatusChanged
	}
	merge := func(dst **string, src *string) {
		if src != nil {
			*dst = src
		}
	}
	merge(&a.Email, p.Email)
	merge(&a.Phone, p.Phone)
	merge(&a.FirstName, p.FirstName)
	merge(&a.LastName, p.LastName)
	merge(&a.MiddleName, p.MiddleName)
	merge(&a.CountryOfResidence, p.CountryOfResidence)
	if p.DateOfBirth != nil {
		a.DateOfBirth = p.DateOfBirth
	}
	a.ExpiresAt = &expiresAt
	a.UpdatedAt = m.now()
	m.writes++
	cp := *a
	return &cp, nil
}

func (m *memKYCStore) SubmitApplication(_ context.Context, id, userID int64, maxAttempts int) (*models.KYCApplication, *models.KYCUserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok || a.UserID != userID || a.Status != models.KYCStatusDraft {
		return nil, nil, repositories.ErrStatusChanged
	}
	now := m.now()
	a.Status = models.KYCStatusPending
	a.SubmittedAt = &now
	a.ExpiresAt = nil
	m.writes++
	settings := m.increment(userID, maxAttempts)
	cp := *a
	return &cp, settings, nil
}

func (m *memKYCStore) ListApplications(_ context.Context, f models.KYCApplicationFilter, afterID int64) ([]models.KYCApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.KYCApplication
	for _, a := range m.apps {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if afterID > 0 && a.ID >= afterID {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memKYCStore) CreateFile(_ context.Context, f *models.KYCFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextFileID++
	f.ID = m.nextFileID
	f.UploadStatus = models.KYCUploadPending
	f.CreatedAt = m.now()
	cp := *f
	m.files[f.FileID] = &cp
	m.writes++
	return nil
}

func (m *memKYCStore) ConfirmUpload(_ context.Context, userID int64, fileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok || f.UploadStatus != models.KYCUploadPending {
		return false, nil
	}
	a, ok := m.apps[f.ApplicationID]
	if !ok || a.UserID != userID {
		return false, nil
	}
	f.UploadStatus = models.KYCUploadUploaded
	m.writes++
	return true, nil
}

func (m *memKYCStore) AttachFiles(_ context.Context, applicationID int64, fileIDs []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range fileIDs {
		f, ok := m.files[id]
		if !ok || f.ApplicationID != applicationID || f.UploadStatus != models.KYCUploadUploaded {
			return false, nil
		}
	}
	for _, id := range fileIDs {
		m.files[id].UploadStatus = models.KYCUploadConfirmed
	}
	m.writes++
	return true, nil
}

func (m *memKYCStore) ListConfirmedFiles(_ context.Context, applicationID int64) ([]models.KYCFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.KYCFile
	for _, f := range m.files {
		if f.ApplicationID == applicationID && f.UploadStatus == models.KYCUploadConfirmed {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memKYCStore) GetLatestDecision(_ context.Context, applicationID int64) (*models.KYCDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.decisions) - 1; i >= 0; i-- {
		if m.decisions[i].ApplicationID == applicationID {
			cp := m.decisions[i]
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memKYCStore) UnknownReasonCodes(_ context.Context, codes []string) ([]string, error) {
	var unknown []string
	for _, c := range codes {
		if !m.reasonCodes[c] {
			unknown = append(unknown, c)
		}
	}
	return unknown, nil
}

func (m *memKYCStore) ListReasonCodes(_ context.Context) ([]models.KYCReasonCode, error) {
	codes := make([]models.KYCReasonCode, 0, len(m.reasonCodes))
	for c := range m.reasonCodes {
		codes = append(codes, models.KYCReasonCode{Code: c, Type: "reject", UsedFor: []string{"reject"}})
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].Code < codes[j].Code })
	return codes, nil
}

func (m *memKYCStore) ApplyDecision(_ context.Context, applicationID int64, from, to string, d *models.KYCDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[applicationID]
	if !ok || a.Status != from {
		return repositories.ErrStatusChanged
	}
	a.Status = to
	d.ApplicationID = applicationID
	d.ID = int64(len(m.decisions) + 1)
	d.CreatedAt = m.now()
	m.decisions = append(m.decisions, *d)
	m.writes += 2
	return nil
}

func (m *memKYCStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type stubPresigner struct {
	err error
}

func (p *stubPresigner) PresignUpload(_ context.Context, key, _ string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "https://s3.test/upload/" + key, nil
}

func (p *stubPresigner) PresignView(_ context.Context, key string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "https://s3.test/view/" + key, nil
}

// stubLocker mimics the redis mutex: a key can be held once.
type stubLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *stubLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, fmt.Errorf("%w: %s", lock.ErrLockHeld, key)
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, nil
}
