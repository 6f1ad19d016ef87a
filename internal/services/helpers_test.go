package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/guard"
	"github.com/BradenHooton/gatekeeper/internal/models"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// MockAccountRepository keeps accounts in memory and enforces the version
// check on Save. The Func fields override individual methods.
type MockAccountRepository struct {
	mu       sync.Mutex
	accounts map[int64]models.AccountRecord
	saves    int

	GetByEmailFunc  func(ctx context.Context, email string) (*models.AccountRecord, error)
	EmailExistsFunc func(ctx context.Context, email string) (bool, error)
	CreateFunc      func(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error)
	ListFunc        func(ctx context.Context, filter models.AccountFilter) ([]models.AccountRecord, int64, error)
	// SaveFunc runs before the default Save; a nil error falls through to it.
	SaveFunc func(ctx context.Context, rec *models.AccountRecord) error
}

func NewMockAccountRepository(recs ...models.AccountRecord) *MockAccountRepository {
	m := &MockAccountRepository{accounts: make(map[int64]models.AccountRecord)}
	for _, rec := range recs {
		m.accounts[rec.ID] = rec.Clone()
	}
	return m
}

func (m *MockAccountRepository) stored(id int64) models.AccountRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].Clone()
}

func (m *MockAccountRepository) find(match func(models.AccountRecord) bool) (*models.AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.accounts {
		if match(rec) {
			found := rec.Clone()
			return &found, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*models.AccountRecord, error) {
	return m.find(func(r models.AccountRecord) bool { return r.ID == id })
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.AccountRecord, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return m.find(func(r models.AccountRecord) bool { return strings.EqualFold(r.Email, email) })
}

func (m *MockAccountRepository) GetByVerificationToken(ctx context.Context, token string) (*models.AccountRecord, error) {
	return m.find(func(r models.AccountRecord) bool { return r.VerificationToken != "" && r.VerificationToken == token })
}

func (m *MockAccountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	if m.EmailExistsFunc != nil {
		return m.EmailExistsFunc(ctx, email)
	}
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *MockAccountRepository) PhoneExists(ctx context.Context, phone string) (bool, error) {
	_, err := m.find(func(r models.AccountRecord) bool { return r.Phone != nil && *r.Phone == phone })
	return err == nil, nil
}

func (m *MockAccountRepository) Create(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	created := rec.Clone()
	created.Version = 1
	m.accounts[created.ID] = created
	out := created.Clone()
	return &out, nil
}

func (m *MockAccountRepository) Save(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error) {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, rec); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	current, ok := m.accounts[rec.ID]
	if !ok || current.Version != rec.Version {
		return nil, models.ErrConcurrentUpdate
	}
	saved := rec.Clone()
	saved.Version++
	m.accounts[saved.ID] = saved
	out := saved.Clone()
	return &out, nil
}

// List orders by CreatedAt then ID, newest first.
func (m *MockAccountRepository) List(ctx context.Context, filter models.AccountFilter) ([]models.AccountRecord, int64, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []models.AccountRecord
	for _, rec := range m.accounts {
		if filter.Status == "" || rec.Status == filter.Status {
			matched = append(matched, rec.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := min(filter.Offset, len(matched))
	end := min(start+filter.Limit, len(matched))
	return matched[start:end], total, nil
}

// bumpFailures simulates another request recording a failed login.
func (m *MockAccountRepository) bumpFailures(id int64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.accounts[id]
	next := guard.HandleFailedLogin(rec, now)
	next.Version = rec.Version + 1
	m.accounts[id] = next
}

// MockProfileCache is an in-memory ProfileCache. Err fails every call.
type MockProfileCache struct {
	mu       sync.Mutex
	profiles map[int64]models.Profile
	gets     int
	deletes  []int64
	Err      error
}

func NewMockProfileCache() *MockProfileCache {
	return &MockProfileCache{profiles: map[int64]models.Profile{}}
}

func (c *MockProfileCache) Get(ctx context.Context, id int64) (*models.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.Err != nil {
		return nil, c.Err
	}
	p, ok := c.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *MockProfileCache) Set(ctx context.Context, profile *models.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.profiles[profile.ID] = *profile
	return nil
}

func (c *MockProfileCache) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.deletes = append(c.deletes, id)
	delete(c.profiles, id)
	return nil
}

func (c *MockProfileCache) cached(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.profiles[id]
	return ok
}

// MockHasher "hashes" by prefixing, so tests stay fast.
type MockHasher struct {
	mu          sync.Mutex
	verifyCalls int
	HashErr     error
}

func (h *MockHasher) Hash(password string) (string, error) {
	if h.HashErr != nil {
		return "", h.HashErr
	}
	return "hashed:" + password, nil
}

func (h *MockHasher) Verify(password, encoded string) (bool, error) {
	h.mu.Lock()
	h.verifyCalls++
	h.mu.Unlock()
	if !strings.HasPrefix(encoded, "hashed:") {
		return false, errors.New("invalid hash")
	}
	return encoded == "hashed:"+password, nil
}

type MockPublisher struct {
	mu     sync.Mutex
	events []models.Event
	Err    error
}

func (p *MockPublisher) Publish(ctx context.Context, event models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *MockPublisher) published() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event(nil), p.events...)
}

type MockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]string
	ttls     map[string]time.Duration
	PutErr   error
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{sessions: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *MockSessionStore) Put(ctx context.Context, sessionID, refreshToken string, ttl time.Duration) error {
	if s.PutErr != nil {
		return s.PutErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = refreshToken
	s.ttls[sessionID] = ttl
	return nil
}

func (s *MockSessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

type MockSigner struct {
	access  guard.SessionClaims
	refresh guard.SessionClaims
}

func (s *MockSigner) SignPair(access, refresh guard.SessionClaims) (*models.TokenPair, error) {
	s.access, s.refresh = access, refresh
	return &models.TokenPair{
		AccessToken:  "access-" + access.SessionID,
		RefreshToken: "refresh-" + refresh.SessionID,
		TokenType:    "Bearer",
		ExpiresIn:    int64(access.ExpiresAt.Sub(access.IssuedAt).Seconds()),
	}, nil
}

type fixedIDs struct{ id int64 }

func (f fixedIDs) NextID() int64 { return f.id }

func newTestAccountService(repo *MockAccountRepository, publisher *MockPublisher) *AccountService {
	logger := slog.Default()
	s := NewAccountService(repo, &MockHasher{}, fixedIDs{id: 1001}, publisher, logger, pkglogger.NewAuditLogger(logger))
	s.now = func() time.Time { return testNow }
	s.newToken = func() string { return "new-token" }
	return s
}

func newTestUserService(repo AccountRepository, publisher *MockPublisher, cache ProfileCache) *UserService {
	logger := slog.Default()
	s := NewUserService(repo, &MockHasher{}, fixedIDs{id: 2001}, publisher, cache, logger, pkglogger.NewAuditLogger(logger))
	s.now = func() time.Time { return testNow }
	s.newToken = func() string { return "new-token" }
	return s
}

func newTestAuthService(repo *MockAccountRepository, hasher *MockHasher, sessions *MockSessionStore, publisher *MockPublisher) (*AuthService, *MockSigner) {
	logger := slog.Default()
	signer := &MockSigner{}
	s := NewAuthService(repo, hasher, signer, sessions, publisher, logger, pkglogger.NewAuditLogger(logger))
	s.now = func() time.Time { return testNow }
	s.newID = func() string { return "session-1" }
	return s, signer
}

// NewTestAccount returns an active account whose password is "Secret#123".
func NewTestAccount(id int64, email string) models.AccountRecord {
	return models.AccountRecord{
		ID:              id,
		Username:        strings.Split(email, "@")[0],
		Email:           email,
		PasswordHash:    "hashed:Secret#123",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Status:          models.StatusActive,
		Role:            models.RoleCustomer,
		EmailVerifiedAt: models.TimePtr(testNow.Add(-48 * time.Hour)),
		Version:         1,
		CreatedAt:       testNow.Add(-72 * time.Hour),
		UpdatedAt:       testNow.Add(-48 * time.Hour),
	}
}

// NewPendingAccount returns an unverified account holding token.
func NewPendingAccount(id int64, email, token string, expiry time.Time) models.AccountRecord {
	rec := NewTestAccount(id, email)
	rec.Status = models.StatusPending
	rec.EmailVerifiedAt = nil
	rec.VerificationToken = token
	rec.VerificationTokenExpiry = models.TimePtr(expiry)
	return rec
}
