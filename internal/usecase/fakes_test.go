package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/repository"
)

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User

	getErr     error
	failedHits int
}

func newMemoryUserRepo(users ...domain.User) *memoryUserRepo {
	repo := &memoryUserRepo{users: make(map[string]domain.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *memoryUserRepo) get(id string) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

func (r *memoryUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return repository.ErrConflict
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memoryUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, user := range r.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryUserRepo) List(_ context.Context, filter port.UserFilter) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		if filter.Status != "" && user.Status != filter.Status {
			continue
		}
		out = append(out, user)
	}
	return out, nil
}

func (r *memoryUserRepo) Update(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	current.Name = user.Name
	current.Role = user.Role
	current.Status = user.Status
	current.UpdatedAt = user.UpdatedAt
	r.users[user.ID] = current
	return nil
}

func (r *memoryUserRepo) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	current.PasswordHash = hash
	current.UpdatedAt = changedAt
	r.users[id] = current
	return nil
}

func (r *memoryUserRepo) UpdateLoginState(_ context.Context, id string, state domain.LoginState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	current.FailedAttempts = state.FailedAttempts
	current.LockUntil = state.LockUntil
	if state.LastLogin != nil {
		current.LastLogin = state.LastLogin
	}
	r.users[id] = current
	return nil
}

func (r *memoryUserRepo) RegisterFailedLogin(_ context.Context, id string, policy domain.LockoutPolicy, now time.Time) (domain.LockState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[id]
	if !ok {
		return domain.LockState{}, repository.ErrNotFound
	}
	r.failedHits++
	next := policy.RecordFailure(current.LockState(), now)
	current.FailedAttempts = next.Attempts
	current.LockUntil = next.LockedUntil
	r.users[id] = current
	return next, nil
}

type recordingAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	err     error
	filter  domain.AuditFilter
}

func (r *recordingAuditRepo) Insert(_ context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAuditRepo) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = filter
	return append([]domain.AuditEntry(nil), r.entries...), nil
}

func (r *recordingAuditRepo) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingPublisher struct {
	mu      sync.Mutex
	audits  []domain.AuditRecordedEvent
	locks   []domain.AccountLockedEvent
	failAll bool
}

func (p *recordingPublisher) PublishAuditRecorded(_ context.Context, event domain.AuditRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("broker unavailable")
	}
	p.audits = append(p.audits, event)
	return nil
}

func (p *recordingPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("broker unavailable")
	}
	p.locks = append(p.locks, event)
	return nil
}

// plainHasher stores "plain:<password>" so tests stay fast.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "plain:" + password, nil
}

func (plainHasher) Verify(password, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, "plain:") {
		return false, errors.New("unexpected hash format")
	}
	return strings.TrimPrefix(encoded, "plain:") == password, nil
}

// legacyHasher accepts "legacy:<password>" hashes and asks for them to be upgraded.
type legacyHasher struct{ plainHasher }

func (legacyHasher) Verify(password, encoded string) (bool, error) {
	if rest, ok := strings.CutPrefix(encoded, "legacy:"); ok {
		return rest == password, nil
	}
	return plainHasher{}.Verify(password, encoded)
}

func (legacyHasher) NeedsRehash(encoded string) bool {
	return strings.HasPrefix(encoded, "legacy:")
}

type rejectPolicy struct{ err error }

func (p rejectPolicy) Validate(string, ...string) error { return p.err }

type countingMetrics struct {
	mu         sync.Mutex
	logins     map[string]int
	lockouts   int
	rejections map[string]int
	auditFails int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{logins: map[string]int{}, rejections: map[string]int{}}
}

func (m *countingMetrics) LoginAttempt(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[outcome]++
}

func (m *countingMetrics) LockEngaged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockouts++
}

func (m *countingMetrics) TokenRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[reason]++
}

func (m *countingMetrics) AuditWriteFailed(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditFails++
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
