package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
	"github.com/reachend/auth-service/internal/infrastructure/security"
)

const testSecret = "test-secret-with-at-least-32-bytes!!"

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// ── clock ─────────────────────────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ── user repository ───────────────────────────────────────────────────────────

// stubUserRepo mimics the conditional writes of the real stores under a mutex.
type stubUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*domain.User
	err    error // forced error for every call when set
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[int64]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (r *stubUserRepo) activeByEmail(email string) *domain.User {
	for _, u := range r.users {
		if u.Email == email && !u.IsDeleted {
			return u
		}
	}
	return nil
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.activeByEmail(user.Email) != nil {
		return nil, domain.ErrDuplicateEmail
	}
	r.nextID++
	u := cloneUser(user)
	u.ID = r.nextID
	r.users[u.ID] = u
	return cloneUser(u), nil
}

func (r *stubUserRepo) FindActiveByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if u := r.activeByEmail(email); u != nil {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) List(_ context.Context, filter ports.ListUsersFilter) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		if u.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Offset >= len(out) {
		return []*domain.User{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *stubUserRepo) SetResetToken(_ context.Context, userID int64, token string, expiresAt, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.ResetToken = &token
	u.ResetTokenExpires = &expiresAt
	u.UpdatedAt = at
	return nil
}

func (r *stubUserRepo) SetOTP(_ context.Context, userID int64, code string, expiresAt, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.OTPCode = &code
	u.OTPExpiresAt = &expiresAt
	u.UpdatedAt = at
	return nil
}

func (r *stubUserRepo) ConsumeResetToken(_ context.Context, email, token, passwordHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.activeByEmail(email)
	if u == nil || u.ResetToken == nil || *u.ResetToken != token ||
		u.ResetTokenExpires == nil || !now.Before(*u.ResetTokenExpires) {
		return domain.ErrInvalidToken
	}
	u.PasswordHash = passwordHash
	u.ResetToken = nil
	u.ResetTokenExpires = nil
	return nil
}

func (r *stubUserRepo) ConsumeOTP(_ context.Context, email, code, passwordHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.activeByEmail(email)
	if u == nil || u.OTPCode == nil || *u.OTPCode != code ||
		u.OTPExpiresAt == nil || !now.Before(*u.OTPExpiresAt) {
		return domain.ErrInvalidOrExpiredOTP
	}
	u.PasswordHash = passwordHash
	u.OTPCode = nil
	u.OTPExpiresAt = nil
	return nil
}

func (r *stubUserRepo) SoftDelete(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.IsDeleted {
		return domain.ErrAlreadyDeleted
	}
	u.IsDeleted = true
	u.DeletedAt = &at
	return nil
}

func (r *stubUserRepo) HardDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *stubUserRepo) Ping(context.Context) error { return r.err }

func (r *stubUserRepo) get(id int64) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneUser(r.users[id])
}

// ── notification queue ────────────────────────────────────────────────────────

type stubQueue struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (q *stubQueue) Enqueue(n domain.Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, n)
	return nil
}

func (q *stubQueue) last() (domain.Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.sent) == 0 {
		return domain.Notification{}, false
	}
	return q.sent[len(q.sent)-1], true
}

var errStoreDown = errors.New("store unavailable")

// ── fixture ───────────────────────────────────────────────────────────────────

type fixture struct {
	repo   *stubUserRepo
	clock  *fakeClock
	queue  *stubQueue
	hasher *security.BcryptHasher
	codec  *security.JWTCodec
	auth   *AuthService
	reset  *ResetService
	users  *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   newStubUserRepo(),
		clock:  newFakeClock(),
		queue:  &stubQueue{},
		hasher: security.NewBcryptHasher(bcrypt.MinCost),
	}
	codec, err := security.NewJWTCodec(testSecret, f.clock)
	if err != nil {
		t.Fatalf("NewJWTCodec: %v", err)
	}
	f.codec = codec
	log := zerolog.Nop()
	f.auth = NewAuthService(f.repo, f.hasher, f.codec, f.clock, 30*time.Minute, log)
	f.reset = NewResetService(f.repo, f.hasher, f.codec, f.clock, nil, f.queue,
		ResetConfig{URLBase: "https://shop.example.com/reset-password"}, log)
	f.users = NewUserService(f.repo, f.clock, log)
	return f
}

func (f *fixture) register(t *testing.T, email, password string, role domain.Role) *domain.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), ports.RegisterInput{
		Name:     "Test " + email,
		Email:    email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}
