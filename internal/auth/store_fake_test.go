package auth

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"workspace-auth/internal/config"
	"workspace-auth/internal/observability"
)

const testSecret = "test-secret-test-secret-test-secret!"

var testArgon2 = config.Argon2{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

// memoryStore enforces the same unique constraints as the SQL schema.
type memoryStore struct {
	mu       sync.Mutex
	users    map[string]User
	sessions map[string]RefreshSession

	// createGate, when set, holds every user insert until all expected
	// inserts have arrived.
	createGate *sync.WaitGroup
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:    make(map[string]User),
		sessions: make(map[string]RefreshSession),
	}
}

func (m *memoryStore) InTx(ctx context.Context, fn func(ctx context.Context, users Users, sessions Sessions) error) error {
	return fn(ctx, memoryUsers{m}, memorySessions{m})
}

func (m *memoryStore) session(jti string) RefreshSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[jti]
}

func (m *memoryStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memoryStore) setActive(userID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[userID]
	user.IsActive = active
	m.users[userID] = user
}

func (m *memoryStore) deleteUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	for jti, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, jti)
		}
	}
}

type memoryUsers struct{ m *memoryStore }

func (u memoryUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	for _, user := range u.m.users {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (u memoryUsers) ExistsByUsername(_ context.Context, username string) (bool, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	for _, user := range u.m.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (u memoryUsers) Create(_ context.Context, input NewUser) (User, error) {
	if u.m.createGate != nil {
		u.m.createGate.Done()
		u.m.createGate.Wait()
	}

	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	for _, user := range u.m.users {
		if user.Email == input.Email {
			return User{}, &ConflictError{Field: "email"}
		}
		if user.Username == input.Username {
			return User{}, &ConflictError{Field: "username"}
		}
	}

	now := time.Now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: input.PasswordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	u.m.users[user.ID] = user
	return user, nil
}

func (u memoryUsers) GetByEmail(_ context.Context, email string) (User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	for _, user := range u.m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (u memoryUsers) GetByID(_ context.Context, id string) (User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	user, ok := u.m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

type memorySessions struct{ m *memoryStore }

func (s memorySessions) Create(_ context.Context, userID, jti string, expiresAt time.Time, device DeviceInfo) (RefreshSession, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	session := RefreshSession{
		ID:        uuid.NewString(),
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
		Device:    device,
	}
	s.m.sessions[jti] = session
	return session, nil
}

func (s memorySessions) FindActiveByJTI(_ context.Context, jti string) (RefreshSession, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	session, ok := s.m.sessions[jti]
	if !ok || session.RevokedAt != nil {
		return RefreshSession{}, errSessionNotFound
	}
	return session, nil
}

func (s memorySessions) Revoke(_ context.Context, jti string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	session, ok := s.m.sessions[jti]
	if ok && session.RevokedAt == nil {
		session.RevokedAt = &at
		s.m.sessions[jti] = session
	}
	return nil
}

func (s memorySessions) RevokeAll(_ context.Context, userID string, at time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for jti, session := range s.m.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			session.RevokedAt = &at
			s.m.sessions[jti] = session
			n++
		}
	}
	return n, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type serviceFixture struct {
	service *Service
	store   *memoryStore
	codec   *TokenCodec
	clock   *testClock
	logs    *bytes.Buffer
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()

	hasher, err := NewHasher(testArgon2)
	require.NoError(t, err)

	clock := &testClock{now: time.Now().UTC()}
	codec := newTestCodec(clock.Now)
	store := newMemoryStore()
	logs := &bytes.Buffer{}

	service := NewService(store, hasher, codec, observability.NewLoggerTo(logs))
	service.now = clock.Now

	return serviceFixture{service: service, store: store, codec: codec, clock: clock, logs: logs}
}

func newTestCodec(now func() time.Time) *TokenCodec {
	codec := NewTokenCodec(config.Config{
		JWTSecret:       testSecret,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	})
	codec.now = now
	return codec
}
