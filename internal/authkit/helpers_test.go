package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tyemirov/bookly/internal/mailer"
	"go.uber.org/zap/zaptest"
)

var testSigningKey = []byte("test-signing-key-0123456789abcdef")

type controllableClock struct {
	mutex   sync.Mutex
	current time.Time
}

func newControllableClock() *controllableClock {
	return &controllableClock{current: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (clock *controllableClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.current
}

func (clock *controllableClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = clock.current.Add(duration)
}

type testUserStore struct {
	mutex  sync.Mutex
	users  map[string]UserRecord
	nextID int
	err    error
}

func newTestUserStore() *testUserStore {
	return &testUserStore{users: make(map[string]UserRecord)}
}

func (store *testUserStore) seed(t *testing.T, email string, password string, verified bool, role string) UserRecord {
	t.Helper()
	passwordHash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	record, createErr := store.CreateUser(context.Background(), NewUser{
		Username:     strings.Split(email, "@")[0],
		Email:        email,
		FirstName:    "Test",
		LastName:     "Reader",
		PasswordHash: passwordHash,
	})
	if createErr != nil {
		t.Fatalf("seed user: %v", createErr)
	}
	store.mutex.Lock()
	record.IsVerified = verified
	record.Role = role
	store.users[email] = record
	store.mutex.Unlock()
	return record
}

func (store *testUserStore) CreateUser(ctx context.Context, user NewUser) (UserRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.err != nil {
		return UserRecord{}, store.err
	}
	if _, exists := store.users[user.Email]; exists {
		return UserRecord{}, ErrUserAlreadyExists
	}
	store.nextID++
	record := UserRecord{
		UserID:       fmt.Sprintf("uid-%d", store.nextID),
		Username:     user.Username,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Role:         "user",
		PasswordHash: user.PasswordHash,
	}
	store.users[user.Email] = record
	return record, nil
}

func (store *testUserStore) UserExists(ctx context.Context, email string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.err != nil {
		return false, store.err
	}
	_, exists := store.users[email]
	return exists, nil
}

func (store *testUserStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.err != nil {
		return UserRecord{}, store.err
	}
	record, exists := store.users[email]
	if !exists {
		return UserRecord{}, ErrUserNotFound
	}
	return record, nil
}

func (store *testUserStore) MarkVerified(ctx context.Context, email string) error {
	return store.update(email, func(record *UserRecord) { record.IsVerified = true })
}

func (store *testUserStore) UpdatePasswordHash(ctx context.Context, email string, passwordHash string) error {
	return store.update(email, func(record *UserRecord) { record.PasswordHash = passwordHash })
}

func (store *testUserStore) update(email string, mutate func(record *UserRecord)) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, exists := store.users[email]
	if !exists {
		return ErrUserNotFound
	}
	mutate(&record)
	store.users[email] = record
	return nil
}

type recordingDispatcher struct {
	mutex    sync.Mutex
	messages []mailer.Message
	err      error
}

func (dispatcher *recordingDispatcher) Dispatch(ctx context.Context, message mailer.Message) error {
	dispatcher.mutex.Lock()
	defer dispatcher.mutex.Unlock()
	if dispatcher.err != nil {
		return dispatcher.err
	}
	dispatcher.messages = append(dispatcher.messages, message)
	return nil
}

func (dispatcher *recordingDispatcher) last(t *testing.T) mailer.Message {
	t.Helper()
	dispatcher.mutex.Lock()
	defer dispatcher.mutex.Unlock()
	if len(dispatcher.messages) == 0 {
		t.Fatalf("expected a dispatched message")
	}
	return dispatcher.messages[len(dispatcher.messages)-1]
}

// failingRevocationStore fails every operation with err.
type failingRevocationStore struct {
	err error
}

func (store failingRevocationStore) Put(context.Context, string, string, time.Duration) error {
	return store.err
}

func (store failingRevocationStore) Get(context.Context, string) (string, error) {
	return "", store.err
}

func (store failingRevocationStore) Delete(context.Context, string) error {
	return store.err
}

var errStoreUnavailable = errors.New("store unavailable")

type sessionFixture struct {
	clock    *controllableClock
	users    *testUserStore
	backend  *MemoryRevocationStore
	refresh  RevocationStore
	denylist RevocationStore
	tokens   *TokenService
	metrics  *CounterMetrics
	sessions *SessionService
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	clock := newControllableClock()
	backend := NewMemoryRevocationStore(clock)
	fixture := &sessionFixture{
		clock:    clock,
		users:    newTestUserStore(),
		backend:  backend,
		refresh:  NewNamespacedStore(backend, RefreshSessionNamespace),
		denylist: NewNamespacedStore(backend, DenylistNamespace),
		metrics:  NewCounterMetrics(),
	}
	fixture.rebuild(t)
	return fixture
}

func (fixture *sessionFixture) rebuild(t *testing.T) {
	t.Helper()
	tokens, err := NewTokenService(testSigningKey, DefaultAccessTokenTTL, fixture.clock)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	fixture.tokens = tokens
	sessions, sessionErr := NewSessionService(ServerConfig{RefreshTTL: DefaultRefreshTTL}, SessionDependencies{
		Users:           fixture.users,
		Tokens:          tokens,
		RefreshSessions: fixture.refresh,
		Denylist:        fixture.denylist,
		Clock:           fixture.clock,
		Logger:          zaptest.NewLogger(t),
		Metrics:         fixture.metrics,
	})
	if sessionErr != nil {
		t.Fatalf("session service: %v", sessionErr)
	}
	fixture.sessions = sessions
}
