package handlers

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/iudanet/gophgrade/internal/models"
	"github.com/iudanet/gophgrade/internal/server/storage"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testJWTConfig = JWTConfig{
	Secret:   []byte("test-secret-key"),
	TokenTTL: 15 * time.Minute,
}

// mockUserStorage is a mock implementation of UserStorage for testing
type mockUserStorage struct {
	users        map[string]*models.User // username -> User
	getUserError error
}

func (m *mockUserStorage) CreateUser(ctx context.Context, user *models.User) error {
	if _, exists := m.users[user.Username]; exists {
		return storage.ErrUserAlreadyExists
	}
	m.users[user.Username] = user
	return nil
}

func (m *mockUserStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.getUserError != nil {
		return nil, m.getUserError
	}
	user, ok := m.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if m.getUserError != nil {
		return nil, m.getUserError
	}
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

// mockDataStorage records applied batches and answers with fixed results
type mockDataStorage struct {
	dataset      *storage.Dataset
	keyMap       map[string]*string
	applyError   error
	loadError    error
	corrector    string
	applied      []storage.Change
	appliedAt    int64
	importCalled bool
}

func (m *mockDataStorage) ApplyChanges(ctx context.Context, correctorKey string, changes []storage.Change, now int64) (map[string]*string, error) {
	if m.applyError != nil {
		return nil, m.applyError
	}
	m.corrector = correctorKey
	m.applied = changes
	m.appliedAt = now
	return m.keyMap, nil
}

func (m *mockDataStorage) LoadData(ctx context.Context, correctorKey string) (*storage.Dataset, error) {
	if m.loadError != nil {
		return nil, m.loadError
	}
	m.corrector = correctorKey
	return m.dataset, nil
}

func (m *mockDataStorage) ImportTask(ctx context.Context, bundle *storage.Bundle) error {
	m.importCalled = true
	return nil
}

// mockPinger reports a fixed database state
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

func ptr(s string) *string {
	return &s
}
