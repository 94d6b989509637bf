package auth

import (
	"context"

	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/pkg/api"
)

//go:generate moq -out authenticator_mock.go . Authenticator

// Authenticator exchanges credentials for a session token
type Authenticator interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
}

// Store is the part of the local store used by the session service
type Store interface {
	storage.AuthStorage
	storage.MetadataStorage
	ClearAll(ctx context.Context) error
}

// Clock is adjusted to the server time delivered with the token
type Clock interface {
	SetServerTime(serverMillis int64) int64
}
