package storage

import (
	"context"
)

//go:generate moq -out authstorage_mock.go . AuthStorage

// AuthStorage defines interface for storing the corrector session on client
type AuthStorage interface {
	// SaveAuth stores session data
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored session data
	// Returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// UpdateToken replaces the token of the current session.
	// The server rotates the token with every response.
	UpdateToken(ctx context.Context, token string) error

	// DeleteAuth removes stored session data (logout)
	DeleteAuth(ctx context.Context) error

	// IsAuthenticated checks if a session with a token exists
	IsAuthenticated(ctx context.Context) (bool, error)
}

// AuthData represents the corrector session in storage
type AuthData struct {
	Username     string `json:"username"`
	CorrectorKey string `json:"corrector_key"`
	Token        string `json:"token"`
	ServerURL    string `json:"server_url"`
}
