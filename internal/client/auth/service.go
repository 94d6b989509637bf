// Package auth manages the corrector session stored on the client.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iudanet/gophgrade/internal/client/changes"
	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/internal/validation"
	"github.com/iudanet/gophgrade/pkg/api"
)

// ErrOtherCorrector is returned when logging in as another corrector
// while changes of the current one are still queued
var ErrOtherCorrector = errors.New("changes of another corrector are pending")

// Service предоставляет функции авторизации
type Service struct {
	api       Authenticator
	store     Store
	log       *changes.Log
	clock     Clock
	logger    *slog.Logger
	serverURL string
}

// NewService создает новый сервис авторизации
func NewService(authenticator Authenticator, store Store, log *changes.Log, clock Clock, serverURL string, logger *slog.Logger) *Service {
	return &Service{
		api:       authenticator,
		store:     store,
		log:       log,
		clock:     clock,
		logger:    logger,
		serverURL: serverURL,
	}
}

// Login authenticates the corrector and stores the session.
// Switching to another corrector wipes the local store first.
func (s *Service) Login(ctx context.Context, username, password string) (*storage.AuthData, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	resp, err := s.api.Login(ctx, api.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if resp.Token == "" || resp.CorrectorKey == "" {
		return nil, fmt.Errorf("login failed: incomplete server response")
	}

	current, err := s.store.GetAuth(ctx)
	switch {
	case errors.Is(err, storage.ErrAuthNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to get session: %w", err)
	case current.CorrectorKey != resp.CorrectorKey:
		// Данные другого корректора не должны смешиваться
		if err := s.reset(ctx, false); err != nil {
			if errors.Is(err, storage.ErrChangesPending) {
				return nil, fmt.Errorf("%w: %s", ErrOtherCorrector, current.Username)
			}
			return nil, err
		}
	}

	session := &storage.AuthData{
		Username:     resp.Username,
		CorrectorKey: resp.CorrectorKey,
		Token:        resp.Token,
		ServerURL:    s.serverURL,
	}
	if session.Username == "" {
		session.Username = username
	}
	if err := s.store.SaveAuth(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if resp.ServerTime > 0 {
		offset := s.clock.SetServerTime(resp.ServerTime)
		if err := s.store.SaveClockOffset(ctx, offset); err != nil {
			s.logger.Warn("Failed to persist clock offset", "error", err)
		}
	}

	s.logger.Info("Logged in", "username", session.Username, "corrector_key", session.CorrectorKey)
	return session, nil
}

// Session returns the stored session or storage.ErrAuthNotFound
func (s *Service) Session(ctx context.Context) (*storage.AuthData, error) {
	return s.store.GetAuth(ctx)
}

// Logout wipes the local store. Unless force is set it refuses with
// storage.ErrChangesPending while changes are queued.
func (s *Service) Logout(ctx context.Context, force bool) error {
	if err := s.reset(ctx, force); err != nil {
		return err
	}
	s.logger.Info("Logged out, local data removed")
	return nil
}

func (s *Service) reset(ctx context.Context, force bool) error {
	if !force {
		pending, err := s.log.Pending(ctx)
		if err != nil {
			return fmt.Errorf("failed to count pending changes: %w", err)
		}
		total := 0
		for _, n := range pending {
			total += n
		}
		if total > 0 {
			return fmt.Errorf("%w: %d change(s) not sent", storage.ErrChangesPending, total)
		}
	}

	if err := s.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear local data: %w", err)
	}
	return nil
}
