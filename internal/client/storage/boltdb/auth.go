package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophgrade/internal/client/storage"
)

var authKey = []byte("current")

// SaveAuth stores session data
func (s *Storage) SaveAuth(ctx context.Context, auth *storage.AuthData) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putAuth(tx, auth)
	})
}

func putAuth(tx *bbolt.Tx, auth *storage.AuthData) error {
	bucket := tx.Bucket(bucketAuth)
	if bucket == nil {
		return fmt.Errorf("auth bucket not found")
	}

	// Сериализуем данные в JSON
	data, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("failed to marshal auth data: %w", err)
	}

	if err := bucket.Put(authKey, data); err != nil {
		return fmt.Errorf("failed to save auth data: %w", err)
	}
	return nil
}

func getAuth(tx *bbolt.Tx) (*storage.AuthData, error) {
	bucket := tx.Bucket(bucketAuth)
	if bucket == nil {
		return nil, fmt.Errorf("auth bucket not found")
	}

	data := bucket.Get(authKey)
	if data == nil {
		return nil, storage.ErrAuthNotFound
	}

	auth := &storage.AuthData{}
	if err := json.Unmarshal(data, auth); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auth data: %w", err)
	}
	return auth, nil
}

// GetAuth retrieves stored session data
func (s *Storage) GetAuth(ctx context.Context) (*storage.AuthData, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var auth *storage.AuthData
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		auth, err = getAuth(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return auth, nil
}

// UpdateToken replaces the token of the stored session
func (s *Storage) UpdateToken(ctx context.Context, token string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		auth, err := getAuth(tx)
		if err != nil {
			return err
		}
		auth.Token = token
		return putAuth(tx, auth)
	})
}

// DeleteAuth removes stored session data (logout)
func (s *Storage) DeleteAuth(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAuth)
		if bucket == nil {
			return fmt.Errorf("auth bucket not found")
		}

		// Проверяем существование данных
		if bucket.Get(authKey) == nil {
			return storage.ErrAuthNotFound
		}

		if err := bucket.Delete(authKey); err != nil {
			return fmt.Errorf("failed to delete auth data: %w", err)
		}
		return nil
	})
}

// IsAuthenticated checks if a session with a token exists
func (s *Storage) IsAuthenticated(ctx context.Context) (bool, error) {
	auth, err := s.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return false, nil
		}
		return false, err
	}
	return auth.Token != "", nil
}
