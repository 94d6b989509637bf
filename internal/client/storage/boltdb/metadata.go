package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophgrade/internal/models"
)

var (
	keyClockOffset = []byte("clock_offset")
	keyTask        = []byte("task")
	keyLastRefresh = []byte("last_refresh")
)

func (s *Storage) putMetadata(ctx context.Context, key, value []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}
		if err := bucket.Put(key, value); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
		return nil
	})
}

// getMetadata returns a copy of the value or nil if it is absent
func (s *Storage) getMetadata(ctx context.Context, key []byte) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}
		if data := bucket.Get(key); data != nil {
			value = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func encodeInt64(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeInt64(data []byte) int64 {
	if len(data) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(data))
}

// SaveClockOffset saves the client/server clock offset in milliseconds
func (s *Storage) SaveClockOffset(ctx context.Context, offset int64) error {
	return s.putMetadata(ctx, keyClockOffset, encodeInt64(offset))
}

// GetClockOffset returns 0 if the clock has never been synchronized
func (s *Storage) GetClockOffset(ctx context.Context) (int64, error) {
	data, err := s.getMetadata(ctx, keyClockOffset)
	if err != nil {
		return 0, err
	}
	return decodeInt64(data), nil
}

// SaveTask saves task settings
func (s *Storage) SaveTask(ctx context.Context, task models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return s.putMetadata(ctx, keyTask, data)
}

// GetTask returns zero settings if no task was saved yet
func (s *Storage) GetTask(ctx context.Context) (models.Task, error) {
	data, err := s.getMetadata(ctx, keyTask)
	if err != nil || data == nil {
		return models.Task{}, err
	}
	p, err := models.DecodePayload(data)
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return models.NewTask(p), nil
}

// SaveLastRefresh saves the server time (ms) of the last full refresh
func (s *Storage) SaveLastRefresh(ctx context.Context, timestamp int64) error {
	return s.putMetadata(ctx, keyLastRefresh, encodeInt64(timestamp))
}

// GetLastRefresh returns 0 if no refresh has been performed yet
func (s *Storage) GetLastRefresh(ctx context.Context) (int64, error) {
	data, err := s.getMetadata(ctx, keyLastRefresh)
	if err != nil {
		return 0, err
	}
	return decodeInt64(data), nil
}
