package storage

import (
	"context"

	"github.com/iudanet/gophgrade/internal/models"
)

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveClockOffset saves the client/server clock offset in milliseconds
	SaveClockOffset(ctx context.Context, offset int64) error

	// GetClockOffset returns 0 if the clock has never been synchronized
	GetClockOffset(ctx context.Context) (int64, error)

	// SaveTask saves task settings delivered by the last refresh
	SaveTask(ctx context.Context, task models.Task) error

	// GetTask returns zero settings if no refresh has been performed yet
	GetTask(ctx context.Context) (models.Task, error)

	// SaveLastRefresh saves the server time (ms) of the last full refresh
	SaveLastRefresh(ctx context.Context, timestamp int64) error

	// GetLastRefresh returns 0 if no refresh has been performed yet
	GetLastRefresh(ctx context.Context) (int64, error)
}
