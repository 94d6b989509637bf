package storage

import (
	"context"

	"github.com/iudanet/gophgrade/internal/models"
)

// Change is one entry of a batch sent by a corrector
type Change struct {
	Payload    models.Payload
	Action     models.ChangeAction
	Type       models.EntityType
	Key        string
	ItemKey    string
	LastChange int64
}

// Dataset is everything a corrector needs to work offline
type Dataset struct {
	Entities map[models.EntityType][]models.Payload
	Task     models.Task
}

// Bundle is a task with its reference data and correctors, loaded by import
type Bundle struct {
	Entities map[models.EntityType][]models.Payload
	Users    []*models.User
	Task     models.Task
}

// DataStorage defines interface for correction data persistence
type DataStorage interface {
	// ApplyChanges applies a batch of corrector in one transaction.
	// The returned map assigns every sent key its permanent key,
	// or nil when the entity does not exist on the server.
	ApplyChanges(ctx context.Context, correctorKey string, changes []Change, now int64) (map[string]*string, error)

	// LoadData returns the task, reference data and own annotations of corrector
	// Returns ErrTaskNotFound before the first import
	LoadData(ctx context.Context, correctorKey string) (*Dataset, error)

	// ImportTask replaces the task and upserts its reference data and users
	ImportTask(ctx context.Context, bundle *Bundle) error
}
