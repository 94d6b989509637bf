package storage

import (
	"context"

	"github.com/iudanet/gophgrade/internal/models"
)

// Tx is a view of the local store inside one transaction.
// Entry and index updates made through it are applied atomically
// together with every other change of the same transaction.
type Tx interface {
	// GetEntity returns ErrEntityNotFound if nothing is stored under key
	GetEntity(t models.EntityType, key string) (models.Entity, error)

	// PutEntity stores e under its key and appends the key to the index if it is new
	PutEntity(e models.Entity) error

	// DeleteEntity removes the entry and its index position; a missing key is not an error
	DeleteEntity(t models.EntityType, key string) error

	// Keys returns member keys in index order
	Keys(t models.EntityType) ([]string, error)

	// ForEachEntity walks the namespace in index order
	ForEachEntity(t models.EntityType, fn func(models.Entity) error) error

	// ClearEntities removes every entry of the namespace; pending changes are kept
	ClearEntities(t models.EntityType) error

	// Changes returns the pending change records of the namespace by key
	Changes(t models.EntityType) (map[string]models.ChangeRecord, error)

	// PutChange replaces the pending record for (rec.Type, rec.Key)
	PutChange(rec models.ChangeRecord) error

	// DeleteChange removes a pending record; a missing record is not an error
	DeleteChange(t models.EntityType, key string) error
}

// Snapshot is a full data set delivered by a remote refresh
type Snapshot map[models.EntityType][]models.Entity

// EntityStorage defines the durable namespaced entity store of the client.
// Every namespace keeps the whole collection, for all items.
type EntityStorage interface {
	// View runs fn in a read-only transaction
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn in a read-write transaction.
	// If fn returns an error nothing of its work is persisted.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// GetEntity retrieves an entity by type and key
	// Returns ErrEntityNotFound if entity doesn't exist
	GetEntity(ctx context.Context, t models.EntityType, key string) (models.Entity, error)

	// SaveEntity stores or updates an entity
	SaveEntity(ctx context.Context, e models.Entity) error

	// RemoveEntity deletes an entity, keeping the index consistent
	RemoveEntity(ctx context.Context, t models.EntityType, key string) error

	// ListEntities returns entities of type t owned by itemKey in index order.
	// Empty itemKey returns the whole collection.
	ListEntities(ctx context.Context, t models.EntityType, itemKey string) ([]models.Entity, error)

	// ReplaceAll clears every namespace and fills it from snapshot in one transaction.
	// Returns ErrChangesPending and changes nothing if any change is still pending.
	ReplaceAll(ctx context.Context, snapshot Snapshot) error

	// ClearAll removes all entities, pending changes, session and metadata (logout/reset)
	ClearAll(ctx context.Context) error
}
