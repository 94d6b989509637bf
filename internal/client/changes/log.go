// Package changes implements the durable log of entity changes
// not yet acknowledged by the server.
package changes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/internal/models"
)

// Log keeps at most one pending record per (type, key).
// Records live in the per-type namespaces of the local store and are
// written in the same transaction as the mutation they describe.
type Log struct {
	store  storage.EntityStorage
	logger *slog.Logger
}

// New creates a change log over store
func New(store storage.EntityStorage, logger *slog.Logger) *Log {
	return &Log{
		store:  store,
		logger: logger,
	}
}

// Record admits rec in its own transaction
func (l *Log) Record(ctx context.Context, rec models.ChangeRecord) error {
	return l.store.Update(ctx, func(tx storage.Tx) error {
		return l.RecordTx(tx, rec)
	})
}

// RecordTx admits rec inside a caller's transaction.
// An invalid record is dropped without an error. A delete of an entity
// the server has never seen only discards its pending record.
func (l *Log) RecordTx(tx storage.Tx, rec models.ChangeRecord) error {
	if !rec.Valid() {
		l.logger.Debug("Change rejected by admission gate",
			"action", rec.Action,
			"type", rec.Type,
			"key", rec.Key,
			"item_key", rec.ItemKey)
		return nil
	}

	if rec.Action == models.ActionDelete && models.IsTempKey(rec.Key) {
		if err := tx.DeleteChange(rec.Type, rec.Key); err != nil {
			return fmt.Errorf("failed to discard change for %s %s: %w", rec.Type, rec.Key, err)
		}
		return nil
	}

	if err := tx.PutChange(rec); err != nil {
		return fmt.Errorf("failed to record change for %s %s: %w", rec.Type, rec.Key, err)
	}
	return nil
}

// Clear removes the pending record for (t, key)
func (l *Log) Clear(ctx context.Context, t models.EntityType, key string) error {
	return l.store.Update(ctx, func(tx storage.Tx) error {
		return tx.DeleteChange(t, key)
	})
}

// List returns pending records of type t with LastChange < maxTimeExclusive,
// ordered by LastChange and key. Zero maxTimeExclusive returns all records.
func (l *Log) List(ctx context.Context, t models.EntityType, maxTimeExclusive int64) ([]models.ChangeRecord, error) {
	var result []models.ChangeRecord
	err := l.store.View(ctx, func(tx storage.Tx) error {
		var err error
		result, err = ListTx(tx, t, maxTimeExclusive)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListTx is List inside a caller's transaction
func ListTx(tx storage.Tx, t models.EntityType, maxTimeExclusive int64) ([]models.ChangeRecord, error) {
	changes, err := tx.Changes(t)
	if err != nil {
		return nil, err
	}

	result := make([]models.ChangeRecord, 0, len(changes))
	for _, rec := range changes {
		if maxTimeExclusive != 0 && rec.LastChange >= maxTimeExclusive {
			continue
		}
		result = append(result, rec)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].LastChange != result[j].LastChange {
			return result[i].LastChange < result[j].LastChange
		}
		return result[i].Key < result[j].Key
	})
	return result, nil
}

// Pending returns the number of pending records per changeable type
func (l *Log) Pending(ctx context.Context) (map[models.EntityType]int, error) {
	pending := make(map[models.EntityType]int, len(models.ChangeTypes))
	err := l.store.View(ctx, func(tx storage.Tx) error {
		for _, t := range models.ChangeTypes {
			changes, err := tx.Changes(t)
			if err != nil {
				return err
			}
			pending[t] = len(changes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// Latest returns the highest LastChange over all pending records, 0 if none
func (l *Log) Latest(ctx context.Context) (int64, error) {
	var latest int64
	err := l.store.View(ctx, func(tx storage.Tx) error {
		for _, t := range models.ChangeTypes {
			changes, err := tx.Changes(t)
			if err != nil {
				return err
			}
			for _, rec := range changes {
				if rec.LastChange > latest {
					latest = rec.LastChange
				}
			}
		}
		return nil
	})
	return latest, err
}
