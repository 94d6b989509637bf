package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/internal/models"
)

// boltTx implements storage.Tx on top of a bbolt transaction
type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) namespace(typ models.EntityType) (*bbolt.Bucket, error) {
	if !models.IsKnownType(typ) {
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownType, typ)
	}
	ns := t.tx.Bucket(namespaceBucket(typ))
	if ns == nil {
		return nil, fmt.Errorf("%s namespace not found", typ)
	}
	return ns, nil
}

func (t *boltTx) entries(typ models.EntityType) (*bbolt.Bucket, *bbolt.Bucket, error) {
	ns, err := t.namespace(typ)
	if err != nil {
		return nil, nil, err
	}
	entries := ns.Bucket(bucketEntries)
	if entries == nil {
		return nil, nil, fmt.Errorf("%s entries bucket not found", typ)
	}
	return ns, entries, nil
}

func readIndex(ns *bbolt.Bucket) ([]string, error) {
	data := ns.Get(keyIndex)
	if data == nil {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index: %w", err)
	}
	return keys, nil
}

func writeIndex(ns *bbolt.Bucket, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := ns.Put(keyIndex, data); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	return nil
}

func (t *boltTx) GetEntity(typ models.EntityType, key string) (models.Entity, error) {
	_, entries, err := t.entries(typ)
	if err != nil {
		return nil, err
	}
	data := entries.Get([]byte(key))
	if data == nil {
		return nil, storage.ErrEntityNotFound
	}
	return models.Decode(typ, data)
}

func (t *boltTx) PutEntity(e models.Entity) error {
	if e.GetKey() == "" {
		return storage.ErrEmptyKey
	}
	ns, entries, err := t.entries(e.Type())
	if err != nil {
		return err
	}

	data, err := models.Encode(e)
	if err != nil {
		return err
	}

	key := []byte(e.GetKey())
	isNew := entries.Get(key) == nil
	if err := entries.Put(key, data); err != nil {
		return fmt.Errorf("failed to save %s %s: %w", e.Type(), e.GetKey(), err)
	}
	if !isNew {
		return nil
	}

	// Новый ключ дописываем в конец индекса
	keys, err := readIndex(ns)
	if err != nil {
		return err
	}
	return writeIndex(ns, append(keys, e.GetKey()))
}

func (t *boltTx) DeleteEntity(typ models.EntityType, key string) error {
	ns, entries, err := t.entries(typ)
	if err != nil {
		return err
	}
	if entries.Get([]byte(key)) == nil {
		return nil
	}
	if err := entries.Delete([]byte(key)); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", typ, key, err)
	}

	keys, err := readIndex(ns)
	if err != nil {
		return err
	}
	kept := keys[:0]
	for _, k := range keys {
		if k != key {
			kept = append(kept, k)
		}
	}
	return writeIndex(ns, kept)
}

func (t *boltTx) Keys(typ models.EntityType) ([]string, error) {
	ns, err := t.namespace(typ)
	if err != nil {
		return nil, err
	}
	return readIndex(ns)
}

func (t *boltTx) ForEachEntity(typ models.EntityType, fn func(models.Entity) error) error {
	ns, entries, err := t.entries(typ)
	if err != nil {
		return err
	}
	keys, err := readIndex(ns)
	if err != nil {
		return err
	}
	for _, key := range keys {
		data := entries.Get([]byte(key))
		if data == nil {
			continue
		}
		e, err := models.Decode(typ, data)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (t *boltTx) ClearEntities(typ models.EntityType) error {
	ns, err := t.namespace(typ)
	if err != nil {
		return err
	}
	if ns.Bucket(bucketEntries) != nil {
		if err := ns.DeleteBucket(bucketEntries); err != nil {
			return fmt.Errorf("failed to clear %s entries: %w", typ, err)
		}
	}
	if _, err := ns.CreateBucket(bucketEntries); err != nil {
		return fmt.Errorf("failed to create %s entries bucket: %w", typ, err)
	}
	return writeIndex(ns, nil)
}

func (t *boltTx) Changes(typ models.EntityType) (map[string]models.ChangeRecord, error) {
	ns, err := t.namespace(typ)
	if err != nil {
		return nil, err
	}
	changes := make(map[string]models.ChangeRecord)
	data := ns.Get(keyChanges)
	if data == nil {
		return changes, nil
	}
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s changes: %w", typ, err)
	}
	return changes, nil
}

func (t *boltTx) writeChanges(typ models.EntityType, changes map[string]models.ChangeRecord) error {
	ns, err := t.namespace(typ)
	if err != nil {
		return err
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to marshal %s changes: %w", typ, err)
	}
	if err := ns.Put(keyChanges, data); err != nil {
		return fmt.Errorf("failed to save %s changes: %w", typ, err)
	}
	return nil
}

func (t *boltTx) PutChange(rec models.ChangeRecord) error {
	changes, err := t.Changes(rec.Type)
	if err != nil {
		return err
	}
	changes[rec.Key] = rec
	return t.writeChanges(rec.Type, changes)
}

func (t *boltTx) DeleteChange(typ models.EntityType, key string) error {
	changes, err := t.Changes(typ)
	if err != nil {
		return err
	}
	if _, ok := changes[key]; !ok {
		return nil
	}
	delete(changes, key)
	return t.writeChanges(typ, changes)
}

// GetEntity retrieves an entity by type and key
func (s *Storage) GetEntity(ctx context.Context, t models.EntityType, key string) (models.Entity, error) {
	var e models.Entity
	err := s.View(ctx, func(tx storage.Tx) error {
		var err error
		e, err = tx.GetEntity(t, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// SaveEntity stores or updates an entity
func (s *Storage) SaveEntity(ctx context.Context, e models.Entity) error {
	return s.Update(ctx, func(tx storage.Tx) error {
		return tx.PutEntity(e)
	})
}

// RemoveEntity deletes an entity and its index position
func (s *Storage) RemoveEntity(ctx context.Context, t models.EntityType, key string) error {
	return s.Update(ctx, func(tx storage.Tx) error {
		return tx.DeleteEntity(t, key)
	})
}

// ListEntities returns entities of type t owned by itemKey, all of them for empty itemKey
func (s *Storage) ListEntities(ctx context.Context, t models.EntityType, itemKey string) ([]models.Entity, error) {
	var result []models.Entity
	err := s.View(ctx, func(tx storage.Tx) error {
		return tx.ForEachEntity(t, func(e models.Entity) error {
			if itemKey == "" || e.GetItemKey() == itemKey {
				result = append(result, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", t, err)
	}
	return result, nil
}

// ReplaceAll clears every namespace and fills it from snapshot.
// Local-only state is never merged into a refresh, so unsent changes block it.
func (s *Storage) ReplaceAll(ctx context.Context, snapshot storage.Snapshot) error {
	return s.Update(ctx, func(tx storage.Tx) error {
		for _, t := range models.ChangeTypes {
			changes, err := tx.Changes(t)
			if err != nil {
				return err
			}
			if len(changes) > 0 {
				return fmt.Errorf("%w: %d %s", storage.ErrChangesPending, len(changes), t)
			}
		}
		if err := clearNamespaces(tx); err != nil {
			return err
		}
		for _, t := range models.AllTypes {
			for _, e := range snapshot[t] {
				if e.Type() != t {
					return fmt.Errorf("%s entity %s delivered as %s", e.Type(), e.GetKey(), t)
				}
				if err := tx.PutEntity(e); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ClearAll removes entities, pending changes, the session and metadata
func (s *Storage) ClearAll(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := clearNamespaces(&boltTx{tx: tx}); err != nil {
			return err
		}
		for _, name := range [][]byte{bucketAuth, bucketMetadata} {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("failed to clear %s bucket: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func clearNamespaces(tx storage.Tx) error {
	for _, t := range models.AllTypes {
		if err := tx.ClearEntities(t); err != nil {
			return err
		}
		changes, err := tx.Changes(t)
		if err != nil {
			return err
		}
		for key := range changes {
			if err := tx.DeleteChange(t, key); err != nil {
				return err
			}
		}
	}
	return nil
}
