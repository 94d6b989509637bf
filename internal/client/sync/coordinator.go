package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/iudanet/gophgrade/internal/client/changes"
	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/internal/models"
	"github.com/iudanet/gophgrade/pkg/api"
)

//go:generate moq -out transport_mock.go . Transport

// Transport is the remote authority as seen by the coordinator
type Transport interface {
	// Send submits a batch of changes and returns the key assignments
	Send(ctx context.Context, token string, changes []api.Change) (*api.SendResponse, error)

	// FetchData returns the full data set of the corrector
	FetchData(ctx context.Context, token string) (*api.DataResponse, error)
}

// Store is the part of the local store used by the coordinator
type Store interface {
	storage.EntityStorage
	storage.AuthStorage
	storage.MetadataStorage
}

// Clock supplies change timestamps and tracks server time
type Clock interface {
	Stamp() int64
	SetServerTime(serverMillis int64) int64
}

// KeyListener is notified after local state was rewritten by the coordinator.
// keyMap holds the applied key assignments; it is nil after a full refresh.
type KeyListener interface {
	Reconciled(ctx context.Context, keyMap map[string]*string)
}

// FlushResult contains flush operation results
type FlushResult struct {
	Sent     int // количество отправленных изменений
	Remapped int // количество сущностей, получивших постоянный ключ
	Removed  int // количество сущностей, удаленных по ответу сервера
	Deferred int // количество изменений, отложенных до следующей отправки
	Stale    int // количество записей журнала без сохраненных данных
}

// Coordinator flushes pending changes to the server and reconciles
// the returned key assignments back into the local store
type Coordinator struct {
	transport Transport
	store     Store
	log       *changes.Log
	clock     Clock
	logger    *slog.Logger
	listeners []KeyListener
	busy      chan struct{} // одна отправка одновременно
	failed    atomic.Bool
}

// NewCoordinator creates a new sync coordinator
func NewCoordinator(transport Transport, store Store, log *changes.Log, clock Clock, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		transport: transport,
		store:     store,
		log:       log,
		clock:     clock,
		logger:    logger,
		busy:      make(chan struct{}, 1),
	}
}

// AddListener registers l for reconciliation notices.
// Must be called before the coordinator is used.
func (c *Coordinator) AddListener(l KeyListener) {
	c.listeners = append(c.listeners, l)
}

// Failed reports whether the last server call failed
func (c *Coordinator) Failed() bool {
	return c.failed.Load()
}

// Pending returns the number of queued changes per type
func (c *Coordinator) Pending(ctx context.Context) (map[models.EntityType]int, error) {
	return c.log.Pending(ctx)
}

// Flush sends pending changes of one type
func (c *Coordinator) Flush(ctx context.Context, t models.EntityType) (*FlushResult, error) {
	if !models.IsChangeType(t) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownType, t)
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	return c.flush(ctx, []models.EntityType{t})
}

// FlushAll sends pending changes of every type in one batch,
// referenced entities before the entities referencing them
func (c *Coordinator) FlushAll(ctx context.Context) (*FlushResult, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	return c.flush(ctx, models.ChangeTypes)
}

func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case c.busy <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release() {
	<-c.busy
}

// batch is what one flush sends
type batch struct {
	changes  []api.Change
	sent     []models.ChangeRecord
	stale    []models.ChangeRecord
	deferred int
}

func (c *Coordinator) flush(ctx context.Context, types []models.EntityType) (*FlushResult, error) {
	auth, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	// Записи с меткой не раньше snapshot появились во время отправки
	// и уйдут в следующем цикле
	snapshot := c.clock.Stamp()

	b, err := c.collect(ctx, types, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to collect changes: %w", err)
	}

	result := &FlushResult{Deferred: b.deferred}
	if len(b.changes) == 0 {
		result.Stale, err = c.clearStale(ctx, b.stale)
		return result, err
	}

	c.logger.Info("Sending changes", "count", len(b.changes), "snapshot", snapshot)

	resp, err := c.transport.Send(ctx, auth.Token, b.changes)
	if err != nil {
		c.failed.Store(true)
		c.logger.Warn("Failed to send changes", "count", len(b.changes), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	// Отправленные ключи, о которых сервер промолчал, подтверждены как есть
	keyMap := make(map[string]*string, len(b.sent))
	for _, rec := range b.sent {
		key := rec.Key
		keyMap[key] = &key
	}
	for oldKey, newKey := range resp.KeyMap {
		keyMap[oldKey] = newKey
	}

	if err := c.reconcile(ctx, keyMap, snapshot, b.sent); err != nil {
		// Пакет уже принят сервером, повторная отправка пойдет с новым токеном
		c.saveToken(ctx, resp.Token)
		return nil, fmt.Errorf("failed to reconcile keys: %w", err)
	}

	result.Sent = len(b.changes)
	for oldKey, newKey := range keyMap {
		switch {
		case newKey == nil:
			result.Removed++
		case *newKey != oldKey:
			result.Remapped++
		}
	}
	if result.Stale, err = c.clearStale(ctx, b.stale); err != nil {
		c.logger.Warn("Failed to clear stale changes", "error", err)
	}

	c.acknowledge(ctx, resp.Token, resp.ServerTime)
	c.notify(ctx, keyMap)

	c.logger.Info("Changes sent",
		"sent", result.Sent,
		"remapped", result.Remapped,
		"removed", result.Removed,
		"deferred", result.Deferred)

	return result, nil
}

func (c *Coordinator) session(ctx context.Context) (*storage.AuthData, error) {
	auth, err := c.store.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return auth, nil
}

// collect reads pending records older than snapshot and reattaches current payloads
func (c *Coordinator) collect(ctx context.Context, types []models.EntityType, snapshot int64) (*batch, error) {
	b := &batch{}
	err := c.store.View(ctx, func(tx storage.Tx) error {
		inBatch := make(map[string]bool)
		for _, t := range types {
			records, err := changes.ListTx(tx, t, snapshot)
			if err != nil {
				return err
			}
			for _, rec := range records {
				change := api.Change{
					Action:     string(rec.Action),
					Type:       string(rec.Type),
					Key:        rec.Key,
					ItemKey:    rec.ItemKey,
					LastChange: rec.LastChange,
				}

				if rec.Action == models.ActionSave {
					e, err := tx.GetEntity(t, rec.Key)
					if errors.Is(err, storage.ErrEntityNotFound) {
						b.stale = append(b.stale, rec)
						continue
					}
					if err != nil {
						return err
					}
					// Ссылка на еще не отправленную сущность: ждем ее ключ
					if refersToUnsent(e, inBatch) {
						b.deferred++
						continue
					}
					change.Payload = e.Payload()
				}

				b.changes = append(b.changes, change)
				b.sent = append(b.sent, rec)
				inBatch[rec.Key] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func refersToUnsent(e models.Entity, inBatch map[string]bool) bool {
	for _, ref := range e.References() {
		if models.IsTempKey(ref.Key) && !inBatch[ref.Key] {
			return true
		}
	}
	return false
}

// clearStale drops save records whose entity no longer exists locally
func (c *Coordinator) clearStale(ctx context.Context, stale []models.ChangeRecord) (int, error) {
	if len(stale) == 0 {
		return 0, nil
	}
	cleared := 0
	err := c.store.Update(ctx, func(tx storage.Tx) error {
		cleared = 0
		for _, rec := range stale {
			current, err := tx.Changes(rec.Type)
			if err != nil {
				return err
			}
			// Запись могла обновиться, пока шла отправка
			if cur, ok := current[rec.Key]; !ok || cur != rec {
				continue
			}
			if _, err := tx.GetEntity(rec.Type, rec.Key); !errors.Is(err, storage.ErrEntityNotFound) {
				continue
			}
			if err := tx.DeleteChange(rec.Type, rec.Key); err != nil {
				return err
			}
			cleared++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		c.logger.Debug("Cleared changes without payload", "count", cleared)
	}
	return cleared, nil
}

// ReconcileKeys applies key assignments of a successful flush in one transaction.
// For every old key:
//   - nil: the entity and its record are removed, references to it are cleared;
//   - same key: the record is acknowledged;
//   - new key: the entity moves to the new key, references are rewritten
//     in every namespace, the record is acknowledged.
//
// Records stamped at or after snapshot are never acknowledged. A late record of
// a moved entity follows it to the new key with its action and timestamp.
func (c *Coordinator) ReconcileKeys(ctx context.Context, keyMap map[string]*string, snapshot int64) error {
	return c.reconcile(ctx, keyMap, snapshot, nil)
}

// reconcile is ReconcileKeys with the records of the sent batch.
// A saved temp key that got a permanent key while the entity was deleted
// locally gets a delete queued for the permanent key.
func (c *Coordinator) reconcile(ctx context.Context, keyMap map[string]*string, snapshot int64, sent []models.ChangeRecord) error {
	sentSaves := make(map[string]models.ChangeRecord)
	for _, rec := range sent {
		if rec.Action == models.ActionSave && models.IsTempKey(rec.Key) {
			sentSaves[rec.Key] = rec
		}
	}

	oldKeys := make([]string, 0, len(keyMap))
	for k := range keyMap {
		oldKeys = append(oldKeys, k)
	}
	sort.Strings(oldKeys)

	return c.store.Update(ctx, func(tx storage.Tx) error {
		for _, oldKey := range oldKeys {
			newKey := keyMap[oldKey]

			var owners []models.EntityType
			for _, t := range models.ChangeTypes {
				found, err := reconcileKey(tx, t, oldKey, newKey, snapshot)
				if err != nil {
					return fmt.Errorf("%s %s: %w", t, oldKey, err)
				}
				if found {
					owners = append(owners, t)
				}
			}
			if newKey != nil && *newKey == oldKey {
				continue
			}

			if rec, ok := sentSaves[oldKey]; ok && len(owners) == 0 && newKey != nil {
				if err := queueDelete(tx, rec, *newKey, snapshot); err != nil {
					return fmt.Errorf("%s %s: %w", rec.Type, *newKey, err)
				}
			}

			// Повторное применение: сущность уже перенесена, ищем ссылки любого типа
			if len(owners) == 0 {
				owners = models.ChangeTypes
			}
			for _, owner := range owners {
				if err := cascade(tx, owner, oldKey, newKey); err != nil {
					return fmt.Errorf("references to %s %s: %w", owner, oldKey, err)
				}
			}
		}
		return nil
	})
}

// reconcileKey applies one key assignment inside namespace t.
// Reports whether t held an entity or a record under oldKey.
func reconcileKey(tx storage.Tx, t models.EntityType, oldKey string, newKey *string, snapshot int64) (bool, error) {
	records, err := tx.Changes(t)
	if err != nil {
		return false, err
	}
	rec, hasRecord := records[oldKey]
	late := hasRecord && rec.LastChange >= snapshot

	e, err := tx.GetEntity(t, oldKey)
	if err != nil && !errors.Is(err, storage.ErrEntityNotFound) {
		return false, err
	}
	hasEntity := err == nil
	if !hasEntity && !hasRecord {
		return false, nil
	}

	switch {
	case newKey == nil:
		if err := tx.DeleteEntity(t, oldKey); err != nil {
			return true, err
		}
		if hasRecord && !late {
			return true, tx.DeleteChange(t, oldKey)
		}

	case *newKey == oldKey:
		if hasRecord && !late {
			return true, tx.DeleteChange(t, oldKey)
		}

	default:
		if hasEntity {
			if err := tx.PutEntity(e.WithKey(*newKey)); err != nil {
				return true, err
			}
			if err := tx.DeleteEntity(t, oldKey); err != nil {
				return true, err
			}
		}
		if !hasRecord {
			return true, nil
		}
		if err := tx.DeleteChange(t, oldKey); err != nil {
			return true, err
		}
		if late {
			rec.Key = *newKey
			return true, tx.PutChange(rec)
		}
	}
	return true, nil
}

// queueDelete records a delete of the entity the server created from rec
// unless the entity or a record already exists under newKey
func queueDelete(tx storage.Tx, rec models.ChangeRecord, newKey string, snapshot int64) error {
	_, err := tx.GetEntity(rec.Type, newKey)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrEntityNotFound) {
		return err
	}

	records, err := tx.Changes(rec.Type)
	if err != nil {
		return err
	}
	if _, ok := records[newKey]; ok {
		return nil
	}

	return tx.PutChange(models.ChangeRecord{
		Action:     models.ActionDelete,
		Type:       rec.Type,
		Key:        newKey,
		ItemKey:    rec.ItemKey,
		LastChange: snapshot,
	})
}

// cascade rewrites references to the entity (owner, oldKey) in every namespace
func cascade(tx storage.Tx, owner models.EntityType, oldKey string, newKey *string) error {
	for _, t := range models.AllTypes {
		var updated []models.Entity
		err := tx.ForEachEntity(t, func(e models.Entity) error {
			if remapped, ok := e.RemapReference(owner, oldKey, newKey); ok {
				updated = append(updated, remapped)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, e := range updated {
			if err := tx.PutEntity(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// acknowledge persists the rotated token and the server clock offset
func (c *Coordinator) acknowledge(ctx context.Context, token string, serverTime int64) {
	c.failed.Store(false)

	c.saveToken(ctx, token)
	if serverTime > 0 {
		offset := c.clock.SetServerTime(serverTime)
		if err := c.store.SaveClockOffset(ctx, offset); err != nil {
			c.logger.Warn("Failed to save clock offset", "error", err)
		}
	}
}

func (c *Coordinator) saveToken(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := c.store.UpdateToken(ctx, token); err != nil {
		c.logger.Warn("Failed to save refreshed token", "error", err)
	}
}

func (c *Coordinator) notify(ctx context.Context, keyMap map[string]*string) {
	for _, l := range c.listeners {
		l.Reconciled(ctx, keyMap)
	}
}

// Refresh sends pending changes and then replaces local state with the
// server data set. It refuses with ErrPendingChanges while anything is queued.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if _, err := c.flush(ctx, models.ChangeTypes); err != nil {
		return err
	}

	auth, err := c.session(ctx)
	if err != nil {
		return err
	}

	resp, err := c.transport.FetchData(ctx, auth.Token)
	if err != nil {
		c.failed.Store(true)
		c.logger.Warn("Failed to fetch data", "error", err)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	snapshot, count := c.buildSnapshot(resp)
	if err := c.store.ReplaceAll(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to replace local data: %w", err)
	}

	if err := c.store.SaveTask(ctx, models.NewTask(resp.Task)); err != nil {
		c.logger.Warn("Failed to save task settings", "error", err)
	}
	if err := c.store.SaveLastRefresh(ctx, resp.ServerTime); err != nil {
		c.logger.Warn("Failed to save refresh time", "error", err)
	}
	c.acknowledge(ctx, resp.Token, resp.ServerTime)
	c.notify(ctx, nil)

	c.logger.Info("Local data refreshed", "entities", count)
	return nil
}

func (c *Coordinator) buildSnapshot(resp *api.DataResponse) (storage.Snapshot, int) {
	snapshot := make(storage.Snapshot)
	count := 0
	for tag, rows := range resp.Entities {
		t := models.EntityType(tag)
		for _, row := range rows {
			e, err := models.FromPayload(t, row)
			if err != nil {
				c.logger.Warn("Skipping unknown entity type", "type", tag)
				break
			}
			if e.GetKey() == "" {
				continue
			}
			snapshot[t] = append(snapshot[t], e)
			count++
		}
	}
	return snapshot, count
}

// Run flushes pending changes every interval until ctx is canceled.
// Failures are logged and retried on the next tick.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.FlushAll(ctx); err != nil && ctx.Err() == nil {
				c.logger.Debug("Periodic flush failed", "error", err)
			}
		}
	}
}
