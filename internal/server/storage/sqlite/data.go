package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/iudanet/gophgrade/internal/models"
	"github.com/iudanet/gophgrade/internal/server/storage"
)

// ApplyChanges applies a batch of corrector in one transaction.
// Changes are applied in the order sent, so a reference to a key created
// earlier in the same batch is rewritten to its permanent key.
func (s *Storage) ApplyChanges(ctx context.Context, correctorKey string, changes []storage.Change, now int64) (map[string]*string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	a := &applier{
		tx:        tx,
		corrector: correctorKey,
		now:       now,
		keyMap:    make(map[string]*string, len(changes)),
	}
	if err := a.loadDeadline(ctx); err != nil {
		return nil, err
	}

	for _, ch := range changes {
		if err := a.apply(ctx, ch); err != nil {
			return nil, fmt.Errorf("failed to apply %s %s %s: %w", ch.Action, ch.Type, ch.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit changes: %w", err)
	}
	return a.keyMap, nil
}

// applier holds the state of one batch
type applier struct {
	tx        *sql.Tx
	keyMap    map[string]*string
	corrector string
	now       int64
	deadline  int64
}

func (a *applier) loadDeadline(ctx context.Context) error {
	task, err := loadTask(ctx, a.tx)
	if errors.Is(err, storage.ErrTaskNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	a.deadline = task.CorrectionEnd
	return nil
}

// gone maps key to nil: the client removes its copy
func (a *applier) gone(key string) {
	if key != "" {
		a.keyMap[key] = nil
	}
}

func (a *applier) keep(sentKey, key string) {
	a.keyMap[sentKey] = &key
}

func (a *applier) apply(ctx context.Context, ch storage.Change) error {
	if !models.IsChangeType(ch.Type) || ch.Key == "" {
		a.gone(ch.Key)
		return nil
	}

	switch ch.Action {
	case models.ActionSave:
		return a.save(ctx, ch)
	case models.ActionDelete:
		return a.delete(ctx, ch)
	default:
		a.gone(ch.Key)
		return nil
	}
}

func (a *applier) save(ctx context.Context, ch storage.Change) error {
	lastChange := ch.LastChange
	if lastChange <= 0 {
		lastChange = a.now
	}

	p := ch.Payload.Clone()
	p["key"] = ch.Key
	if ch.ItemKey != "" {
		p["item_key"] = ch.ItemKey
	}
	if ch.Type != models.TypeSnippet {
		p["corrector_key"] = a.corrector
	}
	if ch.Type == models.TypeSummary {
		p["last_change"] = lastChange
	}

	e, err := models.FromPayload(ch.Type, p)
	if err != nil {
		return err
	}

	allowed, err := a.itemAllowed(ctx, ch.Type, e.GetItemKey())
	if err != nil {
		return err
	}
	if !allowed {
		a.gone(ch.Key)
		return nil
	}

	if e, err = a.resolveReferences(ctx, e); err != nil {
		return err
	}

	if ch.Type == models.TypeSummary {
		return a.saveSummary(ctx, ch.Key, e.(models.Summary))
	}
	if !models.IsTempKey(ch.Key) {
		return a.update(ctx, ch.Key, e, lastChange)
	}

	key, seen, err := a.assignedKey(ctx, ch.Key)
	if err != nil {
		return err
	}
	if !seen {
		return a.insert(ctx, ch.Key, e, lastChange)
	}
	// Пакет отправлен повторно: сущность уже создана под постоянным ключом
	return a.update(ctx, ch.Key, e.WithKey(key), lastChange)
}

// assignedKey returns the permanent key issued earlier for tempKey of the corrector
func (a *applier) assignedKey(ctx context.Context, tempKey string) (string, bool, error) {
	var key string
	err := a.tx.QueryRowContext(ctx,
		`SELECT entity_key FROM temp_keys WHERE corrector_key = ? AND temp_key = ?`, a.corrector, tempKey,
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key of %s: %w", tempKey, err)
	}
	return key, true, nil
}

// itemAllowed reports whether corrector may annotate itemKey
func (a *applier) itemAllowed(ctx context.Context, t models.EntityType, itemKey string) (bool, error) {
	if itemKey == "" {
		return t == models.TypeSnippet, nil
	}

	query := `SELECT COUNT(*) FROM entities WHERE type = ? AND item_key = ? AND corrector_key = ?`
	args := []any{string(models.TypeAssignment), itemKey, a.corrector}
	if t == models.TypeSnippet {
		query = `SELECT COUNT(*) FROM entities WHERE type = ? AND entity_key = ?`
		args = []any{string(models.TypeItem), itemKey}
	}

	var n int
	if err := a.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check item %s: %w", itemKey, err)
	}
	return n > 0, nil
}

// resolveReferences rewrites references to keys mapped in this batch
// and clears references to entities the server does not have
func (a *applier) resolveReferences(ctx context.Context, e models.Entity) (models.Entity, error) {
	for _, ref := range e.References() {
		if mapped, ok := a.keyMap[ref.Key]; ok {
			e, _ = e.RemapReference(ref.Type, ref.Key, mapped)
			continue
		}

		key := ref.Key
		if models.IsTempKey(key) {
			assigned, seen, err := a.assignedKey(ctx, key)
			if err != nil {
				return nil, err
			}
			if seen {
				key = assigned
			}
		}

		exists, err := a.exists(ctx, ref.Type, key)
		if err != nil {
			return nil, err
		}
		switch {
		case !exists:
			e, _ = e.RemapReference(ref.Type, ref.Key, nil)
		case key != ref.Key:
			e, _ = e.RemapReference(ref.Type, ref.Key, &key)
		}
	}
	return e, nil
}

func (a *applier) exists(ctx context.Context, t models.EntityType, key string) (bool, error) {
	if models.IsTempKey(key) {
		return false, nil
	}

	var n int
	err := a.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE type = ? AND entity_key = ?`, string(t), key,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check %s %s: %w", t, key, err)
	}
	return n > 0, nil
}

func (a *applier) insert(ctx context.Context, tempKey string, e models.Entity, lastChange int64) error {
	result, err := a.tx.ExecContext(ctx, `
		INSERT INTO entities (type, item_key, corrector_key, data, last_change)
		VALUES (?, ?, ?, '{}', ?)
	`, string(e.Type()), e.GetItemKey(), a.corrector, lastChange)
	if err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted id: %w", err)
	}

	key := strconv.FormatInt(id, 10)
	data, err := models.Encode(e.WithKey(key))
	if err != nil {
		return err
	}

	if _, err := a.tx.ExecContext(ctx,
		`UPDATE entities SET entity_key = ?, data = ? WHERE id = ?`, key, string(data), id,
	); err != nil {
		return fmt.Errorf("failed to assign key: %w", err)
	}
	if _, err := a.tx.ExecContext(ctx,
		`INSERT INTO temp_keys (corrector_key, temp_key, entity_key) VALUES (?, ?, ?)`, a.corrector, tempKey, key,
	); err != nil {
		return fmt.Errorf("failed to remember key of %s: %w", tempKey, err)
	}

	a.keep(tempKey, key)
	return nil
}

// update writes e over its stored row; sentKey is the key the client sent
func (a *applier) update(ctx context.Context, sentKey string, e models.Entity, lastChange int64) error {
	key := e.GetKey()

	var stored int64
	err := a.tx.QueryRowContext(ctx,
		`SELECT last_change FROM entities WHERE type = ? AND entity_key = ? AND corrector_key = ?`,
		string(e.Type()), key, a.corrector,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		a.gone(sentKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get entity: %w", err)
	}

	a.keep(sentKey, key)
	// Более позднее изменение на сервере побеждает
	if lastChange < stored {
		return nil
	}

	data, err := models.Encode(e)
	if err != nil {
		return err
	}
	if _, err := a.tx.ExecContext(ctx, `
		UPDATE entities SET item_key = ?, data = ?, last_change = ?
		WHERE type = ? AND entity_key = ?
	`, e.GetItemKey(), string(data), lastChange, string(e.Type()), key); err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	return nil
}

func (a *applier) saveSummary(ctx context.Context, sentKey string, s models.Summary) error {
	s.Key = models.SummaryKey(s.ItemKey, a.corrector)

	stored, found, err := a.getSummary(ctx, s.ItemKey)
	if err != nil {
		return err
	}
	a.keep(sentKey, s.Key)

	if found && (stored.IsAuthorized || s.LastChange < stored.LastChange) {
		return nil
	}
	if a.deadline > 0 && time.UnixMilli(a.now).After(time.Unix(a.deadline, 0)) {
		return nil
	}

	data, err := models.Encode(s)
	if err != nil {
		return err
	}
	if _, err := a.tx.ExecContext(ctx, `
		INSERT INTO summaries (item_key, corrector_key, data, last_change)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (item_key, corrector_key) DO UPDATE SET
			data = excluded.data,
			last_change = excluded.last_change
	`, s.ItemKey, a.corrector, string(data), s.LastChange); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

func (a *applier) getSummary(ctx context.Context, itemKey string) (models.Summary, bool, error) {
	var data string
	err := a.tx.QueryRowContext(ctx,
		`SELECT data FROM summaries WHERE item_key = ? AND corrector_key = ?`, itemKey, a.corrector,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Summary{}, false, nil
	}
	if err != nil {
		return models.Summary{}, false, fmt.Errorf("failed to get summary: %w", err)
	}

	e, err := models.Decode(models.TypeSummary, []byte(data))
	if err != nil {
		return models.Summary{}, false, err
	}
	return e.(models.Summary), true, nil
}

func (a *applier) delete(ctx context.Context, ch storage.Change) error {
	if models.IsTempKey(ch.Key) {
		a.gone(ch.Key)
		return nil
	}

	if ch.Type == models.TypeSummary {
		return a.deleteSummary(ctx, ch)
	}

	result, err := a.tx.ExecContext(ctx,
		`DELETE FROM entities WHERE type = ? AND entity_key = ? AND corrector_key = ?`,
		string(ch.Type), ch.Key, a.corrector,
	)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	// Удаленная сущность отсутствует на сервере, ссылки на нее в пакете очищаются
	a.gone(ch.Key)
	if rows == 0 {
		return nil
	}
	return a.clearDependents(ctx, ch.Type, ch.Key)
}

func (a *applier) deleteSummary(ctx context.Context, ch storage.Change) error {
	stored, found, err := a.getSummary(ctx, ch.ItemKey)
	if err != nil {
		return err
	}
	if !found {
		a.gone(ch.Key)
		return nil
	}

	if stored.IsAuthorized {
		a.keep(ch.Key, stored.Key)
		return nil
	}
	a.gone(ch.Key)
	if _, err := a.tx.ExecContext(ctx,
		`DELETE FROM summaries WHERE item_key = ? AND corrector_key = ?`, ch.ItemKey, a.corrector,
	); err != nil {
		return fmt.Errorf("failed to delete summary: %w", err)
	}
	return nil
}

// clearDependents removes references to the deleted entity from the
// remaining entities of corrector
func (a *applier) clearDependents(ctx context.Context, t models.EntityType, key string) error {
	type row struct {
		entity models.Entity
		id     int64
	}

	rows, err := a.tx.QueryContext(ctx,
		`SELECT id, type, data FROM entities WHERE corrector_key = ? AND type IN (?, ?, ?)`,
		a.corrector, string(models.TypeComment), string(models.TypePoints), string(models.TypeSnippet),
	)
	if err != nil {
		return fmt.Errorf("failed to list dependents: %w", err)
	}

	var changed []row
	for rows.Next() {
		var (
			id   int64
			typ  string
			data string
		)
		if err := rows.Scan(&id, &typ, &data); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan dependent: %w", err)
		}
		e, err := models.Decode(models.EntityType(typ), []byte(data))
		if err != nil {
			rows.Close()
			return err
		}
		if e, ok := e.RemapReference(t, key, nil); ok {
			changed = append(changed, row{entity: e, id: id})
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("failed to iterate dependents: %w", err)
	}

	for _, r := range changed {
		data, err := models.Encode(r.entity)
		if err != nil {
			return err
		}
		if _, err := a.tx.ExecContext(ctx,
			`UPDATE entities SET data = ?, last_change = ? WHERE id = ?`, string(data), a.now, r.id,
		); err != nil {
			return fmt.Errorf("failed to update dependent: %w", err)
		}
	}
	return nil
}

// LoadData returns the task, reference data and own annotations of corrector
func (s *Storage) LoadData(ctx context.Context, correctorKey string) (*storage.Dataset, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	task, err := loadTask(ctx, tx)
	if err != nil {
		return nil, err
	}

	ds := &storage.Dataset{
		Task:     task,
		Entities: make(map[models.EntityType][]models.Payload),
	}

	query := `
		SELECT type, data FROM entities
		WHERE type IN (?, ?)
		   OR (type = ? AND entity_key IN (
		          SELECT item_key FROM entities WHERE type = ? AND corrector_key = ?))
		   OR (type IN (?, ?, ?, ?) AND corrector_key = ?)
		ORDER BY id
	`
	rows, err := tx.QueryContext(ctx, query,
		string(models.TypeCriterion), string(models.TypeGrade),
		string(models.TypeItem), string(models.TypeAssignment), correctorKey,
		string(models.TypeAssignment), string(models.TypeComment), string(models.TypePoints), string(models.TypeSnippet), correctorKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	if err := collect(rows, ds); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx,
		`SELECT ?, data FROM summaries WHERE corrector_key = ? ORDER BY item_key`,
		string(models.TypeSummary), correctorKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	if err := collect(rows, ds); err != nil {
		return nil, err
	}

	return ds, nil
}

// collect reads (type, data) rows into the dataset and closes rows
func collect(rows *sql.Rows, ds *storage.Dataset) error {
	defer rows.Close()

	for rows.Next() {
		var typ, data string
		if err := rows.Scan(&typ, &data); err != nil {
			return fmt.Errorf("failed to scan entity: %w", err)
		}
		p, err := models.DecodePayload([]byte(data))
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		t := models.EntityType(typ)
		ds.Entities[t] = append(ds.Entities[t], p)
	}
	return rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadTask(ctx context.Context, q queryer) (models.Task, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM tasks WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, storage.ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to get task: %w", err)
	}

	p, err := models.DecodePayload([]byte(data))
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to decode task: %w", err)
	}
	return models.NewTask(p), nil
}

// ImportTask replaces the task and upserts its reference data and users
func (s *Storage) ImportTask(ctx context.Context, bundle *storage.Bundle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	taskData, err := encodePayload(bundle.Task.Payload())
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, data) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`, taskData); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	for _, u := range bundle.Users {
		if err := upsertUser(ctx, tx, u); err != nil {
			return err
		}
	}

	for _, t := range models.ReferenceTypes {
		for _, p := range bundle.Entities[t] {
			if err := upsertReference(ctx, tx, t, p); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

func upsertReference(ctx context.Context, tx *sql.Tx, t models.EntityType, p models.Payload) error {
	e, err := models.FromPayload(t, p)
	if err != nil {
		return err
	}
	if e.GetKey() == "" {
		return fmt.Errorf("%s without key", t)
	}

	var correctorKey string
	switch v := e.(type) {
	case models.Assignment:
		correctorKey = v.CorrectorKey
	case models.Criterion:
		correctorKey = v.CorrectorKey
	}

	data, err := models.Encode(e)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entities (type, entity_key, item_key, corrector_key, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (type, entity_key) DO UPDATE SET
			item_key = excluded.item_key,
			corrector_key = excluded.corrector_key,
			data = excluded.data
	`, string(t), e.GetKey(), e.GetItemKey(), correctorKey, string(data)); err != nil {
		return fmt.Errorf("failed to save %s %s: %w", t, e.GetKey(), err)
	}
	return nil
}

func encodePayload(p models.Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(data), nil
}
