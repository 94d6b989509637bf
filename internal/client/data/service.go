// Package data keeps the in-memory annotation collections of the active item
// and persists every edit together with its pending change record.
package data

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/internal/models"
)

var (
	// ErrNotOpen is returned when no item is open
	ErrNotOpen = errors.New("no item is open")

	// ErrNotFound is returned when the entity is not in the active collections
	ErrNotFound = errors.New("entity not found")

	// ErrInvalid is returned for an edit that can not be stored
	ErrInvalid = errors.New("invalid entity")
)

// Clock supplies change timestamps
type Clock interface {
	Stamp() int64
}

// Recorder admits change records inside a store transaction
type Recorder interface {
	RecordTx(tx storage.Tx, rec models.ChangeRecord) error
}

// Service holds comments, points and summary of the open item plus all snippets
type Service struct {
	store  storage.EntityStorage
	log    Recorder
	clock  Clock
	logger *slog.Logger

	mu           sync.RWMutex
	itemKey      string
	correctorKey string
	comments     []models.Comment
	points       []models.Points
	snippets     []models.Snippet
	summary      *models.Summary
}

// NewService creates an annotation service over the local store
func NewService(store storage.EntityStorage, log Recorder, clock Clock, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		log:    log,
		clock:  clock,
		logger: logger,
	}
}

// Open loads the collections of item for corrector from the local store
func (s *Service) Open(ctx context.Context, itemKey, correctorKey string) error {
	if itemKey == "" || correctorKey == "" {
		return fmt.Errorf("%w: item and corrector are required", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.itemKey = itemKey
	s.correctorKey = correctorKey
	return s.load(ctx)
}

// Reconciled reloads the collections after the coordinator rewrote keys
// or replaced the whole store
func (s *Service) Reconciled(ctx context.Context, keyMap map[string]*string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.itemKey == "" {
		return
	}
	if err := s.load(ctx); err != nil {
		s.logger.Error("Failed to reload annotations", "item_key", s.itemKey, "error", err)
		return
	}
	s.logger.Debug("Annotations reloaded", "item_key", s.itemKey, "remapped", len(keyMap))
}

func (s *Service) load(ctx context.Context) error {
	comments, err := list[models.Comment](ctx, s.store, models.TypeComment, s.itemKey)
	if err != nil {
		return err
	}
	points, err := list[models.Points](ctx, s.store, models.TypePoints, s.itemKey)
	if err != nil {
		return err
	}
	snippets, err := list[models.Snippet](ctx, s.store, models.TypeSnippet, "")
	if err != nil {
		return err
	}

	var summary *models.Summary
	e, err := s.store.GetEntity(ctx, models.TypeSummary, models.SummaryKey(s.itemKey, s.correctorKey))
	switch {
	case err == nil:
		sm := e.(models.Summary)
		summary = &sm
	case !errors.Is(err, storage.ErrEntityNotFound):
		return fmt.Errorf("failed to load summary: %w", err)
	}

	// Чужие комментарии и баллы не показываем
	comments = slices.DeleteFunc(comments, func(c models.Comment) bool { return c.CorrectorKey != s.correctorKey })
	points = slices.DeleteFunc(points, func(p models.Points) bool { return p.CorrectorKey != s.correctorKey })

	s.comments = comments
	s.points = points
	s.snippets = snippets
	s.summary = summary
	return nil
}

func list[T models.Entity](ctx context.Context, store storage.EntityStorage, t models.EntityType, itemKey string) ([]T, error) {
	entities, err := store.ListEntities(ctx, t, itemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", t, err)
	}
	result := make([]T, 0, len(entities))
	for _, e := range entities {
		v, ok := e.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s stored as %s", ErrInvalid, e.GetKey(), e.Type())
		}
		result = append(result, v)
	}
	return result, nil
}

// ItemKey returns the open item
func (s *Service) ItemKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemKey
}

// Comments returns the comments of the open item ordered by position,
// with display labels assigned
func (s *Service) Comments() []models.Comment {
	s.mu.RLock()
	result := slices.Clone(s.comments)
	s.mu.RUnlock()

	slices.SortStableFunc(result, func(a, b models.Comment) int {
		return cmp.Or(
			cmp.Compare(a.ParentNumber, b.ParentNumber),
			cmp.Compare(a.StartPosition, b.StartPosition),
			cmp.Compare(a.Key, b.Key),
		)
	})

	n := 0
	for i := range result {
		if i == 0 || result[i].ParentNumber != result[i-1].ParentNumber {
			n = 0
		}
		n++
		result[i].Label = models.LabelFor(result[i].ParentNumber, n)
	}
	return result
}

// Points returns the point allocations of the open item
func (s *Service) Points() []models.Points {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.points)
}

// Snippets returns all snippets
func (s *Service) Snippets() []models.Snippet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snippets)
}

// Summary returns the stored summary of the open item, if any
func (s *Service) Summary() (models.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == nil {
		return models.Summary{}, false
	}
	return *s.summary, true
}

// AddComment stores a new comment under a temporary key
func (s *Service) AddComment(ctx context.Context, c models.Comment) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.itemKey == "" {
		return models.Comment{}, ErrNotOpen
	}
	if c.EndPosition < c.StartPosition {
		return models.Comment{}, fmt.Errorf("%w: end position %d before start %d", ErrInvalid, c.EndPosition, c.StartPosition)
	}

	c.Key = models.NewTempKey()
	c.ItemKey = s.itemKey
	c.CorrectorKey = s.correctorKey
	c.Label = ""

	if err := s.persist(ctx, models.ActionSave, false, c); err != nil {
		return models.Comment{}, err
	}
	s.comments = append(s.comments, c)
	return c, nil
}

// UpdateComment replaces the text, range and rating of an existing comment
func (s *Service) UpdateComment(ctx context.Context, c models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.comments, func(v models.Comment) bool { return v.Key == c.Key })
	if i < 0 {
		return fmt.Errorf("%w: comment %s", ErrNotFound, c.Key)
	}
	if c.EndPosition < c.StartPosition {
		return fmt.Errorf("%w: end position %d before start %d", ErrInvalid, c.EndPosition, c.StartPosition)
	}

	c.ItemKey = s.itemKey
	c.CorrectorKey = s.correctorKey
	c.Label = ""

	if err := s.persist(ctx, models.ActionSave, true, c); err != nil {
		return err
	}
	s.comments[i] = c
	return nil
}

// DeleteComment deletes a comment together with the points bound to it
func (s *Service) DeleteComment(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.comments, func(v models.Comment) bool { return v.Key == key })
	if i < 0 {
		return fmt.Errorf("%w: comment %s", ErrNotFound, key)
	}

	removed := []models.Entity{s.comments[i]}
	for _, p := range s.points {
		if p.CommentKey == key {
			removed = append(removed, p)
		}
	}

	if err := s.persist(ctx, models.ActionDelete, true, removed...); err != nil {
		return err
	}

	s.comments = slices.Delete(s.comments, i, i+1)
	s.points = slices.DeleteFunc(s.points, func(p models.Points) bool { return p.CommentKey == key })
	return nil
}

// AddPoints stores a new point allocation under a temporary key
func (s *Service) AddPoints(ctx context.Context, p models.Points) (models.Points, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.itemKey == "" {
		return models.Points{}, ErrNotOpen
	}
	if err := s.checkPoints(p); err != nil {
		return models.Points{}, err
	}

	p.Key = models.NewTempKey()
	p.ItemKey = s.itemKey
	p.CorrectorKey = s.correctorKey

	if err := s.persist(ctx, models.ActionSave, false, p); err != nil {
		return models.Points{}, err
	}
	s.points = append(s.points, p)
	return p, nil
}

// UpdatePoints replaces an existing point allocation
func (s *Service) UpdatePoints(ctx context.Context, p models.Points) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.points, func(v models.Points) bool { return v.Key == p.Key })
	if i < 0 {
		return fmt.Errorf("%w: points %s", ErrNotFound, p.Key)
	}
	if err := s.checkPoints(p); err != nil {
		return err
	}

	p.ItemKey = s.itemKey
	p.CorrectorKey = s.correctorKey

	if err := s.persist(ctx, models.ActionSave, true, p); err != nil {
		return err
	}
	s.points[i] = p
	return nil
}

// DeletePoints deletes a point allocation
func (s *Service) DeletePoints(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.points, func(v models.Points) bool { return v.Key == key })
	if i < 0 {
		return fmt.Errorf("%w: points %s", ErrNotFound, key)
	}

	if err := s.persist(ctx, models.ActionDelete, true, s.points[i]); err != nil {
		return err
	}
	s.points = slices.Delete(s.points, i, i+1)
	return nil
}

func (s *Service) checkPoints(p models.Points) error {
	if p.CriterionKey == "" {
		return fmt.Errorf("%w: criterion is required", ErrInvalid)
	}
	if p.Points < 0 {
		return fmt.Errorf("%w: negative points", ErrInvalid)
	}
	if p.CommentKey != "" && !slices.ContainsFunc(s.comments, func(c models.Comment) bool { return c.Key == p.CommentKey }) {
		return fmt.Errorf("%w: comment %s", ErrNotFound, p.CommentKey)
	}
	return nil
}

// AddSnippet stores a new snippet created on the open item
func (s *Service) AddSnippet(ctx context.Context, sn models.Snippet) (models.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.itemKey == "" {
		return models.Snippet{}, ErrNotOpen
	}
	if sn.Text == "" {
		return models.Snippet{}, fmt.Errorf("%w: empty snippet", ErrInvalid)
	}
	if sn.Purpose != models.SnippetPurposeSummary {
		sn.Purpose = models.SnippetPurposeComment
	}

	sn.Key = models.NewTempKey()
	sn.ItemKey = s.itemKey

	if err := s.persist(ctx, models.ActionSave, false, sn); err != nil {
		return models.Snippet{}, err
	}
	s.snippets = append(s.snippets, sn)
	return sn, nil
}

// UpdateSnippet replaces title, text and purpose of a snippet
func (s *Service) UpdateSnippet(ctx context.Context, sn models.Snippet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.snippets, func(v models.Snippet) bool { return v.Key == sn.Key })
	if i < 0 {
		return fmt.Errorf("%w: snippet %s", ErrNotFound, sn.Key)
	}
	if sn.Text == "" {
		return fmt.Errorf("%w: empty snippet", ErrInvalid)
	}
	if sn.Purpose != models.SnippetPurposeSummary {
		sn.Purpose = models.SnippetPurposeComment
	}
	// Сниппет остается привязан к работе, на которой создан
	sn.ItemKey = s.snippets[i].ItemKey

	if err := s.persist(ctx, models.ActionSave, true, sn); err != nil {
		return err
	}
	s.snippets[i] = sn
	return nil
}

// DeleteSnippet deletes a snippet
func (s *Service) DeleteSnippet(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.snippets, func(v models.Snippet) bool { return v.Key == key })
	if i < 0 {
		return fmt.Errorf("%w: snippet %s", ErrNotFound, key)
	}

	if err := s.persist(ctx, models.ActionDelete, true, s.snippets[i]); err != nil {
		return err
	}
	s.snippets = slices.Delete(s.snippets, i, i+1)
	return nil
}

// persist applies the action to every entity and admits its change record
// in one store transaction. With existing set every entity must still be
// stored under its key: the coordinator may have moved it to a permanent key
// since the collections were loaded. Then the collections are reloaded
// and ErrNotFound is returned.
func (s *Service) persist(ctx context.Context, action models.ChangeAction, existing bool, entities ...models.Entity) error {
	stamp := s.clock.Stamp()
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		for _, e := range entities {
			if existing {
				if _, err := tx.GetEntity(e.Type(), e.GetKey()); err != nil {
					if errors.Is(err, storage.ErrEntityNotFound) {
						return fmt.Errorf("%w: %s %s", ErrNotFound, e.Type(), e.GetKey())
					}
					return err
				}
			}

			var err error
			if action == models.ActionDelete {
				err = tx.DeleteEntity(e.Type(), e.GetKey())
			} else {
				err = tx.PutEntity(e)
			}
			if err != nil {
				return err
			}
			if err := s.log.RecordTx(tx, models.ChangeFor(action, e, stamp)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if lerr := s.load(ctx); lerr != nil {
				s.logger.Error("Failed to reload annotations", "item_key", s.itemKey, "error", lerr)
			}
		}
		return fmt.Errorf("failed to %s %s: %w", action, entities[0].Type(), err)
	}
	return nil
}
