// Package scheduler commits the continuously edited summary of the active item.
// Checks are debounced, never overlap and stop for good once the summary
// is authorized or the correction deadline has passed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/gophgrade/internal/client/changes"
	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/internal/models"
)

//go:generate moq -out draftsource_mock.go . DraftSource

// Draft is the current content of the summary editor
type Draft struct {
	Text       string
	Points     float64
	Authorized bool
}

// DraftSource supplies the editor content on every check
type DraftSource interface {
	Draft(ctx context.Context) (Draft, error)
}

// Store is the part of the local store used by the scheduler
type Store interface {
	storage.EntityStorage
	GetTask(ctx context.Context) (models.Task, error)
}

// Clock supplies server-synchronized time and change timestamps
type Clock interface {
	Now() time.Time
	Stamp() int64
}

// Outcome is the result of one check
type Outcome int

const (
	OutcomeSkipped   Outcome = iota // debounce or another check in progress
	OutcomeFrozen                   // summary authorized or deadline passed
	OutcomeUnchanged                // nothing to commit
	OutcomeSaved                    // summary persisted and queued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFrozen:
		return "frozen"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeSaved:
		return "saved"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Config holds scheduler configuration
type Config struct {
	ItemKey      string
	CorrectorKey string
	Interval     time.Duration // период проверки по таймеру
	Debounce     time.Duration // минимальный интервал между проверками
}

// DefaultConfig returns default intervals for the summary of item by corrector
func DefaultConfig(itemKey, correctorKey string) Config {
	return Config{
		ItemKey:      itemKey,
		CorrectorKey: correctorKey,
		Interval:     time.Second,
		Debounce:     2 * time.Second,
	}
}

// Scheduler governs how often the summary is checked for changes and committed
type Scheduler struct {
	source  DraftSource
	store   Store
	log     *changes.Log
	clock   Clock
	logger  *slog.Logger
	cfg     Config
	changed chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex

	inCheck   atomic.Int32 // счетчик входов в Check
	lastCheck atomic.Int64 // время последней проверки, UnixNano
	frozen    atomic.Bool
	isRunning bool
}

// New creates a scheduler for the summary of cfg.ItemKey by cfg.CorrectorKey
func New(source DraftSource, store Store, log *changes.Log, clock Clock, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		source:  source,
		store:   store,
		log:     log,
		clock:   clock,
		logger:  logger.With("item_key", cfg.ItemKey),
		cfg:     cfg,
		changed: make(chan struct{}, 1),
	}
}

// Frozen reports whether the scheduler stopped accepting writes
func (s *Scheduler) Frozen() bool {
	return s.frozen.Load()
}

// Check commits the draft if it differs from the stored summary.
// Without force it is skipped when the previous check was less than
// the debounce interval ago. A check started while another one is running
// returns OutcomeSkipped at once.
func (s *Scheduler) Check(ctx context.Context, force bool) (Outcome, error) {
	if s.frozen.Load() {
		return OutcomeFrozen, nil
	}

	if s.inCheck.Add(1) > 1 {
		return OutcomeSkipped, nil
	}
	defer s.inCheck.Store(0)

	now := time.Now()
	if !force && now.Sub(time.Unix(0, s.lastCheck.Load())) < s.cfg.Debounce {
		return OutcomeSkipped, nil
	}
	s.lastCheck.Store(now.UnixNano())

	return s.check(ctx)
}

func (s *Scheduler) check(ctx context.Context) (Outcome, error) {
	key := models.SummaryKey(s.cfg.ItemKey, s.cfg.CorrectorKey)
	if key == "" {
		return OutcomeSkipped, fmt.Errorf("summary owner is not set")
	}

	task, err := s.store.GetTask(ctx)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to get task settings: %w", err)
	}

	stored := models.Summary{Key: key, ItemKey: s.cfg.ItemKey, CorrectorKey: s.cfg.CorrectorKey}
	e, err := s.store.GetEntity(ctx, models.TypeSummary, key)
	switch {
	case err == nil:
		stored = e.(models.Summary)
	case !errors.Is(err, storage.ErrEntityNotFound):
		return OutcomeSkipped, fmt.Errorf("failed to get summary: %w", err)
	}

	if stored.IsAuthorized || s.deadlinePassed(task) {
		s.freeze(stored.IsAuthorized)
		return OutcomeFrozen, nil
	}

	draft, err := s.source.Draft(ctx)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to read draft: %w", err)
	}

	candidate := stored
	candidate.Text = draft.Text
	candidate.Points = models.ClampPoints(draft.Points, task.MaxPoints)
	candidate.IsAuthorized = draft.Authorized

	// Итоговая оценка без отметки получает ее при любом изменении, даже если баллы прежние
	if candidate.Points != stored.Points || (candidate.GradeKey == "" && !candidate.SameContent(stored)) {
		grade, err := s.gradeFor(ctx, candidate.Points)
		if err != nil {
			return OutcomeSkipped, err
		}
		candidate.GradeKey = grade
	}

	if candidate.SameContent(stored) {
		return OutcomeUnchanged, nil
	}

	candidate.LastChange = s.clock.Stamp()
	err = s.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.PutEntity(candidate); err != nil {
			return err
		}
		return s.log.RecordTx(tx, models.ChangeFor(models.ActionSave, candidate, candidate.LastChange))
	})
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to save summary: %w", err)
	}

	s.logger.Debug("Summary saved",
		"points", candidate.Points,
		"grade_key", candidate.GradeKey,
		"authorized", candidate.IsAuthorized)

	if candidate.IsAuthorized {
		s.freeze(true)
	}
	return OutcomeSaved, nil
}

func (s *Scheduler) deadlinePassed(task models.Task) bool {
	return task.CorrectionEnd > 0 && s.clock.Now().Unix() > task.CorrectionEnd
}

func (s *Scheduler) freeze(authorized bool) {
	if s.frozen.Swap(true) {
		return
	}
	if authorized {
		s.logger.Info("Summary authorized, further edits are ignored")
	} else {
		s.logger.Info("Correction deadline passed, further edits are ignored")
	}
}

func (s *Scheduler) gradeFor(ctx context.Context, points float64) (string, error) {
	list, err := s.store.ListEntities(ctx, models.TypeGrade, "")
	if err != nil {
		return "", fmt.Errorf("failed to list grades: %w", err)
	}
	grades := make([]models.Grade, 0, len(list))
	for _, e := range list {
		grades = append(grades, e.(models.Grade))
	}
	return models.GradeFor(grades, points), nil
}

// ContentChanged signals that the editor content changed. It never blocks.
func (s *Scheduler) ContentChanged() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Start starts the check loop. Checks run on every interval tick
// and on every ContentChanged signal.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)

	s.logger.Debug("Summary scheduler started", "interval", s.cfg.Interval)
}

// Stop stops the check loop and waits for a running check to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("Summary scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.run(ctx)
		case <-s.changed:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	outcome, err := s.Check(ctx, false)
	if err != nil {
		// Повторится на следующем срабатывании
		s.logger.Warn("Summary check failed", "error", err)
		return
	}
	if outcome == OutcomeSaved {
		s.logger.Info("Summary committed")
	}
}
