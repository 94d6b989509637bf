package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophgrade/internal/client/changes"
	"github.com/iudanet/gophgrade/internal/client/storage/boltdb"
	"github.com/iudanet/gophgrade/internal/clock"
	"github.com/iudanet/gophgrade/internal/models"
)

const summaryKey = "i1:u1"

type testEnv struct {
	store *boltdb.Storage
	log   *changes.Log
	draft *DraftSourceMock
	sched *Scheduler
}

func newTestEnv(t *testing.T, debounce time.Duration, draft Draft) *testEnv {
	t.Helper()

	ctx := context.Background()
	store, err := boltdb.New(ctx, filepath.Join(t.TempDir(), "scheduler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	log := changes.New(store, logger)

	source := &DraftSourceMock{
		DraftFunc: func(ctx context.Context) (Draft, error) {
			return draft, nil
		},
	}

	cfg := Config{ItemKey: "i1", CorrectorKey: "u1", Interval: time.Hour, Debounce: debounce}
	return &testEnv{
		store: store,
		log:   log,
		draft: source,
		sched: New(source, store, log, clock.New(), cfg, logger),
	}
}

func (e *testEnv) summary(t *testing.T) models.Summary {
	t.Helper()
	ent, err := e.store.GetEntity(context.Background(), models.TypeSummary, summaryKey)
	require.NoError(t, err)
	return ent.(models.Summary)
}

func (e *testEnv) records(t *testing.T) []models.ChangeRecord {
	t.Helper()
	list, err := e.log.List(context.Background(), models.TypeSummary, 0)
	require.NoError(t, err)
	return list
}

func TestCheck_DebouncedIdenticalContent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, time.Hour, Draft{Text: "good structure", Points: 12})

	outcome, err := env.sched.Check(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)

	outcome, err = env.sched.Check(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	list, err := env.store.ListEntities(ctx, models.TypeSummary, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	records := env.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, summaryKey, records[0].Key)
	assert.Equal(t, "i1", records[0].ItemKey)
	assert.Equal(t, models.ActionSave, records[0].Action)

	// Принудительная проверка с тем же содержимым ничего не пишет
	outcome, err = env.sched.Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Equal(t, records, env.records(t))
}

func TestCheck_NoDebounceSavesEveryChange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0, Draft{})

	for i, text := range []string{"a", "ab", "abc"} {
		env.draft.DraftFunc = func(ctx context.Context) (Draft, error) {
			return Draft{Text: text}, nil
		}
		outcome, err := env.sched.Check(ctx, false)
		require.NoError(t, err, "check %d", i)
		assert.Equal(t, OutcomeSaved, outcome)
	}

	assert.Equal(t, "abc", env.summary(t).Text)
	assert.Len(t, env.records(t), 1)
}

func TestCheck_EmptyDraftWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0, Draft{})

	outcome, err := env.sched.Check(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Empty(t, env.records(t))
}

func TestCheck_Reentrancy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0, Draft{})

	release := make(chan struct{})
	env.draft.DraftFunc = func(ctx context.Context) (Draft, error) {
		<-release
		return Draft{Text: "slow"}, nil
	}

	type result struct {
		err     error
		outcome Outcome
	}
	first := make(chan result, 1)
	go func() {
		outcome, err := env.sched.Check(ctx, true)
		first <- result{outcome: outcome, err: err}
	}()

	require.Eventually(t, func() bool {
		return len(env.draft.DraftCalls()) == 1
	}, time.Second, time.Millisecond)

	// Вторая проверка не ждет и не встает в очередь
	outcome, err := env.sched.Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	close(release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, OutcomeSaved, res.outcome)

	// Счетчик сброшен после завершения
	outcome, err = env.sched.Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Len(t, env.draft.DraftCalls(), 2)
}

func TestCheck_ClampAndGrade(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		wantGrade  string
		points     float64
		wantPoints float64
	}{
		{name: "above maximum", points: 25, wantPoints: 20, wantGrade: "g-good"},
		{name: "negative", points: -5, wantPoints: 0, wantGrade: "g-fail"},
		{name: "between levels", points: 12.5, wantPoints: 12.5, wantGrade: "g-pass"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 0, Draft{Text: "text", Points: tt.points})
			require.NoError(t, env.store.SaveTask(ctx, models.Task{MaxPoints: 20}))
			for _, g := range []models.Grade{
				{Key: "g-fail", Points: 0},
				{Key: "g-pass", Points: 10},
				{Key: "g-good", Points: 15},
			} {
				require.NoError(t, env.store.SaveEntity(ctx, g))
			}

			outcome, err := env.sched.Check(ctx, false)
			require.NoError(t, err)
			assert.Equal(t, OutcomeSaved, outcome)

			s := env.summary(t)
			assert.Equal(t, tt.wantPoints, s.Points)
			assert.Equal(t, tt.wantGrade, s.GradeKey)
		})
	}
}

func TestCheck_GradeKeptWhenPointsUnchanged(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0, Draft{Text: "new text", Points: 12})

	require.NoError(t, env.store.SaveEntity(ctx, models.Grade{Key: "g-pass", Points: 10}))
	require.NoError(t, env.store.SaveEntity(ctx, models.Summary{
		Key: summaryKey, ItemKey: "i1", CorrectorKey: "u1", Text: "old text", Points: 12, GradeKey: "g-manual",
	}))

	outcome, err := env.sched.Check(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)

	s := env.summary(t)
	assert.Equal(t, "new text", s.Text)
	assert.Equal(t, "g-manual", s.GradeKey)
	assert.NotZero(t, s.LastChange)
}

func TestCheck_MissingGradeFilledOnTextChange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0, Draft{Text: "new text", Points: 12})

	require.NoError(t, env.store.SaveEntity(ctx, models.Grade{Key: "g-pass", Points: 10}))
	require.NoError(t, env.store.SaveEntity(ctx, models.Summary{
		Key: summaryKey, ItemKey: "i1", CorrectorKey: "u1", Text: "old text", Points: 12,
	}))

	outcome, err := env.sched.Check(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)

	s := env.summary(t)
	assert.Equal(t, "new text", s.Text)
	assert.Equal(t, "g-pass", s.GradeKey)
}

func TestCheck_FreezeAfterAuthorization(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0, Draft{Text: "final", Points: 10, Authorized: true})

	outcome, err := env.sched.Check(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)
	assert.True(t, env.summary(t).IsAuthorized)
	assert.True(t, env.sched.Frozen())

	env.draft.DraftFunc = func(ctx context.Context) (Draft, error) {
		return Draft{Text: "edited after"}, nil
	}
	outcome, err = env.sched.Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFrozen, outcome)
	assert.Equal(t, "final", env.summary(t).Text)
	assert.Len(t, env.draft.DraftCalls(), 1)
}

func TestCheck_StoredAuthorizedSummaryFreezes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0, Draft{Text: "changed"})

	require.NoError(t, env.store.SaveEntity(ctx, models.Summary{
		Key: summaryKey, ItemKey: "i1", CorrectorKey: "u1", Text: "final", IsAuthorized: true,
	}))

	outcome, err := env.sched.Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFrozen, outcome)
	assert.Empty(t, env.draft.DraftCalls())
	assert.Empty(t, env.records(t))
}

func TestCheck_DeadlinePassed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0, Draft{Text: "late edit"})

	require.NoError(t, env.store.SaveTask(ctx, models.Task{CorrectionEnd: time.Now().Add(-time.Hour).Unix()}))

	outcome, err := env.sched.Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFrozen, outcome)
	assert.True(t, env.sched.Frozen())
	assert.Empty(t, env.records(t))

	_, err = env.store.GetEntity(ctx, models.TypeSummary, summaryKey)
	assert.Error(t, err)
}

func TestCheck_DeadlineInFuture(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0, Draft{Text: "in time"})

	require.NoError(t, env.store.SaveTask(ctx, models.Task{CorrectionEnd: time.Now().Add(time.Hour).Unix()}))

	outcome, err := env.sched.Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)
	assert.False(t, env.sched.Frozen())
}

func TestCheck_DraftError(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0, Draft{})
	env.draft.DraftFunc = func(ctx context.Context) (Draft, error) {
		return Draft{}, errors.New("editor closed")
	}

	outcome, err := env.sched.Check(ctx, true)
	assert.Error(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	// Следующая проверка снова доступна
	env.draft.DraftFunc = func(ctx context.Context) (Draft, error) {
		return Draft{Text: "back"}, nil
	}
	outcome, err = env.sched.Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)
}

func TestStart_ContentChanged(t *testing.T) {
	env := newTestEnv(t, 0, Draft{Text: "typed"})

	ctx := context.Background()
	env.sched.Start(ctx)
	env.sched.Start(ctx) // повторный запуск игнорируется

	env.sched.ContentChanged()
	env.sched.ContentChanged() // не блокирует

	assert.Eventually(t, func() bool {
		records, err := env.log.List(ctx, models.TypeSummary, 0)
		return err == nil && len(records) == 1
	}, time.Second, 5*time.Millisecond)

	env.sched.Stop()
	env.sched.Stop()

	assert.Equal(t, "typed", env.summary(t).Text)
}

func TestFileDraft(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.txt")
	require.NoError(t, os.WriteFile(path, []byte("The essay is well structured.\n"), 0600))

	d := NewFileDraft(path, 7)
	draft, err := d.Draft(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Draft{Text: "The essay is well structured.", Points: 7}, draft)

	d.SetPoints(9)
	d.Authorize()
	draft, err = d.Draft(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9.0, draft.Points)
	assert.True(t, draft.Authorized)
	assert.Equal(t, path, d.Path())

	_, err = NewFileDraft(filepath.Join(t.TempDir(), "missing.txt"), 0).Draft(context.Background())
	assert.Error(t, err)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "saved", OutcomeSaved.String())
	assert.Equal(t, "frozen", OutcomeFrozen.String())
	assert.Equal(t, "Outcome(42)", Outcome(42).String())
}
