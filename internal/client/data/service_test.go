package data

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophgrade/internal/client/changes"
	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/internal/client/storage/boltdb"
	"github.com/iudanet/gophgrade/internal/clock"
	"github.com/iudanet/gophgrade/internal/models"
)

func newTestService(t *testing.T) (*Service, *boltdb.Storage, *changes.Log) {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	log := changes.New(store, logger)
	return NewService(store, log, clock.New(), logger), store, log
}

func openService(t *testing.T) (*Service, *boltdb.Storage, *changes.Log) {
	t.Helper()
	s, store, log := newTestService(t)
	require.NoError(t, s.Open(context.Background(), "i1", "u1"))
	return s, store, log
}

func pending(t *testing.T, log *changes.Log, typ models.EntityType) []models.ChangeRecord {
	t.Helper()
	list, err := log.List(context.Background(), typ, 0)
	require.NoError(t, err)
	return list
}

func TestOpen_LoadsActiveItem(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestService(t)

	for _, e := range []models.Entity{
		models.Comment{Key: "c1", ItemKey: "i1", CorrectorKey: "u1", ParentNumber: 1},
		models.Comment{Key: "c2", ItemKey: "i2", CorrectorKey: "u1"},
		models.Comment{Key: "c3", ItemKey: "i1", CorrectorKey: "u2"},
		models.Points{Key: "p1", ItemKey: "i1", CorrectorKey: "u1", CommentKey: "c1", CriterionKey: "k1"},
		models.Snippet{Key: "s1", ItemKey: "i2", Purpose: models.SnippetPurposeSummary, Text: "reusable"},
		models.Summary{Key: "i1:u1", ItemKey: "i1", CorrectorKey: "u1", Text: "draft"},
	} {
		require.NoError(t, store.SaveEntity(ctx, e))
	}

	require.NoError(t, s.Open(ctx, "i1", "u1"))

	comments := s.Comments()
	require.Len(t, comments, 1)
	assert.Equal(t, "c1", comments[0].Key)
	assert.Len(t, s.Points(), 1)
	assert.Len(t, s.Snippets(), 1, "snippets are shared across items")

	summary, ok := s.Summary()
	require.True(t, ok)
	assert.Equal(t, "draft", summary.Text)
	assert.Equal(t, "i1", s.ItemKey())
}

func TestOpen_RequiresOwner(t *testing.T) {
	s, _, _ := newTestService(t)

	err := s.Open(context.Background(), "", "u1")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNotOpen(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	_, err := s.AddComment(ctx, models.Comment{})
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = s.AddPoints(ctx, models.Points{CriterionKey: "k1"})
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = s.AddSnippet(ctx, models.Snippet{Text: "x"})
	assert.ErrorIs(t, err, ErrNotOpen)

	_, ok := s.Summary()
	assert.False(t, ok)
}

func TestComment_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, store, log := openService(t)

	c, err := s.AddComment(ctx, models.Comment{Comment: "unclear", StartPosition: 3, EndPosition: 5, ParentNumber: 2})
	require.NoError(t, err)
	assert.True(t, models.IsTempKey(c.Key))
	assert.Equal(t, "i1", c.ItemKey)
	assert.Equal(t, "u1", c.CorrectorKey)

	stored, err := store.GetEntity(ctx, models.TypeComment, c.Key)
	require.NoError(t, err)
	assert.Equal(t, c, stored)

	records := pending(t, log, models.TypeComment)
	require.Len(t, records, 1)
	assert.Equal(t, models.ActionSave, records[0].Action)
	assert.Equal(t, c.Key, records[0].Key)

	c.Comment = "very unclear"
	c.Rating = models.RatingCardinal
	require.NoError(t, s.UpdateComment(ctx, c))
	stored, err = store.GetEntity(ctx, models.TypeComment, c.Key)
	require.NoError(t, err)
	assert.Equal(t, "very unclear", stored.(models.Comment).Comment)

	updated := pending(t, log, models.TypeComment)
	require.Len(t, updated, 1)
	assert.Greater(t, updated[0].LastChange, records[0].LastChange)

	// Удаление несохраненного на сервере комментария снимает запись из очереди
	require.NoError(t, s.DeleteComment(ctx, c.Key))
	assert.Empty(t, s.Comments())
	assert.Empty(t, pending(t, log, models.TypeComment))
	_, err = store.GetEntity(ctx, models.TypeComment, c.Key)
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)
}

func TestComment_InvalidRange(t *testing.T) {
	s, _, log := openService(t)

	_, err := s.AddComment(context.Background(), models.Comment{StartPosition: 5, EndPosition: 3})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Empty(t, pending(t, log, models.TypeComment))
}

func TestDeleteComment_DeletesBoundPoints(t *testing.T) {
	ctx := context.Background()
	s, store, log := newTestService(t)

	require.NoError(t, store.SaveEntity(ctx, models.Comment{Key: "501", ItemKey: "i1", CorrectorKey: "u1"}))
	require.NoError(t, store.SaveEntity(ctx, models.Points{Key: "601", ItemKey: "i1", CorrectorKey: "u1", CommentKey: "501", CriterionKey: "k1"}))
	require.NoError(t, store.SaveEntity(ctx, models.Points{Key: "602", ItemKey: "i1", CorrectorKey: "u1", CriterionKey: "k2"}))
	require.NoError(t, s.Open(ctx, "i1", "u1"))

	require.NoError(t, s.DeleteComment(ctx, "501"))

	assert.Empty(t, s.Comments())
	require.Len(t, s.Points(), 1)
	assert.Equal(t, "602", s.Points()[0].Key)

	comments := pending(t, log, models.TypeComment)
	require.Len(t, comments, 1)
	assert.Equal(t, models.ActionDelete, comments[0].Action)

	points := pending(t, log, models.TypePoints)
	require.Len(t, points, 1)
	assert.Equal(t, "601", points[0].Key)
	assert.Equal(t, models.ActionDelete, points[0].Action)
	assert.Equal(t, comments[0].LastChange, points[0].LastChange)
}

func TestComments_Labels(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openService(t)

	for _, c := range []models.Comment{
		{ParentNumber: 2, StartPosition: 40, EndPosition: 41},
		{ParentNumber: 1, StartPosition: 10, EndPosition: 12},
		{ParentNumber: 2, StartPosition: 5, EndPosition: 6},
		{ParentNumber: 1, StartPosition: 1, EndPosition: 1},
	} {
		_, err := s.AddComment(ctx, c)
		require.NoError(t, err)
	}

	var labels []string
	for _, c := range s.Comments() {
		labels = append(labels, c.Label)
	}
	assert.Equal(t, []string{"1.1", "1.2", "2.1", "2.2"}, labels)
}

func TestPoints_Validation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openService(t)

	tests := []struct {
		wantErr error
		name    string
		points  models.Points
	}{
		{name: "no criterion", points: models.Points{Points: 1}, wantErr: ErrInvalid},
		{name: "negative", points: models.Points{CriterionKey: "k1", Points: -1}, wantErr: ErrInvalid},
		{name: "unknown comment", points: models.Points{CriterionKey: "k1", CommentKey: "c404"}, wantErr: ErrNotFound},
		{name: "criterion only", points: models.Points{CriterionKey: "k1", Points: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddPoints(ctx, tt.points)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPoints_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, store, log := openService(t)

	c, err := s.AddComment(ctx, models.Comment{Comment: "good"})
	require.NoError(t, err)

	p, err := s.AddPoints(ctx, models.Points{CommentKey: c.Key, CriterionKey: "k1", Points: 2})
	require.NoError(t, err)
	assert.True(t, models.IsTempKey(p.Key))

	p.Points = 3
	require.NoError(t, s.UpdatePoints(ctx, p))
	stored, err := store.GetEntity(ctx, models.TypePoints, p.Key)
	require.NoError(t, err)
	assert.Equal(t, 3.0, stored.(models.Points).Points)
	assert.Len(t, pending(t, log, models.TypePoints), 1)

	require.NoError(t, s.DeletePoints(ctx, p.Key))
	assert.Empty(t, s.Points())
	assert.Empty(t, pending(t, log, models.TypePoints))

	assert.ErrorIs(t, s.DeletePoints(ctx, p.Key), ErrNotFound)
	assert.ErrorIs(t, s.UpdatePoints(ctx, p), ErrNotFound)
}

func TestSnippet_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, store, log := openService(t)

	sn, err := s.AddSnippet(ctx, models.Snippet{Title: "intro", Text: "The introduction is weak.", Purpose: "poem"})
	require.NoError(t, err)
	assert.Equal(t, models.SnippetPurposeComment, sn.Purpose)
	assert.Equal(t, "i1", sn.ItemKey)

	_, err = s.AddSnippet(ctx, models.Snippet{Title: "empty"})
	assert.ErrorIs(t, err, ErrInvalid)

	// Открываем другую работу: сниппет остается доступен
	require.NoError(t, s.Open(ctx, "i2", "u1"))
	require.Len(t, s.Snippets(), 1)

	sn.Text = "The introduction is too short."
	sn.ItemKey = "i2"
	require.NoError(t, s.UpdateSnippet(ctx, sn))
	stored, err := store.GetEntity(ctx, models.TypeSnippet, sn.Key)
	require.NoError(t, err)
	assert.Equal(t, "i1", stored.(models.Snippet).ItemKey)
	assert.Equal(t, "The introduction is too short.", stored.(models.Snippet).Text)

	records := pending(t, log, models.TypeSnippet)
	require.Len(t, records, 1)
	assert.Equal(t, "i1", records[0].ItemKey)

	require.NoError(t, s.DeleteSnippet(ctx, sn.Key))
	assert.Empty(t, s.Snippets())
	assert.Empty(t, pending(t, log, models.TypeSnippet))
}

func TestDelete_PermanentKeyQueuesDelete(t *testing.T) {
	ctx := context.Background()
	s, store, log := newTestService(t)

	require.NoError(t, store.SaveEntity(ctx, models.Snippet{Key: "701", ItemKey: "i1", Text: "x"}))
	require.NoError(t, s.Open(ctx, "i1", "u1"))

	require.NoError(t, s.DeleteSnippet(ctx, "701"))

	records := pending(t, log, models.TypeSnippet)
	require.Len(t, records, 1)
	assert.Equal(t, models.ActionDelete, records[0].Action)
	assert.Equal(t, "701", records[0].Key)
}

func TestPersist_FailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	s, store, _ := openService(t)

	c, err := s.AddComment(ctx, models.Comment{Comment: "kept"})
	require.NoError(t, err)

	require.NoError(t, store.Close())

	_, err = s.AddComment(ctx, models.Comment{Comment: "lost"})
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, s.DeleteComment(ctx, c.Key), storage.ErrStorageClosed)

	comments := s.Comments()
	require.Len(t, comments, 1)
	assert.Equal(t, "kept", comments[0].Comment)
}

func TestReconciled_ReloadsKeys(t *testing.T) {
	ctx := context.Background()
	s, store, _ := openService(t)

	c, err := s.AddComment(ctx, models.Comment{Comment: "moved"})
	require.NoError(t, err)

	// Координатор переписал ключ в хранилище
	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.DeleteEntity(models.TypeComment, c.Key); err != nil {
			return err
		}
		return tx.PutEntity(c.WithKey("501"))
	}))
	newKey := "501"
	s.Reconciled(ctx, map[string]*string{c.Key: &newKey})

	comments := s.Comments()
	require.Len(t, comments, 1)
	assert.Equal(t, "501", comments[0].Key)
}

func TestReconciled_NotOpenIsNoop(t *testing.T) {
	s, _, _ := newTestService(t)

	s.Reconciled(context.Background(), nil)
	assert.Empty(t, s.ItemKey())
}

func TestEdit_KeyMovedByReconciliation(t *testing.T) {
	tests := []struct {
		edit func(s *Service, ctx context.Context, c models.Comment) error
		name string
	}{
		{
			name: "update",
			edit: func(s *Service, ctx context.Context, c models.Comment) error {
				c.Comment = "edited"
				return s.UpdateComment(ctx, c)
			},
		},
		{
			name: "delete",
			edit: func(s *Service, ctx context.Context, c models.Comment) error {
				return s.DeleteComment(ctx, c.Key)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, store, log := openService(t)

			c, err := s.AddComment(ctx, models.Comment{Comment: "moved"})
			require.NoError(t, err)

			// Ключ перенесен в хранилище, коллекции в памяти еще не перечитаны
			require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
				if err := tx.DeleteEntity(models.TypeComment, c.Key); err != nil {
					return err
				}
				if err := tx.DeleteChange(models.TypeComment, c.Key); err != nil {
					return err
				}
				return tx.PutEntity(c.WithKey("501"))
			}))

			err = tt.edit(s, ctx, c)
			assert.ErrorIs(t, err, ErrNotFound)

			stored, err := store.ListEntities(ctx, models.TypeComment, "i1")
			require.NoError(t, err)
			require.Len(t, stored, 1)
			assert.Equal(t, "501", stored[0].GetKey())
			assert.Empty(t, pending(t, log, models.TypeComment))

			comments := s.Comments()
			require.Len(t, comments, 1)
			assert.Equal(t, "501", comments[0].Key, "collections are reloaded")
			assert.Equal(t, "moved", comments[0].Comment)
		})
	}
}
