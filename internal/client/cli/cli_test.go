package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophgrade/internal/client/auth"
	"github.com/iudanet/gophgrade/internal/client/changes"
	"github.com/iudanet/gophgrade/internal/client/data"
	"github.com/iudanet/gophgrade/internal/client/iocli"
	"github.com/iudanet/gophgrade/internal/client/storage/boltdb"
	"github.com/iudanet/gophgrade/internal/client/sync"
	"github.com/iudanet/gophgrade/internal/clock"
	"github.com/iudanet/gophgrade/internal/models"
	"github.com/iudanet/gophgrade/pkg/api"
)

// healthFunc adapts a function to HealthChecker
type healthFunc func(ctx context.Context) (*api.HealthResponse, error)

func (f healthFunc) Health(ctx context.Context) (*api.HealthResponse, error) {
	return f(ctx)
}

type testEnv struct {
	healthErr error
	cli       *Cli
	store     *boltdb.Storage
	log       *changes.Log
	transport *sync.TransportMock
	output    *strings.Builder
	sent      [][]api.Change
	nextKey   int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{store: store, output: &strings.Builder{}, nextKey: 500}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.New()
	env.log = changes.New(store, logger)

	env.transport = &sync.TransportMock{
		SendFunc: func(ctx context.Context, token string, batch []api.Change) (*api.SendResponse, error) {
			env.sent = append(env.sent, batch)
			keyMap := make(map[string]*string)
			for _, ch := range batch {
				if models.IsTempKey(ch.Key) {
					env.nextKey++
					key := fmt.Sprint(env.nextKey)
					keyMap[ch.Key] = &key
				}
			}
			return &api.SendResponse{Accepted: true, KeyMap: keyMap, Token: token}, nil
		},
		FetchDataFunc: func(ctx context.Context, token string) (*api.DataResponse, error) {
			return &api.DataResponse{
				Task: map[string]any{"title": "Essay", "max_points": 20.0},
				Entities: map[string][]map[string]any{
					"item":       {{"key": "12", "title": "Essay", "name": "Alice"}},
					"assignment": {{"key": "a1", "item_key": "12", "corrector_key": "u1", "position": 0}},
					"criterion":  {{"key": "k1", "title": "Structure", "points": 10.0}},
					"grade": {
						{"key": "g1", "grade": "insufficient", "points": 0.0},
						{"key": "g2", "grade": "good", "points": 10.0, "passed": true},
					},
				},
				Token:      token,
				ServerTime: time.Now().UnixMilli(),
			}, nil
		},
	}

	authenticator := &auth.AuthenticatorMock{
		LoginFunc: func(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
			return &api.TokenResponse{Token: "token-1", CorrectorKey: "u1", Username: req.Username}, nil
		},
	}

	health := healthFunc(func(ctx context.Context) (*api.HealthResponse, error) {
		if env.healthErr != nil {
			return nil, env.healthErr
		}
		return &api.HealthResponse{Status: "ok", ServerTime: time.Now().UnixMilli()}, nil
	})

	out := iocli.NewStreams(strings.NewReader("password1\n"), env.output)
	env.cli = New(Deps{
		IO:            out,
		Server:        health,
		Store:         store,
		Log:           env.log,
		Auth:          auth.NewService(authenticator, store, env.log, clk, "http://grading.local", logger),
		Data:          data.NewService(store, env.log, clk, logger),
		Coordinator:   sync.NewCoordinator(env.transport, store, env.log, clk, logger),
		Clock:         clk,
		Logger:        logger,
		FlushInterval: time.Hour,
		CheckInterval: time.Hour,
		Debounce:      0,
	})
	return env
}

func (e *testEnv) run(t *testing.T, command string, args ...string) error {
	t.Helper()
	e.output.Reset()
	return e.cli.Run(context.Background(), command, args)
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	require.NoError(t, e.run(t, "login", "-u", "alice"))
}

func TestStatus_NotAuthenticated(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.run(t, "status"))
	assert.Contains(t, env.output.String(), "Not authenticated")
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.run(t, "ping"))
	assert.Contains(t, env.output.String(), "Server status: ok")
	assert.Contains(t, env.output.String(), "Clock drift:")

	env.healthErr = fmt.Errorf("connection refused")
	err := env.run(t, "ping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, env.output.String(), "Server is unreachable")
}

func TestCommands_RequireSession(t *testing.T) {
	env := newTestEnv(t)

	for _, cmd := range [][]string{{"sync"}, {"items"}, {"comment", "list", "12"}, {"snippet", "list"}} {
		err := env.run(t, cmd[0], cmd[1:]...)
		require.Error(t, err, cmd)
		assert.Contains(t, err.Error(), "not authenticated")
	}
}

func TestLogin_LoadsData(t *testing.T) {
	env := newTestEnv(t)

	env.login(t)
	out := env.output.String()
	assert.Contains(t, out, "Login successful")
	assert.Contains(t, out, "Data loaded")
	assert.Len(t, env.transport.FetchDataCalls(), 1)

	require.NoError(t, env.run(t, "items"))
	assert.Contains(t, env.output.String(), "[12] Essay - Alice (corrector 1, open)")

	require.NoError(t, env.run(t, "task"))
	out = env.output.String()
	assert.Contains(t, out, "=== Essay ===")
	assert.Contains(t, out, "[k1] Structure (10)")
	assert.Contains(t, out, "[g2] good from 10 passed")
}

func TestComment_AddListSync(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	require.NoError(t, env.run(t, "comment", "add", "12", "-para", "2", "-start", "4", "-end", "6", "-text", "unclear", "-rating", "cardinal"))
	assert.Contains(t, env.output.String(), "Comment added")
	assert.Contains(t, env.output.String(), "Change queued")

	require.NoError(t, env.run(t, "status"))
	assert.Contains(t, env.output.String(), "Pending: 1 change(s)")

	require.NoError(t, env.run(t, "sync"))
	assert.Contains(t, env.output.String(), "Sent to server:     1 change(s)")
	require.Len(t, env.sent, 1)
	assert.Equal(t, "comment", env.sent[0][0].Type)

	require.NoError(t, env.run(t, "comment", "list", "12"))
	out := env.output.String()
	assert.Contains(t, out, "2.1 [cardinal] words 4-6: unclear")
	assert.Contains(t, out, "Key: 501")

	require.NoError(t, env.run(t, "status"))
	assert.Contains(t, env.output.String(), "All changes sent")
}

func TestComment_EditAndDelete(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	require.NoError(t, env.run(t, "comment", "add", "12", "-text", "first", "-sync"))
	assert.Contains(t, env.output.String(), "Sent 1 change(s)")

	require.NoError(t, env.run(t, "comment", "edit", "12", "501", "-text", "second", "-rating", "none"))
	e, err := env.store.GetEntity(context.Background(), models.TypeComment, "501")
	require.NoError(t, err)
	assert.Equal(t, "second", e.(models.Comment).Comment)

	require.NoError(t, env.run(t, "points", "add", "12", "-criterion", "k1", "-points", "3", "-comment", "501"))
	require.NoError(t, env.run(t, "comment", "delete", "12", "501"))
	assert.Contains(t, env.output.String(), "deleted with its points")

	pending, err := env.log.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pending[models.TypeComment])
	assert.Zero(t, pending[models.TypePoints], "unsent points collapse on delete")
}

func TestComment_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown item", args: []string{"add", "99", "-text", "x"}},
		{name: "bad rating", args: []string{"add", "12", "-rating", "great"}},
		{name: "missing item", args: []string{"add"}},
		{name: "flag instead of item", args: []string{"add", "-text", "x"}},
		{name: "unknown comment", args: []string{"edit", "12", "404"}},
		{name: "unknown subcommand", args: []string{"move", "12"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, env.run(t, "comment", tt.args...))
		})
	}
}

func TestPoints_CriterionLimit(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	err := env.run(t, "points", "add", "12", "-criterion", "k1", "-points", "12")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 10 points")

	assert.Error(t, env.run(t, "points", "add", "12", "-criterion", "k9", "-points", "1"))

	require.NoError(t, env.run(t, "points", "add", "12", "-criterion", "k1", "-points", "7"))
	require.NoError(t, env.run(t, "points", "list", "12"))
	assert.Contains(t, env.output.String(), "Total: 7")
}

func TestSnippet_Commands(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	require.NoError(t, env.run(t, "snippet", "add", "12", "-title", "intro", "-text", "The introduction is weak.", "-purpose", "summary"))
	require.NoError(t, env.run(t, "snippet", "list"))
	out := env.output.String()
	assert.Contains(t, out, "1. intro (summary)")
	assert.Contains(t, out, "The introduction is weak.")

	assert.Error(t, env.run(t, "snippet", "add", "12", "-text", "x", "-purpose", "poem"))
}

func TestSummary_SetAndShow(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	path := filepath.Join(t.TempDir(), "summary.txt")
	require.NoError(t, os.WriteFile(path, []byte("Well structured essay.\n"), 0600))

	require.NoError(t, env.run(t, "summary", "set", "12", "-file", path, "-points", "25"))
	assert.Contains(t, env.output.String(), "Summary saved")

	require.NoError(t, env.run(t, "summary", "show", "12"))
	out := env.output.String()
	assert.Contains(t, out, "Points:      20", "points clamped to task maximum")
	assert.Contains(t, out, "Grade:       good")
	assert.Contains(t, out, "Well structured essay.")

	require.NoError(t, env.run(t, "summary", "set", "12", "-file", path))
	assert.Contains(t, env.output.String(), "Summary is unchanged")

	require.NoError(t, env.run(t, "summary", "set", "12", "-file", path, "-authorize"))
	require.NoError(t, env.run(t, "summary", "set", "12", "-file", path, "-points", "5"))
	assert.Contains(t, env.output.String(), "nothing saved")

	assert.Error(t, env.run(t, "summary", "set", "12"))
}

func TestLogout_RefusesWithPendingChanges(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	require.NoError(t, env.run(t, "comment", "add", "12", "-text", "queued"))

	env.transport.SendFunc = func(ctx context.Context, token string, batch []api.Change) (*api.SendResponse, error) {
		return nil, fmt.Errorf("connection refused")
	}
	err := env.run(t, "logout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logout -force")

	require.NoError(t, env.run(t, "logout", "-force"))
	require.NoError(t, env.run(t, "status"))
	assert.Contains(t, env.output.String(), "Not authenticated")
}

func TestRefresh_RefusesWhenOffline(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	require.NoError(t, env.run(t, "comment", "add", "12", "-text", "queued"))
	env.transport.SendFunc = func(ctx context.Context, token string, batch []api.Change) (*api.SendResponse, error) {
		return nil, fmt.Errorf("connection refused")
	}

	assert.Error(t, env.run(t, "refresh"))

	pending, err := env.log.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pending[models.TypeComment])
}

func TestRun_UnknownCommand(t *testing.T) {
	env := newTestEnv(t)

	err := env.run(t, "register")
	require.Error(t, err)
	assert.Contains(t, env.output.String(), "Usage:")
}

func TestHelpers(t *testing.T) {
	pos, rest, err := splitArgs([]string{"12", "501", "-sync"}, 2, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"12", "501"}, pos)
	assert.Equal(t, []string{"-sync"}, rest)

	assert.Equal(t, "a b", excerpt(" a\n b ", 10))
	assert.Equal(t, "abcd…", excerpt("abcdefgh", 5))
}
