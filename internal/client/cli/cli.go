// Package cli implements the commands of the correction client.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/iudanet/gophgrade/internal/client/auth"
	"github.com/iudanet/gophgrade/internal/client/changes"
	"github.com/iudanet/gophgrade/internal/client/data"
	"github.com/iudanet/gophgrade/internal/client/iocli"
	"github.com/iudanet/gophgrade/internal/client/scheduler"
	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/internal/client/sync"
	"github.com/iudanet/gophgrade/internal/models"
	"github.com/iudanet/gophgrade/pkg/api"
)

// Store is the local store as seen by the commands
type Store interface {
	storage.EntityStorage
	storage.AuthStorage
	storage.MetadataStorage
}

// Clock is the server-synchronized clock shared by all services
type Clock interface {
	scheduler.Clock
	Offset() int64
}

// HealthChecker reports whether the server is reachable
type HealthChecker interface {
	Health(ctx context.Context) (*api.HealthResponse, error)
}

// Deps groups the services the commands run on
type Deps struct {
	IO          iocli.IO
	Server      HealthChecker
	Store       Store
	Log         *changes.Log
	Auth        *auth.Service
	Data        *data.Service
	Coordinator *sync.Coordinator
	Clock       Clock
	Logger      *slog.Logger

	FlushInterval time.Duration
	CheckInterval time.Duration
	Debounce      time.Duration
}

type Cli struct {
	io          iocli.IO
	server      HealthChecker
	store       Store
	log         *changes.Log
	authService *auth.Service
	dataService *data.Service
	coordinator *sync.Coordinator
	clock       Clock
	logger      *slog.Logger

	flushInterval time.Duration
	checkInterval time.Duration
	debounce      time.Duration
}

func New(d Deps) *Cli {
	c := &Cli{
		io:            d.IO,
		server:        d.Server,
		store:         d.Store,
		log:           d.Log,
		authService:   d.Auth,
		dataService:   d.Data,
		coordinator:   d.Coordinator,
		clock:         d.Clock,
		logger:        d.Logger,
		flushInterval: d.FlushInterval,
		checkInterval: d.CheckInterval,
		debounce:      d.Debounce,
	}
	// Коллекции в памяти перечитываются после каждой сверки ключей
	c.coordinator.AddListener(c.dataService)
	return c
}

// Run executes command with its arguments
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return c.runLogin(ctx, args)
	case "logout":
		return c.runLogout(ctx, args)
	case "status":
		return c.runStatus(ctx)
	case "ping":
		return c.runPing(ctx)
	case "sync":
		return c.runSync(ctx)
	case "refresh":
		return c.runRefresh(ctx)
	case "task":
		return c.runTask(ctx)
	case "items":
		return c.runItems(ctx)
	case "comment":
		return c.runComment(ctx, args)
	case "points":
		return c.runPoints(ctx, args)
	case "snippet":
		return c.runSnippet(ctx, args)
	case "summary":
		return c.runSummary(ctx, args)
	default:
		PrintUsage(c.io)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// session returns the stored session or a hint to log in
func (c *Cli) session(ctx context.Context) (*storage.AuthData, error) {
	s, err := c.authService.Session(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		return nil, fmt.Errorf("not authenticated. Please run 'gophgrade login' first")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// openItem opens the annotation collections of itemKey for the logged in corrector
func (c *Cli) openItem(ctx context.Context, itemKey string) (*storage.AuthData, error) {
	s, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.GetEntity(ctx, models.TypeItem, itemKey); err != nil {
		if errors.Is(err, storage.ErrEntityNotFound) {
			return nil, fmt.Errorf("unknown item %s. Run 'gophgrade items' to list assigned items", itemKey)
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if err := c.dataService.Open(ctx, itemKey, s.CorrectorKey); err != nil {
		return nil, fmt.Errorf("failed to open item: %w", err)
	}
	return s, nil
}

// afterChange sends the queued changes when asked to, otherwise reports the queue
func (c *Cli) afterChange(ctx context.Context, send bool) {
	if !send {
		c.io.Println("Change queued. Run 'gophgrade sync' to send it to the server.")
		return
	}
	result, err := c.coordinator.FlushAll(ctx)
	if err != nil {
		c.io.Printf("⚠️  Change saved locally, sending failed: %v\n", err)
		return
	}
	c.io.Printf("✓ Sent %d change(s) to server\n", result.Sent)
}

// newFlagSet creates a flag set reporting errors to the terminal
func (c *Cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.io)
	return fs
}

func PrintUsage(w io.Writer) {
	fmt.Fprint(w, `GophGrade Client

Usage:
  gophgrade [OPTIONS] COMMAND [ARGS]

Options:
  -version                 Show version information
  -server URL              Server URL (default: http://localhost:8080, env GOPHGRADE_SERVER)
  -db PATH                 Path to local database (default: gophgrade-client.db, env GOPHGRADE_DB)
  -log-level LEVEL         debug, info, warn or error (env GOPHGRADE_LOG_LEVEL)
  -flush-interval DUR      Interval between change flushes in watch mode (default: 5s)
  -check-interval DUR      Interval between summary checks (default: 1s)
  -debounce DUR            Minimum interval between summary checks (default: 2s)

Commands:
  login [-u USERNAME]                       Login and load the assigned items
  logout [-force]                           Remove the session and all local data
  status                                    Show session, queue and clock state
  ping                                      Check that the server is reachable
  sync                                      Send queued changes to the server
  refresh                                   Reload all data from the server
  task                                      Show task settings, criteria and grades
  items                                     List assigned items
  comment list ITEM
  comment add ITEM -para N -start S -end E -text TEXT [-rating R] [-sync]
  comment edit ITEM KEY [-text TEXT] [-rating R] [-start S] [-end E] [-sync]
  comment delete ITEM KEY [-sync]
  points list ITEM
  points add ITEM -criterion KEY -points P [-comment KEY] [-sync]
  points edit ITEM KEY -points P [-sync]
  points delete ITEM KEY [-sync]
  snippet list
  snippet add ITEM -text TEXT [-title T] [-purpose comment|summary] [-sync]
  snippet delete ITEM KEY [-sync]
  summary show ITEM
  summary set ITEM -file PATH -points P [-authorize] [-sync]
  summary watch ITEM -file PATH -points P   Save the summary file on every change

Examples:
  gophgrade login -u alice
  gophgrade comment add 12 -para 3 -start 40 -end 44 -text "unclear" -rating cardinal
  gophgrade summary watch 12 -file summary.txt -points 14
  gophgrade -server https://grading.example.com status
`)
}
