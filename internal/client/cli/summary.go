package cli

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iudanet/gophgrade/internal/client/scheduler"
	"github.com/iudanet/gophgrade/internal/models"
)

func (c *Cli) runSummary(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing subcommand. Usage: gophgrade summary <show|set|watch> ITEM")
	}

	switch args[0] {
	case "show":
		return c.runSummaryShow(ctx, args[1:])
	case "set":
		return c.runSummarySet(ctx, args[1:])
	case "watch":
		return c.runSummaryWatch(ctx, args[1:])
	default:
		return fmt.Errorf("unknown subcommand: summary %s", args[0])
	}
}

func (c *Cli) runSummaryShow(ctx context.Context, args []string) error {
	pos, _, err := splitArgs(args, 1, "summary show ITEM")
	if err != nil {
		return err
	}
	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}

	c.io.Printf("=== Summary of item %s ===\n", pos[0])
	c.io.Println()

	s, ok := c.dataService.Summary()
	if !ok {
		c.io.Println("No summary written yet.")
		return nil
	}

	grade := "-"
	if s.GradeKey != "" {
		if e, err := c.store.GetEntity(ctx, models.TypeGrade, s.GradeKey); err == nil {
			grade = e.(models.Grade).Grade
		}
	}

	c.io.Printf("Points:      %g\n", s.Points)
	c.io.Printf("Grade:       %s\n", grade)
	c.io.Printf("Authorized:  %t\n", s.IsAuthorized)
	if s.LastChange > 0 {
		c.io.Printf("Last change: %s\n", time.UnixMilli(s.LastChange).Format(time.RFC3339))
	}
	c.io.Println()
	c.io.Println(s.Text)
	return nil
}

// newScheduler builds the summary scheduler of item over the draft file
func (c *Cli) newScheduler(itemKey, correctorKey string, draft *scheduler.FileDraft) *scheduler.Scheduler {
	cfg := scheduler.DefaultConfig(itemKey, correctorKey)
	if c.checkInterval > 0 {
		cfg.Interval = c.checkInterval
	}
	cfg.Debounce = c.debounce
	return scheduler.New(draft, c.store, c.log, c.clock, cfg, c.logger)
}

type summaryFlags struct {
	file      *string
	points    *float64
	authorize *bool
	send      *bool
}

func (c *Cli) parseSummaryFlags(name string, args []string, current float64) (*summaryFlags, error) {
	fs := c.newFlagSet(name)
	f := &summaryFlags{
		file:      fs.String("file", "", "Text file with the summary"),
		points:    fs.Float64("points", current, "Total points"),
		authorize: fs.Bool("authorize", false, "Finish the correction, no further edits"),
		send:      fs.Bool("sync", false, "Send the change right away"),
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *f.file == "" {
		return nil, fmt.Errorf("-file is required")
	}
	return f, nil
}

func (c *Cli) runSummarySet(ctx context.Context, args []string) error {
	pos, rest, err := splitArgs(args, 1, "summary set ITEM -file PATH -points P [-authorize]")
	if err != nil {
		return err
	}
	session, err := c.openItem(ctx, pos[0])
	if err != nil {
		return err
	}
	current, _ := c.dataService.Summary()

	f, err := c.parseSummaryFlags("summary set", rest, current.Points)
	if err != nil {
		return err
	}

	draft := scheduler.NewFileDraft(*f.file, *f.points)
	if *f.authorize {
		draft.Authorize()
	}

	outcome, err := c.newScheduler(pos[0], session.CorrectorKey, draft).Check(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}

	switch outcome {
	case scheduler.OutcomeSaved:
		c.io.Println("✓ Summary saved")
		c.afterChange(ctx, *f.send)
	case scheduler.OutcomeUnchanged:
		c.io.Println("Summary is unchanged")
	case scheduler.OutcomeFrozen:
		c.io.Println("⚠️  Summary is authorized or the correction period is over, nothing saved.")
	default:
		c.io.Printf("Summary check %s\n", outcome)
	}
	return nil
}

func (c *Cli) runSummaryWatch(ctx context.Context, args []string) error {
	pos, rest, err := splitArgs(args, 1, "summary watch ITEM -file PATH -points P")
	if err != nil {
		return err
	}
	session, err := c.openItem(ctx, pos[0])
	if err != nil {
		return err
	}
	current, _ := c.dataService.Summary()

	f, err := c.parseSummaryFlags("summary watch", rest, current.Points)
	if err != nil {
		return err
	}
	path, err := filepath.Abs(*f.file)
	if err != nil {
		return fmt.Errorf("invalid file path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Редакторы часто сохраняют через переименование, поэтому следим за каталогом
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	draft := scheduler.NewFileDraft(path, *f.points)
	sched := c.newScheduler(pos[0], session.CorrectorKey, draft)

	runCtx, cancel := context.WithCancel(ctx)
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		c.coordinator.Run(runCtx, cmp.Or(c.flushInterval, 5*time.Second))
	}()

	sched.Start(runCtx)
	sched.ContentChanged()

	c.io.Printf("=== Watching %s ===\n", path)
	c.io.Println("Every saved change is committed. Press Ctrl+C to stop.")

	frozenTick := time.NewTicker(cmp.Or(c.checkInterval, time.Second))
	defer frozenTick.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-watcher.Events:
			if !ok {
				break loop
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				sched.ContentChanged()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				break loop
			}
			c.logger.Warn("File watcher error", "error", err)
		case <-frozenTick.C:
			if sched.Frozen() {
				c.io.Println("⚠️  Summary is authorized or the correction period is over, stopping.")
				break loop
			}
		}
	}

	sched.Stop()
	cancel()
	<-flushDone

	// Последняя правка и отправка не должны прерываться отменой
	final, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()

	if outcome, err := sched.Check(final, true); err != nil {
		c.io.Printf("⚠️  Final save failed: %v\n", err)
	} else if outcome == scheduler.OutcomeSaved {
		c.io.Println("✓ Summary saved")
	}
	c.afterChange(final, true)
	return nil
}
