package cli

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/iudanet/gophgrade/internal/models"
)

func (c *Cli) runTask(ctx context.Context) error {
	session, err := c.session(ctx)
	if err != nil {
		return err
	}

	task, err := c.store.GetTask(ctx)
	if err != nil {
		return fmt.Errorf("failed to get task: %w", err)
	}

	c.io.Printf("=== %s ===\n", cmp.Or(task.Title, "Task"))
	c.io.Println()
	if task.Instructions != "" {
		c.io.Println(task.Instructions)
		c.io.Println()
	}
	if task.CorrectionEnd > 0 {
		end := time.Unix(task.CorrectionEnd, 0)
		c.io.Printf("Correction end: %s\n", end.Format(time.RFC3339))
		if c.clock.Now().After(end) {
			c.io.Println("⚠️  Correction period is over, summaries can not be changed.")
		}
	}
	if task.MaxPoints > 0 {
		c.io.Printf("Max points:     %g\n", task.MaxPoints)
	}

	criteria, err := c.store.ListEntities(ctx, models.TypeCriterion, "")
	if err != nil {
		return fmt.Errorf("failed to list criteria: %w", err)
	}
	c.io.Println()
	c.io.Println("Criteria:")
	for _, e := range criteria {
		cr := e.(models.Criterion)
		if cr.CorrectorKey != "" && cr.CorrectorKey != session.CorrectorKey {
			continue
		}
		c.io.Printf("  [%s] %s (%g)\n", cr.Key, cr.Title, cr.Points)
		if cr.Description != "" {
			c.io.Printf("      %s\n", cr.Description)
		}
	}

	grades, err := c.store.ListEntities(ctx, models.TypeGrade, "")
	if err != nil {
		return fmt.Errorf("failed to list grades: %w", err)
	}
	slices.SortFunc(grades, func(a, b models.Entity) int {
		return cmp.Compare(a.(models.Grade).Points, b.(models.Grade).Points)
	})
	c.io.Println()
	c.io.Println("Grades:")
	for _, e := range grades {
		g := e.(models.Grade)
		passed := ""
		if g.Passed {
			passed = " passed"
		}
		c.io.Printf("  [%s] %s from %g%s\n", g.Key, g.Grade, g.Points, passed)
	}
	return nil
}

func (c *Cli) runItems(ctx context.Context) error {
	session, err := c.session(ctx)
	if err != nil {
		return err
	}

	c.io.Println("=== Assigned Items ===")
	c.io.Println()

	assignments, err := c.store.ListEntities(ctx, models.TypeAssignment, "")
	if err != nil {
		return fmt.Errorf("failed to list assignments: %w", err)
	}

	found := 0
	for _, e := range assignments {
		a := e.(models.Assignment)
		if a.CorrectorKey != session.CorrectorKey {
			continue
		}
		item, err := c.store.GetEntity(ctx, models.TypeItem, a.ItemKey)
		if err != nil {
			c.logger.Warn("Assigned item is missing", "item_key", a.ItemKey, "error", err)
			continue
		}
		it := item.(models.Item)
		found++

		state := "open"
		if s, err := c.store.GetEntity(ctx, models.TypeSummary, models.SummaryKey(it.Key, session.CorrectorKey)); err == nil {
			sm := s.(models.Summary)
			state = fmt.Sprintf("%g points", sm.Points)
			if sm.IsAuthorized {
				state += ", authorized"
			}
		}

		c.io.Printf("%d. [%s] %s - %s (corrector %d, %s)\n", found, it.Key, it.Title, it.Name, a.Position+1, state)
	}

	if found == 0 {
		c.io.Println("No items assigned.")
		c.io.Println()
		c.io.Println("Use 'gophgrade refresh' to load assignments from the server.")
	}
	return nil
}
