package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/iudanet/gophgrade/internal/models"
)

func (c *Cli) runPoints(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing subcommand. Usage: gophgrade points <list|add|edit|delete> ITEM")
	}

	switch args[0] {
	case "list":
		return c.runPointsList(ctx, args[1:])
	case "add":
		return c.runPointsAdd(ctx, args[1:])
	case "edit":
		return c.runPointsEdit(ctx, args[1:])
	case "delete":
		return c.runPointsDelete(ctx, args[1:])
	default:
		return fmt.Errorf("unknown subcommand: points %s", args[0])
	}
}

func (c *Cli) runPointsList(ctx context.Context, args []string) error {
	pos, _, err := splitArgs(args, 1, "points list ITEM")
	if err != nil {
		return err
	}
	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}

	c.io.Printf("=== Points on item %s ===\n", pos[0])
	c.io.Println()

	points := c.dataService.Points()
	if len(points) == 0 {
		c.io.Println("No points given.")
		return nil
	}

	total := 0.0
	for _, p := range points {
		total += p.Points
		bound := ""
		if p.CommentKey != "" {
			bound = " on comment " + p.CommentKey
		}
		c.io.Printf("[%s] %g for criterion %s%s\n", p.Key, p.Points, p.CriterionKey, bound)
	}
	c.io.Println()
	c.io.Printf("Total: %g\n", total)
	return nil
}

func (c *Cli) runPointsAdd(ctx context.Context, args []string) error {
	pos, rest, err := splitArgs(args, 1, "points add ITEM -criterion KEY -points P [-comment KEY]")
	if err != nil {
		return err
	}

	fs := c.newFlagSet("points add")
	criterion := fs.String("criterion", "", "Criterion key")
	commentKey := fs.String("comment", "", "Comment the points belong to")
	value := fs.Float64("points", 0, "Points")
	send := fs.Bool("sync", false, "Send the change right away")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}
	if err := c.checkCriterion(ctx, *criterion, *value); err != nil {
		return err
	}

	p, err := c.dataService.AddPoints(ctx, models.Points{
		CommentKey:   *commentKey,
		CriterionKey: *criterion,
		Points:       *value,
	})
	if err != nil {
		return fmt.Errorf("failed to add points: %w", err)
	}

	c.io.Printf("✓ Points added (key %s)\n", p.Key)
	c.afterChange(ctx, *send)
	return nil
}

func (c *Cli) runPointsEdit(ctx context.Context, args []string) error {
	pos, rest, err := splitArgs(args, 2, "points edit ITEM KEY -points P")
	if err != nil {
		return err
	}

	fs := c.newFlagSet("points edit")
	value := fs.Float64("points", 0, "Points")
	send := fs.Bool("sync", false, "Send the change right away")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}

	points := c.dataService.Points()
	i := slices.IndexFunc(points, func(p models.Points) bool { return p.Key == pos[1] })
	if i < 0 {
		return fmt.Errorf("points %s not found on item %s", pos[1], pos[0])
	}
	p := points[i]
	p.Points = *value

	if err := c.checkCriterion(ctx, p.CriterionKey, p.Points); err != nil {
		return err
	}
	if err := c.dataService.UpdatePoints(ctx, p); err != nil {
		return fmt.Errorf("failed to update points: %w", err)
	}

	c.io.Printf("✓ Points %s updated\n", p.Key)
	c.afterChange(ctx, *send)
	return nil
}

func (c *Cli) runPointsDelete(ctx context.Context, args []string) error {
	pos, rest, err := splitArgs(args, 2, "points delete ITEM KEY")
	if err != nil {
		return err
	}

	fs := c.newFlagSet("points delete")
	send := fs.Bool("sync", false, "Send the change right away")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}
	if err := c.dataService.DeletePoints(ctx, pos[1]); err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}

	c.io.Printf("✓ Points %s deleted\n", pos[1])
	c.afterChange(ctx, *send)
	return nil
}

// checkCriterion verifies the criterion exists and value fits its maximum
func (c *Cli) checkCriterion(ctx context.Context, key string, value float64) error {
	if key == "" {
		return fmt.Errorf("criterion is required. Run 'gophgrade task' to list criteria")
	}
	e, err := c.store.GetEntity(ctx, models.TypeCriterion, key)
	if err != nil {
		return fmt.Errorf("unknown criterion %s: %w", key, err)
	}
	if cr := e.(models.Criterion); cr.Points > 0 && value > cr.Points {
		return fmt.Errorf("criterion %s allows at most %g points", key, cr.Points)
	}
	return nil
}
