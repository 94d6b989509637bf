package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/gophgrade/internal/models"
)

func (c *Cli) runComment(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing subcommand. Usage: gophgrade comment <list|add|edit|delete> ITEM")
	}

	switch args[0] {
	case "list":
		return c.runCommentList(ctx, args[1:])
	case "add":
		return c.runCommentAdd(ctx, args[1:])
	case "edit":
		return c.runCommentEdit(ctx, args[1:])
	case "delete":
		return c.runCommentDelete(ctx, args[1:])
	default:
		return fmt.Errorf("unknown subcommand: comment %s", args[0])
	}
}

func (c *Cli) runCommentList(ctx context.Context, args []string) error {
	pos, _, err := splitArgs(args, 1, "comment list ITEM")
	if err != nil {
		return err
	}
	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}

	c.io.Printf("=== Comments on item %s ===\n", pos[0])
	c.io.Println()

	comments := c.dataService.Comments()
	if len(comments) == 0 {
		c.io.Println("No comments found.")
		return nil
	}

	points := c.dataService.Points()
	for _, cm := range comments {
		rating := ""
		if cm.Rating != models.RatingNone {
			rating = " [" + cm.Rating + "]"
		}
		c.io.Printf("%s%s words %d-%d: %s\n", cm.Label, rating, cm.StartPosition, cm.EndPosition, cm.Comment)
		c.io.Printf("     Key: %s\n", cm.Key)
		for _, p := range points {
			if p.CommentKey == cm.Key {
				c.io.Printf("     %g points for criterion %s (%s)\n", p.Points, p.CriterionKey, p.Key)
			}
		}
	}
	return nil
}

func (c *Cli) runCommentAdd(ctx context.Context, args []string) error {
	pos, rest, err := splitArgs(args, 1, "comment add ITEM -para N -start S -end E -text TEXT")
	if err != nil {
		return err
	}

	fs := c.newFlagSet("comment add")
	para := fs.Int64("para", 0, "Paragraph number")
	start := fs.Int64("start", 0, "First word of the selection")
	end := fs.Int64("end", -1, "Last word of the selection (default: start)")
	text := fs.String("text", "", "Comment text")
	rating := fs.String("rating", models.RatingNone, "Rating: cardinal or excellent")
	send := fs.Bool("sync", false, "Send the change right away")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if *end < 0 {
		*end = *start
	}
	if err := checkRating(*rating); err != nil {
		return err
	}

	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}

	cm, err := c.dataService.AddComment(ctx, models.Comment{
		Comment:       *text,
		Rating:        *rating,
		StartPosition: *start,
		EndPosition:   *end,
		ParentNumber:  *para,
	})
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}

	c.io.Printf("✓ Comment added (key %s)\n", cm.Key)
	c.afterChange(ctx, *send)
	return nil
}

func (c *Cli) runCommentEdit(ctx context.Context, args []string) error {
	pos, rest, err := splitArgs(args, 2, "comment edit ITEM KEY [-text TEXT] [-rating R]")
	if err != nil {
		return err
	}
	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}

	var current *models.Comment
	for _, cm := range c.dataService.Comments() {
		if cm.Key == pos[1] {
			current = &cm
			break
		}
	}
	if current == nil {
		return fmt.Errorf("comment %s not found on item %s", pos[1], pos[0])
	}

	fs := c.newFlagSet("comment edit")
	text := fs.String("text", current.Comment, "Comment text")
	rating := fs.String("rating", current.Rating, "Rating: cardinal, excellent or none")
	start := fs.Int64("start", current.StartPosition, "First word of the selection")
	end := fs.Int64("end", current.EndPosition, "Last word of the selection")
	send := fs.Bool("sync", false, "Send the change right away")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if *rating == "none" {
		*rating = models.RatingNone
	}
	if err := checkRating(*rating); err != nil {
		return err
	}

	updated := *current
	updated.Comment = *text
	updated.Rating = *rating
	updated.StartPosition = *start
	updated.EndPosition = *end

	if err := c.dataService.UpdateComment(ctx, updated); err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}

	c.io.Printf("✓ Comment %s updated\n", updated.Key)
	c.afterChange(ctx, *send)
	return nil
}

func (c *Cli) runCommentDelete(ctx context.Context, args []string) error {
	pos, rest, err := splitArgs(args, 2, "comment delete ITEM KEY")
	if err != nil {
		return err
	}

	fs := c.newFlagSet("comment delete")
	send := fs.Bool("sync", false, "Send the change right away")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}
	if err := c.dataService.DeleteComment(ctx, pos[1]); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	c.io.Printf("✓ Comment %s deleted with its points\n", pos[1])
	c.afterChange(ctx, *send)
	return nil
}

func checkRating(rating string) error {
	switch rating {
	case models.RatingNone, models.RatingCardinal, models.RatingExcellent:
		return nil
	default:
		return fmt.Errorf("unknown rating %q. Use cardinal or excellent", rating)
	}
}
