package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/gophgrade/internal/models"
)

func (c *Cli) runSnippet(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing subcommand. Usage: gophgrade snippet <list|add|delete>")
	}

	switch args[0] {
	case "list":
		return c.runSnippetList(ctx)
	case "add":
		return c.runSnippetAdd(ctx, args[1:])
	case "delete":
		return c.runSnippetDelete(ctx, args[1:])
	default:
		return fmt.Errorf("unknown subcommand: snippet %s", args[0])
	}
}

func (c *Cli) runSnippetList(ctx context.Context) error {
	if _, err := c.session(ctx); err != nil {
		return err
	}

	snippets, err := c.store.ListEntities(ctx, models.TypeSnippet, "")
	if err != nil {
		return fmt.Errorf("failed to list snippets: %w", err)
	}

	c.io.Println("=== Snippets ===")
	c.io.Println()
	if len(snippets) == 0 {
		c.io.Println("No snippets found.")
		return nil
	}

	for i, e := range snippets {
		sn := e.(models.Snippet)
		c.io.Printf("%d. %s (%s)\n", i+1, sn.Title, sn.Purpose)
		c.io.Printf("   Key:  %s\n", sn.Key)
		c.io.Printf("   Text: %s\n", excerpt(sn.Text, 60))
	}
	return nil
}

func (c *Cli) runSnippetAdd(ctx context.Context, args []string) error {
	pos, rest, err := splitArgs(args, 1, "snippet add ITEM -text TEXT [-title T] [-purpose comment|summary]")
	if err != nil {
		return err
	}

	fs := c.newFlagSet("snippet add")
	title := fs.String("title", "", "Snippet title")
	text := fs.String("text", "", "Snippet text")
	purpose := fs.String("purpose", models.SnippetPurposeComment, "comment or summary")
	send := fs.Bool("sync", false, "Send the change right away")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if *purpose != models.SnippetPurposeComment && *purpose != models.SnippetPurposeSummary {
		return fmt.Errorf("unknown purpose %q. Use comment or summary", *purpose)
	}

	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}

	sn, err := c.dataService.AddSnippet(ctx, models.Snippet{Title: *title, Text: *text, Purpose: *purpose})
	if err != nil {
		return fmt.Errorf("failed to add snippet: %w", err)
	}

	c.io.Printf("✓ Snippet added (key %s)\n", sn.Key)
	c.afterChange(ctx, *send)
	return nil
}

func (c *Cli) runSnippetDelete(ctx context.Context, args []string) error {
	pos, rest, err := splitArgs(args, 2, "snippet delete ITEM KEY")
	if err != nil {
		return err
	}

	fs := c.newFlagSet("snippet delete")
	send := fs.Bool("sync", false, "Send the change right away")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	if _, err := c.openItem(ctx, pos[0]); err != nil {
		return err
	}
	if err := c.dataService.DeleteSnippet(ctx, pos[1]); err != nil {
		return fmt.Errorf("failed to delete snippet: %w", err)
	}

	c.io.Printf("✓ Snippet %s deleted\n", pos[1])
	c.afterChange(ctx, *send)
	return nil
}
