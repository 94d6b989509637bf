package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/gophgrade/internal/client/sync"
)

func (c *Cli) runLogin(ctx context.Context, args []string) error {
	fs := c.newFlagSet("login")
	username := fs.String("u", "", "Username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c.io.Println("=== Login ===")
	c.io.Println()

	if *username == "" {
		var err error
		if *username, err = c.io.ReadInput("Username: "); err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}

	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	c.io.Println("Authenticating...")

	session, err := c.authService.Login(ctx, *username, password)
	if err != nil {
		return err
	}

	c.io.Println("✓ Login successful!")
	c.io.Printf("Username: %s\n", session.Username)
	c.io.Println()
	c.io.Println("Loading assigned items...")

	if err := c.coordinator.Refresh(ctx); err != nil {
		if errors.Is(err, sync.ErrPendingChanges) {
			c.io.Println("⚠️  Local changes are still queued, data was not reloaded.")
			return nil
		}
		c.io.Printf("⚠️  Failed to load data: %v\n", err)
		c.io.Println("Run 'gophgrade refresh' when the server is reachable.")
		return nil
	}

	c.io.Println("✓ Data loaded")
	return nil
}

func (c *Cli) runLogout(ctx context.Context, args []string) error {
	fs := c.newFlagSet("logout")
	force := fs.Bool("force", false, "Discard changes that were not sent")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c.io.Println("=== Logout ===")

	if !*force {
		// Последняя попытка отправить очередь перед удалением данных
		if _, err := c.coordinator.FlushAll(ctx); err != nil && !errors.Is(err, sync.ErrNotAuthenticated) {
			c.logger.Warn("Flush before logout failed", "error", err)
		}
	}

	if err := c.authService.Logout(ctx, *force); err != nil {
		return fmt.Errorf("logout failed: %w. Use 'gophgrade logout -force' to discard them", err)
	}

	c.io.Println("✓ Logout successful!")
	c.io.Println("Your session and local data have been deleted.")
	return nil
}
