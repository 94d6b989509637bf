package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/gophgrade/internal/client/sync"
)

func (c *Cli) runSync(ctx context.Context) error {
	c.io.Println("=== Synchronization ===")

	if _, err := c.session(ctx); err != nil {
		return err
	}

	result, err := c.coordinator.FlushAll(ctx)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	c.io.Println()
	c.io.Println("✓ Synchronization completed successfully!")
	c.io.Println()
	c.io.Printf("Sent to server:     %d change(s)\n", result.Sent)
	c.io.Printf("Got permanent keys: %d\n", result.Remapped)
	if result.Removed > 0 {
		c.io.Printf("Removed by server:  %d\n", result.Removed)
	}
	if result.Deferred > 0 {
		c.io.Printf("Deferred:           %d (sent with the next sync)\n", result.Deferred)
	}
	if result.Stale > 0 {
		c.io.Printf("Dropped stale:      %d\n", result.Stale)
	}
	return nil
}

func (c *Cli) runRefresh(ctx context.Context) error {
	c.io.Println("=== Refresh ===")

	if _, err := c.session(ctx); err != nil {
		return err
	}

	if err := c.coordinator.Refresh(ctx); err != nil {
		if errors.Is(err, sync.ErrPendingChanges) {
			return fmt.Errorf("local changes could not be sent, refresh would discard them: %w", err)
		}
		return fmt.Errorf("refresh failed: %w", err)
	}

	c.io.Println("✓ Local data replaced with the server state")
	return nil
}
