package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/internal/models"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Status ===")
	c.io.Println()

	session, err := c.authService.Session(ctx)
	switch {
	case errors.Is(err, storage.ErrAuthNotFound):
		c.io.Println("Status: Not authenticated")
		c.io.Println()
		c.io.Println("Run 'gophgrade login' to authenticate.")
		return nil
	case err != nil:
		return fmt.Errorf("failed to check authentication: %w", err)
	}

	c.io.Println("Status: Authenticated")
	c.io.Printf("Username:      %s\n", session.Username)
	c.io.Printf("Corrector key: %s\n", session.CorrectorKey)
	c.io.Printf("Server:        %s\n", session.ServerURL)
	c.io.Printf("Clock offset:  %s\n", time.Duration(c.clock.Offset())*time.Millisecond)

	lastRefresh, err := c.store.GetLastRefresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last refresh: %w", err)
	}
	if lastRefresh > 0 {
		c.io.Printf("Last refresh:  %s\n", time.UnixMilli(lastRefresh).Format(time.RFC3339))
	} else {
		c.io.Println("Last refresh:  never")
	}

	pending, err := c.coordinator.Pending(ctx)
	if err != nil {
		// Не прерываем выполнение
		c.io.Printf("\nWarning: Failed to get pending changes: %v\n", err)
		return nil
	}

	total := 0
	for _, n := range pending {
		total += n
	}
	c.io.Println()
	if total == 0 {
		c.io.Println("✓ All changes sent to server")
		return nil
	}

	c.io.Printf("⚠️  Pending: %d change(s) waiting to be sent\n", total)
	for _, t := range models.ChangeTypes {
		if pending[t] > 0 {
			c.io.Printf("  %-8s %d\n", t, pending[t])
		}
	}
	c.io.Println("Run 'gophgrade sync' to send them.")
	return nil
}

func (c *Cli) runPing(ctx context.Context) error {
	if c.server == nil {
		return fmt.Errorf("server is not configured")
	}

	start := time.Now()
	resp, err := c.server.Health(ctx)
	if err != nil {
		c.io.Println("⚠️  Server is unreachable")
		return fmt.Errorf("health check failed: %w", err)
	}
	rtt := time.Since(start)

	c.io.Printf("Server status: %s\n", resp.Status)
	c.io.Printf("Round trip:    %s\n", rtt.Round(time.Millisecond))
	drift := time.Duration(resp.ServerTime-c.clock.Now().UnixMilli()) * time.Millisecond
	c.io.Printf("Clock drift:   %s\n", drift)
	return nil
}
