package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/sunblaze-ucb/cybergym-server/pkg/task"
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

// Waiter polls conditions with a timeout.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a waiter with the given timeout and poll interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{timeout: timeout, interval: interval}
}

// DefaultWaiter returns a waiter suitable for most API-level conditions.
func DefaultWaiter() *Waiter {
	return NewWaiter(30*time.Second, 1*time.Second)
}

// WaitFor polls condition until it returns true, errors, or the waiter
// times out.
func (w *Waiter) WaitFor(ctx context.Context, condition func() (bool, error), description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		ok, err := condition()
		if err != nil {
			return fmt.Errorf("error while waiting for %s: %w", description, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s", description)
		case <-ticker.C:
		}
	}
}

// WaitForVerified polls until the agent's PoC record has every exit
// code its task can produce. Latest-revision tasks are complete once
// the vulnerable run finishes.
func (w *Waiter) WaitForVerified(ctx context.Context, c *Client, agentID, pocID string) (*types.PoCRecord, error) {
	var found *types.PoCRecord
	err := w.WaitFor(ctx, func() (bool, error) {
		records, err := c.Query(ctx, &types.PocQuery{AgentID: agentID})
		if err != nil {
			if he := types.AsHTTPError(err); he != nil && he.Code == 404 {
				return false, nil
			}
			return false, err
		}
		for _, record := range records {
			if record.PocID != pocID || record.VulExitCode == nil {
				continue
			}
			if record.FixExitCode == nil && task.HasFixBuild(record.TaskID) {
				continue
			}
			found = record
			return true, nil
		}
		return false, nil
	}, fmt.Sprintf("poc %s to be verified", pocID))
	return found, err
}

// PollUntil polls condition at the given interval until it returns true
// or the context is done.
func PollUntil(ctx context.Context, interval time.Duration, condition func() bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Retry runs fn up to attempts times, sleeping delay between failures.
func Retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
