package github

import (
	"context"
	"sync"
	"time"

	"github.com/Xenorf/gh-workflow-auditor/pkg/errors"
)

// Budget tracks the API point allowance reported by the server. One Budget
// belongs to one Client; it is the only state shared between concurrent
// workers, and every read-check and update happens under its lock.
type Budget struct {
	mu        sync.Mutex
	remaining int
	resetAt   time.Time
	known     bool
}

// NewBudget returns an empty budget. Until the first response reports
// rate-limit metadata the budget lets calls through.
func NewBudget() *Budget {
	return &Budget{}
}

// Update refreshes the budget from a response's rate-limit metadata.
func (b *Budget) Update(remaining int, resetAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = remaining
	b.resetAt = resetAt
	b.known = true
}

// Snapshot returns the last reported remaining points and reset time.
func (b *Budget) Snapshot() (remaining int, resetAt time.Time, known bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining, b.resetAt, b.known
}

// Wait blocks until the budget can afford a call of the estimated cost,
// sleeping until the reported reset time when it cannot. The wait suspends
// only the calling goroutine and honors context cancellation. Two workers
// racing past a near-exhausted budget is tolerated; the server-side
// rejection is handled by the caller's retry.
func (b *Budget) Wait(ctx context.Context, cost int) error {
	b.mu.Lock()
	if !b.known || b.remaining >= cost {
		b.mu.Unlock()
		return nil
	}
	resetAt := b.resetAt
	// Forget the stale reading so the retry after the sleep is not
	// blocked by it; the next response refreshes the budget.
	b.known = false
	b.mu.Unlock()

	delay := time.Until(resetAt)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.NewRateLimitError("canceled while waiting for rate limit reset", resetAt)
	}
}
