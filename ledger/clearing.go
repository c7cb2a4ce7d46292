/*
clearing.go - Clearing Manager: uncleared -> cleared transitions

Clearing marks an entry as settled (cash counted, transfer confirmed).
The flag is monotonic through this path: nothing here ever flips an
entry back to uncleared.
*/
package ledger

import (
	"context"
	"fmt"
)

// Clearing transitions entries from uncleared to cleared.
type Clearing struct {
	store Store
}

// NewClearing creates a Clearing manager backed by the given store.
func NewClearing(store Store) *Clearing {
	return &Clearing{store: store}
}

// ClearOne sets cleared = true on a single entry and returns it.
// Clearing an already-cleared entry is a no-op success, so retries are
// harmless. Returns ErrNotFound if the id does not exist or is voided.
func (c *Clearing) ClearOne(ctx context.Context, id string) (Entry, error) {
	n, err := c.store.ClearEntry(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("clear entry %s: %w", id, err)
	}
	if n == 0 {
		return Entry{}, ErrNotFound
	}

	e, err := c.store.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("reload entry %s: %w", id, err)
	}
	if e == nil {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// ClearBulk sets cleared = true on every entry in ids as one atomic
// set-based statement, so a reconciliation run never observes a
// half-cleared batch. The returned count is rows actually changed;
// ids that do not exist are skipped without error.
func (c *Clearing) ClearBulk(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, invalidf("entry_ids", "must not be empty")
	}
	n, err := c.store.ClearMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("bulk clear %d entries: %w", len(ids), err)
	}
	return n, nil
}
