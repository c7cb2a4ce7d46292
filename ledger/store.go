/*
store.go - Persistence interface for the entry store

The entry store is the only persisted truth: there is no materialized
balance table, and reconciliation always derives cash position from the
entry stream.

MUTATION RULES:
  - Insert only; amount/from_account/to_account are never updated.
  - Clearing flips cleared to true (monotonic through these methods).
  - Deletion is a void tombstone, not a row delete.

ATOMICITY:
  ClearMany must be a single set-based statement so a concurrent
  reconciliation never observes a half-cleared batch. WithTx wraps a
  read-check-write sequence (refund validation + insert) in one store
  transaction to close the check/use gap.

SEE ALSO:
  - store/sqlite: the SQLite implementation
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the durable entry store.
type Store interface {
	// InsertEntry appends a new entry. Returns ErrDuplicateIdempotencyKey
	// if the entry carries a key that already exists.
	InsertEntry(ctx context.Context, e Entry) error

	// GetEntry returns the entry with the given id, or nil if it does not
	// exist or has been voided.
	GetEntry(ctx context.Context, id string) (*Entry, error)

	// GetEntryByIdempotencyKey returns the entry previously stored under
	// the key, or nil.
	GetEntryByIdempotencyKey(ctx context.Context, key string) (*Entry, error)

	// ListEntries returns non-voided entries matching the filter,
	// ordered by created_at descending.
	ListEntries(ctx context.Context, f Filter) ([]Entry, error)

	// EntriesInRange returns all non-voided entries with created_at in
	// [from, to], ordered by created_at ascending. The scan is a single
	// statement so the reconciliation engine reads a consistent snapshot.
	EntriesInRange(ctx context.Context, from, to time.Time) ([]Entry, error)

	// ClearEntry sets cleared = true on one entry. Returns the number of
	// rows changed (0 if the id is missing or voided, 1 otherwise -
	// including when the entry was already cleared).
	ClearEntry(ctx context.Context, id string) (int64, error)

	// ClearMany sets cleared = true on every listed entry in one atomic
	// set-based statement. Missing ids are skipped, not an error; the
	// returned count is rows actually changed.
	ClearMany(ctx context.Context, ids []string) (int64, error)

	// VoidEntry tombstones an entry. Returns rows changed (0 = not found).
	VoidEntry(ctx context.Context, id string) (int64, error)

	// SumRefunded returns the total amount of non-voided reversal entries
	// referencing originalID.
	SumRefunded(ctx context.Context, originalID string) (decimal.Decimal, error)

	// WithTx runs fn against a store view scoped to one database
	// transaction; fn returning an error rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
