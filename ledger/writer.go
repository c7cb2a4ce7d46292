/*
writer.go - Entry Writer: validates and persists new ledger entries

Two callers share this path: manual admin payment records, and the
delivery workflow recording a collected amount when a stop is marked
delivered. The writer has no side effects beyond the single insert.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Writer validates and persists new entries.
type Writer struct {
	store Store

	// now is swappable for tests.
	now func() time.Time
}

// NewWriter creates a Writer backed by the given store.
func NewWriter(store Store) *Writer {
	return &Writer{store: store, now: time.Now}
}

// Record validates in, assigns an id and creation timestamp, and inserts
// the entry. If in carries an idempotency key already seen by the store,
// Record returns the previously stored entry instead of inserting a
// duplicate, so client retries are safe.
func (w *Writer) Record(ctx context.Context, in NewEntry) (Entry, error) {
	if err := validateNewEntry(in); err != nil {
		return Entry{}, err
	}

	e := Entry{
		ID:             uuid.NewString(),
		FromAccount:    strings.TrimSpace(in.FromAccount),
		ToAccount:      strings.TrimSpace(in.ToAccount),
		Amount:         in.Amount,
		Mode:           in.Mode,
		Reference:      in.Reference,
		ReceiptURL:     in.ReceiptURL,
		Cleared:        in.Cleared,
		CreatedBy:      in.CreatedBy,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      w.now().UTC(),
	}

	if err := w.store.InsertEntry(ctx, e); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) && in.IdempotencyKey != "" {
			prev, lookupErr := w.store.GetEntryByIdempotencyKey(ctx, in.IdempotencyKey)
			if lookupErr == nil && prev != nil {
				return *prev, nil
			}
		}
		return Entry{}, fmt.Errorf("record entry: %w", err)
	}

	return e, nil
}

func validateNewEntry(in NewEntry) error {
	if strings.TrimSpace(in.FromAccount) == "" {
		return invalidf("from_account", "must not be empty")
	}
	if strings.TrimSpace(in.ToAccount) == "" {
		return invalidf("to_account", "must not be empty")
	}
	if !in.Amount.IsPositive() {
		return invalidf("amount", "must be greater than zero, got %s", in.Amount)
	}
	if _, ok := ParseMode(string(in.Mode)); !ok {
		return invalidf("mode", "unknown payment mode %q", in.Mode)
	}
	return nil
}
