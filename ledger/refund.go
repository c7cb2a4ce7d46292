/*
refund.go - Refund Processor: bounded reversal entries

A refund never mutates the original entry. It appends a new entry with
the accounts swapped, tagged via reference so it traces back to the
original. The validation read and the insert run in one store
transaction: a concurrent void or competing refund cannot slip between
the check and the write.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Refunds creates reversal entries against existing entries.
type Refunds struct {
	store Store
	now   func() time.Time
}

// NewRefunds creates a Refunds processor backed by the given store.
func NewRefunds(store Store) *Refunds {
	return &Refunds{store: store, now: time.Now}
}

// RefundInput describes a requested refund.
type RefundInput struct {
	EntryID    string
	Amount     decimal.Decimal
	ReceiptURL string
	CreatedBy  string
	// IdempotencyKey de-duplicates client retries, same as on create.
	IdempotencyKey string
}

// Refund validates and appends a reversal entry for in.EntryID.
//
// The refund amount must be positive and, together with all prior
// refunds against the same original, must not exceed the original
// amount. Partial refunds are allowed; the cumulative cap keeps the sum
// of reversals bounded by the original.
func (r *Refunds) Refund(ctx context.Context, in RefundInput) (Entry, error) {
	if !in.Amount.IsPositive() {
		return Entry{}, invalidf("amount", "must be greater than zero, got %s", in.Amount)
	}

	var reversal Entry
	err := r.store.WithTx(ctx, func(tx Store) error {
		orig, err := tx.GetEntry(ctx, in.EntryID)
		if err != nil {
			return fmt.Errorf("load original: %w", err)
		}
		if orig == nil {
			return ErrNotFound
		}

		refunded, err := tx.SumRefunded(ctx, orig.ID)
		if err != nil {
			return fmt.Errorf("sum prior refunds: %w", err)
		}
		if refunded.Add(in.Amount).GreaterThan(orig.Amount) {
			return invalidf("amount",
				"refund %s plus %s already refunded exceeds original %s",
				in.Amount, refunded, orig.Amount)
		}

		reversal = Entry{
			ID:             uuid.NewString(),
			FromAccount:    orig.ToAccount, // direction reversed
			ToAccount:      orig.FromAccount,
			Amount:         in.Amount,
			Mode:           orig.Mode,
			Reference:      RefundReference(orig.ID),
			ReceiptURL:     in.ReceiptURL,
			Cleared:        false,
			CreatedBy:      in.CreatedBy,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      r.now().UTC(),
		}
		return tx.InsertEntry(ctx, reversal)
	})
	if err != nil {
		// A retried refund with the same key returns the stored reversal.
		if errors.Is(err, ErrDuplicateIdempotencyKey) && in.IdempotencyKey != "" {
			prev, lookupErr := r.store.GetEntryByIdempotencyKey(ctx, in.IdempotencyKey)
			if lookupErr == nil && prev != nil {
				return *prev, nil
			}
		}
		return Entry{}, err
	}
	return reversal, nil
}
