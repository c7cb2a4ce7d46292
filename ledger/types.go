/*
Package ledger contains the financial core of the dairy admin system:
the ledger entry model, the mutation rules (record, clear, refund, void)
and the cash reconciliation report.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: one recorded money movement between two free-text accounts
  - PaymentMode: how the money moved (cash, upi, card, bank transfer)
  - NewEntry: validated input for recording an entry
  - Filter: listing filters for the query service

DESIGN PRINCIPLES:
  1. Append-mostly: entries are written once; corrections happen via
     reversal entries, deletion via a void tombstone.
  2. Precision: amounts are decimal.Decimal, never float64.
  3. Derived truth: there is no balance table; cash position is always
     computed from the entry stream by the reconciliation engine.

SEE ALSO:
  - writer.go: entry creation and validation
  - clearing.go: cleared-flag transitions
  - refund.go: reversal entries
  - reconcile.go: cash position report
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT MODE
// =============================================================================

// PaymentMode identifies how money moved between the two accounts.
type PaymentMode string

const (
	ModeCash         PaymentMode = "cash"
	ModeUPI          PaymentMode = "upi"
	ModeCard         PaymentMode = "card"
	ModeBankTransfer PaymentMode = "bank_transfer"
)

// ParseMode validates a payment mode string.
func ParseMode(s string) (PaymentMode, bool) {
	switch PaymentMode(s) {
	case ModeCash, ModeUPI, ModeCard, ModeBankTransfer:
		return PaymentMode(s), true
	}
	return "", false
}

// =============================================================================
// ENTRY - One money movement between two free-text accounts
// =============================================================================

// Entry is the sole persisted entity of the ledger.
//
// FromAccount and ToAccount are free-text labels (a shop name,
// "Company Cash", "Company Bank"). They are not validated against a
// registry; classification for reconciliation is by substring match
// (see classify.go).
type Entry struct {
	ID          string
	FromAccount string
	ToAccount   string
	Amount      decimal.Decimal // always > 0
	Mode        PaymentMode
	Reference   string // optional correlation id (invoice, delivery, refund tag)
	ReceiptURL  string // optional proof-of-payment pointer
	Cleared     bool
	Voided      bool   // tombstone; voided entries are invisible externally
	CreatedBy   string // acting user id, empty for system-generated entries
	// IdempotencyKey de-duplicates client retries on the create path.
	IdempotencyKey string
	CreatedAt      time.Time
}

// RefundReferencePrefix tags reversal entries so they trace back to the
// original: reference = RefundReferencePrefix + original entry id.
const RefundReferencePrefix = "refund:"

// RefundReference builds the reference tag for a reversal of originalID.
func RefundReference(originalID string) string {
	return RefundReferencePrefix + originalID
}

// =============================================================================
// INPUTS
// =============================================================================

// NewEntry is the validated input to Writer.Record.
type NewEntry struct {
	FromAccount    string
	ToAccount      string
	Amount         decimal.Decimal
	Mode           PaymentMode
	Reference      string
	ReceiptURL     string
	Cleared        bool
	CreatedBy      string
	IdempotencyKey string
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	From    *time.Time
	To      *time.Time // inclusive through end of day
	Mode    PaymentMode
	Cleared *bool
	// Search matches from_account, to_account, reference and the acting
	// user's display name, case-insensitively.
	Search string
}

// EndOfDay returns the last instant of the day containing t.
// Period filters are end-of-day inclusive on their upper bound.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
