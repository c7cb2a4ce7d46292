package ledger

import "strings"

// ClassifiesAsCash reports whether a free-text account label counts as a
// cash account for reconciliation. The rule is a case-insensitive
// substring match on "cash"; the labels are free text rather than a
// typed chart of accounts, so this function is the single point where
// the classification rule lives.
func ClassifiesAsCash(label string) bool {
	return strings.Contains(strings.ToLower(label), "cash")
}

// CashInflow reports whether e contributes to cash inflow
// (money arriving at a cash account).
func CashInflow(e Entry) bool {
	return ClassifiesAsCash(e.ToAccount)
}

// CashOutflow reports whether e contributes to cash outflow
// (money leaving a cash account).
//
// An entry can contribute to both directions (cash-to-cash transfer),
// or to neither; the two classifications are independent.
func CashOutflow(e Entry) bool {
	return ClassifiesAsCash(e.FromAccount)
}
