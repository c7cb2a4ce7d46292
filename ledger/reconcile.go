/*
reconcile.go - Reconciliation Engine: derived cash-position report

The report is a pure read over the entry store. It never mutates
anything and is safe to run repeatedly and concurrently with writers:
the whole period is fetched in one statement, so every aggregate in the
report is computed from the same snapshot of entries.

CLASSIFICATION:
  An entry contributes to cash inflow when its to_account classifies as
  cash, and to cash outflow when its from_account does (classify.go).
  Both, or neither, can hold for the same entry.

AGGREGATION:
  Entries group by (mode, cleared). Each group carries a count, summed
  inflow, summed outflow and net. Report totals sum across all groups;
  cleared-only and uncleared-only nets filter the same group set on the
  cleared flag before summing.
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// GroupKey identifies one (mode, cleared) aggregation bucket.
type GroupKey struct {
	Mode    PaymentMode
	Cleared bool
}

// Group is the aggregate for one (mode, cleared) bucket.
type Group struct {
	Mode    PaymentMode
	Cleared bool
	Count   int
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
	Net     decimal.Decimal // Inflow - Outflow
}

// Report is the period-scoped cash position derived from the entry stream.
type Report struct {
	From time.Time
	To   time.Time // end-of-day inclusive bound actually applied

	TotalInflow  decimal.Decimal
	TotalOutflow decimal.Decimal
	NetPosition  decimal.Decimal
	ClearedNet   decimal.Decimal
	UnclearedNet decimal.Decimal

	Groups []Group

	// CashEntries lists every entry in the period whose from_account or
	// to_account classifies as cash, for audit drill-down.
	CashEntries []Entry

	// EntryCount counts all entries examined in the period, cash-matching
	// or not.
	EntryCount int
}

// =============================================================================
// ENGINE
// =============================================================================

// Reconciler computes cash position reports.
type Reconciler struct {
	store Store
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile scans entries with created_at in [from, end-of-day(to)] and
// aggregates them into a Report. Fails loudly on any store error; a
// partial report is never returned.
func (r *Reconciler) Reconcile(ctx context.Context, from, to time.Time) (Report, error) {
	if to.Before(from) {
		return Report{}, invalidf("to_date", "must not be before from_date")
	}

	end := EndOfDay(to)
	entries, err := r.store.EntriesInRange(ctx, from, end)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile %s..%s: %w",
			from.Format("2006-01-02"), to.Format("2006-01-02"), err)
	}

	report := BuildReport(entries)
	report.From = from
	report.To = end
	return report, nil
}

// BuildReport aggregates an already-fetched entry set. Split out from
// Reconcile so the aggregation rules are testable without a store.
func BuildReport(entries []Entry) Report {
	groups := make(map[GroupKey]*Group)

	report := Report{
		TotalInflow:  decimal.Zero,
		TotalOutflow: decimal.Zero,
		NetPosition:  decimal.Zero,
		ClearedNet:   decimal.Zero,
		UnclearedNet: decimal.Zero,
		CashEntries:  []Entry{},
		EntryCount:   len(entries),
	}

	for _, e := range entries {
		key := GroupKey{Mode: e.Mode, Cleared: e.Cleared}
		g, ok := groups[key]
		if !ok {
			g = &Group{
				Mode:    e.Mode,
				Cleared: e.Cleared,
				Inflow:  decimal.Zero,
				Outflow: decimal.Zero,
				Net:     decimal.Zero,
			}
			groups[key] = g
		}
		g.Count++

		inflow := CashInflow(e)
		outflow := CashOutflow(e)

		if inflow {
			g.Inflow = g.Inflow.Add(e.Amount)
		}
		if outflow {
			g.Outflow = g.Outflow.Add(e.Amount)
		}
		if inflow || outflow {
			report.CashEntries = append(report.CashEntries, e)
		}
	}

	for _, g := range groups {
		g.Net = g.Inflow.Sub(g.Outflow)
		report.TotalInflow = report.TotalInflow.Add(g.Inflow)
		report.TotalOutflow = report.TotalOutflow.Add(g.Outflow)
		if g.Cleared {
			report.ClearedNet = report.ClearedNet.Add(g.Net)
		} else {
			report.UnclearedNet = report.UnclearedNet.Add(g.Net)
		}
		report.Groups = append(report.Groups, *g)
	}
	report.NetPosition = report.TotalInflow.Sub(report.TotalOutflow)

	// Stable order for display and tests: mode, then uncleared before cleared.
	sort.Slice(report.Groups, func(i, j int) bool {
		a, b := report.Groups[i], report.Groups[j]
		if a.Mode != b.Mode {
			return a.Mode < b.Mode
		}
		return !a.Cleared && b.Cleared
	})

	return report
}
