package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBuildReport_SingleClearedCashEntry(t *testing.T) {
	entries := []Entry{
		{
			ID:          "e1",
			FromAccount: "Shop X",
			ToAccount:   "Company Cash",
			Amount:      dec("500"),
			Mode:        ModeCash,
			Cleared:     true,
		},
	}

	r := BuildReport(entries)

	assert.True(t, r.TotalInflow.Equal(dec("500")), "inflow = %s", r.TotalInflow)
	assert.True(t, r.TotalOutflow.IsZero(), "outflow = %s", r.TotalOutflow)
	assert.True(t, r.NetPosition.Equal(dec("500")), "net = %s", r.NetPosition)
	assert.True(t, r.ClearedNet.Equal(dec("500")), "cleared net = %s", r.ClearedNet)
	assert.True(t, r.UnclearedNet.IsZero(), "uncleared net = %s", r.UnclearedNet)
	assert.Equal(t, 1, r.EntryCount)
	assert.Len(t, r.CashEntries, 1)
}

func TestBuildReport_WithUnclearedRefund(t *testing.T) {
	entries := []Entry{
		{
			ID:          "e1",
			FromAccount: "Shop X",
			ToAccount:   "Company Cash",
			Amount:      dec("500"),
			Mode:        ModeCash,
			Cleared:     true,
		},
		{
			ID:          "e2",
			FromAccount: "Company Cash",
			ToAccount:   "Shop X",
			Amount:      dec("200"),
			Mode:        ModeCash,
			Reference:   RefundReference("e1"),
			Cleared:     false,
		},
	}

	r := BuildReport(entries)

	assert.True(t, r.TotalInflow.Equal(dec("500")), "inflow = %s", r.TotalInflow)
	assert.True(t, r.TotalOutflow.Equal(dec("200")), "outflow = %s", r.TotalOutflow)
	assert.True(t, r.NetPosition.Equal(dec("300")), "net = %s", r.NetPosition)
	assert.True(t, r.ClearedNet.Equal(dec("500")), "cleared net = %s", r.ClearedNet)
	assert.True(t, r.UnclearedNet.Equal(dec("-200")), "uncleared net = %s", r.UnclearedNet)
	assert.Equal(t, 2, r.EntryCount)
	assert.Len(t, r.CashEntries, 2)
}

func TestBuildReport_GroupsByModeAndCleared(t *testing.T) {
	entries := []Entry{
		{ID: "a", FromAccount: "Shop A", ToAccount: "Company Cash", Amount: dec("100"), Mode: ModeCash, Cleared: true},
		{ID: "b", FromAccount: "Shop B", ToAccount: "Company Cash", Amount: dec("50"), Mode: ModeCash, Cleared: false},
		{ID: "c", FromAccount: "Shop C", ToAccount: "Company Cash Account", Amount: dec("75.25"), Mode: ModeUPI, Cleared: false},
		// Non-cash entry still counts toward EntryCount and its group.
		{ID: "d", FromAccount: "Company Bank", ToAccount: "Supplier Bank", Amount: dec("999"), Mode: ModeBankTransfer, Cleared: true},
	}

	r := BuildReport(entries)

	require.Len(t, r.Groups, 4)
	assert.Equal(t, 4, r.EntryCount)
	assert.Len(t, r.CashEntries, 3, "bank->bank entry is not a cash transaction")

	byKey := make(map[GroupKey]Group)
	for _, g := range r.Groups {
		byKey[GroupKey{Mode: g.Mode, Cleared: g.Cleared}] = g
	}

	clearedCash := byKey[GroupKey{Mode: ModeCash, Cleared: true}]
	assert.Equal(t, 1, clearedCash.Count)
	assert.True(t, clearedCash.Inflow.Equal(dec("100")))

	unclearedCash := byKey[GroupKey{Mode: ModeCash, Cleared: false}]
	assert.Equal(t, 1, unclearedCash.Count)
	assert.True(t, unclearedCash.Net.Equal(dec("50")))

	upi := byKey[GroupKey{Mode: ModeUPI, Cleared: false}]
	assert.True(t, upi.Inflow.Equal(dec("75.25")))

	bank := byKey[GroupKey{Mode: ModeBankTransfer, Cleared: true}]
	assert.Equal(t, 1, bank.Count)
	assert.True(t, bank.Inflow.IsZero())
	assert.True(t, bank.Outflow.IsZero())

	assert.True(t, r.TotalInflow.Equal(dec("225.25")), "inflow = %s", r.TotalInflow)
	assert.True(t, r.ClearedNet.Equal(dec("100")), "cleared net = %s", r.ClearedNet)
	assert.True(t, r.UnclearedNet.Equal(dec("125.25")), "uncleared net = %s", r.UnclearedNet)
}

func TestBuildReport_Empty(t *testing.T) {
	r := BuildReport(nil)

	assert.Equal(t, 0, r.EntryCount)
	assert.Empty(t, r.Groups)
	assert.NotNil(t, r.CashEntries)
	assert.True(t, r.NetPosition.IsZero())
}

func TestBuildReport_CashToCashCountsBothWays(t *testing.T) {
	entries := []Entry{
		{ID: "x", FromAccount: "Cash Register", ToAccount: "Cash Safe", Amount: dec("80"), Mode: ModeCash, Cleared: true},
	}

	r := BuildReport(entries)

	assert.True(t, r.TotalInflow.Equal(dec("80")))
	assert.True(t, r.TotalOutflow.Equal(dec("80")))
	assert.True(t, r.NetPosition.IsZero())
	assert.Len(t, r.CashEntries, 1, "entry listed once even though it flows both ways")
}
