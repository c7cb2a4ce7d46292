package delivery

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dairyops/ledger-engine/ledger"
	"github.com/dairyops/ledger-engine/store/sqlite"
)

func newTestService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewService(store, ledger.NewWriter(store)), store
}

func TestCollectionAccount(t *testing.T) {
	assert.Equal(t, "Company Cash", CollectionAccount(ledger.ModeCash))
	assert.Equal(t, "Company Bank", CollectionAccount(ledger.ModeUPI))
	assert.Equal(t, "Company Bank", CollectionAccount(ledger.ModeCard))
	assert.Equal(t, "Company Bank", CollectionAccount(ledger.ModeBankTransfer))
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, "  Shop X  ", "12 Dairy Lane")
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "Shop X", d.ShopName, "shop name is trimmed")
	assert.Equal(t, StatusPending, d.Status)

	_, err = svc.Create(ctx, "   ", "")
	assert.True(t, ledger.IsValidation(err), "want validation error, got %v", err)
}

func TestMarkDelivered_RecordsCollectedPayment(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, "Shop X", "")
	require.NoError(t, err)

	collected := decimal.RequireFromString("350.50")
	updated, entry, err := svc.MarkDelivered(ctx, d.ID, &collected, ledger.ModeCash, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, StatusDelivered, updated.Status)
	require.NotNil(t, updated.DeliveredAt)
	require.NotNil(t, updated.CollectedAmount)
	assert.True(t, updated.CollectedAmount.Equal(collected))

	require.NotNil(t, entry)
	assert.Equal(t, "Shop X", entry.FromAccount)
	assert.Equal(t, "Company Cash", entry.ToAccount)
	assert.True(t, entry.Amount.Equal(collected))
	assert.Equal(t, ledger.ModeCash, entry.Mode)
	assert.Equal(t, "delivery:"+d.ID, entry.Reference)
	assert.Equal(t, "admin-1", entry.CreatedBy)

	// The entry is persisted, not just returned.
	stored, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestMarkDelivered_BankModesCreditTheBank(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, "Shop Y", "")
	require.NoError(t, err)

	collected := decimal.RequireFromString("120")
	_, entry, err := svc.MarkDelivered(ctx, d.ID, &collected, ledger.ModeUPI, "")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Company Bank", entry.ToAccount)
}

func TestMarkDelivered_NoCollectionNoEntry(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, "Shop Z", "")
	require.NoError(t, err)

	updated, entry, err := svc.MarkDelivered(ctx, d.ID, nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, updated.Status)
	assert.Nil(t, entry)

	entries, err := store.ListEntries(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMarkDelivered_AlreadyDelivered(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, "Shop X", "")
	require.NoError(t, err)

	_, _, err = svc.MarkDelivered(ctx, d.ID, nil, "", "")
	require.NoError(t, err)

	_, _, err = svc.MarkDelivered(ctx, d.ID, nil, "", "")
	assert.True(t, ledger.IsValidation(err), "want validation error, got %v", err)
}

func TestMarkDelivered_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.MarkDelivered(context.Background(), "missing", nil, "", "")
	assert.True(t, ledger.IsNotFound(err), "want not-found, got %v", err)
}

func TestGetAndList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, "Shop A", "")
	require.NoError(t, err)
	b, err := svc.Create(ctx, "Shop B", "")
	require.NoError(t, err)

	_, _, err = svc.MarkDelivered(ctx, b.ID, nil, "", "")
	require.NoError(t, err)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shop A", got.ShopName)

	_, err = svc.Get(ctx, "missing")
	assert.True(t, ledger.IsNotFound(err))

	pending, err := svc.List(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
