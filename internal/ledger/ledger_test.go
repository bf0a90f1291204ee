package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"medeasy/rx/domain"
	"medeasy/rx/internal/dbtest"
	"medeasy/rx/internal/inventory"
	"medeasy/rx/internal/ledger"
)

type fixture struct {
	led      *ledger.Ledger
	inv      *inventory.Store
	pharmacy int64
	item     int64
}

func setup(t *testing.T, opening int64) fixture {
	t.Helper()
	db := dbtest.Open(t)
	led := ledger.New(db)
	inv := inventory.New(db, led, zaptest.NewLogger(t))
	pharmacy := dbtest.Pharmacy(t, db, "Central")
	medicine := dbtest.Medicine(t, db, "Napa")
	item, err := inv.Add(context.Background(), domain.Item{
		PharmacyID: pharmacy, MedicineID: medicine, Quantity: opening,
		CostPrice: decimal.NewFromFloat(1.25), SalePrice: decimal.NewFromFloat(2),
	}, 1)
	require.NoError(t, err)
	return fixture{led: led, inv: inv, pharmacy: pharmacy, item: item.ID}
}

func TestAppendRejectsBadArithmetic(t *testing.T) {
	f := setup(t, 5)
	_, err := f.led.Append(context.Background(), domain.LedgerEntry{
		PharmacyID: f.pharmacy, ItemID: f.item, Type: domain.TransactionSale,
		Quantity: 2, StockBefore: 5, StockAfter: 4, ActorID: 1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEntriesAreImmutable(t *testing.T) {
	db := dbtest.Open(t)
	led := ledger.New(db)
	inv := inventory.New(db, led, zaptest.NewLogger(t))
	pharmacy := dbtest.Pharmacy(t, db, "Central")
	medicine := dbtest.Medicine(t, db, "Napa")
	_, err := inv.Add(context.Background(), domain.Item{PharmacyID: pharmacy, MedicineID: medicine, Quantity: 3}, 1)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE stock_ledger SET quantity = 99`)
	assert.ErrorContains(t, err, "immutable")
	_, err = db.Exec(`DELETE FROM stock_ledger`)
	assert.ErrorContains(t, err, "immutable")

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM stock_ledger`))
	assert.Equal(t, 1, count)
}

func TestReconcileReplaysHistory(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()

	_, err := f.inv.Decrement(ctx, f.pharmacy, f.item, 4)
	require.NoError(t, err)
	_, err = f.led.Append(ctx, domain.LedgerEntry{
		PharmacyID: f.pharmacy, ItemID: f.item, Type: domain.TransactionSale,
		Quantity: 4, StockBefore: 10, StockAfter: 6, ActorID: 1,
	})
	require.NoError(t, err)
	_, err = f.inv.Restock(ctx, f.pharmacy, f.item, 5, 1, "delivery")
	require.NoError(t, err)

	rec, err := f.led.Reconcile(ctx, f.pharmacy, f.item)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, int64(11), rec.CurrentStock)
	assert.Equal(t, int64(11), rec.LedgerStock)
	assert.Equal(t, 3, rec.Entries)

	entries, err := f.led.ListByItem(ctx, f.pharmacy, f.item)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.TransactionRestock, entries[0].Type)
	assert.Equal(t, domain.TransactionSale, entries[1].Type)
	assert.Equal(t, domain.TransactionRestock, entries[2].Type)
}

func TestReconcileDetectsDrift(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()

	// A decrement with no matching entry leaves the counter ahead of the ledger.
	_, err := f.inv.Decrement(ctx, f.pharmacy, f.item, 1)
	require.NoError(t, err)

	rec, err := f.led.Reconcile(ctx, f.pharmacy, f.item)
	require.NoError(t, err)
	assert.False(t, rec.Consistent)
	assert.Equal(t, int64(9), rec.CurrentStock)
	assert.Equal(t, int64(10), rec.LedgerStock)
}

func TestReconcileOtherPharmacyIsNotFound(t *testing.T) {
	f := setup(t, 1)
	_, err := f.led.Reconcile(context.Background(), f.pharmacy+100, f.item)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
