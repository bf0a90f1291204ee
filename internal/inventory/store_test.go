package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"medeasy/rx/domain"
	"medeasy/rx/internal/database"
	"medeasy/rx/internal/dbtest"
	"medeasy/rx/internal/ledger"
)

func createTestStore(t *testing.T) (*Store, *database.DB, int64, int64) {
	t.Helper()
	db := dbtest.Open(t)
	s := New(db, ledger.New(db), zaptest.NewLogger(t))
	return s, db, dbtest.Pharmacy(t, db, "Central"), dbtest.Medicine(t, db, "Seclo")
}

func TestAddBooksOpeningStock(t *testing.T) {
	s, _, pharmacy, medicine := createTestStore(t)
	ctx := context.Background()

	item, err := s.Add(ctx, domain.Item{
		PharmacyID: pharmacy, MedicineID: medicine, Code: "SEC-20", Unit: "strip", Quantity: 12,
		CostPrice: decimal.RequireFromString("3.10"), SalePrice: decimal.RequireFromString("4.50"),
	}, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(12), item.Quantity)
	assert.True(t, item.SalePrice.Equal(decimal.RequireFromString("4.5")))

	entries, err := s.ledger.ListByItem(ctx, pharmacy, item.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.TransactionRestock, entries[0].Type)
	assert.Equal(t, int64(0), entries[0].StockBefore)
	assert.Equal(t, int64(12), entries[0].StockAfter)
	assert.Equal(t, int64(7), entries[0].ActorID)
}

func TestAddRejectsNegativeInput(t *testing.T) {
	s, _, pharmacy, medicine := createTestStore(t)
	_, err := s.Add(context.Background(), domain.Item{PharmacyID: pharmacy, MedicineID: medicine, Quantity: -1}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = s.Add(context.Background(), domain.Item{PharmacyID: pharmacy, MedicineID: medicine, SalePrice: decimal.NewFromInt(-1)}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestDecrementNeverGoesNegative(t *testing.T) {
	s, _, pharmacy, medicine := createTestStore(t)
	ctx := context.Background()
	item, err := s.Add(ctx, domain.Item{PharmacyID: pharmacy, MedicineID: medicine, Quantity: 5}, 1)
	require.NoError(t, err)

	after, err := s.Decrement(ctx, pharmacy, item.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), after)

	_, err = s.Decrement(ctx, pharmacy, item.ID, 3)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var se *domain.InsufficientStockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []domain.Shortfall{{ItemID: item.ID, Requested: 3, Available: 2}}, se.Shortfalls)

	got, err := s.Get(ctx, pharmacy, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Quantity)
}

func TestConcurrentDecrementsTakeEachUnitOnce(t *testing.T) {
	s, _, pharmacy, medicine := createTestStore(t)
	ctx := context.Background()
	item, err := s.Add(ctx, domain.Item{PharmacyID: pharmacy, MedicineID: medicine, Quantity: 10}, 1)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Decrement(ctx, pharmacy, item.ID, 1); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	got, err := s.Get(ctx, pharmacy, item.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Quantity)
}

func TestDecrementIsTenantScoped(t *testing.T) {
	s, db, pharmacy, medicine := createTestStore(t)
	ctx := context.Background()
	item, err := s.Add(ctx, domain.Item{PharmacyID: pharmacy, MedicineID: medicine, Quantity: 5}, 1)
	require.NoError(t, err)
	other := dbtest.Pharmacy(t, db, "Elsewhere")

	_, err = s.Decrement(ctx, other, item.ID, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	items, err := s.GetMany(ctx, other, []int64{item.ID})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRestockAndAdjust(t *testing.T) {
	s, _, pharmacy, medicine := createTestStore(t)
	ctx := context.Background()
	item, err := s.Add(ctx, domain.Item{PharmacyID: pharmacy, MedicineID: medicine, Quantity: 4}, 1)
	require.NoError(t, err)

	entry, err := s.Restock(ctx, pharmacy, item.ID, 6, 2, "delivery 118")
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.StockBefore)
	assert.Equal(t, int64(10), entry.StockAfter)

	_, err = s.Restock(ctx, pharmacy, item.ID, 0, 2, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	adj, err := s.Adjust(ctx, pharmacy, item.ID, 7, 2, "stock-take")
	require.NoError(t, err)
	require.NotNil(t, adj)
	assert.Equal(t, domain.TransactionAdjustment, adj.Type)
	assert.Equal(t, int64(3), adj.Quantity)
	assert.Equal(t, int64(10), adj.StockBefore)
	assert.Equal(t, int64(7), adj.StockAfter)

	unchanged, err := s.Adjust(ctx, pharmacy, item.ID, 7, 2, "recount")
	require.NoError(t, err)
	assert.Nil(t, unchanged)

	rec, err := s.ledger.Reconcile(ctx, pharmacy, item.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, 3, rec.Entries)
}
