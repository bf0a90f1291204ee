package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindsAreDistinct(t *testing.T) {
	errs := map[error]error{
		ErrInvalidTransition:   &TransitionError{From: StatusCancelled, Action: ActionDispense},
		ErrInsufficientStock:   &InsufficientStockError{Shortfalls: []Shortfall{{ItemID: 1, Requested: 4, Available: 1}}},
		ErrSevereInteraction:   &InteractionError{Interaction: Interaction{MedicineA: 1, MedicineB: 2, Severity: SeveritySevere}},
		ErrConcurrencyConflict: Conflictf("prescription %d", 1),
		ErrNotFound:            NotFoundf("prescription %d", 1),
		ErrInvalidArgument:     InvalidArgument("bad"),
	}
	for kind, err := range errs {
		wrapped := fmt.Errorf("outer: %w", err)
		for other := range errs {
			assert.Equal(t, kind == other, errors.Is(wrapped, other), "%v vs %v", err, other)
		}
	}
}

func TestInsufficientStockErrorListsEveryShortfall(t *testing.T) {
	err := &InsufficientStockError{Shortfalls: []Shortfall{
		{ItemID: 1, Requested: 5, Available: 2},
		{ItemID: 2, Requested: 3, Available: 0},
	}}
	assert.Contains(t, err.Error(), "item 1 short by 3")
	assert.Contains(t, err.Error(), "item 2 short by 3")
	assert.Equal(t, int64(3), err.Shortfalls[0].Missing())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Conflictf("x")))
	assert.False(t, IsRetryable(&TransitionError{}))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestSeverity(t *testing.T) {
	s, err := ParseSeverity(" severe ")
	assert.NoError(t, err)
	assert.Equal(t, SeveritySevere, s)
	assert.True(t, s.Blocks())
	assert.False(t, SeverityModerate.Blocks())
	assert.Greater(t, SeveritySevere.Rank(), SeverityModerate.Rank())

	_, err = ParseSeverity("fatal")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, NewPairKey(9, 3), NewPairKey(3, 9))
}

func TestLedgerEntryValidate(t *testing.T) {
	ok := []LedgerEntry{
		{Type: TransactionSale, Quantity: 3, StockBefore: 5, StockAfter: 2},
		{Type: TransactionRestock, Quantity: 10, StockBefore: 2, StockAfter: 12},
		{Type: TransactionAdjustment, Quantity: 4, StockBefore: 12, StockAfter: 8},
		{Type: TransactionAdjustment, Quantity: 1, StockBefore: 8, StockAfter: 9},
	}
	for _, e := range ok {
		assert.NoError(t, e.Validate(), "%+v", e)
	}
	bad := []LedgerEntry{
		{Type: TransactionSale, Quantity: 3, StockBefore: 2, StockAfter: -1},
		{Type: TransactionSale, Quantity: 3, StockBefore: 5, StockAfter: 3},
		{Type: TransactionRestock, Quantity: 0, StockBefore: 2, StockAfter: 2},
		{Type: TransactionAdjustment, Quantity: 1, StockBefore: 8, StockAfter: 10},
		{Type: "RETURN", Quantity: 1, StockBefore: 1, StockAfter: 2},
	}
	for _, e := range bad {
		assert.ErrorIs(t, e.Validate(), ErrInvalidArgument, "%+v", e)
	}
}

func TestCallerValidate(t *testing.T) {
	assert.NoError(t, Caller{UserID: 1, PharmacyID: 2}.Validate())
	assert.ErrorIs(t, Caller{PharmacyID: 2}.Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, Caller{UserID: 1}.Validate(), ErrInvalidArgument)
}
