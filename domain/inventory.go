package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a stock-keeping item: one medicine as held by one pharmacy.
type Item struct {
	ID         int64           `db:"id" json:"id"`
	PharmacyID int64           `db:"pharmacy_id" json:"pharmacy_id"`
	MedicineID int64           `db:"medicine_id" json:"medicine_id"`
	Code       string          `db:"code" json:"code"`
	Unit       string          `db:"unit" json:"unit"`
	Quantity   int64           `db:"quantity" json:"quantity"`
	CostPrice  decimal.Decimal `db:"cost_price" json:"cost_price"`
	SalePrice  decimal.Decimal `db:"sale_price" json:"sale_price"`
	ExpiryDate *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// TransactionType is the kind of stock movement a ledger entry records.
type TransactionType string

const (
	TransactionSale       TransactionType = "SALE"
	TransactionRestock    TransactionType = "RESTOCK"
	TransactionAdjustment TransactionType = "ADJUSTMENT"
)

// LedgerEntry is one immutable stock movement. Quantity is always positive;
// the direction follows from the type (SALE decreases, RESTOCK increases,
// ADJUSTMENT goes whichever way StockAfter says).
type LedgerEntry struct {
	ID             int64           `db:"id" json:"id"`
	PharmacyID     int64           `db:"pharmacy_id" json:"pharmacy_id"`
	ItemID         int64           `db:"inventory_id" json:"inventory_id"`
	Type           TransactionType `db:"transaction_type" json:"transaction_type"`
	Quantity       int64           `db:"quantity" json:"quantity"`
	StockBefore    int64           `db:"stock_before" json:"stock_before"`
	StockAfter     int64           `db:"stock_after" json:"stock_after"`
	PrescriptionID *int64          `db:"prescription_id" json:"prescription_id,omitempty"`
	ActorID        int64           `db:"actor_id" json:"actor_id"`
	Note           string          `db:"note" json:"note,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Validate checks the arithmetic of the entry against its type.
func (e LedgerEntry) Validate() error {
	if e.Quantity < 0 {
		return invalidArgument("ledger quantity must not be negative")
	}
	if e.StockAfter < 0 {
		return invalidArgument("stock cannot go negative")
	}
	switch e.Type {
	case TransactionSale:
		if e.Quantity == 0 || e.StockAfter != e.StockBefore-e.Quantity {
			return invalidArgument("sale entry must satisfy stock_after = stock_before - quantity")
		}
	case TransactionRestock:
		if e.Quantity == 0 || e.StockAfter != e.StockBefore+e.Quantity {
			return invalidArgument("restock entry must satisfy stock_after = stock_before + quantity")
		}
	case TransactionAdjustment:
		diff := e.StockAfter - e.StockBefore
		if diff < 0 {
			diff = -diff
		}
		if diff != e.Quantity {
			return invalidArgument("adjustment quantity must equal the stock delta")
		}
	default:
		return invalidArgument("unknown transaction type " + string(e.Type))
	}
	return nil
}
