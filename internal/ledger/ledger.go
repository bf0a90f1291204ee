// Package ledger is the append-only record of every stock movement. Rows are
// never updated or deleted; the schema rejects both.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"medeasy/rx/domain"
	"medeasy/rx/internal/database"
)

const entryColumns = `id, pharmacy_id, inventory_id, transaction_type, quantity, stock_before, stock_after,
        prescription_id, actor_id, note, created_at`

// Ledger reads and appends stock ledger entries.
type Ledger struct {
	db  *database.DB
	now func() time.Time
}

// New constructs a Ledger.
func New(db *database.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append validates and inserts one entry, joining the transaction on ctx if
// there is one. The stored entry, with id and timestamp, is returned.
func (l *Ledger) Append(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	if err := entry.Validate(); err != nil {
		return domain.LedgerEntry{}, err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}

	q := l.db.Conn(ctx)
	err := q.QueryRowxContext(ctx, q.Rebind(`INSERT INTO stock_ledger
        (pharmacy_id, inventory_id, transaction_type, quantity, stock_before, stock_after, prescription_id, actor_id, note, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		entry.PharmacyID, entry.ItemID, entry.Type, entry.Quantity, entry.StockBefore, entry.StockAfter,
		entry.PrescriptionID, entry.ActorID, entry.Note, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

// ListByItem returns the movements of one item, oldest first.
func (l *Ledger) ListByItem(ctx context.Context, pharmacyID, itemID int64) ([]domain.LedgerEntry, error) {
	q := l.db.Conn(ctx)
	entries := []domain.LedgerEntry{}
	err := sqlx.SelectContext(ctx, q, &entries, q.Rebind(`SELECT `+entryColumns+` FROM stock_ledger
        WHERE pharmacy_id = ? AND inventory_id = ? ORDER BY id ASC`), pharmacyID, itemID)
	if err != nil {
		return nil, fmt.Errorf("list ledger by item: %w", err)
	}
	return entries, nil
}

// ListByPrescription returns the movements caused by one prescription.
func (l *Ledger) ListByPrescription(ctx context.Context, pharmacyID, prescriptionID int64) ([]domain.LedgerEntry, error) {
	q := l.db.Conn(ctx)
	entries := []domain.LedgerEntry{}
	err := sqlx.SelectContext(ctx, q, &entries, q.Rebind(`SELECT `+entryColumns+` FROM stock_ledger
        WHERE pharmacy_id = ? AND prescription_id = ? ORDER BY id ASC`), pharmacyID, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list ledger by prescription: %w", err)
	}
	return entries, nil
}

// Reconciliation compares the mutable counter with what the ledger says it
// should be.
type Reconciliation struct {
	ItemID       int64 `json:"inventory_id"`
	CurrentStock int64 `json:"current_stock"`
	LedgerStock  int64 `json:"ledger_stock"`
	Entries      int   `json:"entries"`
	Consistent   bool  `json:"consistent"`
}

// Reconcile replays the item's ledger and checks it against the counter.
// Each entry must start where the previous one ended, and the last
// stock_after must equal the current quantity.
func (l *Ledger) Reconcile(ctx context.Context, pharmacyID, itemID int64) (Reconciliation, error) {
	q := l.db.Conn(ctx)
	var current int64
	err := q.QueryRowxContext(ctx, q.Rebind(`SELECT quantity FROM inventory WHERE id = ? AND pharmacy_id = ?`),
		itemID, pharmacyID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return Reconciliation{}, domain.NotFoundf("inventory item %d", itemID)
	}
	if err != nil {
		return Reconciliation{}, fmt.Errorf("reconcile: %w", err)
	}

	entries, err := l.ListByItem(ctx, pharmacyID, itemID)
	if err != nil {
		return Reconciliation{}, err
	}

	rec := Reconciliation{ItemID: itemID, CurrentStock: current, Entries: len(entries), Consistent: true}
	for i, e := range entries {
		if i > 0 && e.StockBefore != entries[i-1].StockAfter {
			rec.Consistent = false
		}
		if e.Validate() != nil {
			rec.Consistent = false
		}
		rec.LedgerStock = e.StockAfter
	}
	if rec.LedgerStock != current {
		rec.Consistent = false
	}
	return rec, nil
}
