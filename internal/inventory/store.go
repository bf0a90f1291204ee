// Package inventory holds the per-pharmacy stock counters. Every change to a
// counter is paired with a ledger entry in the same transaction.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"medeasy/rx/domain"
	"medeasy/rx/internal/database"
	"medeasy/rx/internal/ledger"
)

const itemColumns = `id, pharmacy_id, medicine_id, code, unit, quantity, cost_price, sale_price, expiry_date, created_at, updated_at`

// Store is the inventory store.
type Store struct {
	db     *database.DB
	ledger *ledger.Ledger
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Store.
func New(db *database.DB, l *ledger.Ledger, logger *zap.Logger) *Store {
	return &Store{db: db, ledger: l, logger: logger.Named("inventory"), now: time.Now}
}

// Get loads one item of the pharmacy.
func (s *Store) Get(ctx context.Context, pharmacyID, itemID int64) (*domain.Item, error) {
	q := s.db.Conn(ctx)
	var item domain.Item
	err := sqlx.GetContext(ctx, q, &item, q.Rebind(`SELECT `+itemColumns+` FROM inventory WHERE id = ? AND pharmacy_id = ?`),
		itemID, pharmacyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("inventory item %d", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	return &item, nil
}

// GetMany loads the given items keyed by id. Ids that do not belong to the
// pharmacy are simply absent from the result.
func (s *Store) GetMany(ctx context.Context, pharmacyID int64, ids []int64) (map[int64]domain.Item, error) {
	out := make(map[int64]domain.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM inventory WHERE pharmacy_id = ? AND id IN (?)`, pharmacyID, ids)
	if err != nil {
		return nil, fmt.Errorf("prepare inventory query: %w", err)
	}
	q := s.db.Conn(ctx)
	var items []domain.Item
	if err := sqlx.SelectContext(ctx, q, &items, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load inventory items: %w", err)
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

// Decrement removes qty units from the item if and only if at least qty are
// on hand, and returns the quantity left. The check and the write are one
// statement, so two concurrent callers can never both take the last units.
func (s *Store) Decrement(ctx context.Context, pharmacyID, itemID, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, domain.InvalidArgument("decrement quantity must be positive")
	}
	q := s.db.Conn(ctx)
	var after int64
	err := q.QueryRowxContext(ctx, q.Rebind(`UPDATE inventory SET quantity = quantity - ?, updated_at = ?
        WHERE id = ? AND pharmacy_id = ? AND quantity >= ? RETURNING quantity`),
		qty, s.now().UTC(), itemID, pharmacyID, qty).Scan(&after)
	if errors.Is(err, sql.ErrNoRows) {
		item, getErr := s.Get(ctx, pharmacyID, itemID)
		if getErr != nil {
			return 0, getErr
		}
		return 0, &domain.InsufficientStockError{Shortfalls: []domain.Shortfall{{
			ItemID: itemID, Requested: qty, Available: item.Quantity,
		}}}
	}
	if err != nil {
		return 0, fmt.Errorf("decrement inventory item %d: %w", itemID, err)
	}
	return after, nil
}

// Add creates an item with zero stock and, if quantity is positive, books
// the opening stock as a RESTOCK entry.
func (s *Store) Add(ctx context.Context, item domain.Item, actorID int64) (*domain.Item, error) {
	if item.PharmacyID <= 0 || item.MedicineID <= 0 {
		return nil, domain.InvalidArgument("pharmacy_id and medicine_id are required")
	}
	if item.Quantity < 0 {
		return nil, domain.InvalidArgument("quantity must not be negative")
	}
	if item.CostPrice.IsNegative() || item.SalePrice.IsNegative() {
		return nil, domain.InvalidArgument("prices must not be negative")
	}

	opening := item.Quantity
	var created *domain.Item
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		now := s.now().UTC()
		q := s.db.Conn(ctx)
		var id int64
		err := q.QueryRowxContext(ctx, q.Rebind(`INSERT INTO inventory
            (pharmacy_id, medicine_id, code, unit, quantity, cost_price, sale_price, expiry_date, created_at, updated_at)
            VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?) RETURNING id`),
			item.PharmacyID, item.MedicineID, item.Code, item.Unit, item.CostPrice, item.SalePrice, item.ExpiryDate, now, now).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert inventory item: %w", err)
		}
		if opening > 0 {
			if _, err := s.restock(ctx, item.PharmacyID, id, opening, actorID, "opening stock"); err != nil {
				return err
			}
		}
		created, err = s.Get(ctx, item.PharmacyID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("inventory item added",
		zap.Int64("pharmacy_id", created.PharmacyID),
		zap.Int64("inventory_id", created.ID),
		zap.Int64("quantity", created.Quantity))
	return created, nil
}

// Restock adds qty units and records a RESTOCK entry.
func (s *Store) Restock(ctx context.Context, pharmacyID, itemID, qty, actorID int64, note string) (domain.LedgerEntry, error) {
	if qty <= 0 {
		return domain.LedgerEntry{}, domain.InvalidArgument("restock quantity must be positive")
	}
	var entry domain.LedgerEntry
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		entry, err = s.restock(ctx, pharmacyID, itemID, qty, actorID, note)
		return err
	})
	return entry, err
}

func (s *Store) restock(ctx context.Context, pharmacyID, itemID, qty, actorID int64, note string) (domain.LedgerEntry, error) {
	q := s.db.Conn(ctx)
	var after int64
	err := q.QueryRowxContext(ctx, q.Rebind(`UPDATE inventory SET quantity = quantity + ?, updated_at = ?
        WHERE id = ? AND pharmacy_id = ? RETURNING quantity`),
		qty, s.now().UTC(), itemID, pharmacyID).Scan(&after)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerEntry{}, domain.NotFoundf("inventory item %d", itemID)
	}
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("restock inventory item %d: %w", itemID, err)
	}
	return s.ledger.Append(ctx, domain.LedgerEntry{
		PharmacyID:  pharmacyID,
		ItemID:      itemID,
		Type:        domain.TransactionRestock,
		Quantity:    qty,
		StockBefore: after - qty,
		StockAfter:  after,
		ActorID:     actorID,
		Note:        note,
	})
}

// Adjust sets the counter to an absolute value after a physical count and
// records the difference as an ADJUSTMENT entry. The write is conditional on
// the quantity read, so a concurrent movement yields ErrConcurrencyConflict
// rather than a lost update. No entry is written when nothing changes.
func (s *Store) Adjust(ctx context.Context, pharmacyID, itemID, newQty, actorID int64, note string) (*domain.LedgerEntry, error) {
	if newQty < 0 {
		return nil, domain.InvalidArgument("quantity must not be negative")
	}
	var entry *domain.LedgerEntry
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		item, err := s.Get(ctx, pharmacyID, itemID)
		if err != nil {
			return err
		}
		if item.Quantity == newQty {
			return nil
		}
		q := s.db.Conn(ctx)
		res, err := q.ExecContext(ctx, q.Rebind(`UPDATE inventory SET quantity = ?, updated_at = ?
            WHERE id = ? AND pharmacy_id = ? AND quantity = ?`),
			newQty, s.now().UTC(), itemID, pharmacyID, item.Quantity)
		if err != nil {
			return fmt.Errorf("adjust inventory item %d: %w", itemID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("adjust inventory item %d: %w", itemID, err)
		} else if n == 0 {
			return domain.Conflictf("inventory item %d changed during adjustment", itemID)
		}
		delta := newQty - item.Quantity
		if delta < 0 {
			delta = -delta
		}
		appended, err := s.ledger.Append(ctx, domain.LedgerEntry{
			PharmacyID:  pharmacyID,
			ItemID:      itemID,
			Type:        domain.TransactionAdjustment,
			Quantity:    delta,
			StockBefore: item.Quantity,
			StockAfter:  newQty,
			ActorID:     actorID,
			Note:        note,
		})
		if err != nil {
			return err
		}
		entry = &appended
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
