// Package interaction looks up known drug-drug interactions between the
// medicines of a prescription.
package interaction

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"medeasy/rx/domain"
	"medeasy/rx/internal/database"
)

// Checker returns every known interaction among the given medicines. A pair
// with no stored row has no known interaction and is not an error.
type Checker interface {
	Check(ctx context.Context, medicineIDs []int64) ([]domain.Interaction, error)
}

// distinct sorts and de-duplicates ids.
func distinct(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// sortInteractions orders results most severe first, then by pair, so
// callers and tests see a stable list.
func sortInteractions(list []domain.Interaction) {
	sort.Slice(list, func(i, j int) bool {
		if ri, rj := list[i].Severity.Rank(), list[j].Severity.Rank(); ri != rj {
			return ri > rj
		}
		if list[i].MedicineA != list[j].MedicineA {
			return list[i].MedicineA < list[j].MedicineA
		}
		return list[i].MedicineB < list[j].MedicineB
	})
}

// SQLChecker reads the drug_interactions table. Rows are stored with
// medicine_a < medicine_b, so restricting both columns to the queried set
// finds a pair whichever way round it was asked for.
type SQLChecker struct {
	db *database.DB
}

// NewSQLChecker constructs a SQLChecker.
func NewSQLChecker(db *database.DB) *SQLChecker {
	return &SQLChecker{db: db}
}

func (c *SQLChecker) Check(ctx context.Context, medicineIDs []int64) ([]domain.Interaction, error) {
	ids := distinct(medicineIDs)
	if len(ids) < 2 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, medicine_a, medicine_b, severity, description FROM drug_interactions
        WHERE medicine_a IN (?) AND medicine_b IN (?)`, ids, ids)
	if err != nil {
		return nil, fmt.Errorf("prepare interaction query: %w", err)
	}
	q := c.db.Conn(ctx)
	var found []domain.Interaction
	if err := sqlx.SelectContext(ctx, q, &found, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("check interactions: %w", err)
	}
	sortInteractions(found)
	return found, nil
}

// Put stores or replaces the interaction for a pair, normalising its order.
func (c *SQLChecker) Put(ctx context.Context, in domain.Interaction) error {
	if in.MedicineA == in.MedicineB {
		return domain.InvalidArgument("an interaction needs two different medicines")
	}
	if _, err := domain.ParseSeverity(string(in.Severity)); err != nil {
		return err
	}
	key := in.Key()
	q := c.db.Conn(ctx)
	_, err := q.ExecContext(ctx, q.Rebind(`INSERT INTO drug_interactions (medicine_a, medicine_b, severity, description)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (medicine_a, medicine_b) DO UPDATE SET severity = excluded.severity, description = excluded.description`),
		key.A, key.B, in.Severity, in.Description)
	if err != nil {
		return fmt.Errorf("store interaction %d/%d: %w", key.A, key.B, err)
	}
	return nil
}

// Blocking returns the first interaction that stops a dispense, if any.
// Input is expected in the order Check returns it.
func Blocking(list []domain.Interaction) (domain.Interaction, bool) {
	for _, in := range list {
		if in.Severity.Blocks() {
			return in, true
		}
	}
	return domain.Interaction{}, false
}
