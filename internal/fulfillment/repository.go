package fulfillment

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

const prescriptionColumns = `id, pharmacy_id, status, prescription_date, doctor_id, patient_id,
        dispensed_at, dispensed_by, completed_at, cancelled_at, cancelled_by, cancellation_reason,
        times_filled, allowed_refills, refill_of, refilled_by, version, created_at, updated_at`

// Repository persists prescriptions. Status changes go through
// compare-and-set updates keyed on the version column; a lost race shows up
// as zero affected rows.
type Repository struct {
	db *database.DB
}

// NewRepository constructs a Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Get loads a prescription and its lines. A prescription of another
// pharmacy is reported as not found.
func (r *Repository) Get(ctx context.Context, pharmacyID, id int64) (*domain.Prescription, error) {
	q := r.db.Conn(ctx)
	var p domain.Prescription
	err := sqlx.GetContext(ctx, q, &p, q.Rebind(`SELECT `+prescriptionColumns+` FROM prescriptions
        WHERE id = ? AND pharmacy_id = ?`), id, pharmacyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("prescription %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get prescription %d: %w", id, err)
	}

	p.Items = []domain.PrescriptionItem{}
	err = sqlx.SelectContext(ctx, q, &p.Items, q.Rebind(`SELECT pi.id, pi.prescription_id, pi.inventory_id, i.medicine_id,
        pi.prescribed_quantity, pi.dispensed_quantity, pi.dosage, pi.frequency, pi.duration
        FROM prescription_items pi
        JOIN inventory i ON i.id = pi.inventory_id
        WHERE pi.prescription_id = ?
        ORDER BY pi.inventory_id ASC`), id)
	if err != nil {
		return nil, fmt.Errorf("load items of prescription %d: %w", id, err)
	}
	return &p, nil
}

// insert stores a new prescription and its lines. p must already be
// validated; its ID and line IDs are filled in.
func (r *Repository) insert(ctx context.Context, p *domain.Prescription, now time.Time) error {
	q := r.db.Conn(ctx)
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = now, now
	err := q.QueryRowxContext(ctx, q.Rebind(`INSERT INTO prescriptions
        (pharmacy_id, status, prescription_date, doctor_id, patient_id, times_filled, allowed_refills, refill_of, version, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		p.PharmacyID, p.Status, p.PrescriptionDate, p.DoctorID, p.PatientID, p.TimesFilled, p.AllowedRefills,
		p.RefillOf, p.Version, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}

	for i := range p.Items {
		item := &p.Items[i]
		item.PrescriptionID = p.ID
		item.DispensedQuantity = 0
		err := q.QueryRowxContext(ctx, q.Rebind(`INSERT INTO prescription_items
            (prescription_id, inventory_id, prescribed_quantity, dispensed_quantity, dosage, frequency, duration)
            VALUES (?, ?, ?, 0, ?, ?, ?) RETURNING id`),
			p.ID, item.ItemID, item.PrescribedQuantity, item.Dosage, item.Frequency, item.Duration).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert prescription item: %w", err)
		}
	}
	return nil
}

// compareAndSet applies set to the prescription only if it is still in the
// status and version p was loaded with, then bumps the version. It reports
// whether the row was updated.
func (r *Repository) compareAndSet(ctx context.Context, p *domain.Prescription, set string, args ...any) (bool, error) {
	q := r.db.Conn(ctx)
	args = append(args, p.ID, p.PharmacyID, p.Status, p.Version)
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE prescriptions SET `+set+`, version = version + 1
        WHERE id = ? AND pharmacy_id = ? AND status = ? AND version = ?`), args...)
	if err != nil {
		return false, fmt.Errorf("update prescription %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update prescription %d: %w", p.ID, err)
	}
	return n == 1, nil
}

func (r *Repository) markDispensed(ctx context.Context, p *domain.Prescription, actorID int64, now time.Time) (bool, error) {
	return r.compareAndSet(ctx, p,
		`status = ?, dispensed_at = ?, dispensed_by = ?, times_filled = times_filled + 1, updated_at = ?`,
		domain.StatusDispensed, now, actorID, now)
}

func (r *Repository) markCompleted(ctx context.Context, p *domain.Prescription, now time.Time) (bool, error) {
	return r.compareAndSet(ctx, p,
		`status = ?, completed_at = ?, updated_at = ?`,
		domain.StatusCompleted, now, now)
}

func (r *Repository) markCancelled(ctx context.Context, p *domain.Prescription, actorID int64, reason *string, now time.Time) (bool, error) {
	return r.compareAndSet(ctx, p,
		`status = ?, cancelled_at = ?, cancelled_by = ?, cancellation_reason = ?, updated_at = ?`,
		domain.StatusCancelled, now, actorID, reason, now)
}

// markRefilled links the source to its successor. The refill limit and the
// single-successor rule are repeated in the WHERE clause so the check and
// the write cannot be separated by a concurrent refill.
func (r *Repository) markRefilled(ctx context.Context, p *domain.Prescription, successorID int64, now time.Time) (bool, error) {
	q := r.db.Conn(ctx)
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE prescriptions SET refilled_by = ?, updated_at = ?, version = version + 1
        WHERE id = ? AND pharmacy_id = ? AND status = ? AND version = ?
        AND refilled_by IS NULL AND times_filled < allowed_refills + 1`),
		successorID, now, p.ID, p.PharmacyID, domain.StatusCompleted, p.Version)
	if err != nil {
		return false, fmt.Errorf("update prescription %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update prescription %d: %w", p.ID, err)
	}
	return n == 1, nil
}

func (r *Repository) markItemDispensed(ctx context.Context, lineID int64) error {
	q := r.db.Conn(ctx)
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE prescription_items SET dispensed_quantity = prescribed_quantity WHERE id = ?`), lineID)
	if err != nil {
		return fmt.Errorf("mark item %d dispensed: %w", lineID, err)
	}
	return nil
}
