package migrations_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medeasy/rx/internal/dbtest"
	"medeasy/rx/internal/migrations"
)

func TestRunIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, migrations.Run(db))
}

func TestSchemaGuardsInvariants(t *testing.T) {
	db := dbtest.Open(t)
	pharmacy := dbtest.Pharmacy(t, db, "Central")
	a := dbtest.Medicine(t, db, "A")
	b := dbtest.Medicine(t, db, "B")
	now := time.Now().UTC()

	_, err := db.Exec(`INSERT INTO inventory (pharmacy_id, medicine_id, quantity, created_at, updated_at) VALUES (?, ?, -1, ?, ?)`,
		pharmacy, a, now, now)
	assert.Error(t, err, "negative stock")

	_, err = db.Exec(`INSERT INTO prescriptions (pharmacy_id, status, prescription_date, doctor_id, patient_id, times_filled, allowed_refills, created_at, updated_at)
        VALUES (?, 'PENDING', ?, 1, 1, 3, 1, ?, ?)`, pharmacy, now, now, now)
	assert.Error(t, err, "times_filled above allowed_refills + 1")

	_, err = db.Exec(`INSERT INTO prescriptions (pharmacy_id, status, prescription_date, doctor_id, patient_id, created_at, updated_at)
        VALUES (?, 'SHIPPED', ?, 1, 1, ?, ?)`, pharmacy, now, now, now)
	assert.Error(t, err, "unknown status")

	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	_, err = db.Exec(`INSERT INTO drug_interactions (medicine_a, medicine_b, severity) VALUES (?, ?, 'SEVERE')`, hi, lo)
	assert.Error(t, err, "unordered pair")
	_, err = db.Exec(`INSERT INTO drug_interactions (medicine_a, medicine_b, severity) VALUES (?, ?, 'FATAL')`, lo, hi)
	assert.Error(t, err, "unknown severity")
}
