package migrations

import (
	"fmt"

	"medeasy/rx/internal/database"
)

// Run creates the schema for the database's dialect. Every statement is
// idempotent, so Run is safe on every start.
func Run(db *database.DB) error {
	schema := sqliteSchema
	if db.DriverName() == database.DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS pharmacies (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            address TEXT,
            location TEXT,
            owner_id INTEGER,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS medicines (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            brand_id INTEGER,
            brand_name TEXT NOT NULL,
            type TEXT,
            generic_name TEXT,
            manufacturer TEXT,
            UNIQUE(brand_id)
        );`,
	`CREATE TABLE IF NOT EXISTS inventory (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            pharmacy_id INTEGER NOT NULL,
            medicine_id INTEGER NOT NULL,
            code TEXT NOT NULL DEFAULT '',
            unit TEXT NOT NULL DEFAULT '',
            quantity INTEGER NOT NULL CHECK (quantity >= 0),
            cost_price REAL NOT NULL DEFAULT 0,
            sale_price REAL NOT NULL DEFAULT 0,
            expiry_date TIMESTAMP,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            FOREIGN KEY(pharmacy_id) REFERENCES pharmacies(id),
            FOREIGN KEY(medicine_id) REFERENCES medicines(id)
        );`,
	`CREATE TABLE IF NOT EXISTS prescriptions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            pharmacy_id INTEGER NOT NULL,
            status TEXT NOT NULL CHECK (status IN ('PENDING','DISPENSED','COMPLETED','CANCELLED')),
            prescription_date TIMESTAMP NOT NULL,
            doctor_id INTEGER NOT NULL,
            patient_id INTEGER NOT NULL,
            dispensed_at TIMESTAMP,
            dispensed_by INTEGER,
            completed_at TIMESTAMP,
            cancelled_at TIMESTAMP,
            cancelled_by INTEGER,
            cancellation_reason TEXT,
            times_filled INTEGER NOT NULL DEFAULT 0,
            allowed_refills INTEGER NOT NULL DEFAULT 0 CHECK (allowed_refills >= 0),
            refill_of INTEGER,
            refilled_by INTEGER,
            version INTEGER NOT NULL DEFAULT 1,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            CHECK (times_filled >= 0 AND times_filled <= allowed_refills + 1),
            FOREIGN KEY(pharmacy_id) REFERENCES pharmacies(id),
            FOREIGN KEY(refill_of) REFERENCES prescriptions(id),
            FOREIGN KEY(refilled_by) REFERENCES prescriptions(id)
        );`,
	`CREATE TABLE IF NOT EXISTS prescription_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            prescription_id INTEGER NOT NULL,
            inventory_id INTEGER NOT NULL,
            prescribed_quantity INTEGER NOT NULL CHECK (prescribed_quantity > 0),
            dispensed_quantity INTEGER NOT NULL DEFAULT 0,
            dosage TEXT NOT NULL DEFAULT '',
            frequency TEXT NOT NULL DEFAULT '',
            duration TEXT NOT NULL DEFAULT '',
            UNIQUE(prescription_id, inventory_id),
            FOREIGN KEY(prescription_id) REFERENCES prescriptions(id),
            FOREIGN KEY(inventory_id) REFERENCES inventory(id)
        );`,
	`CREATE TABLE IF NOT EXISTS stock_ledger (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            pharmacy_id INTEGER NOT NULL,
            inventory_id INTEGER NOT NULL,
            transaction_type TEXT NOT NULL CHECK (transaction_type IN ('SALE','RESTOCK','ADJUSTMENT')),
            quantity INTEGER NOT NULL CHECK (quantity >= 0),
            stock_before INTEGER NOT NULL,
            stock_after INTEGER NOT NULL CHECK (stock_after >= 0),
            prescription_id INTEGER,
            actor_id INTEGER NOT NULL,
            note TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL,
            FOREIGN KEY(pharmacy_id) REFERENCES pharmacies(id),
            FOREIGN KEY(inventory_id) REFERENCES inventory(id),
            FOREIGN KEY(prescription_id) REFERENCES prescriptions(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_stock_ledger_item ON stock_ledger(inventory_id, id);`,
	`CREATE INDEX IF NOT EXISTS idx_stock_ledger_prescription ON stock_ledger(prescription_id);`,
	`CREATE TRIGGER IF NOT EXISTS stock_ledger_no_update BEFORE UPDATE ON stock_ledger
        BEGIN SELECT RAISE(ABORT, 'stock ledger entries are immutable'); END;`,
	`CREATE TRIGGER IF NOT EXISTS stock_ledger_no_delete BEFORE DELETE ON stock_ledger
        BEGIN SELECT RAISE(ABORT, 'stock ledger entries are immutable'); END;`,
	`CREATE TABLE IF NOT EXISTS drug_interactions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            medicine_a INTEGER NOT NULL,
            medicine_b INTEGER NOT NULL,
            severity TEXT NOT NULL CHECK (severity IN ('MINOR','MODERATE','SEVERE')),
            description TEXT NOT NULL DEFAULT '',
            CHECK (medicine_a < medicine_b),
            UNIQUE(medicine_a, medicine_b),
            FOREIGN KEY(medicine_a) REFERENCES medicines(id),
            FOREIGN KEY(medicine_b) REFERENCES medicines(id)
        );`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS pharmacies (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            address TEXT,
            location TEXT,
            owner_id INTEGER,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS medicines (
            id SERIAL PRIMARY KEY,
            brand_id INTEGER,
            brand_name TEXT NOT NULL,
            type TEXT,
            generic_name TEXT,
            manufacturer TEXT,
            UNIQUE(brand_id)
        );`,
	`CREATE TABLE IF NOT EXISTS inventory (
            id SERIAL PRIMARY KEY,
            pharmacy_id INTEGER NOT NULL REFERENCES pharmacies(id),
            medicine_id INTEGER NOT NULL REFERENCES medicines(id),
            code TEXT NOT NULL DEFAULT '',
            unit TEXT NOT NULL DEFAULT '',
            quantity BIGINT NOT NULL CHECK (quantity >= 0),
            cost_price NUMERIC(12,2) NOT NULL DEFAULT 0,
            sale_price NUMERIC(12,2) NOT NULL DEFAULT 0,
            expiry_date TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS prescriptions (
            id SERIAL PRIMARY KEY,
            pharmacy_id INTEGER NOT NULL REFERENCES pharmacies(id),
            status TEXT NOT NULL CHECK (status IN ('PENDING','DISPENSED','COMPLETED','CANCELLED')),
            prescription_date TIMESTAMPTZ NOT NULL,
            doctor_id BIGINT NOT NULL,
            patient_id BIGINT NOT NULL,
            dispensed_at TIMESTAMPTZ,
            dispensed_by BIGINT,
            completed_at TIMESTAMPTZ,
            cancelled_at TIMESTAMPTZ,
            cancelled_by BIGINT,
            cancellation_reason TEXT,
            times_filled INTEGER NOT NULL DEFAULT 0,
            allowed_refills INTEGER NOT NULL DEFAULT 0 CHECK (allowed_refills >= 0),
            refill_of INTEGER REFERENCES prescriptions(id),
            refilled_by INTEGER REFERENCES prescriptions(id),
            version BIGINT NOT NULL DEFAULT 1,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            CHECK (times_filled >= 0 AND times_filled <= allowed_refills + 1)
        );`,
	`CREATE TABLE IF NOT EXISTS prescription_items (
            id SERIAL PRIMARY KEY,
            prescription_id INTEGER NOT NULL REFERENCES prescriptions(id),
            inventory_id INTEGER NOT NULL REFERENCES inventory(id),
            prescribed_quantity BIGINT NOT NULL CHECK (prescribed_quantity > 0),
            dispensed_quantity BIGINT NOT NULL DEFAULT 0,
            dosage TEXT NOT NULL DEFAULT '',
            frequency TEXT NOT NULL DEFAULT '',
            duration TEXT NOT NULL DEFAULT '',
            UNIQUE(prescription_id, inventory_id)
        );`,
	`CREATE TABLE IF NOT EXISTS stock_ledger (
            id BIGSERIAL PRIMARY KEY,
            pharmacy_id INTEGER NOT NULL REFERENCES pharmacies(id),
            inventory_id INTEGER NOT NULL REFERENCES inventory(id),
            transaction_type TEXT NOT NULL CHECK (transaction_type IN ('SALE','RESTOCK','ADJUSTMENT')),
            quantity BIGINT NOT NULL CHECK (quantity >= 0),
            stock_before BIGINT NOT NULL,
            stock_after BIGINT NOT NULL CHECK (stock_after >= 0),
            prescription_id INTEGER REFERENCES prescriptions(id),
            actor_id BIGINT NOT NULL,
            note TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_stock_ledger_item ON stock_ledger(inventory_id, id);`,
	`CREATE INDEX IF NOT EXISTS idx_stock_ledger_prescription ON stock_ledger(prescription_id);`,
	`CREATE OR REPLACE FUNCTION stock_ledger_immutable() RETURNS trigger AS $$
        BEGIN
            RAISE EXCEPTION 'stock ledger entries are immutable';
        END;
        $$ LANGUAGE plpgsql;`,
	`DROP TRIGGER IF EXISTS stock_ledger_no_change ON stock_ledger;`,
	`CREATE TRIGGER stock_ledger_no_change BEFORE UPDATE OR DELETE ON stock_ledger
        FOR EACH ROW EXECUTE FUNCTION stock_ledger_immutable();`,
	`CREATE TABLE IF NOT EXISTS drug_interactions (
            id SERIAL PRIMARY KEY,
            medicine_a INTEGER NOT NULL REFERENCES medicines(id),
            medicine_b INTEGER NOT NULL REFERENCES medicines(id),
            severity TEXT NOT NULL CHECK (severity IN ('MINOR','MODERATE','SEVERE')),
            description TEXT NOT NULL DEFAULT '',
            CHECK (medicine_a < medicine_b),
            UNIQUE(medicine_a, medicine_b)
        );`,
}
