package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS transporters (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(128) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS orders (
		ref VARCHAR(64) PRIMARY KEY,
		product VARCHAR(128) NOT NULL,
		planned_trucks INT NOT NULL DEFAULT 0,
		planned_tonnes NUMERIC(18,3) NOT NULL DEFAULT 0,
		deadline TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS stockpiles (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(128) NOT NULL,
		product VARCHAR(128) NOT NULL,
		capacity_tonnes NUMERIC(18,3) NOT NULL,
		current_tonnes NUMERIC(18,3) NOT NULL DEFAULT 0,
		pending_inbound_tonnes NUMERIC(18,3) NOT NULL DEFAULT 0,
		vessel_ref VARCHAR(64)
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_stockpile_name ON stockpiles (name);`,
	`CREATE TABLE IF NOT EXISTS allocations (
		id UUID PRIMARY KEY,
		vehicle_reg VARCHAR(32) NOT NULL,
		driver_ref VARCHAR(64),
		transporter_id UUID REFERENCES transporters(id),
		order_ref VARCHAR(64) NOT NULL,
		product VARCHAR(128) NOT NULL DEFAULT '',
		scheduled_date TIMESTAMPTZ,
		status VARCHAR(32) NOT NULL,
		site_index INT NOT NULL DEFAULT 0,
		phase VARCHAR(16) NOT NULL,
		driver_status VARCHAR(32) NOT NULL,
		stockpile_id UUID REFERENCES stockpiles(id),
		variance_kg NUMERIC(18,3),
		variance_pct NUMERIC(9,4),
		flagged BOOLEAN,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_allocations_vehicle_reg ON allocations (vehicle_reg);`,
	`CREATE INDEX IF NOT EXISTS idx_allocations_order_ref ON allocations (order_ref);`,
	`CREATE INDEX IF NOT EXISTS idx_allocations_status ON allocations (status);`,
	`CREATE TABLE IF NOT EXISTS measurements (
		id UUID PRIMARY KEY,
		allocation_id UUID NOT NULL REFERENCES allocations(id) ON DELETE CASCADE,
		site VARCHAR(64) NOT NULL,
		gross_kg NUMERIC(18,3) NOT NULL,
		tare_kg NUMERIC(18,3) NOT NULL,
		net_kg NUMERIC(18,3) NOT NULL,
		ticket_ref VARCHAR(64),
		captured_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_measurements_allocation_id ON measurements (allocation_id);`,
	`CREATE TABLE IF NOT EXISTS journey_entries (
		allocation_id UUID NOT NULL REFERENCES allocations(id) ON DELETE CASCADE,
		seq INT NOT NULL,
		site VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (allocation_id, seq)
	);`,
	`CREATE TABLE IF NOT EXISTS site_visits (
		allocation_id UUID NOT NULL REFERENCES allocations(id) ON DELETE CASCADE,
		site VARCHAR(64) NOT NULL,
		arrived_at TIMESTAMPTZ,
		departed_at TIMESTAMPTZ,
		PRIMARY KEY (allocation_id, site)
	);`,
	`CREATE TABLE IF NOT EXISTS unallocated_sightings (
		id BIGSERIAL PRIMARY KEY,
		vehicle_reg VARCHAR(32) NOT NULL,
		site VARCHAR(64) NOT NULL,
		seen_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sightings_vehicle_reg ON unallocated_sightings (vehicle_reg);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
