package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

type AllocationRepository struct {
	db *gorm.DB
}

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// Save upserts the allocation row and appends any measurements, journey
// entries, and visits not yet stored. Measurements and journey rows are
// append-only on the engine side, so conflicts are skipped, never updated.
func (r *AllocationRepository) Save(ctx context.Context, a model.Allocation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(`
			INSERT INTO allocations (
				id, vehicle_reg, driver_ref, transporter_id, order_ref, product,
				scheduled_date, status, site_index, phase, driver_status,
				stockpile_id, variance_kg, variance_pct, flagged, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				driver_ref = EXCLUDED.driver_ref,
				status = EXCLUDED.status,
				site_index = EXCLUDED.site_index,
				phase = EXCLUDED.phase,
				driver_status = EXCLUDED.driver_status,
				stockpile_id = EXCLUDED.stockpile_id,
				variance_kg = EXCLUDED.variance_kg,
				variance_pct = EXCLUDED.variance_pct,
				flagged = EXCLUDED.flagged
		`,
			a.ID, a.VehicleReg, a.DriverRef, nilUUID(a.TransporterID), a.OrderRef, a.Product,
			nilTime(a.ScheduledDate), a.Status, a.SiteIndex, a.Phase, a.DriverStatus,
			a.StockpileID, a.VarianceKg, a.VariancePct, a.Flagged, a.CreatedAt,
		).Error
		if err != nil {
			return err
		}

		for _, m := range a.Measurements {
			if err := tx.Exec(`
				INSERT INTO measurements (id, allocation_id, site, gross_kg, tare_kg, net_kg, ticket_ref, captured_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO NOTHING
			`, m.ID, m.AllocationID, m.Site, m.GrossKg, m.TareKg, m.NetKg, m.TicketRef, m.CapturedAt).Error; err != nil {
				return err
			}
		}

		for seq, j := range a.Journey {
			if err := tx.Exec(`
				INSERT INTO journey_entries (allocation_id, seq, site, status, at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (allocation_id, seq) DO NOTHING
			`, a.ID, seq, j.Site, j.Status, j.At).Error; err != nil {
				return err
			}
		}

		for _, v := range a.Visits {
			if err := tx.Exec(`
				INSERT INTO site_visits (allocation_id, site, arrived_at, departed_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (allocation_id, site) DO UPDATE SET
					arrived_at = EXCLUDED.arrived_at,
					departed_at = EXCLUDED.departed_at
			`, a.ID, v.Site, v.ArrivedAt, v.DepartedAt).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// List hydrates every stored allocation with its measurements, journey log,
// and site visits, for engine startup.
func (r *AllocationRepository) List(ctx context.Context) ([]model.Allocation, error) {
	var rows []struct {
		ID            uuid.UUID
		VehicleReg    string
		DriverRef     *string
		TransporterID *uuid.UUID
		OrderRef      string
		Product       string
		ScheduledDate *time.Time
		Status        string
		SiteIndex     int
		Phase         string
		DriverStatus  string
		StockpileID   *uuid.UUID
		VarianceKg    *float64
		VariancePct   *float64
		Flagged       *bool
		CreatedAt     time.Time
	}
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id, vehicle_reg, driver_ref, transporter_id, order_ref, product,
			scheduled_date, status, site_index, phase, driver_status,
			stockpile_id, variance_kg, variance_pct, flagged, created_at
		FROM allocations
		ORDER BY created_at ASC
	`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	allocations := make([]model.Allocation, 0, len(rows))
	for _, row := range rows {
		a := model.Allocation{
			ID:           row.ID,
			VehicleReg:   row.VehicleReg,
			DriverRef:    row.DriverRef,
			OrderRef:     row.OrderRef,
			Product:      row.Product,
			Status:       model.AllocationStatus(row.Status),
			SiteIndex:    row.SiteIndex,
			Phase:        model.Phase(row.Phase),
			DriverStatus: model.DriverStatus(row.DriverStatus),
			StockpileID:  row.StockpileID,
			VarianceKg:   row.VarianceKg,
			VariancePct:  row.VariancePct,
			Flagged:      row.Flagged,
			CreatedAt:    row.CreatedAt,
		}
		if row.TransporterID != nil {
			a.TransporterID = *row.TransporterID
		}
		if row.ScheduledDate != nil {
			a.ScheduledDate = *row.ScheduledDate
		}

		if err := r.loadDetails(ctx, &a); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, nil
}

func (r *AllocationRepository) loadDetails(ctx context.Context, a *model.Allocation) error {
	if err := r.db.WithContext(ctx).Raw(`
		SELECT id, allocation_id, site, gross_kg, tare_kg, net_kg, ticket_ref, captured_at
		FROM measurements
		WHERE allocation_id = ?
		ORDER BY captured_at ASC
	`, a.ID).Scan(&a.Measurements).Error; err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Raw(`
		SELECT site, status, at
		FROM journey_entries
		WHERE allocation_id = ?
		ORDER BY seq ASC
	`, a.ID).Scan(&a.Journey).Error; err != nil {
		return err
	}

	return r.db.WithContext(ctx).Raw(`
		SELECT site, arrived_at, departed_at
		FROM site_visits
		WHERE allocation_id = ?
		ORDER BY site ASC
	`, a.ID).Scan(&a.Visits).Error
}

func (r *AllocationRepository) SaveSighting(ctx context.Context, s model.UnallocatedSighting) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO unallocated_sightings (vehicle_reg, site, seen_at)
		VALUES (?, ?, ?)
	`, s.VehicleReg, s.Site, s.SeenAt).Error
}

func (r *AllocationRepository) ListSightings(ctx context.Context, since time.Time) ([]model.UnallocatedSighting, error) {
	var sightings []model.UnallocatedSighting
	err := r.db.WithContext(ctx).Raw(`
		SELECT vehicle_reg, site, seen_at
		FROM unallocated_sightings
		WHERE seen_at >= ?
		ORDER BY seen_at ASC
	`, since).Scan(&sightings).Error
	if err != nil {
		return nil, err
	}
	return sightings, nil
}

func nilUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nilTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
