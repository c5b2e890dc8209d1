package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

// FleetRepository persists the slow-moving reference state: stockpiles,
// transporters, and orders.
type FleetRepository struct {
	db *gorm.DB
}

func NewFleetRepository(db *gorm.DB) *FleetRepository {
	return &FleetRepository{db: db}
}

func (r *FleetRepository) SaveStockpile(ctx context.Context, p model.Stockpile) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO stockpiles (id, name, product, capacity_tonnes, current_tonnes, pending_inbound_tonnes, vessel_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			current_tonnes = EXCLUDED.current_tonnes,
			pending_inbound_tonnes = EXCLUDED.pending_inbound_tonnes,
			vessel_ref = EXCLUDED.vessel_ref
	`, p.ID, p.Name, p.Product, p.CapacityTonnes, p.CurrentTonnes, p.PendingInboundTonnes, p.VesselRef).Error
}

func (r *FleetRepository) ListStockpiles(ctx context.Context) ([]model.Stockpile, error) {
	var piles []model.Stockpile
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, name, product, capacity_tonnes, current_tonnes, pending_inbound_tonnes, vessel_ref
		FROM stockpiles
		ORDER BY name ASC
	`).Scan(&piles).Error
	if err != nil {
		return nil, err
	}
	return piles, nil
}

func (r *FleetRepository) SaveTransporter(ctx context.Context, t model.Transporter) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO transporters (id, name, active)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active
	`, t.ID, t.Name, t.Active).Error
}

func (r *FleetRepository) ListTransporters(ctx context.Context) ([]model.Transporter, error) {
	var transporters []model.Transporter
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, name, active
		FROM transporters
		ORDER BY name ASC
	`).Scan(&transporters).Error
	if err != nil {
		return nil, err
	}
	return transporters, nil
}

func (r *FleetRepository) SaveOrder(ctx context.Context, o model.Order) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO orders (ref, product, planned_trucks, planned_tonnes, deadline)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ref) DO UPDATE SET
			product = EXCLUDED.product,
			planned_trucks = EXCLUDED.planned_trucks,
			planned_tonnes = EXCLUDED.planned_tonnes,
			deadline = EXCLUDED.deadline
	`, o.Ref, o.Product, o.PlannedTrucks, o.PlannedTonnes, nilTime(o.Deadline)).Error
}

func (r *FleetRepository) ListOrders(ctx context.Context) ([]model.Order, error) {
	var rows []struct {
		Ref           string
		Product       string
		PlannedTrucks int
		PlannedTonnes float64
		Deadline      *time.Time
	}
	err := r.db.WithContext(ctx).Raw(`
		SELECT ref, product, planned_trucks, planned_tonnes, deadline
		FROM orders
		ORDER BY ref ASC
	`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(rows))
	for _, row := range rows {
		o := model.Order{
			Ref:           row.Ref,
			Product:       row.Product,
			PlannedTrucks: row.PlannedTrucks,
			PlannedTonnes: row.PlannedTonnes,
		}
		if row.Deadline != nil {
			o.Deadline = *row.Deadline
		}
		orders = append(orders, o)
	}
	return orders, nil
}
