package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

// Engine owns the allocation lifecycle, the stockpile ledger, and the alert
// evaluation pass. All operations are short, synchronous, in-memory record
// work; persistence and notification delivery belong to the caller.
type Engine struct {
	cfg   Config
	store *Store
	sm    stateMachine
	log   zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine configuration: %w", err)
	}
	return &Engine{
		cfg:   cfg,
		store: NewStore(),
		sm:    stateMachine{cfg: cfg},
		log:   log,
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

type CreateAllocationInput struct {
	VehicleReg    string
	OrderRef      string
	TransporterID uuid.UUID
	Product       string
	ScheduledDate time.Time
	DriverRef     *string
}

func (e *Engine) CreateAllocation(input CreateAllocationInput) (model.Allocation, error) {
	reg := model.NormalizeReg(input.VehicleReg)
	if reg == "" {
		return model.Allocation{}, fmt.Errorf("%w: vehicle registration is required", ErrInvalidInput)
	}
	if input.OrderRef == "" {
		return model.Allocation{}, fmt.Errorf("%w: order reference is required", ErrInvalidInput)
	}
	if input.Product == "" {
		if order, err := e.store.GetOrder(input.OrderRef); err == nil {
			input.Product = order.Product
		}
	}

	a := &model.Allocation{
		ID:            uuid.New(),
		VehicleReg:    reg,
		DriverRef:     input.DriverRef,
		TransporterID: input.TransporterID,
		OrderRef:      input.OrderRef,
		Product:       input.Product,
		ScheduledDate: input.ScheduledDate,
		Status:        model.StatusScheduled,
		Phase:         model.PhaseInTransit,
		DriverStatus:  model.DriverPendingVerification,
		CreatedAt:     time.Now(),
	}
	e.store.PutAllocation(a)
	return cloneAllocation(a), nil
}

// LoadAllocation seeds the store with a previously persisted record,
// bypassing creation defaults. Used at startup hydration.
func (e *Engine) LoadAllocation(a model.Allocation) {
	stored := cloneAllocation(&a)
	e.store.PutAllocation(&stored)
}

// LoadSighting seeds a persisted unallocated sighting at startup.
func (e *Engine) LoadSighting(s model.UnallocatedSighting) {
	e.store.AddSighting(s)
}

func (e *Engine) Allocation(id uuid.UUID) (model.Allocation, error) {
	return e.store.GetAllocation(id)
}

func (e *Engine) Allocations() []model.Allocation {
	return e.store.Snapshot().Allocations
}

// RecordMeasurement captures a weighbridge reading. Net is always computed
// from gross and tare, never accepted from the caller. When the reading
// gives the allocation both an origin and a downstream net, reconciliation
// runs and its verdict is stored on the allocation.
func (e *Engine) RecordMeasurement(allocationID uuid.UUID, site string, grossKg, tareKg float64, ticketRef string) (model.Measurement, error) {
	if !e.onRoute(site) {
		return model.Measurement{}, fmt.Errorf("%w: site %q is not on the configured route", ErrInvalidInput, site)
	}
	if tareKg < 0 || grossKg < tareKg {
		return model.Measurement{}, fmt.Errorf("%w: gross %.0f kg must be at least tare %.0f kg", ErrInvalidInput, grossKg, tareKg)
	}

	m := model.Measurement{
		ID:           uuid.New(),
		AllocationID: allocationID,
		Site:         site,
		GrossKg:      grossKg,
		TareKg:       tareKg,
		NetKg:        grossKg - tareKg,
		TicketRef:    ticketRef,
		CapturedAt:   time.Now(),
	}

	err := e.store.MutateAllocation(allocationID, func(a *model.Allocation) error {
		a.Measurements = append(a.Measurements, m)
		e.reconcileLatest(a)
		return nil
	})
	if err != nil {
		return model.Measurement{}, err
	}
	return m, nil
}

func (e *Engine) reconcileLatest(a *model.Allocation) {
	origin := a.MeasurementAt(e.cfg.Route[0])
	dest := latestDownstreamMeasurement(a, e.cfg.Route[0])
	if origin == nil || dest == nil {
		return
	}
	rec := Reconcile(*origin, *dest, e.cfg.Thresholds.VarianceWarnPct)
	a.VarianceKg = &rec.VarianceKg
	a.VariancePct = &rec.VariancePct
	a.Flagged = &rec.Flagged
}

// Transition applies one lifecycle event. Completion with an assigned
// destination stockpile credits the ledger with the final net tonnage;
// a clamped overflow is logged for audit, not rejected.
func (e *Engine) Transition(allocationID uuid.UUID, event Event, ctx TransitionContext) (model.Allocation, error) {
	var completedTonnes float64
	var stockpileID *uuid.UUID

	err := e.store.MutateAllocation(allocationID, func(a *model.Allocation) error {
		if err := e.sm.apply(a, event, ctx); err != nil {
			return err
		}
		if a.Status == model.StatusCompleted && a.StockpileID != nil {
			if net, ok := finalNetTonnes(a); ok {
				completedTonnes = net
				stockpileID = cloneUUID(a.StockpileID)
			}
		}
		return nil
	})
	if err != nil {
		return model.Allocation{}, err
	}

	if stockpileID != nil && completedTonnes > 0 {
		if _, err := e.CreditStockpile(*stockpileID, completedTonnes); err != nil {
			e.log.Error().Err(err).
				Str("allocation_id", allocationID.String()).
				Str("stockpile_id", stockpileID.String()).
				Msg("stockpile credit on completion failed")
		}
	}

	return e.store.GetAllocation(allocationID)
}

// CheckInVehicle resolves a gate presentation by registration. With no open
// allocation the sighting is recorded for the rule engine and no state
// changes; otherwise the check-in event is applied.
func (e *Engine) CheckInVehicle(vehicleReg, site string, at time.Time) (model.Allocation, bool, error) {
	reg := model.NormalizeReg(vehicleReg)
	if reg == "" {
		return model.Allocation{}, false, fmt.Errorf("%w: vehicle registration is required", ErrInvalidInput)
	}
	if at.IsZero() {
		at = time.Now()
	}

	id, ok := e.store.OpenAllocationID(reg)
	if !ok {
		e.store.AddSighting(model.UnallocatedSighting{VehicleReg: reg, Site: site, SeenAt: at})
		e.log.Warn().Str("vehicle_reg", reg).Str("site", site).Msg("check-in with no open allocation")
		return model.Allocation{}, false, nil
	}

	a, err := e.Transition(id, EventCheckIn, TransitionContext{Site: site, At: at})
	if err != nil {
		return model.Allocation{}, true, err
	}
	return a, true, nil
}

// SetDriverStatus records the external verification service's verdict.
func (e *Engine) SetDriverStatus(allocationID uuid.UUID, status model.DriverStatus, driverRef *string) error {
	switch status {
	case model.DriverPendingVerification, model.DriverVerified, model.DriverPendingPermit, model.DriverReadyForDispatch:
	default:
		return fmt.Errorf("%w: unknown driver status %q", ErrInvalidInput, status)
	}
	return e.store.MutateAllocation(allocationID, func(a *model.Allocation) error {
		a.DriverStatus = status
		if driverRef != nil {
			a.DriverRef = driverRef
		}
		return nil
	})
}

// AssignStockpile sets the destination stockpile for a live allocation and
// counts its planned tonnage as pending inbound.
func (e *Engine) AssignStockpile(allocationID, stockpileID uuid.UUID, plannedTonnes float64) error {
	err := e.store.MutateAllocation(allocationID, func(a *model.Allocation) error {
		if a.Status.Terminal() {
			return fmt.Errorf("%w: allocation is %s", ErrInvalidInput, a.Status)
		}
		a.StockpileID = &stockpileID
		return nil
	})
	if err != nil {
		return err
	}
	if plannedTonnes <= 0 {
		return nil
	}
	return e.store.MutateStockpile(stockpileID, func(p *model.Stockpile) error {
		p.PendingInboundTonnes += plannedTonnes
		return nil
	})
}

func (e *Engine) RegisterStockpile(p model.Stockpile) error {
	if p.CapacityTonnes <= 0 {
		return fmt.Errorf("%w: stockpile %q capacity must be positive, got %.3f", ErrInvalidInput, p.Name, p.CapacityTonnes)
	}
	if p.CurrentTonnes < 0 || p.CurrentTonnes > p.CapacityTonnes {
		return fmt.Errorf("%w: stockpile %q current tonnage %.3f outside [0, %.3f]", ErrInvalidInput, p.Name, p.CurrentTonnes, p.CapacityTonnes)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	e.store.PutStockpile(&p)
	return nil
}

func (e *Engine) RegisterTransporter(t model.Transporter) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	e.store.PutTransporter(&t)
}

func (e *Engine) RegisterOrder(o model.Order) error {
	if o.Ref == "" {
		return fmt.Errorf("%w: order reference is required", ErrInvalidInput)
	}
	e.store.PutOrder(&o)
	return nil
}

func (e *Engine) CreditStockpile(id uuid.UUID, tonnes float64) (CreditResult, error) {
	var result CreditResult
	err := e.store.MutateStockpile(id, func(p *model.Stockpile) error {
		r, err := credit(p, tonnes)
		if err != nil {
			return err
		}
		result = r
		if r.OverflowTonnes > 0 {
			e.log.Warn().
				Str("stockpile", p.Name).
				Float64("requested_tonnes", tonnes).
				Float64("overflow_tonnes", r.OverflowTonnes).
				Msg("stockpile credit clamped at capacity")
		}
		return nil
	})
	return result, err
}

func (e *Engine) DebitStockpile(id uuid.UUID, tonnes float64) (float64, error) {
	var applied float64
	err := e.store.MutateStockpile(id, func(p *model.Stockpile) error {
		a, err := debit(p, tonnes)
		if err != nil {
			return err
		}
		applied = a
		return nil
	})
	return applied, err
}

func (e *Engine) StockpileSnapshot() []model.Stockpile {
	return e.store.Snapshot().Stockpiles
}

// EvaluateAlerts runs the rule catalog against a consistent snapshot.
func (e *Engine) EvaluateAlerts(now time.Time) []model.Alert {
	if now.IsZero() {
		now = time.Now()
	}
	return EvaluateAlerts(e.store.Snapshot(), e.cfg, now)
}

// Report assembles the export-ready throughput aggregate for [from, to).
func (e *Engine) Report(from, to time.Time) model.ThroughputReport {
	snap := e.store.Snapshot()
	return model.ThroughputReport{
		Summary:          Summarize(snap.Allocations, from, to),
		ByProduct:        BreakdownByProduct(snap.Allocations, from, to),
		ByTransporter:    BreakdownByTransporter(snap.Allocations, snap.Transporters, from, to),
		DailyBuckets:     DailyHistogram(snap.Allocations, from, to),
		HourlyBuckets:    HourlyHistogram(snap.Allocations, from, to),
		StockpileState:   snap.Stockpiles,
		FleetUtilisation: AggregateUtilisation(snap.Stockpiles),
	}
}

// Reconciliation builds the printable audit document for one allocation.
func (e *Engine) Reconciliation(allocationID uuid.UUID) (model.ReconciliationDocument, error) {
	a, err := e.store.GetAllocation(allocationID)
	if err != nil {
		return model.ReconciliationDocument{}, err
	}

	doc := model.ReconciliationDocument{Allocation: a}
	if origin := a.MeasurementAt(e.cfg.Route[0]); origin != nil {
		doc.Origin = origin
		if dest := latestDownstreamMeasurement(&a, e.cfg.Route[0]); dest != nil {
			doc.Destination = dest
			rec := Reconcile(*origin, *dest, e.cfg.Thresholds.VarianceWarnPct)
			doc.VarianceKg = rec.VarianceKg
			doc.VariancePct = rec.VariancePct
			doc.Flagged = rec.Flagged
		}
	}

	for _, t := range e.store.Snapshot().Transporters {
		if t.ID == a.TransporterID {
			tr := t
			doc.Transporter = &tr
			break
		}
	}
	return doc, nil
}

func (e *Engine) onRoute(site string) bool {
	for _, s := range e.cfg.Route {
		if s == site {
			return true
		}
	}
	return false
}
