package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/weighbridge-allocations/internal/engine"
	"github.com/nurpe/weighbridge-allocations/internal/model"
)

// AllocationStore is the persistence collaborator for allocations. The
// engine never calls it; the service persists after each successful engine
// mutation and hydrates the engine store at startup.
type AllocationStore interface {
	Save(ctx context.Context, a model.Allocation) error
	List(ctx context.Context) ([]model.Allocation, error)
	SaveSighting(ctx context.Context, s model.UnallocatedSighting) error
	ListSightings(ctx context.Context, since time.Time) ([]model.UnallocatedSighting, error)
}

type FleetStore interface {
	SaveStockpile(ctx context.Context, p model.Stockpile) error
	ListStockpiles(ctx context.Context) ([]model.Stockpile, error)
	SaveTransporter(ctx context.Context, t model.Transporter) error
	ListTransporters(ctx context.Context) ([]model.Transporter, error)
	SaveOrder(ctx context.Context, o model.Order) error
	ListOrders(ctx context.Context) ([]model.Order, error)
}

type ExcelGenerator interface {
	Generate(report model.ThroughputReport) ([]byte, error)
}

type PDFGenerator interface {
	Generate(doc model.ReconciliationDocument) ([]byte, error)
}

type AllocationService struct {
	eng   *engine.Engine
	store AllocationStore
	fleet FleetStore
	excel ExcelGenerator
	pdf   PDFGenerator
	log   zerolog.Logger
}

func NewAllocationService(eng *engine.Engine, store AllocationStore, fleet FleetStore, excel ExcelGenerator, pdf PDFGenerator, log zerolog.Logger) *AllocationService {
	return &AllocationService{
		eng:   eng,
		store: store,
		fleet: fleet,
		excel: excel,
		pdf:   pdf,
		log:   log,
	}
}

// Hydrate loads persisted state into the engine. Invalid stored records are
// logged and skipped so one bad row does not keep the service down.
func (s *AllocationService) Hydrate(ctx context.Context) error {
	transporters, err := s.fleet.ListTransporters(ctx)
	if err != nil {
		return fmt.Errorf("load transporters: %w", err)
	}
	for _, t := range transporters {
		s.eng.RegisterTransporter(t)
	}

	orders, err := s.fleet.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	for _, o := range orders {
		if err := s.eng.RegisterOrder(o); err != nil {
			s.log.Warn().Err(err).Str("order_ref", o.Ref).Msg("skipping stored order")
		}
	}

	piles, err := s.fleet.ListStockpiles(ctx)
	if err != nil {
		return fmt.Errorf("load stockpiles: %w", err)
	}
	for _, p := range piles {
		if err := s.eng.RegisterStockpile(p); err != nil {
			s.log.Warn().Err(err).Str("stockpile", p.Name).Msg("skipping stored stockpile")
		}
	}

	allocations, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load allocations: %w", err)
	}
	for _, a := range allocations {
		s.eng.LoadAllocation(a)
	}

	window := s.eng.Config().Thresholds.ComplianceWindow
	sightings, err := s.store.ListSightings(ctx, time.Now().Add(-window))
	if err != nil {
		return fmt.Errorf("load sightings: %w", err)
	}
	for _, sg := range sightings {
		s.eng.LoadSighting(sg)
	}

	s.log.Info().
		Int("allocations", len(allocations)).
		Int("stockpiles", len(piles)).
		Int("transporters", len(transporters)).
		Msg("engine hydrated")
	return nil
}

func (s *AllocationService) CreateAllocation(ctx context.Context, input engine.CreateAllocationInput) (model.Allocation, error) {
	a, err := s.eng.CreateAllocation(input)
	if err != nil {
		return model.Allocation{}, err
	}
	if err := s.store.Save(ctx, a); err != nil {
		s.log.Error().Err(err).Str("allocation_id", a.ID.String()).Msg("persist allocation failed")
		return model.Allocation{}, err
	}
	s.log.Info().
		Str("allocation_id", a.ID.String()).
		Str("vehicle_reg", a.VehicleReg).
		Str("order_ref", a.OrderRef).
		Msg("allocation created")
	return a, nil
}

// ImportResult reports a bulk create: rows are validated individually so a
// bad row fails alone instead of aborting the batch.
type ImportResult struct {
	Created []model.Allocation
	Errors  []ImportRowError
}

type ImportRowError struct {
	Row    int
	Reason string
}

func (s *AllocationService) ImportAllocations(ctx context.Context, rows []engine.CreateAllocationInput) (ImportResult, error) {
	var result ImportResult
	for i, row := range rows {
		a, err := s.CreateAllocation(ctx, row)
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{Row: i + 1, Reason: err.Error()})
			continue
		}
		result.Created = append(result.Created, a)
	}
	return result, nil
}

func (s *AllocationService) Allocation(id uuid.UUID) (model.Allocation, error) {
	return s.eng.Allocation(id)
}

func (s *AllocationService) Allocations() []model.Allocation {
	return s.eng.Allocations()
}

func (s *AllocationService) RecordMeasurement(ctx context.Context, allocationID uuid.UUID, site string, grossKg, tareKg float64, ticketRef string) (model.Measurement, error) {
	m, err := s.eng.RecordMeasurement(allocationID, site, grossKg, tareKg, ticketRef)
	if err != nil {
		return model.Measurement{}, err
	}
	if err := s.persistAllocation(ctx, allocationID); err != nil {
		return model.Measurement{}, err
	}
	s.log.Info().
		Str("allocation_id", allocationID.String()).
		Str("site", site).
		Float64("net_kg", m.NetKg).
		Str("ticket_ref", m.TicketRef).
		Msg("measurement recorded")
	return m, nil
}

func (s *AllocationService) ApplyTransition(ctx context.Context, allocationID uuid.UUID, event engine.Event, tctx engine.TransitionContext) (model.Allocation, error) {
	a, err := s.eng.Transition(allocationID, event, tctx)
	if err != nil {
		return model.Allocation{}, err
	}
	if err := s.persistAllocation(ctx, allocationID); err != nil {
		return model.Allocation{}, err
	}
	if a.Status == model.StatusCompleted && a.StockpileID != nil {
		s.persistStockpile(ctx, *a.StockpileID)
	}
	s.log.Info().
		Str("allocation_id", allocationID.String()).
		Str("event", string(event)).
		Str("status", string(a.Status)).
		Msg("transition applied")
	return a, nil
}

// CheckInVehicle handles a gate presentation by registration. matched is
// false when no open allocation exists; the sighting is then persisted for
// the unallocated-vehicle rule and nothing transitions.
func (s *AllocationService) CheckInVehicle(ctx context.Context, vehicleReg, site string) (model.Allocation, bool, error) {
	now := time.Now()
	a, matched, err := s.eng.CheckInVehicle(vehicleReg, site, now)
	if err != nil {
		return model.Allocation{}, matched, err
	}
	if !matched {
		sighting := model.UnallocatedSighting{VehicleReg: model.NormalizeReg(vehicleReg), Site: site, SeenAt: now}
		if err := s.store.SaveSighting(ctx, sighting); err != nil {
			s.log.Error().Err(err).Str("vehicle_reg", sighting.VehicleReg).Msg("persist sighting failed")
		}
		return model.Allocation{}, false, nil
	}
	if err := s.persistAllocation(ctx, a.ID); err != nil {
		return model.Allocation{}, true, err
	}
	return a, true, nil
}

func (s *AllocationService) SetDriverStatus(ctx context.Context, allocationID uuid.UUID, status model.DriverStatus, driverRef *string) error {
	if err := s.eng.SetDriverStatus(allocationID, status, driverRef); err != nil {
		return err
	}
	return s.persistAllocation(ctx, allocationID)
}

func (s *AllocationService) AssignStockpile(ctx context.Context, allocationID, stockpileID uuid.UUID, plannedTonnes float64) error {
	if err := s.eng.AssignStockpile(allocationID, stockpileID, plannedTonnes); err != nil {
		return err
	}
	if err := s.persistAllocation(ctx, allocationID); err != nil {
		return err
	}
	s.persistStockpile(ctx, stockpileID)
	return nil
}

func (s *AllocationService) EvaluateAlerts(now time.Time) []model.Alert {
	return s.eng.EvaluateAlerts(now)
}

func (s *AllocationService) Stockpiles() []model.Stockpile {
	return s.eng.StockpileSnapshot()
}

func (s *AllocationService) CreditStockpile(ctx context.Context, id uuid.UUID, tonnes float64) (engine.CreditResult, error) {
	result, err := s.eng.CreditStockpile(id, tonnes)
	if err != nil {
		return engine.CreditResult{}, err
	}
	s.persistStockpile(ctx, id)
	return result, nil
}

func (s *AllocationService) DebitStockpile(ctx context.Context, id uuid.UUID, tonnes float64) (float64, error) {
	applied, err := s.eng.DebitStockpile(id, tonnes)
	if err != nil {
		return 0, err
	}
	s.persistStockpile(ctx, id)
	return applied, nil
}

func (s *AllocationService) Report(from, to time.Time) model.ThroughputReport {
	return s.eng.Report(from, to)
}

type FileResult struct {
	FileName string
	Content  []byte
}

// ExportReportExcel renders the throughput report for [from, to] as xlsx.
func (s *AllocationService) ExportReportExcel(ctx context.Context, from, to time.Time) (*FileResult, error) {
	from = dateOnly(from)
	to = dateOnly(to)
	if from.After(to) {
		return nil, fmt.Errorf("%w: period start must not be after period end", engine.ErrInvalidInput)
	}

	report := s.eng.Report(from, to.Add(24*time.Hour))
	if report.Summary.TruckCount == 0 {
		return nil, ErrNoData
	}

	content, err := s.excel.Generate(report)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("throughput-%s-%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	return &FileResult{FileName: name, Content: content}, nil
}

// ExportReconciliationPDF renders the audit document for one allocation.
func (s *AllocationService) ExportReconciliationPDF(ctx context.Context, allocationID uuid.UUID) (*FileResult, error) {
	doc, err := s.eng.Reconciliation(allocationID)
	if err != nil {
		return nil, err
	}
	content, err := s.pdf.Generate(doc)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("reconciliation-%s.pdf", sanitizeFileName(doc.Allocation.VehicleReg))
	if name == "reconciliation-.pdf" {
		name = fmt.Sprintf("reconciliation-%s.pdf", doc.Allocation.ID)
	}
	return &FileResult{FileName: name, Content: content}, nil
}

func (s *AllocationService) persistAllocation(ctx context.Context, id uuid.UUID) error {
	a, err := s.eng.Allocation(id)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, a); err != nil {
		s.log.Error().Err(err).Str("allocation_id", id.String()).Msg("persist allocation failed")
		return err
	}
	return nil
}

func (s *AllocationService) persistStockpile(ctx context.Context, id uuid.UUID) {
	for _, p := range s.eng.StockpileSnapshot() {
		if p.ID != id {
			continue
		}
		if err := s.fleet.SaveStockpile(ctx, p); err != nil {
			s.log.Error().Err(err).Str("stockpile", p.Name).Msg("persist stockpile failed")
		}
		return
	}
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sanitizeFileName(input string) string {
	result := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z':
			result = append(result, r)
		case r >= 'A' && r <= 'Z':
			result = append(result, r)
		case r >= '0' && r <= '9':
			result = append(result, r)
		case r == '-', r == '_':
			result = append(result, r)
		default:
			result = append(result, '-')
		}
	}
	return strings.Trim(string(result), "-")
}
