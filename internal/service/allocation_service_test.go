package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/weighbridge-allocations/internal/engine"
	"github.com/nurpe/weighbridge-allocations/internal/model"
)

type fakeAllocationStore struct {
	saved     map[string]model.Allocation
	sightings []model.UnallocatedSighting
	saveErr   error
}

func newFakeAllocationStore() *fakeAllocationStore {
	return &fakeAllocationStore{saved: make(map[string]model.Allocation)}
}

func (f *fakeAllocationStore) Save(_ context.Context, a model.Allocation) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[a.ID.String()] = a
	return nil
}

func (f *fakeAllocationStore) List(context.Context) ([]model.Allocation, error) {
	out := make([]model.Allocation, 0, len(f.saved))
	for _, a := range f.saved {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAllocationStore) SaveSighting(_ context.Context, s model.UnallocatedSighting) error {
	f.sightings = append(f.sightings, s)
	return nil
}

func (f *fakeAllocationStore) ListSightings(context.Context, time.Time) ([]model.UnallocatedSighting, error) {
	return f.sightings, nil
}

type fakeFleetStore struct {
	stockpiles   map[string]model.Stockpile
	transporters []model.Transporter
	orders       []model.Order
}

func newFakeFleetStore() *fakeFleetStore {
	return &fakeFleetStore{stockpiles: make(map[string]model.Stockpile)}
}

func (f *fakeFleetStore) SaveStockpile(_ context.Context, p model.Stockpile) error {
	f.stockpiles[p.ID.String()] = p
	return nil
}

func (f *fakeFleetStore) ListStockpiles(context.Context) ([]model.Stockpile, error) {
	out := make([]model.Stockpile, 0, len(f.stockpiles))
	for _, p := range f.stockpiles {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeFleetStore) SaveTransporter(_ context.Context, t model.Transporter) error {
	f.transporters = append(f.transporters, t)
	return nil
}

func (f *fakeFleetStore) ListTransporters(context.Context) ([]model.Transporter, error) {
	return f.transporters, nil
}

func (f *fakeFleetStore) SaveOrder(_ context.Context, o model.Order) error {
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeFleetStore) ListOrders(context.Context) ([]model.Order, error) {
	return f.orders, nil
}

type fakeExcel struct{ content []byte }

func (f *fakeExcel) Generate(model.ThroughputReport) ([]byte, error) { return f.content, nil }

type fakePDF struct{ content []byte }

func (f *fakePDF) Generate(model.ReconciliationDocument) ([]byte, error) { return f.content, nil }

func testEngineConfig() engine.Config {
	return engine.Config{
		Route: []string{"mine", "port"},
		Thresholds: engine.Thresholds{
			VarianceWarnPct:              2.0,
			VarianceCriticalPct:          5.0,
			StagingWarn:                  6 * time.Hour,
			StagingEscalated:             12 * time.Hour,
			StagingCritical:              24 * time.Hour,
			StockpileWarnUtilisation:     0.85,
			StockpileCriticalUtilisation: 0.95,
			ComplianceMinRate:            0.80,
			ComplianceWindow:             30 * 24 * time.Hour,
			ShortfallWindow:              12 * time.Hour,
		},
		Rules: engine.Rules{
			Staging:               true,
			Variance:              true,
			UnallocatedVehicle:    true,
			StockpileCapacity:     true,
			TruckShortfall:        true,
			TransporterCompliance: true,
		},
	}
}

func newTestService(t *testing.T) (*AllocationService, *fakeAllocationStore, *fakeFleetStore) {
	t.Helper()
	eng, err := engine.New(testEngineConfig(), zerolog.Nop())
	require.NoError(t, err)
	store := newFakeAllocationStore()
	fleet := newFakeFleetStore()
	svc := NewAllocationService(eng, store, fleet, &fakeExcel{content: []byte("xlsx")}, &fakePDF{content: []byte("pdf")}, zerolog.Nop())
	return svc, store, fleet
}

func TestCreateAllocationPersists(t *testing.T) {
	svc, store, _ := newTestService(t)

	a, err := svc.CreateAllocation(context.Background(), engine.CreateAllocationInput{
		VehicleReg: "abc 123 gp",
		OrderRef:   "ORD-1",
		Product:    "chrome ore",
	})
	require.NoError(t, err)

	saved, ok := store.saved[a.ID.String()]
	require.True(t, ok)
	assert.Equal(t, "ABC123GP", saved.VehicleReg)
}

func TestCreateAllocationSurfacesPersistenceFailure(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.saveErr = errors.New("connection refused")

	_, err := svc.CreateAllocation(context.Background(), engine.CreateAllocationInput{
		VehicleReg: "ABC123GP",
		OrderRef:   "ORD-1",
	})
	assert.Error(t, err)
}

func TestImportAllocationsReportsBadRowsIndividually(t *testing.T) {
	svc, _, _ := newTestService(t)

	result, err := svc.ImportAllocations(context.Background(), []engine.CreateAllocationInput{
		{VehicleReg: "AAA111GP", OrderRef: "ORD-1"},
		{VehicleReg: "", OrderRef: "ORD-1"},
		{VehicleReg: "BBB222GP", OrderRef: "ORD-1"},
	})
	require.NoError(t, err)

	assert.Len(t, result.Created, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Reason, "registration")
}

func TestTransitionPersistsJourney(t *testing.T) {
	svc, store, _ := newTestService(t)

	a, err := svc.CreateAllocation(context.Background(), engine.CreateAllocationInput{
		VehicleReg: "ABC123GP",
		OrderRef:   "ORD-1",
	})
	require.NoError(t, err)

	updated, err := svc.ApplyTransition(context.Background(), a.ID, engine.EventCheckIn, engine.TransitionContext{Site: "mine"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusArrived, updated.Status)

	saved := store.saved[a.ID.String()]
	require.Len(t, saved.Journey, 1)
	assert.Equal(t, model.StatusArrived, saved.Journey[0].Status)
}

func TestCheckInMissPersistsSighting(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, matched, err := svc.CheckInVehicle(context.Background(), "ghost 1", "mine")
	require.NoError(t, err)
	assert.False(t, matched)
	require.Len(t, store.sightings, 1)
	assert.Equal(t, "GHOST1", store.sightings[0].VehicleReg)
}

func TestHydrateRestoresEngineState(t *testing.T) {
	first, store, fleet := newTestService(t)

	a, err := first.CreateAllocation(context.Background(), engine.CreateAllocationInput{
		VehicleReg: "ABC123GP",
		OrderRef:   "ORD-1",
	})
	require.NoError(t, err)
	_, err = first.ApplyTransition(context.Background(), a.ID, engine.EventCheckIn, engine.TransitionContext{Site: "mine"})
	require.NoError(t, err)

	eng, err := engine.New(testEngineConfig(), zerolog.Nop())
	require.NoError(t, err)
	second := NewAllocationService(eng, store, fleet, &fakeExcel{}, &fakePDF{}, zerolog.Nop())
	require.NoError(t, second.Hydrate(context.Background()))

	restored, err := second.Allocation(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusArrived, restored.Status)
	require.Len(t, restored.Journey, 1)
}

func TestReportExposesHourlyBucketsAndFleetUtilisation(t *testing.T) {
	svc, _, fleet := newTestService(t)
	fleet.stockpiles["seed"] = model.Stockpile{ID: uuid.New(), Name: "P1", CapacityTonnes: 1000, CurrentTonnes: 850}
	require.NoError(t, svc.Hydrate(context.Background()))

	scheduled := time.Date(2026, 8, 10, 14, 20, 0, 0, time.UTC)
	_, err := svc.CreateAllocation(context.Background(), engine.CreateAllocationInput{
		VehicleReg:    "ABC123GP",
		OrderRef:      "ORD-1",
		ScheduledDate: scheduled,
	})
	require.NoError(t, err)

	report := svc.Report(scheduled.Add(-time.Hour), scheduled.Add(time.Hour))
	require.Len(t, report.HourlyBuckets, 1)
	assert.Equal(t, "14:00", report.HourlyBuckets[0].Label)
	assert.InDelta(t, 0.85, report.FleetUtilisation, 1e-9)
}

func TestExportReportExcelNoData(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ExportReportExcel(context.Background(), time.Now().AddDate(0, 0, -7), time.Now())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestExportReportExcelFileName(t *testing.T) {
	svc, _, _ := newTestService(t)

	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	_, err := svc.CreateAllocation(context.Background(), engine.CreateAllocationInput{
		VehicleReg:    "ABC123GP",
		OrderRef:      "ORD-1",
		ScheduledDate: day.Add(9 * time.Hour),
	})
	require.NoError(t, err)

	file, err := svc.ExportReportExcel(context.Background(), day, day)
	require.NoError(t, err)
	assert.Equal(t, "throughput-20260810-20260810.xlsx", file.FileName)
	assert.Equal(t, []byte("xlsx"), file.Content)
}

func TestExportReportExcelRejectsInvertedPeriod(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ExportReportExcel(context.Background(), time.Now(), time.Now().AddDate(0, 0, -1))
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestExportReconciliationPDFFileName(t *testing.T) {
	svc, _, _ := newTestService(t)

	a, err := svc.CreateAllocation(context.Background(), engine.CreateAllocationInput{
		VehicleReg: "ABC 123 GP",
		OrderRef:   "ORD-1",
	})
	require.NoError(t, err)

	file, err := svc.ExportReconciliationPDF(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "reconciliation-ABC123GP.pdf", file.FileName)
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "ABC-123-GP", sanitizeFileName("ABC/123 GP"))
	assert.Equal(t, "", sanitizeFileName("///"))
}
