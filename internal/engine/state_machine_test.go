package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

func testConfig() Config {
	return Config{
		Route: []string{"mine", "junction", "port"},
		Thresholds: Thresholds{
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
		Rules: Rules{
			Staging:               true,
			Variance:              true,
			UnallocatedVehicle:    true,
			StockpileCapacity:     true,
			TruckShortfall:        true,
			TransporterCompliance: true,
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testConfig(), zerolog.Nop())
	require.NoError(t, err)
	return e
}

func newTestAllocation(t *testing.T, e *Engine) model.Allocation {
	t.Helper()
	a, err := e.CreateAllocation(CreateAllocationInput{
		VehicleReg: "ABC 123 GP",
		OrderRef:   "ORD-77",
		Product:    "chrome ore",
	})
	require.NoError(t, err)
	return a
}

// passSite drives the allocation through check-in, weigh, and dispatch at
// its current site, recording a reading with the given net weight.
func passSite(t *testing.T, e *Engine, a model.Allocation, site string, netKg float64) model.Allocation {
	t.Helper()

	updated, err := e.Transition(a.ID, EventCheckIn, TransitionContext{Site: site})
	require.NoError(t, err)
	updated, err = e.Transition(a.ID, EventBeginWeigh, TransitionContext{})
	require.NoError(t, err)
	_, err = e.RecordMeasurement(a.ID, site, netKg+12000, 12000, "TK-"+site)
	require.NoError(t, err)
	updated, err = e.Transition(a.ID, EventWeighComplete, TransitionContext{})
	require.NoError(t, err)

	require.NoError(t, e.SetDriverStatus(a.ID, model.DriverReadyForDispatch, nil))
	updated, err = e.Transition(a.ID, EventDispatch, TransitionContext{})
	require.NoError(t, err)
	return updated
}

func TestCreateAllocationNormalizesRegistration(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)

	assert.Equal(t, "ABC123GP", a.VehicleReg)
	assert.Equal(t, model.StatusScheduled, a.Status)
	assert.Equal(t, 0, a.SiteIndex)
	assert.Equal(t, model.DriverPendingVerification, a.DriverStatus)
}

func TestCreateAllocationInheritsOrderProduct(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterOrder(model.Order{Ref: "ORD-55", Product: "manganese", PlannedTrucks: 2}))

	a, err := e.CreateAllocation(CreateAllocationInput{VehicleReg: "XYZ987GP", OrderRef: "ORD-55"})
	require.NoError(t, err)
	assert.Equal(t, "manganese", a.Product)

	// An explicit product always wins over the order's.
	b, err := e.CreateAllocation(CreateAllocationInput{VehicleReg: "XYZ988GP", OrderRef: "ORD-55", Product: "chrome ore"})
	require.NoError(t, err)
	assert.Equal(t, "chrome ore", b.Product)
}

func TestFullJourneyAcrossThreeSites(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)

	a = passSite(t, e, a, "mine", 38880)
	assert.Equal(t, model.StatusInTransit, a.Status)
	assert.Equal(t, 1, a.SiteIndex)
	assert.Equal(t, model.PhaseInTransit, a.Phase)

	a = passSite(t, e, a, "junction", 38800)
	assert.Equal(t, model.StatusInTransit, a.Status)
	assert.Equal(t, 2, a.SiteIndex)

	a = passSite(t, e, a, "port", 38650)
	assert.Equal(t, model.StatusCompleted, a.Status)

	// Journey log: one entry per successful transition, in order.
	statuses := make([]model.AllocationStatus, 0, len(a.Journey))
	for _, j := range a.Journey {
		statuses = append(statuses, j.Status)
	}
	assert.Equal(t, []model.AllocationStatus{
		model.StatusArrived, model.StatusWeighing, model.StatusReadyForDispatch, model.StatusInTransit,
		model.StatusArrived, model.StatusWeighing, model.StatusReadyForDispatch, model.StatusInTransit,
		model.StatusArrived, model.StatusWeighing, model.StatusReadyForDispatch, model.StatusCompleted,
	}, statuses)

	// Each site visit carries both timestamps.
	require.Len(t, a.Visits, 3)
	for _, v := range a.Visits {
		assert.NotNil(t, v.ArrivedAt, v.Site)
		assert.NotNil(t, v.DepartedAt, v.Site)
	}
}

func TestCheckInAtWrongSiteRejected(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)

	_, err := e.Transition(a.ID, EventCheckIn, TransitionContext{Site: "port"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Contains(t, tErr.Reason, "expected at mine")
}

func TestIllegalTransitionNamesStateAndEvent(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)

	_, err := e.Transition(a.ID, EventBeginWeigh, TransitionContext{})
	require.Error(t, err)

	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, model.StatusScheduled, tErr.Status)
	assert.Equal(t, EventBeginWeigh, tErr.Event)
	assert.Contains(t, err.Error(), "begin_weigh")
	assert.Contains(t, err.Error(), "SCHEDULED")
}

func TestWeighCompleteRequiresMeasurement(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)

	_, err := e.Transition(a.ID, EventCheckIn, TransitionContext{})
	require.NoError(t, err)
	_, err = e.Transition(a.ID, EventBeginWeigh, TransitionContext{})
	require.NoError(t, err)

	_, err = e.Transition(a.ID, EventWeighComplete, TransitionContext{})
	assert.ErrorIs(t, err, ErrMissingMeasurement)

	_, err = e.RecordMeasurement(a.ID, "mine", 50880, 12000, "TK-1")
	require.NoError(t, err)
	updated, err := e.Transition(a.ID, EventWeighComplete, TransitionContext{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusReadyForDispatch, updated.Status)
}

func TestDispatchHoldReasonsAreDistinct(t *testing.T) {
	tests := []struct {
		name       string
		status     model.DriverStatus
		wantReason string
	}{
		{"pending verification", model.DriverPendingVerification, "pending verification"},
		{"verified but not cleared", model.DriverVerified, "not yet cleared"},
		{"pending permit", model.DriverPendingPermit, "pending permit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			a := newTestAllocation(t, e)
			_, err := e.Transition(a.ID, EventCheckIn, TransitionContext{})
			require.NoError(t, err)
			require.NoError(t, e.SetDriverStatus(a.ID, tt.status, nil))

			_, err = e.Transition(a.ID, EventDispatch, TransitionContext{})
			require.Error(t, err)

			var tErr *TransitionError
			require.ErrorAs(t, err, &tErr)
			assert.Contains(t, tErr.Reason, tt.wantReason)
		})
	}
}

func TestDispatchAfterCompletionReportsAlreadyDeparted(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)
	a = passSite(t, e, a, "mine", 38880)
	a = passSite(t, e, a, "junction", 38800)
	a = passSite(t, e, a, "port", 38650)
	require.Equal(t, model.StatusCompleted, a.Status)

	_, err := e.Transition(a.ID, EventDispatch, TransitionContext{})
	require.Error(t, err)

	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Contains(t, tErr.Reason, "already departed")
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	e := newTestEngine(t)

	for _, prep := range []func(a model.Allocation){
		func(a model.Allocation) {},
		func(a model.Allocation) {
			_, err := e.Transition(a.ID, EventCheckIn, TransitionContext{})
			require.NoError(t, err)
		},
		func(a model.Allocation) {
			_, err := e.Transition(a.ID, EventCheckIn, TransitionContext{})
			require.NoError(t, err)
			_, err = e.Transition(a.ID, EventBeginWeigh, TransitionContext{})
			require.NoError(t, err)
		},
	} {
		a := newTestAllocation(t, e)
		prep(a)
		updated, err := e.Transition(a.ID, EventCancel, TransitionContext{})
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, updated.Status)

		// Terminal: nothing further applies.
		_, err = e.Transition(a.ID, EventCheckIn, TransitionContext{})
		assert.ErrorIs(t, err, ErrIllegalTransition)
	}
}

func TestFailedTransitionLeavesJourneyUntouched(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)

	_, err := e.Transition(a.ID, EventCheckIn, TransitionContext{})
	require.NoError(t, err)

	before, err := e.Allocation(a.ID)
	require.NoError(t, err)

	_, err = e.Transition(a.ID, EventWeighComplete, TransitionContext{})
	require.Error(t, err)

	after, err := e.Allocation(a.ID)
	require.NoError(t, err)
	assert.Equal(t, len(before.Journey), len(after.Journey))
	assert.Equal(t, before.Status, after.Status)
}

func TestRecordMeasurementComputesNet(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)

	m, err := e.RecordMeasurement(a.ID, "mine", 50880, 12000, "TK-9")
	require.NoError(t, err)
	assert.Equal(t, 38880.0, m.NetKg)

	_, err = e.RecordMeasurement(a.ID, "mine", 10000, 12000, "TK-10")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.RecordMeasurement(a.ID, "moon-base", 50880, 12000, "TK-11")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCorrectionAppendsNewMeasurement(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)

	first, err := e.RecordMeasurement(a.ID, "mine", 50880, 12000, "TK-1")
	require.NoError(t, err)
	second, err := e.RecordMeasurement(a.ID, "mine", 50900, 12000, "TK-1-CORR")
	require.NoError(t, err)

	stored, err := e.Allocation(a.ID)
	require.NoError(t, err)
	require.Len(t, stored.Measurements, 2)
	assert.Equal(t, first.ID, stored.Measurements[0].ID)
	assert.Equal(t, second.ID, stored.Measurements[1].ID)

	// The latest reading at the site wins for downstream computation.
	latest := stored.MeasurementAt("mine")
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
}

func TestReconciliationRunsOnSecondSiteMeasurement(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)

	_, err := e.RecordMeasurement(a.ID, "mine", 51200, 12000, "TK-1")
	require.NoError(t, err)

	stored, err := e.Allocation(a.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.VarianceKg)

	_, err = e.RecordMeasurement(a.ID, "port", 49260, 12000, "TK-2")
	require.NoError(t, err)

	stored, err = e.Allocation(a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VarianceKg)
	assert.InDelta(t, -1940, *stored.VarianceKg, 0.001)
	require.NotNil(t, stored.Flagged)
	assert.True(t, *stored.Flagged)
}

func TestCompletionCreditsAssignedStockpile(t *testing.T) {
	e := newTestEngine(t)
	pile := model.Stockpile{Name: "P1", Product: "chrome ore", CapacityTonnes: 1000, CurrentTonnes: 100}
	require.NoError(t, e.RegisterStockpile(pile))
	pileID := e.StockpileSnapshot()[0].ID

	a := newTestAllocation(t, e)
	require.NoError(t, e.AssignStockpile(a.ID, pileID, 40))

	piles := e.StockpileSnapshot()
	assert.Equal(t, 40.0, piles[0].PendingInboundTonnes)

	a = passSite(t, e, a, "mine", 38880)
	a = passSite(t, e, a, "junction", 38800)
	a = passSite(t, e, a, "port", 38650)
	require.Equal(t, model.StatusCompleted, a.Status)

	piles = e.StockpileSnapshot()
	assert.InDelta(t, 100+38.650, piles[0].CurrentTonnes, 0.001)
	assert.InDelta(t, 40-38.650, piles[0].PendingInboundTonnes, 0.001)
}

func TestCheckInUnknownVehicleRecordsSightingOnly(t *testing.T) {
	e := newTestEngine(t)

	_, matched, err := e.CheckInVehicle("ZZZ 999", "mine", time.Now())
	require.NoError(t, err)
	assert.False(t, matched)

	alerts := e.EvaluateAlerts(time.Now())
	require.Len(t, alerts, 1)
	assert.Equal(t, model.RuleUnallocatedVehicle, alerts[0].Rule)
	assert.Equal(t, model.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "ZZZ999", alerts[0].EntityRef)
}

func TestCheckInMatchesRegardlessOfWhitespaceAndCase(t *testing.T) {
	e := newTestEngine(t)
	a := newTestAllocation(t, e)

	updated, matched, err := e.CheckInVehicle("  abc 123 gp ", "mine", time.Now())
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, a.ID, updated.ID)
	assert.Equal(t, model.StatusArrived, updated.Status)
}
