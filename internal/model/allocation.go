package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type AllocationStatus string

const (
	StatusScheduled        AllocationStatus = "SCHEDULED"
	StatusInTransit        AllocationStatus = "IN_TRANSIT"
	StatusArrived          AllocationStatus = "ARRIVED"
	StatusWeighing         AllocationStatus = "WEIGHING"
	StatusReadyForDispatch AllocationStatus = "READY_FOR_DISPATCH"
	StatusCompleted        AllocationStatus = "COMPLETED"
	StatusCancelled        AllocationStatus = "CANCELLED"
)

// Terminal reports whether the status ends active tracking. Terminal
// allocations are retained for audit, never deleted.
func (s AllocationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Phase string

const (
	PhaseInTransit Phase = "IN_TRANSIT"
	PhaseArrived   Phase = "ARRIVED"
)

type DriverStatus string

const (
	DriverPendingVerification DriverStatus = "PENDING_VERIFICATION"
	DriverVerified            DriverStatus = "VERIFIED"
	DriverPendingPermit       DriverStatus = "PENDING_PERMIT"
	DriverReadyForDispatch    DriverStatus = "READY_FOR_DISPATCH"
)

// JourneyEntry is one append-only record of a successful transition.
type JourneyEntry struct {
	Site   string
	Status AllocationStatus
	At     time.Time
}

// SiteVisit carries the arrival/departure pair for one site on the route.
// Either timestamp may be missing while the visit is in progress.
type SiteVisit struct {
	Site       string
	ArrivedAt  *time.Time
	DepartedAt *time.Time
}

// Allocation is one truck assigned to one order.
//
// Position on the route is a (site index, phase) pair over the configured
// ordered route rather than per-site status values, so the lifecycle
// generalizes to any number of intermediate sites.
type Allocation struct {
	ID            uuid.UUID
	VehicleReg    string
	DriverRef     *string
	TransporterID uuid.UUID
	OrderRef      string
	Product       string
	ScheduledDate time.Time
	Status        AllocationStatus
	SiteIndex     int
	Phase         Phase
	DriverStatus  DriverStatus
	StockpileID   *uuid.UUID
	Measurements  []Measurement
	Journey       []JourneyEntry
	Visits        []SiteVisit
	VarianceKg    *float64
	VariancePct   *float64
	Flagged       *bool
	CreatedAt     time.Time
}

// VisitAt returns the visit recorded for site, if any.
func (a *Allocation) VisitAt(site string) *SiteVisit {
	for i := range a.Visits {
		if a.Visits[i].Site == site {
			return &a.Visits[i]
		}
	}
	return nil
}

// MeasurementAt returns the most recent measurement captured at site.
func (a *Allocation) MeasurementAt(site string) *Measurement {
	for i := len(a.Measurements) - 1; i >= 0; i-- {
		if a.Measurements[i].Site == site {
			return &a.Measurements[i]
		}
	}
	return nil
}

// NormalizeReg canonicalizes a vehicle registration: uppercase with all
// whitespace removed, so "abc 123 gp" and "ABC123GP" compare equal.
func NormalizeReg(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}
