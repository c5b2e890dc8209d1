package model

import "time"

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Rank orders severities for display, critical first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

type AlertRule string

const (
	RuleStaging6h             AlertRule = "STAGING_6H"
	RuleStaging12h            AlertRule = "STAGING_12H"
	RuleStaging24h            AlertRule = "STAGING_24H"
	RuleVarianceWarning       AlertRule = "VARIANCE_WARNING"
	RuleVarianceCritical      AlertRule = "VARIANCE_CRITICAL"
	RuleUnallocatedVehicle    AlertRule = "UNALLOCATED_VEHICLE"
	RuleStockpileWarning      AlertRule = "STOCKPILE_WARNING"
	RuleStockpileCritical     AlertRule = "STOCKPILE_CRITICAL"
	RuleTruckShortfall        AlertRule = "TRUCK_SHORTFALL"
	RuleTransporterCompliance AlertRule = "TRANSPORTER_COMPLIANCE"
)

type EntityType string

const (
	EntityTruck       EntityType = "TRUCK"
	EntityOrder       EntityType = "ORDER"
	EntityStockpile   EntityType = "STOCKPILE"
	EntityTransporter EntityType = "TRANSPORTER"
)

// Alert is a derived, ephemeral fact regenerated on every evaluation pass.
// The ID is deterministic for a (rule family, entity) pair so a caller-held
// acknowledgement overlay keyed by ID survives regeneration.
type Alert struct {
	ID         string
	Severity   Severity
	Rule       AlertRule
	EntityType EntityType
	EntityRef  string
	Title      string
	Detail     string
	CreatedAt  time.Time
}

// UnallocatedSighting records a check-in attempt by a vehicle with no
// matching open allocation. It feeds the unallocated-vehicle rule and
// causes no state transition.
type UnallocatedSighting struct {
	VehicleReg string
	Site       string
	SeenAt     time.Time
}
