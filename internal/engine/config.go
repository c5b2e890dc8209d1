package engine

import (
	"fmt"
	"time"
)

// Thresholds are the operationally tuned limits the rule engine and
// reconciliation calculator evaluate against. None of them are hard-coded;
// they arrive from configuration and are validated once at startup.
type Thresholds struct {
	VarianceWarnPct     float64
	VarianceCriticalPct float64

	StagingWarn      time.Duration
	StagingEscalated time.Duration
	StagingCritical  time.Duration

	StockpileWarnUtilisation     float64
	StockpileCriticalUtilisation float64

	ComplianceMinRate float64
	ComplianceWindow  time.Duration

	ShortfallWindow time.Duration
}

// Rules toggles each alert rule family independently.
type Rules struct {
	Staging               bool
	Variance              bool
	UnallocatedVehicle    bool
	StockpileCapacity     bool
	TruckShortfall        bool
	TransporterCompliance bool
}

// Config is the engine's route and rule configuration. Route is the ordered
// list of site identifiers every allocation travels, origin first.
type Config struct {
	Route      []string
	Thresholds Thresholds
	Rules      Rules
}

// Validate rejects unusable configuration at startup rather than at call
// time. A zero or inverted threshold here would silently disable a rule.
func (c Config) Validate() error {
	if len(c.Route) < 2 {
		return fmt.Errorf("route must name at least an origin and a destination site, got %d", len(c.Route))
	}
	seen := make(map[string]struct{}, len(c.Route))
	for _, site := range c.Route {
		if site == "" {
			return fmt.Errorf("route contains an empty site identifier")
		}
		if _, dup := seen[site]; dup {
			return fmt.Errorf("route site %q appears more than once", site)
		}
		seen[site] = struct{}{}
	}

	t := c.Thresholds
	if t.VarianceWarnPct <= 0 || t.VarianceCriticalPct <= 0 {
		return fmt.Errorf("variance thresholds must be positive, got warn=%.2f critical=%.2f", t.VarianceWarnPct, t.VarianceCriticalPct)
	}
	if t.VarianceCriticalPct < t.VarianceWarnPct {
		return fmt.Errorf("critical variance threshold %.2f below warning threshold %.2f", t.VarianceCriticalPct, t.VarianceWarnPct)
	}
	if t.StagingWarn <= 0 || t.StagingEscalated <= t.StagingWarn || t.StagingCritical <= t.StagingEscalated {
		return fmt.Errorf("staging thresholds must be positive and strictly increasing")
	}
	if t.StockpileWarnUtilisation <= 0 || t.StockpileWarnUtilisation >= 1 {
		return fmt.Errorf("stockpile warning utilisation must be in (0,1), got %.2f", t.StockpileWarnUtilisation)
	}
	if t.StockpileCriticalUtilisation <= t.StockpileWarnUtilisation || t.StockpileCriticalUtilisation > 1 {
		return fmt.Errorf("stockpile critical utilisation must be above warning and at most 1, got %.2f", t.StockpileCriticalUtilisation)
	}
	if t.ComplianceMinRate <= 0 || t.ComplianceMinRate > 1 {
		return fmt.Errorf("compliance minimum rate must be in (0,1], got %.2f", t.ComplianceMinRate)
	}
	if t.ComplianceWindow <= 0 {
		return fmt.Errorf("compliance window must be positive")
	}
	if t.ShortfallWindow <= 0 {
		return fmt.Errorf("shortfall window must be positive")
	}
	return nil
}

// FinalSite is the last site on the route, where dispatch completes the
// allocation instead of advancing it.
func (c Config) FinalSite() string {
	return c.Route[len(c.Route)-1]
}
