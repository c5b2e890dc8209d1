package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

// EvaluateAlerts runs the rule catalog over a snapshot. It is stateless and
// side-effect free: the same snapshot and clock always produce the same set
// of (rule, entity) pairs. It never returns an error; a malformed record is
// skipped so one bad row cannot blind the operator to every other risk.
//
// Deduplication is per rule family and entity: an allocation staged for 13
// hours fires only the 12h rule, never 6h and 12h together.
func EvaluateAlerts(snap Snapshot, cfg Config, now time.Time) []model.Alert {
	var alerts []model.Alert

	if cfg.Rules.Staging {
		alerts = append(alerts, stagingAlerts(snap, cfg.Thresholds, now)...)
	}
	if cfg.Rules.Variance {
		alerts = append(alerts, varianceAlerts(snap, cfg, now)...)
	}
	if cfg.Rules.UnallocatedVehicle {
		alerts = append(alerts, unallocatedAlerts(snap, cfg.Thresholds, now)...)
	}
	if cfg.Rules.StockpileCapacity {
		alerts = append(alerts, stockpileAlerts(snap, cfg.Thresholds, now)...)
	}
	if cfg.Rules.TruckShortfall {
		alerts = append(alerts, shortfallAlerts(snap, cfg.Thresholds, now)...)
	}
	if cfg.Rules.TransporterCompliance {
		alerts = append(alerts, complianceAlerts(snap, cfg.Thresholds, now)...)
	}

	alerts = dedupeByFamily(alerts)

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity.Rank() != alerts[j].Severity.Rank() {
			return alerts[i].Severity.Rank() < alerts[j].Severity.Rank()
		}
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts
}

// dedupeByFamily keeps one alert per (rule family, entity): the highest
// severity wins, so an escalated tier supersedes the base tier instead of
// firing alongside it.
func dedupeByFamily(alerts []model.Alert) []model.Alert {
	keep := make(map[string]int, len(alerts))
	out := alerts[:0]
	for _, a := range alerts {
		key := fmt.Sprintf("%s:%s:%s", ruleFamily(a.Rule), a.EntityType, a.EntityRef)
		if pos, ok := keep[key]; ok {
			if a.Severity.Rank() < out[pos].Severity.Rank() {
				out[pos] = a
			}
			continue
		}
		out = append(out, a)
		keep[key] = len(out) - 1
	}
	return out
}

func ruleFamily(rule model.AlertRule) string {
	switch rule {
	case model.RuleStaging6h, model.RuleStaging12h, model.RuleStaging24h:
		return "staging"
	case model.RuleVarianceWarning, model.RuleVarianceCritical:
		return "variance"
	case model.RuleStockpileWarning, model.RuleStockpileCritical:
		return "stockpile"
	default:
		return string(rule)
	}
}

func stagingAlerts(snap Snapshot, t Thresholds, now time.Time) []model.Alert {
	var out []model.Alert
	for i := range snap.Allocations {
		a := &snap.Allocations[i]
		if a.Status.Terminal() || a.Phase != model.PhaseArrived {
			continue
		}
		site, visit := currentVisit(a)
		if visit == nil || visit.ArrivedAt == nil || visit.DepartedAt != nil {
			continue
		}
		staged := now.Sub(*visit.ArrivedAt)
		if staged < t.StagingWarn {
			continue
		}

		rule := model.RuleStaging6h
		severity := model.SeverityWarning
		detail := fmt.Sprintf("staged at %s for %s, past the %s limit", site, formatDuration(staged), formatDuration(t.StagingWarn))
		switch {
		case staged >= t.StagingCritical:
			rule = model.RuleStaging24h
			severity = model.SeverityCritical
			detail = fmt.Sprintf("staged at %s for %s, past the %s hard limit", site, formatDuration(staged), formatDuration(t.StagingCritical))
		case staged >= t.StagingEscalated:
			rule = model.RuleStaging12h
			detail = fmt.Sprintf("staged at %s for %s, past the escalated %s limit", site, formatDuration(staged), formatDuration(t.StagingEscalated))
		}

		out = append(out, newAlert(rule, severity, model.EntityTruck, a.VehicleReg,
			fmt.Sprintf("Truck %s staging overrun", a.VehicleReg), detail, now))
	}
	return out
}

func varianceAlerts(snap Snapshot, cfg Config, now time.Time) []model.Alert {
	var out []model.Alert
	origin := cfg.Route[0]
	for i := range snap.Allocations {
		a := &snap.Allocations[i]
		originM := a.MeasurementAt(origin)
		destM := latestDownstreamMeasurement(a, origin)
		if originM == nil || destM == nil {
			continue
		}
		rec := Reconcile(*originM, *destM, cfg.Thresholds.VarianceWarnPct)
		if !rec.Flagged {
			continue
		}

		rule := model.RuleVarianceWarning
		severity := model.SeverityWarning
		if abs(rec.VariancePct) >= cfg.Thresholds.VarianceCriticalPct {
			rule = model.RuleVarianceCritical
			severity = model.SeverityCritical
		}
		out = append(out, newAlert(rule, severity, model.EntityTruck, a.VehicleReg,
			fmt.Sprintf("Weight discrepancy on truck %s", a.VehicleReg),
			fmt.Sprintf("net changed by %.0f kg (%.2f%%) between %s and %s", rec.VarianceKg, rec.VariancePct, originM.Site, destM.Site),
			now))
	}
	return out
}

// unallocatedAlerts raises a critical alert per vehicle still unaccounted
// for. A sighting is resolved once the registration gains an open
// allocation, and ages out past the compliance window so a one-off gate
// mistake does not stay critical forever.
func unallocatedAlerts(snap Snapshot, t Thresholds, now time.Time) []model.Alert {
	open := make(map[string]bool)
	for i := range snap.Allocations {
		a := &snap.Allocations[i]
		if !a.Status.Terminal() {
			open[a.VehicleReg] = true
		}
	}

	cutoff := now.Add(-t.ComplianceWindow)
	latest := make(map[string]model.UnallocatedSighting)
	for _, sg := range snap.Sightings {
		if sg.VehicleReg == "" || open[sg.VehicleReg] || sg.SeenAt.Before(cutoff) {
			continue
		}
		if prev, ok := latest[sg.VehicleReg]; !ok || sg.SeenAt.After(prev.SeenAt) {
			latest[sg.VehicleReg] = sg
		}
	}
	out := make([]model.Alert, 0, len(latest))
	for reg, sg := range latest {
		out = append(out, newAlert(model.RuleUnallocatedVehicle, model.SeverityCritical, model.EntityTruck, reg,
			fmt.Sprintf("Unallocated vehicle %s", reg),
			fmt.Sprintf("presented at %s on %s with no open allocation", sg.Site, sg.SeenAt.Format(time.RFC3339)),
			now))
	}
	return out
}

func stockpileAlerts(snap Snapshot, t Thresholds, now time.Time) []model.Alert {
	var out []model.Alert
	for i := range snap.Stockpiles {
		p := &snap.Stockpiles[i]
		if p.CapacityTonnes <= 0 {
			continue
		}
		util := p.Utilisation()
		if util < t.StockpileWarnUtilisation {
			continue
		}

		rule := model.RuleStockpileWarning
		severity := model.SeverityWarning
		if util >= t.StockpileCriticalUtilisation {
			rule = model.RuleStockpileCritical
			severity = model.SeverityCritical
		}
		out = append(out, newAlert(rule, severity, model.EntityStockpile, p.Name,
			fmt.Sprintf("Stockpile %s nearing capacity", p.Name),
			fmt.Sprintf("%.1f%% utilised (%.0f of %.0f t), %.0f t pending inbound", util*100, p.CurrentTonnes, p.CapacityTonnes, p.PendingInboundTonnes),
			now))
	}
	return out
}

func shortfallAlerts(snap Snapshot, t Thresholds, now time.Time) []model.Alert {
	allocated := make(map[string]int)
	for i := range snap.Allocations {
		a := &snap.Allocations[i]
		if a.Status == model.StatusCancelled {
			continue
		}
		allocated[a.OrderRef]++
	}

	var out []model.Alert
	for _, o := range snap.Orders {
		if o.PlannedTrucks <= 0 || o.Deadline.IsZero() {
			continue
		}
		remaining := o.Deadline.Sub(now)
		if remaining <= 0 || remaining > t.ShortfallWindow {
			continue
		}
		if allocated[o.Ref] >= o.PlannedTrucks {
			continue
		}
		out = append(out, newAlert(model.RuleTruckShortfall, model.SeverityWarning, model.EntityOrder, o.Ref,
			fmt.Sprintf("Order %s short of trucks", o.Ref),
			fmt.Sprintf("%d of %d trucks allocated with %s to deadline", allocated[o.Ref], o.PlannedTrucks, formatDuration(remaining)),
			now))
	}
	return out
}

func complianceAlerts(snap Snapshot, t Thresholds, now time.Time) []model.Alert {
	var out []model.Alert
	cutoff := now.Add(-t.ComplianceWindow)
	for i := range snap.Transporters {
		tr := &snap.Transporters[i]
		if !tr.Active {
			continue
		}
		rate, samples := ComplianceRate(snap.Allocations, tr.ID, cutoff, t.StagingWarn)
		if samples == 0 || rate >= t.ComplianceMinRate {
			continue
		}
		out = append(out, newAlert(model.RuleTransporterCompliance, model.SeverityWarning, model.EntityTransporter, tr.Name,
			fmt.Sprintf("Transporter %s below compliance", tr.Name),
			fmt.Sprintf("%.0f%% of %d recent loads clean, minimum is %.0f%%", rate*100, samples, t.ComplianceMinRate*100),
			now))
	}
	return out
}

// ComplianceRate is the fraction of a transporter's allocations since the
// cutoff that carry neither a flagged weight discrepancy nor a staging
// breach. A staging breach is any site visit held past the warning limit.
func ComplianceRate(allocations []model.Allocation, transporterID uuid.UUID, cutoff time.Time, stagingWarn time.Duration) (float64, int) {
	total := 0
	clean := 0
	for i := range allocations {
		a := &allocations[i]
		if a.TransporterID != transporterID || a.CreatedAt.Before(cutoff) {
			continue
		}
		total++
		if allocationClean(a, stagingWarn) {
			clean++
		}
	}
	if total == 0 {
		return 1, 0
	}
	return float64(clean) / float64(total), total
}

func allocationClean(a *model.Allocation, stagingWarn time.Duration) bool {
	if a.Flagged != nil && *a.Flagged {
		return false
	}
	for i := range a.Visits {
		v := &a.Visits[i]
		if v.ArrivedAt == nil || v.DepartedAt == nil {
			continue
		}
		if v.DepartedAt.Sub(*v.ArrivedAt) >= stagingWarn {
			return false
		}
	}
	return true
}

func currentVisit(a *model.Allocation) (string, *model.SiteVisit) {
	if len(a.Journey) == 0 {
		return "", nil
	}
	site := a.Journey[len(a.Journey)-1].Site
	return site, a.VisitAt(site)
}

func latestDownstreamMeasurement(a *model.Allocation, origin string) *model.Measurement {
	for i := len(a.Measurements) - 1; i >= 0; i-- {
		if a.Measurements[i].Site != origin {
			return &a.Measurements[i]
		}
	}
	return nil
}

// newAlert builds an alert with a deterministic ID so the caller-held
// acknowledgement overlay keyed by ID survives regeneration.
func newAlert(rule model.AlertRule, severity model.Severity, entity model.EntityType, ref, title, detail string, now time.Time) model.Alert {
	return model.Alert{
		ID:         strings.ToLower(fmt.Sprintf("%s:%s:%s", rule, entity, ref)),
		Severity:   severity,
		Rule:       rule,
		EntityType: entity,
		EntityRef:  ref,
		Title:      title,
		Detail:     detail,
		CreatedAt:  now,
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
