package engine

import "github.com/nurpe/weighbridge-allocations/internal/model"

// ReconcileResult is the verdict of cross-checking two weighbridge
// readings for the same consignment.
type ReconcileResult struct {
	VarianceKg  float64
	VariancePct float64
	Flagged     bool
}

// Reconcile compares the origin and destination readings for one load.
// VarianceKg is signed: negative means the load lost mass in transit.
// VariancePct is defined as 0 when the origin net is 0. Flagged fires at
// warnPct absolute; escalation beyond that is the rule engine's concern.
//
// Pure: nothing is mutated, callers decide what to do with the result.
func Reconcile(origin, destination model.Measurement, warnPct float64) ReconcileResult {
	varianceKg := destination.NetKg - origin.NetKg
	variancePct := 0.0
	if origin.NetKg != 0 {
		variancePct = varianceKg / origin.NetKg * 100
	}
	return ReconcileResult{
		VarianceKg:  varianceKg,
		VariancePct: variancePct,
		Flagged:     abs(variancePct) >= warnPct,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
