package model

import "time"

// ThroughputSummary is the headline reporting view for a date range.
type ThroughputSummary struct {
	PeriodStart       time.Time
	PeriodEnd         time.Time
	TotalNetTonnes    float64
	TruckCount        int
	CompletedCount    int
	AverageTurnaround time.Duration
	TurnaroundSamples int
}

// BreakdownRow is one line of a per-product or per-transporter breakdown.
type BreakdownRow struct {
	Key        string
	TruckCount int
	NetTonnes  float64
}

// HistogramBucket is one day or hour bucket of arrival counts.
type HistogramBucket struct {
	Label      string
	TruckCount int
	NetTonnes  float64
}

// ThroughputReport is the export-ready aggregate handed to the excel
// generator: the summary plus its breakdowns for one period.
// FleetUtilisation is tonnage-weighted across all stockpiles, not an
// average of per-pile percentages.
type ThroughputReport struct {
	Summary          ThroughputSummary
	ByProduct        []BreakdownRow
	ByTransporter    []BreakdownRow
	DailyBuckets     []HistogramBucket
	HourlyBuckets    []HistogramBucket
	StockpileState   []Stockpile
	FleetUtilisation float64
}

// ReconciliationDocument is the printable audit view of one allocation:
// its measurements per site, the variance verdict, and the journey log.
type ReconciliationDocument struct {
	Allocation  Allocation
	Transporter *Transporter
	Origin      *Measurement
	Destination *Measurement
	VarianceKg  float64
	VariancePct float64
	Flagged     bool
}
