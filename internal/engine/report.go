package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

// Reporting views are pure aggregates over the allocation set plus the
// journey log. Records with missing timestamps or weights are excluded from
// the figures they cannot contribute to, never substituted with zero.

// Summarize computes the headline throughput view for [from, to).
func Summarize(allocations []model.Allocation, from, to time.Time) model.ThroughputSummary {
	summary := model.ThroughputSummary{PeriodStart: from, PeriodEnd: to}
	var turnaroundTotal time.Duration
	for i := range allocations {
		a := &allocations[i]
		if !inRange(a, from, to) {
			continue
		}
		summary.TruckCount++
		if a.Status == model.StatusCompleted {
			summary.CompletedCount++
		}
		if net, ok := finalNetTonnes(a); ok {
			summary.TotalNetTonnes += net
		}
		d, n := allocationTurnaround(a)
		turnaroundTotal += d
		summary.TurnaroundSamples += n
	}
	if summary.TurnaroundSamples > 0 {
		summary.AverageTurnaround = turnaroundTotal / time.Duration(summary.TurnaroundSamples)
	}
	return summary
}

// BreakdownByProduct groups in-range allocations by product name.
func BreakdownByProduct(allocations []model.Allocation, from, to time.Time) []model.BreakdownRow {
	return breakdown(allocations, from, to, func(a *model.Allocation) string {
		return a.Product
	})
}

// BreakdownByTransporter groups in-range allocations by transporter name,
// falling back to the raw ID for transporters missing from the roster.
func BreakdownByTransporter(allocations []model.Allocation, transporters []model.Transporter, from, to time.Time) []model.BreakdownRow {
	names := make(map[uuid.UUID]string, len(transporters))
	for _, t := range transporters {
		names[t.ID] = t.Name
	}
	return breakdown(allocations, from, to, func(a *model.Allocation) string {
		if name, ok := names[a.TransporterID]; ok {
			return name
		}
		return a.TransporterID.String()
	})
}

// DailyHistogram buckets in-range allocations by scheduled day.
func DailyHistogram(allocations []model.Allocation, from, to time.Time) []model.HistogramBucket {
	return histogram(allocations, from, to, func(t time.Time) string {
		return t.Format("2006-01-02")
	})
}

// HourlyHistogram buckets in-range allocations by hour of day across the
// whole period, for shift planning.
func HourlyHistogram(allocations []model.Allocation, from, to time.Time) []model.HistogramBucket {
	return histogram(allocations, from, to, func(t time.Time) string {
		return t.Format("15:00")
	})
}

func breakdown(allocations []model.Allocation, from, to time.Time, key func(*model.Allocation) string) []model.BreakdownRow {
	index := make(map[string]int)
	var rows []model.BreakdownRow
	for i := range allocations {
		a := &allocations[i]
		if !inRange(a, from, to) {
			continue
		}
		k := key(a)
		pos, ok := index[k]
		if !ok {
			rows = append(rows, model.BreakdownRow{Key: k})
			pos = len(rows) - 1
			index[k] = pos
		}
		rows[pos].TruckCount++
		if net, ok := finalNetTonnes(a); ok {
			rows[pos].NetTonnes += net
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

func histogram(allocations []model.Allocation, from, to time.Time, label func(time.Time) string) []model.HistogramBucket {
	index := make(map[string]int)
	var buckets []model.HistogramBucket
	for i := range allocations {
		a := &allocations[i]
		if !inRange(a, from, to) {
			continue
		}
		l := label(refTime(a))
		pos, ok := index[l]
		if !ok {
			buckets = append(buckets, model.HistogramBucket{Label: l})
			pos = len(buckets) - 1
			index[l] = pos
		}
		buckets[pos].TruckCount++
		if net, ok := finalNetTonnes(a); ok {
			buckets[pos].NetTonnes += net
		}
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Label < buckets[j].Label })
	return buckets
}

// allocationTurnaround sums site visits where both arrival and departure
// are recorded. In-progress visits are excluded, not treated as zero.
func allocationTurnaround(a *model.Allocation) (time.Duration, int) {
	var total time.Duration
	count := 0
	for i := range a.Visits {
		v := &a.Visits[i]
		if v.ArrivedAt == nil || v.DepartedAt == nil {
			continue
		}
		total += v.DepartedAt.Sub(*v.ArrivedAt)
		count++
	}
	return total, count
}

func inRange(a *model.Allocation, from, to time.Time) bool {
	t := refTime(a)
	return !t.Before(from) && t.Before(to)
}

// refTime prefers the scheduled date and falls back to creation time for
// imports that never carried one.
func refTime(a *model.Allocation) time.Time {
	if !a.ScheduledDate.IsZero() {
		return a.ScheduledDate
	}
	return a.CreatedAt
}

// finalNetTonnes is the last captured net weight converted to tonnes.
func finalNetTonnes(a *model.Allocation) (float64, bool) {
	if len(a.Measurements) == 0 {
		return 0, false
	}
	return a.Measurements[len(a.Measurements)-1].NetKg / 1000, true
}
