package excel

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the throughput report: a summary sheet, breakdown
// sheets by product and transporter, and the stockpile levels.
func (g *Generator) Generate(report model.ThroughputReport) ([]byte, error) {
	file := excelize.NewFile()

	summarySheet := "Summary"
	file.SetSheetName("Sheet1", summarySheet)
	if err := g.writeSummary(file, summarySheet, report); err != nil {
		return nil, err
	}

	if err := g.writeBreakdown(file, "By Product", "Product", report.ByProduct); err != nil {
		return nil, err
	}
	if err := g.writeBreakdown(file, "By Transporter", "Transporter", report.ByTransporter); err != nil {
		return nil, err
	}
	if err := g.writeStockpiles(file, "Stockpiles", report.StockpileState); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, sheet string, report model.ThroughputReport) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	s := report.Summary
	set("A1", "Period start")
	set("B1", s.PeriodStart.Format("2006-01-02"))
	set("A2", "Period end")
	set("B2", s.PeriodEnd.Format("2006-01-02"))
	set("A3", "Trucks")
	set("B3", s.TruckCount)
	set("A4", "Completed")
	set("B4", s.CompletedCount)
	set("A5", "Total net tonnes")
	set("B5", fmt.Sprintf("%.3f", s.TotalNetTonnes))
	set("A6", "Average turnaround")
	if s.TurnaroundSamples > 0 {
		set("B6", s.AverageTurnaround.Round(time.Minute).String())
	} else {
		set("B6", "n/a")
	}
	set("A7", "Fleet utilisation")
	set("B7", fmt.Sprintf("%.1f%%", report.FleetUtilisation*100))

	row := 9
	row = g.writeBuckets(set, row, "Day", report.DailyBuckets)
	row += 2
	g.writeBuckets(set, row, "Hour", report.HourlyBuckets)
	return nil
}

func (g *Generator) writeBuckets(set func(string, interface{}), start int, label string, buckets []model.HistogramBucket) int {
	set(fmt.Sprintf("A%d", start), label)
	set(fmt.Sprintf("B%d", start), "Trucks")
	set(fmt.Sprintf("C%d", start), "Net tonnes")
	for i, bucket := range buckets {
		r := start + 1 + i
		set(fmt.Sprintf("A%d", r), bucket.Label)
		set(fmt.Sprintf("B%d", r), bucket.TruckCount)
		set(fmt.Sprintf("C%d", r), fmt.Sprintf("%.3f", bucket.NetTonnes))
	}
	return start + len(buckets)
}

func (g *Generator) writeBreakdown(file *excelize.File, sheet, keyHeader string, rows []model.BreakdownRow) error {
	if _, err := file.NewSheet(sheet); err != nil {
		return err
	}
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", keyHeader)
	set("B1", "Trucks")
	set("C1", "Net tonnes")
	for i, row := range rows {
		r := i + 2
		set(fmt.Sprintf("A%d", r), row.Key)
		set(fmt.Sprintf("B%d", r), row.TruckCount)
		set(fmt.Sprintf("C%d", r), fmt.Sprintf("%.3f", row.NetTonnes))
	}
	return nil
}

func (g *Generator) writeStockpiles(file *excelize.File, sheet string, piles []model.Stockpile) error {
	if _, err := file.NewSheet(sheet); err != nil {
		return err
	}
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Stockpile")
	set("B1", "Product")
	set("C1", "Current t")
	set("D1", "Capacity t")
	set("E1", "Pending inbound t")
	set("F1", "Utilisation")
	for i := range piles {
		p := &piles[i]
		r := i + 2
		set(fmt.Sprintf("A%d", r), p.Name)
		set(fmt.Sprintf("B%d", r), p.Product)
		set(fmt.Sprintf("C%d", r), fmt.Sprintf("%.3f", p.CurrentTonnes))
		set(fmt.Sprintf("D%d", r), fmt.Sprintf("%.3f", p.CapacityTonnes))
		set(fmt.Sprintf("E%d", r), fmt.Sprintf("%.3f", p.PendingInboundTonnes))
		set(fmt.Sprintf("F%d", r), fmt.Sprintf("%.1f%%", p.Utilisation()*100))
	}
	return nil
}
