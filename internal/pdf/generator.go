package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

type Generator struct {
	fontName string
}

func NewGenerator() (*Generator, error) {
	return &Generator{fontName: "Helvetica"}, nil
}

// Generate renders the reconciliation document for one allocation: the
// weighbridge readings per site, the variance verdict, and the journey log.
func (g *Generator) Generate(doc model.ReconciliationDocument) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	a := doc.Allocation

	pdf.SetFont(g.fontName, "B", 14)
	pdf.CellFormat(0, 10, "Weighbridge Reconciliation", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Vehicle %s against order %s", a.VehicleReg, a.OrderRef), "", 1, "C", false, 0, "")
	transporter := "unassigned"
	if doc.Transporter != nil {
		transporter = doc.Transporter.Name
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Transporter: %s  Product: %s  Status: %s", transporter, a.Product, a.Status), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Weighbridge readings", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)

	headers := []string{"Site", "Ticket", "Gross kg", "Tare kg", "Net kg", "Captured"}
	widths := []float64{30, 28, 28, 28, 28, 38}
	g.tableRow(pdf, headers, widths, true)
	for _, m := range a.Measurements {
		g.tableRow(pdf, []string{
			m.Site,
			m.TicketRef,
			fmt.Sprintf("%.0f", m.GrossKg),
			fmt.Sprintf("%.0f", m.TareKg),
			fmt.Sprintf("%.0f", m.NetKg),
			m.CapturedAt.Format("2006-01-02 15:04"),
		}, widths, false)
	}
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Variance", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	if doc.Origin != nil && doc.Destination != nil {
		verdict := "within tolerance"
		if doc.Flagged {
			verdict = "FLAGGED"
		}
		pdf.CellFormat(0, 6, fmt.Sprintf("%s -> %s: %.0f kg (%.2f%%), %s",
			doc.Origin.Site, doc.Destination.Site, doc.VarianceKg, doc.VariancePct, verdict), "", 1, "L", false, 0, "")
	} else {
		pdf.CellFormat(0, 6, "Awaiting a second reading; no variance computed.", "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Journey log", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)

	journeyHeaders := []string{"Site", "Status", "Time"}
	journeyWidths := []float64{50, 60, 70}
	g.tableRow(pdf, journeyHeaders, journeyWidths, true)
	for _, j := range a.Journey {
		g.tableRow(pdf, []string{j.Site, string(j.Status), j.At.Format("2006-01-02 15:04")}, journeyWidths, false)
	}

	pdf.Ln(6)
	pdf.SetFont(g.fontName, "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s", time.Now().Format("2006-01-02 15:04")), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) tableRow(pdf *gofpdf.Fpdf, cells []string, widths []float64, header bool) {
	if header {
		pdf.SetFont(g.fontName, "B", 10)
	}
	for i, cell := range cells {
		pdf.CellFormat(widths[i], 7, cell, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
	if header {
		pdf.SetFont(g.fontName, "", 10)
	}
}
