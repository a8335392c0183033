// Package export renders a tax return record as an XLSX workbook.
package export

import (
	"fmt"

	"github.com/dgallion1/taxgest/internal/taxreturn"
	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary   = "Summary"
	SheetLineItems = "Line Items"
	SheetStates    = "States"
)

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func (w *sheetWriter) writeRow(values ...any) {
	w.row++
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, w.row)
		_ = w.f.SetCellValue(w.sheet, cell, v)
	}
}

// Workbook returns XLSX bytes with a summary sheet, every labeled amount on
// a line item sheet, and one row per state return.
func Workbook(rec taxreturn.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetLineItems, SheetStates} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	summary := &sheetWriter{f: f, sheet: SheetSummary}
	summary.writeRow("Field", "Value")
	summary.writeRow("Tax year", rec.Year)
	summary.writeRow("Name", rec.Name)
	summary.writeRow("Filing status", rec.FilingStatus)
	summary.writeRow("Total income", rec.Income.Total)
	summary.writeRow("Federal AGI", rec.Federal.AGI)
	summary.writeRow("Federal taxable income", rec.Federal.TaxableIncome)
	summary.writeRow("Federal tax", rec.Federal.Tax)
	summary.writeRow("Federal refund or owed", rec.Federal.RefundOrOwed)
	for _, sa := range rec.Summary.StateAmounts {
		summary.writeRow(sa.State+" refund or owed", sa.Amount)
	}
	summary.writeRow("Net position", rec.Summary.NetPosition)
	for _, d := range rec.Dependents {
		summary.writeRow("Dependent", fmt.Sprintf("%s (%s)", d.Name, d.Relationship))
	}
	if r := rec.Rates; r != nil {
		summary.writeRow("Federal marginal rate", r.Federal.Marginal)
		summary.writeRow("Federal effective rate", r.Federal.Effective)
		if r.State != nil {
			summary.writeRow("State marginal rate", r.State.Marginal)
			summary.writeRow("State effective rate", r.State.Effective)
		}
		if r.Combined != nil {
			summary.writeRow("Combined marginal rate", r.Combined.Marginal)
			summary.writeRow("Combined effective rate", r.Combined.Effective)
		}
	}

	items := &sheetWriter{f: f, sheet: SheetLineItems}
	items.writeRow("Section", "Jurisdiction", "Label", "Amount")
	lineItems := func(section, jurisdiction string, list []taxreturn.LabeledAmount) {
		for _, la := range list {
			items.writeRow(section, jurisdiction, la.Label, la.Amount)
		}
	}
	lineItems("income", "federal", rec.Income.Items)
	lineItems("deductions", "federal", rec.Federal.Deductions)
	lineItems("additional_taxes", "federal", rec.Federal.AdditionalTaxes)
	lineItems("credits", "federal", rec.Federal.Credits)
	lineItems("payments", "federal", rec.Federal.Payments)
	for _, st := range rec.States {
		lineItems("deductions", st.Name, st.Deductions)
		lineItems("adjustments", st.Name, st.Adjustments)
		lineItems("payments", st.Name, st.Payments)
	}

	states := &sheetWriter{f: f, sheet: SheetStates}
	states.writeRow("State", "AGI", "Taxable income", "Tax", "Refund or owed")
	for _, st := range rec.States {
		states.writeRow(st.Name, st.AGI, st.TaxableIncome, st.Tax, st.RefundOrOwed)
	}

	for _, w := range []*sheetWriter{summary, items, states} {
		_ = f.SetRowStyle(w.sheet, 1, 1, bold)
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 28)
	_ = f.SetColWidth(SheetSummary, "B", "B", 32)
	_ = f.SetColWidth(SheetLineItems, "A", "B", 18)
	_ = f.SetColWidth(SheetLineItems, "C", "C", 40)
	_ = f.SetColWidth(SheetLineItems, "D", "D", 14)
	_ = f.SetColWidth(SheetStates, "A", "E", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
