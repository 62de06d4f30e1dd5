// Package revenueexport renders revenue reports as xlsx workbooks.
package revenueexport

import (
	"fmt"
	"io"
	"strings"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	"github.com/MarkoPoloResearchLab/guestledger/pkg/revenue"
	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary  = "Summary"
	SheetTrend    = "Daily Trend"
	SheetServices = "Top Services"
	SheetGoods    = "Top Goods"

	defaultSheet    = "Sheet1"
	timestampLayout = "2006-01-02 15:04 MST"
	centsPerUnit    = 100.0
)

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FileName names the attachment for a report.
func FileName(report revenue.Report) string {
	scope := strings.ReplaceAll(report.Scope.Key(), ":", "_")
	return fmt.Sprintf("revenue_%s_%s.xlsx", scope, report.GeneratedAt.UTC().Format("20060102"))
}

// Write renders report into w.
func Write(w io.Writer, report revenue.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	summary := [][]any{
		{"Scope", report.Scope.Key()},
		{"Generated at", report.GeneratedAt.Format(timestampLayout)},
		{},
		{"Window", "Goods", "Service", "Total"},
		totalsRow("Today", report.Windows.Today),
		totalsRow("This week", report.Windows.ThisWeek),
		totalsRow("This month", report.Windows.ThisMonth),
		totalsRow("Last 30 days", report.Windows.Last30Days),
	}
	if err := writeSheet(f, SheetSummary, summary, 4, headerStyle); err != nil {
		return err
	}

	trend := [][]any{{"Date", "Goods", "Service", "Total"}}
	for _, point := range report.DailyTrend {
		trend = append(trend, totalsRow(point.Date, point.StreamTotals))
	}
	if err := writeSheet(f, SheetTrend, trend, 1, headerStyle); err != nil {
		return err
	}
	if err := writeSheet(f, SheetServices, rankingRows(report.TopServices), 1, headerStyle); err != nil {
		return err
	}
	if err := writeSheet(f, SheetGoods, rankingRows(report.TopGoods), 1, headerStyle); err != nil {
		return err
	}

	if err := f.DeleteSheet(defaultSheet); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	if index, err := f.GetSheetIndex(SheetSummary); err == nil {
		f.SetActiveSheet(index)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheetName string, rows [][]any, headerRow int, headerStyle int) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheetName, err)
	}
	for index, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, index+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheetName, index+1, err)
		}
	}
	start, _ := excelize.CoordinatesToCellName(1, headerRow)
	end, _ := excelize.CoordinatesToCellName(4, headerRow)
	if err := f.SetCellStyle(sheetName, start, end, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheetName, err)
	}
	_ = f.SetColWidth(sheetName, "A", "A", 20)
	_ = f.SetColWidth(sheetName, "B", "D", 14)
	return nil
}

func totalsRow(label string, totals revenue.StreamTotals) []any {
	return []any{label, currency(totals.Goods), currency(totals.Service), currency(totals.Total)}
}

func rankingRows(items []revenue.RankedItem) [][]any {
	rows := [][]any{{"Rank", "Name", "Revenue", "Quantity"}}
	for index, item := range items {
		rows = append(rows, []any{index + 1, item.Name, currency(item.Revenue), item.Quantity})
	}
	return rows
}

func currency(amount loyalty.AmountCents) float64 {
	return float64(amount.Int64()) / centsPerUnit
}
