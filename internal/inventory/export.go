package inventory

import (
	"fmt"

	"github.com/golang-sql/civil"
	"github.com/xuri/excelize/v2"
)

const (
	reportSheet  = "Inventory"
	alertsSheet  = "Expiry Alerts"
	xlsxMIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var reportHeader = []string{
	"ID", "Name", "Category", "Unit", "Quantity", "Reorder Level",
	"Low Stock", "Expiry Date", "Days Until Expiry", "Alert Level", "Cost Price",
}

// BuildReport renders items into a workbook with one row per item and a
// second sheet listing the alert buckets. The caller closes the file.
func BuildReport(items []Item, today civil.Date) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		f.Close()
		return nil, err
	}

	if err := writeItems(f, items, today); err != nil {
		f.Close()
		return nil, fmt.Errorf("write inventory sheet: %w", err)
	}
	if err := writeAlerts(f, Summarize(items, today)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write alerts sheet: %w", err)
	}
	return f, nil
}

func writeItems(f *excelize.File, items []Item, today civil.Date) error {
	if err := writeRow(f, reportSheet, 1, toAny(reportHeader)); err != nil {
		return err
	}
	if err := boldRow(f, reportSheet, len(reportHeader)); err != nil {
		return err
	}

	for i, item := range items {
		lowStock := "no"
		if IsLowStock(item) {
			lowStock = "yes"
		}

		var expiry, days, cost any = "", "", ""
		if item.ExpiryDate != nil {
			expiry = item.ExpiryDate.String()
			days = DaysUntilExpiry(*item.ExpiryDate, today)
		}
		if item.CostPrice != nil {
			cost = item.CostPrice.InexactFloat64()
		}

		row := []any{
			item.ID, item.Name, item.Category, item.Unit, item.Quantity, item.ReorderLevel,
			lowStock, expiry, days, string(ClassifyExpiry(item, today)), cost,
		}
		if err := writeRow(f, reportSheet, i+2, row); err != nil {
			return err
		}
	}

	return f.SetColWidth(reportSheet, "B", "B", 32)
}

func writeAlerts(f *excelize.File, s AlertSummary) error {
	if _, err := f.NewSheet(alertsSheet); err != nil {
		return err
	}

	header := []any{"Level", "ID", "Name", "Expiry Date", "Days Until Expiry", "Quantity"}
	if err := writeRow(f, alertsSheet, 1, header); err != nil {
		return err
	}
	if err := boldRow(f, alertsSheet, len(header)); err != nil {
		return err
	}

	row := 2
	for _, level := range []AlertLevel{LevelExpired, LevelCritical, LevelWarning, LevelUpcoming} {
		for _, a := range s.Bucket(level) {
			values := []any{string(level), a.ID, a.Name, a.ExpiryDate.String(), a.DaysUntilExpiry, a.Quantity}
			if err := writeRow(f, alertsSheet, row, values); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func boldRow(f *excelize.File, sheet string, cols int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
