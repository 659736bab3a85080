package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportConsumptionRankingExcel renders the ranking into a workbook with
// one row per employee, in rank order. The caller owns writing the file to
// the response and closing it.
func ExportConsumptionRankingExcel(report *ConsumptionRankingReport) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Ranking"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{
		"Rank", "Employee", "Job Role", "Deliveries",
		"Total Qty", "Total Cost", "Tie", "Deviation (std)",
		"Pending Alerts", "Risk Score", "Risk Band",
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for rowIdx, entry := range report.Entries {
		values := []interface{}{
			entry.Rank,
			entry.FullName,
			entry.JobRole,
			entry.DeliveryCount,
			entry.TotalQty.InexactFloat64(),
			entry.TotalCost.InexactFloat64(),
			entry.EsEmpate,
			entry.DeviationStd,
			entry.PendingAlerts,
			entry.RiskScore,
			string(entry.RiskBand),
		}
		for colIdx, v := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	title := fmt.Sprintf("Consumption ranking %d-%02d", report.Year, report.Month)
	if err := f.SetDocProps(&excelize.DocProperties{Title: title}); err != nil {
		return nil, err
	}
	return f, nil
}
