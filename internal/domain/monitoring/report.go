package monitoring

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	patientsSheet = "Patients"
)

var patientHeader = []string{
	"Patient ID", "Name", "MRN", "Age", "Stage", "eGFR", "Trend", "eGFR Change (%)",
	"Health State", "Score", "Priority", "Alert Codes",
}

var patientColumnWidths = []float64{38, 24, 14, 6, 7, 8, 8, 16, 13, 7, 11, 60}

// WriteScanReport writes res as an XLSX workbook with a summary sheet and one
// row per flagged patient.
func WriteScanReport(w io.Writer, res ScanResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(patientsSheet); err != nil {
		return fmt.Errorf("create patients sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeSummary(f, res, headerStyle); err != nil {
		return err
	}
	if err := writePatients(f, res.Patients, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, res ScanResult, headerStyle int) error {
	rows := [][]any{
		{"Metric", "Value"},
		{"Scan date", res.ScannedAt.Format("2006-01-02 15:04:05 MST")},
		{"Patients scanned", res.TotalScanned},
		{"High-risk patients", res.HighRiskCount},
		{"High-risk percentage", res.HighRiskPercent},
		{"Critical", res.PriorityDistribution[PriorityCritical]},
		{"High", res.PriorityDistribution[PriorityHigh]},
		{"Moderate", res.PriorityDistribution[PriorityModerate]},
		{},
		{"Alert code", "Patients"},
	}
	for _, ac := range res.AlertFrequency {
		rows = append(rows, []any{ac.Code, ac.Count})
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("summary cell: %w", err)
		}
		if len(row) == 0 {
			continue
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("summary row %d: %w", i+1, err)
		}
	}
	for _, r := range []int{1, 10} {
		a, _ := excelize.CoordinatesToCellName(1, r)
		b, _ := excelize.CoordinatesToCellName(2, r)
		if err := f.SetCellStyle(summarySheet, a, b, headerStyle); err != nil {
			return fmt.Errorf("summary header style: %w", err)
		}
	}
	return f.SetColWidth(summarySheet, "A", "B", 24)
}

func writePatients(f *excelize.File, patients []PatientAssessment, headerStyle int) error {
	for col, h := range patientHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("patients header cell: %w", err)
		}
		if err := f.SetCellValue(patientsSheet, cell, h); err != nil {
			return fmt.Errorf("patients header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(patientsSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("patients header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("patients column: %w", err)
		}
		if err := f.SetColWidth(patientsSheet, name, name, patientColumnWidths[col]); err != nil {
			return fmt.Errorf("patients column width: %w", err)
		}
	}

	for i, p := range patients {
		codes := make([]string, 0, len(p.Alerts))
		for _, a := range p.Alerts {
			codes = append(codes, a.Code)
		}
		state := ""
		if p.Classification != nil {
			state = p.Classification.HealthState
		}
		row := []any{
			p.PatientID, p.Name, p.MRN, p.Age, p.Stage, p.EGFR, string(p.EGFRTrend), p.EGFRChange,
			state, p.SeverityScore, string(p.Priority), strings.Join(codes, ", "),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("patients cell: %w", err)
		}
		if err := f.SetSheetRow(patientsSheet, cell, &row); err != nil {
			return fmt.Errorf("patients row %d: %w", i+2, err)
		}
	}
	return nil
}
