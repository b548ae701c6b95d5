package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ehr/ckdrisk/internal/domain/assessment"
	"github.com/ehr/ckdrisk/internal/domain/monitoring"
	"github.com/ehr/ckdrisk/internal/platform/db"
	"github.com/ehr/ckdrisk/internal/platform/validation"
)

// runClassify runs the full pipeline on one request without a database.
// The patient ID is ignored since nothing is stored.
func runClassify(ctx context.Context, r io.Reader, w io.Writer) error {
	var req assessment.AssessmentRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if err := validation.New().Validate(req); err != nil {
		if oo := validation.ToOutcome(err); oo != nil {
			return oo
		}
		return err
	}
	req.PatientID = ""

	res, err := assessment.NewService(nil, nil).Classify(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(w, res)
}

// runScan scans a JSON array of patient records and writes the result as
// JSON or as an Excel workbook.
func runScan(ctx context.Context, r io.Reader, w io.Writer, workers int, xlsx bool) error {
	var records []monitoring.PatientRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return fmt.Errorf("decode patients: %w", err)
	}
	if len(records) == 0 {
		return errors.New("no patient records to scan")
	}
	if workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", workers)
	}

	res, err := monitoring.ScanCohort(ctx, records, workers)
	if err != nil {
		return err
	}
	if xlsx {
		return monitoring.WriteScanReport(w, res)
	}
	return writeJSON(w, res)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
