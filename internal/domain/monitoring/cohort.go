package monitoring

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// AlertCount is how many flagged patients triggered a given alert code.
type AlertCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// ScanResult summarises a cohort scan. Patients holds only those that need
// monitoring, highest score first.
type ScanResult struct {
	ScannedAt            time.Time           `json:"scanned_at"`
	TotalScanned         int                 `json:"total_patients_scanned"`
	HighRiskCount        int                 `json:"high_risk_patients"`
	HighRiskPercent      float64             `json:"high_risk_percentage"`
	PriorityDistribution map[Priority]int    `json:"priority_distribution"`
	AlertFrequency       []AlertCount        `json:"alert_frequency"`
	Patients             []PatientAssessment `json:"patients"`
}

// ScanCohort assesses every record using up to workers goroutines. It stops
// early and returns ctx.Err() if the context is cancelled.
func ScanCohort(ctx context.Context, records []PatientRecord, workers int) (ScanResult, error) {
	if workers < 1 {
		workers = 1
	}
	assessed := make([]PatientAssessment, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			assessed[i] = AssessPatient(records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScanResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ScanResult{}, err
	}
	return summarize(records, assessed), nil
}

func summarize(records []PatientRecord, assessed []PatientAssessment) ScanResult {
	flagged := make([]PatientAssessment, 0, len(assessed))
	for _, a := range assessed {
		if a.RequiresMonitoring {
			flagged = append(flagged, a)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool {
		if flagged[i].SeverityScore != flagged[j].SeverityScore {
			return flagged[i].SeverityScore > flagged[j].SeverityScore
		}
		return flagged[i].PatientID < flagged[j].PatientID
	})

	dist := map[Priority]int{PriorityCritical: 0, PriorityHigh: 0, PriorityModerate: 0}
	codes := map[string]int{}
	for _, a := range flagged {
		if _, ok := dist[a.Priority]; ok {
			dist[a.Priority]++
		}
		for _, al := range a.Alerts {
			codes[al.Code]++
		}
	}
	freq := make([]AlertCount, 0, len(codes))
	for code, n := range codes {
		freq = append(freq, AlertCount{Code: code, Count: n})
	}
	sort.Slice(freq, func(i, j int) bool {
		if freq[i].Count != freq[j].Count {
			return freq[i].Count > freq[j].Count
		}
		return freq[i].Code < freq[j].Code
	})

	pct := 0.0
	if len(records) > 0 {
		pct = math.Round(1000*float64(len(flagged))/float64(len(records))) / 10
	}
	return ScanResult{
		ScannedAt:            time.Now().UTC(),
		TotalScanned:         len(records),
		HighRiskCount:        len(flagged),
		HighRiskPercent:      pct,
		PriorityDistribution: dist,
		AlertFrequency:       freq,
		Patients:             flagged,
	}
}
