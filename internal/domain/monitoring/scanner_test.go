package monitoring

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ehr/ckdrisk/internal/domain/risk"
)

func f64(v float64) *float64 { return &v }

func alertCodes(a PatientAssessment) []string {
	codes := make([]string, 0, len(a.Alerts))
	for _, al := range a.Alerts {
		codes = append(codes, al.Code)
	}
	return codes
}

func TestAssessPatient_Healthy(t *testing.T) {
	a := AssessPatient(PatientRecord{
		ID:        "p-1",
		CKDStage:  1,
		EGFR:      95,
		EGFRTrend: TrendStable,
		UACR:      f64(12),
		Potassium: f64(4.2),
	})
	assert.False(t, a.RequiresMonitoring)
	assert.Equal(t, PriorityLow, a.Priority)
	assert.Zero(t, a.SeverityScore)
	assert.Empty(t, a.Alerts)
	require.NotNil(t, a.Classification)
	assert.Equal(t, "G1-A1", a.Classification.HealthState)
}

func TestAssessPatient_CriticalRules(t *testing.T) {
	a := AssessPatient(PatientRecord{
		ID:         "p-2",
		CKDStage:   4,
		EGFR:       22,
		EGFRTrend:  TrendDown,
		EGFRChange: -12,
		UACR:       f64(450),
		Potassium:  f64(6.3),
		Hemoglobin: f64(8.4),
	})
	codes := alertCodes(a)
	for _, want := range []string{"RAPID_DECLINE", "NO_SPECIALIST", "HYPERKALEMIA", "SEVERE_ANEMIA", "NEPHROTIC_DECLINE"} {
		assert.Contains(t, codes, want)
	}
	assert.NotContains(t, codes, "MODERATE_ANEMIA")
	assert.NotContains(t, codes, "MODERATE_HYPERKALEMIA")
	assert.Equal(t, PriorityCritical, a.Priority)
	assert.GreaterOrEqual(t, a.SeverityScore, 50)
}

func TestAssessPatient_Scoring(t *testing.T) {
	tests := []struct {
		name     string
		rec      PatientRecord
		codes    []string
		score    int
		priority Priority
	}{
		{
			name:     "uncontrolled diabetic without SGLT2i",
			rec:      PatientRecord{ID: "a", CKDStage: 3, EGFR: 48, HbA1c: f64(8.2), Comorbidities: risk.Comorbidities{Diabetes: true}, OnSGLT2i: false},
			codes:    []string{"UNCONTROLLED_DM", "NO_SGLT2I"},
			score:    7,
			priority: PriorityModerate,
		},
		{
			name:     "proteinuria without RAS and obese smoker",
			rec:      PatientRecord{ID: "b", CKDStage: 2, EGFR: 70, UACR: f64(120), BMI: f64(32), SmokingStatus: risk.SmokingCurrent},
			codes:    []string{"NO_RAS_INHIBITOR", "OBESITY", "ACTIVE_SMOKING"},
			score:    6,
			priority: PriorityModerate,
		},
		{
			name:     "hypertensive stage 3 with moderate anemia",
			rec:      PatientRecord{ID: "c", CKDStage: 3, EGFR: 40, SystolicBP: f64(150), DiastolicBP: f64(85), Hemoglobin: f64(10.2)},
			codes:    []string{"UNCONTROLLED_HTN", "MODERATE_ANEMIA"},
			score:    10,
			priority: PriorityHigh,
		},
		{
			name:     "slow progression only",
			rec:      PatientRecord{ID: "d", CKDStage: 3, EGFR: 41, EGFRTrend: TrendDown, EGFRChange: -6, OnRASInhibitor: true},
			codes:    []string{"PROGRESSIVE_CKD"},
			score:    2,
			priority: PriorityLow,
		},
		{
			name:     "phosphorus and nephrotoxics in stage 4 under care",
			rec:      PatientRecord{ID: "e", CKDStage: 4, EGFR: 25, EGFRTrend: TrendDown, EGFRChange: -3, Phosphorus: f64(5.1), NephrotoxicMeds: true, NephrologistReferral: true},
			codes:    []string{"HYPERPHOSPHATEMIA", "NEPHROTOXIC_MEDS"},
			score:    10,
			priority: PriorityHigh,
		},
		{
			name:     "explicit A3 below nephrotic range",
			rec:      PatientRecord{ID: "f", CKDStage: 1, EGFR: 92, UACR: f64(280), Albuminuria: risk.AlbuminuriaA3, OnRASInhibitor: true},
			codes:    []string{"HEAVY_PROTEINURIA"},
			score:    5,
			priority: PriorityModerate,
		},
		{
			name:     "no SGLT2 alert below eGFR floor",
			rec:      PatientRecord{ID: "g", CKDStage: 5, EGFR: 12, Comorbidities: risk.Comorbidities{Diabetes: true}, NephrologistReferral: true, Potassium: f64(5.8)},
			codes:    []string{"MODERATE_HYPERKALEMIA"},
			score:    5,
			priority: PriorityModerate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AssessPatient(tt.rec)
			assert.ElementsMatch(t, tt.codes, alertCodes(a))
			assert.Equal(t, tt.score, a.SeverityScore)
			assert.Equal(t, tt.priority, a.Priority)
			assert.True(t, a.RequiresMonitoring)
		})
	}
}

func cohort(n int) []PatientRecord {
	recs := make([]PatientRecord, 0, n)
	for i := 0; i < n; i++ {
		r := PatientRecord{ID: fmt.Sprintf("p-%03d", i), CKDStage: 2, EGFR: 75, UACR: f64(10)}
		switch i % 4 {
		case 0:
			r.CKDStage, r.EGFR, r.Potassium = 4, 20, f64(6.4) // 20 points
		case 1:
			r.UACR = f64(100) // 2 points
		case 2:
			r.CKDStage, r.SystolicBP = 3, f64(160) // 5 points
		}
		recs = append(recs, r)
	}
	return recs
}

func TestScanCohort(t *testing.T) {
	recs := cohort(40)
	res, err := ScanCohort(context.Background(), recs, 4)
	require.NoError(t, err)

	assert.Equal(t, 40, res.TotalScanned)
	assert.Equal(t, 30, res.HighRiskCount)
	assert.Equal(t, 75.0, res.HighRiskPercent)
	assert.Equal(t, 10, res.PriorityDistribution[PriorityCritical])
	assert.Equal(t, 0, res.PriorityDistribution[PriorityHigh])
	assert.Equal(t, 10, res.PriorityDistribution[PriorityModerate])

	require.Len(t, res.Patients, 30)
	for i := 1; i < len(res.Patients); i++ {
		prev, cur := res.Patients[i-1], res.Patients[i]
		assert.GreaterOrEqual(t, prev.SeverityScore, cur.SeverityScore)
		if prev.SeverityScore == cur.SeverityScore {
			assert.Less(t, prev.PatientID, cur.PatientID)
		}
	}
	assert.Equal(t, "p-000", res.Patients[0].PatientID)

	require.NotEmpty(t, res.AlertFrequency)
	for i := 1; i < len(res.AlertFrequency); i++ {
		assert.GreaterOrEqual(t, res.AlertFrequency[i-1].Count, res.AlertFrequency[i].Count)
	}

	serial, err := ScanCohort(context.Background(), recs, 1)
	require.NoError(t, err)
	assert.Equal(t, res.Patients, serial.Patients, "worker count must not change the result")
}

func TestScanCohort_Empty(t *testing.T) {
	res, err := ScanCohort(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Zero(t, res.TotalScanned)
	assert.Zero(t, res.HighRiskPercent)
	assert.Empty(t, res.Patients)
}

func TestScanCohort_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ScanCohort(ctx, cohort(8), 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteScanReport(t *testing.T) {
	res, err := ScanCohort(context.Background(), cohort(8), 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteScanReport(&buf, res))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Patients"}, f.GetSheetList())

	scanned, err := f.GetCellValue("Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "8", scanned)

	rows, err := f.GetRows("Patients")
	require.NoError(t, err)
	require.Len(t, rows, 1+res.HighRiskCount)
	assert.Equal(t, "Patient ID", rows[0][0])
	assert.Equal(t, res.Patients[0].PatientID, rows[1][0])
}
