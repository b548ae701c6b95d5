package monitoring

import (
	"fmt"

	"github.com/ehr/ckdrisk/internal/domain/risk"
)

// Trend is the direction of the most recent eGFR change.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Priority ranks how soon a patient needs attention.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityModerate Priority = "MODERATE"
	PriorityLow      Priority = "LOW"
)

// Points per alert severity.
const (
	criticalPoints = 10
	highPoints     = 5
	moderatePoints = 2
)

// PatientRecord is the snapshot the scanner works from. Nil lab pointers are
// treated as not measured and never trigger a rule.
type PatientRecord struct {
	ID                   string                   `json:"id"`
	Name                 string                   `json:"name,omitempty"`
	MRN                  string                   `json:"mrn,omitempty"`
	Age                  int                      `json:"age"`
	Gender               risk.Gender              `json:"gender"`
	CKDStage             int                      `json:"ckd_stage"`
	EGFR                 float64                  `json:"egfr"`
	EGFRTrend            Trend                    `json:"egfr_trend"`
	EGFRChange           float64                  `json:"egfr_change"`
	UACR                 *float64                 `json:"uacr,omitempty"`
	Albuminuria          risk.AlbuminuriaCategory `json:"albuminuria_category,omitempty"`
	Potassium            *float64                 `json:"potassium,omitempty"`
	Hemoglobin           *float64                 `json:"hemoglobin,omitempty"`
	Phosphorus           *float64                 `json:"phosphorus,omitempty"`
	HbA1c                *float64                 `json:"hba1c,omitempty"`
	SystolicBP           *float64                 `json:"systolic_bp,omitempty"`
	DiastolicBP          *float64                 `json:"diastolic_bp,omitempty"`
	BMI                  *float64                 `json:"bmi,omitempty"`
	SmokingStatus        risk.SmokingStatus       `json:"smoking_status,omitempty"`
	Comorbidities        risk.Comorbidities       `json:"comorbidities"`
	OnRASInhibitor       bool                     `json:"on_ras_inhibitor"`
	OnSGLT2i             bool                     `json:"on_sglt2i"`
	NephrotoxicMeds      bool                     `json:"nephrotoxic_meds"`
	NephrologistReferral bool                     `json:"nephrologist_referral"`
}

// Alert is one triggered rule.
type Alert struct {
	Severity Priority `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
}

// PatientAssessment is the scanner's verdict for one patient.
type PatientAssessment struct {
	PatientID          string                    `json:"patient_id"`
	Name               string                    `json:"name,omitempty"`
	MRN                string                    `json:"mrn,omitempty"`
	Age                int                       `json:"age"`
	Stage              int                       `json:"stage"`
	EGFR               float64                   `json:"egfr"`
	EGFRTrend          Trend                     `json:"egfr_trend"`
	EGFRChange         float64                   `json:"egfr_change"`
	Alerts             []Alert                   `json:"alerts"`
	SeverityScore      int                       `json:"severity_score"`
	Priority           Priority                  `json:"priority"`
	RequiresMonitoring bool                      `json:"requires_monitoring"`
	Classification     *risk.StageClassification `json:"classification,omitempty"`
}

func over(v *float64, limit float64) bool { return v != nil && *v > limit }
func atLeast(v *float64, limit float64) bool { return v != nil && *v >= limit }
func under(v *float64, limit float64) bool { return v != nil && *v < limit }

func albuminuriaOf(p PatientRecord) risk.AlbuminuriaCategory {
	if p.Albuminuria != "" {
		return p.Albuminuria
	}
	if p.UACR != nil {
		return risk.AlbuminuriaCategoryFor(*p.UACR)
	}
	return ""
}

// AssessPatient runs the high-risk rule set against one record.
func AssessPatient(p PatientRecord) PatientAssessment {
	var alerts []Alert
	score := 0
	raise := func(sev Priority, code, msg, action string) {
		alerts = append(alerts, Alert{Severity: sev, Code: code, Message: msg, Action: action})
		switch sev {
		case PriorityCritical:
			score += criticalPoints
		case PriorityHigh:
			score += highPoints
		case PriorityModerate:
			score += moderatePoints
		}
	}
	declining := p.EGFRTrend == TrendDown
	c := p.Comorbidities

	// Critical.
	if declining && p.EGFRChange <= -10 {
		raise(PriorityCritical, "RAPID_DECLINE",
			fmt.Sprintf("Rapid eGFR decline (%.1f%%)", p.EGFRChange),
			"Urgent nephrology referral; investigate reversible causes (AKI, medications, obstruction)")
	}
	if p.CKDStage >= 4 && !p.NephrologistReferral {
		raise(PriorityCritical, "NO_SPECIALIST",
			fmt.Sprintf("Stage %d CKD without nephrologist", p.CKDStage),
			"Immediate nephrology referral; dialysis planning may be needed")
	}
	if over(p.Potassium, 6.0) {
		raise(PriorityCritical, "HYPERKALEMIA",
			fmt.Sprintf("Severe hyperkalemia (K+ %.1f mEq/L)", *p.Potassium),
			"Immediate evaluation: cardiac monitoring, stop K+-sparing agents, consider dialysis")
	}
	if under(p.Hemoglobin, 9.0) && p.CKDStage >= 3 {
		raise(PriorityCritical, "SEVERE_ANEMIA",
			fmt.Sprintf("Severe anemia (Hb %.1f g/dL)", *p.Hemoglobin),
			"Urgent iron studies, B12/folate and GI evaluation; consider ESA therapy")
	}
	if over(p.UACR, 300) && declining {
		raise(PriorityCritical, "NEPHROTIC_DECLINE",
			fmt.Sprintf("Nephrotic-range proteinuria (uACR %.0f mg/g) with declining eGFR", *p.UACR),
			"Urgent nephrology referral; consider kidney biopsy, exclude glomerulonephritis")
	}

	// High.
	if albuminuriaOf(p) == risk.AlbuminuriaA3 && p.UACR != nil && *p.UACR <= 300 {
		raise(PriorityHigh, "HEAVY_PROTEINURIA",
			fmt.Sprintf("Heavy proteinuria (A3, uACR %.0f mg/g)", *p.UACR),
			"Optimise RAS inhibition; add SGLT2i if diabetic")
	}
	if (atLeast(p.SystolicBP, 140) || atLeast(p.DiastolicBP, 90)) && p.CKDStage >= 3 {
		raise(PriorityHigh, "UNCONTROLLED_HTN",
			fmt.Sprintf("Uncontrolled hypertension (%s mmHg)", formatBP(p.SystolicBP, p.DiastolicBP)),
			"Intensify antihypertensive therapy; target <130/80 in CKD with proteinuria")
	}
	if over(p.HbA1c, 7.5) && c.Diabetes {
		raise(PriorityHigh, "UNCONTROLLED_DM",
			fmt.Sprintf("Uncontrolled diabetes (HbA1c %.1f%%)", *p.HbA1c),
			"Optimise glycaemic control to HbA1c <7%; strongly consider SGLT2i")
	}
	if over(p.Phosphorus, 4.5) && p.CKDStage >= 4 {
		raise(PriorityHigh, "HYPERPHOSPHATEMIA",
			fmt.Sprintf("Elevated phosphorus (%.1f mg/dL)", *p.Phosphorus),
			"Dietary phosphate counselling; start phosphate binders")
	}
	if p.NephrotoxicMeds && declining {
		raise(PriorityHigh, "NEPHROTOXIC_MEDS",
			"Nephrotoxic medications with declining kidney function",
			"Urgent medication review; stop or substitute NSAIDs and aminoglycosides")
	}
	if p.Hemoglobin != nil && *p.Hemoglobin >= 9.0 && *p.Hemoglobin < 11.0 && p.CKDStage >= 3 {
		raise(PriorityHigh, "MODERATE_ANEMIA",
			fmt.Sprintf("Moderate anemia (Hb %.1f g/dL)", *p.Hemoglobin),
			"Iron studies; correct iron deficiency and monitor for progression")
	}
	if p.Potassium != nil && *p.Potassium > 5.5 && *p.Potassium <= 6.0 {
		raise(PriorityHigh, "MODERATE_HYPERKALEMIA",
			fmt.Sprintf("Moderate hyperkalemia (K+ %.1f mEq/L)", *p.Potassium),
			"Dietary counselling, medication review; consider a K+ binder if persistent")
	}

	// Moderate.
	if p.CKDStage >= 2 && over(p.UACR, 30) && !p.OnRASInhibitor {
		raise(PriorityModerate, "NO_RAS_INHIBITOR",
			"Proteinuria without RAS inhibitor therapy",
			"Start an ACE inhibitor or ARB")
	}
	if c.Diabetes && p.CKDStage >= 2 && !p.OnSGLT2i && p.EGFR >= risk.SGLT2EGFRFloor {
		raise(PriorityModerate, "NO_SGLT2I",
			"Diabetic CKD without SGLT2 inhibitor",
			"Consider an SGLT2 inhibitor for renoprotection")
	}
	if atLeast(p.BMI, 30) && p.CKDStage >= 2 {
		raise(PriorityModerate, "OBESITY",
			fmt.Sprintf("Obesity (BMI %.1f kg/m²)", *p.BMI),
			"Weight management programme targeting 5-10% loss")
	}
	if p.SmokingStatus == risk.SmokingCurrent && p.CKDStage >= 2 {
		raise(PriorityModerate, "ACTIVE_SMOKING",
			"Active smoker",
			"Smoking cessation counselling and pharmacotherapy")
	}
	if p.CKDStage >= 3 && declining && p.EGFRChange < -5 {
		raise(PriorityModerate, "PROGRESSIVE_CKD",
			fmt.Sprintf("Progressive CKD (stage %d, eGFR %.1f%%)", p.CKDStage, p.EGFRChange),
			"Review medications, optimise BP and glucose control, ensure nephrology follow-up")
	}

	if alerts == nil {
		alerts = []Alert{}
	}
	a := PatientAssessment{
		PatientID:          p.ID,
		Name:               p.Name,
		MRN:                p.MRN,
		Age:                p.Age,
		Stage:              p.CKDStage,
		EGFR:               p.EGFR,
		EGFRTrend:          p.EGFRTrend,
		EGFRChange:         p.EGFRChange,
		Alerts:             alerts,
		SeverityScore:      score,
		Priority:           priorityFor(score),
		RequiresMonitoring: len(alerts) > 0,
	}
	if p.UACR != nil {
		if sc, err := risk.ClassifyStage(risk.LabSnapshot{EGFR: p.EGFR, UACR: p.UACR}, c); err == nil {
			a.Classification = &sc
		}
	}
	return a
}

func priorityFor(score int) Priority {
	switch {
	case score >= 20:
		return PriorityCritical
	case score >= 10:
		return PriorityHigh
	case score >= 5:
		return PriorityModerate
	default:
		return PriorityLow
	}
}

func formatBP(sys, dia *float64) string {
	s, d := "?", "?"
	if sys != nil {
		s = fmt.Sprintf("%.0f", *sys)
	}
	if dia != nil {
		d = fmt.Sprintf("%.0f", *dia)
	}
	return s + "/" + d
}
