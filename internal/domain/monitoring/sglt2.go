package monitoring

import (
	"fmt"
	"strings"

	"github.com/ehr/ckdrisk/internal/domain/risk"
)

// TreatmentUrgency is how strongly starting an SGLT2 inhibitor is advised.
type TreatmentUrgency string

const (
	UrgencyContinueMonitoring TreatmentUrgency = "continue_monitoring"
	UrgencyConsider           TreatmentUrgency = "consider_treatment"
	UrgencyStronglyRecommend  TreatmentUrgency = "strongly_recommend"
	UrgencyUrgent             TreatmentUrgency = "urgent_treatment"
)

// EligibilityInput carries the fields the SGLT2 criteria read.
type EligibilityInput struct {
	EGFR          float64            `json:"egfr"`
	CKDStage      int                `json:"ckd_stage"`
	UACR          float64            `json:"uacr"`
	Comorbidities risk.Comorbidities `json:"comorbidities"`
}

type SGLT2Eligibility struct {
	Eligible  bool             `json:"eligible"`
	Urgency   TreatmentUrgency `json:"urgency"`
	Rationale string           `json:"rationale"`
}

// EvaluateSGLT2Eligibility applies the EMPA-KIDNEY style criteria for an
// untreated patient.
func EvaluateSGLT2Eligibility(in EligibilityInput) SGLT2Eligibility {
	if in.EGFR < risk.SGLT2EGFRFloor {
		return SGLT2Eligibility{
			Urgency:   UrgencyContinueMonitoring,
			Rationale: fmt.Sprintf("eGFR below %.0f mL/min/1.73m², outside the approved range", risk.SGLT2EGFRFloor),
		}
	}

	var reasons []string
	eligible := false
	urgency := UrgencyContinueMonitoring
	c := in.Comorbidities

	switch {
	case c.Diabetes && in.CKDStage >= 2:
		eligible = true
		reasons = append(reasons, fmt.Sprintf("Diabetic CKD stage %d", in.CKDStage))
		switch {
		case in.UACR >= 300:
			urgency = UrgencyUrgent
			reasons = append(reasons, fmt.Sprintf("Macroalbuminuria (uACR %.0f mg/g)", in.UACR))
		case in.UACR >= 200:
			urgency = UrgencyStronglyRecommend
			reasons = append(reasons, fmt.Sprintf("Significant albuminuria (uACR %.0f mg/g)", in.UACR))
		case in.UACR >= 30:
			urgency = UrgencyStronglyRecommend
			reasons = append(reasons, fmt.Sprintf("Microalbuminuria (uACR %.0f mg/g)", in.UACR))
		default:
			urgency = UrgencyConsider
		}
	case !c.Diabetes && in.CKDStage >= 3 && in.UACR >= 200:
		eligible = true
		reasons = append(reasons, fmt.Sprintf("Non-diabetic CKD stage %d", in.CKDStage))
		if in.UACR >= 300 {
			urgency = UrgencyUrgent
			reasons = append(reasons, fmt.Sprintf("Macroalbuminuria (uACR %.0f mg/g)", in.UACR))
		} else {
			urgency = UrgencyStronglyRecommend
			reasons = append(reasons, fmt.Sprintf("Significant albuminuria (uACR %.0f mg/g)", in.UACR))
		}
	}

	if eligible {
		if c.Hypertension {
			reasons = append(reasons, "Hypertension present (additional cardiovascular benefit)")
		}
		if c.HeartFailure {
			reasons = append(reasons, "Heart failure present (additional cardioprotection)")
		}
		if in.CKDStage >= 4 {
			reasons = append(reasons, fmt.Sprintf("Advanced CKD stage %d", in.CKDStage))
			urgency = UrgencyUrgent
		}
	}

	rationale := "Does not meet treatment criteria"
	if len(reasons) > 0 {
		rationale = strings.Join(reasons, "; ")
	}
	return SGLT2Eligibility{Eligible: eligible, Urgency: urgency, Rationale: rationale}
}
