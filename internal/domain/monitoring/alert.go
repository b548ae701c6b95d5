package monitoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehr/ckdrisk/internal/domain/risk"
)

const (
	AlertWorseningOnTreatment = "UACR_WORSENING_ON_TREATMENT"
	AlertWorseningUntreated   = "UACR_WORSENING_UNTREATED"
)

// UACRCheck is everything needed to decide whether a uACR trend warrants an alert.
type UACRCheck struct {
	PatientID     string             `json:"patient_id" validate:"required"`
	PatientName   string             `json:"patient_name,omitempty"`
	EGFR          float64            `json:"egfr" validate:"finite,gt=0"`
	CKDStage      int                `json:"ckd_stage" validate:"gte=0,lte=5"`
	Comorbidities risk.Comorbidities `json:"comorbidities"`
	History       []Measurement      `json:"uacr_history" validate:"min=2,dive"`
	Treatment     *TreatmentRecord   `json:"treatment,omitempty"`
}

// ClinicalAlert is the physician-facing notice for a worsening uACR trend.
type ClinicalAlert struct {
	ID                 string             `json:"alert_id"`
	Severity           Priority           `json:"severity"`
	PatientID          string             `json:"patient_id"`
	PatientName        string             `json:"patient_name,omitempty"`
	Type               string             `json:"alert_type"`
	Message            string             `json:"message"`
	UACR               UACRAnalysis       `json:"uacr_analysis"`
	Adherence          *AdherenceAnalysis `json:"adherence_analysis,omitempty"`
	Eligibility        *SGLT2Eligibility  `json:"treatment_eligibility,omitempty"`
	RecommendedActions []string           `json:"recommended_actions"`
	ClinicalRationale  string             `json:"clinical_rationale"`
	NextCheck          string             `json:"next_uacr_check"`
	Timestamp          time.Time          `json:"timestamp"`
}

// CheckUACR analyses the trend and returns an alert only when the uACR is
// worsening. The clock is passed in so results are reproducible.
func CheckUACR(in UACRCheck, now time.Time) (*ClinicalAlert, UACRAnalysis, error) {
	analysis, err := AnalyzeUACRChange(in.History)
	if err != nil {
		return nil, UACRAnalysis{}, err
	}
	if !analysis.Worsening {
		return nil, analysis, nil
	}
	adh := AnalyzeAdherence(in.Treatment)
	id := fmt.Sprintf("ALERT-%s-%s", in.PatientID, now.UTC().Format("20060102150405"))
	alert := BuildClinicalAlert(in, analysis, adh, id, now)
	return &alert, analysis, nil
}

func alertSeverity(l WorseningLevel) Priority {
	switch l {
	case WorseningSevere:
		return PriorityCritical
	case WorseningCategoryProgression, WorseningModerate:
		return PriorityHigh
	case WorseningMild:
		return PriorityModerate
	}
	return PriorityLow
}

// BuildClinicalAlert assembles the alert text and actions for a worsening trend.
func BuildClinicalAlert(in UACRCheck, u UACRAnalysis, adh AdherenceAnalysis, id string, at time.Time) ClinicalAlert {
	a := ClinicalAlert{
		ID:          id,
		Severity:    alertSeverity(u.Level),
		PatientID:   in.PatientID,
		PatientName: in.PatientName,
		UACR:        u,
		Timestamp:   at.UTC(),
		NextCheck:   "2-4 weeks",
	}
	if u.Level == WorseningMild {
		a.NextCheck = "1-2 months"
	}
	who := in.PatientName
	if who == "" {
		who = in.PatientID
	}
	change := fmt.Sprintf("%+.1f%%", u.PercentChange)

	var actions, rationale []string
	rationale = append(rationale, fmt.Sprintf("uACR rose from %.0f to %.0f mg/g (%s) over %d days, %s.",
		u.Previous.Value, u.Current.Value, change, u.DaysBetween, u.Level.Description()))
	if u.CurrentCategory != u.PreviousCategory {
		rationale = append(rationale, fmt.Sprintf("Progression from %s to %s indicates advancing kidney disease.",
			u.PreviousCategory.Label(), u.CurrentCategory.Label()))
	}
	rationale = append(rationale, fmt.Sprintf("Current kidney function: eGFR %.1f mL/min/1.73m² (CKD stage %d).", in.EGFR, in.CKDStage))

	if adh.OnTreatment {
		a.Type = AlertWorseningOnTreatment
		a.Adherence = &adh
		if !adh.Adherent {
			a.Message = fmt.Sprintf("uACR worsening with poor adherence: %s shows %s (%s) while prescribed %s (MPR %.1f%%)",
				who, u.Level.Description(), change, adh.Medication, adh.MPR)
			actions = append(actions, fmt.Sprintf("Address medication adherence; current MPR %.1f%%", adh.MPR))
			if adh.RefillGapDays > MaxRefillGapDays {
				actions = append(actions, fmt.Sprintf("Contact patient today about a %d-day refill gap", adh.RefillGapDays))
			}
			if len(adh.Barriers) > 0 {
				actions = append(actions, "Identified barriers: "+strings.Join(adh.Barriers, ", "))
				actions = append(actions, "Implement interventions targeting the identified barriers")
			} else {
				actions = append(actions, "Schedule adherence counselling to identify barriers")
			}
			actions = append(actions, "Consider a medication reminder app or smart pill bottle")
			rationale = append(rationale, fmt.Sprintf("Poor adherence to %s (MPR %.1f%%) is likely contributing to progression.", adh.Medication, adh.MPR))
			if adh.RefillGapDays > 30 {
				rationale = append(rationale, fmt.Sprintf("Patient has been without medication for %d days.", adh.RefillGapDays))
			}
		} else {
			a.Message = fmt.Sprintf("uACR worsening despite good adherence: %s shows %s (%s) on %s (MPR %.1f%%)",
				who, u.Level.Description(), change, adh.Medication, adh.MPR)
			actions = append(actions,
				"Adherence is good; evaluate treatment failure or progression",
				"Repeat uACR in 1-2 weeks to confirm",
				"Review blood pressure control and dietary sodium",
				"Evaluate for acute illness or dehydration",
			)
			if u.Current.Value >= 300 {
				actions = append(actions,
					"Consider adding a mineralocorticoid receptor antagonist (finerenone)",
					"Consider a GLP-1 receptor agonist if diabetic",
					"Refer to nephrology",
				)
			}
			rationale = append(rationale, fmt.Sprintf("Despite good adherence to %s (MPR %.1f%%, PDC %.1f%%) proteinuria is worsening.", adh.Medication, adh.MPR, adh.PDC))
		}
	} else {
		a.Type = AlertWorseningUntreated
		el := EvaluateSGLT2Eligibility(EligibilityInput{
			EGFR:          in.EGFR,
			CKDStage:      in.CKDStage,
			UACR:          u.Current.Value,
			Comorbidities: in.Comorbidities,
		})
		a.Eligibility = &el
		a.Message = fmt.Sprintf("uACR worsening in untreated patient: %s shows %s (%s) and is not on kidney-protective therapy",
			who, u.Level.Description(), change)
		switch {
		case !el.Eligible:
			actions = append(actions,
				"Continue monitoring; treatment criteria not yet met",
				"Optimise blood pressure and RAS inhibitor therapy",
				"Reinforce lifestyle changes",
			)
			rationale = append(rationale, "Patient does not currently meet SGLT2 inhibitor criteria.")
		case el.Urgency == UrgencyUrgent:
			actions = append(actions, "Start an SGLT2 inhibitor now", "Indication: "+el.Rationale, "Follow up in 2-4 weeks to assess tolerance")
		case el.Urgency == UrgencyStronglyRecommend:
			actions = append(actions, "Strongly recommend starting an SGLT2 inhibitor", "Indication: "+el.Rationale)
		default:
			actions = append(actions, "Consider an SGLT2 inhibitor", "Rationale: "+el.Rationale, "Discuss risks and benefits with the patient")
		}
		if el.Eligible {
			rationale = append(rationale, "Patient meets SGLT2 inhibitor criteria: "+el.Rationale+".")
		}
	}

	actions = append(actions,
		fmt.Sprintf("Trend: uACR %.0f -> %.0f mg/g (%s)", u.Previous.Value, u.Current.Value, change),
		"Next uACR check in "+a.NextCheck,
	)
	a.RecommendedActions = actions
	a.ClinicalRationale = strings.Join(rationale, " ")
	return a
}
