// Package assessment runs the CKD classification pipeline for callers, stores
// the results as FHIR RiskAssessment rows and exposes them over HTTP and
// CDS Hooks.
package assessment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ckdrisk/internal/domain/monitoring"
	"github.com/ehr/ckdrisk/internal/domain/risk"
	"github.com/ehr/ckdrisk/internal/platform/fhir"
)

// Assessment method codes.
const (
	MethodKDIGO = "kdigo-2024"
	MethodGCUA  = "gcua"
)

const methodSystem = "urn:ckdrisk:method"

// StageRequest is the body of POST /ckd/stage.
type StageRequest struct {
	Labs          risk.LabSnapshot   `json:"labs"`
	Comorbidities risk.Comorbidities `json:"comorbidities"`
}

type StageResponse struct {
	Classification  risk.StageClassification  `json:"classification"`
	Recommendations risk.RecommendationBundle `json:"recommendations"`
}

// ScreeningRequest is the body of POST /ckd/screening.
type ScreeningRequest struct {
	Demographics risk.Demographics `json:"demographics"`
	UACR         *float64          `json:"uacr,omitempty" validate:"omitempty,finite,gte=0"`
}

// PhenotypeRequest is the body of POST /ckd/phenotype.
type PhenotypeRequest struct {
	Labs         risk.LabSnapshot  `json:"labs"`
	Demographics risk.Demographics `json:"demographics"`
}

// AssessmentRequest is the input of the full pipeline. PatientID is optional;
// when set the result is stored.
type AssessmentRequest struct {
	PatientID    string            `json:"patient_id,omitempty" validate:"omitempty,max=64"`
	Labs         risk.LabSnapshot  `json:"labs"`
	Demographics risk.Demographics `json:"demographics"`
}

// cacheable is the request without the patient identity, so that equal lab
// values share one cache entry.
func (r AssessmentRequest) cacheable() AssessmentRequest {
	r.PatientID = ""
	return r
}

// AssessmentResult is the output of the full pipeline.
type AssessmentResult struct {
	AssessmentID       string                      `json:"assessment_id,omitempty"`
	RiskLevel          risk.RiskLevel              `json:"risk_level"`
	Stage              risk.StageClassification    `json:"stage"`
	Screening          *risk.ScreeningScore        `json:"screening,omitempty"`
	NonCKD             *risk.NonCKDRisk            `json:"non_ckd,omitempty"`
	Phenotype          risk.PhenotypeAssessment    `json:"phenotype"`
	Recommendations    risk.RecommendationBundle   `json:"recommendations"`
	AllRecommendations []risk.RecommendationBundle `json:"all_recommendations"`
	Cached             bool                        `json:"cached"`
}

// Method is gcua when a geriatric phenotype was assigned, kdigo-2024 otherwise.
func (r *AssessmentResult) Method() string {
	if r.Phenotype.Eligible && r.Phenotype.Phenotype != nil {
		return MethodGCUA
	}
	return MethodKDIGO
}

// Assessment is one stored pipeline result.
type Assessment struct {
	ID               uuid.UUID           `json:"id"`
	PatientID        string              `json:"patient_id"`
	Status           string              `json:"status"`
	Method           string              `json:"method"`
	RiskLevel        risk.RiskLevel      `json:"risk_level"`
	HealthState      string              `json:"health_state"`
	CKDStage         *int                `json:"ckd_stage,omitempty"`
	Phenotype        *risk.PhenotypeType `json:"phenotype,omitempty"`
	RenalRiskPercent *float64            `json:"renal_risk_percent,omitempty"`
	InputHash        string              `json:"input_hash"`
	PerformedBy      *string             `json:"performed_by,omitempty"`
	Result           AssessmentResult    `json:"result"`
	CreatedAt        time.Time           `json:"created_at"`
}

// NewAssessment builds the row stored for a pipeline result.
func NewAssessment(patientID, inputHash string, res *AssessmentResult) *Assessment {
	a := &Assessment{
		PatientID:   patientID,
		Status:      "final",
		Method:      res.Method(),
		RiskLevel:   res.RiskLevel,
		HealthState: res.Stage.HealthState,
		InputHash:   inputHash,
		Result:      *res,
	}
	if res.Stage.HasCKD {
		stage := res.Stage.CKDStage
		a.CKDStage = &stage
	}
	if p := res.Phenotype; p.Eligible {
		if p.Phenotype != nil {
			t := p.Phenotype.Type
			a.Phenotype = &t
		}
		if p.Renal != nil {
			pct := p.Renal.RiskPercent
			a.RenalRiskPercent = &pct
		}
	}
	return a
}

func (a *Assessment) ToFHIR() fhir.RiskAssessment {
	ra := fhir.RiskAssessment{
		ResourceType: "RiskAssessment",
		ID:           a.ID.String(),
		Meta:         &fhir.Meta{LastUpdated: a.CreatedAt.UTC()},
		Status:       a.Status,
		Method: &fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: methodSystem, Code: a.Method, Display: methodDisplay(a.Method)}},
		},
		Code: &fhir.CodeableConcept{Text: "Chronic kidney disease risk classification"},
		Subject: fhir.Reference{
			Reference: fhir.FormatReference("Patient", a.PatientID),
		},
		OccurrenceDateTime: a.CreatedAt.UTC().Format(time.RFC3339),
	}

	pred := fhir.RiskAssessmentPrediction{
		Outcome: &fhir.CodeableConcept{Text: "Chronic kidney disease progression"},
		QualitativeRisk: &fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  "http://terminology.hl7.org/CodeSystem/risk-probability",
				Code:    string(a.RiskLevel),
				Display: string(a.RiskLevel),
			}},
		},
		Rationale: a.HealthState,
	}
	if a.RenalRiskPercent != nil {
		p := *a.RenalRiskPercent / 100
		pred.ProbabilityDecimal = &p
		pred.Outcome.Text = "Incident chronic kidney disease within 5 years"
	}
	ra.Prediction = []fhir.RiskAssessmentPrediction{pred}

	if ph := a.Result.Phenotype.Phenotype; ph != nil {
		ra.Mitigation = strings.Join(ph.ClinicalStrategy, "\n")
		ra.Note = []fhir.Annotation{{Text: fmt.Sprintf("Phenotype %s: %s", ph.Type, ph.Name)}}
	} else {
		ra.Mitigation = strings.Join(bundleActions(a.Result.Recommendations), "\n")
	}
	if a.CKDStage != nil {
		ra.Extension = append(ra.Extension, fhir.Extension{
			URL:          "urn:ckdrisk:ckd-stage",
			ValueInteger: a.CKDStage,
		})
	}
	return ra
}

func methodDisplay(code string) string {
	if code == MethodGCUA {
		return "Geriatric CKD tri-modal phenotype"
	}
	return "KDIGO 2024 heat map"
}

// Recommendation labels shared by stored mitigations and CDS suggestions.
const (
	actionSGLT2    = "Start an SGLT2 inhibitor"
	actionRAS      = "Start or optimise a RAS inhibitor (ACEi or ARB)"
	actionStatin   = "Start a statin"
	actionReferral = "Refer to nephrology"
)

// bundleActions lists the bundle as short clinician-facing lines.
func bundleActions(b risk.RecommendationBundle) []string {
	var out []string
	if b.RecommendSGLT2i {
		out = append(out, actionSGLT2)
	}
	if b.RecommendRASInhibitor {
		out = append(out, actionRAS)
	}
	if b.RecommendStatin {
		out = append(out, actionStatin)
	}
	if b.RequiresNephrologyReferral {
		out = append(out, actionReferral)
	}
	if b.TargetBP != "" {
		out = append(out, "Blood pressure target "+b.TargetBP)
	}
	if b.MonitoringFrequency != "" {
		out = append(out, "Repeat eGFR and uACR "+string(b.MonitoringFrequency))
	}
	return out
}

// MonitoringAlert is one persisted monitoring alert.
type MonitoringAlert struct {
	ID        uuid.UUID           `json:"id"`
	AlertID   string              `json:"alert_id"`
	PatientID string              `json:"patient_id"`
	Severity  monitoring.Priority `json:"severity"`
	AlertType string              `json:"alert_type"`
	Message   string              `json:"message"`
	Payload   json.RawMessage     `json:"payload"`
	CreatedAt time.Time           `json:"created_at"`
}

// UACRCheckResult is the response of POST /monitoring/uacr. Alert is nil when
// the uACR is not worsening.
type UACRCheckResult struct {
	Analysis monitoring.UACRAnalysis   `json:"uacr_analysis"`
	Alert    *monitoring.ClinicalAlert `json:"alert,omitempty"`
	Stored   bool                      `json:"stored"`
}

// ScanRequest is the body of POST /monitoring/scan.
type ScanRequest struct {
	Patients []monitoring.PatientRecord `json:"patients" validate:"required,min=1,max=5000"`
}
