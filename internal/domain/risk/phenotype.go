package risk

import (
	"fmt"
	"math"
	"slices"
)

const (
	// MinPhenotypeAge is the youngest age the geriatric engine accepts.
	MinPhenotypeAge = 60
	// MortalityOverridePercent forces Phenotype IV regardless of the matrix.
	MortalityOverridePercent = 50.0
)

type phenotypeProfile struct {
	color     string
	strategy  []string
	treatment []string
}

// phenotypeProfiles is read-only after package init; callers get copies.
var phenotypeProfiles = map[PhenotypeType]phenotypeProfile{
	PhenotypeI: {
		color: "#dc2626",
		strategy: []string{
			"Aggressive combined renal and cardiovascular risk reduction",
			"Annual uACR and eGFR; lipid panel every 6 months",
			"Coordinate nephrology and cardiology follow-up",
		},
		treatment: []string{
			"Start SGLT2 inhibitor",
			"Start or titrate ACE inhibitor / ARB",
			"High-intensity statin",
			"Blood pressure target <130/80 mmHg",
		},
	},
	PhenotypeII: {
		color: "#ea580c",
		strategy: []string{
			"Renal-focused prevention with low cardiovascular burden",
			"uACR and eGFR every 3 months until stable",
		},
		treatment: []string{
			"Start SGLT2 inhibitor",
			"Start or titrate ACE inhibitor / ARB",
			"Blood pressure target <130/80 mmHg",
		},
	},
	PhenotypeIII: {
		color: "#9333ea",
		strategy: []string{
			"Cardiovascular-focused prevention; renal risk is low",
			"Lipid panel and blood pressure review every 3 months",
		},
		treatment: []string{
			"Moderate- or high-intensity statin",
			"Blood pressure target <130/80 mmHg",
		},
	},
	PhenotypeIV: {
		color: "#4b5563",
		strategy: []string{
			"Competing mortality dominates; prioritise quality of life",
			"Review and deprescribe medications without near-term benefit",
			"Discuss goals of care",
		},
		treatment: []string{
			"Avoid initiating long-horizon preventive therapy",
			"Relaxed blood pressure target <150/90 mmHg",
		},
	},
	PhenotypeModerate: {
		color: "#ca8a04",
		strategy: []string{
			"Watchful monitoring of renal and cardiovascular markers",
			"uACR and eGFR every 6 months",
		},
		treatment: []string{
			"Consider ACE inhibitor / ARB if albuminuria develops",
			"Moderate-intensity statin",
			"Blood pressure target <130/80 mmHg",
		},
	},
	PhenotypeLow: {
		color: "#16a34a",
		strategy: []string{
			"Routine preventive care",
			"Annual eGFR and uACR",
		},
		treatment: []string{
			"Lifestyle counselling",
			"Blood pressure target <140/90 mmHg",
		},
	},
}

type matrixCell struct {
	typ  PhenotypeType
	name string
	tag  string
}

// phenotypeMatrix is indexed by renal row (low, moderate, high) then
// cardiovascular column (low, intermediate, high).
var phenotypeMatrix = [3][3]matrixCell{
	{
		{PhenotypeLow, "Low Risk", "low-risk"},
		{PhenotypeLow, "CV Intermediate", "cv-intermediate"},
		{PhenotypeIII, "Vascular Dominant", "vascular-dominant"},
	},
	{
		{PhenotypeModerate, "Renal Watch", "renal-watch"},
		{PhenotypeModerate, "Cardiorenal Moderate", "cardiorenal-moderate"},
		{PhenotypeModerate, "Cardiorenal Moderate", "cardiorenal-moderate"},
	},
	{
		{PhenotypeII, "Silent Renal", "silent-renal"},
		{PhenotypeI, "Cardiorenal High", "cardiorenal-high"},
		{PhenotypeI, "Accelerated Ager", "accelerated-ager"},
	},
}

var competingMortality = matrixCell{PhenotypeIV, "Competing Mortality", "competing-mortality"}

func renalRow(c RenalRiskCategory) (int, error) {
	switch c {
	case RenalLow:
		return 0, nil
	case RenalModerate:
		return 1, nil
	case RenalHigh, RenalVeryHigh:
		return 2, nil
	}
	return 0, &ValidationError{Field: "renal.category", Value: string(c), Reason: "unknown category"}
}

func cvdColumn(c CVDRiskCategory) (int, error) {
	switch c {
	case CVDLow:
		return 0, nil
	case CVDBorderline, CVDIntermediate:
		return 1, nil
	case CVDHigh:
		return 2, nil
	}
	return 0, &ValidationError{Field: "cardiovascular.category", Value: string(c), Reason: "unknown category"}
}

func newPhenotype(cell matrixCell, override bool) Phenotype {
	p := phenotypeProfiles[cell.typ]
	return Phenotype{
		Type:                     cell.typ,
		Name:                     cell.name,
		Tag:                      cell.tag,
		Color:                    p.color,
		ClinicalStrategy:         slices.Clone(p.strategy),
		TreatmentRecommendations: slices.Clone(p.treatment),
		MortalityOverride:        override,
	}
}

// AssignPhenotype places the three module results on the 3x3 matrix. A 5-year
// mortality of 50% or more overrides the matrix with Phenotype IV.
func AssignPhenotype(renal RenalModuleResult, cvd CardiovascularModuleResult, mortality MortalityModuleResult) (Phenotype, error) {
	if !finite(mortality.RiskPercent) || mortality.RiskPercent < 0 {
		return Phenotype{}, &ValidationError{Field: "mortality.risk_percent", Value: mortality.RiskPercent, Reason: "must be a finite percentage"}
	}
	if mortality.RiskPercent >= MortalityOverridePercent {
		return newPhenotype(competingMortality, true), nil
	}
	row, err := renalRow(renal.Category)
	if err != nil {
		return Phenotype{}, err
	}
	col, err := cvdColumn(cvd.Category)
	if err != nil {
		return Phenotype{}, err
	}
	return newPhenotype(phenotypeMatrix[row][col], false), nil
}

// BenefitRatio weighs modifiable risk against competing mortality. The
// denominator is floored at 1 percentage point.
func BenefitRatio(renalPct, cvdPct, mortalityPct float64) float64 {
	r := (renalPct + cvdPct) / math.Max(mortalityPct, 1)
	return math.Round(r*100) / 100
}

// InterpretBenefitRatio returns the clinical reading of a benefit ratio.
func InterpretBenefitRatio(ratio float64) string {
	switch {
	case ratio >= 2:
		return "High benefit: modifiable renal and cardiovascular risk outweighs competing mortality"
	case ratio >= 1:
		return "Moderate benefit: preventive therapy is reasonable with shared decision-making"
	default:
		return "Limited benefit: competing mortality dominates, prioritise quality of life"
	}
}

// completenessInputs lists the optional inputs that feed the modules, in
// report order.
var completenessInputs = []struct {
	name    string
	present func(LabSnapshot, Demographics) bool
}{
	{"uacr", func(s LabSnapshot, _ Demographics) bool { return s.UACR != nil }},
	{"bmi", func(_ LabSnapshot, d Demographics) bool { return d.BMI != nil }},
	{"systolic_bp", func(s LabSnapshot, _ Demographics) bool { return s.SystolicBP != nil }},
	{"total_cholesterol", func(s LabSnapshot, _ Demographics) bool { return s.TotalCholesterol != nil }},
	{"hdl_cholesterol", func(s LabSnapshot, _ Demographics) bool { return s.HDLCholesterol != nil }},
	{"smoking_status", func(_ LabSnapshot, d Demographics) bool { return d.SmokingStatus != "" }},
	{"hba1c", func(s LabSnapshot, _ Demographics) bool { return s.HbA1c != nil }},
	{"functional_status", func(_ LabSnapshot, d Demographics) bool { return d.Functional != nil }},
}

// DataCompleteness returns the percentage of optional inputs present and the
// names of those missing.
func DataCompleteness(snap LabSnapshot, d Demographics) (int, []string) {
	var missing []string
	for _, in := range completenessInputs {
		if !in.present(snap, d) {
			missing = append(missing, in.name)
		}
	}
	present := len(completenessInputs) - len(missing)
	pct := int(math.Round(100 * float64(present) / float64(len(completenessInputs))))
	return pct, missing
}

// Confidence grades a completeness percentage. Without uACR the renal module
// relies on eGFR alone, so confidence never exceeds moderate.
func Confidence(completeness int, hasUACR bool) ConfidenceLevel {
	var c ConfidenceLevel
	switch {
	case completeness >= 85:
		c = ConfidenceHigh
	case completeness >= 60:
		c = ConfidenceModerate
	default:
		c = ConfidenceLow
	}
	if !hasUACR && c == ConfidenceHigh {
		c = ConfidenceModerate
	}
	return c
}

// PhenotypeEligibility reports whether the geriatric engine applies. Patients
// under 60, and those with established CKD and eGFR at or below 60, are
// excluded.
func PhenotypeEligibility(snap LabSnapshot, d Demographics) (bool, string) {
	if d.Age < MinPhenotypeAge {
		return false, fmt.Sprintf("age %d is below the minimum of %d for geriatric phenotyping", d.Age, MinPhenotypeAge)
	}
	if d.PriorCKDDiagnosis && snap.EGFR <= CKDEGFRThreshold {
		return false, fmt.Sprintf("established CKD with eGFR %.1f; manage by KDIGO stage", snap.EGFR)
	}
	return true, ""
}

// AssessPhenotype runs the tri-modal engine for an elderly patient. Ineligible
// patients get a result with Eligible=false and a reason, not an error.
func AssessPhenotype(snap LabSnapshot, d Demographics) (PhenotypeAssessment, error) {
	if err := validateDemographics(d); err != nil {
		return PhenotypeAssessment{}, err
	}
	if d.Age < MinPhenotypeAge {
		_, reason := PhenotypeEligibility(snap, d)
		return PhenotypeAssessment{Eligible: false, IneligibleReason: reason}, nil
	}
	if err := validateSnapshot(snap, false); err != nil {
		return PhenotypeAssessment{}, err
	}
	if ok, reason := PhenotypeEligibility(snap, d); !ok {
		return PhenotypeAssessment{Eligible: false, IneligibleReason: reason}, nil
	}

	renal := RenalModule(snap, d)
	cvd := CardiovascularModule(snap, d)
	mort := MortalityModule(snap, d)
	ph, err := AssignPhenotype(renal, cvd, mort)
	if err != nil {
		return PhenotypeAssessment{}, err
	}
	ratio := BenefitRatio(renal.RiskPercent, cvd.RiskPercent, mort.RiskPercent)
	completeness, missing := DataCompleteness(snap, d)

	return PhenotypeAssessment{
		Eligible:              true,
		Renal:                 &renal,
		Cardiovascular:        &cvd,
		Mortality:             &mort,
		Phenotype:             &ph,
		BenefitRatio:          ratio,
		BenefitInterpretation: InterpretBenefitRatio(ratio),
		ConfidenceLevel:       Confidence(completeness, snap.UACR != nil),
		DataCompleteness:      completeness,
		MissingInputs:         missing,
	}, nil
}
