// Package risk classifies chronic kidney disease risk from lab values and
// demographics. Every function is pure and safe for concurrent use.
package risk

// GFRCategory is the KDIGO glomerular filtration rate category.
type GFRCategory string

const (
	GFRG1  GFRCategory = "G1"
	GFRG2  GFRCategory = "G2"
	GFRG3a GFRCategory = "G3a"
	GFRG3b GFRCategory = "G3b"
	GFRG4  GFRCategory = "G4"
	GFRG5  GFRCategory = "G5"
)

var gfrCategories = []GFRCategory{GFRG1, GFRG2, GFRG3a, GFRG3b, GFRG4, GFRG5}

// AllGFRCategories returns every GFR category ordered from normal to kidney failure.
func AllGFRCategories() []GFRCategory {
	return append([]GFRCategory(nil), gfrCategories...)
}

// Rank orders categories by severity; G1 is 0 and G5 is 5. Unknown values return -1.
func (g GFRCategory) Rank() int {
	for i, c := range gfrCategories {
		if c == g {
			return i
		}
	}
	return -1
}

// Stage is the numeric CKD stage implied by the category (G3a and G3b are both 3).
func (g GFRCategory) Stage() int {
	switch g {
	case GFRG1:
		return 1
	case GFRG2:
		return 2
	case GFRG3a, GFRG3b:
		return 3
	case GFRG4:
		return 4
	case GFRG5:
		return 5
	}
	return 0
}

// AlbuminuriaCategory is the KDIGO albuminuria category.
type AlbuminuriaCategory string

const (
	AlbuminuriaA1 AlbuminuriaCategory = "A1"
	AlbuminuriaA2 AlbuminuriaCategory = "A2"
	AlbuminuriaA3 AlbuminuriaCategory = "A3"
)

var albuminuriaCategories = []AlbuminuriaCategory{AlbuminuriaA1, AlbuminuriaA2, AlbuminuriaA3}

func AllAlbuminuriaCategories() []AlbuminuriaCategory {
	return append([]AlbuminuriaCategory(nil), albuminuriaCategories...)
}

func (a AlbuminuriaCategory) Rank() int {
	for i, c := range albuminuriaCategories {
		if c == a {
			return i
		}
	}
	return -1
}

// Label is the clinical name used in reports and alerts.
func (a AlbuminuriaCategory) Label() string {
	switch a {
	case AlbuminuriaA1:
		return "Normoalbuminuria (<30 mg/g)"
	case AlbuminuriaA2:
		return "Microalbuminuria (30-300 mg/g)"
	case AlbuminuriaA3:
		return "Macroalbuminuria (>300 mg/g)"
	}
	return string(a)
}

// RiskLevel is the ordinal KDIGO heat-map tier.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

var riskLevels = []RiskLevel{RiskLow, RiskModerate, RiskHigh, RiskVeryHigh}

func AllRiskLevels() []RiskLevel {
	return append([]RiskLevel(nil), riskLevels...)
}

func (r RiskLevel) Rank() int {
	for i, l := range riskLevels {
		if l == r {
			return i
		}
	}
	return -1
}

// CKDSeverity groups stages for display: mild (1-2), moderate (3), severe (4), kidney failure (5).
type CKDSeverity string

const (
	SeverityMild          CKDSeverity = "mild"
	SeverityModerate      CKDSeverity = "moderate"
	SeveritySevere        CKDSeverity = "severe"
	SeverityKidneyFailure CKDSeverity = "kidney_failure"
)

func severityForStage(stage int) CKDSeverity {
	switch stage {
	case 1, 2:
		return SeverityMild
	case 3:
		return SeverityModerate
	case 4:
		return SeveritySevere
	case 5:
		return SeverityKidneyFailure
	}
	return ""
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type SmokingStatus string

const (
	SmokingNever   SmokingStatus = "never"
	SmokingFormer  SmokingStatus = "former"
	SmokingCurrent SmokingStatus = "current"
)

// Comorbidities are the boolean history flags shared by every classifier.
type Comorbidities struct {
	Hypertension              bool `json:"hypertension"`
	Diabetes                  bool `json:"diabetes"`
	CardiovascularDisease     bool `json:"cardiovascular_disease"`
	PeripheralVascularDisease bool `json:"peripheral_vascular_disease"`
	HeartFailure              bool `json:"heart_failure"`
	Anemia                    bool `json:"anemia"`
}

// LabSnapshot is one set of lab values taken together. EGFR is always required;
// UACR is required for stage classification and optional for the phenotype engine.
type LabSnapshot struct {
	EGFR             float64  `json:"egfr" validate:"finite,gt=0"`
	UACR             *float64 `json:"uacr,omitempty" validate:"omitempty,finite,gte=0"`
	HbA1c            *float64 `json:"hba1c,omitempty" validate:"omitempty,finite,gt=0"`
	SystolicBP       *float64 `json:"systolic_bp,omitempty" validate:"omitempty,finite,gt=0"`
	DiastolicBP      *float64 `json:"diastolic_bp,omitempty" validate:"omitempty,finite,gt=0"`
	TotalCholesterol *float64 `json:"total_cholesterol,omitempty" validate:"omitempty,finite,gt=0"`
	HDLCholesterol   *float64 `json:"hdl_cholesterol,omitempty" validate:"omitempty,finite,gt=0"`
	Hemoglobin       *float64 `json:"hemoglobin,omitempty" validate:"omitempty,finite,gt=0"`
}

// FunctionalStatus holds the self-reported limitations used by the mortality module.
type FunctionalStatus struct {
	DifficultyBathing          bool `json:"difficulty_bathing"`
	DifficultyWalking          bool `json:"difficulty_walking"`
	DifficultyManagingFinances bool `json:"difficulty_managing_finances"`
	DifficultyPushingObjects   bool `json:"difficulty_pushing_objects"`
}

type Demographics struct {
	Age               int           `json:"age" validate:"gte=0,lte=130"`
	Gender            Gender        `json:"gender" validate:"oneof=male female"`
	Comorbidities     Comorbidities `json:"comorbidities"`
	SmokingStatus     SmokingStatus `json:"smoking_status,omitempty" validate:"omitempty,oneof=never former current"`
	BMI               *float64      `json:"bmi,omitempty" validate:"omitempty,finite,gt=0"`
	PriorCKDDiagnosis bool          `json:"prior_ckd_diagnosis"`
	// Functional is nil when the limitations were not assessed.
	Functional *FunctionalStatus `json:"functional,omitempty"`
}

// StageClassification is the KDIGO classification of one lab snapshot.
// CKDStage and CKDSeverity are zero unless HasCKD is true.
type StageClassification struct {
	EGFR                       float64             `json:"egfr"`
	UACR                       float64             `json:"uacr"`
	GFRCategory                GFRCategory         `json:"gfr_category"`
	AlbuminuriaCategory        AlbuminuriaCategory `json:"albuminuria_category"`
	HasCKD                     bool                `json:"has_ckd"`
	CKDStage                   int                 `json:"ckd_stage,omitempty"`
	CKDSeverity                CKDSeverity         `json:"ckd_severity,omitempty"`
	RiskLevel                  RiskLevel           `json:"risk_level"`
	HealthState                string              `json:"health_state"`
	Comorbidities              Comorbidities       `json:"comorbidities"`
	RecommendRASInhibitor      bool                `json:"recommend_ras_inhibitor"`
	RecommendSGLT2i            bool                `json:"recommend_sglt2i"`
	RequiresNephrologyReferral bool                `json:"requires_nephrology_referral"`
	TargetBP                   string              `json:"target_bp"`
	MonitoringFrequency        MonitoringFrequency `json:"monitoring_frequency"`
}

type ProbabilityBand string

const (
	ProbabilityLow      ProbabilityBand = "low"
	ProbabilityElevated ProbabilityBand = "elevated"
)

// Description is the human-readable meaning of the band.
func (p ProbabilityBand) Description() string {
	if p == ProbabilityElevated {
		return "elevated probability of undetected CKD"
	}
	return "low probability of undetected CKD"
}

// ScoreFactor is one risk factor that contributed points to a screening score.
type ScoreFactor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

type ScreeningScore struct {
	Points          int             `json:"points"`
	ProbabilityBand ProbabilityBand `json:"probability_band"`
	Factors         []ScoreFactor   `json:"factors"`
}

// HasFactor reports whether the named factor contributed to the score.
func (s ScreeningScore) HasFactor(name string) bool {
	for _, f := range s.Factors {
		if f.Name == name {
			return true
		}
	}
	return false
}

// NonCKDRisk refines the heat-map tier for patients without diagnosed CKD.
type NonCKDRisk struct {
	RiskLevel        RiskLevel       `json:"risk_level"`
	HeatMapRiskLevel RiskLevel       `json:"heat_map_risk_level"`
	ProbabilityBand  ProbabilityBand `json:"probability_band"`
	ScreeningPoints  int             `json:"screening_points"`
	Escalated        bool            `json:"escalated"`
	Diabetic         bool            `json:"diabetic"`
}

type RenalRiskCategory string

const (
	RenalLow      RenalRiskCategory = "low"
	RenalModerate RenalRiskCategory = "moderate"
	RenalHigh     RenalRiskCategory = "high"
	RenalVeryHigh RenalRiskCategory = "very_high"
)

func AllRenalRiskCategories() []RenalRiskCategory {
	return []RenalRiskCategory{RenalLow, RenalModerate, RenalHigh, RenalVeryHigh}
}

type CVDRiskCategory string

const (
	CVDLow          CVDRiskCategory = "low"
	CVDBorderline   CVDRiskCategory = "borderline"
	CVDIntermediate CVDRiskCategory = "intermediate"
	CVDHigh         CVDRiskCategory = "high"
)

func AllCVDRiskCategories() []CVDRiskCategory {
	return []CVDRiskCategory{CVDLow, CVDBorderline, CVDIntermediate, CVDHigh}
}

type MortalityRiskCategory string

const (
	MortalityLow      MortalityRiskCategory = "low"
	MortalityModerate MortalityRiskCategory = "moderate"
	MortalityHigh     MortalityRiskCategory = "high"
	MortalityVeryHigh MortalityRiskCategory = "very_high"
)

func AllMortalityRiskCategories() []MortalityRiskCategory {
	return []MortalityRiskCategory{MortalityLow, MortalityModerate, MortalityHigh, MortalityVeryHigh}
}

// RenalModuleResult is the 5-year incident CKD risk.
type RenalModuleResult struct {
	RiskPercent float64           `json:"risk_percent"`
	Category    RenalRiskCategory `json:"category"`
}

// CardiovascularModuleResult is the 10-year cardiovascular event risk.
type CardiovascularModuleResult struct {
	RiskPercent float64         `json:"risk_percent"`
	Category    CVDRiskCategory `json:"category"`
	HeartAge    int             `json:"heart_age,omitempty"`
}

// MortalityModuleResult is the 5-year all-cause mortality estimate.
type MortalityModuleResult struct {
	Points      int                   `json:"points"`
	RiskPercent float64               `json:"risk_percent"`
	Category    MortalityRiskCategory `json:"category"`
}

type PhenotypeType string

const (
	PhenotypeI        PhenotypeType = "I"
	PhenotypeII       PhenotypeType = "II"
	PhenotypeIII      PhenotypeType = "III"
	PhenotypeIV       PhenotypeType = "IV"
	PhenotypeModerate PhenotypeType = "Moderate"
	PhenotypeLow      PhenotypeType = "Low"
)

func AllPhenotypeTypes() []PhenotypeType {
	return []PhenotypeType{PhenotypeI, PhenotypeII, PhenotypeIII, PhenotypeIV, PhenotypeModerate, PhenotypeLow}
}

// Severity orders phenotypes for monitoring and display. II and III share a tier.
func (t PhenotypeType) Severity() int {
	switch t {
	case PhenotypeLow:
		return 0
	case PhenotypeModerate:
		return 1
	case PhenotypeII, PhenotypeIII:
		return 2
	case PhenotypeI:
		return 3
	case PhenotypeIV:
		return 4
	}
	return -1
}

type Phenotype struct {
	Type                     PhenotypeType `json:"type"`
	Name                     string        `json:"name"`
	Tag                      string        `json:"tag"`
	Color                    string        `json:"color"`
	ClinicalStrategy         []string      `json:"clinical_strategy"`
	TreatmentRecommendations []string      `json:"treatment_recommendations"`
	MortalityOverride        bool          `json:"mortality_override"`
}

type ConfidenceLevel string

const (
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceModerate ConfidenceLevel = "moderate"
	ConfidenceHigh     ConfidenceLevel = "high"
)

func (c ConfidenceLevel) Rank() int {
	switch c {
	case ConfidenceLow:
		return 0
	case ConfidenceModerate:
		return 1
	case ConfidenceHigh:
		return 2
	}
	return -1
}

// PhenotypeAssessment is the output of the geriatric tri-modal engine. When
// Eligible is false only IneligibleReason is populated.
type PhenotypeAssessment struct {
	Eligible              bool                        `json:"eligible"`
	IneligibleReason      string                      `json:"ineligible_reason,omitempty"`
	Renal                 *RenalModuleResult          `json:"renal,omitempty"`
	Cardiovascular        *CardiovascularModuleResult `json:"cardiovascular,omitempty"`
	Mortality             *MortalityModuleResult      `json:"mortality,omitempty"`
	Phenotype             *Phenotype                  `json:"phenotype,omitempty"`
	BenefitRatio          float64                     `json:"benefit_ratio,omitempty"`
	BenefitInterpretation string                      `json:"benefit_interpretation,omitempty"`
	ConfidenceLevel       ConfidenceLevel             `json:"confidence_level,omitempty"`
	DataCompleteness      int                         `json:"data_completeness,omitempty"`
	MissingInputs         []string                    `json:"missing_inputs,omitempty"`
}

// MonitoringFrequency is how often labs should be repeated.
type MonitoringFrequency string

const (
	MonitorWeekly     MonitoringFrequency = "weekly"
	MonitorBiweekly   MonitoringFrequency = "biweekly"
	MonitorMonthly    MonitoringFrequency = "monthly"
	MonitorQuarterly  MonitoringFrequency = "quarterly"
	MonitorBiannually MonitoringFrequency = "biannually"
	MonitorAnnually   MonitoringFrequency = "annually"
)

// Rank grows as the interval shortens; annually is 0, weekly is 5.
func (m MonitoringFrequency) Rank() int {
	switch m {
	case MonitorAnnually:
		return 0
	case MonitorBiannually:
		return 1
	case MonitorQuarterly:
		return 2
	case MonitorMonthly:
		return 3
	case MonitorBiweekly:
		return 4
	case MonitorWeekly:
		return 5
	}
	return -1
}

// IntervalDays is the nominal number of days between checks.
func (m MonitoringFrequency) IntervalDays() int {
	switch m {
	case MonitorWeekly:
		return 7
	case MonitorBiweekly:
		return 14
	case MonitorMonthly:
		return 30
	case MonitorQuarterly:
		return 91
	case MonitorBiannually:
		return 182
	case MonitorAnnually:
		return 365
	}
	return 0
}

// RecommendationBundle is the treatment and follow-up checklist for a classification.
type RecommendationBundle struct {
	Source                     string              `json:"source"`
	RecommendSGLT2i            bool                `json:"recommend_sglt2i"`
	RecommendRASInhibitor      bool                `json:"recommend_ras_inhibitor"`
	RecommendStatin            bool                `json:"recommend_statin"`
	RequiresNephrologyReferral bool                `json:"requires_nephrology_referral"`
	TargetBP                   string              `json:"target_bp"`
	MonitoringFrequency        MonitoringFrequency `json:"monitoring_frequency"`
}
