package risk

// Screening factor names as they appear in ScreeningScore.Factors.
const (
	FactorAge50to59          = "age_50_59"
	FactorAge60to69          = "age_60_69"
	FactorAge70Plus          = "age_70_plus"
	FactorFemale             = "female"
	FactorHypertension       = "hypertension"
	FactorDiabetes           = "diabetes"
	FactorCardiovascular     = "cardiovascular_disease"
	FactorPeripheralVascular = "peripheral_vascular_disease"
	FactorHeartFailure       = "heart_failure"
	FactorAnemia             = "anemia"
	FactorSmoking            = "smoking"
	FactorObesity            = "obesity"
	FactorLowGradeAlbumin    = "low_grade_albuminuria"
)

// ElevatedScreeningPoints is the score at which the probability band becomes elevated.
const ElevatedScreeningPoints = 4

// ComputeScreeningScore is a SCORED-style point score estimating the chance
// of undetected CKD. uacr may be nil.
func ComputeScreeningScore(d Demographics, uacr *float64) (ScreeningScore, error) {
	if err := validateDemographics(d); err != nil {
		return ScreeningScore{}, err
	}
	if err := validateUACR(uacr, false); err != nil {
		return ScreeningScore{}, err
	}

	var factors []ScoreFactor
	add := func(name string, pts int) {
		factors = append(factors, ScoreFactor{Name: name, Points: pts})
	}

	switch {
	case d.Age >= 70:
		add(FactorAge70Plus, 4)
	case d.Age >= 60:
		add(FactorAge60to69, 3)
	case d.Age >= 50:
		add(FactorAge50to59, 2)
	}
	if d.Gender == GenderFemale {
		add(FactorFemale, 1)
	}
	c := d.Comorbidities
	if c.Hypertension {
		add(FactorHypertension, 1)
	}
	if c.Diabetes {
		add(FactorDiabetes, 1)
	}
	if c.CardiovascularDisease {
		add(FactorCardiovascular, 1)
	}
	if c.PeripheralVascularDisease {
		add(FactorPeripheralVascular, 1)
	}
	if c.HeartFailure {
		add(FactorHeartFailure, 1)
	}
	if c.Anemia {
		add(FactorAnemia, 1)
	}
	if d.SmokingStatus == SmokingCurrent || d.SmokingStatus == SmokingFormer {
		add(FactorSmoking, 1)
	}
	if d.BMI != nil && *d.BMI >= 30 {
		add(FactorObesity, 1)
	}
	if uacr != nil && *uacr >= 10 {
		add(FactorLowGradeAlbumin, 1)
	}

	points := 0
	for _, f := range factors {
		points += f.Points
	}
	band := ProbabilityLow
	if points >= ElevatedScreeningPoints {
		band = ProbabilityElevated
	}
	if factors == nil {
		factors = []ScoreFactor{}
	}
	return ScreeningScore{Points: points, ProbabilityBand: band, Factors: factors}, nil
}
