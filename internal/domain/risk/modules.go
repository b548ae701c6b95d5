package risk

import "math"

// Defaults imputed when optional inputs are absent. Imputation lowers the
// reported confidence through DataCompleteness.
const (
	defaultSystolicBP       = 130.0
	defaultCholesterolRatio = 4.0
)

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// CategorizeRenal buckets a 5-year incident CKD percentage.
func CategorizeRenal(pct float64) RenalRiskCategory {
	switch {
	case pct >= 30:
		return RenalVeryHigh
	case pct >= 15:
		return RenalHigh
	case pct >= 5:
		return RenalModerate
	default:
		return RenalLow
	}
}

// CategorizeCardiovascular buckets a 10-year CVD event percentage using the
// PCE cut points.
func CategorizeCardiovascular(pct float64) CVDRiskCategory {
	switch {
	case pct >= 20:
		return CVDHigh
	case pct >= 10:
		return CVDIntermediate
	case pct >= 7.5:
		return CVDBorderline
	default:
		return CVDLow
	}
}

// CategorizeMortality buckets a 5-year mortality percentage.
func CategorizeMortality(pct float64) MortalityRiskCategory {
	switch {
	case pct >= 50:
		return MortalityVeryHigh
	case pct >= 25:
		return MortalityHigh
	case pct >= 10:
		return MortalityModerate
	default:
		return MortalityLow
	}
}

// RenalModule estimates the 5-year risk of incident CKD.
func RenalModule(snap LabSnapshot, d Demographics) RenalModuleResult {
	c := d.Comorbidities
	x := -5.0
	x += 0.55 * float64(d.Age-60) / 10
	x += 0.045 * (90 - math.Min(snap.EGFR, 120))
	if d.Gender == GenderFemale {
		x += 0.25
	}
	if c.Hypertension {
		x += 0.45
	}
	if c.Diabetes {
		x += 0.6
	}
	if c.CardiovascularDisease {
		x += 0.35
	}
	if c.PeripheralVascularDisease {
		x += 0.3
	}
	if c.HeartFailure {
		x += 0.3
	}
	if snap.UACR != nil && *snap.UACR > 10 {
		x += 0.5 * math.Log(*snap.UACR/10)
	}
	if snap.HbA1c != nil && *snap.HbA1c > 7 {
		x += 0.15 * (*snap.HbA1c - 7)
	}
	if d.BMI != nil && *d.BMI >= 30 {
		x += 0.3
	}
	if d.SmokingStatus == SmokingCurrent {
		x += 0.2
	}
	pct := round1(100 * logistic(x))
	return RenalModuleResult{RiskPercent: pct, Category: CategorizeRenal(pct)}
}

func cvdSexTerm(g Gender) float64 {
	if g == GenderMale {
		return 0.4
	}
	return 0
}

// CardiovascularModule estimates the 10-year risk of a cardiovascular event
// and the heart age implied by it.
func CardiovascularModule(snap LabSnapshot, d Demographics) CardiovascularModuleResult {
	c := d.Comorbidities
	sbp := defaultSystolicBP
	if snap.SystolicBP != nil {
		sbp = *snap.SystolicBP
	}
	ratio := defaultCholesterolRatio
	if snap.TotalCholesterol != nil && snap.HDLCholesterol != nil {
		ratio = *snap.TotalCholesterol / *snap.HDLCholesterol
	}

	base := -4.2 + cvdSexTerm(d.Gender)
	x := base + 0.6*float64(d.Age-60)/10
	x += 0.012 * (sbp - 120)
	x += 0.3 * math.Log(ratio/defaultCholesterolRatio)
	if c.Diabetes {
		x += 0.55
	}
	switch d.SmokingStatus {
	case SmokingCurrent:
		x += 0.6
	case SmokingFormer:
		x += 0.15
	}
	if c.Hypertension {
		x += 0.35
	}
	if c.CardiovascularDisease {
		x += 0.9
	}
	if c.HeartFailure {
		x += 0.5
	}
	if snap.EGFR < CKDEGFRThreshold {
		x += 0.2
	}
	if snap.UACR != nil && *snap.UACR >= CKDUACRThreshold {
		x += 0.3
	}

	pct := round1(100 * logistic(x))
	heartAge := 60 + 10*(x-base)/0.6
	heartAge = math.Max(30, math.Min(110, heartAge))
	return CardiovascularModuleResult{
		RiskPercent: pct,
		Category:    CategorizeCardiovascular(pct),
		HeartAge:    int(math.Round(heartAge)),
	}
}

// mortalityByPoints maps point totals, in steps of two, to 5-year mortality.
var mortalityByPoints = []float64{3, 6, 10, 16, 24, 34, 45, 55, 67}

// MortalityModule is a Lee-style point index for 5-year all-cause mortality.
func MortalityModule(snap LabSnapshot, d Demographics) MortalityModuleResult {
	c := d.Comorbidities
	pts := 0
	switch {
	case d.Age >= 85:
		pts += 7
	case d.Age >= 80:
		pts += 5
	case d.Age >= 75:
		pts += 4
	case d.Age >= 70:
		pts += 3
	case d.Age >= 65:
		pts += 2
	case d.Age >= 60:
		pts++
	}
	if d.Gender == GenderMale {
		pts += 2
	}
	if c.Diabetes {
		pts++
	}
	if c.HeartFailure {
		pts += 2
	}
	if c.CardiovascularDisease {
		pts++
	}
	if d.SmokingStatus == SmokingCurrent {
		pts += 2
	}
	if d.BMI != nil && *d.BMI < 25 {
		pts++
	}
	switch {
	case snap.EGFR < 45:
		pts += 2
	case snap.EGFR < 60:
		pts++
	}
	if snap.UACR != nil {
		switch {
		case *snap.UACR >= 300:
			pts += 2
		case *snap.UACR >= 30:
			pts++
		}
	}
	if f := d.Functional; f != nil {
		if f.DifficultyBathing {
			pts += 2
		}
		if f.DifficultyWalking {
			pts += 2
		}
		if f.DifficultyManagingFinances {
			pts += 2
		}
		if f.DifficultyPushingObjects {
			pts++
		}
	}

	idx := pts / 2
	if idx >= len(mortalityByPoints) {
		idx = len(mortalityByPoints) - 1
	}
	pct := mortalityByPoints[idx]
	return MortalityModuleResult{Points: pts, RiskPercent: pct, Category: CategorizeMortality(pct)}
}
