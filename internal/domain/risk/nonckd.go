package risk

import "fmt"

// ResolveNonCKDRisk combines the heat-map tier with the screening score for
// patients without CKD. An elevated screening band raises a moderate or high
// tier to high; it never lowers a tier and never produces very_high.
func ResolveNonCKDRisk(sc StageClassification, score ScreeningScore) (NonCKDRisk, error) {
	if sc.HasCKD {
		return NonCKDRisk{}, ErrCKDPresent
	}
	if err := checkStage(sc); err != nil {
		return NonCKDRisk{}, err
	}
	if sc.RiskLevel == RiskVeryHigh {
		return NonCKDRisk{}, &ConsistencyViolation{
			Invariant: "non_ckd_very_high",
			Detail:    fmt.Sprintf("very_high risk for %s without CKD", sc.HealthState),
		}
	}
	switch score.ProbabilityBand {
	case ProbabilityLow, ProbabilityElevated:
	default:
		return NonCKDRisk{}, &ValidationError{Field: "probability_band", Value: string(score.ProbabilityBand), Reason: "must be low or elevated"}
	}

	level := sc.RiskLevel
	if score.ProbabilityBand == ProbabilityElevated && level.Rank() >= RiskModerate.Rank() {
		level = RiskHigh
	}
	return NonCKDRisk{
		RiskLevel:        level,
		HeatMapRiskLevel: sc.RiskLevel,
		ProbabilityBand:  score.ProbabilityBand,
		ScreeningPoints:  score.Points,
		Escalated:        level != sc.RiskLevel,
		Diabetic:         sc.Comorbidities.Diabetes || score.HasFactor(FactorDiabetes),
	}, nil
}
