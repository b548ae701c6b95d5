package risk

// RecommendationSource is implemented by StageClassification, NonCKDRisk and
// Phenotype. The unexported method keeps the set closed.
type RecommendationSource interface {
	recommendations() RecommendationBundle
}

// Bundle sources.
const (
	SourceKDIGO     = "kdigo_stage"
	SourceNonCKD    = "non_ckd"
	SourcePhenotype = "geriatric_phenotype"
)

// Blood pressure targets.
const (
	TargetBPIntensive = "<130/80 mmHg"
	TargetBPStandard  = "<140/90 mmHg"
	TargetBPRelaxed   = "<150/90 mmHg"
)

// ResolveRecommendations returns the treatment bundle for any classification.
// It is pure: equal inputs give equal bundles.
func ResolveRecommendations(src RecommendationSource) RecommendationBundle {
	return src.recommendations()
}

func (sc StageClassification) recommendations() RecommendationBundle {
	return stageBundle(sc)
}

func (r NonCKDRisk) recommendations() RecommendationBundle {
	return RecommendationBundle{
		Source:              SourceNonCKD,
		RecommendSGLT2i:     r.Diabetic && r.RiskLevel == RiskHigh,
		TargetBP:            TargetBPStandard,
		MonitoringFrequency: frequencyForTier(r.RiskLevel),
	}
}

func (p Phenotype) recommendations() RecommendationBundle {
	b := RecommendationBundle{Source: SourcePhenotype}
	switch p.Type {
	case PhenotypeI:
		b.RecommendSGLT2i, b.RecommendRASInhibitor, b.RecommendStatin = true, true, true
		b.TargetBP, b.MonitoringFrequency = TargetBPIntensive, MonitorMonthly
	case PhenotypeII:
		b.RecommendSGLT2i, b.RecommendRASInhibitor = true, true
		b.TargetBP, b.MonitoringFrequency = TargetBPIntensive, MonitorQuarterly
	case PhenotypeIII:
		b.RecommendStatin = true
		b.TargetBP, b.MonitoringFrequency = TargetBPIntensive, MonitorQuarterly
	case PhenotypeIV:
		b.TargetBP, b.MonitoringFrequency = TargetBPRelaxed, MonitorMonthly
	case PhenotypeModerate:
		b.RecommendRASInhibitor, b.RecommendStatin = true, true
		b.TargetBP, b.MonitoringFrequency = TargetBPIntensive, MonitorBiannually
	default:
		b.TargetBP, b.MonitoringFrequency = TargetBPStandard, MonitorAnnually
	}
	return b
}

func stageBundle(sc StageClassification) RecommendationBundle {
	albuminuric := sc.AlbuminuriaCategory.Rank() >= AlbuminuriaA2.Rank()
	b := RecommendationBundle{
		Source:                SourceKDIGO,
		RecommendRASInhibitor: albuminuric || (sc.HasCKD && sc.Comorbidities.Hypertension),
		RecommendSGLT2i: (sc.HasCKD && sc.EGFR >= SGLT2EGFRFloor) ||
			(!sc.HasCKD && sc.Comorbidities.Diabetes && sc.RiskLevel.Rank() >= RiskHigh.Rank()),
		RecommendStatin:            sc.HasCKD && sc.GFRCategory != GFRG5,
		RequiresNephrologyReferral: sc.GFRCategory.Stage() >= 4 || sc.RiskLevel == RiskVeryHigh,
		TargetBP:                   TargetBPStandard,
		MonitoringFrequency:        frequencyForTier(sc.RiskLevel),
	}
	if sc.HasCKD && albuminuric {
		b.TargetBP = TargetBPIntensive
	}
	if sc.RiskLevel == RiskVeryHigh {
		switch sc.GFRCategory {
		case GFRG5:
			b.MonitoringFrequency = MonitorWeekly
		case GFRG4:
			b.MonitoringFrequency = MonitorBiweekly
		}
	}
	return b
}

func frequencyForTier(r RiskLevel) MonitoringFrequency {
	switch r {
	case RiskVeryHigh:
		return MonitorMonthly
	case RiskHigh:
		return MonitorQuarterly
	case RiskModerate:
		return MonitorBiannually
	default:
		return MonitorAnnually
	}
}
