package risk

import "fmt"

// Thresholds used by the KDIGO grid.
const (
	CKDEGFRThreshold = 60.0
	CKDUACRThreshold = 30.0
	// SGLT2EGFRFloor is the lowest eGFR at which SGLT2 inhibitors are started.
	SGLT2EGFRFloor   = 20.0
)

// heatMap is indexed by GFR rank then albuminuria rank.
var heatMap = [6][3]RiskLevel{
	{RiskLow, RiskModerate, RiskHigh},          // G1
	{RiskLow, RiskModerate, RiskHigh},          // G2
	{RiskModerate, RiskHigh, RiskVeryHigh},     // G3a
	{RiskHigh, RiskVeryHigh, RiskVeryHigh},     // G3b
	{RiskVeryHigh, RiskVeryHigh, RiskVeryHigh}, // G4
	{RiskVeryHigh, RiskVeryHigh, RiskVeryHigh}, // G5
}

// GFRCategoryFor maps an eGFR in mL/min/1.73m² to its category.
func GFRCategoryFor(egfr float64) GFRCategory {
	switch {
	case egfr >= 90:
		return GFRG1
	case egfr >= 60:
		return GFRG2
	case egfr >= 45:
		return GFRG3a
	case egfr >= 30:
		return GFRG3b
	case egfr >= 15:
		return GFRG4
	default:
		return GFRG5
	}
}

// AlbuminuriaCategoryFor maps a uACR in mg/g to its category. 300 is still A2.
func AlbuminuriaCategoryFor(uacr float64) AlbuminuriaCategory {
	switch {
	case uacr < 30:
		return AlbuminuriaA1
	case uacr <= 300:
		return AlbuminuriaA2
	default:
		return AlbuminuriaA3
	}
}

// HeatMapRisk returns the KDIGO risk tier for a category pair.
func HeatMapRisk(g GFRCategory, a AlbuminuriaCategory) (RiskLevel, error) {
	gi, ai := g.Rank(), a.Rank()
	if gi < 0 {
		return "", &ValidationError{Field: "gfr_category", Value: string(g), Reason: "unknown category"}
	}
	if ai < 0 {
		return "", &ValidationError{Field: "albuminuria_category", Value: string(a), Reason: "unknown category"}
	}
	return heatMap[gi][ai], nil
}

// ClassifyStage places a lab snapshot on the KDIGO grid and attaches the
// matching treatment flags. UACR is required.
func ClassifyStage(snap LabSnapshot, c Comorbidities) (StageClassification, error) {
	if err := validateEGFR(snap.EGFR); err != nil {
		return StageClassification{}, err
	}
	if err := validateUACR(snap.UACR, true); err != nil {
		return StageClassification{}, err
	}
	uacr := *snap.UACR

	g := GFRCategoryFor(snap.EGFR)
	a := AlbuminuriaCategoryFor(uacr)
	level := heatMap[g.Rank()][a.Rank()]
	hasCKD := g.Rank() >= GFRG3a.Rank() || a != AlbuminuriaA1

	sc := StageClassification{
		EGFR:                snap.EGFR,
		UACR:                uacr,
		GFRCategory:         g,
		AlbuminuriaCategory: a,
		HasCKD:              hasCKD,
		RiskLevel:           level,
		HealthState:         fmt.Sprintf("%s-%s", g, a),
		Comorbidities:       c,
	}
	if hasCKD {
		sc.CKDStage = g.Stage()
		sc.CKDSeverity = severityForStage(sc.CKDStage)
	}

	b := stageBundle(sc)
	sc.RecommendRASInhibitor = b.RecommendRASInhibitor
	sc.RecommendSGLT2i = b.RecommendSGLT2i
	sc.RequiresNephrologyReferral = b.RequiresNephrologyReferral
	sc.TargetBP = b.TargetBP
	sc.MonitoringFrequency = b.MonitoringFrequency
	return sc, nil
}

// checkStage verifies a record that arrives from outside the engine. The
// risk tier is taken as given since upstream systems may tier the non-CKD
// cells differently; only the CKD flag must agree with the categories.
func checkStage(sc StageClassification) error {
	gi, ai := sc.GFRCategory.Rank(), sc.AlbuminuriaCategory.Rank()
	if gi < 0 {
		return &ValidationError{Field: "gfr_category", Value: string(sc.GFRCategory), Reason: "unknown category"}
	}
	if ai < 0 {
		return &ValidationError{Field: "albuminuria_category", Value: string(sc.AlbuminuriaCategory), Reason: "unknown category"}
	}
	if sc.RiskLevel.Rank() < 0 {
		return &ValidationError{Field: "risk_level", Value: string(sc.RiskLevel), Reason: "unknown risk level"}
	}
	wantCKD := gi >= GFRG3a.Rank() || ai >= AlbuminuriaA2.Rank()
	if sc.HasCKD != wantCKD {
		return &ConsistencyViolation{
			Invariant: "has_ckd",
			Detail:    fmt.Sprintf("has_ckd=%t does not match categories %s-%s", sc.HasCKD, sc.GFRCategory, sc.AlbuminuriaCategory),
		}
	}
	return nil
}
