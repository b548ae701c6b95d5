package assessment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/ckdrisk/internal/domain/risk"
	"github.com/ehr/ckdrisk/internal/platform/fhir"
)

const CDSServiceID = "ckd-risk-classification"

// LOINC codes accepted from prefetch.
var (
	egfrCodes = []string{"62238-1", "33914-3", "98979-8"}
	uacrCodes = []string{"9318-7", "14959-1"}
)

// CDSService is the discovery entry for the patient-view service.
func CDSService() fhir.CDSService {
	return fhir.CDSService{
		Hook:        "patient-view",
		Title:       "CKD risk classification",
		Description: "Classifies chronic kidney disease risk from the latest eGFR and uACR and suggests treatment.",
		ID:          CDSServiceID,
		Prefetch: map[string]string{
			"patient": "Patient/{{context.patientId}}",
			"egfr":    "Observation?patient={{context.patientId}}&code=" + loincQuery(egfrCodes) + "&_sort=-date&_count=1",
			"uacr":    "Observation?patient={{context.patientId}}&code=" + loincQuery(uacrCodes) + "&_sort=-date&_count=1",
		},
	}
}

func loincQuery(codes []string) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fhir.SystemLOINC + "|" + c
	}
	return strings.Join(parts, ",")
}

// PatientView answers the patient-view hook with at most one card. No card is
// returned when there is no eGFR to classify.
func (s *Service) PatientView(ctx context.Context, req fhir.CDSHookRequest) (*fhir.CDSHookResponse, error) {
	egfr, err := latestValue(req, "egfr", egfrCodes)
	if err != nil {
		return nil, err
	}
	if egfr == nil {
		return &fhir.CDSHookResponse{}, nil
	}
	uacr, err := latestValue(req, "uacr", uacrCodes)
	if err != nil {
		return nil, err
	}
	if uacr == nil {
		return &fhir.CDSHookResponse{Cards: []fhir.CDSCard{missingUACRCard(*egfr)}}, nil
	}

	labs := risk.LabSnapshot{EGFR: *egfr, UACR: uacr}
	demo, ok := s.demographics(req)
	if !ok {
		stage, err := s.Stage(ctx, StageRequest{Labs: labs})
		if err != nil {
			return nil, cdsError(err)
		}
		card := stageCard(stage.Classification, stage.Classification.RiskLevel, stage.Recommendations, nil)
		return &fhir.CDSHookResponse{Cards: []fhir.CDSCard{card}}, nil
	}

	res, err := s.Classify(ctx, AssessmentRequest{Labs: labs, Demographics: demo})
	if err != nil {
		return nil, cdsError(err)
	}
	card := stageCard(res.Stage, res.RiskLevel, res.Recommendations, res.Phenotype.Phenotype)
	return &fhir.CDSHookResponse{Cards: []fhir.CDSCard{card}}, nil
}

// demographics reads age and gender from the patient prefetch. It reports
// false when either is unusable for the engine.
func (s *Service) demographics(req fhir.CDSHookRequest) (risk.Demographics, bool) {
	var p fhir.Patient
	found, err := req.DecodePrefetch("patient", &p)
	if err != nil || !found {
		return risk.Demographics{}, false
	}
	g := risk.Gender(p.Gender)
	if g != risk.GenderMale && g != risk.GenderFemale {
		return risk.Demographics{}, false
	}
	age, err := p.AgeAt(s.now())
	if err != nil {
		return risk.Demographics{}, false
	}
	return risk.Demographics{Age: age, Gender: g}, true
}

// latestValue returns the most recent numeric value among the observations
// in prefetch[key] that carry one of codes.
func latestValue(req fhir.CDSHookRequest, key string, codes []string) (*float64, error) {
	var b fhir.Bundle
	found, err := req.DecodePrefetch(key, &b)
	if err != nil {
		return nil, fhir.ValidationOutcome("prefetch."+key, err.Error())
	}
	if !found {
		return nil, nil
	}
	obs, err := b.Observations()
	if err != nil {
		return nil, fhir.ValidationOutcome("prefetch."+key, err.Error())
	}

	var matching []fhir.Observation
	for _, o := range obs {
		if o.Status == "entered-in-error" || o.Status == "cancelled" {
			continue
		}
		if _, ok := o.Value(); !ok {
			continue
		}
		for _, c := range codes {
			if o.Code.HasCode(fhir.SystemLOINC, c) {
				matching = append(matching, o)
				break
			}
		}
	}
	if len(matching) == 0 {
		return nil, nil
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Effective().After(matching[j].Effective())
	})
	v, _ := matching[0].Value()
	return &v, nil
}

func cdsError(err error) error {
	var ve *risk.ValidationError
	var cv *risk.ConsistencyViolation
	switch {
	case errors.As(err, &ve):
		return fhir.ValidationOutcome(ve.Field, ve.Reason)
	case errors.As(err, &cv):
		return fhir.BusinessRuleOutcome(cv.Invariant, cv.Detail)
	}
	return err
}

func indicatorFor(level risk.RiskLevel) string {
	switch level {
	case risk.RiskVeryHigh:
		return fhir.IndicatorCritical
	case risk.RiskHigh:
		return fhir.IndicatorWarning
	}
	return fhir.IndicatorInfo
}

var cardSource = fhir.CDSSource{
	Label: "CKD Risk Classification Engine",
	Topic: &fhir.CDSCoding{Code: "ckd-risk", Display: "Chronic kidney disease risk"},
}

func stageCard(sc risk.StageClassification, level risk.RiskLevel, b risk.RecommendationBundle, ph *risk.Phenotype) fhir.CDSCard {
	label := strings.ReplaceAll(string(level), "_", " ")
	summary := fmt.Sprintf("CKD risk %s: %s%s", label, sc.GFRCategory, sc.AlbuminuriaCategory)
	if sc.HasCKD {
		summary += fmt.Sprintf(", stage %d", sc.CKDStage)
	}

	var detail strings.Builder
	fmt.Fprintf(&detail, "**eGFR** %.0f mL/min/1.73m² (%s)  \n", sc.EGFR, sc.GFRCategory)
	fmt.Fprintf(&detail, "**uACR** %.0f mg/g (%s)\n", sc.UACR, sc.AlbuminuriaCategory.Label())
	if ph != nil {
		fmt.Fprintf(&detail, "\n**Phenotype %s** %s\n", ph.Type, ph.Name)
	}
	if actions := bundleActions(b); len(actions) > 0 {
		detail.WriteString("\nRecommendations:\n")
		for _, a := range actions {
			detail.WriteString("- " + a + "\n")
		}
	}

	card := fhir.CDSCard{
		UUID:        uuid.NewString(),
		Summary:     summary,
		Detail:      detail.String(),
		Indicator:   indicatorFor(level),
		Source:      cardSource,
		Suggestions: suggestions(b),
	}
	if len(card.Suggestions) > 0 {
		card.SelectionBehavior = "any"
	}
	return card
}

func suggestions(b risk.RecommendationBundle) []fhir.CDSSuggestion {
	var out []fhir.CDSSuggestion
	add := func(on bool, label string) {
		if on {
			out = append(out, fhir.CDSSuggestion{Label: label, UUID: uuid.NewString(), IsRecommended: true})
		}
	}
	add(b.RecommendSGLT2i, actionSGLT2)
	add(b.RecommendRASInhibitor, actionRAS)
	add(b.RecommendStatin, actionStatin)
	add(b.RequiresNephrologyReferral, actionReferral)
	return out
}

func missingUACRCard(egfr float64) fhir.CDSCard {
	return fhir.CDSCard{
		UUID:      uuid.NewString(),
		Summary:   "Order a urine albumin-creatinine ratio to complete CKD staging",
		Detail:    fmt.Sprintf("Latest eGFR is %.0f mL/min/1.73m² (%s). Risk cannot be classified without a uACR.", egfr, risk.GFRCategoryFor(egfr)),
		Indicator: fhir.IndicatorInfo,
		Source:    cardSource,
	}
}
