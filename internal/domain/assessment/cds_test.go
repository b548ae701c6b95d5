package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/ckdrisk/internal/domain/risk"
	"github.com/ehr/ckdrisk/internal/platform/fhir"
)

func observationBundle(code string, values map[string]float64) json.RawMessage {
	var entries []string
	for date, v := range values {
		entries = append(entries, fmt.Sprintf(`{"resource":{"resourceType":"Observation","status":"final",
			"code":{"coding":[{"system":"http://loinc.org","code":%q}]},
			"effectiveDateTime":%q,"valueQuantity":{"value":%g}}}`, code, date, v))
	}
	return json.RawMessage(`{"resourceType":"Bundle","type":"searchset","entry":[` + strings.Join(entries, ",") + `]}`)
}

func hookRequest(prefetch map[string]json.RawMessage) fhir.CDSHookRequest {
	return fhir.CDSHookRequest{
		Hook:         "patient-view",
		HookInstance: "d1577c69-dfbe-44ad-ba6d-3e05e953b2ea",
		Context:      map[string]interface{}{"patientId": "pat-1", "userId": "Practitioner/example"},
		Prefetch:     prefetch,
	}
}

func patient(gender, birthDate string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"resourceType":"Patient","id":"pat-1","gender":%q,"birthDate":%q}`, gender, birthDate))
}

func TestCDSService_Discovery(t *testing.T) {
	svc := CDSService()
	assert.Equal(t, "patient-view", svc.Hook)
	assert.Equal(t, CDSServiceID, svc.ID)
	require.Contains(t, svc.Prefetch, "egfr")
	assert.Contains(t, svc.Prefetch["egfr"], "http://loinc.org|62238-1")
	assert.Contains(t, svc.Prefetch["uacr"], "http://loinc.org|9318-7")
}

func TestPatientView_CriticalCard(t *testing.T) {
	svc, repo, _ := newTestService()
	req := hookRequest(map[string]json.RawMessage{
		"patient": patient("male", "1970-06-15"),
		"egfr":    observationBundle("62238-1", map[string]float64{"2025-06-01": 55, "2026-02-01": 38}),
		"uacr":    observationBundle("9318-7", map[string]float64{"2026-02-01": 420}),
	})

	resp, err := svc.PatientView(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Cards, 1)

	card := resp.Cards[0]
	assert.Equal(t, fhir.IndicatorCritical, card.Indicator, "G3b-A3 is very high risk")
	assert.Contains(t, card.Summary, "G3bA3")
	assert.Contains(t, card.Detail, "**eGFR** 38")
	assert.LessOrEqual(t, len(card.Summary), 140)
	assert.NotEmpty(t, card.UUID)
	assert.Equal(t, "any", card.SelectionBehavior)

	var labels []string
	for _, s := range card.Suggestions {
		labels = append(labels, s.Label)
		assert.NotEmpty(t, s.UUID)
	}
	assert.Contains(t, labels, actionReferral)
	assert.Contains(t, labels, actionRAS)
	assert.Empty(t, repo.store, "CDS invocations are not stored")
}

func TestPatientView_IndicatorMapping(t *testing.T) {
	tests := []struct {
		level risk.RiskLevel
		want  string
	}{
		{risk.RiskVeryHigh, fhir.IndicatorCritical},
		{risk.RiskHigh, fhir.IndicatorWarning},
		{risk.RiskModerate, fhir.IndicatorInfo},
		{risk.RiskLow, fhir.IndicatorInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, indicatorFor(tt.level), string(tt.level))
	}
}

func TestPatientView_ElderlyPhenotype(t *testing.T) {
	svc, _, _ := newTestService()
	req := hookRequest(map[string]json.RawMessage{
		"patient": patient("female", "1950-01-20"),
		"egfr":    observationBundle("98979-8", map[string]float64{"2026-01-10": 72}),
		"uacr":    observationBundle("9318-7", map[string]float64{"2026-01-10": 12}),
	})

	resp, err := svc.PatientView(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Cards, 1)
	assert.Contains(t, resp.Cards[0].Detail, "**Phenotype")
}

func TestPatientView_UnknownGenderFallsBackToStage(t *testing.T) {
	svc, _, _ := newTestService()
	req := hookRequest(map[string]json.RawMessage{
		"patient": patient("unknown", "1950-01-20"),
		"egfr":    observationBundle("62238-1", map[string]float64{"2026-01-10": 25}),
		"uacr":    observationBundle("9318-7", map[string]float64{"2026-01-10": 40}),
	})

	resp, err := svc.PatientView(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Cards, 1)
	assert.Contains(t, resp.Cards[0].Summary, "G4A2")
	assert.NotContains(t, resp.Cards[0].Detail, "Phenotype")
}

func TestPatientView_MissingData(t *testing.T) {
	svc, _, _ := newTestService()

	resp, err := svc.PatientView(context.Background(), hookRequest(nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Cards, "no eGFR means nothing to say")

	resp, err = svc.PatientView(context.Background(), hookRequest(map[string]json.RawMessage{
		"egfr": observationBundle("62238-1", map[string]float64{"2026-01-10": 48}),
	}))
	require.NoError(t, err)
	require.Len(t, resp.Cards, 1)
	assert.Equal(t, fhir.IndicatorInfo, resp.Cards[0].Indicator)
	assert.Contains(t, resp.Cards[0].Summary, "albumin-creatinine")
}

func TestPatientView_IgnoresOtherCodes(t *testing.T) {
	svc, _, _ := newTestService()
	resp, err := svc.PatientView(context.Background(), hookRequest(map[string]json.RawMessage{
		"egfr": observationBundle("2160-0", map[string]float64{"2026-01-10": 1.4}),
	}))
	require.NoError(t, err)
	assert.Empty(t, resp.Cards, "serum creatinine is not an eGFR")
}

func TestPatientView_InvalidPrefetch(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.PatientView(context.Background(), hookRequest(map[string]json.RawMessage{
		"egfr": json.RawMessage(`{"resourceType":"Bundle","entry":"oops"}`),
	}))
	var oo *fhir.OperationOutcome
	require.ErrorAs(t, err, &oo)
	assert.Equal(t, []string{"prefetch.egfr"}, oo.Issue[0].Expression)
}

func TestPatientView_EngineValidationBecomesOutcome(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.PatientView(context.Background(), hookRequest(map[string]json.RawMessage{
		"egfr": observationBundle("62238-1", map[string]float64{"2026-01-10": 0}),
		"uacr": observationBundle("9318-7", map[string]float64{"2026-01-10": 20}),
	}))
	var oo *fhir.OperationOutcome
	require.ErrorAs(t, err, &oo)
	assert.Equal(t, fhir.IssueTypeInvalid, oo.Issue[0].Code)
}

func TestPatientView_ThroughHooksHandler(t *testing.T) {
	svc, _, _ := newTestService()
	hooks := fhir.NewCDSHooksHandler()
	hooks.RegisterService(CDSService(), svc.PatientView)

	e := echo.New()
	hooks.RegisterRoutes(e, e.Group("/cds-services"))

	body, err := json.Marshal(hookRequest(map[string]json.RawMessage{
		"patient": patient("male", "1970-06-15"),
		"egfr":    observationBundle("62238-1", map[string]float64{"2026-02-01": 85}),
		"uacr":    observationBundle("9318-7", map[string]float64{"2026-02-01": 15}),
	}))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/cds-services/"+CDSServiceID, strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp fhir.CDSHookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Cards, 1)
	assert.Equal(t, fhir.IndicatorInfo, resp.Cards[0].Indicator)
}
