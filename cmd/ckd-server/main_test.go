package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/ckdrisk/internal/config"
	"github.com/ehr/ckdrisk/internal/domain/assessment"
	"github.com/ehr/ckdrisk/internal/platform/auth"
	"github.com/ehr/ckdrisk/internal/platform/cache"
	"github.com/ehr/ckdrisk/internal/platform/db"
	"github.com/ehr/ckdrisk/internal/platform/fhir"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

const testKey = "test-signing-key-0123456789abcdef"

func testServer(env string, pingErr error) *echo.Echo {
	cfg := &config.Config{
		Env:            env,
		CORSOrigins:    []string{"http://localhost:3000"},
		AuthSigningKey: testKey,
		AuthIssuer:     "ckd-test",
	}
	return newServer(serverDeps{
		cfg:    cfg,
		logger: zerolog.Nop(),
		db:     stubPinger{err: pingErr},
		svc:    assessment.NewService(nil, nil),
	})
}

func do(e *echo.Echo, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const stageBody = `{"labs":{"egfr":28,"uacr":45},"comorbidities":{"diabetes":true}}`

func TestServer_Health(t *testing.T) {
	e := testServer("production", nil)

	rec := do(e, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), version)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = do(e, http.MethodGet, "/health/db", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HealthDBUnhealthy(t *testing.T) {
	e := testServer("production", errors.New("connection refused"))
	rec := do(e, http.MethodGet, "/health/db", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestServer_HealthCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedis(context.Background(), "redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	e := testServer("production", nil)
	rec := do(e, http.MethodGet, "/health/cache", "", "")
	assert.NotEqual(t, http.StatusOK, rec.Code, "not mounted without redis")

	e = newServer(serverDeps{
		cfg:    &config.Config{Env: "production", AuthSigningKey: testKey},
		logger: zerolog.Nop(),
		db:     stubPinger{},
		cache:  rc,
		svc:    assessment.NewService(nil, nil, assessment.WithCache(rc)),
	})
	rec = do(e, http.MethodGet, "/health/cache", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = do(e, http.MethodGet, "/health/cache", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_DevAuth(t *testing.T) {
	e := testServer("development", nil)
	rec := do(e, http.MethodPost, "/api/v1/ckd/stage", stageBody, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp assessment.StageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Classification.CKDStage)
}

func TestServer_JWT(t *testing.T) {
	e := testServer("production", nil)

	rec := do(e, http.MethodPost, "/api/v1/ckd/stage", stageBody, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	nurse, err := auth.SignToken([]byte(testKey), "ckd-test", "", "nurse-1", []string{auth.RoleNurse}, time.Hour)
	require.NoError(t, err)
	rec = do(e, http.MethodPost, "/api/v1/ckd/stage", stageBody, nurse)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/v1/ckd/assess", `{}`, nurse)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	forged, err := auth.SignToken([]byte("another-key"), "ckd-test", "", "nurse-1", []string{auth.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	rec = do(e, http.MethodPost, "/api/v1/ckd/stage", stageBody, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_ValidationOutcome(t *testing.T) {
	e := testServer("development", nil)
	rec := do(e, http.MethodPost, "/api/v1/ckd/stage", `{"labs":{"egfr":-3}}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var oo fhir.OperationOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &oo))
	require.NotEmpty(t, oo.Issue)
	assert.Equal(t, []string{"labs.egfr"}, oo.Issue[0].Expression)
}

func TestServer_CDSDiscoveryIsPublic(t *testing.T) {
	e := testServer("production", nil)
	rec := do(e, http.MethodGet, "/cds-services", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var disc struct {
		Services []fhir.CDSService `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &disc))
	require.Len(t, disc.Services, 1)
	assert.Equal(t, assessment.CDSServiceID, disc.Services[0].ID)

	rec = do(e, http.MethodPost, "/cds-services/"+assessment.CDSServiceID, `{"hook":"patient-view"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "invocation requires a token")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&config.Config{Env: "production", LogLevel: "warn"}, &buf)
	require.NoError(t, err)
	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"message":"kept"`)

	_, err = newLogger(&config.Config{LogLevel: "loud"}, &buf)
	assert.Error(t, err)
}

func TestRunClassify(t *testing.T) {
	in := strings.NewReader(`{"patient_id":"pat-1","labs":{"egfr":40,"uacr":350},
		"demographics":{"age":55,"gender":"male","comorbidities":{"hypertension":true}}}`)
	var out bytes.Buffer
	require.NoError(t, runClassify(context.Background(), in, &out))

	var res assessment.AssessmentResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Empty(t, res.AssessmentID, "offline runs are never stored")
	assert.True(t, res.Stage.HasCKD)
	assert.Equal(t, 3, res.Stage.CKDStage)
}

func TestRunClassify_Invalid(t *testing.T) {
	var out bytes.Buffer
	err := runClassify(context.Background(),
		strings.NewReader(`{"labs":{"egfr":40},"demographics":{"age":55,"gender":"x"}}`), &out)
	var oo *fhir.OperationOutcome
	require.ErrorAs(t, err, &oo)
	assert.Equal(t, []string{"demographics.gender"}, oo.Issue[0].Expression)

	err = runClassify(context.Background(), strings.NewReader(`{"labs":{"egfr":40},"extra":1}`), &out)
	assert.ErrorContains(t, err, "decode request")
}

const cohortJSON = `[
	{"id":"pat-ok","age":40,"ckd_stage":1,"egfr":95,"egfr_trend":"stable"},
	{"id":"pat-bad","age":70,"ckd_stage":4,"egfr":25,"egfr_trend":"down","egfr_change":-15}
]`

func TestRunScan(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runScan(context.Background(), strings.NewReader(cohortJSON), &out, 2, false))
	assert.Contains(t, out.String(), `"total_patients_scanned": 2`)
	assert.Contains(t, out.String(), `"high_risk_patients": 1`)

	out.Reset()
	require.NoError(t, runScan(context.Background(), strings.NewReader(cohortJSON), &out, 2, true))
	assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestRunScan_Errors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, runScan(context.Background(), strings.NewReader(`[]`), &out, 2, false))
	assert.Error(t, runScan(context.Background(), strings.NewReader(cohortJSON), &out, 0, false))
	assert.Error(t, runScan(context.Background(), strings.NewReader(`{`), &out, 2, false))
}

func TestPrintStatus(t *testing.T) {
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var out bytes.Buffer
	printStatus(&out, []db.MigrationStatus{
		{Version: 1, Name: "ckd_risk", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "next"},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "applied")
	assert.Contains(t, lines[2], "2026-01-02 03:04:05")
	assert.Contains(t, lines[3], "pending")
}
