package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ehr/ckdrisk/internal/domain/monitoring"
	"github.com/ehr/ckdrisk/internal/domain/risk"
	"github.com/ehr/ckdrisk/internal/platform/auth"
	"github.com/ehr/ckdrisk/internal/platform/cache"
	"github.com/ehr/ckdrisk/internal/platform/db"
)

const (
	cacheKindAssessment = "assess"
	alertTypeScan       = "HIGH_RISK_SCAN"
)

type Service struct {
	assessments AssessmentRepository
	alerts      AlertRepository
	cache       cache.Cache
	tx          db.Beginner
	scanWorkers int
	now         func() time.Time
	logger      zerolog.Logger
}

type Option func(*Service)

func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

// WithTxBeginner makes multi-row writes atomic.
func WithTxBeginner(b db.Beginner) Option { return func(s *Service) { s.tx = b } }

func WithScanWorkers(n int) Option { return func(s *Service) { s.scanWorkers = n } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(assessments AssessmentRepository, alerts AlertRepository, opts ...Option) *Service {
	s := &Service{
		assessments: assessments,
		alerts:      alerts,
		cache:       cache.Noop{},
		scanWorkers: 4,
		now:         time.Now,
		logger:      log.With().Str("component", "assessment").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Engine wrappers --

func (s *Service) Stage(ctx context.Context, req StageRequest) (*StageResponse, error) {
	sc, err := risk.ClassifyStage(req.Labs, req.Comorbidities)
	if err != nil {
		return nil, s.surface(ctx, err)
	}
	return &StageResponse{Classification: sc, Recommendations: risk.ResolveRecommendations(sc)}, nil
}

func (s *Service) Screening(ctx context.Context, req ScreeningRequest) (*risk.ScreeningScore, error) {
	score, err := risk.ComputeScreeningScore(req.Demographics, req.UACR)
	if err != nil {
		return nil, s.surface(ctx, err)
	}
	return &score, nil
}

func (s *Service) Phenotype(ctx context.Context, req PhenotypeRequest) (*risk.PhenotypeAssessment, error) {
	pa, err := risk.AssessPhenotype(req.Labs, req.Demographics)
	if err != nil {
		return nil, s.surface(ctx, err)
	}
	return &pa, nil
}

// -- Full pipeline --

// Classify runs the full pipeline. Results are cached by input; when
// req.PatientID is set the result is also stored and AssessmentID is filled in.
func (s *Service) Classify(ctx context.Context, req AssessmentRequest) (*AssessmentResult, error) {
	key, err := cache.HashKey(cacheKindAssessment, req.cacheable())
	if err != nil {
		return nil, err
	}

	var res AssessmentResult
	hit, err := s.cache.Get(ctx, key, &res)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("result cache read failed")
		hit = false
	}
	if hit {
		res.Cached = true
	} else {
		computed, err := runPipeline(req)
		if err != nil {
			return nil, s.surface(ctx, err)
		}
		res = *computed
		if err := s.cache.Set(ctx, key, res); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("result cache write failed")
		}
	}

	if req.PatientID == "" {
		return &res, nil
	}
	a := NewAssessment(req.PatientID, strings.TrimPrefix(key, cacheKindAssessment+":"), &res)
	if user := auth.UserIDFromContext(ctx); user != "" {
		a.PerformedBy = &user
	}
	if err := s.assessments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("store assessment: %w", err)
	}
	res.AssessmentID = a.ID.String()
	return &res, nil
}

func runPipeline(req AssessmentRequest) (*AssessmentResult, error) {
	stage, err := risk.ClassifyStage(req.Labs, req.Demographics.Comorbidities)
	if err != nil {
		return nil, err
	}
	res := &AssessmentResult{Stage: stage, RiskLevel: stage.RiskLevel}
	selected := risk.ResolveRecommendations(stage)
	res.AllRecommendations = []risk.RecommendationBundle{selected}

	if !stage.HasCKD {
		score, err := risk.ComputeScreeningScore(req.Demographics, req.Labs.UACR)
		if err != nil {
			return nil, err
		}
		nonCKD, err := risk.ResolveNonCKDRisk(stage, score)
		if err != nil {
			return nil, err
		}
		res.Screening, res.NonCKD = &score, &nonCKD
		res.RiskLevel = nonCKD.RiskLevel
		selected = risk.ResolveRecommendations(nonCKD)
		res.AllRecommendations = append(res.AllRecommendations, selected)
	}

	pa, err := risk.AssessPhenotype(req.Labs, req.Demographics)
	if err != nil {
		return nil, err
	}
	res.Phenotype = pa
	if pa.Eligible && pa.Phenotype != nil {
		selected = risk.ResolveRecommendations(*pa.Phenotype)
		res.AllRecommendations = append(res.AllRecommendations, selected)
	}
	res.Recommendations = selected
	return res, nil
}

// surface logs consistency violations and passes every error through unchanged.
func (s *Service) surface(ctx context.Context, err error) error {
	var cv *risk.ConsistencyViolation
	if errors.As(err, &cv) {
		s.logger.Error().
			Str("invariant", cv.Invariant).
			Str("detail", cv.Detail).
			Str("user_id", auth.UserIDFromContext(ctx)).
			Msg("classification consistency violation")
	}
	return err
}

// -- Stored assessments --

func (s *Service) GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return s.assessments.GetByID(ctx, id)
}

func (s *Service) ListAssessments(ctx context.Context, patientID string, limit, offset int) ([]*Assessment, int, error) {
	return s.assessments.List(ctx, patientID, limit, offset)
}

// -- Monitoring --

// CheckUACR analyses the uACR trend and stores the clinical alert when one is raised.
func (s *Service) CheckUACR(ctx context.Context, in monitoring.UACRCheck) (*UACRCheckResult, error) {
	alert, analysis, err := monitoring.CheckUACR(in, s.now())
	if err != nil {
		return nil, err
	}
	out := &UACRCheckResult{Analysis: analysis, Alert: alert}
	if alert == nil {
		return out, nil
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("encode alert: %w", err)
	}
	row := &MonitoringAlert{
		AlertID:   alert.ID,
		PatientID: alert.PatientID,
		Severity:  alert.Severity,
		AlertType: alert.Type,
		Message:   alert.Message,
		Payload:   payload,
	}
	if err := s.alerts.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("store alert: %w", err)
	}
	out.Stored = true
	s.logger.Info().
		Str("patient_id", alert.PatientID).
		Str("severity", string(alert.Severity)).
		Str("alert_type", alert.Type).
		Msg("uacr alert raised")
	return out, nil
}

// AssessPatient runs the alert scanner for one patient and stores the result
// when monitoring is required.
func (s *Service) AssessPatient(ctx context.Context, rec monitoring.PatientRecord) (*monitoring.PatientAssessment, error) {
	pa := monitoring.AssessPatient(rec)
	if _, err := s.storeScanAlerts(ctx, []monitoring.PatientAssessment{pa}); err != nil {
		return nil, err
	}
	return &pa, nil
}

// Scan runs the alert scanner over a cohort. Every flagged patient with an ID
// is stored in one transaction; the number stored is returned.
func (s *Service) Scan(ctx context.Context, records []monitoring.PatientRecord) (*monitoring.ScanResult, int, error) {
	res, err := monitoring.ScanCohort(ctx, records, s.scanWorkers)
	if err != nil {
		return nil, 0, err
	}
	stored, err := s.storeScanAlerts(ctx, res.Patients)
	if err != nil {
		return nil, 0, err
	}
	s.logger.Info().
		Int("scanned", res.TotalScanned).
		Int("flagged", res.HighRiskCount).
		Int("stored", stored).
		Msg("cohort scan complete")
	return &res, stored, nil
}

func (s *Service) storeScanAlerts(ctx context.Context, assessed []monitoring.PatientAssessment) (int, error) {
	at := s.now().UTC().Format("20060102150405")
	stored := 0
	err := s.inTx(ctx, func(ctx context.Context) error {
		for i := range assessed {
			pa := &assessed[i]
			if !pa.RequiresMonitoring || pa.PatientID == "" {
				continue
			}
			payload, err := json.Marshal(pa)
			if err != nil {
				return fmt.Errorf("encode scan result: %w", err)
			}
			row := &MonitoringAlert{
				AlertID:   fmt.Sprintf("SCAN-%s-%s", pa.PatientID, at),
				PatientID: pa.PatientID,
				Severity:  pa.Priority,
				AlertType: alertTypeScan,
				Message:   scanMessage(pa),
				Payload:   payload,
			}
			if err := s.alerts.Create(ctx, row); err != nil {
				return fmt.Errorf("store scan alert for %s: %w", pa.PatientID, err)
			}
			stored++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}

func scanMessage(pa *monitoring.PatientAssessment) string {
	codes := make([]string, len(pa.Alerts))
	for i, a := range pa.Alerts {
		codes[i] = a.Code
	}
	return fmt.Sprintf("%s priority (score %d): %s", pa.Priority, pa.SeverityScore, strings.Join(codes, ", "))
}

func (s *Service) ListAlerts(ctx context.Context, patientID string, limit, offset int) ([]*MonitoringAlert, int, error) {
	return s.alerts.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return db.InTx(ctx, s.tx, fn)
}
