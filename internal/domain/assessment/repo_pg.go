package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ckdrisk/internal/platform/db"
)

func conn(ctx context.Context, pool *pgxpool.Pool) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Assessment Repository ===========

type assessmentRepoPG struct{ pool *pgxpool.Pool }

func NewAssessmentRepoPG(pool *pgxpool.Pool) AssessmentRepository {
	return &assessmentRepoPG{pool: pool}
}

const assessmentCols = `id, patient_id, status, method, risk_level, health_state,
	ckd_stage, phenotype, renal_risk_percent, input_hash, performed_by, result, created_at`

func (r *assessmentRepoPG) scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	var result []byte
	err := row.Scan(&a.ID, &a.PatientID, &a.Status, &a.Method, &a.RiskLevel, &a.HealthState,
		&a.CKDStage, &a.Phenotype, &a.RenalRiskPercent, &a.InputHash, &a.PerformedBy, &result, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(result, &a.Result); err != nil {
		return nil, fmt.Errorf("decode stored result %s: %w", a.ID, err)
	}
	a.Result.AssessmentID = a.ID.String()
	return &a, nil
}

func (r *assessmentRepoPG) Create(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	result, err := json.Marshal(a.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO ckd_risk_assessment (id, patient_id, status, method, risk_level, health_state,
			ckd_stage, phenotype, renal_risk_percent, input_hash, performed_by, result)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`,
		a.ID, a.PatientID, a.Status, a.Method, a.RiskLevel, a.HealthState,
		a.CKDStage, a.Phenotype, a.RenalRiskPercent, a.InputHash, a.PerformedBy, result,
	).Scan(&a.CreatedAt)
}

func (r *assessmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return r.scanAssessment(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+assessmentCols+` FROM ckd_risk_assessment WHERE id = $1`, id))
}

func (r *assessmentRepoPG) List(ctx context.Context, patientID string, limit, offset int) ([]*Assessment, int, error) {
	where, args := "", []interface{}{}
	if patientID != "" {
		where = " WHERE patient_id = $1"
		args = append(args, patientID)
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM ckd_risk_assessment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM ckd_risk_assessment%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		assessmentCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Assessment
	for rows.Next() {
		a, err := r.scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// =========== Monitoring Alert Repository ===========

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository {
	return &alertRepoPG{pool: pool}
}

const alertCols = `id, alert_id, patient_id, severity, alert_type, message, payload, created_at`

func (r *alertRepoPG) scanAlert(row pgx.Row) (*MonitoringAlert, error) {
	var a MonitoringAlert
	var payload []byte
	if err := row.Scan(&a.ID, &a.AlertID, &a.PatientID, &a.Severity, &a.AlertType, &a.Message, &payload, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Payload = payload
	return &a, nil
}

// Create stores the alert. Re-sending an alert with the same alert_id is a no-op.
func (r *alertRepoPG) Create(ctx context.Context, a *MonitoringAlert) error {
	a.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO ckd_monitoring_alert (id, alert_id, patient_id, severity, alert_type, message, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (alert_id) DO NOTHING`,
		a.ID, a.AlertID, a.PatientID, a.Severity, a.AlertType, a.Message, []byte(a.Payload))
	return err
}

func (r *alertRepoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*MonitoringAlert, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM ckd_monitoring_alert WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+alertCols+` FROM ckd_monitoring_alert WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*MonitoringAlert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
