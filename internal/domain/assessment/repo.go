package assessment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("assessment: not found")

type AssessmentRepository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	// List returns stored assessments newest first. An empty patientID lists all patients.
	List(ctx context.Context, patientID string, limit, offset int) ([]*Assessment, int, error)
}

type AlertRepository interface {
	Create(ctx context.Context, a *MonitoringAlert) error
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*MonitoringAlert, int, error)
}
