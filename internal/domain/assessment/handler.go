package assessment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/ehr/ckdrisk/internal/domain/monitoring"
	"github.com/ehr/ckdrisk/internal/domain/risk"
	"github.com/ehr/ckdrisk/internal/platform/auth"
	"github.com/ehr/ckdrisk/internal/platform/fhir"
	"github.com/ehr/ckdrisk/internal/platform/validation"
	"github.com/ehr/ckdrisk/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	// Read endpoints – admin, physician, nurse
	readGroup := api.Group("", auth.RequireRole(auth.ReadRoles...))
	readGroup.POST("/ckd/stage", h.Stage)
	readGroup.POST("/ckd/screening", h.Screening)
	readGroup.POST("/ckd/phenotype", h.Phenotype)
	readGroup.POST("/monitoring/patient", h.AssessPatient)
	readGroup.GET("/ckd/assessments", h.ListAssessments)
	readGroup.GET("/ckd/assessments/:id", h.GetAssessment)
	readGroup.GET("/monitoring/alerts", h.ListAlerts)

	// Write endpoints – admin, physician
	writeGroup := api.Group("", auth.RequireRole(auth.WriteRoles...))
	writeGroup.POST("/ckd/assess", h.Assess)
	writeGroup.POST("/monitoring/uacr", h.CheckUACR)
	writeGroup.POST("/monitoring/scan", h.Scan)

	fhirRead := fhirGroup.Group("", auth.RequireRole(auth.ReadRoles...))
	fhirRead.GET("/RiskAssessment/:id", h.GetRiskAssessmentFHIR)
}

// bind decodes and validates the request body.
func bind(c echo.Context, dst interface{}) *fhir.OperationOutcome {
	if err := c.Bind(dst); err != nil {
		return fhir.ErrorOutcome("invalid request body")
	}
	if err := c.Validate(dst); err != nil {
		if oo := validation.ToOutcome(err); oo != nil {
			return oo
		}
		return fhir.ErrorOutcome(err.Error())
	}
	return nil
}

// errorResponse renders a service error as an OperationOutcome.
func errorResponse(c echo.Context, err error) error {
	var ve *risk.ValidationError
	var cv *risk.ConsistencyViolation
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome(ve.Field, ve.Reason))
	case errors.As(err, &cv):
		return c.JSON(http.StatusUnprocessableEntity, fhir.BusinessRuleOutcome(cv.Invariant, cv.Detail))
	case errors.Is(err, risk.ErrCKDPresent):
		return c.JSON(http.StatusUnprocessableEntity, fhir.BusinessRuleOutcome("has_ckd", err.Error()))
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, fhir.ErrorOutcome("resource not found"))
	}
	log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome("internal server error"))
}

func (h *Handler) Stage(c echo.Context) error {
	var req StageRequest
	if oo := bind(c, &req); oo != nil {
		return c.JSON(http.StatusBadRequest, oo)
	}
	out, err := h.svc.Stage(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Screening(c echo.Context) error {
	var req ScreeningRequest
	if oo := bind(c, &req); oo != nil {
		return c.JSON(http.StatusBadRequest, oo)
	}
	out, err := h.svc.Screening(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Phenotype(c echo.Context) error {
	var req PhenotypeRequest
	if oo := bind(c, &req); oo != nil {
		return c.JSON(http.StatusBadRequest, oo)
	}
	out, err := h.svc.Phenotype(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Assess(c echo.Context) error {
	var req AssessmentRequest
	if oo := bind(c, &req); oo != nil {
		return c.JSON(http.StatusBadRequest, oo)
	}
	out, err := h.svc.Classify(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	if out.AssessmentID != "" {
		c.Response().Header().Set("Location", "/fhir/RiskAssessment/"+out.AssessmentID)
		return c.JSON(http.StatusCreated, out)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListAssessments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAssessments(c.Request().Context(), c.QueryParam("patient_id"), pg.Limit, pg.Offset)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg, c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) GetAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAssessment(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetRiskAssessmentFHIR(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("RiskAssessment", c.Param("id")))
	}
	a, err := h.svc.GetAssessment(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("RiskAssessment", c.Param("id")))
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, a.ToFHIR())
}

// -- Monitoring --

func (h *Handler) CheckUACR(c echo.Context) error {
	var in monitoring.UACRCheck
	if oo := bind(c, &in); oo != nil {
		return c.JSON(http.StatusBadRequest, oo)
	}
	out, err := h.svc.CheckUACR(c.Request().Context(), in)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) AssessPatient(c echo.Context) error {
	var rec monitoring.PatientRecord
	if oo := bind(c, &rec); oo != nil {
		return c.JSON(http.StatusBadRequest, oo)
	}
	out, err := h.svc.AssessPatient(c.Request().Context(), rec)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Scan answers with JSON, or with an XLSX workbook when format=xlsx.
func (h *Handler) Scan(c echo.Context) error {
	var req ScanRequest
	if oo := bind(c, &req); oo != nil {
		return c.JSON(http.StatusBadRequest, oo)
	}
	res, stored, err := h.svc.Scan(c.Request().Context(), req.Patients)
	if err != nil {
		return errorResponse(c, err)
	}
	if c.QueryParam("format") == "xlsx" {
		c.Response().Header().Set(echo.HeaderContentType, xlsxContentType)
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="ckd-scan.xlsx"`)
		c.Response().WriteHeader(http.StatusOK)
		return monitoring.WriteScanReport(c.Response(), *res)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"scan":          res,
		"alerts_stored": stored,
	})
}

func (h *Handler) ListAlerts(c echo.Context) error {
	patientID := c.QueryParam("patient_id")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAlerts(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg, c.Request().URL.Path, c.QueryParams()))
}
