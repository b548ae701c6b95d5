package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// CDS Hooks card indicators.
const (
	IndicatorInfo     = "info"
	IndicatorWarning  = "warning"
	IndicatorCritical = "critical"
)

// CDSService describes a single CDS service returned in discovery.
type CDSService struct {
	Hook              string            `json:"hook"`
	Title             string            `json:"title,omitempty"`
	Description       string            `json:"description"`
	ID                string            `json:"id"`
	Prefetch          map[string]string `json:"prefetch,omitempty"`
	UsageRequirements string            `json:"usageRequirements,omitempty"`
}

// CDSHookRequest is the payload POSTed to invoke a hook.
type CDSHookRequest struct {
	Hook         string                     `json:"hook"`
	HookInstance string                     `json:"hookInstance"`
	FHIRServer   string                     `json:"fhirServer,omitempty"`
	Context      map[string]interface{}     `json:"context"`
	Prefetch     map[string]json.RawMessage `json:"prefetch,omitempty"`
}

// ContextString returns a string value from the hook context.
func (r CDSHookRequest) ContextString(key string) string {
	s, _ := r.Context[key].(string)
	return s
}

// DecodePrefetch unmarshals prefetch[key] into dst. It reports false when the
// key is absent or null.
func (r CDSHookRequest) DecodePrefetch(key string, dst any) (bool, error) {
	raw, ok := r.Prefetch[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("prefetch %s: %w", key, err)
	}
	return true, nil
}

// CDSCard is a single card in the hook response.
type CDSCard struct {
	UUID              string          `json:"uuid,omitempty"`
	Summary           string          `json:"summary"`
	Detail            string          `json:"detail,omitempty"`
	Indicator         string          `json:"indicator"`
	Source            CDSSource       `json:"source"`
	Suggestions       []CDSSuggestion `json:"suggestions,omitempty"`
	Links             []CDSLink       `json:"links,omitempty"`
	SelectionBehavior string          `json:"selectionBehavior,omitempty"`
}

// CDSSource identifies the source of a card.
type CDSSource struct {
	Label string     `json:"label"`
	URL   string     `json:"url,omitempty"`
	Topic *CDSCoding `json:"topic,omitempty"`
}

// CDSSuggestion is a suggested action within a card.
type CDSSuggestion struct {
	Label         string      `json:"label"`
	UUID          string      `json:"uuid,omitempty"`
	IsRecommended bool        `json:"isRecommended,omitempty"`
	Actions       []CDSAction `json:"actions,omitempty"`
}

// CDSAction is an individual action within a suggestion.
type CDSAction struct {
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Resource    interface{} `json:"resource,omitempty"`
}

// CDSLink is an external link within a card.
type CDSLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}

// CDSCoding is a code/system/display triple used in CDS Hooks.
type CDSCoding struct {
	Code    string `json:"code"`
	System  string `json:"system,omitempty"`
	Display string `json:"display,omitempty"`
}

// CDSHookResponse is returned from hook invocation.
type CDSHookResponse struct {
	Cards []CDSCard `json:"cards"`
}

// ServiceHandler processes a CDS hook request and returns cards. Returning an
// *OperationOutcome as the error yields a 400 with that outcome.
type ServiceHandler func(ctx context.Context, req CDSHookRequest) (*CDSHookResponse, error)

// CDSHooksHandler implements the discovery and invocation endpoints of the
// CDS Hooks 2.0 REST API.
type CDSHooksHandler struct {
	services map[string]CDSService
	handlers map[string]ServiceHandler
	order    []string
}

func NewCDSHooksHandler() *CDSHooksHandler {
	return &CDSHooksHandler{
		services: make(map[string]CDSService),
		handlers: make(map[string]ServiceHandler),
	}
}

// RegisterService registers a CDS service and its handler. Registering the
// same ID twice replaces the earlier entry but keeps its discovery position.
func (h *CDSHooksHandler) RegisterService(svc CDSService, handler ServiceHandler) {
	if _, exists := h.services[svc.ID]; !exists {
		h.order = append(h.order, svc.ID)
	}
	h.services[svc.ID] = svc
	h.handlers[svc.ID] = handler
}

// RegisterRoutes mounts discovery on e and invocation on g, so invocation can
// sit behind authentication while discovery stays public.
func (h *CDSHooksHandler) RegisterRoutes(e *echo.Echo, g *echo.Group) {
	e.GET("/cds-services", h.Discovery)
	g.POST("/:id", h.HandleHook)
}

// Discovery handles GET /cds-services.
func (h *CDSHooksHandler) Discovery(c echo.Context) error {
	services := make([]CDSService, 0, len(h.order))
	for _, id := range h.order {
		services = append(services, h.services[id])
	}
	return c.JSON(http.StatusOK, map[string][]CDSService{
		"services": services,
	})
}

// HandleHook handles POST /cds-services/:id.
func (h *CDSHooksHandler) HandleHook(c echo.Context) error {
	serviceID := c.Param("id")

	svc, ok := h.services[serviceID]
	if !ok {
		return c.JSON(http.StatusNotFound, NotFoundOutcome("CDS Service", serviceID))
	}

	var req CDSHookRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ValidationOutcome("body", err.Error()))
	}
	if req.Hook != svc.Hook {
		return c.JSON(http.StatusBadRequest, ValidationOutcome("hook",
			fmt.Sprintf("request hook %q does not match service hook %q", req.Hook, svc.Hook)))
	}
	if req.HookInstance == "" {
		return c.JSON(http.StatusBadRequest, ValidationOutcome("hookInstance", "is required"))
	}

	resp, err := h.handlers[serviceID](c.Request().Context(), req)
	if err != nil {
		if oo, ok := err.(*OperationOutcome); ok {
			return c.JSON(http.StatusBadRequest, oo)
		}
		return c.JSON(http.StatusInternalServerError, InternalErrorOutcome(err.Error()))
	}
	if resp.Cards == nil {
		resp.Cards = []CDSCard{}
	}
	return c.JSON(http.StatusOK, resp)
}
