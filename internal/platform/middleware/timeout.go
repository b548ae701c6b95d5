package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/ckdrisk/internal/platform/fhir"
)

// RequestTimeout bounds each request by a deadline on its context and answers
// 504 with an OperationOutcome when the deadline passes first. perRoute
// overrides the limit for the listed route patterns (c.Path()), so it must be
// registered with Use rather than Pre. Handlers must stop writing once their
// context is done.
func RequestTimeout(timeout time.Duration, perRoute map[string]time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limit := timeout
			if d, ok := perRoute[c.Path()]; ok {
				limit = d
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), limit)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() { done <- next(c) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
			}
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ctx.Err()
			}
			if c.Response().Committed {
				return nil
			}
			return c.JSON(http.StatusGatewayTimeout, fhir.TimeoutOutcome())
		}
	}
}
