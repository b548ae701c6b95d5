// Package validation checks request DTOs with struct tags and renders the
// failures as FHIR OperationOutcome issues.
package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ehr/ckdrisk/internal/platform/fhir"
)

type Validator struct {
	validate *validator.Validate
}

// New returns a Validator that reports JSON field names and knows the
// "finite" tag for float fields.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("finite", validateFinite)
	return &Validator{validate: v}
}

// Validate satisfies echo.Validator.
func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func validateFinite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return true
	}
}

// ToOutcome converts validator errors into an OperationOutcome with one
// invalid issue per field. It returns nil for other errors.
func ToOutcome(err error) *fhir.OperationOutcome {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	oo := &fhir.OperationOutcome{ResourceType: "OperationOutcome"}
	for _, fe := range verrs {
		path := fieldPath(fe)
		oo.AddIssue(fhir.IssueSeverityError, fhir.IssueTypeInvalid, path+": "+describe(fe), path)
	}
	return oo
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		if fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " items"
		}
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "finite":
		return "must be a finite number"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
