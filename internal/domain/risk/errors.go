package risk

import (
	"errors"
	"fmt"
)

// ErrCKDPresent is returned by ResolveNonCKDRisk when the classification
// already shows CKD; the stage classification is authoritative in that case.
var ErrCKDPresent = errors.New("risk: patient has CKD, use the stage classification")

// ValidationError reports a missing or implausible input field.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

// ConsistencyViolation reports that an input record breaks an invariant that
// the engine itself always maintains. It indicates a defect upstream.
type ConsistencyViolation struct {
	Invariant string
	Detail    string
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("consistency violation [%s]: %s", e.Invariant, e.Detail)
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConsistency reports whether err is, or wraps, a *ConsistencyViolation.
func IsConsistency(err error) bool {
	var cv *ConsistencyViolation
	return errors.As(err, &cv)
}
