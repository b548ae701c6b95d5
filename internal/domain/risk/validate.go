package risk

import "math"

const maxPlausibleAge = 130

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateEGFR(v float64) error {
	if !finite(v) || v <= 0 {
		return &ValidationError{Field: "egfr", Value: v, Reason: "must be a finite number greater than 0"}
	}
	return nil
}

func validateUACR(v *float64, required bool) error {
	if v == nil {
		if required {
			return &ValidationError{Field: "uacr", Reason: "is required"}
		}
		return nil
	}
	if !finite(*v) || *v < 0 {
		return &ValidationError{Field: "uacr", Value: *v, Reason: "must be a finite number of at least 0"}
	}
	return nil
}

func validatePositive(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if !finite(*v) || *v <= 0 {
		return &ValidationError{Field: field, Value: *v, Reason: "must be a finite number greater than 0"}
	}
	return nil
}

func validateSnapshot(s LabSnapshot, uacrRequired bool) error {
	if err := validateEGFR(s.EGFR); err != nil {
		return err
	}
	if err := validateUACR(s.UACR, uacrRequired); err != nil {
		return err
	}
	optional := []struct {
		field string
		v     *float64
	}{
		{"hba1c", s.HbA1c},
		{"systolic_bp", s.SystolicBP},
		{"diastolic_bp", s.DiastolicBP},
		{"total_cholesterol", s.TotalCholesterol},
		{"hdl_cholesterol", s.HDLCholesterol},
		{"hemoglobin", s.Hemoglobin},
	}
	for _, o := range optional {
		if err := validatePositive(o.field, o.v); err != nil {
			return err
		}
	}
	return nil
}

func validateDemographics(d Demographics) error {
	if d.Age < 0 || d.Age > maxPlausibleAge {
		return &ValidationError{Field: "age", Value: d.Age, Reason: "must be between 0 and 130"}
	}
	switch d.Gender {
	case GenderMale, GenderFemale:
	default:
		return &ValidationError{Field: "gender", Value: string(d.Gender), Reason: "must be male or female"}
	}
	switch d.SmokingStatus {
	case "", SmokingNever, SmokingFormer, SmokingCurrent:
	default:
		return &ValidationError{Field: "smoking_status", Value: string(d.SmokingStatus), Reason: "must be never, former or current"}
	}
	return validatePositive("bmi", d.BMI)
}
