package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	SystemLOINC = "http://loinc.org"
	SystemUCUM  = "http://unitsofmeasure.org"
)

// Resource is the base FHIR resource representation.
type Resource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
	Meta         *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	VersionID   string    `json:"versionId,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	Profile     []string  `json:"profile,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// HasCode reports whether any coding matches system and code.
func (cc CodeableConcept) HasCode(system, code string) bool {
	for _, c := range cc.Coding {
		if c.System == system && c.Code == code {
			return true
		}
	}
	return false
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type Quantity struct {
	Value  *float64 `json:"value,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	System string   `json:"system,omitempty"`
	Code   string   `json:"code,omitempty"`
}

type Annotation struct {
	Text string `json:"text"`
}

type Extension struct {
	URL          string `json:"url"`
	ValueString  string `json:"valueString,omitempty"`
	ValueCode    string `json:"valueCode,omitempty"`
	ValueBoolean *bool  `json:"valueBoolean,omitempty"`
	ValueInteger *int   `json:"valueInteger,omitempty"`
}

// FormatReference renders "Type/id".
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}

// RiskAssessment is the subset of the R4 RiskAssessment resource this server
// produces.
type RiskAssessment struct {
	ResourceType       string                     `json:"resourceType"`
	ID                 string                     `json:"id,omitempty"`
	Meta               *Meta                      `json:"meta,omitempty"`
	Identifier         []Identifier               `json:"identifier,omitempty"`
	Status             string                     `json:"status"`
	Method             *CodeableConcept           `json:"method,omitempty"`
	Code               *CodeableConcept           `json:"code,omitempty"`
	Subject            Reference                  `json:"subject"`
	OccurrenceDateTime string                     `json:"occurrenceDateTime,omitempty"`
	Basis              []Reference                `json:"basis,omitempty"`
	Prediction         []RiskAssessmentPrediction `json:"prediction,omitempty"`
	Mitigation         string                     `json:"mitigation,omitempty"`
	Note               []Annotation               `json:"note,omitempty"`
	Extension          []Extension                `json:"extension,omitempty"`
}

type RiskAssessmentPrediction struct {
	Outcome            *CodeableConcept `json:"outcome,omitempty"`
	ProbabilityDecimal *float64         `json:"probabilityDecimal,omitempty"`
	QualitativeRisk    *CodeableConcept `json:"qualitativeRisk,omitempty"`
	Rationale          string           `json:"rationale,omitempty"`
}

// Observation is read from CDS Hooks prefetch; only the fields needed to pull
// a numeric lab value are modelled.
type Observation struct {
	ResourceType      string          `json:"resourceType"`
	ID                string          `json:"id,omitempty"`
	Status            string          `json:"status,omitempty"`
	Code              CodeableConcept `json:"code"`
	Subject           *Reference      `json:"subject,omitempty"`
	EffectiveDateTime string          `json:"effectiveDateTime,omitempty"`
	ValueQuantity     *Quantity       `json:"valueQuantity,omitempty"`
}

// Value returns the numeric quantity value, if any.
func (o Observation) Value() (float64, bool) {
	if o.ValueQuantity == nil || o.ValueQuantity.Value == nil {
		return 0, false
	}
	return *o.ValueQuantity.Value, true
}

// Effective parses effectiveDateTime; unparseable or empty values yield the
// zero time.
func (o Observation) Effective() time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, o.EffectiveDateTime); err == nil {
			return t
		}
	}
	return time.Time{}
}

type Patient struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
	Gender       string `json:"gender,omitempty"`
	BirthDate    string `json:"birthDate,omitempty"`
}

// AgeAt returns the patient's age in whole years on date at.
func (p Patient) AgeAt(at time.Time) (int, error) {
	born, err := time.Parse("2006-01-02", p.BirthDate)
	if err != nil {
		return 0, fmt.Errorf("parse birthDate %q: %w", p.BirthDate, err)
	}
	age := at.Year() - born.Year()
	if at.Month() < born.Month() || (at.Month() == born.Month() && at.Day() < born.Day()) {
		age--
	}
	if age < 0 {
		return 0, fmt.Errorf("birthDate %s is in the future", p.BirthDate)
	}
	return age, nil
}

// Bundle is a searchset as returned in CDS Hooks prefetch. Entries keep the raw
// resource so callers decode only what they need.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// Observations decodes every Observation entry, skipping other resource types.
func (b Bundle) Observations() ([]Observation, error) {
	var out []Observation
	for i, e := range b.Entry {
		var head Resource
		if err := json.Unmarshal(e.Resource, &head); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if head.ResourceType != "Observation" {
			continue
		}
		var obs Observation
		if err := json.Unmarshal(e.Resource, &obs); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, obs)
	}
	return out, nil
}
