package monitoring

import (
	"sort"
	"time"

	"github.com/ehr/ckdrisk/internal/domain/risk"
)

// WorseningLevel grades an increase between two uACR results.
type WorseningLevel string

const (
	WorseningNone                WorseningLevel = "no_change"
	WorseningMild                WorseningLevel = "mild"
	WorseningModerate            WorseningLevel = "moderate"
	WorseningSevere              WorseningLevel = "severe"
	WorseningCategoryProgression WorseningLevel = "category_progression"
)

// Description is the text used in alerts.
func (w WorseningLevel) Description() string {
	switch w {
	case WorseningMild:
		return "mild worsening (30-50% increase)"
	case WorseningModerate:
		return "moderate worsening (50-100% increase)"
	case WorseningSevere:
		return "severe worsening (>100% increase)"
	case WorseningCategoryProgression:
		return "albuminuria category progression"
	}
	return "no significant change"
}

// Measurement is one dated uACR result in mg/g.
type Measurement struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// UACRAnalysis compares the two most recent measurements.
type UACRAnalysis struct {
	Current          Measurement              `json:"current"`
	Previous         Measurement              `json:"previous"`
	PercentChange    float64                  `json:"percent_change"`
	CurrentCategory  risk.AlbuminuriaCategory `json:"current_category"`
	PreviousCategory risk.AlbuminuriaCategory `json:"previous_category"`
	Level            WorseningLevel           `json:"worsening_level"`
	Worsening        bool                     `json:"is_worsening"`
	DaysBetween      int                      `json:"days_between"`
}

// AnalyzeUACRChange grades the change between the two most recent results in
// history. The input slice is not modified.
func AnalyzeUACRChange(history []Measurement) (UACRAnalysis, error) {
	if len(history) < 2 {
		return UACRAnalysis{}, &risk.ValidationError{Field: "uacr_history", Value: len(history), Reason: "needs at least two measurements"}
	}
	sorted := append([]Measurement(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })
	cur, prev := sorted[0], sorted[1]

	for _, m := range []Measurement{cur, prev} {
		if !(m.Value >= 0) {
			return UACRAnalysis{}, &risk.ValidationError{Field: "uacr", Value: m.Value, Reason: "must be a number of at least 0"}
		}
	}
	if prev.Value <= 0 {
		return UACRAnalysis{}, &risk.ValidationError{Field: "uacr", Value: prev.Value, Reason: "previous measurement must be greater than 0"}
	}

	change := (cur.Value - prev.Value) / prev.Value * 100
	curCat := risk.AlbuminuriaCategoryFor(cur.Value)
	prevCat := risk.AlbuminuriaCategoryFor(prev.Value)

	worsening := cur.Value > prev.Value
	level := WorseningNone
	switch {
	case !worsening:
	case curCat != prevCat:
		level = WorseningCategoryProgression
	case change > 100:
		level = WorseningSevere
	case change > 50:
		level = WorseningModerate
	case change > 30:
		level = WorseningMild
	default:
		worsening = false
	}

	return UACRAnalysis{
		Current:          cur,
		Previous:         prev,
		PercentChange:    change,
		CurrentCategory:  curCat,
		PreviousCategory: prevCat,
		Level:            level,
		Worsening:        worsening,
		DaysBetween:      int(cur.Date.Sub(prev.Date).Hours() / 24),
	}, nil
}
