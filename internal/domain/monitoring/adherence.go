package monitoring

import (
	"math"
	"time"
)

// A patient is adherent with an MPR of at least AdherenceThreshold and no
// refill gap longer than MaxRefillGapDays.
const (
	AdherenceThreshold = 80.0
	MaxRefillGapDays   = 7
)

// MPR is the medication possession ratio: days supplied over days in the
// period, as a percentage capped at 100.
func MPR(fills, daysSupply, periodDays int) float64 {
	if fills <= 0 || daysSupply <= 0 || periodDays <= 0 {
		return 0
	}
	return math.Min(100, float64(fills*daysSupply)/float64(periodDays)*100)
}

// PDC is the proportion of days covered between start and end inclusive.
// Overlapping fills count each day once.
func PDC(refills []time.Time, daysSupply int, start, end time.Time) float64 {
	start, end = truncateDay(start), truncateDay(end)
	period := int(end.Sub(start).Hours() / 24)
	if len(refills) == 0 || daysSupply <= 0 || period <= 0 {
		return 0
	}
	covered := make(map[time.Time]struct{})
	for _, r := range refills {
		day := truncateDay(r)
		for i := 0; i < daysSupply; i++ {
			d := day.AddDate(0, 0, i)
			if d.Before(start) || d.After(end) {
				continue
			}
			covered[d] = struct{}{}
		}
	}
	return math.Min(100, float64(len(covered))/float64(period)*100)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TreatmentRecord describes a patient's prescribed kidney-protective therapy.
type TreatmentRecord struct {
	Prescribed    bool     `json:"prescribed"`
	Medication    string   `json:"medication,omitempty"`
	MPR           float64  `json:"mpr"`
	PDC           float64  `json:"pdc"`
	Category      string   `json:"category,omitempty"`
	RefillGapDays int      `json:"refill_gap_days"`
	Barriers      []string `json:"barriers,omitempty"`
}

type AdherenceAnalysis struct {
	OnTreatment   bool     `json:"on_treatment"`
	Medication    string   `json:"medication,omitempty"`
	MPR           float64  `json:"mpr"`
	PDC           float64  `json:"pdc"`
	Category      string   `json:"category,omitempty"`
	RefillGapDays int      `json:"refill_gap_days"`
	Adherent      bool     `json:"is_adherent"`
	Barriers      []string `json:"barriers,omitempty"`
}

// AnalyzeAdherence grades adherence; a nil or unprescribed record yields
// OnTreatment=false.
func AnalyzeAdherence(t *TreatmentRecord) AdherenceAnalysis {
	if t == nil || !t.Prescribed {
		return AdherenceAnalysis{}
	}
	med := t.Medication
	if med == "" {
		med = "SGLT2 inhibitor"
	}
	return AdherenceAnalysis{
		OnTreatment:   true,
		Medication:    med,
		MPR:           t.MPR,
		PDC:           t.PDC,
		Category:      t.Category,
		RefillGapDays: t.RefillGapDays,
		Adherent:      t.MPR >= AdherenceThreshold && t.RefillGapDays <= MaxRefillGapDays,
		Barriers:      append([]string(nil), t.Barriers...),
	}
}
