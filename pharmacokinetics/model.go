// Package pharmacokinetics simulates the plasma concentration of a
// periodically self-administered drug from a list of dose events.
//
// The package is pure: every exported function is deterministic and free of
// side effects. Dates are calendar dates (civil.Date) with no time zone.
package pharmacokinetics

import (
	"encoding/json"
	"fmt"

	"cloud.google.com/go/civil"
)

// Fixed properties of the modelled compound.
const (
	HalfLifeDays    = 5.0
	Bioavailability = 0.8
	PeakDelayDays   = 1.0

	// TailDays is how far past the last dose the simulation window extends.
	TailDays = 28

	// WeekLength is the chunk size used by WeeklyAverages.
	WeekLength = 7

	// MaxAmountMg is the largest accepted single dose. Larger amounts are
	// treated as invalid entries.
	MaxAmountMg = 1e6
)

// RawDose is a dose entry as typed by a user. Either field may be empty.
type RawDose struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

// UnmarshalJSON accepts the amount either as a string or as a JSON number.
func (r *RawDose) UnmarshalJSON(b []byte) error {
	var aux struct {
		Date   string          `json:"date"`
		Amount json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	r.Date = aux.Date
	r.Amount = ""

	if len(aux.Amount) == 0 || string(aux.Amount) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(aux.Amount, &s); err == nil {
		r.Amount = s
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(aux.Amount, &n); err != nil {
		return fmt.Errorf("amount must be a string or a number: %w", err)
	}
	r.Amount = n.String()
	return nil
}

// DoseEvent is a validated dose.
type DoseEvent struct {
	Date     civil.Date `json:"date"`
	AmountMg float64    `json:"amountMg"`
}

// ConcentrationSample is the simulated state of one calendar day.
// PerDoseContribution is indexed like the sorted dose sequence.
type ConcentrationSample struct {
	Date                civil.Date `json:"date"`
	TotalConcentration  float64    `json:"totalConcentration"`
	PerDoseContribution []float64  `json:"perDoseContribution"`
}

// WeeklyAverage is the mean total concentration of one 7-sample chunk.
type WeeklyAverage struct {
	WeekIndex        int     `json:"weekIndex"`
	AvgConcentration float64 `json:"avgConcentration"`
}

// Label returns the display label used by charts ("Week 1", "Week 2", ...).
func (w WeeklyAverage) Label() string {
	return fmt.Sprintf("Week %d", w.WeekIndex)
}

// CompoundProperties describes the modelled compound for display.
type CompoundProperties struct {
	Name               string  `json:"name"`
	BioavailabilityPct float64 `json:"bioavailabilityPercent"`
	TimeToPeakHours    float64 `json:"timeToPeakHours"`
	HalfLifeDays       float64 `json:"halfLifeDays"`
	SteadyStateWeeks   string  `json:"steadyStateWeeks"`
	SimulationTailDays int     `json:"simulationTailDays"`
}

// Compound returns the properties of the modelled compound.
func Compound() CompoundProperties {
	return CompoundProperties{
		Name:               "Tirzepatide",
		BioavailabilityPct: Bioavailability * 100,
		TimeToPeakHours:    PeakDelayDays * 24,
		HalfLifeDays:       HalfLifeDays,
		SteadyStateWeeks:   "4-5",
		SimulationTailDays: TailDays,
	}
}
