package pharmacokinetics

import (
	"math"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Simulate computes one sample per calendar day from the first dose to
// TailDays past the last dose, inclusive. doses must be normalized (sorted by
// date); an empty slice yields no samples.
func Simulate(doses []DoseEvent) []ConcentrationSample {
	if len(doses) == 0 {
		return []ConcentrationSample{}
	}

	start := doses[0].Date
	end := doses[len(doses)-1].Date.AddDays(TailDays)
	days := end.DaysSince(start) + 1

	samples := make([]ConcentrationSample, 0, days)
	for day := start; !day.After(end); day = day.AddDays(1) {
		contributions := make([]float64, len(doses))
		total := 0.0

		for i, dose := range doses {
			c := Contribution(dose, day)
			total += c
			contributions[i] = round2(c)
		}

		samples = append(samples, ConcentrationSample{
			Date:                day,
			TotalConcentration:  round2(total),
			PerDoseContribution: contributions,
		})
	}

	return samples
}

// Contribution is the unrounded concentration a single dose adds on day.
// It ramps linearly from administration to the peak, then decays
// exponentially with HalfLifeDays.
func Contribution(dose DoseEvent, day civil.Date) float64 {
	if day.Before(dose.Date) {
		return 0
	}

	bioavailable := dose.AmountMg * Bioavailability
	sinceDose := float64(day.DaysSince(dose.Date))
	sincePeak := sinceDose - PeakDelayDays

	if sincePeak >= 0 {
		return bioavailable * math.Pow(0.5, sincePeak/HalfLifeDays)
	}
	return bioavailable * (sinceDose / PeakDelayDays)
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
