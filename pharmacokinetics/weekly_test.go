package pharmacokinetics

import (
	"testing"

	"github.com/m-mizutani/gt"
)

func samplesWithTotals(totals ...float64) []ConcentrationSample {
	start := date("2024-01-01")
	samples := make([]ConcentrationSample, len(totals))
	for i, v := range totals {
		samples[i] = ConcentrationSample{Date: start.AddDays(i), TotalConcentration: v}
	}
	return samples
}

func TestWeeklyAveragesChunks(t *testing.T) {
	samples := samplesWithTotals(
		1, 2, 3, 4, 5, 6, 7, // 4
		7, 7, 7, 7, 7, 7, 7, // 7
		1, 2, // 1.5
	)

	weeks := WeeklyAverages(samples)
	gt.Equal(t, weeks, []WeeklyAverage{
		{WeekIndex: 1, AvgConcentration: 4},
		{WeekIndex: 2, AvgConcentration: 7},
		{WeekIndex: 3, AvgConcentration: 1.5},
	})
	gt.Equal(t, weeks[2].Label(), "Week 3")
}

func TestWeeklyAveragesRounds(t *testing.T) {
	weeks := WeeklyAverages(samplesWithTotals(1, 1, 2))
	gt.Equal(t, weeks, []WeeklyAverage{{WeekIndex: 1, AvgConcentration: 1.33}})
}

func TestWeeklyAveragesCount(t *testing.T) {
	for n := 0; n <= 30; n++ {
		totals := make([]float64, n)
		weeks := WeeklyAverages(samplesWithTotals(totals...))
		gt.Equal(t, len(weeks), (n+6)/7)
	}
}

func TestWeeklyAveragesOfSimulation(t *testing.T) {
	samples := Simulate(NormalizeDoses([]RawDose{
		{Date: "2024-01-01", Amount: "5"},
		{Date: "2024-01-08", Amount: "5"},
	}))

	weeks := WeeklyAverages(samples)
	gt.Equal(t, len(weeks), 6)
	// 36 samples leave a single-sample last chunk
	gt.Equal(t, weeks[5].AvgConcentration, samples[35].TotalConcentration)
}
