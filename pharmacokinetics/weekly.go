package pharmacokinetics

// WeeklyAverages splits samples into consecutive chunks of WeekLength by
// position and averages each chunk's total concentration over its actual
// size. The last chunk may be shorter.
func WeeklyAverages(samples []ConcentrationSample) []WeeklyAverage {
	weeks := make([]WeeklyAverage, 0, (len(samples)+WeekLength-1)/WeekLength)

	for start := 0; start < len(samples); start += WeekLength {
		end := min(start+WeekLength, len(samples))

		sum := 0.0
		for _, s := range samples[start:end] {
			sum += s.TotalConcentration
		}

		weeks = append(weeks, WeeklyAverage{
			WeekIndex:        start/WeekLength + 1,
			AvgConcentration: round2(sum / float64(end-start)),
		})
	}

	return weeks
}
