package pharmacokinetics

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Engine memoizes Simulate on the normalized dose sequence. Results handed
// out are private copies, so callers may modify them.
type Engine struct {
	cache      *lru.Cache[string, []ConcentrationSample]
	hits       atomic.Int64
	misses     atomic.Int64
	lastPurged atomic.Value // time.Time
}

// EngineStats is a snapshot of the memo counters.
type EngineStats struct {
	Entries    int       `json:"entries"`
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	LastPurged time.Time `json:"last_purged"`
}

// Result bundles a simulation with its weekly averages.
type Result struct {
	Doses   []DoseEvent           `json:"doses"`
	Samples []ConcentrationSample `json:"samples"`
	Weekly  []WeeklyAverage       `json:"weekly"`
}

// NewEngine creates an engine holding at most size memoized simulations.
func NewEngine(size int) (*Engine, error) {
	cache, err := lru.New[string, []ConcentrationSample](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation cache: %w", err)
	}

	e := &Engine{cache: cache}
	e.lastPurged.Store(time.Time{})
	return e, nil
}

// Simulate returns the samples for doses and whether they came from the memo.
func (e *Engine) Simulate(doses []DoseEvent) ([]ConcentrationSample, bool) {
	if len(doses) == 0 {
		return []ConcentrationSample{}, false
	}

	key := doseKey(doses)
	if samples, ok := e.cache.Get(key); ok {
		e.hits.Add(1)
		return cloneSamples(samples), true
	}

	e.misses.Add(1)
	samples := Simulate(doses)
	e.cache.Add(key, samples)
	return cloneSamples(samples), false
}

// Run normalizes raw entries, simulates them and aggregates weekly averages.
func (e *Engine) Run(raw []RawDose) (Result, bool) {
	doses := NormalizeDoses(raw)
	samples, hit := e.Simulate(doses)
	return Result{
		Doses:   doses,
		Samples: samples,
		Weekly:  WeeklyAverages(samples),
	}, hit
}

// Purge drops every memoized simulation.
func (e *Engine) Purge() int {
	n := e.cache.Len()
	e.cache.Purge()
	e.lastPurged.Store(time.Now())
	return n
}

// Stats returns the current memo counters.
func (e *Engine) Stats() EngineStats {
	lastPurged, _ := e.lastPurged.Load().(time.Time)
	return EngineStats{
		Entries:    e.cache.Len(),
		Hits:       e.hits.Load(),
		Misses:     e.misses.Load(),
		LastPurged: lastPurged,
	}
}

func doseKey(doses []DoseEvent) string {
	var b strings.Builder
	for i, d := range doses {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(d.Date.String())
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(d.AmountMg, 'g', -1, 64))
	}
	return b.String()
}

func cloneSamples(samples []ConcentrationSample) []ConcentrationSample {
	out := make([]ConcentrationSample, len(samples))
	for i, s := range samples {
		s.PerDoseContribution = slices.Clone(s.PerDoseContribution)
		out[i] = s
	}
	return out
}
