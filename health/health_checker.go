// Package health reports whether the dose store is reachable and how the
// simulation memo is doing.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/giygas/dosecurve-api/interfaces"
)

const pingTimeout = 2 * time.Second

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	store     interfaces.DoseStore
	simulator interfaces.Simulator
	startTime time.Time
	purgeHour int
	purgeMin  int
	now       func() time.Time
}

var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// NewHealthChecker creates a health checker. purgeAt is the daily memo
// purge time as "15:04"; an unparsable value falls back to midnight.
func NewHealthChecker(store interfaces.DoseStore, simulator interfaces.Simulator, purgeAt string) *HealthCheckerImpl {
	h := &HealthCheckerImpl{
		store:     store,
		simulator: simulator,
		startTime: time.Now(),
		now:       time.Now,
	}
	if t, err := time.Parse("15:04", purgeAt); err == nil {
		h.purgeHour, h.purgeMin = t.Hour(), t.Minute()
	}
	return h
}

// HealthCheck pings the store and reports memo statistics.
// Used by /health HTTP endpoint
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := h.now()
	pingErr := h.store.Ping(pingCtx)
	pingLatency := h.now().Sub(start)

	stats := h.simulator.Stats()
	uptime := h.now().Sub(h.startTime)

	data = map[string]any{
		"store":           h.store.Backend(),
		"store_reachable": pingErr == nil,
		"store_ping_ms":   pingLatency.Milliseconds(),
		"cache_entries":   stats.Entries,
		"cache_hits":      stats.Hits,
		"cache_misses":    stats.Misses,
		"cache_hit_ratio": hitRatio(stats.Hits, stats.Misses),
		"next_purge":      h.NextPurge().Format(time.RFC3339),
		"uptime_hours":    math.Round(uptime.Hours()*10) / 10,
	}
	if !stats.LastPurged.IsZero() {
		data["last_purge"] = stats.LastPurged.Format(time.RFC3339)
	}

	if pingErr != nil {
		data["store_error"] = pingErr.Error()
		return "unhealthy", data, http.StatusServiceUnavailable
	}

	return "healthy", data, http.StatusOK
}

func hitRatio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return math.Round(float64(hits)/float64(total)*1000) / 1000
}

// NextPurge returns the next scheduled memo purge
func (h *HealthCheckerImpl) NextPurge() time.Time {
	now := h.now()

	next := time.Date(now.Year(), now.Month(), now.Day(), h.purgeHour, h.purgeMin, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
