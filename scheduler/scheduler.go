// Package scheduler runs the background jobs of the dosecurve API: the daily
// purge of the simulation memo, pruning of idle rate-limit buckets and an
// hourly store heartbeat.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/dosecurve-api/interfaces"
	"github.com/giygas/dosecurve-api/logging"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

const (
	pruneInterval     = 30 * time.Minute
	heartbeatInterval = time.Hour
	heartbeatTimeout  = 5 * time.Second
)

// Scheduler owns a gocron scheduler and the jobs registered on it
type Scheduler struct {
	store     interfaces.DoseStore
	simulator interfaces.Simulator
	pruner    interfaces.BucketPruner
	purgeAt   string
	scheduler *gocron.Scheduler
}

// NewScheduler creates a scheduler. pruner may be nil when rate limiting is off.
func NewScheduler(store interfaces.DoseStore, simulator interfaces.Simulator, pruner interfaces.BucketPruner, purgeAt string) *Scheduler {
	return &Scheduler{
		store:     store,
		simulator: simulator,
		pruner:    pruner,
		purgeAt:   purgeAt,
		scheduler: gocron.NewScheduler(time.Local),
	}
}

// Start registers the jobs and starts the scheduler asynchronously
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(1).Days().At(s.purgeAt).Do(s.purgeCache); err != nil {
		logging.Error("Failed to schedule cache purge", "error", err)
		return fmt.Errorf("failed to schedule cache purge: %w", err)
	}

	if s.pruner != nil {
		if _, err := s.scheduler.Every(pruneInterval).WaitForSchedule().Do(s.pruneBuckets); err != nil {
			return fmt.Errorf("failed to schedule rate limiter pruning: %w", err)
		}
	}

	if _, err := s.scheduler.Every(heartbeatInterval).WaitForSchedule().Do(s.heartbeat); err != nil {
		return fmt.Errorf("failed to schedule store heartbeat: %w", err)
	}

	s.scheduler.StartAsync()
	logging.Info("Scheduler started", "jobs", s.scheduler.Len(), "cache_purge_at", s.purgeAt)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// purgeCache empties the simulation memo
func (s *Scheduler) purgeCache() {
	start := time.Now()
	dropped := s.simulator.Purge()
	logging.Info("Simulation cache purged", "entries", dropped, "duration", time.Since(start).String())
}

func (s *Scheduler) pruneBuckets() {
	remaining := s.pruner.Prune()
	logging.Debug("Rate limiter buckets pruned", "remaining", remaining)
}

// heartbeat logs when the store stops answering
func (s *Scheduler) heartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		logging.Warn("Dose store is not reachable", "backend", s.store.Backend(), "error", err)
		return
	}

	stats := s.simulator.Stats()
	logging.Debug("Store heartbeat",
		"backend", s.store.Backend(),
		"cache_entries", stats.Entries,
		"cache_hits", stats.Hits,
		"cache_misses", stats.Misses,
	)
}
