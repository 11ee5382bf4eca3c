// Package interfaces defines the contracts shared between the dosecurve
// packages so handlers, health checks and the scheduler can be tested
// against mocks.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/dosecurve-api/pharmacokinetics"
)

// DoseStore is an opaque key/value store for serialized dose lists.
// Get reports found=false, with a nil error, for a missing key.
type DoseStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// Update replaces the value of an existing key with fn(current). No other
	// write to key can interleave between the read and the write. It reports
	// found=false without calling fn when the key is missing; an error from
	// fn is returned as is and nothing is written.
	Update(ctx context.Context, key string, fn func(current string) (string, error)) (found bool, err error)

	Ping(ctx context.Context) error
	Close() error

	// Backend names the implementation ("memory", "redis", "postgres")
	Backend() string
}

// Simulator runs the concentration model, memoizing results.
type Simulator interface {
	Run(raw []pharmacokinetics.RawDose) (pharmacokinetics.Result, bool)
	Purge() int
	Stats() pharmacokinetics.EngineStats
}

// DoseValidator checks user input before it reaches the store.
type DoseValidator interface {
	// MaxDoses returns the cap on entries per list
	MaxDoses() int

	// ValidateProfileID checks a profile ID path parameter
	ValidateProfileID(input string) (string, error)

	// ValidateIndex checks a dose index path parameter against the list length
	ValidateIndex(input string, length int) (int, error)

	// ValidateDoseList checks the number of entries, each entry and the span
	ValidateDoseList(doses []pharmacokinetics.RawDose) error

	// ValidateSpan checks the days between the first and last normalized dose
	ValidateSpan(doses []pharmacokinetics.DoseEvent) error

	// ValidateRawDose checks the length and characters of a single entry
	ValidateRawDose(dose pharmacokinetics.RawDose) error
}

// BucketPruner drops idle rate-limit buckets and returns how many remain.
type BucketPruner interface {
	Prune() int
}

// Scheduler manages the background jobs.
type Scheduler interface {
	Start() error
	Stop()
}

// HealthChecker reports service health.
type HealthChecker interface {
	// HealthCheck returns the status, details, and the HTTP status to answer with
	HealthCheck(ctx context.Context) (status string, details map[string]any, httpStatus int)

	// NextPurge returns the next scheduled memo purge
	NextPurge() time.Time
}

// HTTPHandler defines the API endpoints.
type HTTPHandler interface {
	CreateProfile(w http.ResponseWriter, r *http.Request)
	DeleteProfile(w http.ResponseWriter, r *http.Request)

	GetDoses(w http.ResponseWriter, r *http.Request)
	ReplaceDoses(w http.ResponseWriter, r *http.Request)
	AppendDose(w http.ResponseWriter, r *http.Request)
	UpdateDose(w http.ResponseWriter, r *http.Request)
	RemoveDose(w http.ResponseWriter, r *http.Request)
	ImportDoses(w http.ResponseWriter, r *http.Request)

	GetConcentrations(w http.ResponseWriter, r *http.Request)
	ExportConcentrations(w http.ResponseWriter, r *http.Request)
	GetWeeklyAverages(w http.ResponseWriter, r *http.Request)
	Simulate(w http.ResponseWriter, r *http.Request)
	GetCompound(w http.ResponseWriter, r *http.Request)

	HealthCheck(w http.ResponseWriter, r *http.Request)
}
