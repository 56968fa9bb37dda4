package storage

import (
	"context"
	"time"

	"crawl-scheduler/pkg/models"
)

// OutcomeStore persists terminal outcomes of scheduled URLs. The scheduler
// core itself holds no outcome state after returning a batch; the store exists
// so drivers can keep a durable journal across runs.
type OutcomeStore interface {
	// RecordOutcome writes the terminal outcome entry for a URL.
	// Each URL's outcome is terminal; a second write for the same URL within
	// a run replaces the first and is logged as unexpected.
	RecordOutcome(normalizedURL string, entry *models.OutcomeEntry) error

	// GetOutcome retrieves the journaled outcome for a URL.
	// Returns nil (no error) when the URL has no journaled outcome.
	GetOutcome(normalizedURL string) (*models.OutcomeEntry, error)

	// CountByStatus returns the number of journaled outcomes per status for
	// this store's run.
	CountByStatus() (map[models.OutcomeStatus]int, error)

	// RunGC runs periodic garbage collection. Should be run in a goroutine.
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection.
	Close() error
}
