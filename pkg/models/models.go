package models

import "time"

// DeniedReason is the fixed reason string attached to policy-denied outcomes.
const DeniedReason = "Disallowed by policy"

// FetchResult is the payload returned by the page-fetch collaborator for a
// successfully fetched URL.
type FetchResult struct {
	StatusCode int    // HTTP status of the final response (2xx)
	Payload    []byte // Rendered document body
}

// Outcome is the terminal result of scheduling one URL. Produced exactly once
// per input URL and immutable afterwards.
type Outcome struct {
	URL      string        // The input URL as provided by the caller
	Status   OutcomeStatus // success, failure, or denied
	Result   *FetchResult  // Non-nil only on success
	Reason   string        // Denial reason (DeniedReason) when Status is denied
	Attempts int           // Fetch attempts performed (0 if no fetch was issued)
	Err      error         // Terminal error when Status is failure
	Category string        // Stable error category (utils.CategorizeError) for logs/journal
}

// OutcomeEntry is the persisted form of an Outcome in the journal database.
// Payload bodies are not stored; only a content hash.
type OutcomeEntry struct {
	Status      OutcomeStatus `json:"status"`
	Category    string        `json:"category,omitempty"`     // Error category (on failure)
	Reason      string        `json:"reason,omitempty"`       // Denial reason (on denied)
	Attempts    int           `json:"attempts"`               // Fetch attempts performed
	HTTPStatus  int           `json:"http_status,omitempty"`  // Final HTTP status (on success)
	PayloadHash string        `json:"payload_hash,omitempty"` // SHA-256 of payload (on success)
	RecordedAt  time.Time     `json:"recorded_at"`            // Timestamp the outcome was journaled
}

// SchedulerStats is a read-only snapshot of scheduler state.
type SchedulerStats struct {
	GlobalActive      int64            // Requests currently admitted across all origins
	PerOriginActive   map[string]int64 // Requests currently admitted per origin
	CachedOriginCount int              // Origins with a cached policy
}
