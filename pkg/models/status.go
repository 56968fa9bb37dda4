package models

// OutcomeStatus represents the terminal disposition of a scheduled URL
type OutcomeStatus string

const (
	OutcomeStatusUnset   OutcomeStatus = ""        // Zero value = unset/unknown
	OutcomeStatusSuccess OutcomeStatus = "success" // Fetch succeeded (possibly after retries)
	OutcomeStatusFailure OutcomeStatus = "failure" // Fetch failed terminally (fatal error or retries exhausted)
	OutcomeStatusDenied  OutcomeStatus = "denied"  // Origin policy disallowed the URL; no fetch was attempted
)

// String implements fmt.Stringer for logging
func (s OutcomeStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known terminal value
func (s OutcomeStatus) IsValid() bool {
	switch s {
	case OutcomeStatusSuccess, OutcomeStatusFailure, OutcomeStatusDenied:
		return true
	}
	return false
}

// IsTerminal mirrors IsValid; every valid status is terminal. Kept separate so
// callers express intent.
func (s OutcomeStatus) IsTerminal() bool {
	return s.IsValid()
}
