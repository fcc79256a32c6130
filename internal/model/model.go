// Package model holds the shared types of the qualification pipeline.
package model

import "sync"

// Status is the terminal classification of a processed row.
type Status string

const (
	// StatusPending is represented as an empty cell in the persisted table,
	// so resumed runs pick the row up again.
	StatusPending     Status = ""
	StatusAnalyzed    Status = "analyzed"
	StatusUnreachable Status = "unreachable"
	StatusError       Status = "error"
)

// Column names shared between the table layer and the pipeline.
const (
	ColCompanyName = "Company Name"
	ColWebsite     = "Website"
	ColLinkedIn    = "LinkedIn"
	ColDescription = "Company Description"
	ColStatus      = "status"
	ColAnalyzedAt  = "analyzed_at"
)

// Record maps result column names to their string values for one row.
// Produced once per row per run by the result mapper.
type Record map[string]string

// Stats aggregates run-level counters. Safe for concurrent use.
type Stats struct {
	mu           sync.Mutex
	Qualified    int
	NotQualified int
	Unreachable  int
	Errors       int
	Styles       map[string]int
}

// NewStats returns zeroed run statistics.
func NewStats() *Stats {
	return &Stats{Styles: make(map[string]int)}
}

// Add records one completed row outcome.
func (s *Stats) Add(status Status, qualified bool, style string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch status {
	case StatusUnreachable:
		s.Unreachable++
	case StatusError:
		s.Errors++
	case StatusAnalyzed:
		if qualified {
			s.Qualified++
		} else {
			s.NotQualified++
		}
		if style != "" {
			s.Styles[style]++
		}
	}
}

// Snapshot returns a copy of the counters for reporting.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	styles := make(map[string]int, len(s.Styles))
	for k, v := range s.Styles {
		styles[k] = v
	}
	return StatsSnapshot{
		Qualified:    s.Qualified,
		NotQualified: s.NotQualified,
		Unreachable:  s.Unreachable,
		Errors:       s.Errors,
		Styles:       styles,
	}
}

// StatsSnapshot is an immutable copy of Stats.
type StatsSnapshot struct {
	Qualified    int            `json:"qualified"`
	NotQualified int            `json:"not_qualified"`
	Unreachable  int            `json:"unreachable"`
	Errors       int            `json:"errors"`
	Styles       map[string]int `json:"styles,omitempty"`
}

// ProgressFunc receives per-item completion events for display.
// done is the number of completed rows, total the number scheduled.
type ProgressFunc func(done, total int, message string)
