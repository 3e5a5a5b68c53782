package etl

import (
	"fmt"
	"sort"
	"strings"
)

// Rejection reasons recorded while streaming rows. Missing-file reasons
// carry the file name so the run summary points at the broken export.
const (
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonInvalidRecord    = "invalid_record"
)

// MissingFileReason builds the rejection reason for a source file that
// could not be opened.
func MissingFileReason(name string) string {
	return "missing_file:" + name
}

// RunState accumulates counters for one ingest run.
type RunState struct {
	RowsSeen     int
	RowsLoaded   int
	RowsRejected int
	rejections   map[string]int
}

// NewRunState returns an empty RunState.
func NewRunState() *RunState {
	return &RunState{rejections: make(map[string]int)}
}

// Reject counts one rejected row under the given reason.
func (s *RunState) Reject(reason string) {
	s.RowsRejected++
	s.rejections[reason]++
}

// Rejections returns a copy of the reason histogram.
func (s *RunState) Rejections() map[string]int {
	out := make(map[string]int, len(s.rejections))
	for reason, count := range s.rejections {
		out[reason] = count
	}
	return out
}

// Summary renders the rejection histogram as "reason:count" pairs in
// stable order, or "" when nothing was rejected.
func (s *RunState) Summary() string {
	if len(s.rejections) == 0 {
		return ""
	}

	reasons := make([]string, 0, len(s.rejections))
	for reason := range s.rejections {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	parts := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		parts = append(parts, fmt.Sprintf("%s:%d", reason, s.rejections[reason]))
	}
	return strings.Join(parts, ", ")
}
