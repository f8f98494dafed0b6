// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"io"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

// Rejection records why a cafe was rejected and in which state.
type Rejection struct {
	Key      string
	CafeName string
	City     string
	State    State
	Reason   string
}

// Summary counts the outcomes of a run. Reviews holds every exported
// review, restored ones first.
type Summary struct {
	Exported   int
	Rejected   int
	Skipped    int
	Failed     int
	Restored   int
	Reviews    []types.CafeReview
	Rejections []Rejection
}

// Total returns the number of cafes seen by this run.
func (s Summary) Total() int {
	return s.Exported + s.Rejected + s.Skipped + s.Failed
}

// HasFailures reports whether any cafe failed transiently and will be
// retried by the next run.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Report writes the counts and one line per rejection.
func (s Summary) Report(w io.Writer) {
	fmt.Fprintf(w, "\nRun summary: %d exported, %d rejected, %d skipped, %d failed (total: %d, restored: %d)\n",
		s.Exported, s.Rejected, s.Skipped, s.Failed, s.Total(), s.Restored)
	for _, r := range s.Rejections {
		fmt.Fprintf(w, "  rejected %s / %s while %s: %s\n", r.City, r.CafeName, r.State, r.Reason)
	}
	if s.HasFailures() {
		fmt.Fprintf(w, "  %d cafes failed and will be retried on the next run\n", s.Failed)
	}
}
