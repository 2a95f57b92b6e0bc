// Package lifecycle holds the source processing state machine.
package lifecycle

import (
	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/types"
)

var transitions = map[types.SourceStatus][]types.SourceStatus{
	types.SourcePending:      {types.SourceTranscribing, types.SourceError},
	types.SourceTranscribing: {types.SourceReady, types.SourceError},
	types.SourceReady:        {types.SourceAnalyzing, types.SourceTranscribing, types.SourceError},
	types.SourceAnalyzing:    {types.SourceReady, types.SourceError},
	types.SourceError:        {types.SourceTranscribing},
}

// Valid reports whether s is one of the known statuses.
func Valid(s types.SourceStatus) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a source may move from one status to another.
// Self-transitions are not transitions and are rejected.
func CanTransition(from, to types.SourceStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Validate is CanTransition as an error.
func Validate(from, to types.SourceStatus) error {
	if !Valid(to) {
		return apperr.Newf(apperr.CodeInput, "unknown source status %q", to)
	}
	if !CanTransition(from, to) {
		return apperr.Newf(apperr.CodeConflict, "illegal source status transition %s -> %s", from, to)
	}
	return nil
}

// From lists the statuses that may move to `to`. Stores use it for
// conditional updates.
func From(to types.SourceStatus) []types.SourceStatus {
	var out []types.SourceStatus
	for _, from := range order {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

var order = []types.SourceStatus{
	types.SourcePending,
	types.SourceTranscribing,
	types.SourceAnalyzing,
	types.SourceReady,
	types.SourceError,
}
