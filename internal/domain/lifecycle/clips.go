package lifecycle

import (
	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/types"
)

// Clips only move forward through review.
var clipTransitions = map[types.ClipStatus]types.ClipStatus{
	types.ClipSuggested: types.ClipApproved,
	types.ClipApproved:  types.ClipExported,
	types.ClipExported:  types.ClipPosted,
}

func ValidClip(s types.ClipStatus) bool {
	switch s {
	case types.ClipSuggested, types.ClipApproved, types.ClipExported, types.ClipPosted:
		return true
	default:
		return false
	}
}

func CanTransitionClip(from, to types.ClipStatus) bool {
	next, ok := clipTransitions[from]
	return ok && next == to
}

// ValidateClip is CanTransitionClip as an error.
func ValidateClip(from, to types.ClipStatus) error {
	if !ValidClip(to) {
		return apperr.Newf(apperr.CodeInput, "unknown clip status %q", to)
	}
	if !CanTransitionClip(from, to) {
		return apperr.Newf(apperr.CodeConflict, "illegal clip status transition %s -> %s", from, to)
	}
	return nil
}

// ClipFrom is the status a clip must hold to move to `to`.
func ClipFrom(to types.ClipStatus) (types.ClipStatus, bool) {
	for from, next := range clipTransitions {
		if next == to {
			return from, true
		}
	}
	return "", false
}
