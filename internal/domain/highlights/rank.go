package highlights

import (
	"sort"

	"github.com/forPelevin/clipscout/internal/types"
)

const (
	MinScore = 1
	MaxScore = 100

	// Clips outside this duration range (seconds) are degenerate.
	MinDuration = 5.0
	MaxDuration = 600.0

	// Two ranges overlapping by more than this share of the shorter one are
	// the same moment.
	duplicateOverlap = 0.8
)

// Ranking is the ranked, deduplicated candidate list.
type Ranking struct {
	Candidates []types.Candidate
	Dropped    int
}

// Rank clamps scores, derives durations, drops degenerate ranges and
// near-duplicates, then orders by score. Equal scores keep provider order.
func Rank(in []types.Candidate) Ranking {
	kept := make([]types.Candidate, 0, len(in))
	dropped := 0

	for _, c := range in {
		c.ViralScore = ClampScore(c.ViralScore)
		c.DurationSeconds = c.EndTime - c.StartTime
		if c.DurationSeconds < MinDuration || c.DurationSeconds > MaxDuration {
			dropped++
			continue
		}

		// A newcomer survives only if it strictly beats every kept candidate it
		// duplicates; it then replaces all of them.
		wins := true
		var dups []int
		for i, k := range kept {
			if !isDuplicate(k, c) {
				continue
			}
			dups = append(dups, i)
			if c.ViralScore <= k.ViralScore {
				wins = false
				break
			}
		}
		if !wins {
			dropped++
			continue
		}
		if len(dups) > 0 {
			kept = removeIndexes(kept, dups)
			dropped += len(dups)
		}
		kept = append(kept, c)
	}

	// kept is still in provider order here, which makes the sort stable
	// with respect to the response.
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].ViralScore > kept[j].ViralScore
	})
	return Ranking{Candidates: kept, Dropped: dropped}
}

// ClampScore forces a score into [MinScore, MaxScore].
func ClampScore(s int) int {
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}

// Bucket groups a score into the bands shown next to a clip.
func Bucket(score int) types.ScoreBucket {
	switch {
	case score >= 80:
		return types.BucketHigh
	case score >= 50:
		return types.BucketMedium
	default:
		return types.BucketLow
	}
}

func isDuplicate(a, b types.Candidate) bool {
	overlap := min(a.EndTime, b.EndTime) - max(a.StartTime, b.StartTime)
	if overlap <= 0 {
		return false
	}
	shorter := min(a.EndTime-a.StartTime, b.EndTime-b.StartTime)
	return overlap > duplicateOverlap*shorter
}

func removeIndexes(in []types.Candidate, idx []int) []types.Candidate {
	out := in[:0]
	next := 0
	for i, c := range in {
		if next < len(idx) && idx[next] == i {
			next++
			continue
		}
		out = append(out, c)
	}
	return out
}
