package extract

import (
	"math"
	"sort"
	"time"
)

// OffsetDetector infers the GPS clock offset from co-located reference times
// (the same vehicle's CAN anchors) instead of trusting a configured constant.
type OffsetDetector struct {
	// MinShare is the fraction of GPS files that must agree on one whole-hour offset.
	MinShare float64
	// MaxOffset bounds the accepted offset in either direction.
	MaxOffset time.Duration
}

// DefaultOffsetDetector requires a 60% majority within ±12h.
func DefaultOffsetDetector() OffsetDetector {
	return OffsetDetector{MinShare: 0.6, MaxOffset: 12 * time.Hour}
}

// Detect votes, for every raw GPS time, on the whole-hour distance to the
// nearest reference time. reference must be sorted ascending.
func (d OffsetDetector) Detect(gps, reference []time.Time) (time.Duration, bool) {
	if len(gps) == 0 || len(reference) == 0 {
		return 0, false
	}

	votes := make(map[int]int)
	for _, g := range gps {
		i := sort.Search(len(reference), func(i int) bool { return !reference[i].Before(g) })
		nearest := time.Duration(math.MaxInt64)
		for _, j := range []int{i - 1, i} {
			if j < 0 || j >= len(reference) {
				continue
			}
			if diff := reference[j].Sub(g); absDuration(diff) < absDuration(nearest) {
				nearest = diff
			}
		}
		votes[int(math.Round(nearest.Hours()))]++
	}

	best, bestVotes := 0, -1
	for hours, n := range votes {
		if n > bestVotes || (n == bestVotes && preferHours(hours, best)) {
			best, bestVotes = hours, n
		}
	}

	offset := time.Duration(best) * time.Hour
	if absDuration(offset) > d.MaxOffset {
		return 0, false
	}
	if float64(bestVotes)/float64(len(gps)) < d.MinShare {
		return 0, false
	}
	return offset, true
}

// preferHours breaks vote ties toward the smaller correction, then the lower value.
func preferHours(a, b int) bool {
	aa, ab := a, b
	if aa < 0 {
		aa = -aa
	}
	if ab < 0 {
		ab = -ab
	}
	if aa != ab {
		return aa < ab
	}
	return a < b
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
