package scoring

import (
	"math"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

const (
	DefaultToleranceMinutes = 30.0
	DefaultNormalization    = 10.0
)

// maxToleranceMinutes is the largest tolerance a time.Duration can hold,
// a little over 292 years.
const maxToleranceMinutes = float64(math.MaxInt64) / float64(time.Minute)

// Verdict explains why a combination was accepted or rejected.
type Verdict string

const (
	VerdictOK             Verdict = "ok"
	VerdictMissingType    Verdict = "missing_type"
	VerdictDateMismatch   Verdict = "date_mismatch"
	VerdictOutOfTolerance Verdict = "out_of_tolerance"
)

// Combination is a candidate session before commitment.
type Combination struct {
	Anchor telemetry.FileRecord
	Others map[telemetry.StreamType]telemetry.FileRecord
	// Deltas holds |other - anchor| per non-anchor type; zero for matching date-only records.
	Deltas map[telemetry.StreamType]time.Duration
	Total  time.Duration
	Score  float64
}

// Policy scores candidate combinations. It is a value type with no state.
type Policy struct {
	ToleranceMinutes float64
	// K normalizes the summed offset in minutes.
	K float64
}

// DefaultPolicy returns the 30 minute tolerance, K=10 policy.
func DefaultPolicy() Policy {
	return Policy{ToleranceMinutes: DefaultToleranceMinutes, K: DefaultNormalization}
}

// Tolerance returns the tolerance as a duration, saturating at the largest
// representable duration.
func (p Policy) Tolerance() time.Duration {
	if p.ToleranceMinutes >= maxToleranceMinutes {
		return math.MaxInt64
	}
	return time.Duration(p.ToleranceMinutes * float64(time.Minute))
}

// Evaluate scores anchor against one record per candidate type. The returned
// combination carries whatever deltas were computed even when rejected.
func (p Policy) Evaluate(anchor telemetry.FileRecord, others map[telemetry.StreamType]telemetry.FileRecord) (Combination, Verdict) {
	c := Combination{
		Anchor: anchor,
		Others: others,
		Deltas: make(map[telemetry.StreamType]time.Duration, len(others)),
	}

	maxDelta := time.Duration(0)
	for _, st := range telemetry.CandidateTypes() {
		other, ok := others[st]
		if !ok {
			return c, VerdictMissingType
		}

		var delta time.Duration
		if other.DateOnly || anchor.DateOnly {
			// A date-only side can never be salvaged by tolerance: same day or nothing.
			if !telemetry.SameDate(other.AnchorTime, anchor.AnchorTime) {
				return c, VerdictDateMismatch
			}
		} else {
			delta = absDuration(other.AnchorTime.Sub(anchor.AnchorTime))
		}

		c.Deltas[st] = delta
		c.Total += delta
		if delta > maxDelta {
			maxDelta = delta
		}
	}

	if maxDelta.Minutes() > p.ToleranceMinutes {
		return c, VerdictOutOfTolerance
	}

	c.Score = p.score(c.Total)
	return c, VerdictOK
}

func (p Policy) score(total time.Duration) float64 {
	return 1 / (1 + total.Minutes()/p.K)
}

// Better reports whether a should win over b: higher score, then smaller
// total offset, then lexicographically smaller identifiers in type order.
func Better(a, b Combination) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Total != b.Total {
		return a.Total < b.Total
	}
	for _, st := range telemetry.CandidateTypes() {
		ai, bi := a.Others[st].Identifier, b.Others[st].Identifier
		if ai != bi {
			return ai < bi
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
