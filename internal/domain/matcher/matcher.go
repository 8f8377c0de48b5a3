package matcher

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/scoring"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/domain/trace"
)

// Mode selects the assignment strategy.
type Mode string

const (
	// ModeGreedy commits the best available combination per anchor, earliest anchor first.
	ModeGreedy Mode = "greedy"
	// ModeOptimal searches for the disjoint set of combinations with the most
	// sessions, then the highest total score.
	ModeOptimal Mode = "optimal"
)

// DefaultNodeBudget bounds the optimal search per vehicle.
const DefaultNodeBudget = 200_000

// ParseMode resolves a mode name; empty means greedy.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeGreedy:
		return ModeGreedy, nil
	case ModeOptimal:
		return ModeOptimal, nil
	default:
		return "", fmt.Errorf("unknown match mode %q (supported: greedy, optimal)", s)
	}
}

// Result is one vehicle's matching outcome.
type Result struct {
	Sessions    []telemetry.Session
	Diagnostics []telemetry.Diagnostic
	// Trace has one entry per anchor in processing order, without timestamps.
	Trace []trace.Entry
	// BudgetExhausted is set when the optimal search stopped early.
	BudgetExhausted bool
}

// Matcher assigns files to sessions for one vehicle at a time. It keeps no
// state between calls, so one Matcher may serve many workers.
type Matcher struct {
	policy     scoring.Policy
	mode       Mode
	nodeBudget int
}

// Option customizes a Matcher.
type Option func(*Matcher)

// WithMode selects the assignment strategy.
func WithMode(mode Mode) Option {
	return func(m *Matcher) { m.mode = mode }
}

// WithNodeBudget bounds the optimal search.
func WithNodeBudget(n int) Option {
	return func(m *Matcher) { m.nodeBudget = n }
}

// New creates a Matcher.
func New(policy scoring.Policy, opts ...Option) *Matcher {
	m := &Matcher{policy: policy, mode: ModeGreedy, nodeBudget: DefaultNodeBudget}
	for _, opt := range opts {
		opt(m)
	}
	if m.nodeBudget <= 0 {
		m.nodeBudget = DefaultNodeBudget
	}
	return m
}

// Mode returns the configured strategy.
func (m *Matcher) Mode() Mode {
	return m.mode
}

// Match assigns vehicleID's records to sessions. Records without an anchor
// time are ignored; the caller reports them.
func (m *Matcher) Match(vehicleID string, records map[telemetry.StreamType][]telemetry.FileRecord) Result {
	a := newArena(records)
	if m.mode == ModeOptimal {
		return m.optimal(vehicleID, a)
	}
	return m.greedy(vehicleID, a)
}

// selection is one index per candidate type, in CandidateTypes order.
type selection [3]int

// evaluation is the scored outcome of searching one anchor's windows.
type evaluation struct {
	windows  map[telemetry.StreamType][]int
	best     scoring.Combination
	bestSel  selection
	found    bool
	count    int
	rejected map[scoring.Verdict]int
}

// evaluate enumerates the Cartesian product of the candidate windows and
// keeps the best valid combination. visit, when non-nil, sees every valid one.
func (m *Matcher) evaluate(a *arena, anchor telemetry.FileRecord, skipConsumed bool, visit func(selection, scoring.Combination)) evaluation {
	types := telemetry.CandidateTypes()
	ev := evaluation{
		windows:  make(map[telemetry.StreamType][]int, len(types)),
		rejected: make(map[scoring.Verdict]int),
	}
	for _, st := range types {
		ev.windows[st] = a.window(st, anchor, m.policy.Tolerance(), skipConsumed)
		if len(ev.windows[st]) == 0 {
			return ev
		}
	}

	others := make(map[telemetry.StreamType]telemetry.FileRecord, len(types))
	var sel selection
	var walk func(depth int)
	walk = func(depth int) {
		if depth == len(types) {
			picked := make(map[telemetry.StreamType]telemetry.FileRecord, len(others))
			for k, v := range others {
				picked[k] = v
			}
			ev.count++
			c, verdict := m.policy.Evaluate(anchor, picked)
			if verdict != scoring.VerdictOK {
				ev.rejected[verdict]++
				return
			}
			if visit != nil {
				visit(sel, c)
			}
			if !ev.found || scoring.Better(c, ev.best) {
				ev.best, ev.bestSel, ev.found = c, sel, true
			}
			return
		}
		st := types[depth]
		for _, i := range ev.windows[st] {
			sel[depth] = i
			others[st] = a.record(st, i)
			walk(depth + 1)
		}
		delete(others, st)
	}
	walk(0)
	return ev
}

func (m *Matcher) session(vehicleID string, c scoring.Combination) telemetry.Session {
	files := make(map[telemetry.StreamType]telemetry.FileRecord, 4)
	files[telemetry.StreamCAN] = c.Anchor
	end := c.Anchor.AnchorTime
	for st, r := range c.Others {
		files[st] = r
		if r.AnchorTime.After(end) {
			end = r.AnchorTime
		}
	}
	deltas := make(map[telemetry.StreamType]time.Duration, len(c.Deltas))
	for st, d := range c.Deltas {
		deltas[st] = d
	}
	return telemetry.Session{
		VehicleID:  vehicleID,
		Date:       telemetry.Midnight(c.Anchor.AnchorTime),
		Files:      files,
		StartTime:  c.Anchor.AnchorTime,
		EndTime:    end,
		Score:      c.Score,
		TimeDeltas: deltas,
	}
}

func (m *Matcher) traceEntry(vehicleID string, anchor telemetry.FileRecord, ev evaluation) trace.Entry {
	e := trace.Entry{
		VehicleID:  vehicleID,
		Mode:       string(m.mode),
		Anchor:     anchor.Identifier,
		AnchorTime: anchor.AnchorTime,
		Candidates: make(map[string]int, len(ev.windows)),
		Evaluated:  ev.count,
	}
	for st, w := range ev.windows {
		e.Candidates[st.String()] = len(w)
	}
	if len(ev.rejected) > 0 {
		e.Rejected = make(map[string]int, len(ev.rejected))
		for v, n := range ev.rejected {
			e.Rejected[string(v)] = n
		}
	}
	return e
}

func markMatched(e *trace.Entry, c scoring.Combination) {
	e.Matched = true
	e.Score = c.Score
	e.Members = make(map[string]string, len(c.Others))
	for st, r := range c.Others {
		e.Members[st.String()] = r.Identifier
	}
}

// unmatchedDetail explains why no combination could be committed for an anchor.
func (m *Matcher) unmatchedDetail(ev evaluation) string {
	for _, st := range telemetry.CandidateTypes() {
		if len(ev.windows[st]) == 0 {
			return fmt.Sprintf("no available %s candidate within %g minutes or on the same date", st, m.policy.ToleranceMinutes)
		}
	}
	if ev.count == 0 || len(ev.rejected) == 0 {
		return "no valid combination"
	}
	verdicts := make([]string, 0, len(ev.rejected))
	for v, n := range ev.rejected {
		verdicts = append(verdicts, fmt.Sprintf("%s=%d", v, n))
	}
	sort.Strings(verdicts)
	return fmt.Sprintf("no valid combination among %d candidates (%s)", ev.count, strings.Join(verdicts, ", "))
}

func unmatched(vehicleID string, anchor telemetry.FileRecord, detail string) telemetry.Diagnostic {
	return telemetry.Diagnostic{
		VehicleID:  vehicleID,
		Reason:     telemetry.ReasonUnmatchedAnchor,
		StreamType: telemetry.StreamCAN,
		Identifier: anchor.Identifier,
		Detail:     detail,
	}
}
