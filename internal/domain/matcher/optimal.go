package matcher

import (
	"sort"

	"github.com/sophialabs/tripmatch/internal/domain/scoring"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

const scoreEpsilon = 1e-9

type option struct {
	sel  selection
	comb scoring.Combination
}

type plan struct {
	choice []int // option index per anchor, -1 when the anchor stays unmatched
	count  int
	score  float64
}

func (p plan) beatenBy(count int, score float64) bool {
	if count != p.count {
		return count > p.count
	}
	return score > p.score+scoreEpsilon
}

// optimal runs a branch-and-bound search over all anchors at once. Options are
// tried best-first and "leave unmatched" last, so the first complete plan is
// exactly the greedy assignment; later plans replace it only when strictly
// better, which keeps the outcome deterministic.
func (m *Matcher) optimal(vehicleID string, a *arena) Result {
	anchors := a.anchors()
	types := telemetry.CandidateTypes()

	opts := make([][]option, len(anchors))
	evs := make([]evaluation, len(anchors))
	for i, anchor := range anchors {
		evs[i] = m.evaluate(a, anchor, false, func(sel selection, c scoring.Combination) {
			opts[i] = append(opts[i], option{sel: sel, comb: c})
		})
		sort.SliceStable(opts[i], func(x, y int) bool {
			return scoring.Better(opts[i][x].comb, opts[i][y].comb)
		})
	}

	// Suffix bounds: every remaining anchor matched with its best option.
	boundCount := make([]int, len(anchors)+1)
	boundScore := make([]float64, len(anchors)+1)
	for i := len(anchors) - 1; i >= 0; i-- {
		boundCount[i] = boundCount[i+1]
		boundScore[i] = boundScore[i+1]
		if len(opts[i]) > 0 {
			boundCount[i]++
			boundScore[i] += opts[i][0].comb.Score
		}
	}

	best := plan{count: -1}
	cur := make([]int, len(anchors))
	nodes, exhausted := 0, false

	conflicts := func(sel selection) bool {
		for depth, st := range types {
			if a.isConsumed(st, sel[depth]) {
				return true
			}
		}
		return false
	}
	setUsed := func(sel selection, used bool) {
		for depth, st := range types {
			a.consumed[st][sel[depth]] = used
		}
	}

	var search func(i, count int, score float64)
	search = func(i, count int, score float64) {
		if exhausted {
			return
		}
		nodes++
		if nodes > m.nodeBudget {
			exhausted = true
			return
		}
		if i == len(anchors) {
			if best.beatenBy(count, score) {
				best = plan{choice: append([]int(nil), cur...), count: count, score: score}
			}
			return
		}
		if best.count >= 0 && !best.beatenBy(count+boundCount[i], score+boundScore[i]) {
			return
		}
		for k, o := range opts[i] {
			if conflicts(o.sel) {
				continue
			}
			setUsed(o.sel, true)
			cur[i] = k
			search(i+1, count+1, score+o.comb.Score)
			setUsed(o.sel, false)
			if exhausted {
				return
			}
		}
		cur[i] = -1
		search(i+1, count, score)
	}
	search(0, 0, 0)

	if best.count < 0 {
		// Budget ran out before a single complete plan; greedy is that plan.
		res := m.greedy(vehicleID, newArenaFrom(a))
		res.BudgetExhausted = true
		return res
	}

	var res Result
	res.BudgetExhausted = exhausted
	for i, anchor := range anchors {
		entry := m.traceEntry(vehicleID, anchor, evs[i])
		k := best.choice[i]
		if k < 0 {
			entry.Reason = m.unmatchedDetail(evs[i])
			if len(opts[i]) > 0 {
				entry.Reason = "every valid combination conflicts with the optimal assignment"
			}
			res.Diagnostics = append(res.Diagnostics, unmatched(vehicleID, anchor, entry.Reason))
			res.Trace = append(res.Trace, entry)
			continue
		}
		o := opts[i][k]
		a.consume(telemetry.StreamCAN, i)
		setUsed(o.sel, true)
		markMatched(&entry, o.comb)
		res.Sessions = append(res.Sessions, m.session(vehicleID, o.comb))
		res.Trace = append(res.Trace, entry)
	}
	return res
}

// newArenaFrom returns a copy of a's records with every consumed flag cleared.
func newArenaFrom(a *arena) *arena {
	return newArena(a.lists)
}
