package matcher

import (
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

// greedy processes anchors in chronological order, committing each anchor's
// best combination among records not consumed by earlier anchors. No record
// is ever released once consumed, and unmatched anchors are not retried.
func (m *Matcher) greedy(vehicleID string, a *arena) Result {
	var res Result
	types := telemetry.CandidateTypes()

	for i, anchor := range a.anchors() {
		if a.isConsumed(telemetry.StreamCAN, i) {
			continue
		}

		ev := m.evaluate(a, anchor, true, nil)
		entry := m.traceEntry(vehicleID, anchor, ev)

		if !ev.found {
			entry.Reason = m.unmatchedDetail(ev)
			res.Diagnostics = append(res.Diagnostics, unmatched(vehicleID, anchor, entry.Reason))
			res.Trace = append(res.Trace, entry)
			continue
		}

		a.consume(telemetry.StreamCAN, i)
		for depth, st := range types {
			a.consume(st, ev.bestSel[depth])
		}
		markMatched(&entry, ev.best)
		res.Sessions = append(res.Sessions, m.session(vehicleID, ev.best))
		res.Trace = append(res.Trace, entry)
	}

	return res
}
