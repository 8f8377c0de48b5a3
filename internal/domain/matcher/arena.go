package matcher

import (
	"sort"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

// arena owns one vehicle's records and their consumed flags. Records are
// addressed by (type, index) into lists sorted by anchor time then identifier.
type arena struct {
	lists    map[telemetry.StreamType][]telemetry.FileRecord
	consumed map[telemetry.StreamType][]bool
}

func newArena(records map[telemetry.StreamType][]telemetry.FileRecord) *arena {
	a := &arena{
		lists:    make(map[telemetry.StreamType][]telemetry.FileRecord, 4),
		consumed: make(map[telemetry.StreamType][]bool, 4),
	}
	for _, st := range telemetry.StreamTypes() {
		var list []telemetry.FileRecord
		for _, r := range records[st] {
			if r.Extracted() {
				list = append(list, r)
			}
		}
		// Sorting a private copy makes the outcome independent of input order.
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].AnchorTime.Equal(list[j].AnchorTime) {
				return list[i].AnchorTime.Before(list[j].AnchorTime)
			}
			return list[i].Identifier < list[j].Identifier
		})
		a.lists[st] = list
		a.consumed[st] = make([]bool, len(list))
	}
	return a
}

func (a *arena) anchors() []telemetry.FileRecord {
	return a.lists[telemetry.StreamCAN]
}

func (a *arena) record(st telemetry.StreamType, i int) telemetry.FileRecord {
	return a.lists[st][i]
}

func (a *arena) consume(st telemetry.StreamType, i int) {
	a.consumed[st][i] = true
}

func (a *arena) isConsumed(st telemetry.StreamType, i int) bool {
	return a.consumed[st][i]
}

// window returns the indices of st's records that can possibly pair with
// anchor: timed records within tolerance of a timed anchor, plus date-only
// records on the anchor's calendar day. A date-only anchor pairs by day only.
// When skipConsumed is set, consumed records are left out.
func (a *arena) window(st telemetry.StreamType, anchor telemetry.FileRecord, tolerance time.Duration, skipConsumed bool) []int {
	list := a.lists[st]
	var out []int

	add := func(from, to time.Time, dateOnly bool) {
		lo := sort.Search(len(list), func(i int) bool { return !list[i].AnchorTime.Before(from) })
		for i := lo; i < len(list) && !list[i].AnchorTime.After(to); i++ {
			if list[i].DateOnly != dateOnly {
				continue
			}
			if skipConsumed && a.consumed[st][i] {
				continue
			}
			out = append(out, i)
		}
	}

	day := telemetry.Midnight(anchor.AnchorTime)
	endOfDay := day.Add(24*time.Hour - time.Nanosecond)
	if anchor.DateOnly {
		add(day, endOfDay, false)
	} else {
		add(anchor.AnchorTime.Add(-tolerance), anchor.AnchorTime.Add(tolerance), false)
	}
	add(day, endOfDay, true)

	sort.Ints(out)
	return out
}
