package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Grammar is one recognized date/time layout.
type Grammar struct {
	Name     string
	DateOnly bool
	pattern  *regexp.Regexp
	parse    func(m []string) (time.Time, error)
}

// Match finds the first occurrence of the grammar in s.
func (g Grammar) Match(s string) (time.Time, bool) {
	m := g.pattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	t, err := g.parse(m)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// grammars is evaluated in priority order. Full date-time layouts come before
// date-only ones so that a line carrying both resolves to the finer value.
var grammars = []Grammar{
	{
		Name:    "iso",
		pattern: regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})[ T](\d{2}):(\d{2}):(\d{2})(?:[.,](\d{1,9}))?`),
		parse: func(m []string) (time.Time, error) {
			return build(m[1], m[2], m[3], m[4], m[5], m[6], m[7], "")
		},
	},
	{
		Name:    "dmy-slash",
		pattern: regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4})[ T](\d{1,2}):(\d{2}):(\d{2})(?:[.,](\d{1,9}))?\s*([AaPp][Mm])?`),
		parse: func(m []string) (time.Time, error) {
			return build(m[3], m[2], m[1], m[4], m[5], m[6], m[7], m[8])
		},
	},
	{
		Name:    "dmy-dash",
		pattern: regexp.MustCompile(`\b(\d{2})-(\d{2})-(\d{4})[ T](\d{2}):(\d{2}):(\d{2})`),
		parse: func(m []string) (time.Time, error) {
			return build(m[3], m[2], m[1], m[4], m[5], m[6], "", "")
		},
	},
	{
		Name:    "compact",
		pattern: regexp.MustCompile(`\b(\d{4})(\d{2})(\d{2})[ _T]?(\d{2})(\d{2})(\d{2})\b`),
		parse: func(m []string) (time.Time, error) {
			return build(m[1], m[2], m[3], m[4], m[5], m[6], "", "")
		},
	},
	{
		Name:    "ymd-slash",
		pattern: regexp.MustCompile(`\b(\d{4})/(\d{2})/(\d{2})[ T](\d{2}):(\d{2}):(\d{2})`),
		parse: func(m []string) (time.Time, error) {
			return build(m[1], m[2], m[3], m[4], m[5], m[6], "", "")
		},
	},
	{
		Name:     "iso-date",
		DateOnly: true,
		pattern:  regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`),
		parse: func(m []string) (time.Time, error) {
			return build(m[1], m[2], m[3], "0", "0", "0", "", "")
		},
	},
	{
		Name:     "dmy-date",
		DateOnly: true,
		pattern:  regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4})\b`),
		parse: func(m []string) (time.Time, error) {
			return build(m[3], m[2], m[1], "0", "0", "0", "", "")
		},
	},
}

// ParseTimestamp tries every grammar in priority order and returns the first
// match. When allowDateOnly is false, date-only layouts are skipped.
func ParseTimestamp(s string, allowDateOnly bool) (time.Time, Grammar, bool) {
	for _, g := range grammars {
		if g.DateOnly && !allowDateOnly {
			continue
		}
		if t, ok := g.Match(s); ok {
			return t, g, true
		}
	}
	return time.Time{}, Grammar{}, false
}

var filenameDate = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`)

// ParseFilenameDate looks for an embedded YYYYMMDD token in an identifier's
// base name. Digit runs are scanned left to right; the first valid date wins.
func ParseFilenameDate(identifier string) (time.Time, bool) {
	base := identifier
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	for _, run := range digitRuns(base) {
		for off := 0; off+8 <= len(run); off++ {
			m := filenameDate.FindStringSubmatch(run[off : off+8])
			if m == nil {
				continue
			}
			if t, err := build(m[1], m[2], m[3], "0", "0", "0", "", ""); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func digitRuns(s string) []string {
	var runs []string
	start := -1
	for i := 0; i <= len(s); i++ {
		digit := i < len(s) && s[i] >= '0' && s[i] <= '9'
		switch {
		case digit && start < 0:
			start = i
		case !digit && start >= 0:
			if i-start >= 8 {
				runs = append(runs, s[start:i])
			}
			start = -1
		}
	}
	return runs
}

// build assembles a wall-clock time in UTC and rejects values that time.Date
// would silently normalize (Feb 30, hour 25).
func build(year, month, day, hour, minute, second, frac, meridiem string) (time.Time, error) {
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	h, _ := strconv.Atoi(hour)
	mi, _ := strconv.Atoi(minute)
	s, _ := strconv.Atoi(second)

	if meridiem != "" {
		if h < 1 || h > 12 {
			return time.Time{}, fmt.Errorf("hour %d out of range for %s", h, meridiem)
		}
		pm := strings.EqualFold(meridiem, "pm")
		switch {
		case pm && h != 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
	}

	if mo < 1 || mo > 12 || d < 1 || h > 23 || mi > 59 || s > 59 {
		return time.Time{}, fmt.Errorf("invalid date/time %s-%s-%s %s:%s:%s", year, month, day, hour, minute, second)
	}

	ns := 0
	if frac != "" {
		ns, _ = strconv.Atoi((frac + "000000000")[:9])
	}

	t := time.Date(y, time.Month(mo), d, h, mi, s, ns, time.UTC)
	if t.Day() != d || int(t.Month()) != mo {
		return time.Time{}, fmt.Errorf("invalid calendar date %s-%s-%s", year, month, day)
	}
	return t, nil
}
