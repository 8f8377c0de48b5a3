package probe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"

	"github.com/sophialabs/tripmatch/internal/domain/extract"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

// DefaultJSONPaths are tried in order against the first JSON object line.
var DefaultJSONPaths = []string{"$.timestamp", "$.time", "$.ts"}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

// JSONLines reads a timestamp field from JSON-lines exports.
type JSONLines struct {
	paths []string
	evals []gval.Evaluable
}

// NewJSONLines compiles the given JSONPath expressions. An empty list uses DefaultJSONPaths.
func NewJSONLines(paths ...string) (*JSONLines, error) {
	if len(paths) == 0 {
		paths = DefaultJSONPaths
	}
	p := &JSONLines{paths: paths}
	for _, path := range paths {
		ev, err := jsonpath.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to compile JSONPath %q: %w", path, err)
		}
		p.evals = append(p.evals, ev)
	}
	return p, nil
}

// Name implements extract.Probe.
func (p *JSONLines) Name() string {
	return "jsonpath"
}

// Paths returns the compiled expressions in evaluation order.
func (p *JSONLines) Paths() []string {
	return p.paths
}

// Probe implements extract.Probe.
func (p *JSONLines) Probe(_ telemetry.StreamType, head []byte) (time.Time, bool) {
	doc, ok := firstObject(head)
	if !ok {
		return time.Time{}, false
	}

	ctx := context.Background()
	for _, ev := range p.evals {
		v, err := ev(ctx, doc)
		if err != nil {
			continue
		}
		if t, ok := toTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstObject(head []byte) (map[string]interface{}, bool) {
	sc := bufio.NewScanner(bytes.NewReader(head))
	sc.Buffer(make([]byte, 0, 64*1024), len(head)+1)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		line = bytes.TrimPrefix(line, []byte("\xef\xbb\xbf"))
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(line, &doc); err != nil {
			return nil, false
		}
		return doc, true
	}
	return nil, false
}

func toTime(v interface{}) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if t, _, ok := extract.ParseTimestamp(s, false); ok {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
	case float64:
		if x <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return time.Time{}, false
		}
		if x >= epochMillisThreshold {
			return time.UnixMilli(int64(x)).UTC(), true
		}
		sec, frac := math.Modf(x)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	}
	return time.Time{}, false
}
