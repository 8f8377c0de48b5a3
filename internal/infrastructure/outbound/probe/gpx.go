package probe

import (
	"bytes"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

// GPX reads the first track point time from GPX or similar XML exports.
// Only the bounded head is parsed, so truncated documents are expected;
// the stream parser yields points before it reaches the broken tail.
type GPX struct{}

// NewGPX creates a GPX probe.
func NewGPX() *GPX {
	return &GPX{}
}

// Name implements extract.Probe.
func (p *GPX) Name() string {
	return "gpx"
}

// Probe implements extract.Probe.
func (p *GPX) Probe(_ telemetry.StreamType, head []byte) (time.Time, bool) {
	if !looksLikeXML(head) {
		return time.Time{}, false
	}

	if t, ok := firstTrackPoint(head); ok {
		return t, true
	}
	return firstTimeElement(head)
}

func looksLikeXML(head []byte) bool {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")))
	return len(trimmed) > 0 && trimmed[0] == '<'
}

func firstTrackPoint(head []byte) (time.Time, bool) {
	sp, err := xmlquery.CreateStreamParser(bytes.NewReader(head), "//trkpt")
	if err != nil {
		return time.Time{}, false
	}
	for {
		n, err := sp.Read()
		if err != nil {
			return time.Time{}, false
		}
		if el := n.SelectElement("time"); el != nil {
			if t, ok := parseXMLTime(el.InnerText()); ok {
				return t, true
			}
		}
	}
}

func firstTimeElement(head []byte) (time.Time, bool) {
	doc, err := xmlquery.Parse(bytes.NewReader(head))
	if err != nil {
		return time.Time{}, false
	}
	n := xmlquery.FindOne(doc, "//time")
	if n == nil {
		return time.Time{}, false
	}
	return parseXMLTime(n.InnerText())
}

func parseXMLTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
