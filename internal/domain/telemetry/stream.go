package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStreamType indicates a stream type name outside the closed set.
var ErrUnknownStreamType = errors.New("unknown stream type")

// StreamType identifies one of the four telemetry streams recorded per vehicle.
type StreamType string

const (
	StreamCAN       StreamType = "CAN"
	StreamGPS       StreamType = "GPS"
	StreamStability StreamType = "STABILITY"
	StreamBeacon    StreamType = "BEACON"
)

// StreamTypes returns every required stream type, anchor first.
func StreamTypes() []StreamType {
	return []StreamType{StreamCAN, StreamGPS, StreamStability, StreamBeacon}
}

// CandidateTypes returns the non-anchor stream types in tie-break order.
func CandidateTypes() []StreamType {
	return []StreamType{StreamGPS, StreamStability, StreamBeacon}
}

// ParseStreamType resolves a case-insensitive stream type name.
func ParseStreamType(s string) (StreamType, error) {
	st := StreamType(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStreamType, s)
	}
	return st, nil
}

// Valid reports whether st belongs to the closed set.
func (st StreamType) Valid() bool {
	switch st {
	case StreamCAN, StreamGPS, StreamStability, StreamBeacon:
		return true
	}
	return false
}

func (st StreamType) String() string { return string(st) }

// Confidence tags where an anchor time was recovered from.
type Confidence string

const (
	ConfidenceHeader   Confidence = "HEADER"
	ConfidenceContent  Confidence = "CONTENT"
	ConfidenceFilename Confidence = "FILENAME"
	ConfidenceNone     Confidence = "NONE"
)
