package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/domain/trace"
	"github.com/sophialabs/tripmatch/internal/testutil"
)

func TestMatchVehicle_CompleteVehicle(t *testing.T) {
	src := testutil.NewMemorySource()
	addCompleteVehicle(src, "V1")
	buf := trace.NewRingBuffer(10)

	res, err := newMatchVehicle(src, buf).Execute(context.Background(), "V1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d (diagnostics %+v)", len(res.Sessions), res.Diagnostics)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("expected no diagnostics, got %+v", res.Diagnostics)
	}

	s := res.Sessions[0]
	want := map[telemetry.StreamType]string{
		telemetry.StreamCAN:       "V1/CAN/can.csv",
		telemetry.StreamGPS:       "V1/GPS/gps.csv",
		telemetry.StreamStability: "V1/STABILITY/stab.csv",
		telemetry.StreamBeacon:    "V1/BEACON/beacon.csv",
	}
	for st, id := range want {
		if s.Files[st].Identifier != id {
			t.Errorf("%s: expected %s, got %s", st, id, s.Files[st].Identifier)
		}
	}
	if d := s.TimeDeltas[telemetry.StreamGPS]; d != 5*time.Minute {
		t.Errorf("expected GPS delta 5m after +2h correction, got %v", d)
	}
	if res.Records[telemetry.StreamCAN] != 1 {
		t.Errorf("expected 1 CAN record, got %d", res.Records[telemetry.StreamCAN])
	}

	entries := buf.ForVehicle("V1")
	if len(entries) != 1 {
		t.Fatalf("expected 1 trace entry, got %d", len(entries))
	}
	if !entries[0].Timestamp.Equal(testNow) {
		t.Errorf("expected trace timestamp %v, got %v", testNow, entries[0].Timestamp)
	}
	if !entries[0].Matched {
		t.Error("expected matched trace entry")
	}
}

func TestMatchVehicle_IncompleteVehicle(t *testing.T) {
	src := testutil.NewMemorySource()
	src.Add("V2", telemetry.StreamCAN, "can.csv", "CAN: 2025-03-10 08:00:00\n")
	src.Add("V2", telemetry.StreamGPS, "gps.csv", "2025-03-10 06:00:00\n")
	buf := trace.NewRingBuffer(10)

	res, err := newMatchVehicle(src, buf).Execute(context.Background(), "V2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Sessions) != 0 {
		t.Errorf("expected no sessions, got %d", len(res.Sessions))
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Reason != telemetry.ReasonIncompleteTypes {
		t.Fatalf("expected one INCOMPLETE_TYPES diagnostic, got %+v", res.Diagnostics)
	}
	if want := "missing stream types: STABILITY, BEACON"; res.Diagnostics[0].Detail != want {
		t.Errorf("expected detail %q, got %q", want, res.Diagnostics[0].Detail)
	}
	if buf.Count() != 0 {
		t.Errorf("expected no trace entries, got %d", buf.Count())
	}
}

func TestMatchVehicle_UnmatchedAnchor(t *testing.T) {
	src := testutil.NewMemorySource()
	addCompleteVehicle(src, "V1")
	src.Add("V1", telemetry.StreamCAN, "late.csv", "CAN: 2025-03-10 15:00:00\n")

	res, err := newMatchVehicle(src, nil).Execute(context.Background(), "V1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(res.Sessions))
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %+v", res.Diagnostics)
	}
	d := res.Diagnostics[0]
	if d.Reason != telemetry.ReasonUnmatchedAnchor || d.Identifier != "V1/CAN/late.csv" {
		t.Errorf("unexpected diagnostic %+v", d)
	}
}

func TestMatchVehicle_UnreadableFile(t *testing.T) {
	src := testutil.NewMemorySource()
	addCompleteVehicle(src, "V1")
	f := src.Add("V1", telemetry.StreamGPS, "broken.csv", "2025-03-10 06:00:00\n")
	src.OpenErr[f.Identifier] = errors.New("permission denied")

	res, err := newMatchVehicle(src, nil).Execute(context.Background(), "V1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(res.Sessions))
	}
	found := false
	for _, d := range res.Diagnostics {
		if d.Reason == telemetry.ReasonUnextractableFile && d.Identifier == f.Identifier {
			found = true
		}
	}
	if !found {
		t.Errorf("expected UNEXTRACTABLE_FILE diagnostic for %s, got %+v", f.Identifier, res.Diagnostics)
	}
}

func TestMatchVehicle_DiagnosticLogLevels(t *testing.T) {
	src := testutil.NewMemorySource()
	addCompleteVehicle(src, "V1")
	f := src.Add("V1", telemetry.StreamGPS, "broken.csv", "2025-03-10 06:00:00\n")
	src.OpenErr[f.Identifier] = errors.New("permission denied")
	src.Add("V1", telemetry.StreamCAN, "late.csv", "CAN: 2025-03-10 15:00:00\n")

	logger := &testutil.RecordingLogger{}
	if _, err := newMatchVehicleWith(src, extractingLoader(src), logger, nil).Execute(context.Background(), "V1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	levels := map[telemetry.Reason]string{}
	for _, e := range logger.Entries {
		if e.Msg != "diagnostic" {
			continue
		}
		for i := 0; i+1 < len(e.Args); i += 2 {
			if e.Args[i] == "reason" {
				levels[e.Args[i+1].(telemetry.Reason)] = e.Level
			}
		}
	}
	want := map[telemetry.Reason]string{
		telemetry.ReasonUnextractableFile: "warn",
		telemetry.ReasonUnmatchedAnchor:   "info",
	}
	for reason, level := range want {
		if levels[reason] != level {
			t.Errorf("%s logged at %q, want %q", reason, levels[reason], level)
		}
	}
}

func TestMatchVehicle_IncompleteVehicleLogsDiagnostics(t *testing.T) {
	src := testutil.NewMemorySource()
	src.Add("V1", telemetry.StreamCAN, "can.csv", "CAN: 2025-03-10 08:00:00\n")

	logger := &testutil.RecordingLogger{}
	if _, err := newMatchVehicleWith(src, extractingLoader(src), logger, nil).Execute(context.Background(), "V1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	levels := logger.Levels("diagnostic")
	if len(levels) == 0 {
		t.Fatal("expected INCOMPLETE_TYPES diagnostics to be logged")
	}
	for _, l := range levels {
		if l != "info" {
			t.Errorf("incomplete vehicle diagnostic logged at %q, want info", l)
		}
	}
}

func TestMatchVehicle_UnknownVehicle(t *testing.T) {
	src := testutil.NewMemorySource()

	_, err := newMatchVehicle(src, nil).Execute(context.Background(), "nope")
	if !errors.Is(err, telemetry.ErrVehicleNotFound) {
		t.Fatalf("expected ErrVehicleNotFound, got %v", err)
	}
}
