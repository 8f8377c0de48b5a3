package tripmatch_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sophialabs/tripmatch/internal/app"
	"github.com/sophialabs/tripmatch/internal/infrastructure/services"
)

const fleetDir = "./testdata/fleet"

type e2eEnv struct {
	server *httptest.Server
	report *services.Report
	output string
}

func setupE2E(t *testing.T, modify func(cfg *app.Config)) *e2eEnv {
	t.Helper()

	cfg := app.DefaultConfig()
	cfg.DataDir = fleetDir
	cfg.OutputPath = filepath.Join(t.TempDir(), "sessions.json")
	cfg.Workers = 2
	cfg.LogLevel = "error"
	if modify != nil {
		modify(&cfg)
	}

	a, err := app.NewWithOutput(cfg, io.Discard)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	c := a.Container()
	t.Cleanup(c.Close)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	c.Server().Publish(report)

	srv := httptest.NewServer(c.Server())
	t.Cleanup(srv.Close)

	return &e2eEnv{server: srv, report: report, output: cfg.OutputPath}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("failed to decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestE2E_ReferenceVehicle(t *testing.T) {
	env := setupE2E(t, nil)

	var v services.VehicleReport
	if code := getJSON(t, env.server.URL+"/__admin/vehicles/V1", &v); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(v.Sessions) != 1 {
		t.Fatalf("expected exactly one session, got %d (diagnostics %+v)", len(v.Sessions), v.Diagnostics)
	}
	s := v.Sessions[0]

	wantFiles := map[string]string{
		"CAN":       "V1/CAN/CAN_20250708_0900.csv",
		"GPS":       "V1/GPS/GPS_20250708.gpx",
		"STABILITY": "V1/ESTABILIDAD/est_20250708_0901.csv",
		"BEACON":    "V1/ROTATIVO/rotativo_20250708.csv",
	}
	for st, id := range wantFiles {
		if s.Files[st] != id {
			t.Errorf("%s: expected %s, got %s", st, id, s.Files[st])
		}
	}

	wantDeltas := map[string]float64{"GPS": 0, "STABILITY": 1, "BEACON": 0}
	for st, d := range wantDeltas {
		if s.DeltasMinutes[st] != d {
			t.Errorf("delta[%s]: expected %v, got %v", st, d, s.DeltasMinutes[st])
		}
	}
	if math.Abs(s.Score-1/1.1) > 1e-9 {
		t.Errorf("expected score ~0.909, got %v", s.Score)
	}
	if s.Start != "2025-07-08T09:00:00Z" || s.Date != "2025-07-08" {
		t.Errorf("unexpected start/date %s %s", s.Start, s.Date)
	}
	if len(v.Diagnostics) != 0 {
		t.Errorf("translated derivative should be excluded silently, got %+v", v.Diagnostics)
	}
}

func TestE2E_IncompleteVehicle(t *testing.T) {
	env := setupE2E(t, nil)

	var v services.VehicleReport
	getJSON(t, env.server.URL+"/__admin/vehicles/V2", &v)
	if len(v.Sessions) != 0 {
		t.Errorf("expected no sessions, got %d", len(v.Sessions))
	}
	if len(v.Diagnostics) != 1 || v.Diagnostics[0].Reason != "INCOMPLETE_TYPES" {
		t.Fatalf("expected one INCOMPLETE_TYPES diagnostic, got %+v", v.Diagnostics)
	}
	if !strings.Contains(v.Diagnostics[0].Detail, "STABILITY, BEACON") {
		t.Errorf("unexpected detail %q", v.Diagnostics[0].Detail)
	}
}

func TestE2E_SeveralTripsPerDay(t *testing.T) {
	env := setupE2E(t, nil)

	var v services.VehicleReport
	getJSON(t, env.server.URL+"/__admin/vehicles/V3", &v)
	if len(v.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d (diagnostics %+v)", len(v.Sessions), v.Diagnostics)
	}

	first, second := v.Sessions[0], v.Sessions[1]
	if first.Files["CAN"] != "V3/CAN/can_0800.csv" || second.Files["CAN"] != "V3/CAN/can_1400.csv" {
		t.Errorf("unexpected anchors %s, %s", first.Files["CAN"], second.Files["CAN"])
	}
	if first.Files["BEACON"] != "V3/BEACON/rot_a.csv" || second.Files["BEACON"] != "V3/BEACON/rot_b.csv" {
		t.Errorf("date-only beacons should be shared out in identifier order, got %s, %s",
			first.Files["BEACON"], second.Files["BEACON"])
	}
	if first.Files["GPS"] != "V3/GPS/gps_a.jsonl" || first.DeltasMinutes["GPS"] != 10 {
		t.Errorf("unexpected GPS member %s (delta %v)", first.Files["GPS"], first.DeltasMinutes["GPS"])
	}

	reasons := map[string]string{}
	for _, d := range v.Diagnostics {
		reasons[d.Identifier] = d.Reason
	}
	if reasons["V3/CAN/can_2000.csv"] != "UNMATCHED_ANCHOR" {
		t.Errorf("expected the 20:00 anchor to be unmatched, got %+v", v.Diagnostics)
	}
	if reasons["V3/GPS/notes.txt"] != "UNEXTRACTABLE_FILE" {
		t.Errorf("expected notes.txt to be unextractable, got %+v", v.Diagnostics)
	}
}

func TestE2E_Exclusivity(t *testing.T) {
	env := setupE2E(t, nil)

	seen := map[string]string{}
	for _, v := range env.report.Vehicles {
		for _, s := range v.Sessions {
			for _, id := range s.Files {
				if prev, ok := seen[id]; ok {
					t.Errorf("%s used by sessions %s and %s", id, prev, s.Key)
				}
				seen[id] = s.Key
			}
		}
	}
}

func TestE2E_OptimalModeAgrees(t *testing.T) {
	greedy := setupE2E(t, nil)
	optimal := setupE2E(t, func(cfg *app.Config) { cfg.MatchMode = "optimal" })

	if greedy.report.Totals.Sessions != optimal.report.Totals.Sessions {
		t.Fatalf("session count differs: greedy %d, optimal %d",
			greedy.report.Totals.Sessions, optimal.report.Totals.Sessions)
	}
	for i, v := range greedy.report.Vehicles {
		o := optimal.report.Vehicles[i]
		for j := range v.Sessions {
			if v.Sessions[j].Key != o.Sessions[j].Key {
				t.Errorf("%s session %d: greedy %s, optimal %s", v.VehicleID, j, v.Sessions[j].Key, o.Sessions[j].Key)
			}
		}
	}
	if optimal.report.Settings.MatchMode != "optimal" {
		t.Errorf("expected settings to record optimal mode, got %s", optimal.report.Settings.MatchMode)
	}
}

func TestE2E_WrittenReportMatchesAPI(t *testing.T) {
	env := setupE2E(t, nil)

	data, err := os.ReadFile(env.output)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var written services.Report
	if err := json.Unmarshal(data, &written); err != nil {
		t.Fatalf("written report is not JSON: %v", err)
	}

	var served services.Report
	getJSON(t, env.server.URL+"/__admin/report", &served)

	if written.RunID != served.RunID {
		t.Errorf("run ids differ: %s vs %s", written.RunID, served.RunID)
	}
	if written.Totals.Sessions != 3 || written.Totals.Vehicles != 3 || written.Totals.CompleteVehicles != 2 {
		t.Errorf("unexpected totals %+v", written.Totals)
	}
}

func TestE2E_DiagnosticsAndTrace(t *testing.T) {
	env := setupE2E(t, nil)

	var page services.Page[services.DiagnosticRecord]
	getJSON(t, env.server.URL+"/__admin/diagnostics?reason=unmatched_anchor", &page)
	if page.TotalItems != 1 || page.Data[0].VehicleID != "V3" {
		t.Errorf("expected one unmatched anchor on V3, got %+v", page)
	}

	var entries []map[string]any
	getJSON(t, env.server.URL+"/__admin/trace?vehicle=V3", &entries)
	if len(entries) != 3 {
		t.Fatalf("expected 3 V3 anchor evaluations, got %d", len(entries))
	}
	if entries[2]["matched"] != false {
		t.Errorf("expected last V3 anchor unmatched, got %v", entries[2])
	}
}

func TestE2E_HTMLReport(t *testing.T) {
	env := setupE2E(t, nil)

	resp, err := http.Get(env.server.URL + "/__admin/report.html")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "V1/GPS/GPS_20250708.gpx") {
		t.Error("expected html report to list the V1 GPS member")
	}
}
