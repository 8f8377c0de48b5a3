package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/domain/trace"
	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
	"github.com/sophialabs/tripmatch/internal/infrastructure/services"
)

const defaultTraceLimit = 50

// Rerunner runs a full batch and returns its published report. TryRun fails
// with services.ErrRunInProgress instead of waiting for a running batch.
type Rerunner interface {
	TryRun(ctx context.Context) (*services.Report, error)
}

// Server is the read-only admin API over the last correlation report.
type Server struct {
	router   *chi.Mux
	index    atomic.Pointer[services.ReportIndex]
	rerunner Rerunner
	renderer services.ReportRenderer
	traceBuf *trace.RingBuffer
	logger   ports.Logger
}

// NewServer creates a new Server. rerunner and renderer may be nil; the
// matching endpoints then answer 501.
func NewServer(rerunner Rerunner, renderer services.ReportRenderer, traceBuf *trace.RingBuffer, logger ports.Logger) *Server {
	s := &Server{
		rerunner: rerunner,
		renderer: renderer,
		traceBuf: traceBuf,
		logger:   logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/__admin", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/report", s.handleReport)
		r.Get("/report.html", s.handleReportHTML)
		r.Get("/vehicles", s.handleListVehicles)
		r.Get("/vehicles/{vehicleID}", s.handleGetVehicle)
		r.Get("/diagnostics", s.handleDiagnostics)
		r.Get("/trace", s.handleGetTrace)
		r.Post("/rerun", s.handleRerun)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no admin route for "+r.URL.Path)
	})

	return r
}

// Publish atomically swaps the report served by the API.
func (s *Server) Publish(r *services.Report) {
	if r == nil {
		return
	}
	s.index.Store(services.NewReportIndex(r))
	s.logger.Info("admin report updated", "run", r.RunID, "vehicles", len(r.Vehicles))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) currentIndex(w http.ResponseWriter) *services.ReportIndex {
	idx := s.index.Load()
	if idx == nil {
		writeError(w, http.StatusServiceUnavailable, "no_report", services.ErrNoReport.Error())
	}
	return idx
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if idx := s.index.Load(); idx != nil {
		resp["run_id"] = idx.Report().RunID
		resp["generated_at"] = idx.Report().GeneratedAt
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	idx := s.currentIndex(w)
	if idx == nil {
		return
	}
	format := services.FormatJSON
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := services.ParseFormat(f)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_format", err.Error())
			return
		}
		format = parsed
	}
	s.writeReport(w, format, idx.Report())
}

func (s *Server) handleReportHTML(w http.ResponseWriter, _ *http.Request) {
	idx := s.currentIndex(w)
	if idx == nil {
		return
	}
	s.writeReport(w, services.FormatHTML, idx.Report())
}

func (s *Server) writeReport(w http.ResponseWriter, format services.Format, report *services.Report) {
	if (format == services.FormatHTML || format == services.FormatText) && s.renderer == nil {
		writeError(w, http.StatusNotImplemented, "no_renderer", "report templates are not configured")
		return
	}
	// Encode fully before writing so a render error still yields a clean 500.
	var buf bytes.Buffer
	if err := services.EncodeReport(&buf, format, report, s.renderer); err != nil {
		s.logger.Error("report render failed", "format", string(format), "error", err)
		writeError(w, http.StatusInternalServerError, "render_failed", "report rendering failed, check server logs")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	idx := s.currentIndex(w)
	if idx == nil {
		return
	}
	page := services.Paginate(idx.Summaries(), extractQueryParams(r))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, page)
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	idx := s.currentIndex(w)
	if idx == nil {
		return
	}
	id := chi.URLParam(r, "vehicleID")
	v, err := idx.Vehicle(id)
	if err != nil {
		if errors.Is(err, telemetry.ErrVehicleNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "vehicle not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, v)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	idx := s.currentIndex(w)
	if idx == nil {
		return
	}
	diags := idx.Diagnostics(r.URL.Query().Get("reason"))
	if diags == nil {
		diags = []services.DiagnosticRecord{}
	}
	page := services.Paginate(diags, extractQueryParams(r))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, page)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	n := defaultTraceLimit
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil && parsed > 0 {
			n = parsed
		}
	}

	var entries []trace.Entry
	if s.traceBuf != nil {
		if vehicle := r.URL.Query().Get("vehicle"); vehicle != "" {
			entries = s.traceBuf.ForVehicle(vehicle)
			if len(entries) > n {
				entries = entries[len(entries)-n:]
			}
		} else {
			entries = s.traceBuf.Last(n)
		}
	}
	if entries == nil {
		entries = []trace.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, entries)
}

func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	if s.rerunner == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "rerun is not configured")
		return
	}
	report, err := s.rerunner.TryRun(r.Context())
	if errors.Is(err, services.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "busy", "a batch is already running")
		return
	}
	if err != nil {
		s.logger.Error("rerun failed", "error", err)
		writeError(w, http.StatusInternalServerError, "rerun_failed", "batch run failed, check server logs")
		return
	}

	s.Publish(report)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":   "ok",
		"run_id":   report.RunID,
		"vehicles": report.Totals.Vehicles,
		"sessions": report.Totals.Sessions,
	})
}

func extractQueryParams(r *http.Request) map[string]string {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": code, "message": message})
}

func writeJSON(w http.ResponseWriter, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
