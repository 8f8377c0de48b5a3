package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/matcher"
	"github.com/sophialabs/tripmatch/internal/domain/scoring"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/tripmatch/internal/infrastructure/wiring"
)

// App is the thin lifecycle manager that delegates dependency construction to wiring.Container.
type App struct {
	cfg        Config
	container  *wiring.Container
	httpServer *http.Server
}

// New validates cfg, creates the logger and wires infrastructure components.
// Logs go to stdout.
func New(cfg Config) (*App, error) {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput is New with logs written to w.
func NewWithOutput(cfg Config, w io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.NewText(w, cfg.LogLevel)

	params, err := cfg.params()
	if err != nil {
		return nil, err
	}
	params.Logger = logger

	container, err := wiring.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to wire infrastructure: %w", err)
	}

	a := &App{cfg: cfg, container: container}
	if cfg.Serve {
		a.httpServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      container.Server(),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		}
	}
	return a, nil
}

func (c Config) params() (wiring.Params, error) {
	mode, err := matcher.ParseMode(c.MatchMode)
	if err != nil {
		return wiring.Params{}, err
	}
	offsetMode, err := offsetMode(c.GPSOffsetMode)
	if err != nil {
		return wiring.Params{}, err
	}
	format, err := c.format()
	if err != nil {
		return wiring.Params{}, err
	}
	dateOnly, err := parseTypes(c.DateOnlyTypes)
	if err != nil {
		return wiring.Params{}, err
	}
	streamDirs, err := parseTypeMap(c.StreamDirs)
	if err != nil {
		return wiring.Params{}, err
	}
	aliases, err := parseTypeMap(c.HeaderAliases)
	if err != nil {
		return wiring.Params{}, err
	}

	return wiring.Params{
		DataDir:        c.DataDir,
		StreamDirs:     streamDirs,
		ExcludeRule:    c.ExcludeRule,
		MaxScanLines:   c.MaxScanLines,
		GPSOffset:      time.Duration(c.GPSOffsetHours * float64(time.Hour)),
		GPSOffsetMode:  offsetMode,
		DateOnlyTypes:  dateOnly,
		HeaderAliases:  aliases,
		JSONPaths:      c.JSONPaths,
		Policy:         scoring.Policy{ToleranceMinutes: c.ToleranceMinutes, K: c.NormalizationK},
		MatchMode:      mode,
		NodeBudget:     c.NodeBudget,
		Workers:        c.Workers,
		ReadRate:       c.ReadRate,
		ReadBurst:      c.ReadBurst,
		RateLimiterTTL: c.RateLimiterTTL,
		CacheSize:      c.CacheSize,
		TraceSize:      c.TraceSize,
		OutputPath:     c.OutputPath,
		OutputFormat:   format,
		ReportTemplate: c.ReportTemplate,
		DBPath:         c.DBPath,
	}, nil
}

// Run executes one batch and, when serving or watching, keeps running until
// SIGINT/SIGTERM or context cancellation. The first batch failing is fatal;
// later failures are logged.
func (a *App) Run(ctx context.Context) error {
	defer a.container.Close()

	logger := a.container.Logger()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := a.container.Run(ctx)
	if err != nil {
		return err
	}
	a.container.Server().Publish(report)
	logger.Info("batch complete",
		"run", report.RunID,
		"vehicles", report.Totals.Vehicles,
		"sessions", report.Totals.Sessions,
		"diagnostics", report.Totals.Diagnostics,
		"output", a.cfg.OutputPath,
	)

	if !a.cfg.Serve && !a.cfg.Watch {
		return nil
	}

	if a.cfg.Watch {
		watcher := a.setupWatcher(ctx)
		if watcher != nil {
			defer watcher.Stop()
		}
	}

	if !a.cfg.Serve {
		<-ctx.Done()
		logger.Info("watch stopped")
		return nil
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting admin server", "addr", a.httpServer.Addr, "data", a.cfg.DataDir)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// Container returns the wired infrastructure.
func (a *App) Container() *wiring.Container {
	return a.container
}

func (a *App) setupWatcher(ctx context.Context) *filesystem.Watcher {
	logger := a.container.Logger()
	server := a.container.Server()

	watcher, err := filesystem.NewWatcher(a.cfg.DataDir, a.cfg.WatcherDebounce, logger, func() {
		report, err := a.container.Run(ctx)
		if err != nil {
			logger.Error("re-run after change failed", "error", err)
			return
		}
		server.Publish(report)
		logger.Info("re-run after change complete", "run", report.RunID, "sessions", report.Totals.Sessions)
	}, a.ownOutputs()...)
	if err != nil {
		logger.Warn("file watcher not available", "error", err)
		return nil
	}

	watcher.Start()
	logger.Info("file watcher started", "data", a.cfg.DataDir)
	return watcher
}

// ownOutputs lists files the run itself writes, so writing them never
// triggers another run when they live under the data directory.
func (a *App) ownOutputs() []string {
	var out []string
	if a.cfg.OutputPath != "" {
		out = append(out, a.cfg.OutputPath)
	}
	if db := a.cfg.DBPath; db != "" {
		out = append(out, db, db+"-journal", db+"-wal", db+"-shm")
	}
	return out
}
