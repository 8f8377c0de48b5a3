package wiring

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/catalog"
	"github.com/sophialabs/tripmatch/internal/domain/extract"
	"github.com/sophialabs/tripmatch/internal/domain/matcher"
	"github.com/sophialabs/tripmatch/internal/domain/scoring"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/domain/trace"
	inboundhttp "github.com/sophialabs/tripmatch/internal/infrastructure/inbound/http"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/cache"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/filter"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/probe"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/sqlite"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/template"
	"github.com/sophialabs/tripmatch/internal/infrastructure/ports"
	"github.com/sophialabs/tripmatch/internal/infrastructure/services"
	"github.com/sophialabs/tripmatch/internal/infrastructure/usecases"
)

// Params holds the subset of configuration needed to construct infrastructure components.
type Params struct {
	DataDir     string
	StreamDirs  map[telemetry.StreamType][]string
	ExcludeRule string

	MaxScanLines  int
	GPSOffset     time.Duration
	GPSOffsetMode catalog.OffsetMode
	DateOnlyTypes []telemetry.StreamType
	HeaderAliases map[telemetry.StreamType][]string
	JSONPaths     []string

	Policy     scoring.Policy
	MatchMode  matcher.Mode
	NodeBudget int
	Workers    int

	ReadRate       float64
	ReadBurst      int
	RateLimiterTTL time.Duration
	CacheSize      int
	TraceSize      int

	OutputPath     string // "" = report is not written
	OutputFormat   services.Format
	ReportTemplate string // overrides the built-in html/text template
	DBPath         string // "" = no persistence

	Logger ports.Logger
}

// Container owns the construction and lifecycle of all infrastructure components.
type Container struct {
	logger           ports.Logger
	source           *filesystem.DirectorySource
	cache            *cache.Loader
	batchUC          *usecases.RunBatchUseCase
	publishUC        *usecases.PublishReportUseCase
	server           *inboundhttp.Server
	store            *sqlite.Store
	rateLimiterStore *ratelimit.TokenBucketStore
	traceBuf         *trace.RingBuffer
	runMu            sync.Mutex
	closeOnce        sync.Once
}

// New constructs all infrastructure components. Fallible operations (rule,
// probes, templates, database) run before goroutine-starting operations
// (rate limiter store) to avoid goroutine leaks on early failure.
func New(p Params) (*Container, error) {
	if _, err := os.Stat(p.DataDir); err != nil {
		return nil, fmt.Errorf("failed to access data directory: %w", err)
	}

	rule, err := filter.Compile(p.ExcludeRule)
	if err != nil {
		return nil, fmt.Errorf("failed to compile exclude rule: %w", err)
	}

	clk := clock.New()
	source, err := filesystem.NewDirectorySource(p.DataDir, filesystem.SourceOptions{
		StreamDirs: p.StreamDirs,
		Exclude:    rule,
		Clock:      clk,
		Logger:     p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	extractor, err := newExtractor(p)
	if err != nil {
		return nil, err
	}

	registry, err := template.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to create template registry: %w", err)
	}
	if p.ReportTemplate != "" {
		format := p.OutputFormat
		if format != services.FormatText {
			format = services.FormatHTML
		}
		if err := registry.RegisterFile(format, p.ReportTemplate); err != nil {
			return nil, err
		}
	}

	var store *sqlite.Store
	var sessionStore ports.SessionStore
	if p.DBPath != "" {
		store, err = sqlite.Open(p.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		sessionStore = store
	}

	// Start background goroutine only after all fallible ops succeed.
	rateLimiterStore := ratelimit.NewTokenBucketStore(p.RateLimiterTTL)

	extracting := &catalog.ExtractingLoader{Source: source, Extractor: extractor}
	throttled := services.NewThrottledLoader(extracting, rateLimiterStore, p.ReadRate, p.ReadBurst)
	cached := cache.NewLoader(throttled, p.CacheSize)

	builder := catalog.NewBuilder(cached, catalog.Options{
		OffsetMode:     p.GPSOffsetMode,
		FallbackOffset: p.GPSOffset,
	})
	m := matcher.New(p.Policy, matcher.WithMode(p.MatchMode), matcher.WithNodeBudget(p.NodeBudget))
	traceBuf := trace.NewRingBuffer(p.TraceSize)

	vehicleUC := usecases.NewMatchVehicleUseCase(source, builder, m, clk, p.Logger, traceBuf)
	batchUC := usecases.NewRunBatchUseCase(source, vehicleUC, p.Workers, clk, p.Logger)

	var writer ports.ReportWriter
	if p.OutputPath != "" {
		writer = filesystem.NewReportFile(p.OutputPath)
	}
	publishUC := usecases.NewPublishReportUseCase(writer, sessionStore, p.OutputFormat, registry, services.Settings{
		ToleranceMinutes: p.Policy.ToleranceMinutes,
		NormalizationK:   p.Policy.K,
		GPSOffsetMode:    string(p.GPSOffsetMode),
		GPSOffsetHours:   p.GPSOffset.Hours(),
		MatchMode:        string(m.Mode()),
	}, clk, p.Logger)

	c := &Container{
		logger:           p.Logger,
		source:           source,
		cache:            cached,
		batchUC:          batchUC,
		publishUC:        publishUC,
		store:            store,
		rateLimiterStore: rateLimiterStore,
		traceBuf:         traceBuf,
	}
	c.server = inboundhttp.NewServer(c, registry, traceBuf, p.Logger)
	return c, nil
}

func newExtractor(p Params) (*extract.Extractor, error) {
	opts := extract.DefaultOptions()
	if p.MaxScanLines > 0 {
		opts.MaxScanLines = p.MaxScanLines
	}
	opts.GPSOffset = p.GPSOffset
	// In auto mode the catalog corrects GPS per vehicle.
	opts.ApplyGPSOffset = p.GPSOffsetMode != catalog.OffsetAuto
	if p.DateOnlyTypes != nil {
		opts.DateOnlyTypes = make(map[telemetry.StreamType]bool, len(p.DateOnlyTypes))
		for _, st := range p.DateOnlyTypes {
			opts.DateOnlyTypes[st] = true
		}
	}
	for st, aliases := range p.HeaderAliases {
		opts.HeaderAliases[st] = append(opts.HeaderAliases[st], aliases...)
	}

	paths := p.JSONPaths
	if len(paths) == 0 {
		paths = probe.DefaultJSONPaths
	}
	jsonProbe, err := probe.NewJSONLines(paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile json paths: %w", err)
	}
	opts.Probes = []extract.Probe{probe.NewGPX(), jsonProbe}

	return extract.New(opts), nil
}

// Run matches every vehicle and publishes the report. Runs are serialized;
// a cancelled batch publishes nothing.
func (c *Container) Run(ctx context.Context) (*services.Report, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.run(ctx)
}

// TryRun is Run without waiting: it fails with services.ErrRunInProgress
// while another batch holds the run lock.
func (c *Container) TryRun(ctx context.Context) (*services.Report, error) {
	if !c.runMu.TryLock() {
		return nil, services.ErrRunInProgress
	}
	defer c.runMu.Unlock()
	return c.run(ctx)
}

func (c *Container) run(ctx context.Context) (*services.Report, error) {
	// The trace reflects the latest batch only.
	c.traceBuf.Reset()

	results, err := c.batchUC.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run batch: %w", err)
	}
	report, err := c.publishUC.Execute(ctx, results)
	if err != nil {
		return nil, err
	}
	hits, misses := c.cache.Stats()
	c.logger.Debug("extraction cache", "hits", hits, "misses", misses, "entries", c.cache.Len())
	return report, nil
}

// Close releases resources held by the container. It is idempotent.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		c.rateLimiterStore.Stop()
		if err := c.store.Close(); err != nil {
			c.logger.Warn("failed to close session store", "error", err)
		}
	})
}

// Logger returns the logger passed at construction time.
func (c *Container) Logger() ports.Logger {
	return c.logger
}

// Server returns the admin HTTP server.
func (c *Container) Server() *inboundhttp.Server {
	return c.server
}

// Source returns the telemetry directory source.
func (c *Container) Source() *filesystem.DirectorySource {
	return c.source
}

// Cache returns the extraction cache shared across runs.
func (c *Container) Cache() *cache.Loader {
	return c.cache
}

// Store returns the session store, or nil when persistence is disabled.
func (c *Container) Store() *sqlite.Store {
	return c.store
}

// TraceBuf returns the trace ring buffer.
func (c *Container) TraceBuf() *trace.RingBuffer {
	return c.traceBuf
}
