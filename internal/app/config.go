package app

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/sophialabs/tripmatch/internal/domain/catalog"
	"github.com/sophialabs/tripmatch/internal/domain/extract"
	"github.com/sophialabs/tripmatch/internal/domain/matcher"
	"github.com/sophialabs/tripmatch/internal/domain/scoring"
	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/cache"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/filter"
	"github.com/sophialabs/tripmatch/internal/infrastructure/services"
)

// ErrInvalidConfig is wrapped by every configuration validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configurable parameters for the application.
type Config struct {
	DataDir        string
	OutputPath     string
	OutputFormat   string // "" = inferred from OutputPath
	ReportTemplate string
	LogLevel       string

	ToleranceMinutes float64
	NormalizationK   float64
	GPSOffsetHours   float64
	GPSOffsetMode    string
	MatchMode        string
	NodeBudget       int

	Workers       int
	MaxScanLines  int
	DateOnlyTypes []string
	HeaderAliases map[string][]string
	JSONPaths     []string

	ExcludeRule string
	StreamDirs  map[string][]string
	ReadRate    float64
	ReadBurst   int
	CacheSize   int
	DBPath      string

	Serve     bool
	Port      int
	TraceSize int
	Watch     bool

	RateLimiterTTL  time.Duration
	WatcherDebounce time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:    "./data",
		OutputPath: "sessions.yaml",
		LogLevel:   "info",

		ToleranceMinutes: scoring.DefaultToleranceMinutes,
		NormalizationK:   scoring.DefaultNormalization,
		GPSOffsetHours:   2,
		GPSOffsetMode:    string(catalog.OffsetFixed),
		MatchMode:        string(matcher.ModeGreedy),
		NodeBudget:       matcher.DefaultNodeBudget,

		Workers:       runtime.NumCPU(),
		MaxScanLines:  extract.DefaultMaxScanLines,
		DateOnlyTypes: []string{string(telemetry.StreamBeacon)},

		ExcludeRule: filter.DefaultRule,
		StreamDirs: map[string][]string{
			string(telemetry.StreamStability): {"ESTABILIDAD"},
			string(telemetry.StreamBeacon):    {"ROTATIVO"},
		},
		CacheSize: cache.DefaultSize,

		Port:      8080,
		TraceSize: 500,

		RateLimiterTTL:  10 * time.Minute,
		WatcherDebounce: 2 * time.Second,

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
// Unknown log levels are tolerated and fall back to debug.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) validate() error {
	switch {
	case strings.TrimSpace(c.DataDir) == "":
		return errors.New("data directory is required")
	case !positive(c.ToleranceMinutes):
		return fmt.Errorf("tolerance must be a positive number of minutes, got %v", c.ToleranceMinutes)
	case !positive(c.NormalizationK):
		return fmt.Errorf("normalization K must be positive, got %v", c.NormalizationK)
	case math.IsNaN(c.GPSOffsetHours) || math.IsInf(c.GPSOffsetHours, 0) || math.Abs(c.GPSOffsetHours) > 24:
		return fmt.Errorf("GPS offset must be within ±24 hours, got %v", c.GPSOffsetHours)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.MaxScanLines < 1:
		return fmt.Errorf("max scan lines must be at least 1, got %d", c.MaxScanLines)
	case c.NodeBudget < 0:
		return fmt.Errorf("node budget must not be negative, got %d", c.NodeBudget)
	case c.ReadRate < 0 || math.IsNaN(c.ReadRate) || c.ReadBurst < 0:
		return fmt.Errorf("read rate and burst must not be negative")
	case c.CacheSize < 0:
		return fmt.Errorf("cache size must not be negative, got %d", c.CacheSize)
	case c.TraceSize < 0:
		return fmt.Errorf("trace size must not be negative, got %d", c.TraceSize)
	case c.Serve && (c.Port < 1 || c.Port > 65535):
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if _, err := offsetMode(c.GPSOffsetMode); err != nil {
		return err
	}
	if _, err := matcher.ParseMode(c.MatchMode); err != nil {
		return err
	}
	if _, err := c.format(); err != nil {
		return err
	}
	if _, err := parseTypes(c.DateOnlyTypes); err != nil {
		return fmt.Errorf("date-only types: %w", err)
	}
	if _, err := parseTypeMap(c.StreamDirs); err != nil {
		return fmt.Errorf("stream dirs: %w", err)
	}
	if _, err := parseTypeMap(c.HeaderAliases); err != nil {
		return fmt.Errorf("header aliases: %w", err)
	}
	return nil
}

// ApplyFile overlays the non-nil settings of f onto c.
func (c *Config) ApplyFile(f *filesystem.ConfigFile) error {
	if f == nil {
		return nil
	}
	setString(&c.DataDir, f.DataDir)
	setString(&c.OutputPath, f.OutputPath)
	setString(&c.OutputFormat, f.OutputFormat)
	setString(&c.LogLevel, f.LogLevel)

	if m := f.Matching; m != nil {
		setFloat(&c.ToleranceMinutes, m.ToleranceMinutes)
		setFloat(&c.NormalizationK, m.NormalizationK)
		setString(&c.MatchMode, m.Mode)
		setInt(&c.NodeBudget, m.NodeBudget)
	}
	if e := f.Extract; e != nil {
		setFloat(&c.GPSOffsetHours, e.GPSOffsetHours)
		setString(&c.GPSOffsetMode, e.GPSOffsetMode)
		setInt(&c.MaxScanLines, e.MaxScanLines)
		if e.DateOnlyTypes != nil {
			c.DateOnlyTypes = e.DateOnlyTypes
		}
		if e.HeaderAliases != nil {
			c.HeaderAliases = e.HeaderAliases
		}
		if e.JSONPaths != nil {
			c.JSONPaths = e.JSONPaths
		}
	}
	if s := f.Sources; s != nil {
		if s.StreamDirs != nil {
			c.StreamDirs = s.StreamDirs
		}
		setString(&c.ExcludeRule, s.ExcludeRule)
		setFloat(&c.ReadRate, s.ReadRate)
		setInt(&c.ReadBurst, s.ReadBurst)
		setInt(&c.CacheSize, s.CacheSize)
	}
	if r := f.Runtime; r != nil {
		setInt(&c.Workers, r.Workers)
		setString(&c.DBPath, r.DBPath)
	}
	if a := f.Admin; a != nil {
		setBool(&c.Serve, a.Serve)
		setInt(&c.Port, a.Port)
		setInt(&c.TraceSize, a.TraceSize)
		setBool(&c.Watch, a.Watch)
		if a.WatcherDebounce != nil {
			d, err := time.ParseDuration(*a.WatcherDebounce)
			if err != nil {
				return fmt.Errorf("%w: watcher debounce: %w", ErrInvalidConfig, err)
			}
			c.WatcherDebounce = d
		}
	}
	return nil
}

// LoadConfigFile reads the YAML file at path and overlays it onto base.
func LoadConfigFile(path string, base Config) (Config, error) {
	f, err := filesystem.LoadConfigFile(path)
	if err != nil {
		return base, err
	}
	if err := base.ApplyFile(f); err != nil {
		return base, err
	}
	return base, nil
}

func (c Config) format() (services.Format, error) {
	return services.InferFormat(c.OutputFormat, c.OutputPath)
}

func offsetMode(s string) (catalog.OffsetMode, error) {
	switch mode := catalog.OffsetMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "", catalog.OffsetFixed:
		return catalog.OffsetFixed, nil
	case catalog.OffsetAuto:
		return catalog.OffsetAuto, nil
	default:
		return "", fmt.Errorf("unknown GPS offset mode %q (supported: fixed, auto)", s)
	}
}

func parseTypes(names []string) ([]telemetry.StreamType, error) {
	out := make([]telemetry.StreamType, 0, len(names))
	for _, n := range names {
		st, err := telemetry.ParseStreamType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func parseTypeMap(m map[string][]string) (map[telemetry.StreamType][]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[telemetry.StreamType][]string, len(m))
	for name, values := range m {
		st, err := telemetry.ParseStreamType(name)
		if err != nil {
			return nil, err
		}
		out[st] = append(out[st], values...)
	}
	return out, nil
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
