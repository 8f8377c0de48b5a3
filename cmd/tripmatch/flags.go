package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/sophialabs/tripmatch/internal/app"
)

// flagBinding copies one flag's value from the parsed config onto another.
type flagBinding func(dst *app.Config, src *app.Config)

func newFlagSet(cfg *app.Config, configPath *string) (*pflag.FlagSet, map[string]flagBinding) {
	fs := pflag.NewFlagSet("tripmatch", pflag.ContinueOnError)
	fs.SortFlags = false
	b := make(map[string]flagBinding)

	fs.StringVarP(configPath, "config", "c", "", "YAML configuration file (flags override it)")

	fs.StringVarP(&cfg.DataDir, "data", "d", cfg.DataDir, "root directory holding <vehicle>/<stream>/ files")
	b["data"] = func(d, s *app.Config) { d.DataDir = s.DataDir }
	fs.StringVarP(&cfg.OutputPath, "output", "o", cfg.OutputPath, "report output path")
	b["output"] = func(d, s *app.Config) { d.OutputPath = s.OutputPath }
	fs.StringVarP(&cfg.OutputFormat, "format", "f", cfg.OutputFormat, "report format (yaml, json, html, text); inferred from --output when empty")
	b["format"] = func(d, s *app.Config) { d.OutputFormat = s.OutputFormat }
	fs.StringVar(&cfg.ReportTemplate, "template", cfg.ReportTemplate, "custom pongo2 template for html/text reports")
	b["template"] = func(d, s *app.Config) { d.ReportTemplate = s.ReportTemplate }
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	b["log-level"] = func(d, s *app.Config) { d.LogLevel = s.LogLevel }

	fs.Float64Var(&cfg.ToleranceMinutes, "tolerance", cfg.ToleranceMinutes, "max offset in minutes between a member and its CAN anchor")
	b["tolerance"] = func(d, s *app.Config) { d.ToleranceMinutes = s.ToleranceMinutes }
	fs.Float64Var(&cfg.NormalizationK, "norm-k", cfg.NormalizationK, "score normalization constant in minutes")
	b["norm-k"] = func(d, s *app.Config) { d.NormalizationK = s.NormalizationK }
	fs.Float64Var(&cfg.GPSOffsetHours, "gps-offset", cfg.GPSOffsetHours, "hours added to GPS clock readings")
	b["gps-offset"] = func(d, s *app.Config) { d.GPSOffsetHours = s.GPSOffsetHours }
	fs.StringVar(&cfg.GPSOffsetMode, "gps-offset-mode", cfg.GPSOffsetMode, "GPS offset mode (fixed, auto)")
	b["gps-offset-mode"] = func(d, s *app.Config) { d.GPSOffsetMode = s.GPSOffsetMode }
	fs.StringVar(&cfg.MatchMode, "mode", cfg.MatchMode, "assignment mode (greedy, optimal)")
	b["mode"] = func(d, s *app.Config) { d.MatchMode = s.MatchMode }
	fs.IntVar(&cfg.NodeBudget, "node-budget", cfg.NodeBudget, "search nodes per vehicle in optimal mode")
	b["node-budget"] = func(d, s *app.Config) { d.NodeBudget = s.NodeBudget }

	fs.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "vehicles processed in parallel")
	b["workers"] = func(d, s *app.Config) { d.Workers = s.Workers }
	fs.IntVar(&cfg.MaxScanLines, "scan-lines", cfg.MaxScanLines, "leading lines inspected per file")
	b["scan-lines"] = func(d, s *app.Config) { d.MaxScanLines = s.MaxScanLines }
	fs.StringSliceVar(&cfg.DateOnlyTypes, "date-only", cfg.DateOnlyTypes, "stream types recorded with date precision only")
	b["date-only"] = func(d, s *app.Config) { d.DateOnlyTypes = s.DateOnlyTypes }
	fs.StringSliceVar(&cfg.JSONPaths, "json-path", cfg.JSONPaths, "JSONPath expressions tried on JSON-lines files")
	b["json-path"] = func(d, s *app.Config) { d.JSONPaths = s.JSONPaths }
	fs.StringVar(&cfg.ExcludeRule, "exclude", cfg.ExcludeRule, "expr rule excluding derivative files")
	b["exclude"] = func(d, s *app.Config) { d.ExcludeRule = s.ExcludeRule }
	fs.Float64Var(&cfg.ReadRate, "read-rate", cfg.ReadRate, "file opens per second per stream type (0 = unlimited)")
	b["read-rate"] = func(d, s *app.Config) { d.ReadRate = s.ReadRate }
	fs.IntVar(&cfg.ReadBurst, "read-burst", cfg.ReadBurst, "burst size for --read-rate")
	b["read-burst"] = func(d, s *app.Config) { d.ReadBurst = s.ReadBurst }
	fs.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "extracted records kept between runs")
	b["cache-size"] = func(d, s *app.Config) { d.CacheSize = s.CacheSize }
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite file receiving committed sessions (empty = off)")
	b["db"] = func(d, s *app.Config) { d.DBPath = s.DBPath }

	fs.BoolVar(&cfg.Serve, "serve", cfg.Serve, "serve the admin API after the first run")
	b["serve"] = func(d, s *app.Config) { d.Serve = s.Serve }
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "admin API port")
	b["port"] = func(d, s *app.Config) { d.Port = s.Port }
	fs.IntVar(&cfg.TraceSize, "trace-size", cfg.TraceSize, "anchor evaluations kept for /__admin/trace")
	b["trace-size"] = func(d, s *app.Config) { d.TraceSize = s.TraceSize }
	fs.BoolVar(&cfg.Watch, "watch", cfg.Watch, "re-run when the data directory changes")
	b["watch"] = func(d, s *app.Config) { d.Watch = s.Watch }
	fs.DurationVar(&cfg.WatcherDebounce, "debounce", cfg.WatcherDebounce, "quiet period before a watch re-run")
	b["debounce"] = func(d, s *app.Config) { d.WatcherDebounce = s.WatcherDebounce }

	return fs, b
}

// parseConfig resolves defaults, then the optional config file, then the
// flags given explicitly on the command line.
func parseConfig(args []string, stderr io.Writer) (app.Config, error) {
	cfg := app.DefaultConfig()
	var configPath string
	fs, bindings := newFlagSet(&cfg, &configPath)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if configPath == "" {
		return cfg, nil
	}

	loaded, err := app.LoadConfigFile(configPath, app.DefaultConfig())
	if err != nil {
		return cfg, err
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := bindings[f.Name]; ok {
			apply(&loaded, &cfg)
		}
	})
	return loaded, nil
}
