package filesystem

// ConfigFile is the YAML form of the run configuration. Nil fields leave the
// corresponding default untouched.
type ConfigFile struct {
	DataDir      *string `yaml:"data_dir,omitempty"`
	OutputPath   *string `yaml:"output,omitempty"`
	OutputFormat *string `yaml:"format,omitempty"`
	LogLevel     *string `yaml:"log_level,omitempty"`

	Matching *MatchingSection `yaml:"matching,omitempty"`
	Extract  *ExtractSection  `yaml:"extract,omitempty"`
	Sources  *SourcesSection  `yaml:"sources,omitempty"`
	Runtime  *RuntimeSection  `yaml:"runtime,omitempty"`
	Admin    *AdminSection    `yaml:"admin,omitempty"`
}

// MatchingSection configures scoring and assignment.
type MatchingSection struct {
	ToleranceMinutes *float64 `yaml:"tolerance_minutes,omitempty"`
	NormalizationK   *float64 `yaml:"normalization_k,omitempty"`
	Mode             *string  `yaml:"mode,omitempty"`
	NodeBudget       *int     `yaml:"node_budget,omitempty"`
}

// ExtractSection configures timestamp extraction.
type ExtractSection struct {
	GPSOffsetHours *float64            `yaml:"gps_offset_hours,omitempty"`
	GPSOffsetMode  *string             `yaml:"gps_offset_mode,omitempty"`
	MaxScanLines   *int                `yaml:"max_scan_lines,omitempty"`
	DateOnlyTypes  []string            `yaml:"date_only_types,omitempty"`
	HeaderAliases  map[string][]string `yaml:"header_aliases,omitempty"`
	JSONPaths      []string            `yaml:"json_paths,omitempty"`
}

// SourcesSection configures file discovery and reading.
type SourcesSection struct {
	StreamDirs  map[string][]string `yaml:"stream_dirs,omitempty"`
	ExcludeRule *string             `yaml:"exclude_rule,omitempty"`
	ReadRate    *float64            `yaml:"read_rate,omitempty"`
	ReadBurst   *int                `yaml:"read_burst,omitempty"`
	CacheSize   *int                `yaml:"cache_size,omitempty"`
}

// RuntimeSection configures the batch runtime.
type RuntimeSection struct {
	Workers *int    `yaml:"workers,omitempty"`
	DBPath  *string `yaml:"db_path,omitempty"`
}

// AdminSection configures the admin server and watch mode.
type AdminSection struct {
	Serve           *bool   `yaml:"serve,omitempty"`
	Port            *int    `yaml:"port,omitempty"`
	TraceSize       *int    `yaml:"trace_size,omitempty"`
	Watch           *bool   `yaml:"watch,omitempty"`
	WatcherDebounce *string `yaml:"watcher_debounce,omitempty"`
}
