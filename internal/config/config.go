// Package config provides configuration management for the corpus normalizer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"corpusnorm/internal/models"
)

// EnvPrefix is the prefix for environment overrides, e.g. CORPUSNORM_LOG_LEVEL.
const EnvPrefix = "corpusnorm"

// Default values.
const (
	DefaultGapThresholdDays = 90
	DefaultWorkers          = 4
	DefaultJoinSeparator    = "\n"
)

// ReservedSourceNames are the stems of the run's own output files.
var ReservedSourceNames = []string{"report", "manifest"}

// Output formats.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
	FormatXLSX  = "xlsx"
)

// Sort orders for emitted records.
const (
	SortFile = "file"
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Configuration validation errors.
var (
	ErrSourceMissingName      = errors.New("source name is required")
	ErrInvalidSourceName      = errors.New("source name must be a single file name component")
	ErrReservedSourceName     = errors.New("source name is reserved")
	ErrDuplicateSourceName    = errors.New("source name must be unique")
	ErrSourceMissingFiles     = errors.New("at least one file pattern is required")
	ErrInvalidFilePattern     = errors.New("invalid file pattern")
	ErrEmptyNativeField       = errors.New("native field name must not be empty")
	ErrUnknownCanonicalField  = errors.New("unknown canonical field")
	ErrExtractMissingFrom     = errors.New("extract.from is required")
	ErrInvalidExtractPattern  = errors.New("extract.pattern is invalid regex")
	ErrInvalidDateFormat      = errors.New("date_format does not round-trip a reference date")
	ErrInvalidGapThreshold    = errors.New("report.gap_threshold_days must be at least 1")
	ErrInvalidWorkers         = errors.New("processing.workers must be at least 1")
	ErrInvalidOutputFormat    = errors.New("output.formats entries must be 'csv', 'jsonl' or 'xlsx'")
	ErrNoOutputFormats        = errors.New("output.formats must not be empty")
	ErrInvalidSort            = errors.New("output.sort must be one of: file, asc, desc")
	ErrInvalidLogLevel        = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat       = errors.New("logging.format must be 'text' or 'json'")
	ErrFieldMapNotMapping     = errors.New("fields must be a mapping of native_field: canonical_field")
	ErrFieldMapNonScalarEntry = errors.New("fields entries must be scalars")
)

// Config represents the complete normalizer configuration.
type Config struct {
	Sources    []SourceConfig   `yaml:"sources"`
	Report     ReportConfig     `yaml:"report"`
	Output     OutputConfig     `yaml:"output"`
	Processing ProcessingConfig `yaml:"processing"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Features   FeaturesConfig   `yaml:"features"`
}

// SourceConfig maps one source's native files onto the canonical schema.
type SourceConfig struct {
	Name          string            `yaml:"name"`
	Files         []string          `yaml:"files"`
	Fields        FieldMap          `yaml:"fields"`
	Defaults      map[string]string `yaml:"defaults"`
	Extract       []ExtractRule     `yaml:"extract"`
	DateFormat    string            `yaml:"date_format"`
	JoinSeparator string            `yaml:"join_separator"`
	StripHTML     bool              `yaml:"strip_html"`
}

// ExtractRule derives a canonical field from a native field by regex.
type ExtractRule struct {
	Field    string `yaml:"field"`
	From     string `yaml:"from"`
	Pattern  string `yaml:"pattern"`
	Template string `yaml:"template"`
}

// ReportConfig controls duplicate and coverage-gap reporting.
type ReportConfig struct {
	GapThresholdDays int  `yaml:"gap_threshold_days"`
	ShowInfo         bool `yaml:"show_info"`
}

// OutputConfig defines emitted files.
type OutputConfig struct {
	Path    string   `yaml:"path"`
	Formats []string `yaml:"formats"`
	Sort    string   `yaml:"sort"`
	CSVBOM  bool     `yaml:"csv_bom"`
	Dedup   bool     `yaml:"dedup"`
}

// ProcessingConfig controls the worker pool.
type ProcessingConfig struct {
	Workers int `yaml:"workers"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig defines where run metrics are written.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// FeaturesConfig contains feature flags.
type FeaturesConfig struct {
	StrictValidation bool `yaml:"strict_validation"`
}

// EnvOverrides are read from CORPUSNORM_* variables and win over the file.
type EnvOverrides struct {
	LogLevel         string `envconfig:"LOG_LEVEL"`
	LogFormat        string `envconfig:"LOG_FORMAT"`
	GapThresholdDays int    `envconfig:"GAP_THRESHOLD_DAYS"`
	Workers          int    `envconfig:"WORKERS"`
	OutputPath       string `envconfig:"OUTPUT_PATH"`
	MetricsTextfile  string `envconfig:"METRICS_TEXTFILE"`
}

// Default returns a configuration with no configured sources.
func Default() *Config {
	return &Config{
		Report: ReportConfig{GapThresholdDays: DefaultGapThresholdDays, ShowInfo: true},
		Output: OutputConfig{
			Formats: []string{FormatCSV, FormatJSONL, FormatXLSX},
			Sort:    SortFile,
		},
		Processing: ProcessingConfig{Workers: DefaultWorkers},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig loads configuration from a YAML file. An empty path yields the defaults.
// Environment overrides (and a local .env file, if present) are applied afterwards.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	// Env vars may already be set in the shell, so a missing .env is fine.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays CORPUSNORM_* environment variables onto the config.
func (c *Config) ApplyEnv() error {
	var env EnvOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	if env.LogLevel != "" {
		c.Logging.Level = strings.ToLower(env.LogLevel)
	}

	if env.LogFormat != "" {
		c.Logging.Format = strings.ToLower(env.LogFormat)
	}

	if env.GapThresholdDays != 0 {
		c.Report.GapThresholdDays = env.GapThresholdDays
	}

	if env.Workers != 0 {
		c.Processing.Workers = env.Workers
	}

	if env.OutputPath != "" {
		c.Output.Path = env.OutputPath
	}

	if env.MetricsTextfile != "" {
		c.Metrics.Textfile = env.MetricsTextfile
	}

	return nil
}

func (c *Config) applyDefaults() {
	for i := range c.Sources {
		if c.Sources[i].JoinSeparator == "" {
			c.Sources[i].JoinSeparator = DefaultJoinSeparator
		}
	}

	if c.Output.Sort == "" {
		c.Output.Sort = SortFile
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate validates the configuration. Mapping completeness is not checked here:
// an incomplete mapping only aborts its own source at processing time.
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Sources))

	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("%w: source[%d]", ErrSourceMissingName, i)
		}

		if err := CheckSourceName(src.Name); err != nil {
			return fmt.Errorf("%w: source[%d]", err, i)
		}

		if names[src.Name] {
			return fmt.Errorf("%w: source[%d] %q", ErrDuplicateSourceName, i, src.Name)
		}

		names[src.Name] = true

		if err := src.Validate(); err != nil {
			return fmt.Errorf("source[%d] %q: %w", i, src.Name, err)
		}
	}

	if c.Report.GapThresholdDays < 1 {
		return ErrInvalidGapThreshold
	}

	if c.Processing.Workers < 1 {
		return ErrInvalidWorkers
	}

	if len(c.Output.Formats) == 0 {
		return ErrNoOutputFormats
	}

	for _, f := range c.Output.Formats {
		if f != FormatCSV && f != FormatJSONL && f != FormatXLSX {
			return fmt.Errorf("%w: %q", ErrInvalidOutputFormat, f)
		}
	}

	if c.Output.Sort != SortFile && c.Output.Sort != SortAsc && c.Output.Sort != SortDesc {
		return ErrInvalidSort
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}

// CheckSourceName rejects names that cannot be used as an output file stem.
func CheckSourceName(name string) error {
	if name == "." || !filepath.IsLocal(name) || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidSourceName, name)
	}

	if IsReservedSourceName(name) {
		return fmt.Errorf("%w: %q", ErrReservedSourceName, name)
	}

	return nil
}

// IsReservedSourceName reports whether name collides with report or manifest files.
func IsReservedSourceName(name string) bool {
	return slices.Contains(ReservedSourceNames, strings.ToLower(name))
}

// Validate checks a single source definition.
func (s *SourceConfig) Validate() error {
	if len(s.Files) == 0 {
		return ErrSourceMissingFiles
	}

	for _, pattern := range s.Files {
		if _, err := matchPattern(pattern, ""); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidFilePattern, pattern)
		}
	}

	for _, rule := range s.Fields {
		if rule.Native == "" {
			return ErrEmptyNativeField
		}

		if !models.IsCanonicalField(rule.Canonical) {
			return fmt.Errorf("%w: %q (from %q)", ErrUnknownCanonicalField, rule.Canonical, rule.Native)
		}
	}

	for field := range s.Defaults {
		if !models.IsCanonicalField(field) {
			return fmt.Errorf("%w: defaults.%s", ErrUnknownCanonicalField, field)
		}
	}

	for i, rule := range s.Extract {
		if !models.IsCanonicalField(rule.Field) {
			return fmt.Errorf("%w: extract[%d].field %q", ErrUnknownCanonicalField, i, rule.Field)
		}

		if rule.From == "" {
			return fmt.Errorf("%w: extract[%d]", ErrExtractMissingFrom, i)
		}

		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("%w: extract[%d]: %w", ErrInvalidExtractPattern, i, err)
		}
	}

	if s.DateFormat != "" {
		ref := time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC)
		parsed, err := time.Parse(s.DateFormat, ref.Format(s.DateFormat))
		if err != nil || parsed.Year() != ref.Year() || parsed.YearDay() != ref.YearDay() {
			return fmt.Errorf("%w: %q", ErrInvalidDateFormat, s.DateFormat)
		}
	}

	return nil
}

// Matches reports whether a file path relative to the source directory belongs to this source.
func (s *SourceConfig) Matches(relPath string) bool {
	for _, pattern := range s.Files {
		if ok, err := matchPattern(pattern, relPath); err == nil && ok {
			return true
		}
	}

	return false
}

// IdentitySource returns a source whose native field names are the canonical ones.
func IdentitySource(name string, files ...string) SourceConfig {
	fields := make(FieldMap, 0, len(models.Fields))
	for _, f := range models.Fields {
		fields = append(fields, FieldRule{Native: f, Canonical: f})
	}

	return SourceConfig{
		Name:          name,
		Files:         files,
		Fields:        fields,
		JoinSeparator: DefaultJoinSeparator,
	}
}

// GapThreshold returns the coverage-gap threshold as a duration.
func (c *Config) GapThreshold() time.Duration {
	return time.Duration(c.Report.GapThresholdDays) * 24 * time.Hour
}

// WantsFormat reports whether the given output format is enabled.
func (c *Config) WantsFormat(format string) bool {
	for _, f := range c.Output.Formats {
		if f == format {
			return true
		}
	}

	return false
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Sources: %d, GapThresholdDays: %d, Workers: %d, Formats: %v}",
		len(c.Sources),
		c.Report.GapThresholdDays,
		c.Processing.Workers,
		c.Output.Formats,
	)
}
