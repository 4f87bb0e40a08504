package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks configuration rejected at construction
var ErrInvalidConfig = errors.New("invalid configuration")

// Layout names. Cache layouts keep entries in memory; ssd layouts on disk.
// The complex_key_ variants address rows by tuple keys instead of uint64 ids.
const (
	LayoutCache              = "cache"
	LayoutComplexKeyCache    = "complex_key_cache"
	LayoutSSDCache           = "ssd_cache"
	LayoutComplexKeySSDCache = "complex_key_ssd_cache"
)

// Lifetime is the deadline band applied to every inserted entry
type Lifetime struct {
	MinSec uint64 `yaml:"min_sec"`
	MaxSec uint64 `yaml:"max_sec"`
}

// UpdateQueueConfig bounds the update queue and its worker pool
type UpdateQueueConfig struct {
	MaxUpdateQueueSize   int `yaml:"max_update_queue_size"`
	MaxThreadsForUpdates int `yaml:"max_threads_for_updates"`
	PushTimeoutMS        int `yaml:"update_queue_push_timeout_milliseconds"`
	QueryWaitTimeoutMS   int `yaml:"query_wait_timeout_milliseconds"`
}

// SSDConfig holds the options specific to the ssd layouts
type SSDConfig struct {
	Path               string `yaml:"path"`
	BlockSize          int    `yaml:"block_size"`
	FileSize           int64  `yaml:"file_size"`
	ReadBufferSize     int    `yaml:"read_buffer_size"`
	WriteBufferSize    int    `yaml:"write_buffer_size"`
	MaxPartitionsCount int    `yaml:"max_partitions_count"`
	MaxStoredKeys      int    `yaml:"max_stored_keys"`
}

// DictionaryConfig configures one cache dictionary
type DictionaryConfig struct {
	Name                     string            `yaml:"name"`
	Layout                   string            `yaml:"layout"`
	SizeInCells              int               `yaml:"size_in_cells"`
	StrictMaxLifetimeSeconds uint64            `yaml:"strict_max_lifetime_seconds"`
	Lifetime                 Lifetime          `yaml:"lifetime"`
	AllowReadExpiredKeys     bool              `yaml:"allow_read_expired_keys"`
	RequireNonempty          bool              `yaml:"require_nonempty"`
	UpdateQueue              UpdateQueueConfig `yaml:"update_queue"`
	SSD                      *SSDConfig        `yaml:"ssd"`
}

// SchemaAttributeConfig declares one attribute of the dictionary schema
type SchemaAttributeConfig struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	NullValue    any    `yaml:"null_value"`
	Hierarchical bool   `yaml:"hierarchical"`
	FixedLength  int    `yaml:"fixed_length"`
	Scale        int    `yaml:"scale"`
}

// SchemaKeyConfig declares one key column
type SchemaKeyConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// SchemaConfig declares the dictionary structure
type SchemaConfig struct {
	Keys       []SchemaKeyConfig       `yaml:"keys"`
	Attributes []SchemaAttributeConfig `yaml:"attributes"`
}

// SourceConfig configures the HTTP source of the demo daemon
type SourceConfig struct {
	URL               string  `yaml:"url"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestTimeoutSec int     `yaml:"request_timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	RefreshSeconds    int     `yaml:"refresh_seconds"`
}

// MetricsConfig configures the metrics listener
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete daemon configuration
type Config struct {
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Schema     SchemaConfig     `yaml:"schema"`
	Source     SourceConfig     `yaml:"source"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoadConfig reads, defaults and validates a yaml configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults fills unspecified options with the layout defaults
func setDefaults(cfg *Config) {
	d := &cfg.Dictionary
	if d.Layout == "" {
		d.Layout = LayoutCache
	}
	if d.StrictMaxLifetimeSeconds == 0 {
		d.StrictMaxLifetimeSeconds = d.Lifetime.MaxSec
	}
	q := &d.UpdateQueue
	if q.MaxUpdateQueueSize == 0 {
		q.MaxUpdateQueueSize = 100000
	}
	if q.MaxThreadsForUpdates == 0 {
		q.MaxThreadsForUpdates = 4
	}
	if q.PushTimeoutMS == 0 {
		q.PushTimeoutMS = 10
	}
	if q.QueryWaitTimeoutMS == 0 {
		q.QueryWaitTimeoutMS = 60000
	}
	if d.SSD != nil {
		s := d.SSD
		if s.BlockSize == 0 {
			s.BlockSize = 4096
		}
		if s.FileSize == 0 {
			s.FileSize = 4 * 1024 * 1024 * 1024
		}
		if s.ReadBufferSize == 0 {
			s.ReadBufferSize = 16 * s.BlockSize
		}
		if s.WriteBufferSize == 0 {
			s.WriteBufferSize = s.BlockSize
		}
		if s.MaxPartitionsCount == 0 {
			s.MaxPartitionsCount = 16
		}
		if s.MaxStoredKeys == 0 {
			s.MaxStoredKeys = 100000
		}
	}
	if cfg.Source.MaxRetries == 0 {
		cfg.Source.MaxRetries = 3
	}
	if cfg.Source.RequestTimeoutSec == 0 {
		cfg.Source.RequestTimeoutSec = 30
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// Validate checks the configuration, wrapping every rejection in
// ErrInvalidConfig
func (c *Config) Validate() error {
	return c.Dictionary.Validate()
}

// Validate checks the dictionary options
func (d *DictionaryConfig) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: dictionary name must not be empty", ErrInvalidConfig)
	}
	switch d.Layout {
	case LayoutCache, LayoutComplexKeyCache:
		if d.SizeInCells <= 0 {
			return fmt.Errorf("%w: dictionary of layout %q cannot have 0 cells", ErrInvalidConfig, d.Layout)
		}
	case LayoutSSDCache, LayoutComplexKeySSDCache:
		if d.SSD == nil {
			return fmt.Errorf("%w: dictionary of layout %q needs an ssd section", ErrInvalidConfig, d.Layout)
		}
		if err := d.SSD.validate(d.Layout); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown layout %q", ErrInvalidConfig, d.Layout)
	}
	if d.RequireNonempty {
		return fmt.Errorf("%w: dictionary of layout %q cannot have require_nonempty set", ErrInvalidConfig, d.Layout)
	}
	if d.Lifetime.MaxSec == 0 {
		return fmt.Errorf("%w: lifetime max_sec must be positive", ErrInvalidConfig)
	}
	if d.Lifetime.MinSec > d.Lifetime.MaxSec {
		return fmt.Errorf("%w: lifetime min_sec exceeds max_sec", ErrInvalidConfig)
	}
	if d.StrictMaxLifetimeSeconds < d.Lifetime.MaxSec {
		return fmt.Errorf("%w: strict_max_lifetime_seconds undercuts lifetime max_sec", ErrInvalidConfig)
	}
	return d.UpdateQueue.Validate()
}

func (s *SSDConfig) validate(layout string) error {
	if s.Path == "" {
		return fmt.Errorf("%w: dictionary of layout %q cannot have empty path", ErrInvalidConfig, layout)
	}
	if s.BlockSize <= 0 {
		return fmt.Errorf("%w: block_size must be positive", ErrInvalidConfig)
	}
	if s.FileSize%int64(s.BlockSize) != 0 {
		return fmt.Errorf("%w: file_size must be a multiple of block_size", ErrInvalidConfig)
	}
	if s.ReadBufferSize%s.BlockSize != 0 {
		return fmt.Errorf("%w: read_buffer_size must be a multiple of block_size", ErrInvalidConfig)
	}
	if s.WriteBufferSize%s.BlockSize != 0 {
		return fmt.Errorf("%w: write_buffer_size must be a multiple of block_size", ErrInvalidConfig)
	}
	if s.MaxPartitionsCount <= 0 || s.MaxStoredKeys <= 0 {
		return fmt.Errorf("%w: max_partitions_count and max_stored_keys must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the update queue options
func (q *UpdateQueueConfig) Validate() error {
	if q.MaxUpdateQueueSize <= 0 {
		return fmt.Errorf("%w: cannot have empty update queue of size 0", ErrInvalidConfig)
	}
	if q.MaxThreadsForUpdates <= 0 {
		return fmt.Errorf("%w: cannot have zero threads for updates", ErrInvalidConfig)
	}
	if q.PushTimeoutMS < 10 {
		return fmt.Errorf("%w: update_queue_push_timeout_milliseconds must be at least 10", ErrInvalidConfig)
	}
	if q.QueryWaitTimeoutMS <= 0 {
		return fmt.Errorf("%w: query_wait_timeout_milliseconds must be positive", ErrInvalidConfig)
	}
	return nil
}
