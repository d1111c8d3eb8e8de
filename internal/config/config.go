package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dyluth/rota/internal/directory"
	"github.com/dyluth/rota/internal/engine"
	"github.com/dyluth/rota/internal/topology"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when a field is omitted.
const (
	DefaultRedisURL      = "redis://localhost:6379"
	DefaultTimezone      = "UTC"
	DefaultTimeout       = 2 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryInterval = 100 * time.Millisecond
	DefaultSandboxTTL    = 6 * time.Hour
	DefaultRosterPath    = "roster.yml"
)

// RedisURLEnv overrides redis_url when set.
const RedisURLEnv = "ROTA_REDIS_URL"

// RotaConfig represents the top-level rota.yml configuration
type RotaConfig struct {
	Version   string           `yaml:"version"`
	RedisURL  string           `yaml:"redis_url,omitempty"`
	Timezone  string           `yaml:"timezone,omitempty"`
	Policy    *PolicyConfig    `yaml:"policy,omitempty"`
	Storage   *StorageConfig   `yaml:"storage,omitempty"`
	Sandbox   *SandboxConfig   `yaml:"sandbox,omitempty"`
	Directory *DirectoryConfig `yaml:"directory,omitempty"`
	Repair    *RepairConfig    `yaml:"repair,omitempty"`
	Topology  TopologyConfig   `yaml:"topology"`
}

// PolicyConfig specifies the time-of-day staffing policy
type PolicyConfig struct {
	RestrictedFromMinute *int  `yaml:"restricted_from_minute,omitempty"` // Default 45
	EnforceRestricted    *bool `yaml:"enforce_restricted,omitempty"`     // Default true; false disables the restricted period
}

// StorageConfig specifies storage call timeouts and orchestrator retries
type StorageConfig struct {
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	MaxRetries    *int          `yaml:"max_retries,omitempty"`
	RetryInterval time.Duration `yaml:"retry_interval,omitempty"`
}

// SandboxConfig specifies sandbox instance behaviour
type SandboxConfig struct {
	TTL time.Duration `yaml:"ttl,omitempty"`
}

// DirectoryConfig selects the personnel directory backend
type DirectoryConfig struct {
	Kind string `yaml:"kind,omitempty"` // "yaml" or "sqlite"
	Path string `yaml:"path,omitempty"`
}

// RepairConfig tunes the offline repair job
type RepairConfig struct {
	IDPrefixes []string `yaml:"id_prefixes,omitempty"` // Stripped from references before lookup, e.g. "id:" or "#"
}

// TopologyConfig lists the sections and their positions
type TopologyConfig struct {
	Sections []topology.SectionSpec `yaml:"sections"`
}

// Validate performs strict validation on the configuration and fills in defaults
func (c *RotaConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.RedisURL == "" {
		c.RedisURL = DefaultRedisURL
	}
	if _, err := redis.ParseURL(c.RedisURL); err != nil {
		return fmt.Errorf("invalid redis_url: %w", err)
	}

	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	if c.Policy == nil {
		c.Policy = &PolicyConfig{}
	}
	if c.Policy.RestrictedFromMinute == nil {
		minute := engine.DefaultRestrictedFromMinute
		c.Policy.RestrictedFromMinute = &minute
	}
	if m := *c.Policy.RestrictedFromMinute; m < 0 || m > 60 {
		return fmt.Errorf("policy.restricted_from_minute must be between 0 and 60, got %d", m)
	}
	if c.Policy.EnforceRestricted == nil {
		enforce := true
		c.Policy.EnforceRestricted = &enforce
	}

	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = DefaultTimeout
	}
	if c.Storage.Timeout < 0 {
		return fmt.Errorf("storage.timeout must be positive, got %s", c.Storage.Timeout)
	}
	if c.Storage.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.Storage.MaxRetries = &retries
	}
	if *c.Storage.MaxRetries < 0 {
		return fmt.Errorf("storage.max_retries must be >= 0, got %d", *c.Storage.MaxRetries)
	}
	if c.Storage.RetryInterval == 0 {
		c.Storage.RetryInterval = DefaultRetryInterval
	}
	if c.Storage.RetryInterval < 0 {
		return fmt.Errorf("storage.retry_interval must be positive, got %s", c.Storage.RetryInterval)
	}

	if c.Sandbox == nil {
		c.Sandbox = &SandboxConfig{}
	}
	if c.Sandbox.TTL == 0 {
		c.Sandbox.TTL = DefaultSandboxTTL
	}
	if c.Sandbox.TTL < 0 {
		return fmt.Errorf("sandbox.ttl must be positive, got %s", c.Sandbox.TTL)
	}

	if c.Directory == nil {
		c.Directory = &DirectoryConfig{}
	}
	if c.Directory.Kind == "" {
		c.Directory.Kind = directory.KindYAML
	}
	if c.Directory.Kind != directory.KindYAML && c.Directory.Kind != directory.KindSQLite {
		return fmt.Errorf("invalid directory.kind: %s (must be '%s' or '%s')", c.Directory.Kind, directory.KindYAML, directory.KindSQLite)
	}
	if c.Directory.Path == "" {
		c.Directory.Path = DefaultRosterPath
	}

	if c.Repair == nil {
		c.Repair = &RepairConfig{}
	}

	if _, err := c.BuildTopology(); err != nil {
		return fmt.Errorf("invalid topology: %w", err)
	}

	return nil
}

// BuildTopology builds the validated position graph.
func (c *RotaConfig) BuildTopology() (*topology.Topology, error) {
	return topology.New(c.Topology.Sections)
}

// Location returns the configured timezone. Call after Validate.
func (c *RotaConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EnginePolicy returns the staffing policy. Call after Validate.
func (c *RotaConfig) EnginePolicy() engine.Policy {
	return engine.Policy{
		RestrictedFromMinute: *c.Policy.RestrictedFromMinute,
		EnforceRestricted:    *c.Policy.EnforceRestricted,
	}
}

// RedisOptions parses redis_url into client options.
func (c *RotaConfig) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	return opts, nil
}

// Load reads and validates rota.yml from the specified path.
// A relative directory path is resolved against the config file's directory.
func Load(path string) (*RotaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config RotaConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if url := os.Getenv(RedisURLEnv); url != "" {
		config.RedisURL = url
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if !filepath.IsAbs(config.Directory.Path) {
		config.Directory.Path = filepath.Join(filepath.Dir(path), config.Directory.Path)
	}

	return &config, nil
}
