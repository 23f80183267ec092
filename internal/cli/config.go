package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tobert/tracestat/internal/usage"
)

// Config holds the runtime configuration for tracestat.
// It can be populated from CLI flags, config files, or both.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `json:"comment,omitempty"`

	// Organization the usage table links into and the projects it always
	// has rows for, even before any outcome arrives.
	Org         string          `json:"org,omitempty"`
	Projects    []usage.Project `json:"projects,omitempty"`
	StatsPeriod string          `json:"stats_period,omitempty"` // e.g. "14d"

	// Buffer sizes (direct JSON mapping to CLI flags)
	TraceBufferSize   int `json:"trace_buffer_size,omitempty"`
	OutcomeBufferSize int `json:"outcome_buffer_size,omitempty"`

	// OTLP server configuration
	OTLPHost string `json:"otlp_host,omitempty"`
	OTLPPort int    `json:"otlp_port,omitempty"`

	// MCP transport configuration
	Transport      string   `json:"transport,omitempty"`       // "stdio" (default) or "http"
	HTTPHost       string   `json:"http_host,omitempty"`       // HTTP server bind address
	HTTPPort       int      `json:"http_port,omitempty"`       // HTTP server port
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // Allowed Origin header patterns
	SessionTimeout string   `json:"session_timeout,omitempty"` // Session idle timeout (e.g., "30m")
	Stateless      bool     `json:"stateless,omitempty"`       // Run HTTP transport in stateless mode

	// Web UI configuration
	WebUIPort int    `json:"webui_port,omitempty"` // 0 = use same port as HTTP (default)
	WebUIHost string `json:"webui_host,omitempty"` // default: 127.0.0.1

	// File sources
	FileSources []string `json:"file_sources,omitempty"` // directories with traces/ and metrics/ JSONL
	OtelConfig  string   `json:"otel_config,omitempty"`  // Collector config to discover file exporters from
	ActiveOnly  bool     `json:"active_only,omitempty"`  // skip rotated archives

	// Logging configuration
	Verbose bool `json:"verbose,omitempty"`
}

// DefaultConfig returns a Config with sensible default values:
// - 10,000 spans for traces
// - 100,000 outcome points
// - Localhost binding on ephemeral port
// - stdio transport (or http on port 4380)
func DefaultConfig() *Config {
	return &Config{
		Org:               "default",
		StatsPeriod:       usage.DefaultStatsPeriod,
		TraceBufferSize:   10_000,
		OutcomeBufferSize: 100_000,
		OTLPHost:          "127.0.0.1",
		OTLPPort:          0, // 0 means ephemeral port assignment
		Transport:         "stdio",
		HTTPHost:          "127.0.0.1",
		HTTPPort:          4380,
		AllowedOrigins:    []string{"http://localhost:*", "http://127.0.0.1:*"},
		SessionTimeout:    "30m",
		Stateless:         false,
		WebUIPort:         0,
		WebUIHost:         "127.0.0.1",
		Verbose:           false,
	}
}

// Validate checks the fields that flags and files can get wrong.
func (c *Config) Validate() error {
	switch c.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport %q (want stdio or http)", c.Transport)
	}
	if c.TraceBufferSize <= 0 {
		return fmt.Errorf("trace buffer size must be positive, got %d", c.TraceBufferSize)
	}
	if c.OutcomeBufferSize <= 0 {
		return fmt.Errorf("outcome buffer size must be positive, got %d", c.OutcomeBufferSize)
	}
	if _, err := usage.ParsePeriod(c.StatsPeriod); err != nil {
		return fmt.Errorf("invalid stats period: %w", err)
	}
	if _, err := c.SessionIdleTimeout(); err != nil {
		return err
	}
	for i, p := range c.Projects {
		if p.ID == "" {
			return fmt.Errorf("project %d has no id", i)
		}
	}
	return nil
}

// SessionIdleTimeout parses SessionTimeout. Empty means no timeout.
func (c *Config) SessionIdleTimeout() (time.Duration, error) {
	if c.SessionTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.SessionTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid session timeout %q: %w", c.SessionTimeout, err)
	}
	return d, nil
}

// LoadConfigFromFile loads configuration from a JSON file at the given path.
// It returns an error if the file cannot be read or parsed.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

// FindProjectConfig searches for a .tracestat.json config file.
// It starts in dir and walks up looking for the file,
// stopping when it finds a .git directory (project root) or reaches root.
func FindProjectConfig(dir string) (string, error) {
	for {
		configPath := filepath.Join(dir, ".tracestat.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// Stop at the repo root even if no config was found
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// GlobalConfigPath returns the path to the global config file.
// This is ~/.config/tracestat/config.json
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tracestat", "config.json")
}

// MergeConfigs merges two configs with the overlay taking precedence.
// Fields in overlay override corresponding fields in base.
// Returns a new Config with the merged values.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base

	if overlay.Org != "" {
		merged.Org = overlay.Org
	}
	if len(overlay.Projects) > 0 {
		merged.Projects = overlay.Projects
	}
	if overlay.StatsPeriod != "" {
		merged.StatsPeriod = overlay.StatsPeriod
	}

	if overlay.OTLPHost != "" {
		merged.OTLPHost = overlay.OTLPHost
	}
	if overlay.OTLPPort != 0 {
		merged.OTLPPort = overlay.OTLPPort
	}
	if overlay.Verbose {
		merged.Verbose = overlay.Verbose
	}

	// Merge buffer sizes
	if overlay.TraceBufferSize > 0 {
		merged.TraceBufferSize = overlay.TraceBufferSize
	}
	if overlay.OutcomeBufferSize > 0 {
		merged.OutcomeBufferSize = overlay.OutcomeBufferSize
	}

	// Merge HTTP transport settings
	if overlay.Transport != "" {
		merged.Transport = overlay.Transport
	}
	if overlay.HTTPHost != "" {
		merged.HTTPHost = overlay.HTTPHost
	}
	if overlay.HTTPPort > 0 {
		merged.HTTPPort = overlay.HTTPPort
	}
	if len(overlay.AllowedOrigins) > 0 {
		merged.AllowedOrigins = overlay.AllowedOrigins
	}
	if overlay.SessionTimeout != "" {
		merged.SessionTimeout = overlay.SessionTimeout
	}
	if overlay.Stateless {
		merged.Stateless = overlay.Stateless
	}

	// Merge Web UI settings
	if overlay.WebUIPort > 0 {
		merged.WebUIPort = overlay.WebUIPort
	}
	if overlay.WebUIHost != "" {
		merged.WebUIHost = overlay.WebUIHost
	}

	// File sources accumulate across layers
	if len(overlay.FileSources) > 0 {
		merged.FileSources = append(append([]string(nil), base.FileSources...), overlay.FileSources...)
	}
	if overlay.OtelConfig != "" {
		merged.OtelConfig = overlay.OtelConfig
	}
	if overlay.ActiveOnly {
		merged.ActiveOnly = overlay.ActiveOnly
	}

	return &merged
}

// LoadEffectiveConfig loads the effective configuration by merging:
// 1. Built-in defaults
// 2. Global config file (if exists)
// 3. Project config file (if exists)
// 4. Explicit config file (if specified via configPath)
// Later sources override earlier ones.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Global config is optional
	if globalPath := GlobalConfigPath(); globalPath != "" {
		if globalCfg, err := LoadConfigFromFile(globalPath); err == nil {
			config = MergeConfigs(config, globalCfg)
		}
	}

	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		if projectPath, err := FindProjectConfig(cwd); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	return config, nil
}
