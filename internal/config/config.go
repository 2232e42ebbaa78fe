// Package config handles loading and managing contractlens configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration read from a TOML string such as "30s".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SnapshotConfig locates snapshot data and controls background reloads.
type SnapshotConfig struct {
	Dir             string `toml:"dir"`              // root holding CURRENT and version dirs
	RefreshSchedule string `toml:"refresh_schedule"` // cron expression; empty disables reloads
}

// QueryConfig bounds query execution.
type QueryConfig struct {
	Timeout            Duration `toml:"timeout"`
	MaxConcurrentReads int      `toml:"max_concurrent_reads"`
	Threads            int      `toml:"threads"` // DuckDB threads per connection; 0 = GOMAXPROCS
	DefaultPageSize    int      `toml:"default_page_size"`
	MaxPageSize        int      `toml:"max_page_size"`
}

// ExportConfig controls CSV export streaming and size estimates.
type ExportConfig struct {
	BatchSize         int `toml:"batch_size"`
	RawRowWidth       int `toml:"raw_row_width"`
	AggregateRowWidth int `toml:"aggregate_row_width"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort         int      `toml:"api_port"`         // HTTP server port (default: 8080)
	BindAddr        string   `toml:"bind_addr"`        // Listen address (default: 127.0.0.1)
	APIKey          string   `toml:"api_key"`          // API authentication key
	AllowInsecure   bool     `toml:"allow_insecure"`   // Permit a non-loopback bind without an API key
	CORSOrigins     []string `toml:"cors_origins"`     // Allowed origins; empty disables CORS
	CORSCredentials bool     `toml:"cors_credentials"` // Send Access-Control-Allow-Credentials
	CORSMaxAge      int      `toml:"cors_max_age"`     // Preflight cache seconds
	RateLimitRPS    float64  `toml:"rate_limit_rps"`
	RateLimitBurst  int      `toml:"rate_limit_burst"`
}

// IsLoopback reports whether the configured bind address only accepts
// local connections.
func (c ServerConfig) IsLoopback() bool {
	addr := strings.TrimSpace(c.BindAddr)
	if addr == "" || strings.EqualFold(addr, "localhost") {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// ValidateSecure refuses to expose the API beyond loopback without an API
// key unless allow_insecure is set.
func (c ServerConfig) ValidateSecure() error {
	if c.IsLoopback() || c.APIKey != "" || c.AllowInsecure {
		return nil
	}
	return fmt.Errorf("refusing to bind to %s without an api_key; set [server] api_key or bind_addr = \"127.0.0.1\"", c.BindAddr)
}

// RemoteConfig points the CLI and TUI at a contractlens server instead of
// a local snapshot.
type RemoteConfig struct {
	URL           string   `toml:"url"`            // Server base URL (e.g. https://analytics:8080)
	APIKey        string   `toml:"api_key"`        // Sent as X-API-Key
	AllowInsecure bool     `toml:"allow_insecure"` // Permit plain http
	Timeout       Duration `toml:"timeout"`        // Per-request timeout; exports are not bounded
}

// Config represents the contractlens configuration.
type Config struct {
	Snapshot SnapshotConfig `toml:"snapshot"`
	Query    QueryConfig    `toml:"query"`
	Export   ExportConfig   `toml:"export"`
	Server   ServerConfig   `toml:"server"`
	Remote   RemoteConfig   `toml:"remote"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	ConfigPath string `toml:"-"`
}

// DefaultHome returns the default contractlens home directory.
// Respects CONTRACTLENS_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("CONTRACTLENS_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".contractlens"
	}
	return filepath.Join(home, ".contractlens")
}

// NewDefaultConfig returns a configuration with default values rooted at
// homeDir.
func NewDefaultConfig(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Snapshot: SnapshotConfig{
			Dir:             filepath.Join(homeDir, "snapshots"),
			RefreshSchedule: "*/5 * * * *",
		},
		Query: QueryConfig{
			Timeout:            Duration(30 * time.Second),
			MaxConcurrentReads: 4,
			DefaultPageSize:    50,
			MaxPageSize:        1000,
		},
		Export: ExportConfig{
			BatchSize:         50_000,
			RawRowWidth:       250,
			AggregateRowWidth: 120,
		},
		Server: ServerConfig{
			APIPort:        8080,
			BindAddr:       "127.0.0.1",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
	}
}

// Load reads the configuration. An explicit path must exist, and its
// parent directory becomes the home directory unless homeDir is set.
// With no path, homeDir (or DefaultHome) is searched for config.toml and
// defaults are used when it is absent.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	if homeDir != "" {
		homeDir = expandPath(homeDir)
	}

	if explicit {
		path = expandPath(path)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("stat config: %w", err)
		}
		if homeDir == "" {
			abs, err := filepath.Abs(path)
			if err != nil {
				return nil, fmt.Errorf("resolve config path: %w", err)
			}
			homeDir = filepath.Dir(abs)
		}
	} else {
		if homeDir == "" {
			homeDir = DefaultHome()
		}
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := NewDefaultConfig(homeDir)

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	cfg.ConfigPath = path

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w%s", path, err, backslashHint(err))
	}

	// Expand ~ in paths and resolve relative ones against the home dir.
	cfg.Snapshot.Dir = expandPath(cfg.Snapshot.Dir)
	if cfg.Snapshot.Dir != "" && !filepath.IsAbs(cfg.Snapshot.Dir) {
		cfg.Snapshot.Dir = filepath.Join(homeDir, cfg.Snapshot.Dir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks numeric settings for sane values.
func (c *Config) Validate() error {
	switch {
	case c.Snapshot.Dir == "":
		return errors.New("config: [snapshot] dir must not be empty")
	case c.Query.Timeout < 0:
		return errors.New("config: [query] timeout must not be negative")
	case c.Query.MaxConcurrentReads < 1:
		return errors.New("config: [query] max_concurrent_reads must be at least 1")
	case c.Query.DefaultPageSize < 1 || c.Query.MaxPageSize < c.Query.DefaultPageSize:
		return fmt.Errorf("config: [query] page sizes must satisfy 1 <= default_page_size (%d) <= max_page_size (%d)",
			c.Query.DefaultPageSize, c.Query.MaxPageSize)
	case c.Export.BatchSize < 1:
		return errors.New("config: [export] batch_size must be at least 1")
	case c.Server.APIPort < 0 || c.Server.APIPort > 65535:
		return fmt.Errorf("config: [server] api_port %d out of range", c.Server.APIPort)
	case c.Remote.Timeout < 0:
		return errors.New("config: [remote] timeout must not be negative")
	}
	return nil
}

// backslashHint explains the most common TOML mistake on Windows: paths
// in double-quoted strings where backslashes start escape sequences.
func backslashHint(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "invalid escape") || strings.Contains(msg, "hexadecimal digits") {
		return "\nhint: use forward slashes (C:/data/snapshots) or single quotes ('C:\\data\\snapshots') for Windows paths"
	}
	return ""
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
