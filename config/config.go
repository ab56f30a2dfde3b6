// Package config binds the service's runtime configuration via viper,
// following the cobra/viper convention the teacher CLI uses for its own
// settings.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of runtime knobs the server needs: where state
// lives, how big a submission may be, and how much concurrency to
// allow.
type Config struct {
	ListenAddr string

	DatabasePath   string
	WorkspaceDir   string
	WorkspaceTTL   time.Duration
	CleanupInterval time.Duration

	MaxSingleFileBytes int64
	MaxArchiveBytes    int64
	MaxFileCount       int

	MaxConcurrentJobs int64
	JobTimeoutMs      int64

	CacheDefaultTTLHours float64
}

// Default returns the configuration used when no overrides are supplied,
// matching the defaults named throughout the specification.
func Default() Config {
	return Config{
		ListenAddr:           ":8080",
		DatabasePath:         "./data/lintsvc.db",
		WorkspaceDir:         "./data/workspaces",
		WorkspaceTTL:         1 * time.Hour,
		CleanupInterval:      10 * time.Minute,
		MaxSingleFileBytes:   10 * 1024 * 1024,
		MaxArchiveBytes:      500 * 1024 * 1024,
		MaxFileCount:         1000,
		MaxConcurrentJobs:    4,
		JobTimeoutMs:         300_000,
		CacheDefaultTTLHours: 24,
	}
}

// Load reads configuration from viper (already configured by the cobra
// root command's initConfig), overlaying onto Default().
func Load() Config {
	cfg := Default()

	if viper.IsSet("listen_addr") {
		cfg.ListenAddr = viper.GetString("listen_addr")
	}
	if viper.IsSet("database_path") {
		cfg.DatabasePath = viper.GetString("database_path")
	}
	if viper.IsSet("workspace_dir") {
		cfg.WorkspaceDir = viper.GetString("workspace_dir")
	}
	if viper.IsSet("workspace_ttl") {
		cfg.WorkspaceTTL = viper.GetDuration("workspace_ttl")
	}
	if viper.IsSet("cleanup_interval") {
		cfg.CleanupInterval = viper.GetDuration("cleanup_interval")
	}
	if viper.IsSet("max_single_file_bytes") {
		cfg.MaxSingleFileBytes = viper.GetInt64("max_single_file_bytes")
	}
	if viper.IsSet("max_archive_bytes") {
		cfg.MaxArchiveBytes = viper.GetInt64("max_archive_bytes")
	}
	if viper.IsSet("max_file_count") {
		cfg.MaxFileCount = viper.GetInt("max_file_count")
	}
	if viper.IsSet("max_concurrent_jobs") {
		cfg.MaxConcurrentJobs = viper.GetInt64("max_concurrent_jobs")
	}
	if viper.IsSet("job_timeout_ms") {
		cfg.JobTimeoutMs = viper.GetInt64("job_timeout_ms")
	}
	if viper.IsSet("cache_default_ttl_hours") {
		cfg.CacheDefaultTTLHours = viper.GetFloat64("cache_default_ttl_hours")
	}

	return cfg
}
