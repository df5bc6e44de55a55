// Package config loads the configuration surfaces recognized by the
// core from a YAML file, with environment-variable and CLI-flag
// overrides layered on top of the compiled-in defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/flux-framework/flux-core-go/pkg/bootstrap"
	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"gopkg.in/yaml.v3"
)

// Config holds the bootstrap connect-retry tuning knobs, logging and
// data-directory settings, and buffer/cache sizing knobs an embedding
// application needs to configure the byte buffer and cache.
type Config struct {
	// ConnectTimeoutMs is the initial connect timeout for the bootstrap
	// port-range scan.
	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`

	// ConnectBackoff is the multiplier applied to the dial timeout after
	// each round; no reply timeout is applied.
	ConnectBackoff float64 `yaml:"connect_backoff"`

	// ConnectSleepMs is the sleep between rendezvous rounds.
	ConnectSleepMs int `yaml:"connect_sleep_ms"`

	// ConnectTimeLimitS is the overall bootstrap deadline in seconds.
	ConnectTimeLimitS int `yaml:"connect_timelimit_s"`

	// DebugLevel is 0 for errors only, increasing values add per-rank
	// diagnostics.
	DebugLevel int `yaml:"debug_level"`

	// BufferSize is the default Byte Buffer capacity in bytes.
	BufferSize int `yaml:"buffer_size"`

	// BufferMaxSize is parsed but not read by any package in this
	// module; a Byte Buffer's capacity is fixed at buffer.New and never
	// grows.
	BufferMaxSize int `yaml:"buffer_max_size"`

	// CacheExpireThresholdS is an idle-age threshold in seconds. It is
	// parsed but not passed to Cache.Expire by any caller in this module;
	// Cache.Expire measures age in epochs, not seconds.
	CacheExpireThresholdS int `yaml:"cache_expire_threshold_s"`

	// DataDir is the directory BoltContentStore opens its database in.
	DataDir string `yaml:"data_dir"`
}

// Default returns the compiled-in defaults, matching the original's
// connect_* constants and sensible sizing for the buffer/cache.
func Default() Config {
	return Config{
		ConnectTimeoutMs:      500,
		ConnectBackoff:        2.0,
		ConnectSleepMs:        250,
		ConnectTimeLimitS:     30,
		DebugLevel:            0,
		BufferSize:            4096,
		BufferMaxSize:         0,
		CacheExpireThresholdS: 300,
		DataDir:               ".",
	}
}

// Load reads a YAML config file at path, applying its fields over the
// defaults; a missing file is not an error — Default() is returned
// unmodified to let flag/env overrides apply on their own.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, ferror.Wrap(ferror.Inval, err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, ferror.Wrap(ferror.Inval, err, "parse config file %s", path)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg's fields from FLUXCORE_-prefixed environment
// variables when set. Call it after Load so env vars layer on top of
// the YAML file and beneath any CLI flag overrides applied afterward.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv("FLUXCORE_CONNECT_TIMEOUT_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.ConnectTimeoutMs = n
		}
	}
	if v, ok := os.LookupEnv("FLUXCORE_CONNECT_BACKOFF"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ConnectBackoff = f
		}
	}
	if v, ok := os.LookupEnv("FLUXCORE_CONNECT_SLEEP_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.ConnectSleepMs = n
		}
	}
	if v, ok := os.LookupEnv("FLUXCORE_CONNECT_TIMELIMIT_S"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.ConnectTimeLimitS = n
		}
	}
	if v, ok := os.LookupEnv("FLUXCORE_DEBUG_LEVEL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.DebugLevel = n
		}
	}
	if v, ok := os.LookupEnv("FLUXCORE_DATA_DIR"); ok {
		c.DataDir = v
	}
}

// ConnectTimeout returns ConnectTimeoutMs as a time.Duration.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// ConnectSleep returns ConnectSleepMs as a time.Duration.
func (c Config) ConnectSleep() time.Duration {
	return time.Duration(c.ConnectSleepMs) * time.Millisecond
}

// ConnectTimeLimit returns ConnectTimeLimitS as a time.Duration.
func (c Config) ConnectTimeLimit() time.Duration {
	return time.Duration(c.ConnectTimeLimitS) * time.Second
}

// CacheExpireThreshold returns CacheExpireThresholdS as a
// time.Duration.
func (c Config) CacheExpireThreshold() time.Duration {
	return time.Duration(c.CacheExpireThresholdS) * time.Second
}

// BootstrapConnectConfig derives pkg/bootstrap's ConnectConfig from the
// shared configuration, so fluxd's config file is the single source of
// truth for the rendezvous scan's timing.
func (c Config) BootstrapConnectConfig() bootstrap.ConnectConfig {
	return bootstrap.ConnectConfig{
		ConnectTimeout:   c.ConnectTimeout(),
		ConnectBackoff:   c.ConnectBackoff,
		ConnectSleep:     c.ConnectSleep(),
		ConnectTimeLimit: c.ConnectTimeLimit(),
	}
}
