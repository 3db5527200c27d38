package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

// Config holds the runtime configuration for the engine service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Sandbox  SandboxConfig  `koanf:"sandbox"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig contains the HTTP delivery surface settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// BaseURL is used when generating dereferenceable webhook URLs.
	BaseURL string `koanf:"base_url"`
}

// CatalogConfig locates the template store.
type CatalogConfig struct {
	TemplateDir string `koanf:"template_dir"`
}

// ScheduleConfig tunes the scheduler poll loop.
type ScheduleConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	Timezone     string        `koanf:"timezone"`
}

// SandboxConfig bounds the execution sandbox pool.
type SandboxConfig struct {
	MaxPoolSize     int           `koanf:"max_pool_size"`
	MaxAge          time.Duration `koanf:"max_age"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	ExecTimeout     time.Duration `koanf:"exec_timeout"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// Default returns the configuration used when no overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8123,
			BaseURL: "http://localhost:8123",
		},
		Catalog: CatalogConfig{
			TemplateDir: "./templates",
		},
		Schedule: ScheduleConfig{
			PollInterval: time.Minute,
			Timezone:     "UTC",
		},
		Sandbox: SandboxConfig{
			MaxPoolSize:     100,
			MaxAge:          time.Hour,
			CleanupInterval: 5 * time.Minute,
			ExecTimeout:     10 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

const envPrefix = "CODEMODE_"

// Load builds the configuration from defaults overridden by CODEMODE_*
// environment variables. The first underscore separates the section from
// the key, so CODEMODE_SERVER_PORT maps to server.port and
// CODEMODE_SANDBOX_MAX_POOL_SIZE to sandbox.max_pool_size.
func Load() (*Config, error) {
	k := koanf.New(".")
	cfg := Default()
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.Replace(key, "_", ".", 1), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
