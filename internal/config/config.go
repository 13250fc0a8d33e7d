// Package config loads cattleshedd's daemon configuration from a YAML
// file, with environment variables taking precedence over file values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wandbox-go/cattleshed/internal/compiler"
	"github.com/wandbox-go/cattleshed/internal/workdir"
)

// Config is the daemon's full runtime configuration.
type Config struct {
	ListenAddr   string `yaml:"listen_addr"`
	BaseDir      string `yaml:"base_dir"`
	PtracerPath  string `yaml:"ptracer_path"`
	CatalogPath  string `yaml:"catalog_path"`
	AdminSocket  string `yaml:"admin_socket"`
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	ForwardStdin bool   `yaml:"forward_stdin"`

	DefaultLimits compiler.ResourceLimits `yaml:"default_limits"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		ListenAddr:  ":34567",
		BaseDir:     workdir.DefaultBaseDir,
		PtracerPath: "./ptracer.exe",
		CatalogPath: "./compilers.yaml",
		AdminSocket: "/tmp/wandbox-admin.sock",
		LogLevel:    "info",
	}
}

// envOr returns the value of the environment variable key, or fallback
// if it is unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load reads path (if it exists) over top of Default(), then applies
// CATTLESHED_* environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.ListenAddr = envOr("CATTLESHED_LISTEN_ADDR", cfg.ListenAddr)
	cfg.BaseDir = envOr("CATTLESHED_BASE_DIR", cfg.BaseDir)
	cfg.PtracerPath = envOr("CATTLESHED_PTRACER_PATH", cfg.PtracerPath)
	cfg.CatalogPath = envOr("CATTLESHED_CATALOG_PATH", cfg.CatalogPath)
	cfg.AdminSocket = envOr("CATTLESHED_ADMIN_SOCKET", cfg.AdminSocket)
	cfg.LogLevel = envOr("CATTLESHED_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = envOr("CATTLESHED_LOG_FILE", cfg.LogFile)
	if v := os.Getenv("CATTLESHED_FORWARD_STDIN"); v != "" {
		cfg.ForwardStdin = v == "1" || v == "true"
	}

	return cfg, nil
}
