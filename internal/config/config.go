package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL         = "http://localhost:8000"
	DefaultRequestTimeout = 15 * time.Second
)

type Config struct {
	APIURL         string   `toml:"api_url"`
	DBPath         string   `toml:"db_path"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"`
	LogFile        string   `toml:"log_file"`
	RequestTimeout Duration `toml:"request_timeout"`
	RateLimit      float64  `toml:"rate_limit"`
	MetricsAddr    string   `toml:"metrics_addr"`
	DevAPIPort     int      `toml:"dev_api_port"`
}

// Duration lets TOML files spell timeouts as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() Config {
	return Config{
		APIURL:         DefaultAPIURL,
		LogLevel:       "info",
		LogFormat:      "text",
		RequestTimeout: Duration{DefaultRequestTimeout},
		DevAPIPort:     8000,
	}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "lazytodo", "config.toml"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// Load reads the file at path and applies the LAZYTODO_* environment.
func Load(path string) (Config, error) {
	config, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ApplyEnv(config)
}

// LoadFile reads the file at path over the defaults. A missing file is not an
// error.
func LoadFile(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return Config{}, err
	}

	if _, err := toml.Decode(string(data), &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ResolveDBPath returns the configured token database path, falling back to
// a file next to the config.
func (c Config) ResolveDBPath(configPath string) string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(filepath.Dir(configPath), "lazytodo.db")
}

func (c Config) ResolveLogFile(configPath string) string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(filepath.Dir(configPath), "lazytodo.log")
}

// ApplyEnv overlays the LAZYTODO_* environment variables on cfg.
func ApplyEnv(cfg Config) (Config, error) {
	cfg.APIURL = strings.TrimRight(getEnv("LAZYTODO_API_URL", cfg.APIURL), "/")
	cfg.DBPath = getEnv("LAZYTODO_DB_PATH", cfg.DBPath)
	cfg.LogLevel = getEnv("LAZYTODO_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LAZYTODO_LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsAddr = getEnv("LAZYTODO_METRICS_ADDR", cfg.MetricsAddr)

	if raw := os.Getenv("LAZYTODO_REQUEST_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("LAZYTODO_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = Duration{timeout}
	}
	if raw := os.Getenv("LAZYTODO_RATE_LIMIT"); raw != "" {
		limit, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("LAZYTODO_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = limit
	}
	if cfg.RequestTimeout.Duration <= 0 {
		cfg.RequestTimeout = Duration{DefaultRequestTimeout}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
