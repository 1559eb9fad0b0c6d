package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"reelrank/internal/logging"
)

const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Config is the application's configuration model.
type Config struct {
	Storage StorageConfig  `yaml:"storage"`
	Server  ServerConfig   `yaml:"server"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Ranking RankingConfig  `yaml:"ranking"`
	Rescore RescoreConfig  `yaml:"rescore"`
	Log     logging.Config `yaml:"log"`
}

type StorageConfig struct {
	// sqlite (a single file) or badger (a directory)
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Per-client request budget; zero disables throttling
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type RankingConfig struct {
	// Seed for the ranking random source; 0 seeds from the clock
	Seed int64 `yaml:"seed"`
}

type RescoreConfig struct {
	// Zero disables the background rescore loop
	Interval time.Duration `yaml:"interval"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: DriverSQLite, Path: "./reelrank.db"},
		Server:  ServerConfig{Addr: ":8080", RequestsPerSecond: 20, Burst: 40},
		Metrics: MetricsConfig{Addr: ":9090"},
		Rescore: RescoreConfig{Interval: 5 * time.Minute},
		Log:     logging.Config{Level: "info", Format: "json"},
	}
}

// ResolveEnv applies environment overrides. Unparseable numbers are ignored.
func (c *Config) ResolveEnv() {
	if v := os.Getenv("REELRANK_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("REELRANK_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("REELRANK_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("REELRANK_API_RPS"), 64); err == nil {
		c.Server.RequestsPerSecond = v
	}
	if v, err := strconv.Atoi(os.Getenv("REELRANK_API_BURST")); err == nil {
		c.Server.Burst = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverBadger:
	default:
		return fmt.Errorf("storage.driver %q: want %s or %s", c.Storage.Driver, DriverSQLite, DriverBadger)
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path is empty")
	}
	if c.Server.RequestsPerSecond < 0 || c.Server.Burst < 0 {
		return errors.New("server rate limits must not be negative")
	}
	if c.Rescore.Interval < 0 {
		return errors.New("rescore.interval must not be negative")
	}
	return nil
}

// Load reads YAML config from path on top of Default and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
