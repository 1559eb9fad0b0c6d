package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadOverlaysDefaultsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reelrank.yaml")
	yml := "storage:\n  driver: badger\n  path: ./data\nrescore:\n  interval: 90s\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REELRANK_ADDR", ":7000")
	t.Setenv("REELRANK_API_RPS", "2.5")
	t.Setenv("REELRANK_API_BURST", "not-a-number")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Driver != DriverBadger || cfg.Storage.Path != "./data" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Rescore.Interval != 90*time.Second {
		t.Fatalf("interval = %v", cfg.Rescore.Interval)
	}
	if cfg.Server.Addr != ":7000" || cfg.Server.RequestsPerSecond != 2.5 || cfg.Server.Burst != 40 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log defaults lost: %+v", cfg.Log)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	cfg := Default()
	cfg.Ranking.Seed = 99
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Ranking.Seed != 99 || got.Rescore.Interval != cfg.Rescore.Interval {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"driver":   func(c *Config) { c.Storage.Driver = "postgres" },
		"path":     func(c *Config) { c.Storage.Path = "" },
		"rps":      func(c *Config) { c.Server.RequestsPerSecond = -1 },
		"burst":    func(c *Config) { c.Server.Burst = -3 },
		"interval": func(c *Config) { c.Rescore.Interval = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
