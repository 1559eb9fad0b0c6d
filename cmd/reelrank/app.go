package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"reelrank/internal/config"
	"reelrank/internal/ledger"
	"reelrank/internal/logging"
	"reelrank/internal/model"
	"reelrank/internal/recommend"
	"reelrank/internal/store"
	"reelrank/internal/store/badgerkv"
	"reelrank/internal/store/sqlite"
)

const defaultConfigPath = "./reelrank.yaml"

// app bundles the components every data command needs.
type app struct {
	cfg     config.Config
	store   store.Store
	catalog model.MetadataLookup
	ledger  *ledger.Ledger
	ranker  *recommend.Ranker
	logger  zerolog.Logger
}

func (a *app) Close() error { return a.store.Close() }

func configFlag(set *flag.FlagSet) *string {
	return set.String("config", defaultConfigPath, "config path")
}

// loadConfig reads path; a missing default config falls back to defaults plus env.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || path != defaultConfigPath {
			return cfg, err
		}
		cfg = config.Default()
		cfg.ResolveEnv()
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	logging.Init(cfg.Log)
	return cfg, nil
}

func openStore(cfg config.StorageConfig) (store.Store, error) {
	if cfg.Driver == config.DriverBadger {
		db, err := badgerkv.Open(badgerkv.Options{Path: cfg.Path, SyncWrites: true})
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqlite.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func openApp(cfgPath string) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	s, err := openStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store at %s: %w", cfg.Storage.Driver, cfg.Storage.Path, err)
	}
	logger := logging.Logger()
	catalog := store.Catalog(s, logger)
	return &app{
		cfg:     cfg,
		store:   s,
		catalog: catalog,
		ledger:  ledger.New(s, ledger.Options{Lookup: catalog, Logger: logger}),
		ranker:  recommend.NewRanker(s, catalog, recommend.Options{Rand: recommend.NewRand(cfg.Ranking.Seed), Logger: logger}),
		logger:  logger,
	}, nil
}

func fail(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}
