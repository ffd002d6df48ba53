package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tilecraft/markovgen/pkg/chainstore"
	"github.com/tilecraft/markovgen/pkg/markov"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	demo := flag.String("demo", "all", "demo to run: alphabet, months, tilemap, or all")
	dbPath := flag.String("db", "", "sqlite database to persist trained chains to (overrides config)")
	version := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *version {
		fmt.Printf("markovgen %s (%s, built %s)\n", Version, Commit, BuildDate)
		return
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		config.DatabasePath = *dbPath
	}

	var logLevel slog.Level
	switch strings.ToLower(config.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	if err := run(config, logger, *demo); err != nil {
		logger.Error("demo run failed", "error", err)
		os.Exit(1)
	}
}

func run(config *Config, logger *slog.Logger, demo string) error {
	ctx := context.Background()

	var store *chainstore.Store[rune]
	if config.DatabasePath != "" {
		db, err := initDB(config.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err = chainstore.SetupSchema(db); err != nil {
			return fmt.Errorf("failed to set up schema: %w", err)
		}
		if store, err = chainstore.New[rune](db); err != nil {
			return fmt.Errorf("failed to create chain store: %w", err)
		}
		defer store.Close()
		store.SetLogger(logger)
	}

	demos := []struct {
		name string
		fn   func(*Config, *slog.Logger) (*markov.Chain[rune], error)
	}{
		{"alphabet", runAlphabet},
		{"months", runMonths},
		{"tilemap", runTilemap},
	}

	var matched bool
	for _, d := range demos {
		if demo != "all" && demo != d.name {
			continue
		}
		matched = true

		fmt.Printf("--- %s ---\n", d.name)
		chain, err := d.fn(config, logger)
		if err != nil {
			return fmt.Errorf("%s demo: %w", d.name, err)
		}
		stats := chain.Stats()
		logger.Info("demo completed",
			slog.String("demo", d.name),
			slog.Int("contexts", stats.Contexts),
			slog.Uint64("total_weight", stats.TotalWeight),
		)

		if store != nil {
			if err := store.Save(ctx, d.name, chain); err != nil {
				return fmt.Errorf("failed to save %s chain: %w", d.name, err)
			}
		}
	}
	if !matched {
		return fmt.Errorf("unknown demo %q", demo)
	}

	if store != nil {
		stats, err := store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to read store stats: %w", err)
		}
		logger.Info("chains persisted",
			slog.String("database", config.DatabasePath),
			slog.Int("chain_count", stats.ChainCount),
			slog.Int("context_count", stats.ContextCount),
			slog.Uint64("total_weight", stats.TotalWeight),
		)
	}
	return nil
}
