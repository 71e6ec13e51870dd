package main

import (
	"flag"
	"log/slog"
	"math"
	"os"
	"time"

	"farspace/config"
	"farspace/game"
	"farspace/state"
	"farspace/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "World seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 12000, "Stop after N ticks")
	outputDir := flag.String("output-dir", "", "Output directory for CSV telemetry (empty = config value)")
	storePath := flag.String("store", "", "SQLite session store path (empty = in-memory session)")
	restore := flag.Bool("restore", false, "Restore the latest snapshot from the store before running")
	snapshotEvery := flag.Int("snapshot-every", 0, "Save a snapshot every N ticks (0 = only at exit)")
	verify := flag.Int("verify-every", 0, "Run a twin simulation and compare state hashes every N ticks")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *seed != 0 {
		cfg.Simulation.WorldSeed = *seed
	}
	if cfg.Simulation.WorldSeed == 0 {
		cfg.Simulation.WorldSeed = time.Now().UnixNano()
	}
	if *outputDir != "" {
		cfg.Telemetry.OutputDir = *outputDir
		cfg.Telemetry.Enabled = true
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	var store *state.Store
	if *storePath != "" {
		store, err = state.OpenStore(*storePath, cfg.Simulation.WorldSeed)
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	var output *telemetry.OutputManager
	if cfg.Telemetry.Enabled {
		output, err = telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
		if err != nil {
			logger.Error("failed to open telemetry output", "error", err)
			os.Exit(1)
		}
	}

	g := game.New(cfg, store, output, logger)
	defer g.Close()

	if *restore && store != nil {
		ok, err := g.LoadSnapshot()
		if err != nil {
			logger.Error("failed to restore snapshot", "error", err)
			os.Exit(1)
		}
		if !ok {
			logger.Info("no snapshot to restore, starting fresh")
		}
	}

	// Twin instance for divergence checks. Both receive identical
	// scripted input, so any hash mismatch is a determinism bug.
	var twin *game.Game
	if *verify > 0 {
		twin = game.New(cfg, nil, nil, slog.New(slog.DiscardHandler))
	}

	logger.Info("starting simulation",
		"seed", cfg.Simulation.WorldSeed,
		"tick_rate", cfg.Simulation.TickRate,
		"max_ticks", *maxTicks,
	)

	runScripted(g, twin, cfg, logger, *maxTicks, *snapshotEvery, *verify)

	if store != nil {
		if err := g.SaveSnapshot(); err != nil {
			logger.Error("failed to save final snapshot", "error", err)
		}
	}
	logger.Info("simulation finished", "frame", g.Frame())
}

// runScripted flies one avatar along a slow outward spiral so the
// activation front keeps crossing cell boundaries in both directions.
func runScripted(g, twin *game.Game, cfg *config.Config, logger *slog.Logger, maxTicks, snapshotEvery, verify int) {
	avatar := g.SpawnAvatar(1, 0, 0)
	var twinAvatar = avatar
	if twin != nil {
		twinAvatar = twin.SpawnAvatar(1, 0, 0)
	}

	speed := 40.0 * cfg.Derived.DT
	for tick := 1; tick <= maxTicks; tick++ {
		t := float64(tick) * cfg.Derived.DT
		angle := t * 0.05
		radius := speed * float64(tick) * 0.2
		x := radius * math.Cos(angle)
		y := radius * math.Sin(angle)

		g.MoveAvatar(avatar, x, y)
		g.Tick()

		if twin != nil {
			twin.MoveAvatar(twinAvatar, x, y)
			twin.Tick()
			if tick%verify == 0 {
				compareHashes(g, twin, logger)
			}
		}
		if snapshotEvery > 0 && tick%snapshotEvery == 0 {
			if err := g.SaveSnapshot(); err != nil {
				logger.Error("failed to save snapshot", "error", err)
			}
		}
	}
}

func compareHashes(g, twin *game.Game, logger *slog.Logger) {
	h1, err1 := g.Hash()
	h2, err2 := twin.Hash()
	if err1 != nil || err2 != nil {
		logger.Error("hash computation failed", "primary", err1, "twin", err2)
		return
	}
	if h1 != h2 {
		logger.Error("simulation divergence detected",
			"frame", g.Frame(), "primary", h1, "twin", h2)
		os.Exit(2)
	}
	logger.Debug("consistency check passed", "frame", g.Frame(), "hash", h1)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSONFormat {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
