package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/pthm-cable/strata/config"
	"github.com/pthm-cable/strata/sim"
	"github.com/pthm-cable/strata/storage"
	"github.com/pthm-cable/strata/stream"
	"github.com/pthm-cable/strata/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	snapshotDB := flag.String("snapshot-db", "", "SQLite path for genome/lineage snapshots")
	listen := flag.String("listen", "", "Address for the websocket status stream (empty = disabled)")
	logStats := flag.Bool("log-stats", false, "Output generation stats via slog")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	om, err := telemetry.NewOutputManager(*outputDir, rngSeed)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	defer om.Close()
	if om != nil {
		if err := cfg.WriteYAML(filepath.Join(om.Dir(), "config.yaml")); err != nil {
			slog.Error("failed to snapshot config", "error", err)
			os.Exit(1)
		}
	}

	var hub *stream.Hub
	if *listen != "" {
		hub = stream.NewHub()
		go hub.Run()
		go func() {
			if err := stream.Serve(hub, *listen); err != nil {
				slog.Error("status stream failed", "error", err)
			}
		}()
	}

	s, err := sim.New(sim.Options{
		Config:   cfg,
		Seed:     rngSeed,
		Output:   om,
		LogStats: *logStats,
		Status: func(msg string) {
			slog.Warn("status", "message", msg)
		},
	})
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	if err := s.Setup(); err != nil {
		slog.Error("failed to seed simulation", "error", err)
		os.Exit(1)
	}

	slog.Info("starting simulation",
		"seed", rngSeed,
		"grid_x", cfg.Grid.X,
		"grid_y", cfg.Grid.Y,
		"slots", cfg.Grid.SlotsPerSquare,
		"threads", s.Threads(),
		"max_ticks", *maxTicks,
	)

	start := time.Now()
	for {
		halt, err := s.Iterate()
		if err != nil {
			slog.Error("simulation failed", "iteration", s.Iteration(), "error", err)
			os.Exit(1)
		}

		if hub != nil && s.Iteration()%uint64(cfg.Species.Interval) == 0 {
			hub.Broadcast(stream.CensusFrame{
				Iteration:    s.Iteration(),
				AliveCount:   s.AliveCount(),
				SpeciesCount: len(s.SpeciesList()),
				MeanFitness:  s.MeanFitness(),
			})
		}

		if halt {
			slog.Info("environment exhausted", "iteration", s.Iteration())
			break
		}
		if *maxTicks > 0 && int(s.Iteration()) >= *maxTicks {
			slog.Info("max ticks reached", "iteration", s.Iteration())
			break
		}
	}

	if err := om.WritePhylogeny(s.Tree(), cfg.Species.MinTreeSize, cfg.Species.ExcludeWithDescendants); err != nil {
		slog.Error("failed to write phylogeny", "error", err)
		os.Exit(1)
	}

	if *snapshotDB != "" {
		runID := om.RunID()
		if runID == "" {
			runID = uuid.NewString()
		}
		if err := saveSnapshot(*snapshotDB, runID, rngSeed, s); err != nil {
			slog.Error("failed to save snapshot", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("run complete",
		"iterations", s.Iteration(),
		"alive", humanize.Comma(s.AliveCount()),
		"species", len(s.SpeciesList()),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}

// saveSnapshot persists the final genome census and lineage to SQLite.
func saveSnapshot(path, runID string, seed int64, s *sim.Simulation) error {
	ctx := context.Background()
	store := storage.NewSnapshotStore(path)
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveRun(ctx, runID, seed); err != nil {
		return err
	}
	if err := store.SaveGenomes(ctx, runID, s.Iteration(), s.Grid()); err != nil {
		return err
	}
	if s.Tree() != nil && s.Tree().Len() > 0 {
		if err := store.SaveLineage(ctx, runID, s.Tree()); err != nil {
			return err
		}
	}
	return nil
}
