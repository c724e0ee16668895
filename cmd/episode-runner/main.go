// Command episode-runner plays curriculum episodes against a scripted game
// with a random policy and serves introspection over HTTP.
package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/UoA-CARES/pyboy-environment/internal/api"
	"github.com/UoA-CARES/pyboy-environment/internal/config"
	"github.com/UoA-CARES/pyboy-environment/internal/curriculum"
	"github.com/UoA-CARES/pyboy-environment/internal/emulator"
	"github.com/UoA-CARES/pyboy-environment/internal/episode"
	"github.com/UoA-CARES/pyboy-environment/internal/novelty"
	"github.com/UoA-CARES/pyboy-environment/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "[RUNNER] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) (err error) {
	source, err := cfg.Script()
	if err != nil {
		return err
	}
	emu, err := emulator.NewScriptEmulator(ctx, source, emulator.Options{
		SnapshotDir: cfg.CheckpointDir,
		Seed:        cfg.Seed,
	})
	if err != nil {
		return err
	}

	registry := curriculum.NewRegistry(log.New(os.Stdout, "[CURRICULUM] ", log.LstdFlags))
	detector := novelty.NewDetector(novelty.Options{
		Threshold: cfg.NoveltyThreshold,
		MaxFrames: cfg.NoveltyMaxFrames,
		Rand:      rand.New(rand.NewSource(cfg.Seed)),
	})
	driver := episode.NewDriver(emu, cfg.Episode(), registry, detector, log.New(os.Stdout, "[EPISODE] ", log.LstdFlags))
	defer func() { err = multierr.Append(err, driver.Close()) }()

	var history api.EpisodeHistory
	if cfg.DBPath != "" {
		db, err := store.Open(ctx, cfg.DBPath)
		if err != nil {
			return err
		}
		cps, err := db.ListCheckpoints(ctx)
		if err != nil {
			return multierr.Append(err, db.Close())
		}
		registry.Restore(cps)
		registry.SetPersister(db)
		driver.SetRecorder(db)
		history = db
		logger.Printf("store_opened path=%s checkpoints=%d", cfg.DBPath, len(cps))
	}

	g, ctx := errgroup.WithContext(ctx)

	runner := &episode.Runner{
		Driver:   driver,
		Policy:   episode.NewRandomPolicy(cfg.Seed),
		Episodes: cfg.Episodes,
	}
	runDone := make(chan struct{})
	g.Go(func() error {
		defer close(runDone)
		logger.Printf("runner_start episodes=%d stages=%d seed=%d", cfg.Episodes, len(cfg.Plan), cfg.Seed)
		return runner.Run(ctx)
	})

	if cfg.Port != "" {
		srv := &http.Server{
			Addr:         net.JoinHostPort("127.0.0.1", cfg.Port),
			Handler:      api.NewServer(driver, registry, history).Routes(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Printf("server_start addr=%s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-ctx.Done():
			case <-runDone:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Printf("runner_done checkpoints=%d", registry.Len())
	return nil
}
