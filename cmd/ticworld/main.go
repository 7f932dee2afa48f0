// Command ticworld runs a simulation world headless: `run` advances a
// fixed number of tics and prints a summary, `serve` ticks in real time
// and streams replication frames over a websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ticworld/kernel/internal/config"
	"github.com/ticworld/kernel/internal/core/event"
	"github.com/ticworld/kernel/internal/data"
	"github.com/ticworld/kernel/internal/kernel"
	"github.com/ticworld/kernel/internal/persist"
	"github.com/ticworld/kernel/internal/physics"
	"github.com/ticworld/kernel/internal/scripting"
	"github.com/ticworld/kernel/internal/stream"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func usage() error {
	return errors.New("usage: ticworld run|serve [-config path] [-tics n]")
}

func run(args []string) error {
	if len(args) == 0 {
		return usage()
	}
	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	cfgPath := fs.String("config", "config/ticworld.toml", "config file (overridden by "+config.EnvPath+")")
	tics := fs.Int("tics", 0, "tics to run (run only, 0 = sim.tics from the config)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	path := *cfgPath
	if p := os.Getenv(config.EnvPath); p != "" {
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *tics > 0 {
		cfg.Sim.Tics = *tics
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cmd, path)

	w, err := buildWorld(cfg, log)
	if err != nil {
		return err
	}
	defer w.Close()

	switch cmd {
	case "run":
		return runBatch(cfg, w, log)
	case "serve":
		return serve(cfg, w, log)
	}
	return usage()
}

// buildWorld creates the world, spawns the scenario and registers the
// manifest scripts.
func buildWorld(cfg *config.Config, log *zap.Logger) (*kernel.World, error) {
	printSection("World")
	mode, err := physics.ParseMode(cfg.Sim.RuntimeMode)
	if err != nil {
		return nil, err
	}
	policy, err := scripting.ParsePolicy(cfg.Sim.FailurePolicy)
	if err != nil {
		return nil, err
	}
	w, err := kernel.CreateWorld(kernel.Options{
		Seed:            cfg.Sim.Seed,
		TicDuration:     cfg.Sim.TicDuration,
		RuntimeMode:     mode,
		Logger:          log,
		FailurePolicy:   policy,
		MaxEventCascade: cfg.Sim.MaxEventCascade,
	})
	if err != nil {
		return nil, fmt.Errorf("create world: %w", err)
	}
	printOK(fmt.Sprintf("%s physics, %s tics", mode, cfg.Sim.TicDuration))

	if cfg.Scenario.Path != "" {
		sc, err := data.LoadScenario(cfg.Scenario.Path)
		if err != nil {
			w.Close()
			return nil, err
		}
		if _, err := sc.Spawn(w.ECS(), w.Components()); err != nil {
			w.Close()
			return nil, fmt.Errorf("spawn scenario: %w", err)
		}
		printStat("entities", len(w.ECS().Entities()))
	}
	if cfg.Scripts.Manifest != "" {
		m, err := data.LoadManifest(cfg.Scripts.Manifest)
		if err != nil {
			w.Close()
			return nil, err
		}
		if err := m.Apply(w.Scripts()); err != nil {
			w.Close()
			return nil, fmt.Errorf("register scripts: %w", err)
		}
		printStat("scripts", len(m.Scripts))
	}
	fmt.Println()
	return w, nil
}

func runBatch(cfg *config.Config, w *kernel.World, log *zap.Logger) error {
	ctx := context.Background()
	rec, err := persist.Open(ctx, cfg.Recorder, log.Named("recorder"))
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	if rec != nil {
		defer rec.Close()
	}
	tape := persist.NewTape(rec, cfg.Recorder.KeyframeEvery)

	start := time.Now()
	counts := make(map[string]int)
	if _, err := tape.Record(ctx, w); err != nil {
		return err
	}
	for i := 0; i < cfg.Sim.Tics; i++ {
		if err := w.RunTics(1); err != nil {
			return err
		}
		for _, ev := range w.DrainEventQueue() {
			counts[ev.Channel()]++
		}
		if _, err := tape.Record(ctx, w); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	printSection("Summary")
	printStat("tics", int(w.Tic()))
	channels := make([]string, 0, len(counts))
	for ch := range counts {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		printStat("events "+ch, counts[ch])
	}
	printStat("script errors", len(w.Scripts().DrainCommandErrors())+len(w.Scripts().DrainEventErrors())+len(w.Scripts().DrainHookErrors()))
	if rec != nil {
		st, err := rec.Stats(ctx)
		if err != nil {
			return err
		}
		printStat("frames", int(st.Frames))
		printOK(fmt.Sprintf("recorded %s (%s before compression)", humanize.Bytes(uint64(st.Bytes)), humanize.Bytes(uint64(st.RawBytes))))
	}
	printOK("digest " + w.DigestHex())
	printOK(fmt.Sprintf("%s tics in %s", humanize.Comma(int64(w.Tic())), elapsed.Round(time.Millisecond)))
	log.Info("run finished", zap.Uint64("tic", w.Tic()), zap.String("digest", w.DigestHex()), zap.Duration("elapsed", elapsed))
	return nil
}

func serve(cfg *config.Config, w *kernel.World, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, err := persist.Open(ctx, cfg.Recorder, log.Named("recorder"))
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	if rec != nil {
		defer rec.Close()
	}
	tape := persist.NewTape(rec, cfg.Recorder.KeyframeEvery)

	hub := stream.NewHub(stream.Config{SendBuffer: cfg.Stream.SendBuffer, WriteTimeout: cfg.Stream.WriteTimeout}, log.Named("stream"))
	defer hub.Close()
	var srv *http.Server
	if cfg.Stream.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Stream.Path, hub)
		srv = &http.Server{Addr: cfg.Stream.BindAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("stream server stopped", zap.Error(err))
			}
		}()
	}

	publish := func() error {
		f, err := tape.Record(ctx, w)
		if err != nil {
			return err
		}
		hub.Publish(f.Payload)
		return nil
	}
	if err := publish(); err != nil {
		return err
	}

	printSection("Ready")
	if srv != nil {
		printReady(fmt.Sprintf("streaming on ws://%s%s", cfg.Stream.BindAddress, cfg.Stream.Path))
	}
	printReady(fmt.Sprintf("tic loop started (tic: %s)", cfg.Sim.TicDuration))
	fmt.Println()

	ticker := time.NewTicker(cfg.Sim.TicDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.RunTics(1); err != nil {
				return err
			}
			for _, ev := range w.DrainEventQueue() {
				if c, ok := ev.(event.Consumed); ok {
					log.Debug("consumed", zap.Uint64("eater", uint64(c.Eater)), zap.Uint64("item", uint64(c.Item)))
				}
			}
			if err := publish(); err != nil {
				return err
			}
		case <-ctx.Done():
			log.Info("shutdown signal received", zap.Uint64("tic", w.Tic()), zap.Int("subscribers", hub.Subscribers()))
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
