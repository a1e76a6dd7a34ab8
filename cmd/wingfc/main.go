//go:build !tinygo

// Command wingfc flies the flight controller against the simulated airframe.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/BryanSouza91/WingFC/internal/bench"
	"github.com/BryanSouza91/WingFC/internal/config"
	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/sim"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		duration   = flag.Duration("duration", 10*time.Second, "stop after this long, 0 runs until interrupted")
		level      = flag.String("log-level", "", "log level, overrides the configuration")
	)
	flag.Parse()

	if err := run(*configPath, *duration, *level); err != nil {
		log.Errorf("wingfc: %v", err)
		os.Exit(1)
	}
}

func run(configPath string, duration time.Duration, level string) error {
	logger := log.Default()
	if level != "" {
		logger.SetLevel(log.ParseLevel(level))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if level == "" {
		logger.SetLevel(cfg.Level())
	}

	b, err := bench.New(cfg, sim.DefaultScript(cfg.RC), logger)
	if err != nil {
		return errors.Wrap(err, "build bench")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	err = b.Run(ctx)
	roll, pitch := b.Rig.Body.Angles()
	logger.WithFields(log.Fields{
		"state":  b.Supervisor().State(),
		"cycles": b.Runner.Cycles(),
		"errors": b.Runner.Errors(),
		"roll":   roll,
		"pitch":  pitch,
	}).Info("simulation finished")

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
