package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	commonerrors "github.com/gruntwork-io/go-commons/errors"
	"github.com/robmorgan/loopstation/buffer"
	"github.com/robmorgan/loopstation/config"
	"github.com/robmorgan/loopstation/control"
	"github.com/robmorgan/loopstation/input"
	"github.com/robmorgan/loopstation/logger"
	"github.com/robmorgan/loopstation/looper"
	"github.com/robmorgan/loopstation/mixer"
	"github.com/robmorgan/loopstation/output"
	"github.com/robmorgan/loopstation/scheduler"
	"github.com/urfave/cli/v2"
	"k8s.io/utils/clock"
)

func main() {
	app := &cli.App{
		Name:  "loopstation",
		Usage: "record and overdub audio loops in sync",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file"},
			&cli.StringFlag{Name: "osc-addr", Usage: "UDP address for OSC control, empty to disable"},
			&cli.StringFlag{Name: "input-wav", Usage: "stream a WAV file instead of the capture device"},
			&cli.StringFlag{Name: "log-level", Usage: "log level, e.g. debug or info"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return Run(c.Context, cfg, c.String("input-wav"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.GetProjectLogger().Error(commonerrors.PrintErrorWithStackTrace(err))
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.LooperConfig, error) {
	cfg := config.NewLooperConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadLooperConfig(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("osc-addr") {
		cfg.OSCAddr = c.String("osc-addr")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, commonerrors.WithStackTrace(err)
	}
	return cfg, nil
}

// Run starts the looper and blocks until interrupted.
func Run(ctx context.Context, cfg config.LooperConfig, wavPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// initialize the logger
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return commonerrors.WithStackTrace(err)
	}
	logger := logger.GetProjectLogger()

	wg := sync.WaitGroup{}

	logger.Info("Initializing looper...")
	audio := scheduler.NewAudioClock(clock.RealClock{})
	bus := mixer.NewBus(audio)
	lp, err := looper.New(cfg, clock.RealClock{}, audio, bus)
	if err != nil {
		return err
	}
	lp.Run(ctx, &wg)

	logger.Info("Starting audio output...")
	player, err := output.NewPlayer(cfg, bus)
	if err != nil {
		return err
	}
	player.Play()
	defer func() {
		if err := player.Stop(); err != nil {
			logger.Errorf("error stopping audio output: %v", err)
		}
	}()

	if cfg.OSCAddr != "" {
		logger.Info("Starting OSC control...")
		dispatcher, err := control.NewDispatcher(lp)
		if err != nil {
			return err
		}
		if err := control.Serve(ctx, &wg, cfg.OSCAddr, dispatcher); err != nil {
			return err
		}
	}

	handler := func(chunk *buffer.Buffer) { lp.OnAudioProcess(chunk) }
	if wavPath != "" {
		logger.Infof("Streaming %s...", wavPath)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := input.StreamWAV(ctx, wavPath, cfg, clock.RealClock{}, handler); err != nil {
				logger.Errorf("wav input failed: %v", err)
			}
		}()
	} else {
		logger.Info("Starting audio capture...")
		if err := input.NewCapture(cfg, handler).Run(ctx, &wg); err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}

	// handle CTRL+C interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case <-ctx.Done():
	}
	logger.Println("shutting down loopstation")
	cancel()
	wg.Wait()
	return nil
}
