package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/workbook/internal/backend"
	"github.com/matheus3301/workbook/internal/bus"
	"github.com/matheus3301/workbook/internal/channel"
	"github.com/matheus3301/workbook/internal/config"
	"github.com/matheus3301/workbook/internal/daemon"
	"github.com/matheus3301/workbook/internal/logging"
	"github.com/matheus3301/workbook/internal/profile"
	"github.com/matheus3301/workbook/internal/tui"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	local := flag.Bool("local", false, "start a local workbookd for the profile if none is running")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(profile.LogPath(name, "workbook"), logging.Options{Profile: name, Program: "workbook"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *local {
		if err := ensureDaemon(name); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	events := bus.New()
	app := tui.NewApp(tui.Deps{
		Profile: name,
		Config:  cfg,
		Backend: backend.NewClient(cfg.API.BaseURL, backend.StaticToken(cfg.API.Token), backend.WithLogger(logger)),
		Channel: channel.FromConfig(cfg, channel.Options{Logger: logger, Bus: events}),
		Bus:     events,
		Logger:  logger,
	})
	if err := app.Run(); err != nil {
		logger.Error("tui exited", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// ensureDaemon probes the profile's daemon and starts one when nothing answers.
func ensureDaemon(name string) error {
	socketPath := profile.SocketPath(name)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if h, err := daemon.Probe(ctx, socketPath); err == nil && h.Serving {
		return nil
	}

	fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", name)
	if err := daemon.Spawn(name); err != nil {
		return err
	}
	if !daemon.WaitReady(context.Background(), socketPath, 10*time.Second) {
		return fmt.Errorf("daemon did not become ready")
	}
	return nil
}
