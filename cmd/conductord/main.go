// conductord runs a conductor-managed system as a standalone daemon: it
// loads configuration, registers the operational HTTP server and the config
// file watcher as managed components, and blocks until a termination signal
// triggers graceful shutdown.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/conductor-fw/conductor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "conductord: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML or TOML config file (optional)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var (
		cfg *conductor.Config
		err error
	)
	if *configPath != "" {
		cfg, err = conductor.LoadConfig(*configPath)
	} else {
		cfg, err = conductor.ConfigFromEnv()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry := conductor.NewRegistry()
	orch := conductor.New(cfg, registry, logger)

	if *configPath != "" {
		watcher, err := conductor.NewConfigWatcher(*configPath, orch, logger)
		if err != nil {
			return err
		}
		if err := registry.Register(&conductor.Descriptor{
			Name:     "config-watcher",
			Factory:  conductor.StaticFactory(watcher),
			Optional: true,
		}); err != nil {
			return err
		}
	}

	if err := registry.Register(&conductor.Descriptor{
		Name:    "http-server",
		Factory: conductor.StaticFactory(conductor.NewServer(cfg.HTTPAddr, orch, logger)),
	}); err != nil {
		return err
	}

	return orch.Run()
}
