package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bdobrica/Saikoro/common/observability"
	"github.com/bdobrica/Saikoro/common/version"
	"github.com/bdobrica/Saikoro/internal/saikoro/app"
	"github.com/bdobrica/Saikoro/internal/saikoro/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("SAIKORO_CONFIG"), "path to the YAML config file (env SAIKORO_CONFIG)")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Saikoro %s\n", version.Info())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.Setup(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting Saikoro",
		"version", version.Version,
		"commit", version.GitCommit,
		"build_time", version.BuildTime,
		"config", cfg)

	saikoro, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Saikoro: %v\n", err)
		os.Exit(1)
	}
	defer saikoro.Stop()

	if err := saikoro.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Saikoro: %v\n", err)
		os.Exit(1)
	}
}
