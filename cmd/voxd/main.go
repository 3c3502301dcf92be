package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxlabs/voxd/internal/config"
	"github.com/voxlabs/voxd/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		model       string
		language    string
		socketPath  string
		maxSeconds  int
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&model, "model", "", "Model name or path (overrides config)")
	flag.StringVar(&language, "language", "", "Language code (overrides config)")
	flag.StringVar(&socketPath, "socket", "", "Control socket path (overrides config)")
	flag.IntVar(&maxSeconds, "max-seconds", 0, "Maximum recording duration in seconds (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(config.LoadOptions{
		ExplicitPath: configPath,
		Overrides: config.Overrides{
			Model:               model,
			Language:            language,
			SocketPath:          socketPath,
			MaxRecordingSeconds: maxSeconds,
		},
	})
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("daemon exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
