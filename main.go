package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gen2brain/malgo"

	"github.com/arung-agamani/denpa-studio/config"
	"github.com/arung-agamani/denpa-studio/internal/graph"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()

	slog.Info("starting denpa-studio",
		"block_size", cfg.BlockSize,
		"sample_rate", cfg.SampleRate,
		"station_name", cfg.StationName,
	)

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Warn("malgo", "message", msg)
	})
	if err != nil {
		slog.Error("failed to initialize audio context", "error", err)
		os.Exit(1)
	}
	defer malgoCtx.Free()

	controller, err := graph.NewController(graph.Options{
		BlockSize:     cfg.BlockSize,
		SampleRate:    cfg.SampleRate,
		MalgoCtx:      malgoCtx,
		StorePath:     cfg.StorePath,
		OperatorToken: cfg.OperatorToken,
		TrackResolver: func(trackID string) (string, error) {
			// The library/database lookup behind an opaque track ID is out
			// of scope for this core; trackID is treated as a path directly
			// until an embedding layer supplies a real resolver.
			if trackID == "" {
				return "", fmt.Errorf("empty track id")
			}
			return trackID, nil
		},
	})
	if err != nil {
		slog.Error("failed to construct controller", "error", err)
		os.Exit(1)
	}
	defer controller.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := controller.Restore(ctx); err != nil {
		slog.Error("failed to restore persisted graph", "error", err)
		os.Exit(1)
	}
	slog.Info("graph restored",
		"inputs", len(controller.ListInputs()),
		"outputs", len(controller.ListOutputs()),
		"mixers", len(controller.ListMixers()),
		"live_players", len(controller.ListLivePlayers()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Info("shutdown signal received")
	cancel()
	slog.Info("shutting down")
}
