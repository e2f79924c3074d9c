package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vadim/neo-publish/internal/config"
	"github.com/vadim/neo-publish/internal/dashboard"
)

// clearScreen moves the cursor home and clears the terminal
const clearScreen = "\033[H\033[2J"

func main() {
	cfg := config.MustLoad()

	if cfg.Dashboard.Token == "" {
		log.Fatal("DASHBOARD_TOKEN is required")
	}

	// stdout belongs to the rendered view
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := dashboard.NewClient(cfg.Dashboard.APIURL, cfg.Dashboard.Token)
	poller := dashboard.NewPoller(client, logger,
		dashboard.WithInterval(cfg.Dashboard.Interval),
		dashboard.OnChange(func(s dashboard.Snapshot) {
			fmt.Fprint(os.Stdout, clearScreen)
			if err := dashboard.Render(os.Stdout, s); err != nil {
				logger.Error("render failed", "error", err)
			}
		}),
	)

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("dashboard error: %v", err)
		os.Exit(1)
	}
}
