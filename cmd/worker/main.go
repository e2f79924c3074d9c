package main

import (
	"context"
	"log"
	"os"

	"github.com/vadim/neo-publish/internal/app"
	"github.com/vadim/neo-publish/internal/config"
)

func main() {
	cfg := config.MustLoad()

	ctx := context.Background()

	w, err := app.NewWorker(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize worker: %v", err)
	}

	if err := w.Run(ctx); err != nil {
		log.Printf("worker error: %v", err)
		os.Exit(1)
	}
}
