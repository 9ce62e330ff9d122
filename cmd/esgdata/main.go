package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/verdantis/esgdata-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		a.Log.Error("Failed to start background consumers", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		a.Log.Info("Shutdown signal received")
		a.Close()
	}()

	fmt.Printf("Server listening on %s\n", a.Cfg.HTTPAddr)
	if err := a.Run(); err != nil {
		a.Log.Warn("Server failed", "error", err)
	}
}
