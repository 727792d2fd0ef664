package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tazhate/calsync/config"
	"github.com/tazhate/calsync/internal/scheduler"
	"github.com/tazhate/calsync/internal/server"
	"github.com/tazhate/calsync/internal/storage"
	syncengine "github.com/tazhate/calsync/internal/sync"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	engine := syncengine.NewEngine(store, nil, cfg.HTTPTimeout)
	sched := scheduler.New(engine)

	// Re-arm timers for everything configured before this restart.
	sources, err := store.ListSources()
	if err != nil {
		log.Fatalf("Failed to list sources: %v", err)
	}
	for _, src := range sources {
		sched.UpsertSource(src)
	}
	destinations, err := store.ListDestinations()
	if err != nil {
		log.Fatalf("Failed to list destinations: %v", err)
	}
	for _, dst := range destinations {
		sched.UpsertDestination(dst)
	}

	sched.Start()

	srv := server.New(cfg, store, sched)
	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	if cfg.AuthEnabled() {
		log.Printf("HTTP Basic Auth enabled for user %q", cfg.APIUsername)
	} else {
		log.Println("HTTP Basic Auth disabled (API_USERNAME/API_PASSWORD not set)")
	}
	log.Println("calsync started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping server: %v", err)
	}

	log.Println("calsync stopped")
}
