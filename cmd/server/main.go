package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dolr-ai/videohash-indexer/internal/api"
	"github.com/dolr-ai/videohash-indexer/internal/audit"
	"github.com/dolr-ai/videohash-indexer/internal/config"
	"github.com/dolr-ai/videohash-indexer/internal/coordinator"
)

func main() {
	log.Println("Starting videohash-indexer (in-memory MIH near-duplicate service)...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	auditSink, err := audit.Connect(cfg.AuditDatabaseURL)
	if err != nil {
		log.Printf("Warning: failed to connect audit sink, continuing without persisting verdict log. Error: %v", err)
		auditSink = &audit.Sink{}
	} else if auditSink.Enabled() {
		defer auditSink.Close()
	}

	coord := coordinator.New(coordinator.Config{
		MaxHammingDistance:  cfg.MaxHammingDistance,
		DuplicateSimilarity: cfg.DuplicateSimilarity,
	})

	wsHub := api.NewHub()
	go wsHub.Run()

	r := api.SetupRouter(coord, wsHub, auditSink, cfg.APIAuthToken)

	srv := &http.Server{
		Addr:    cfg.BindAddress,
		Handler: r,
	}

	go func() {
		log.Printf("videohash-indexer listening on %s (hamming threshold=%d, duplicate similarity=%.2f%%)\n",
			cfg.BindAddress, cfg.MaxHammingDistance, cfg.DuplicateSimilarity)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, draining in-flight requests...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("FATAL: graceful shutdown failed: %v", err)
	}

	log.Println("Shutdown complete.")
}
