package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ginmardoa-gif/gps-tracker-final/internal/config"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/detect"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/export"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/ingest"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/stats"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/storage"
	"github.com/ginmardoa-gif/gps-tracker-final/internal/web"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(context.Background()); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	seedVehicles(store)

	detector := &detect.Detector{
		Store: store,
		Options: detect.Options{
			Window:        time.Duration(cfg.StopWindowMinutes) * time.Minute,
			MinSamples:    cfg.StopMinSamples,
			MaxDistanceKM: cfg.StopMaxDistanceKM,
			MinDuration:   time.Duration(cfg.StopMinDurationMinutes) * time.Minute,
		},
	}
	ingestor := &ingest.Ingestor{Store: store, Detector: detector}
	aggregator := &stats.Aggregator{Store: store}
	exporter := &export.Exporter{Store: store}

	webServer := web.NewServer(store, ingestor, aggregator, exporter, cfg.StatsDefaultHours)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      webServer.Routes(cfg.AllowedOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("listening on %s", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// seedVehicles provisions a handful of default vehicles on an empty
// database so that devices have something to report against.
func seedVehicles(store *storage.Store) {
	ctx := context.Background()
	count, err := store.CountVehicles(ctx)
	if err != nil {
		log.Printf("count vehicles: %v", err)
		return
	}
	if count > 0 {
		return
	}
	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("Vehicle %d", i)
		deviceID := fmt.Sprintf("device_%d", i)
		if _, err := store.CreateVehicle(ctx, name, deviceID); err != nil {
			log.Printf("seed vehicle %s: %v", deviceID, err)
			return
		}
	}
	log.Printf("created 5 default vehicles")
}
