package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"pakrail.dev/telemetry"
	"pakrail.dev/telemetry/feed"
	"pakrail.dev/telemetry/model"
	"pakrail.dev/telemetry/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live map API server",
	RunE:  serve,
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer st.Close()

	manager := buildManager(cfg, st)
	reconciler := telemetry.NewReconciler(cfg.EngineOptions(), nil)
	if err := manager.RestoreETACache(reconciler); err != nil {
		log.Printf("Restoring ETA cache failed: %v", err)
	}

	store := server.NewStore()
	if cfg.Feed.ScheduleURL != "" {
		ctx := context.Background()
		if err := manager.RefreshSchedule(ctx, cfg.Feed.ScheduleURL, cfg.Feed.Headers); err != nil {
			log.Printf("Schedule refresh failed: %v", err)
		}
		sched, err := manager.LoadSchedule(cfg.Feed.ScheduleURL)
		if err != nil && err != telemetry.ErrNoSchedule {
			return err
		}
		store.UpdateSchedule(sched)
	}

	// The reconciler is single-threaded; the poller and the
	// refresh endpoint both drive it.
	var reconcileMu sync.Mutex
	reconcile := func(trains []model.TrainSnapshot) {
		reconcileMu.Lock()
		defer reconcileMu.Unlock()
		store.UpdateTrains(reconciler.Reconcile(trains, store.Schedule()))
		if err := manager.SaveETACache(reconciler); err != nil {
			log.Printf("Saving ETA cache failed: %v", err)
		}
		if err := manager.PurgeETACache(time.Now().Add(-telemetry.DefaultETACacheTTL)); err != nil {
			log.Printf("Purging ETA cache failed: %v", err)
		}
	}

	poller := feed.NewManager(
		cfg.Feed.LiveURLs,
		cfg.Feed.Headers,
		manager.Downloader,
		cfg.PollInterval(),
		reconcile,
	)
	poller.Start()
	defer poller.Stop()

	router := mux.NewRouter()
	handler := server.NewHandler(store, func() error {
		ctx := context.Background()
		trains, err := manager.LoadLive(ctx, cfg.Feed.LiveURLs[0], cfg.Feed.Headers)
		if err != nil {
			return err
		}
		reconcile(trains)
		return nil
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Printf("Shutting down")
		return srv.Shutdown(context.Background())
	}
}
