package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"pakrail.dev/telemetry"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Fetch and reconcile one live feed batch",
	RunE:  live,
}

func live(cmd *cobra.Command, args []string) error {
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
	ctx := context.Background()

	var sched *telemetry.ScheduleIndex
	if cfg.Feed.ScheduleURL != "" {
		if err := manager.RefreshSchedule(ctx, cfg.Feed.ScheduleURL, cfg.Feed.Headers); err != nil {
			log.Printf("Schedule refresh failed: %v", err)
		}
		sched, err = manager.LoadSchedule(cfg.Feed.ScheduleURL)
		if err != nil && err != telemetry.ErrNoSchedule {
			return err
		}
	}

	trains, err := manager.LoadLive(ctx, cfg.Feed.LiveURLs[0], cfg.Feed.Headers)
	if err != nil {
		return err
	}

	reconciler := telemetry.NewReconciler(cfg.EngineOptions(), nil)
	for _, t := range reconciler.Reconcile(trains, sched) {
		delay := "?"
		if t.DelayKnown {
			delay = fmt.Sprintf("%+d min", t.DelayMinutes)
		}
		fmt.Printf("%-6s %-30s -> %-25s ETA %-5s delay %-8s %5.1f%%\n",
			t.TrainNumber, t.TrainName, t.NextStation, t.ETATime, delay, t.ProgressPercent)
	}

	return nil
}
