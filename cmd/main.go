package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pakrail.dev/telemetry"
	"pakrail.dev/telemetry/config"
	"pakrail.dev/telemetry/storage"
)

var rootCmd = &cobra.Command{
	Use:          "pakrail",
	Short:        "Pakistan Railways telemetry tool",
	Long:         "Reconciles live train telemetry against the published schedule",
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "Path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(stationsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openStorage(cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    cfg.Storage.Directory != "",
			Directory: cfg.Storage.Directory,
		})
	case "postgres":
		return storage.NewPSQLStorage(cfg.Storage.PostgresDSN, false)
	default:
		return storage.NewMemoryStorage(), nil
	}
}

func buildManager(cfg *config.AppConfig, s storage.Storage) *telemetry.Manager {
	m := telemetry.NewManager(s)
	if cfg.Feed.TimeoutMS > 0 {
		m.LiveTimeout = time.Duration(cfg.Feed.TimeoutMS) * time.Millisecond
		m.ScheduleTimeout = m.LiveTimeout
	}
	m.DistancesCSV = cfg.Feed.DistancesCSV
	return m
}
