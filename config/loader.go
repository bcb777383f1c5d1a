// Package config loads and validates the application's YAML
// configuration.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"pakrail.dev/telemetry"
)

const (
	DefaultPort         = 16380
	DefaultPollInterval = 60 * time.Second
)

// Load reads and validates a config file, filling in defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML config bytes.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	v := validator.New()
	if err := v.Struct(cfg.Feed); err != nil {
		return nil, err
	}
	if err := v.Struct(cfg.Engine); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if err := v.Struct(cfg.Server); err != nil {
		return nil, err
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if err := v.Struct(cfg.Storage); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PollInterval returns the feed poll interval, defaulted.
func (c *AppConfig) PollInterval() time.Duration {
	if c.Feed.PollIntervalMS <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.Feed.PollIntervalMS) * time.Millisecond
}

// EngineOptions converts config overrides into engine options. Unset
// fields keep the engine defaults.
func (c *AppConfig) EngineOptions() *telemetry.Options {
	opts := telemetry.DefaultOptions()
	e := c.Engine
	if e.UnrealisticDelayMin > 0 {
		opts.UnrealisticDelayMin = e.UnrealisticDelayMin
	}
	if e.UntrustedETAMin > 0 {
		opts.UntrustedETAMin = e.UntrustedETAMin
	}
	if e.FeedETAPastSlackMin > 0 {
		opts.FeedETAPastSlackMin = e.FeedETAPastSlackMin
	}
	if e.MidnightWrapMin > 0 {
		opts.MidnightWrapMin = e.MidnightWrapMin
	}
	if e.ETACacheTTLMin > 0 {
		opts.ETACacheTTL = time.Duration(e.ETACacheTTLMin) * time.Minute
	}
	if e.CacheMinLeadMin > 0 {
		opts.CacheMinLeadMin = e.CacheMinLeadMin
	}
	if e.StaleCompletedAgeMin > 0 {
		opts.StaleCompletedAge = time.Duration(e.StaleCompletedAgeMin) * time.Minute
	}
	if e.RecentDateWindow > 0 {
		opts.RecentDateWindow = e.RecentDateWindow
	}
	if e.DedupDateWindow > 0 {
		opts.DedupDateWindow = e.DedupDateWindow
	}
	if e.DedupInstancesPerDate > 0 {
		opts.DedupInstancesPerDate = e.DedupInstancesPerDate
	}
	if e.TrackRoutingFactor > 0 {
		opts.TrackRoutingFactor = e.TrackRoutingFactor
	}
	if e.DecelerationFraction > 0 {
		opts.DecelerationFraction = e.DecelerationFraction
	}
	return opts
}
