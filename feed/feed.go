// Package feed polls the live telemetry endpoints on an interval and
// delivers merged batches to a consumer.
package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pakrail.dev/telemetry/downloader"
	"pakrail.dev/telemetry/model"
	"pakrail.dev/telemetry/parse"
)

// BatchFunc receives each merged feed batch. Called from the polling
// goroutine; implementations must do their own locking.
type BatchFunc func(trains []model.TrainSnapshot)

// Manager handles feed fetching and processing.
type Manager struct {
	urls           []string
	headers        map[string]string
	downloader     downloader.Downloader
	updateInterval time.Duration
	timeout        time.Duration
	maxSize        int
	deliver        BatchFunc
	stopCh         chan struct{}
	wg             sync.WaitGroup
}

// NewManager creates a new feed manager. The upstream publishes the
// live map as several regional endpoints; all of them are fetched
// each cycle and merged into one batch.
func NewManager(urls []string, headers map[string]string, d downloader.Downloader, updateInterval time.Duration, deliver BatchFunc) *Manager {
	if d == nil {
		d = downloader.NewMemoryDownloader()
	}
	return &Manager{
		urls:           urls,
		headers:        headers,
		downloader:     d,
		updateInterval: updateInterval,
		timeout:        30 * time.Second,
		maxSize:        5 << 20,
		deliver:        deliver,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the feed update loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.updateLoop()
}

// Stop stops the feed update loop.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Manager) updateLoop() {
	defer m.wg.Done()

	// Initial update
	if err := m.update(); err != nil {
		log.Printf("Initial update failed: %v", err)
	}

	ticker := time.NewTicker(m.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.update(); err != nil {
				log.Printf("Update failed: %v", err)
			}
		case <-m.stopCh:
			return
		}
	}
}

// update fetches every endpoint concurrently and delivers the merged
// batch. A single failing endpoint fails the whole cycle; partial
// batches would make trains flicker in and out between cycles.
func (m *Manager) update() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	batches := make([][]model.TrainSnapshot, len(m.urls))
	g, ctx := errgroup.WithContext(ctx)
	for i, url := range m.urls {
		i, url := i, url
		g.Go(func() error {
			buf, err := m.downloader.Get(ctx, url, m.headers, downloader.GetOptions{
				MaxSize: m.maxSize,
				Timeout: m.timeout,
			})
			if err != nil {
				return err
			}
			trains, err := parse.ParseLiveFeed(buf)
			if err != nil {
				return err
			}
			batches[i] = trains
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	merged := []model.TrainSnapshot{}
	seen := map[string]bool{}
	for _, batch := range batches {
		for _, t := range batch {
			if seen[t.InnerKey] {
				continue
			}
			seen[t.InnerKey] = true
			merged = append(merged, t)
		}
	}

	if m.deliver != nil {
		m.deliver(merged)
	}
	return nil
}
