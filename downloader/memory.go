package downloader

import (
	"context"
	"sync"
	"time"
)

// MemoryDownloader caches fetched bodies in memory, keyed by URL.
// The live feed is polled by several consumers in lockstep; a short
// TTL collapses those polls into one upstream request per cycle.
type MemoryDownloader struct {
	mutex   sync.Mutex
	entries map[string]memoryEntry

	TimeNow func() time.Time
}

type memoryEntry struct {
	body      []byte
	expiresAt time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		entries: make(map[string]memoryEntry),
		TimeNow: time.Now,
	}
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		d.mutex.Lock()
		defer d.mutex.Unlock()

		if entry, ok := d.entries[url]; ok && entry.expiresAt.After(d.TimeNow()) {
			return entry.body, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		d.entries[url] = memoryEntry{
			body:      body,
			expiresAt: d.TimeNow().Add(options.CacheTTL),
		}
		d.evictExpired()
	}
	return body, nil
}

// evictExpired drops stale entries so a churning URL set cannot grow
// the map without bound. Callers hold the mutex.
func (d *MemoryDownloader) evictExpired() {
	now := d.TimeNow()
	for url, entry := range d.entries {
		if !entry.expiresAt.After(now) {
			delete(d.entries, url)
		}
	}
}
