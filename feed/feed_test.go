package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pakrail.dev/telemetry/downloader"
	"pakrail.dev/telemetry/model"
)

type fakeDownloader struct {
	responses map[string][]byte
	err       error
}

func (d *fakeDownloader) Get(ctx context.Context, url string, headers map[string]string, options downloader.GetOptions) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	buf, ok := d.responses[url]
	if !ok {
		return nil, fmt.Errorf("status 404")
	}
	return buf, nil
}

func TestManagerMergesEndpoints(t *testing.T) {
	d := &fakeDownloader{responses: map[string][]byte{
		"http://x/live1": []byte(`{"13UP": {"1305039900": {"sp": 45}}}`),
		"http://x/live2": []byte(`{"14DN": {"1405039900": {"sp": 60}},
			"13UP": {"1305039900": {"sp": 45}}}`),
	}}

	batches := make(chan []model.TrainSnapshot, 1)
	m := NewManager(
		[]string{"http://x/live1", "http://x/live2"},
		nil, d, time.Hour,
		func(trains []model.TrainSnapshot) { batches <- trains },
	)

	m.Start()
	defer m.Stop()

	select {
	case batch := <-batches:
		// The duplicate instance across endpoints appears once.
		require.Len(t, batch, 2)
		keys := map[string]bool{}
		for _, tr := range batch {
			keys[tr.InnerKey] = true
		}
		assert.True(t, keys["1305039900"])
		assert.True(t, keys["1405039900"])
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}
}

func TestManagerFailedCycleDeliversNothing(t *testing.T) {
	d := &fakeDownloader{responses: map[string][]byte{
		"http://x/live1": []byte(`{"13UP": {"1305039900": {"sp": 45}}}`),
		// live2 missing: the whole cycle fails.
	}}

	delivered := make(chan struct{}, 1)
	m := NewManager(
		[]string{"http://x/live1", "http://x/live2"},
		nil, d, time.Hour,
		func(trains []model.TrainSnapshot) { delivered <- struct{}{} },
	)

	m.Start()
	defer m.Stop()

	select {
	case <-delivered:
		t.Fatal("partial batch delivered")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestManagerStops(t *testing.T) {
	d := &fakeDownloader{responses: map[string][]byte{}}
	m := NewManager([]string{"http://x/live1"}, nil, d, time.Millisecond, nil)

	m.Start()
	m.Stop()
	// Returning at all means the loop exited.
}
