package storage_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pakrail.dev/telemetry/storage"
	"pakrail.dev/telemetry/testutil"
)

// Tests of the storage implementations. The in-memory and sqlite
// implementations are always run, while postgres requires a local
// server and is opted into via TELEMETRY_TEST_POSTGRES.

func backends(t *testing.T) map[string]storage.Storage {
	s := map[string]storage.Storage{
		"memory": testutil.BuildStorage(t, "memory"),
		"sqlite": testutil.BuildStorage(t, "sqlite"),
	}
	if os.Getenv("TELEMETRY_TEST_POSTGRES") != "" {
		s["postgres"] = testutil.BuildStorage(t, "postgres")
	}
	return s
}

func TestScheduleMetadata(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			metas, err := s.ListSchedules(storage.ListSchedulesFilter{})
			require.NoError(t, err)
			assert.Empty(t, metas)

			old := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
			newer := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
			require.NoError(t, s.WriteScheduleMetadata(&storage.ScheduleMetadata{
				URL: "http://x/sched", SHA256: "aaa", RetrievedAt: old, TrainCount: 10,
			}))
			require.NoError(t, s.WriteScheduleMetadata(&storage.ScheduleMetadata{
				URL: "http://x/sched", SHA256: "bbb", RetrievedAt: newer, TrainCount: 12,
			}))

			metas, err = s.ListSchedules(storage.ListSchedulesFilter{URL: "http://x/sched"})
			require.NoError(t, err)
			require.Len(t, metas, 2)
			assert.Equal(t, "bbb", metas[0].SHA256)

			metas, err = s.ListSchedules(storage.ListSchedulesFilter{SHA256: "aaa"})
			require.NoError(t, err)
			require.Len(t, metas, 1)
			assert.Equal(t, 10, metas[0].TrainCount)

			// Upsert on same (url, hash).
			require.NoError(t, s.WriteScheduleMetadata(&storage.ScheduleMetadata{
				URL: "http://x/sched", SHA256: "aaa", RetrievedAt: newer, TrainCount: 11,
			}))
			metas, err = s.ListSchedules(storage.ListSchedulesFilter{SHA256: "aaa"})
			require.NoError(t, err)
			require.Len(t, metas, 1)
			assert.Equal(t, 11, metas[0].TrainCount)

			require.NoError(t, s.DeleteSchedule("http://x/sched", "aaa"))
			metas, err = s.ListSchedules(storage.ListSchedulesFilter{})
			require.NoError(t, err)
			assert.Len(t, metas, 1)

			assert.Error(t, s.DeleteSchedule("http://x/sched", "aaa"))
		})
	}
}

func TestScheduleWriteRead(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			writer, err := s.GetWriter("testhash")
			require.NoError(t, err)

			require.NoError(t, writer.WriteTrain(&storage.Train{
				Number: "13", Name: "Awam Express", NameUrdu: "عوام ایکسپریس",
			}))
			require.NoError(t, writer.BeginStops())
			require.NoError(t, writer.WriteStop(&storage.Stop{
				TrainNumber: "13", Seq: 0, StationName: "Karachi Cantt",
				Departure: "06:00", DayCount: 1, Lat: 24.85, Lon: 67.02,
			}))
			require.NoError(t, writer.WriteStop(&storage.Stop{
				TrainNumber: "13", Seq: 1, StationName: "Hyderabad Junction",
				Arrival: "08:30", DistanceKm: 150, DayCount: 1,
			}))
			require.NoError(t, writer.EndStops())
			require.NoError(t, writer.Close())

			reader, err := s.GetReader("testhash")
			require.NoError(t, err)

			trains, err := reader.Trains()
			require.NoError(t, err)
			require.Len(t, trains, 1)
			assert.Equal(t, "Awam Express", trains[0].Name)

			stops, err := reader.Stops()
			require.NoError(t, err)
			require.Len(t, stops, 2)
			assert.Equal(t, "Karachi Cantt", stops[0].StationName)
			assert.Equal(t, 150.0, stops[1].DistanceKm)
		})
	}
}

func TestETACacheRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
			require.NoError(t, s.WriteETACache(storage.ETACacheRecord{
				InnerKey: "1305039900", ETA: "08:35", NextStation: "Hyderabad Junction",
				SpeedKmh: 72, StoredAt: now,
			}))
			require.NoError(t, s.WriteETACache(storage.ETACacheRecord{
				InnerKey: "1405039900", ETA: "11:00", NextStation: "Rohri Junction",
				SpeedKmh: 0, StoredAt: now.Add(-2 * time.Hour),
			}))

			// Overwrite by key.
			require.NoError(t, s.WriteETACache(storage.ETACacheRecord{
				InnerKey: "1305039900", ETA: "08:40", NextStation: "Hyderabad Junction",
				SpeedKmh: 0, Lat: 25.38, Lon: 68.37, StoredAt: now,
			}))

			recs, err := s.ReadETACaches()
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, "08:40", recs[0].ETA)
			assert.Equal(t, 25.38, recs[0].Lat)
			assert.Equal(t, 68.37, recs[0].Lon)

			require.NoError(t, s.PurgeETACaches(now.Add(-time.Hour)))
			recs, err = s.ReadETACaches()
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "1305039900", recs[0].InnerKey)
		})
	}
}
