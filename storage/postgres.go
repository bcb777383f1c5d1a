package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const PSQLStopBatchSize = 5000

type PSQLStorage struct {
	db *sql.DB
}

type PSQLScheduleWriter struct {
	sha256  string
	db      *sql.DB
	stopBuf []Stop
}

type PSQLScheduleReader struct {
	sha256 string
	db     *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS schedule;
DROP TABLE IF EXISTS train;
DROP TABLE IF EXISTS stop;
DROP TABLE IF EXISTS eta_cache;
`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS schedule (
    sha256 TEXT,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    train_count INTEGER NOT NULL,
PRIMARY KEY (sha256, url)
);

CREATE TABLE IF NOT EXISTS train (
    sha256 TEXT NOT NULL,
    number TEXT NOT NULL,
    name TEXT NOT NULL,
    name_urdu TEXT NOT NULL,
PRIMARY KEY (sha256, number)
);

CREATE TABLE IF NOT EXISTS stop (
    sha256 TEXT NOT NULL,
    train_number TEXT NOT NULL,
    seq INTEGER NOT NULL,
    station_id TEXT NOT NULL,
    station_name TEXT NOT NULL,
    arrival TEXT NOT NULL,
    departure TEXT NOT NULL,
    distance_km DOUBLE PRECISION NOT NULL,
    day_count INTEGER NOT NULL,
    platform TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
PRIMARY KEY (sha256, train_number, seq)
);

CREATE TABLE IF NOT EXISTS eta_cache (
    inner_key TEXT NOT NULL,
    eta TEXT NOT NULL,
    next_station TEXT NOT NULL,
    speed_kmh DOUBLE PRECISION NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    stored_at TIMESTAMPTZ NOT NULL,
PRIMARY KEY (inner_key)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) ListSchedules(filter ListSchedulesFilter) ([]*ScheduleMetadata, error) {
	query := `
SELECT sha256, url, retrieved_at, train_count
FROM schedule`

	params := []interface{}{}
	if filter.URL != "" && filter.SHA256 != "" {
		query += ` WHERE url = $1 AND sha256 = $2`
		params = append(params, filter.URL, filter.SHA256)
	} else if filter.URL != "" {
		query += ` WHERE url = $1`
		params = append(params, filter.URL)
	} else if filter.SHA256 != "" {
		query += ` WHERE sha256 = $1`
		params = append(params, filter.SHA256)
	}
	query += ` ORDER BY retrieved_at DESC`

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("selecting schedules: %w", err)
	}
	defer rows.Close()

	schedules := []*ScheduleMetadata{}
	for rows.Next() {
		metadata := &ScheduleMetadata{}
		err = rows.Scan(
			&metadata.SHA256,
			&metadata.URL,
			&metadata.RetrievedAt,
			&metadata.TrainCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		schedules = append(schedules, metadata)
	}

	return schedules, nil
}

func (s *PSQLStorage) WriteScheduleMetadata(metadata *ScheduleMetadata) error {
	_, err := s.db.Exec(`
INSERT INTO schedule (sha256, url, retrieved_at, train_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (sha256, url) DO UPDATE SET
    retrieved_at = EXCLUDED.retrieved_at,
    train_count = EXCLUDED.train_count`,
		metadata.SHA256,
		metadata.URL,
		metadata.RetrievedAt,
		metadata.TrainCount,
	)
	if err != nil {
		return fmt.Errorf("upserting schedule: %w", err)
	}
	return nil
}

func (s *PSQLStorage) DeleteSchedule(url string, sha256 string) error {
	res, err := s.db.Exec(`DELETE FROM schedule WHERE url = $1 AND sha256 = $2`, url, sha256)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("schedule not found")
	}

	if _, err = s.db.Exec(`DELETE FROM train WHERE sha256 = $1`, sha256); err != nil {
		return fmt.Errorf("deleting trains: %w", err)
	}
	if _, err = s.db.Exec(`DELETE FROM stop WHERE sha256 = $1`, sha256); err != nil {
		return fmt.Errorf("deleting stops: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetWriter(sha256 string) (ScheduleWriter, error) {
	return &PSQLScheduleWriter{sha256: sha256, db: s.db}, nil
}

func (s *PSQLStorage) GetReader(sha256 string) (ScheduleReader, error) {
	return &PSQLScheduleReader{sha256: sha256, db: s.db}, nil
}

func (s *PSQLStorage) ReadETACaches() ([]ETACacheRecord, error) {
	rows, err := s.db.Query(`
SELECT inner_key, eta, next_station, speed_kmh, lat, lon, stored_at
FROM eta_cache
ORDER BY inner_key`)
	if err != nil {
		return nil, fmt.Errorf("selecting eta caches: %w", err)
	}
	defer rows.Close()

	recs := []ETACacheRecord{}
	for rows.Next() {
		rec := ETACacheRecord{}
		err = rows.Scan(&rec.InnerKey, &rec.ETA, &rec.NextStation, &rec.SpeedKmh, &rec.Lat, &rec.Lon, &rec.StoredAt)
		if err != nil {
			return nil, fmt.Errorf("scanning eta cache: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *PSQLStorage) WriteETACache(rec ETACacheRecord) error {
	_, err := s.db.Exec(`
INSERT INTO eta_cache (inner_key, eta, next_station, speed_kmh, lat, lon, stored_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (inner_key) DO UPDATE SET
    eta = EXCLUDED.eta,
    next_station = EXCLUDED.next_station,
    speed_kmh = EXCLUDED.speed_kmh,
    lat = EXCLUDED.lat,
    lon = EXCLUDED.lon,
    stored_at = EXCLUDED.stored_at`,
		rec.InnerKey, rec.ETA, rec.NextStation, rec.SpeedKmh, rec.Lat, rec.Lon, rec.StoredAt,
	)
	if err != nil {
		return fmt.Errorf("upserting eta cache: %w", err)
	}
	return nil
}

func (s *PSQLStorage) PurgeETACaches(before time.Time) error {
	_, err := s.db.Exec(`DELETE FROM eta_cache WHERE stored_at < $1`, before)
	if err != nil {
		return fmt.Errorf("purging eta caches: %w", err)
	}
	return nil
}

func (s *PSQLStorage) Close() error {
	return s.db.Close()
}

func (w *PSQLScheduleWriter) WriteTrain(train *Train) error {
	_, err := w.db.Exec(`
INSERT INTO train (sha256, number, name, name_urdu)
VALUES ($1, $2, $3, $4)
ON CONFLICT (sha256, number) DO UPDATE SET
    name = EXCLUDED.name,
    name_urdu = EXCLUDED.name_urdu`,
		w.sha256, train.Number, train.Name, train.NameUrdu,
	)
	if err != nil {
		return fmt.Errorf("inserting train: %w", err)
	}
	return nil
}

func (w *PSQLScheduleWriter) BeginStops() error {
	w.stopBuf = nil
	return nil
}

func (w *PSQLScheduleWriter) WriteStop(stop *Stop) error {
	w.stopBuf = append(w.stopBuf, *stop)
	if len(w.stopBuf) >= PSQLStopBatchSize {
		return w.flushStops()
	}
	return nil
}

func (w *PSQLScheduleWriter) EndStops() error {
	if len(w.stopBuf) > 0 {
		return w.flushStops()
	}
	return nil
}

func (w *PSQLScheduleWriter) flushStops() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	stmt, err := tx.Prepare(pq.CopyIn(
		"stop", "sha256", "train_number", "seq", "station_id", "station_name",
		"arrival", "departure", "distance_km", "day_count", "platform", "lat", "lon",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, stop := range w.stopBuf {
		_, err = stmt.Exec(
			w.sha256,
			stop.TrainNumber,
			stop.Seq,
			stop.StationID,
			stop.StationName,
			stop.Arrival,
			stop.Departure,
			stop.DistanceKm,
			stop.DayCount,
			stop.Platform,
			stop.Lat,
			stop.Lon,
		)
		if err != nil {
			return fmt.Errorf("COPY stop: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.stopBuf = nil

	return nil
}

func (w *PSQLScheduleWriter) Close() error {
	return nil
}

func (r *PSQLScheduleReader) Trains() ([]*Train, error) {
	rows, err := r.db.Query(`
SELECT number, name, name_urdu
FROM train
WHERE sha256 = $1
ORDER BY number`, r.sha256)
	if err != nil {
		return nil, fmt.Errorf("selecting trains: %w", err)
	}
	defer rows.Close()

	trains := []*Train{}
	for rows.Next() {
		train := &Train{}
		if err := rows.Scan(&train.Number, &train.Name, &train.NameUrdu); err != nil {
			return nil, fmt.Errorf("scanning train: %w", err)
		}
		trains = append(trains, train)
	}
	return trains, nil
}

func (r *PSQLScheduleReader) Stops() ([]*Stop, error) {
	rows, err := r.db.Query(`
SELECT train_number, seq, station_id, station_name, arrival, departure,
       distance_km, day_count, platform, lat, lon
FROM stop
WHERE sha256 = $1
ORDER BY train_number, seq`, r.sha256)
	if err != nil {
		return nil, fmt.Errorf("selecting stops: %w", err)
	}
	defer rows.Close()

	stops := []*Stop{}
	for rows.Next() {
		stop := &Stop{}
		err = rows.Scan(
			&stop.TrainNumber,
			&stop.Seq,
			&stop.StationID,
			&stop.StationName,
			&stop.Arrival,
			&stop.Departure,
			&stop.DistanceKm,
			&stop.DayCount,
			&stop.Platform,
			&stop.Lat,
			&stop.Lon,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, stop)
	}
	return stops, nil
}
