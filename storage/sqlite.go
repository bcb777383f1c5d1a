package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	db *sql.DB
}

type SQLiteScheduleWriter struct {
	db              *sql.DB
	sha256          string
	stopInsertQuery *sql.Stmt
	stopInsertTx    *sql.Tx
}

type SQLiteScheduleReader struct {
	db     *sql.DB
	sha256 string
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/telemetry.db"
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS schedule (
    sha256 TEXT,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMP NOT NULL,
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
    distance_km REAL NOT NULL,
    day_count INTEGER NOT NULL,
    platform TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
PRIMARY KEY (sha256, train_number, seq)
);

CREATE TABLE IF NOT EXISTS eta_cache (
    inner_key TEXT NOT NULL,
    eta TEXT NOT NULL,
    next_station TEXT NOT NULL,
    speed_kmh REAL NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    stored_at TIMESTAMP NOT NULL,
PRIMARY KEY (inner_key)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		db: db,
	}, nil
}

func (s *SQLiteStorage) ListSchedules(filter ListSchedulesFilter) ([]*ScheduleMetadata, error) {
	query := `
SELECT sha256, url, retrieved_at, train_count
FROM schedule`

	params := []interface{}{}
	if filter.URL != "" && filter.SHA256 != "" {
		query += ` WHERE url = ? AND sha256 = ?`
		params = append(params, filter.URL, filter.SHA256)
	} else if filter.URL != "" {
		query += ` WHERE url = ?`
		params = append(params, filter.URL)
	} else if filter.SHA256 != "" {
		query += ` WHERE sha256 = ?`
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

func (s *SQLiteStorage) WriteScheduleMetadata(metadata *ScheduleMetadata) error {
	_, err := s.db.Exec(`
INSERT INTO schedule (sha256, url, retrieved_at, train_count)
VALUES (?, ?, ?, ?)
ON CONFLICT (sha256, url) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    train_count = excluded.train_count`,
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

func (s *SQLiteStorage) DeleteSchedule(url string, sha256 string) error {
	res, err := s.db.Exec(`DELETE FROM schedule WHERE url = ? AND sha256 = ?`, url, sha256)
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

	_, err = s.db.Exec(`DELETE FROM train WHERE sha256 = ?`, sha256)
	if err != nil {
		return fmt.Errorf("deleting trains: %w", err)
	}
	_, err = s.db.Exec(`DELETE FROM stop WHERE sha256 = ?`, sha256)
	if err != nil {
		return fmt.Errorf("deleting stops: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetWriter(sha256 string) (ScheduleWriter, error) {
	return &SQLiteScheduleWriter{db: s.db, sha256: sha256}, nil
}

func (s *SQLiteStorage) GetReader(sha256 string) (ScheduleReader, error) {
	return &SQLiteScheduleReader{db: s.db, sha256: sha256}, nil
}

func (s *SQLiteStorage) ReadETACaches() ([]ETACacheRecord, error) {
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

func (s *SQLiteStorage) WriteETACache(rec ETACacheRecord) error {
	_, err := s.db.Exec(`
INSERT INTO eta_cache (inner_key, eta, next_station, speed_kmh, lat, lon, stored_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (inner_key) DO UPDATE SET
    eta = excluded.eta,
    next_station = excluded.next_station,
    speed_kmh = excluded.speed_kmh,
    lat = excluded.lat,
    lon = excluded.lon,
    stored_at = excluded.stored_at`,
		rec.InnerKey, rec.ETA, rec.NextStation, rec.SpeedKmh, rec.Lat, rec.Lon, rec.StoredAt,
	)
	if err != nil {
		return fmt.Errorf("upserting eta cache: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) PurgeETACaches(before time.Time) error {
	_, err := s.db.Exec(`DELETE FROM eta_cache WHERE stored_at < ?`, before)
	if err != nil {
		return fmt.Errorf("purging eta caches: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (w *SQLiteScheduleWriter) WriteTrain(train *Train) error {
	_, err := w.db.Exec(`
INSERT INTO train (sha256, number, name, name_urdu)
VALUES (?, ?, ?, ?)
ON CONFLICT (sha256, number) DO UPDATE SET
    name = excluded.name,
    name_urdu = excluded.name_urdu`,
		w.sha256, train.Number, train.Name, train.NameUrdu,
	)
	if err != nil {
		return fmt.Errorf("inserting train: %w", err)
	}
	return nil
}

func (w *SQLiteScheduleWriter) BeginStops() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
INSERT INTO stop (sha256, train_number, seq, station_id, station_name,
                  arrival, departure, distance_km, day_count, platform, lat, lon)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing stop insert: %w", err)
	}

	w.stopInsertTx = tx
	w.stopInsertQuery = stmt
	return nil
}

func (w *SQLiteScheduleWriter) WriteStop(stop *Stop) error {
	_, err := w.stopInsertQuery.Exec(
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
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (w *SQLiteScheduleWriter) EndStops() error {
	if err := w.stopInsertTx.Commit(); err != nil {
		return fmt.Errorf("committing stops: %w", err)
	}
	w.stopInsertTx = nil
	w.stopInsertQuery = nil
	return nil
}

func (w *SQLiteScheduleWriter) Close() error {
	if w.stopInsertTx != nil {
		w.stopInsertTx.Rollback()
		w.stopInsertTx = nil
		w.stopInsertQuery = nil
	}
	return nil
}

func (r *SQLiteScheduleReader) Trains() ([]*Train, error) {
	rows, err := r.db.Query(`
SELECT number, name, name_urdu
FROM train
WHERE sha256 = ?
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

func (r *SQLiteScheduleReader) Stops() ([]*Stop, error) {
	rows, err := r.db.Query(`
SELECT train_number, seq, station_id, station_name, arrival, departure,
       distance_km, day_count, platform, lat, lon
FROM stop
WHERE sha256 = ?
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
