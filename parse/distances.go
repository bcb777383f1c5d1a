package parse

import (
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"pakrail.dev/telemetry/model"
)

// StationDistance is one row of the supplementary distances CSV:
// cumulative track kilometrage per station on a route.
type StationDistance struct {
	TrainNumber string  `csv:"train_number"`
	StationName string  `csv:"station_name"`
	DistanceKm  float64 `csv:"distance_km"`
	Latitude    float64 `csv:"lat"`
	Longitude   float64 `csv:"lon"`
}

// ParseDistances reads the distances CSV. The BOM reader strips
// unicode BOMs, and the lazy reader survives sloppy quoting in the
// upstream export.
func ParseDistances(r io.Reader) ([]StationDistance, error) {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	var rows []StationDistance
	if err := gocsv.Unmarshal(bom.NewReader(r), &rows); err != nil {
		return nil, errors.Wrap(err, "unmarshaling distances csv")
	}
	return rows, nil
}

// MergeDistances patches schedule stops with distances and
// coordinates from the CSV, matched by train number and fuzzy station
// name. Existing nonzero values on a stop are left alone.
func MergeDistances(entries []model.ScheduleEntry, rows []StationDistance) {
	byTrain := map[string][]StationDistance{}
	for _, row := range rows {
		byTrain[row.TrainNumber] = append(byTrain[row.TrainNumber], row)
	}

	for i := range entries {
		e := &entries[i]
		candidates := byTrain[e.TrainNumber]
		if len(candidates) == 0 {
			continue
		}
		for j := range e.Stations {
			stop := &e.Stations[j]
			for _, row := range candidates {
				if !stationNamesEqualish(stop.StationName, row.StationName) {
					continue
				}
				if stop.DistanceKm == 0 {
					stop.DistanceKm = row.DistanceKm
				}
				if !stop.HasPosition() && row.Latitude != 0 {
					stop.Latitude = row.Latitude
					stop.Longitude = row.Longitude
				}
				break
			}
		}
	}
}

func stationNamesEqualish(a, b string) bool {
	na, nb := model.NormalizeStationName(a), model.NormalizeStationName(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}
