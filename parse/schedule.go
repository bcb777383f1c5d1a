package parse

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"pakrail.dev/telemetry/model"
)

type rawStop struct {
	StationID     string          `json:"station_id"`
	StationName   string          `json:"station_name"`
	ArrivalTime   string          `json:"arrival_time"`
	DepartureTime string          `json:"departure_time"`
	Distance      json.RawMessage `json:"distance"`
	DayCount      json.RawMessage `json:"day_count"`
	Platform      string          `json:"platform"`
	Lat           json.RawMessage `json:"lat"`
	Lon           json.RawMessage `json:"lon"`
	OrderNumber   json.RawMessage `json:"order_number"`
}

type rawScheduleEntry struct {
	TrainID       string    `json:"train_id"`
	TrainNumber   string    `json:"train_number"`
	TrainName     string    `json:"train_name"`
	TrainNameUrdu string    `json:"train_name_ur"`
	Stations      []rawStop `json:"stations"`
}

// ParseSchedule decodes the published schedule. The upstream API has
// shipped this both as a bare JSON array and wrapped in a {data: []}
// envelope; both forms are accepted.
func ParseSchedule(buf []byte) ([]model.ScheduleEntry, error) {
	var raws []rawScheduleEntry
	if err := json.Unmarshal(buf, &raws); err != nil {
		var wrapped struct {
			Data []rawScheduleEntry `json:"data"`
		}
		if err2 := json.Unmarshal(buf, &wrapped); err2 != nil {
			return nil, errors.Wrap(err, "unmarshaling schedule")
		}
		raws = wrapped.Data
	}

	out := make([]model.ScheduleEntry, 0, len(raws))
	for i := range raws {
		out = append(out, buildScheduleEntry(&raws[i]))
	}
	return out, nil
}

func buildScheduleEntry(raw *rawScheduleEntry) model.ScheduleEntry {
	e := model.ScheduleEntry{
		TrainID:       raw.TrainID,
		TrainNumber:   strings.TrimSpace(raw.TrainNumber),
		TrainName:     strings.TrimSpace(raw.TrainName),
		TrainNameUrdu: raw.TrainNameUrdu,
	}
	if e.TrainNumber == "" {
		e.TrainNumber = leadingDigits(e.TrainName)
	}
	for i := range raw.Stations {
		rs := &raw.Stations[i]
		e.Stations = append(e.Stations, model.StationStop{
			StationID:     rs.StationID,
			StationName:   strings.TrimSpace(rs.StationName),
			ArrivalTime:   strings.TrimSpace(rs.ArrivalTime),
			DepartureTime: strings.TrimSpace(rs.DepartureTime),
			DistanceKm:    looseFloat(rs.Distance),
			DayCount:      int(looseFloat(rs.DayCount)),
			Platform:      rs.Platform,
			Latitude:      looseFloat(rs.Lat),
			Longitude:     looseFloat(rs.Lon),
			OrderNumber:   int(looseFloat(rs.OrderNumber)),
		})
	}
	for i := range e.Stations {
		if e.Stations[i].DayCount == 0 {
			e.Stations[i].DayCount = 1
		}
		if e.Stations[i].OrderNumber == 0 {
			e.Stations[i].OrderNumber = i + 1
		}
	}
	return e
}
