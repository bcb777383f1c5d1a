package parse

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"pakrail.dev/telemetry/model"
)

// rawSnapshot is one train record as the live feed publishes it. The
// feed emits every field as a string or a bare number depending on
// the day, so everything numeric goes through tolerant parsing.
type rawSnapshot struct {
	Lat              json.RawMessage `json:"lat"`
	Lon              json.RawMessage `json:"lon"`
	Speed            json.RawMessage `json:"sp"`
	LateBy           json.RawMessage `json:"late_by"`
	NextStationID    string          `json:"next_station"`
	NextStop         string          `json:"next_stop"`
	PrevStationID    string          `json:"prev_station"`
	NextStationETA   string          `json:"NextStationETA"`
	LastUpdated      json.RawMessage `json:"last_updated"`
	Status           string          `json:"st"`
	Icon             string          `json:"icon"`
	LocomotiveNumber string          `json:"locomitiveNo"`
	TrainName        string          `json:"train_name"`
}

// ParseLiveFeed decodes the live feed's nested JSON: a map of train
// key to a map of inner key (instance) to record. Records that fail
// to decode individually are skipped; the whole batch fails only when
// the outer document is not the expected shape.
func ParseLiveFeed(buf []byte) ([]model.TrainSnapshot, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(buf, &outer); err != nil {
		return nil, errors.Wrap(err, "unmarshaling live feed")
	}

	var out []model.TrainSnapshot
	for trainKey, inner := range outer {
		var instances map[string]rawSnapshot
		if err := json.Unmarshal(inner, &instances); err != nil {
			// Some feed variants mix metadata keys into the
			// top level. Skip anything that isn't a nested
			// instance map.
			continue
		}
		for innerKey, raw := range instances {
			out = append(out, buildSnapshot(trainKey, innerKey, &raw))
		}
	}
	return out, nil
}

func buildSnapshot(trainKey, innerKey string, raw *rawSnapshot) model.TrainSnapshot {
	number := trainNumberOf(trainKey, innerKey)
	t := model.TrainSnapshot{
		InnerKey:         innerKey,
		TrainID:          trainKey,
		TrainNumber:      number,
		TrainName:        raw.TrainName,
		SpeedKmh:         looseFloat(raw.Speed),
		LateByMin:        int(looseFloat(raw.LateBy)),
		NextStation:      strings.TrimSpace(raw.NextStop),
		NextStationID:    raw.NextStationID,
		PrevStationID:    raw.PrevStationID,
		NextStationETA:   strings.TrimSpace(raw.NextStationETA),
		Latitude:         looseFloat(raw.Lat),
		Longitude:        looseFloat(raw.Lon),
		Status:           raw.Status,
		LocomotiveNumber: raw.LocomotiveNumber,
	}
	if epoch := int64(looseFloat(raw.LastUpdated)); epoch > 0 {
		t.LastUpdated = time.Unix(epoch, 0)
	}
	t.IsLive = t.HasPosition() || t.SpeedKmh > 0
	if t.TrainName == "" {
		t.TrainName = trainKey
	}
	return t
}

// trainNumberOf extracts the train number, preferring the inner key's
// leading digits over the train key, which is often a display name.
func trainNumberOf(trainKey, innerKey string) string {
	if n := leadingDigits(innerKey); n != "" {
		return n
	}
	if n := leadingDigits(trainKey); n != "" {
		return n
	}
	return trainKey
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	// Inner keys are number + DDMM + suffix; the date and suffix
	// are both digits too, so only a fully numeric prefix shorter
	// than the whole string minus those 8 digits is the number.
	if i == len(s) && i > 8 {
		return s[:i-8]
	}
	if i > 0 && i < len(s) {
		return s[:i]
	}
	if i == len(s) {
		return s
	}
	return ""
}

// looseFloat parses a JSON value that may be a number, a quoted
// number, or garbage. Garbage parses as 0.
func looseFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
