package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pakrail.dev/telemetry/model"
)

func TestDirectionOf(t *testing.T) {
	for _, tc := range []struct {
		name        string
		trainNumber string
		trainName   string
		expected    model.Direction
	}{
		{"textual up", "1", "Khyber Mail UP", model.DirectionUp},
		{"textual down", "2", "Khyber Mail DOWN", model.DirectionDown},
		{"textual dn", "2", "Awam Express DN", model.DirectionDown},
		{"down wins over incidental up substring", "104", "Super Express Down", model.DirectionDown},
		{"number carries indicator", "14DN", "Awam Express", model.DirectionDown},
		{"parity even", "42", "Karakoram Express", model.DirectionUp},
		{"parity odd", "13", "Awam Express", model.DirectionDown},
		{"no digits at all", "X", "Mystery Special", model.DirectionUp},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, model.DirectionOf(tc.trainNumber, tc.trainName))
		})
	}
}

func TestParseHHMM(t *testing.T) {
	for _, tc := range []struct {
		input   string
		minutes int
		ok      bool
	}{
		{"00:00", 0, true},
		{"23:59", 1439, true},
		{"06:30", 390, true},
		{"6:30 PM", 1110, true},
		{"12:05 AM", 5, true},
		{"12:05 PM", 725, true},
		{"18:30:45", 1110, true},
		{"--:--", 0, false},
		{"", 0, false},
		{"25:00", 0, false},
		{"12:61", 0, false},
		{"noon", 0, false},
	} {
		t.Run(tc.input, func(t *testing.T) {
			m, ok := model.ParseHHMM(tc.input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.minutes, m)
			}
		})
	}
}

func TestFormatHHMM(t *testing.T) {
	assert.Equal(t, "00:00", model.FormatHHMM(0))
	assert.Equal(t, "23:59", model.FormatHHMM(1439))
	assert.Equal(t, "00:10", model.FormatHHMM(1450)) // wraps forward
	assert.Equal(t, "23:50", model.FormatHHMM(-10))  // wraps backward
}

func TestStationStopScheduledMinutes(t *testing.T) {
	stop := &model.StationStop{ArrivalTime: "11:00", DepartureTime: "11:05"}
	m, ok := stop.ScheduledMinutes()
	assert.True(t, ok)
	assert.Equal(t, 660, m)

	origin := &model.StationStop{DepartureTime: "10:00"}
	m, ok = origin.ScheduledMinutes()
	assert.True(t, ok)
	assert.Equal(t, 600, m)

	blank := &model.StationStop{}
	_, ok = blank.ScheduledMinutes()
	assert.False(t, ok)
}
