package parse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pakrail.dev/telemetry/model"
)

func TestParseDistances(t *testing.T) {
	csv := "train_number,station_name,distance_km,lat,lon\n" +
		"13,Karachi Cantt,0,24.85,67.02\n" +
		"13,Hyderabad Jn,150.5,25.38,68.37\n"

	rows, err := ParseDistances(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Hyderabad Jn", rows[1].StationName)
	assert.Equal(t, 150.5, rows[1].DistanceKm)
}

func TestParseDistancesStripsBOM(t *testing.T) {
	csv := "\xef\xbb\xbftrain_number,station_name,distance_km,lat,lon\n" +
		"13,Karachi Cantt,0,24.85,67.02\n"

	rows, err := ParseDistances(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "13", rows[0].TrainNumber)
}

func TestMergeDistances(t *testing.T) {
	entries := []model.ScheduleEntry{
		{
			TrainNumber: "13",
			Stations: []model.StationStop{
				{StationName: "Karachi Cantt"},
				{StationName: "Hyderabad Junction", DistanceKm: 149},
				{StationName: "Rohri Junction"},
			},
		},
	}
	rows := []StationDistance{
		{TrainNumber: "13", StationName: "KARACHI CANTT", DistanceKm: 0, Latitude: 24.85, Longitude: 67.02},
		{TrainNumber: "13", StationName: "Hyderabad", DistanceKm: 150.5, Latitude: 25.38, Longitude: 68.37},
		{TrainNumber: "13", StationName: "Rohri", DistanceKm: 480},
		{TrainNumber: "99", StationName: "Rohri Junction", DistanceKm: 999},
	}

	MergeDistances(entries, rows)

	stops := entries[0].Stations
	assert.InDelta(t, 24.85, stops[0].Latitude, 0.001)

	// Existing distance wins; coordinates still fill in.
	assert.Equal(t, 149.0, stops[1].DistanceKm)
	assert.InDelta(t, 25.38, stops[1].Latitude, 0.001)

	// Fuzzy match on a shortened CSV name.
	assert.Equal(t, 480.0, stops[2].DistanceKm)
	assert.Equal(t, 0.0, stops[2].Latitude)
}
