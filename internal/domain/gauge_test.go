package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatitudeInBounds(t *testing.T) {
	assert.True(t, LatitudeInBounds(33.61006))
	assert.False(t, LatitudeInBounds(40.0))
}

func TestGaugeMetadata_Validate(t *testing.T) {
	g := GaugeMetadata{
		StationID:   "59700",
		Latitude:    33.61006,
		Longitude:   -111.89,
		ElevationFt: 1465,
		Stats:       map[string]float64{AnnualPrecipitationStat: 7.9},
	}
	assert.Empty(t, g.Validate())

	g.Latitude = 40.0
	g.ElevationFt = 12000
	g.Stats[AnnualPrecipitationStat] = 80
	warnings := g.Validate()
	require.Len(t, warnings, 3)
	assert.Equal(t, "latitude", warnings[0].Field)
	assert.Equal(t, "elevation_ft", warnings[1].Field)
	assert.Equal(t, "annual_precipitation", warnings[2].Field)
}

func TestGaugeMetadata_StationIDs(t *testing.T) {
	g := GaugeMetadata{StationID: "59700", PreviousIDs: []string{"4695"}}
	assert.Equal(t, []string{"59700", "4695"}, g.StationIDs())
}
