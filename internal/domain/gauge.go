package domain

import (
	"fmt"
	"time"
)

// Jurisdiction bounds and sane ranges used by metadata validation.
const (
	MinLatitude  = 31.0
	MaxLatitude  = 34.5
	MinLongitude = -114.0
	MaxLongitude = -110.5

	MinElevationFt = 0.0
	MaxElevationFt = 8000.0

	MinAnnualPrecipIn = 0.0
	MaxAnnualPrecipIn = 50.0
)

// Metadata defaults applied when the workbook leaves a field blank.
const (
	DefaultGaugeType   = "Rain"
	DefaultGaugeCounty = "Maricopa"
	DefaultGaugeStatus = "Active"
)

// AnnualPrecipitationStat is the statistics label validated against
// the annual precipitation range.
const AnnualPrecipitationStat = "Annual Precipitation"

// GaugeMetadata is the descriptive record for one station.
type GaugeMetadata struct {
	StationID     string              `json:"station_id"`
	PreviousIDs   []string            `json:"previous_ids"`
	Name          string              `json:"name"`
	Type          string              `json:"type"`
	County        string              `json:"county"`
	Status        string              `json:"status"`
	Latitude      float64             `json:"latitude"`
	Longitude     float64             `json:"longitude"`
	ElevationFt   float64             `json:"elevation_ft"`
	InstalledOn   time.Time           `json:"installed_on,omitzero"`
	DataStart     time.Time           `json:"data_start,omitzero"`
	ReferenceDate time.Time           `json:"reference_date,omitzero"`
	CompleteYears int                 `json:"complete_years"`
	Stats         map[string]float64  `json:"stats,omitempty"`
	Warnings      []ValidationWarning `json:"warnings,omitempty"`
}

// StationIDs returns the current id followed by every previous id.
func (g GaugeMetadata) StationIDs() []string {
	ids := make([]string, 0, 1+len(g.PreviousIDs))
	ids = append(ids, g.StationID)
	return append(ids, g.PreviousIDs...)
}

// Validate checks coordinates, elevation and annual precipitation against the
// jurisdiction bounds. It reports problems; it never rejects the record.
func (g GaugeMetadata) Validate() []ValidationWarning {
	var warnings []ValidationWarning
	check := func(field string, v, lo, hi float64) {
		if v < lo || v > hi {
			warnings = append(warnings, ValidationWarning{
				Field:   field,
				Value:   v,
				Message: fmt.Sprintf("outside [%g, %g]", lo, hi),
			})
		}
	}
	check("latitude", g.Latitude, MinLatitude, MaxLatitude)
	check("longitude", g.Longitude, MinLongitude, MaxLongitude)
	check("elevation_ft", g.ElevationFt, MinElevationFt, MaxElevationFt)
	if v, ok := g.Stats[AnnualPrecipitationStat]; ok {
		check("annual_precipitation", v, MinAnnualPrecipIn, MaxAnnualPrecipIn)
	}
	return warnings
}

// LatitudeInBounds reports whether lat falls inside the jurisdiction box.
func LatitudeInBounds(lat float64) bool {
	return lat >= MinLatitude && lat <= MaxLatitude
}

// LongitudeInBounds reports whether lon falls inside the jurisdiction box.
func LongitudeInBounds(lon float64) bool {
	return lon >= MinLongitude && lon <= MaxLongitude
}

// GaugeSummary is the gauge data captured when a job is enqueued so the
// worker does not wait for the next discovery cycle.
type GaugeSummary struct {
	StationID     string    `json:"station_id"`
	Name          string    `json:"name,omitempty"`
	PreviousIDs   []string  `json:"previous_ids,omitempty"`
	DataStart     time.Time `json:"data_start,omitzero"`
	FromWaterYear int       `json:"from_water_year,omitempty"`
	ToWaterYear   int       `json:"to_water_year,omitempty"`
}
