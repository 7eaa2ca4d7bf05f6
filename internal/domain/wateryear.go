package domain

import (
	"math"
	"time"
)

// serialEpoch is serial day 0 for metadata workbook dates.
var serialEpoch = time.Date(1899, time.November, 30, 0, 0, 0, 0, time.UTC)

// Day returns midnight UTC for the given calendar date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate normalizes t to midnight UTC of its calendar date.
func Truncate(t time.Time) time.Time {
	return Day(t.Year(), t.Month(), t.Day())
}

// WaterYear returns the water year containing t: October through December
// belong to the following calendar year.
func WaterYear(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year() + 1
	}
	return t.Year()
}

// WaterYearStart returns October 1 of the calendar year before waterYear.
func WaterYearStart(waterYear int) time.Time {
	return Day(waterYear-1, time.October, 1)
}

// WaterYearEnd returns September 30 of waterYear.
func WaterYearEnd(waterYear int) time.Time {
	return Day(waterYear, time.September, 30)
}

// WaterYearMonths lists the calendar months of a water year in order,
// October first.
func WaterYearMonths() []time.Month {
	return []time.Month{
		time.October, time.November, time.December,
		time.January, time.February, time.March,
		time.April, time.May, time.June,
		time.July, time.August, time.September,
	}
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return Day(year, month+1, 0).Day()
}

// SerialDate converts a day-count serial to a calendar date.
func SerialDate(serial int) time.Time {
	return serialEpoch.AddDate(0, 0, serial)
}

// InstallationDate derives the installation date from a reference date and a
// fractional count of years since installation.
func InstallationDate(reference time.Time, years float64) time.Time {
	days := int(math.Round(years * 365.25))
	return reference.AddDate(0, 0, -days)
}
