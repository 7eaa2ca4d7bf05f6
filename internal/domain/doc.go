// Package domain models rainfall gauge records published by the county
// flood-control agency and the import jobs that load them.
//
// # Documents
//
// The agency publishes gauge data in three fixed layouts. Historic data is a
// workbook per water year; recent data is a monthly PDF report which arrives
// here as extracted text; each station also has a metadata workbook. The
// layouts themselves are described in package parser.
//
// # Water Years
//
// A water year runs from October 1 through September 30 and is named for the
// calendar year containing its September, so 2021-10-01 belongs to water year
// 2022. Cumulative depth is a running total that resets at October 1. See
// [WaterYear] and [WaterYearStart].
//
// # Serial Dates
//
// Date fields in the metadata workbook are day counts from a fixed epoch:
// serial 0 is 1899-11-30, so serial 35835 is 1998-01-10. See [SerialDate].
//
// # Source Precedence
//
// Workbook and PDF coverage overlap during the calendar year the agency moved
// from one format to the other. Where two documents report the same gauge-day
// the workbook wins: its values are typed digitally while the PDF values pass
// through text extraction. See [SourceRank].
//
// # Jurisdiction
//
// Coordinates are checked against the agency's bounding box and elevation and
// annual precipitation against sane ranges. Violations become
// [ValidationWarning] values stored with the gauge record, never silent drops.
package domain
