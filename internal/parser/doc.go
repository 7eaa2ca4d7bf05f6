// Package parser converts the agency's three document layouts into domain
// records. Layouts are fixed; anything that does not match is reported as a
// [domain.ParseError] scoped as narrowly as possible.
//
// # Water-Year Workbook
//
// One workbook per water year covers every gauge. It has twelve sheets named
// by month ("Oct", "November", ...; the first three letters are matched
// case-insensitively) and is read in water-year order whatever the sheet order:
//
//	A1 "Date", B1.. gauge ids
//	A2..A32 date, either ISO text (2020-10-01) or an Excel date number
//	B2..    daily rainfall in inches for that gauge
//
// Blank date rows (days the month does not have) are skipped. Blank and zero
// cells produce no reading. Values are incremental; cumulative depth is the
// running per-gauge sum within the workbook.
//
// # Monthly Report Text
//
// Text extracted from the monthly PDF report, pages separated by form feeds:
//
//	PRECIPITATION REPORT   MONTH OF JANUARY 2021          PAGE 1
//	GROUP A01  SALT RIVER VALLEY
//	GAGE      1     2     3  ...  31
//	59700  0.00  0.12*    _  ...
//	NOTE *: GAGE SERVICED, PARTIAL DAY
//
// Group ids are one letter and two digits. A GAGE line opens the day-column
// table for the current group. Each gauge row holds the cumulative water-year
// depth for up to the number of days in the month. "_" marks missing data and
// is skipped. A footnote marker after a value ("*" or letters, "E" meaning
// estimated) is resolved through the NOTE legend anywhere in the document.
//
// # Metadata Workbook
//
// One sheet per station at fixed coordinates:
//
//	B2  id history   "59700; 4695 prior to 2/20/2018"
//	B3  name         required
//	B4  type         default "Rain"
//	B5  county       default "Maricopa"
//	B6  status       default "Active"
//	B7  latitude     required
//	B8  longitude    required
//	B9  elevation    "1,465 ft."
//	B10 reference date (serial)
//	B11 years since installation
//	B12 data coverage start (serial)
//	A15:B40 statistics, label and value
//
// A statistics label may carry "for N Complete Years", which sets the record's
// complete-year count. Count values of "None" mean zero.
package parser
