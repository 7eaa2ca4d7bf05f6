package download

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestURLs_Defaults(t *testing.T) {
	u := NewURLs("https://rain.example.gov/", "", "", "")

	assert.Equal(t, "https://rain.example.gov/rainfall/water-year/WY2021.xlsx", u.WorkbookURL("1000", 2021))
	assert.Equal(t, "https://rain.example.gov/rainfall/monthly/2021/jan2021.pdf", u.PDFURL("1000", 2021, time.January))
	assert.Equal(t, "https://rain.example.gov/rainfall/gauges/1000.xlsx", u.MetadataURL("1000"))
}

func TestURLs_CustomTemplates(t *testing.T) {
	u := NewURLs("https://rain.example.gov", "wy/{water_year}/{station}.xlsx", "/reports/{year}-{month}.pdf", "https://meta.example.gov/{station}")

	assert.Equal(t, "https://rain.example.gov/wy/2019/2200.xlsx", u.WorkbookURL("2200", 2019))
	assert.Equal(t, "https://rain.example.gov/reports/2020-03.pdf", u.PDFURL("2200", 2020, time.March))
	assert.Equal(t, "https://meta.example.gov/2200", u.MetadataURL("2200"))
}

func TestURLs_Shared(t *testing.T) {
	u := NewURLs("https://rain.example.gov", "", "", "")

	tests := []struct {
		url  string
		want bool
	}{
		{u.WorkbookURL("1000", 2021), true},
		{u.PDFURL("1000", 2022, time.May), true},
		{u.MetadataURL("1000"), false},
		{"https://elsewhere.example.com/rainfall/water-year/WY2021.xlsx", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, u.Shared(tt.url))
		})
	}

	perStation := NewURLs("https://rain.example.gov", "wy/{water_year}/{station}.xlsx", "", "")
	assert.False(t, perStation.Shared(perStation.WorkbookURL("1000", 2021)))
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "workbook/WY2021/WY2021.xlsx", ArchiveKey("workbook", "WY2021", "https://x/rainfall/water-year/WY2021.xlsx"))
	assert.Equal(t, "metadata/1000/1000.xlsx", ArchiveKey("metadata", "1000", "https://x/gauges/1000.xlsx?v=2"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", contentType("pdf/2021-01/jan2021.PDF"))
	assert.Equal(t, "application/octet-stream", contentType("misc/file"))
}
