package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGaugeIDHistory(t *testing.T) {
	tests := []struct {
		in       string
		current  string
		previous []string
	}{
		{"59700; 4695 prior to 2/20/2018", "59700", []string{"4695"}},
		{"59700", "59700", []string{}},
		{" 59700 ;4695 prior to 2018; 1200 prior to 2001 ;", "59700", []string{"4695", "1200"}},
		{"", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			current, previous := ParseGaugeIDHistory(tt.in)
			assert.Equal(t, tt.current, current)
			assert.Equal(t, tt.previous, previous)
		})
	}
}

func TestParseElevation(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1,465 ft.", 1465, false},
		{"1465", 1465, false},
		{"2,130.5 feet", 2130.5, false},
		{"unknown", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseElevation(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseCount(t *testing.T) {
	n, ok := ParseCount("None")
	assert.True(t, ok)
	assert.Zero(t, n)

	n, ok = ParseCount(" 17 ")
	assert.True(t, ok)
	assert.Equal(t, 17, n)

	_, ok = ParseCount("n/a")
	assert.False(t, ok)
}

func TestCompleteYears(t *testing.T) {
	n, ok := CompleteYears("Days with Rain for 25 Complete Years")
	assert.True(t, ok)
	assert.Equal(t, 25, n)

	_, ok = CompleteYears("Annual Precipitation")
	assert.False(t, ok)
}

func TestStatKey(t *testing.T) {
	assert.Equal(t, "Annual Precipitation", statKey("Annual Precipitation (in.)"))
	assert.Equal(t, "Days with Rain", statKey("Days with Rain for 25 Complete Years"))
}
