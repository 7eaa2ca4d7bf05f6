package download

import (
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageText_OrdersRowsAndRuns(t *testing.T) {
	rows := pdf.Rows{
		{Position: 700, Content: pdf.TextHorizontal{
			{S: "1000", X: 10, W: 20, FontSize: 8},
			{S: "0.12", X: 60, W: 16, FontSize: 8},
			{S: "E", X: 76, W: 4, FontSize: 8},
		}},
		{Position: 760, Content: pdf.TextHorizontal{
			{S: "JANUARY 2021", X: 10, W: 60, FontSize: 10},
		}},
		{Position: 730, Content: pdf.TextHorizontal{
			{S: "2", X: 70, W: 4, FontSize: 8},
			{S: "GAGE", X: 10, W: 20, FontSize: 8},
			{S: "1", X: 60, W: 4, FontSize: 8},
		}},
	}

	assert.Equal(t, "JANUARY 2021\nGAGE 1 2\n1000 0.12E\n", pageText(rows))
}

func TestPDFTextExtractor_RejectsGarbage(t *testing.T) {
	_, err := PDFTextExtractor{}.Extract([]byte("this is not a pdf"))
	require.Error(t, err)
}
