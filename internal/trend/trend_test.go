package trend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, NoTrend, Summarize(nil, 10))
	assert.Equal(t, NoTrend, Summarize([]float64{5}, 10))
}

func TestSummarizeFlat(t *testing.T) {
	got := Summarize([]float64{5, 5, 5}, 10)
	lowest := string([]rune(Bars)[0])
	assert.Equal(t, strings.Repeat(lowest, 3), got)
}

func TestSummarizeLength(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50, 60, 70, 80}

	assert.Len(t, []rune(Summarize(values, 16)), len(values))
	assert.Len(t, []rune(Summarize(values, 4)), 4)
	assert.Len(t, []rune(Summarize(values, 0)), len(values), "zero width falls back to the default cap")
}

func TestSummarizeKeepsMostRecent(t *testing.T) {
	// Old high plateau followed by a recent low one; only the window after
	// truncation should shape the output.
	values := []float64{100, 100, 100, 10, 20, 30}
	got := Summarize(values, 3)

	bars := []rune(Bars)
	want := string([]rune{bars[0], bars[3], bars[6]})
	assert.Equal(t, want, got)
}

func TestSummarizeExtremes(t *testing.T) {
	bars := []rune(Bars)
	got := []rune(Summarize([]float64{10, 90}, 10))
	require.Len(t, got, 2)
	assert.Equal(t, bars[0], got[0], "minimum maps to the lowest glyph")
	assert.Equal(t, bars[len(bars)-1], got[1], "maximum maps to the highest glyph")
}

func TestSummarizeIdempotentOverOwnBuckets(t *testing.T) {
	values := []float64{120, 110, 95, 99, 80, 80, 75}
	first := Summarize(values, 16)

	bars := []rune(Bars)
	index := map[rune]float64{}
	for i, r := range bars {
		index[r] = float64(i)
	}

	rescaled := make([]float64, 0, len(first))
	for _, r := range first {
		rescaled = append(rescaled, index[r])
	}

	assert.Equal(t, first, Summarize(rescaled, 16))
}
