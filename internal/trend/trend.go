// Package trend condenses an ordered price history into a fixed-width
// qualitative sparkline.
package trend

// Bars is the glyph palette, ordered low to high.
const Bars = "▁▂▃▄▅▆▇"

// NoTrend is returned when fewer than two points exist.
const NoTrend = "-"

// DefaultWidth caps the number of glyphs when the caller passes no width.
const DefaultWidth = 16

// Summarize buckets the most recent width values into the palette by linear
// min/max scaling. Older values are discarded first when the history exceeds
// the width. The result has exactly min(len(values), width) glyphs and is
// deterministic: summarizing a summary's own bucket values is a no-op.
func Summarize(values []float64, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	if len(values) < 2 {
		return NoTrend
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	vmin, vmax := values[0], values[0]
	for _, v := range values[1:] {
		if v < vmin {
			vmin = v
		}
		if v > vmax {
			vmax = v
		}
	}

	bars := []rune(Bars)
	if vmin == vmax {
		out := make([]rune, len(values))
		for i := range out {
			out[i] = bars[0]
		}
		return string(out)
	}

	out := make([]rune, 0, len(values))
	span := vmax - vmin
	for _, v := range values {
		// Multiply before dividing so integer-valued inputs bucket exactly.
		idx := int((v - vmin) * float64(len(bars)-1) / span)
		if idx >= len(bars) {
			idx = len(bars) - 1
		}
		out = append(out, bars[idx])
	}
	return string(out)
}
