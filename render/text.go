package render

import (
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// numbers groups digits the way report readers expect.
var numbers = message.NewPrinter(language.English)

// Sparkline draws values as a row of block characters scaled between their
// minimum and maximum. NaN values are left blank.
func Sparkline(values []float64) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !math.IsNaN(v) {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}

	top := len(sparkBlocks) - 1
	out := make([]rune, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = ' '
		case hi == lo:
			out[i] = sparkBlocks[len(sparkBlocks)/2]
		default:
			out[i] = sparkBlocks[int((v-lo)/(hi-lo)*float64(top))]
		}
	}
	return string(out)
}

// Floats converts counts for plotting and sparklines.
func Floats(counts []int) []float64 {
	out := make([]float64, len(counts))
	for i, c := range counts {
		out[i] = float64(c)
	}
	return out
}

// FormatNum formats whole numbers with thousands separators and anything
// else with one decimal. NaN prints as "- -".
func FormatNum(v float64) string {
	switch {
	case math.IsNaN(v):
		return "- -"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		return numbers.Sprintf("%d", int64(v))
	default:
		return numbers.Sprintf("%.1f", v)
	}
}

var compactUnits = []struct {
	div    float64
	suffix string
	prec   int
}{
	{1e6, "M", 1},
	{1e3, "k", 0},
}

// FormatCompact abbreviates axis labels: 1.2M, 15k, 940.
func FormatCompact(v float64) string {
	for _, u := range compactUnits {
		if math.Abs(v) >= u.div {
			return strconv.FormatFloat(v/u.div, 'f', u.prec, 64) + u.suffix
		}
	}
	return strconv.FormatFloat(v, 'f', 0, 64)
}
