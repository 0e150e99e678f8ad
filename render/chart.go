package render

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/zalepa/crimemap/crime"
)

const (
	chartWidth  = 9 * vg.Inch
	chartHeight = 4.5 * vg.Inch
)

var chartBlue = color.RGBA{R: 31, G: 119, B: 180, A: 255}

// palette colors trend lines in order; it repeats past its length.
var palette = []color.Color{
	chartBlue,
	color.RGBA{R: 255, G: 127, B: 14, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
	color.RGBA{R: 214, G: 39, B: 40, A: 255},
	color.RGBA{R: 148, G: 103, B: 189, A: 255},
	color.RGBA{R: 140, G: 86, B: 75, A: 255},
	color.RGBA{R: 227, G: 119, B: 194, A: 255},
	color.RGBA{R: 127, G: 127, B: 127, A: 255},
}

// TrendChart writes t as a PNG line chart, one line per series.
func TrendChart(w io.Writer, title string, t Trend) error {
	p := trendPlot(title, t)
	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func trendPlot(title string, t Trend) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(12)
	p.BackgroundColor = color.White
	p.Y.Label.Text = "Incidents"
	p.Add(plotter.NewGrid())

	if len(t.Months) == 0 {
		p.Title.Text = title + " (no incidents)"
	}

	for i, l := range t.Lines {
		pts := make(plotter.XYs, len(l.Counts))
		for j, c := range l.Counts {
			pts[j] = plotter.XY{X: float64(j), Y: float64(c)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			continue
		}
		line.Color = palette[i%len(palette)]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(l.Name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = true

	p.X.Tick.Marker = monthTicker(t.Months)
	p.X.Min = -0.5
	p.X.Max = math.Max(float64(len(t.Months))-0.5, 0.5)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	p.Y.Min = 0
	p.Y.Tick.Marker = compactTicks
	return p
}

// monthTicker ticks every month and labels at most about twelve of them,
// on months that divide evenly by the step so labels land on quarters or
// years.
func monthTicker(months []string) plot.Ticker {
	step := 1
	for _, s := range []int{1, 2, 3, 6, 12} {
		step = s
		if len(months) <= 12*s {
			break
		}
	}
	if len(months) > 12*12 {
		step = 12 * ((len(months) + 143) / 144)
	}

	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		ticks := make([]plot.Tick, len(months))
		for i, m := range months {
			ticks[i].Value = float64(i)
			if monthOfYear(m, i)%step == 0 {
				ticks[i].Label = m
			}
		}
		return ticks
	})
}

// monthOfYear returns the zero-based month of a "2006-01" key, or i when the
// key does not parse.
func monthOfYear(key string, i int) int {
	t, err := time.Parse(crime.MonthLayout, key)
	if err != nil {
		return i
	}
	return int(t.Month()) - 1
}

// compactTicks uses the default tick positions with FormatCompact labels.
var compactTicks = plot.TickerFunc(func(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i := range ticks {
		if ticks[i].Label != "" {
			ticks[i].Label = FormatCompact(ticks[i].Value)
		}
	}
	return ticks
})
