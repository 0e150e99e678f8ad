package render

import (
	"fmt"
	"image/color"
	"io"
	"slices"
	"strings"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"
)

const (
	pageWidth  = 8.5 * vg.Inch
	pageHeight = 11 * vg.Inch
	pdfMargin  = 0.75 * vg.Inch
)

const (
	summaryRowHeight  = 0.30 * vg.Inch
	nameColWidth      = 2.8 * vg.Inch
	valueColWidth     = 0.9 * vg.Inch
	firstHeaderHeight = 0.85 * vg.Inch
	nextHeaderHeight  = 0.5 * vg.Inch
)

var (
	mutedText  = color.Gray{Y: 100}
	headerText = color.Gray{Y: 80}
	ruleStyle  = draw.LineStyle{Color: color.Gray{Y: 180}, Width: vg.Points(0.5)}
	sparkStyle = draw.LineStyle{Color: chartBlue, Width: vg.Points(1.5)}
)

// reportDate stands in for the wall clock in PDF metadata so the same
// selection always yields the same bytes.
var reportDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

func init() {
	fpdf.SetDefaultCreationDate(reportDate)
	fpdf.SetDefaultModificationDate(reportDate)
	fpdf.SetDefaultCatalogSort(true)
}

// OverallRow names the summed row and page added when a report has more
// than one row.
const OverallRow = "ALL AREAS"

// ReportRow is one line of the report: a name and its monthly counts,
// aligned with the report's months.
type ReportRow struct {
	Name   string
	Counts []int
}

// Report writes a PDF: summary pages listing every row with its total and a
// sparkline, then one trend page per row, then an overall page summing the
// rows when there is more than one.
func Report(w io.Writer, title, subtitle string, rows []ReportRow, months []string) error {
	// The Liberation font vgpdf embeds has no en or em dash glyph.
	title = plainDashes(title)
	subtitle = plainDashes(subtitle)

	c := vgpdf.New(pageWidth, pageHeight)

	var overall []int
	if len(rows) > 1 {
		overall = make([]int, len(months))
		for _, r := range rows {
			for i, v := range r.Counts {
				if i < len(overall) {
					overall[i] += v
				}
			}
		}
	}

	drawSummaryPages(c, title, subtitle, rows, months, overall)

	for _, r := range rows {
		c.NextPage()
		drawChartPage(c, title+" - "+r.Name, r.Counts, months)
	}
	if overall != nil {
		c.NextPage()
		drawChartPage(c, title+" - "+OverallRow, overall, months)
	}

	if _, err := c.WriteTo(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func plainDashes(s string) string {
	s = strings.ReplaceAll(s, "—", "-")
	return strings.ReplaceAll(s, "–", "-")
}

// summaryLine is one row of the summary table. A line without a name is a
// rule separating the overall row.
type summaryLine struct {
	name   string
	counts []int
}

// tableLayout is the x position of each summary column.
type tableLayout struct {
	name, total, trend, right vg.Length
}

func newTableLayout(area draw.Canvas) tableLayout {
	return tableLayout{
		name:  area.Min.X,
		total: area.Min.X + nameColWidth,
		trend: area.Min.X + nameColWidth + valueColWidth,
		right: area.Max.X,
	}
}

// paginate splits lines into pages holding first lines, then rest lines
// each. There is always at least one page.
func paginate(lines []summaryLine, first, rest int) [][]summaryLine {
	pages := [][]summaryLine{lines[:min(first, len(lines))]}
	for i := first; i < len(lines); i += rest {
		pages = append(pages, lines[i:min(i+rest, len(lines))])
	}
	return pages
}

func drawSummaryPages(c *vgpdf.Canvas, title, subtitle string, rows []ReportRow, months []string, overall []int) {
	span := "No incidents"
	if len(months) > 0 {
		span = fmt.Sprintf("%s to %s (%d months)", months[0], months[len(months)-1], len(months))
	}
	if subtitle != "" {
		span = subtitle + "  |  " + span
	}

	lines := make([]summaryLine, 0, len(rows)+2)
	for _, r := range rows {
		lines = append(lines, summaryLine{name: r.Name, counts: r.Counts})
	}
	if overall != nil {
		lines = append(lines, summaryLine{}, summaryLine{name: OverallRow, counts: overall})
	}

	usableH := pageHeight - 2*pdfMargin
	first := int((usableH - firstHeaderHeight) / summaryRowHeight)
	rest := int((usableH - nextHeaderHeight) / summaryRowHeight)

	for n, page := range paginate(lines, first, rest) {
		if n > 0 {
			c.NextPage()
		}
		area := draw.Crop(draw.New(c), pdfMargin, -pdfMargin, pdfMargin, -pdfMargin)
		lay := newTableLayout(area)

		y := area.Max.Y
		if n == 0 {
			area.FillText(textStyle(14, color.Black), vg.Point{X: lay.name, Y: y - vg.Points(14)}, title)
			area.FillText(textStyle(10, mutedText), vg.Point{X: lay.name, Y: y - 0.35*vg.Inch}, span)
			y -= firstHeaderHeight
		} else {
			area.FillText(textStyle(10, mutedText), vg.Point{X: lay.name, Y: y - vg.Points(10)}, title+" (continued)")
			y -= nextHeaderHeight
		}
		y = drawColumnHeader(area, lay, y)
		for _, l := range page {
			drawSummaryLine(area, lay, y, l)
			y -= summaryRowHeight
		}
	}
}

// drawColumnHeader draws the column titles and rule just above y and
// returns the top of the first row.
func drawColumnHeader(area draw.Canvas, lay tableLayout, y vg.Length) vg.Length {
	sty := textStyle(10, headerText)
	labelY := y + vg.Points(10)
	area.FillText(sty, vg.Point{X: lay.name, Y: labelY}, "Area")
	area.FillText(sty, vg.Point{X: lay.total, Y: labelY}, "Total")
	area.FillText(sty, vg.Point{X: lay.trend, Y: labelY}, "Trend")
	area.StrokeLine2(ruleStyle, lay.name, y+vg.Points(4), lay.right, y+vg.Points(4))
	return y
}

// drawSummaryLine draws l in the row whose top edge is y.
func drawSummaryLine(area draw.Canvas, lay tableLayout, y vg.Length, l summaryLine) {
	if l.name == "" {
		area.StrokeLine2(ruleStyle, lay.name, y-vg.Points(4), lay.right, y-vg.Points(4))
		return
	}
	baseline := y - summaryRowHeight*0.65
	total := 0
	for _, v := range l.counts {
		total += v
	}
	area.FillText(textStyle(9, color.Black), vg.Point{X: lay.name, Y: baseline}, l.name)
	area.FillText(textStyle(9, color.Black), vg.Point{X: lay.total, Y: baseline}, FormatNum(float64(total)))

	cell := area
	cell.Rectangle = vg.Rectangle{
		Min: vg.Point{X: lay.trend, Y: y - summaryRowHeight + vg.Points(3)},
		Max: vg.Point{X: lay.right, Y: y - vg.Points(3)},
	}
	drawSparkline(cell, l.counts)
}

// drawSparkline strokes counts across c, scaled to its height. A flat series
// runs through the middle.
func drawSparkline(c draw.Canvas, counts []int) {
	if len(counts) < 2 {
		return
	}
	lo, hi := slices.Min(counts), slices.Max(counts)
	dx := (c.Max.X - c.Min.X) / vg.Length(len(counts)-1)
	h := c.Max.Y - c.Min.Y

	pts := make([]vg.Point, len(counts))
	for i, v := range counts {
		frac := 0.5
		if hi > lo {
			frac = float64(v-lo) / float64(hi-lo)
		}
		pts[i] = vg.Point{X: c.Min.X + vg.Length(i)*dx, Y: c.Min.Y + vg.Length(frac)*h}
	}
	c.StrokeLines(sparkStyle, pts)
}

func drawChartPage(c *vgpdf.Canvas, title string, counts []int, months []string) {
	p := trendPlot(title, Trend{
		Months: months,
		Lines:  []SeriesLine{{Name: "Incidents", Counts: counts}},
	})
	p.Legend = plot.NewLegend()

	if len(counts) > 0 {
		pts := make(plotter.XYs, len(counts))
		for i, v := range counts {
			pts[i] = plotter.XY{X: float64(i), Y: float64(v)}
		}
		if scatter, err := plotter.NewScatter(pts); err == nil {
			scatter.Color = chartBlue
			scatter.Radius = vg.Points(2)
			scatter.Shape = draw.CircleGlyph{}
			p.Add(scatter)
		}
	}

	dc := draw.New(c)
	area := draw.Crop(dc, pdfMargin, -pdfMargin, pdfMargin, -pdfMargin)
	p.Draw(area)
}

func textStyle(size float64, clr color.Color) draw.TextStyle {
	sty := draw.TextStyle{
		Color:   clr,
		Font:    plot.DefaultFont,
		Handler: plot.DefaultTextHandler,
	}
	sty.Font.Size = vg.Points(size)
	return sty
}
