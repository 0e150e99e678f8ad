package cmd

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/render"
)

var (
	summarySel   selectionFlags
	summaryGroup string
	summaryTop   int
	summaryPDF   string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print monthly incident trends for a selection",
	Long: `Print a table of monthly incident counts for the selected municipality,
one row per category or neighborhood with a sparkline of the trend.
With --group total a line chart of the overall trend is drawn instead.`,
	Example: `  crimemap summary -m Cambridge --from 2021-01-01 --to 2021-12-31
  crimemap summary --group neighborhood --top 10
  crimemap summary -m Boston --category Property --pdf boston.pdf`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := groupBy(summaryGroup)
		if err != nil {
			return err
		}
		if summaryTop < 0 {
			return fmt.Errorf("invalid --top %d: must be >= 0", summaryTop)
		}

		b, sel, err := summarySel.load(cmd.Context())
		if err != nil {
			return err
		}
		incidents := crime.Filter(b.Incidents, sel)
		title := fmt.Sprintf("%s crime incidents by %s", b.Name, summaryGroup)

		out := cmd.OutOrStdout()
		t := render.Series(incidents, group, summaryTop)
		if len(t.Lines) == 1 {
			renderChart(out, title, t.Months, t.Lines[0].Counts)
		} else {
			renderTable(out, title, t)
		}

		if summaryPDF == "" {
			return nil
		}
		// The PDF always breaks down by neighborhood.
		all := render.Series(incidents, crime.ByNeighborhood, 0)
		rows := make([]render.ReportRow, len(all.Lines))
		for i, l := range all.Lines {
			rows[i] = render.ReportRow{Name: l.Name, Counts: l.Counts}
		}
		return writeReport(out, summaryPDF, b.Name+" crime incidents", sel.Describe(), rows, all.Months)
	},
}

func init() {
	summarySel.register(summaryCmd)
	summaryCmd.Flags().StringVarP(&summaryGroup, "group", "g", "category", "Group rows by: category, neighborhood, total")
	summaryCmd.Flags().IntVar(&summaryTop, "top", 0, "Keep the N largest groups and sum the rest into Other (0 = all)")
	summaryCmd.Flags().StringVar(&summaryPDF, "pdf", "", "Also write a PDF report to this path")
}

func writeReport(out io.Writer, path, title, subtitle string, rows []render.ReportRow, months []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.Report(f, title, subtitle, rows, months); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	f, err = os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := render.PageCount(f)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	fmt.Fprintf(out, "\nwrote %s (%d pages)\n", path, n)
	return nil
}

func renderTable(w io.Writer, title string, t render.Trend) {
	maxName := len("Overall")
	for _, l := range t.Lines {
		if len(l.Name) > maxName {
			maxName = len(l.Name)
		}
	}
	if maxName < 10 {
		maxName = 10
	}

	nMonths := len(t.Months)
	dateRange := "(no incidents)"
	if nMonths > 0 {
		dateRange = fmt.Sprintf("%s to %s (%d months)", t.Months[0], t.Months[nMonths-1], nMonths)
	}

	fmt.Fprintln(w, title)
	fmt.Fprintf(w, "Trend: %s\n\n", dateRange)

	rowFmt := fmt.Sprintf("%%-%ds  %%10s   %%s\n", maxName)
	rule := strings.Repeat("─", maxName+2+10+3+nMonths)
	fmt.Fprintf(w, rowFmt, "Group", "Total", "Trend")
	fmt.Fprintln(w, rule)
	for _, l := range t.Lines {
		fmt.Fprintf(w, rowFmt, l.Name, render.FormatNum(float64(l.Total)), render.Sparkline(render.Floats(l.Counts)))
	}

	if len(t.Lines) > 1 {
		total := 0
		for _, c := range t.Total {
			total += c
		}
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, rowFmt, "Overall", render.FormatNum(float64(total)), render.Sparkline(render.Floats(t.Total)))
	}
}

// renderChart draws a single monthly series as a terminal line chart.
func renderChart(w io.Writer, title string, months []string, counts []int) {
	fmt.Fprintln(w, title)
	if len(months) == 0 {
		fmt.Fprintln(w, "(no incidents)")
		return
	}
	fmt.Fprintln(w)

	height := 15
	n := len(months)

	labelWidth := 10
	colWidth := (100 - labelWidth) / n
	if colWidth > 8 {
		colWidth = 8
	}
	if colWidth < 3 {
		colWidth = 3
	}

	minVal, maxVal := float64(counts[0]), float64(counts[0])
	for _, c := range counts {
		minVal = math.Min(minVal, float64(c))
		maxVal = math.Max(maxVal, float64(c))
	}
	valRange := maxVal - minVal
	if valRange == 0 {
		valRange = 1
		minVal -= 0.5
	}

	rows := make([]int, n)
	for i, c := range counts {
		r := int(math.Round((float64(c) - minVal) / valRange * float64(height-1)))
		rows[i] = clampRow(r, height)
	}

	totalWidth := n * colWidth
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", totalWidth))
	}

	for i := 0; i < n; i++ {
		col := i*colWidth + colWidth/2
		grid[rows[i]][col] = '●'
		if i == n-1 {
			continue
		}
		// Connect to the next point by linear interpolation.
		endCol := (i+1)*colWidth + colWidth/2
		span := endCol - col
		for c := col + 1; c < endCol; c++ {
			f := float64(c-col) / float64(span)
			r := clampRow(int(math.Round(float64(rows[i])+f*float64(rows[i+1]-rows[i]))), height)
			if grid[r][c] == ' ' {
				grid[r][c] = '·'
			}
		}
	}

	yLabels := make(map[int]string)
	for i := 0; i < 5; i++ {
		row := int(math.Round(float64(i) / 4.0 * float64(height-1)))
		yLabels[row] = render.FormatCompact(minVal + float64(row)/float64(height-1)*valRange)
	}

	for r := height - 1; r >= 0; r-- {
		fmt.Fprintf(w, "%8s │%s\n", yLabels[r], string(grid[r]))
	}
	fmt.Fprintf(w, "%8s └%s\n", "", strings.Repeat("─", totalWidth))

	labelEvery := 1
	if colWidth < 8 {
		labelEvery = (8 + colWidth - 1) / colWidth
	}
	xLine := []byte(strings.Repeat(" ", totalWidth))
	for i := 0; i < n; i += labelEvery {
		pos := i*colWidth + colWidth/2 - len(months[i])/2
		if pos < 0 {
			pos = 0
		}
		for j := 0; j < len(months[i]) && pos+j < totalWidth; j++ {
			xLine[pos+j] = months[i][j]
		}
	}
	fmt.Fprintf(w, "%8s  %s\n", "", string(xLine))
}

func clampRow(r, height int) int {
	if r < 0 {
		return 0
	}
	if r >= height {
		return height - 1
	}
	return r
}
