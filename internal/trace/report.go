package trace

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderHTML writes a standalone HTML line-chart report of the recorder's
// data, one series per plotted column.
func RenderHTML(w io.Writer, r *Recorder, title string) error {
	xs, ys := r.Points()
	xlabel, ylabels, xlog := r.Labels()
	if len(xs) == 0 {
		return fmt.Errorf("rendering %q: no points", title)
	}
	if xlog && allNegative(xs) {
		xs = negated(xs)
		xlabel = "-" + xlabel
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: r.Status(),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: xlabel}),
	)

	labels := make([]string, len(xs))
	for i, x := range xs {
		labels[i] = strconv.FormatFloat(x, 'g', 6, 64)
	}
	line.SetXAxis(labels)
	for i, col := range ys {
		name := fmt.Sprintf("col%d", i)
		if i < len(ylabels) {
			name = ylabels[i]
		}
		data := make([]opts.LineData, len(col))
		for j, v := range col {
			data[j] = opts.LineData{Value: v}
		}
		line.AddSeries(name, data)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("rendering %q: %w", title, err)
	}
	return nil
}
