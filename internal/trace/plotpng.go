package trace

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// RenderPNG draws the recorder's data as a PNG line plot. With a log x axis
// an all-negative axis (a negative log span) is drawn negated, with the
// sign folded into the axis label.
func RenderPNG(w io.Writer, r *Recorder, title string) error {
	xs, ys := r.Points()
	xlabel, ylabels, xlog := r.Labels()
	if len(xs) == 0 {
		return fmt.Errorf("rendering %q: no points", title)
	}

	if xlog && allNegative(xs) {
		xs = negated(xs)
		xlabel = "-" + xlabel
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Add(plotter.NewGrid())
	if xlog {
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	for i, col := range ys {
		pts := make(plotter.XYs, 0, len(xs))
		for j := range xs {
			if xlog && xs[j] <= 0 {
				continue
			}
			pts = append(pts, plotter.XY{X: xs[j], Y: col[j]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plotting column %d: %w", i, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		if i < len(ylabels) {
			p.Legend.Add(ylabels[i], line)
		}
	}

	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("rendering %q: %w", title, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing %q: %w", title, err)
	}
	return nil
}

func allNegative(xs []float64) bool {
	for _, x := range xs {
		if x >= 0 {
			return false
		}
	}
	return len(xs) > 0
}

func negated(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = -x
	}
	return out
}
