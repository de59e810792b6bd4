package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/labsweep/internal/device"
	"github.com/banshee-data/labsweep/internal/output"
	"github.com/banshee-data/labsweep/internal/timeutil"
	"github.com/banshee-data/labsweep/internal/trace"
)

// ErrAborted is returned when a sweep stops on a cooperative abort request,
// from the trace surface or an attached LoopControl.
var ErrAborted = errors.New("sweep aborted")

// Hook is a caller callback invoked around each iteration's read. Its return
// value is side effect only; hooks influence a sweep through the devices and
// control surfaces they already hold.
type Hook func(c *IterationContext)

// IterationContext is the transient state handed to hooks. Created fresh
// each iteration and discarded after the after-hook runs.
type IterationContext struct {
	// Index is the flat iteration counter; Part/Total report progress.
	Index       int
	Part, Total int
	// Cycle is the updown cycle number when a sweep writes distinct
	// per-direction files, zero otherwise.
	Cycle int
	// Forward holds the per-axis direction this iteration.
	Forward []bool
	// Requested holds the setpoints asked of each axis.
	Requested []float64
	// Cached holds the flattened post-set cached values; instruments may
	// round or clip, so these are what lands in the row.
	Cached []float64

	// The remaining fields are only populated for the after-hook.

	// Row is the full saved row, including the trailing timestamp.
	Row []float64
	// ReadValues holds the flattened read columns.
	ReadValues []float64
	// Raw holds the unflattened read values.
	Raw []device.Value
}

// innerLoop executes single iterations: set, settle, read, write, plot,
// pause/abort poll, strictly in that order.
type innerLoop struct {
	axes     []*Axis
	hs       *HeaderSet
	pipeline *readPipeline
	writer   *output.Writer
	tr       trace.Trace
	lc       *LoopControl
	clock    timeutil.Clock
	async    bool
	before   Hook
	after    Hook
	poll     time.Duration
	cycle    int
}

// runIteration performs one iteration. It returns ErrAborted when an abort
// source fired at the iteration boundary; any other error is fatal for the
// sweep and propagates unchanged.
func (l *innerLoop) runIteration(ctx context.Context, step *Step) error {
	// The row timestamp marks the iteration start, before any device is
	// driven or read.
	ts := float64(l.clock.Now().UnixNano()) / 1e9

	// Drive the changed axes, accumulating the largest settle wait.
	var wait time.Duration
	for k, a := range l.axes {
		if !step.Set[k] {
			continue
		}
		if err := a.Device.Set(step.Values[k], a.Options); err != nil {
			return fmt.Errorf("setting %s to %g: %w", a.Device.Name(), step.Values[k], err)
		}
		if step.Waits[k] > wait {
			wait = step.Waits[k]
		}
	}

	// Re-read the caches: instruments may round or clip on set. A value
	// count that disagrees with the column plan corrupts every following
	// row, so it is fatal.
	cached := make([]float64, 0, len(l.axes))
	for k, a := range l.axes {
		cols, err := device.FlattenValue(a.Device.GetCache(), step.Index)
		if err != nil {
			return fmt.Errorf("cached value of %s: %w", a.Device.Name(), err)
		}
		if want := l.hs.SetMultiplicities[k]; len(cols) != want {
			return fmt.Errorf("%s cached value has %d columns, want %d", a.Device.Name(), len(cols), want)
		}
		cached = append(cached, cols...)
	}

	ic := &IterationContext{
		Index:     step.Index,
		Part:      step.Part,
		Total:     step.Total,
		Cycle:     l.cycle,
		Forward:   append([]bool(nil), step.Forward...),
		Requested: append([]float64(nil), step.Values...),
		Cached:    cached,
	}
	if l.before != nil {
		l.before(ic)
	}

	if err := timeutil.SleepCtx(ctx, l.clock, wait); err != nil {
		return err
	}

	flat, raw, err := l.pipeline.readAll(ctx, step.Index, l.async)
	if err != nil {
		return err
	}

	row := make([]float64, 0, len(cached)+len(flat)+1)
	row = append(row, cached...)
	row = append(row, flat...)
	row = append(row, ts)

	ic.Row = row
	ic.ReadValues = flat
	ic.Raw = raw
	if l.after != nil {
		l.after(ic)
	}

	if err := l.writer.WriteRow(row); err != nil {
		return fmt.Errorf("writing row %d: %w", step.Index, err)
	}

	if step.Clear {
		l.tr.Clear()
	}
	l.tr.AddPoint(l.graphX(cached), pick(row, l.hs.Graph))

	return l.checkControl(ctx)
}

// graphX is the plotted x value: the innermost axis's last cached column,
// with the sign flipped back when that axis is a negative log span.
func (l *innerLoop) graphX(cached []float64) float64 {
	off := 0
	for _, m := range l.hs.SetMultiplicities {
		off += m
	}
	return l.axes[len(l.axes)-1].GraphValue(cached[off-1])
}

// checkControl polls the abort and pause sources at the iteration boundary.
// While paused it sleeps in poll-interval slices, staying interruptible.
func (l *innerLoop) checkControl(ctx context.Context) error {
	for {
		if l.tr.AbortEnabled() || (l.lc != nil && l.lc.AbortEnabled()) {
			return ErrAborted
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !l.tr.PauseEnabled() && (l.lc == nil || !l.lc.PauseEnabled()) {
			return nil
		}
		if err := timeutil.SleepCtx(ctx, l.clock, l.poll); err != nil {
			return err
		}
	}
}

func pick(row []float64, cols []int) []float64 {
	out := make([]float64, 0, len(cols))
	for _, c := range cols {
		if c >= 0 && c < len(row) {
			out = append(out, row[c])
		}
	}
	return out
}
