// Package sweep is the acquisition scheduling engine: N-dimensional setpoint
// iteration over instrument devices, a latency-hiding staged read pipeline,
// per-axis settle handling, structured data files and cooperative
// pause/abort control.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/labsweep/internal/device"
	"github.com/banshee-data/labsweep/internal/filename"
	"github.com/banshee-data/labsweep/internal/fsutil"
	"github.com/banshee-data/labsweep/internal/monitoring"
	"github.com/banshee-data/labsweep/internal/output"
	"github.com/banshee-data/labsweep/internal/runstore"
	"github.com/banshee-data/labsweep/internal/sequencer"
	"github.com/banshee-data/labsweep/internal/timeutil"
	"github.com/banshee-data/labsweep/internal/trace"
)

// DefaultPollInterval is the cadence of pause polling when none is set.
const DefaultPollInterval = 100 * time.Millisecond

const progressEvery = 10 * time.Second

// Config describes one sweep run.
type Config struct {
	// Axes are the sweep dimensions, slowest first; the last axis is the
	// innermost (fastest) one. Required.
	Axes []*Axis
	// Reads is the list of devices read each iteration. Required.
	Reads []ReadDevice

	// Filename is the output template; the allocator's tokens apply. The
	// {updown} field, with a single updown-both axis, selects distinct
	// per-direction files instead of one concatenated file.
	Filename string
	// Title names the run in logs and the run store.
	Title string

	// Async selects the staged read protocol for the whole batch.
	Async bool
	// Parallel steps every axis together instead of odometer order.
	Parallel bool
	// DryRun truncates every axis to its endpoints to validate
	// reachability without measuring the full grid.
	DryRun bool
	// ResetAfter returns every axis to its first setpoint when the sweep
	// ends, on any path.
	ResetAfter bool

	// Before and After run around each iteration's read.
	Before Hook
	After  Hook
	// Seq, when set, is stepped once per iteration; the sweep stops
	// cleanly when the sequence ends.
	Seq *sequencer.Sequencer

	// Trace receives live points and provides pause/abort switches.
	// Defaults to trace.Null.
	Trace trace.Trace
	// Control is an optional externally shared LoopControl, polled
	// alongside the trace's switches.
	Control *LoopControl
	// Comment, when set, is registered as the trace's comment callback
	// for the duration of the run.
	Comment func() string

	// Annotations are free-form comment lines written before the data.
	Annotations []string
	// ConfDevices are dumped as configuration blocks without contributing
	// data columns.
	ConfDevices []device.Device

	// Allocator, FS, Clock and Store default to a fresh allocator, the OS
	// filesystem, the real clock and no persistence.
	Allocator *filename.Allocator
	FS        fsutil.FileSystem
	Clock     timeutil.Clock
	Store     *runstore.Store

	// PollInterval tunes the pause/abort polling cadence.
	PollInterval time.Duration
}

// Result summarizes a completed (or aborted) run.
type Result struct {
	RunID      string
	Filenames  []string
	Iterations int
}

// Run executes one sweep on the calling goroutine. Setup failures return
// before any hardware mutation or file creation. Once acquiring, every exit
// path closes the output files, detaches the comment callback and marks the
// trace, the store and the LoopControl with the terminal state. An abort
// request surfaces as ErrAborted; a cancelled context as its error.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if len(cfg.Axes) == 0 {
		return nil, fmt.Errorf("sweep needs at least one axis")
	}
	if len(cfg.Reads) == 0 {
		return nil, fmt.Errorf("sweep needs at least one read device")
	}
	applyDefaults(&cfg)

	if cfg.DryRun {
		for _, a := range cfg.Axes {
			a.Truncate()
		}
	}

	distinct := cfg.distinctUpdown()
	cycles := 1
	if distinct {
		cycles = 2
	}

	// Validate iteration before touching hardware or disk.
	if _, err := NewIterator(cycleAxes(cfg.Axes, distinct, 0), cfg.Parallel); err != nil {
		return nil, err
	}

	if cfg.Control != nil {
		cfg.Control.Reset()
		defer cfg.Control.SetFinished(true)
	}
	if cfg.Comment != nil {
		cfg.Trace.SetCommentFunc(cfg.Comment)
		defer cfg.Trace.SetCommentFunc(nil)
	}

	res := &Result{}
	if cfg.Store != nil {
		run, err := cfg.Store.CreateRun(cfg.Title)
		if err != nil {
			return nil, fmt.Errorf("registering run: %w", err)
		}
		res.RunID = run.ID
	}

	cfg.Trace.SetStatus("running")

	var runErr error
	cfg.Allocator.ClearLastNames()
	alloc := &cycleAlloc{}
	if distinct {
		// Both direction files share one timestamp and counter value,
		// so the up/down pair stays matched.
		alloc.now = cfg.Clock.Now()
		if alloc.nextI, runErr = cfg.Allocator.NextIndex(); runErr != nil {
			runErr = fmt.Errorf("loading filename counter: %w", runErr)
		}
	}
	for cycle := 0; cycle < cycles && runErr == nil; cycle++ {
		runErr = runCycle(ctx, &cfg, res, cycle, distinct, alloc)
	}

	status, storeStatus := terminalStatus(runErr)
	cfg.Trace.SetStatus(status)
	if cfg.Control != nil && errors.Is(runErr, ErrAborted) {
		cfg.Control.SetAbortCompleted(true)
	}
	if cfg.Store != nil && res.RunID != "" {
		if err := cfg.Store.FinishRun(res.RunID, storeStatus, int64(res.Iterations)); err != nil {
			monitoring.Logf("sweep %s: recording final state: %v", cfg.Title, err)
		}
	}

	if cfg.ResetAfter {
		for _, a := range cfg.Axes {
			if err := a.Device.Set(a.Values[0], a.Options); err != nil {
				monitoring.Logf("sweep %s: resetting %s: %v", cfg.Title, a.Device.Name(), err)
			}
		}
	}

	monitoring.Logf("sweep %s: %s after %d points", cfg.Title, status, res.Iterations)
	if runErr != nil {
		return res, runErr
	}
	return res, nil
}

// cycleAlloc carries the first cycle's filename allocation into the second,
// keeping a distinct-updown file pair on one timestamp and counter index.
type cycleAlloc struct {
	now   time.Time
	nextI int
	index int
}

// runCycle performs one iteration cycle into one output file. A plain sweep
// has a single cycle; distinct updown files run two, reversing the axis and
// restarting the iteration count for the second.
func runCycle(ctx context.Context, cfg *Config, res *Result, cycle int, distinct bool, alloc *cycleAlloc) error {
	axes := cycleAxes(cfg.Axes, distinct, cycle)
	it, err := NewIterator(axes, cfg.Parallel)
	if err != nil {
		return err
	}

	opts := filename.Opts{
		Fields: cfg.templateFields(cycle, distinct, it.Total()),
	}
	if distinct {
		opts.Now = alloc.now
		if cycle == 1 {
			opts.NextI = &alloc.nextI
			opts.StartI = alloc.index
			opts.NoSearch = true
		}
	}
	name, idx, err := cfg.Allocator.Allocate(cfg.Filename, opts)
	if err != nil {
		return err
	}
	if cycle == 0 {
		alloc.index = idx
	}
	hs, err := BuildHeaders(axes, cfg.Reads, name, cfg.Annotations, cfg.ConfDevices)
	if err != nil {
		return err
	}

	f, err := cfg.FS.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	defer f.Close()
	res.Filenames = append(res.Filenames, name)
	if cfg.Store != nil && res.RunID != "" {
		if err := cfg.Store.AddFilename(res.RunID, name); err != nil {
			monitoring.Logf("sweep %s: recording filename: %v", cfg.Title, err)
		}
	}

	w := output.NewWriter(f)
	if err := w.WriteConf(hs.ConfBlocks); err != nil {
		return err
	}
	for _, line := range hs.Annotations {
		if err := w.WriteComment([]string{line}); err != nil {
			return err
		}
	}
	if err := w.WriteComment(append(append([]string(nil), hs.Headers...), "time")); err != nil {
		return err
	}

	innerAxis := axes[len(axes)-1]
	if cycle == 0 {
		cfg.Trace.Configure(innerAxis.Device.Name(), pickHeaders(hs), innerAxis.Log)
	}

	loop := &innerLoop{
		axes:     axes,
		hs:       hs,
		pipeline: newReadPipeline(cfg.FS, cfg.Reads, hs.ReadFormats),
		writer:   w,
		tr:       cfg.Trace,
		lc:       cfg.Control,
		clock:    cfg.Clock,
		async:    cfg.Async,
		before:   cfg.Before,
		after:    cfg.After,
		poll:     cfg.PollInterval,
		cycle:    cycle,
	}

	lastProgress := cfg.Clock.Now()
	for {
		step, ok := it.Next()
		if !ok {
			return nil
		}
		if err := loop.runIteration(ctx, step); err != nil {
			return err
		}
		res.Iterations++
		if cfg.Seq != nil && !cfg.Seq.Step(step.Index) {
			return nil
		}
		if cfg.Clock.Since(lastProgress) >= progressEvery {
			monitoring.Logf("sweep %s: %d/%d points", cfg.Title, step.Part+1, step.Total)
			lastProgress = cfg.Clock.Now()
		}
	}
}

// terminalStatus maps the run outcome to the trace status line and the
// stored run status.
func terminalStatus(err error) (traceStatus, storeStatus string) {
	switch {
	case err == nil:
		return "completed", runstore.StatusDone
	case errors.Is(err, ErrAborted):
		return "abort", runstore.StatusAborted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "ctrl-c", runstore.StatusAborted
	default:
		return "error", runstore.StatusError
	}
}

func applyDefaults(cfg *Config) {
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Trace == nil {
		cfg.Trace = trace.Null{}
	}
	if cfg.Allocator == nil {
		var counter filename.CounterStore
		if cfg.Store != nil {
			counter = cfg.Store
		}
		cfg.Allocator = filename.NewAllocator(cfg.FS, cfg.Clock, counter)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Filename == "" {
		cfg.Filename = "sweep_%T.txt"
	}
	if cfg.Title == "" {
		cfg.Title = strings.TrimSuffix(cfg.Filename, ".txt")
	}
}

// distinctUpdown reports whether this run writes per-direction files: one
// updown-both axis and a template that names the direction.
func (cfg *Config) distinctUpdown() bool {
	return len(cfg.Axes) == 1 &&
		cfg.Axes[0].Updown == UpdownBoth &&
		strings.Contains(cfg.Filename, "{updown}")
}

// cycleAxes returns the axes for one cycle. Distinct updown runs strip the
// updown flag and reverse the span for the second cycle, so both files share
// headers while the rows run in opposite directions.
func cycleAxes(axes []*Axis, distinct bool, cycle int) []*Axis {
	if !distinct {
		return axes
	}
	a := *axes[0]
	a.Updown = UpdownOff
	if cycle == 1 {
		a.Updown = UpdownReverse
	}
	return []*Axis{&a}
}

func (cfg *Config) templateFields(cycle int, distinct bool, npts int) map[string]any {
	in := cfg.Axes[len(cfg.Axes)-1]
	fields := map[string]any{
		"start": in.Values[0],
		"stop":  in.Values[len(in.Values)-1],
		"npts":  npts,
	}
	if distinct {
		if cycle == 0 {
			fields["updown"] = "up"
		} else {
			fields["updown"] = "down"
		}
	}
	return fields
}

// pickHeaders maps the absolute graph column indices back to column titles.
func pickHeaders(hs *HeaderSet) []string {
	out := make([]string, 0, len(hs.Graph))
	for _, c := range hs.Graph {
		if c >= 0 && c < len(hs.Headers) {
			out = append(out, hs.Headers[c])
		}
	}
	return out
}
