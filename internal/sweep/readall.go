package sweep

import (
	"context"
	"fmt"

	"github.com/banshee-data/labsweep/internal/device"
	"github.com/banshee-data/labsweep/internal/fsutil"
	"github.com/banshee-data/labsweep/internal/output"
)

// readPipeline reads the whole batch of read devices once per iteration,
// either synchronously or through the staged protocol, and redirects vector
// data to per-device side files.
type readPipeline struct {
	fs      fsutil.FileSystem
	reads   []ReadDevice
	formats []device.Format

	// sideStarted tracks, per device, whether an append-mode side file
	// has received its header yet.
	sideStarted []bool
}

func newReadPipeline(fs fsutil.FileSystem, reads []ReadDevice, formats []device.Format) *readPipeline {
	return &readPipeline{
		fs:          fs,
		reads:       reads,
		formats:     formats,
		sideStarted: make([]bool, len(reads)),
	}
}

// readAll reads every device for one iteration and returns the flattened
// inline row columns plus the raw unflattened values. Exactly one of the two
// modes is used for the whole batch; devices never mix within an iteration.
func (p *readPipeline) readAll(ctx context.Context, iteration int, async bool) ([]float64, []device.Value, error) {
	var (
		raw []device.Value
		err error
	)
	if async {
		raw, err = p.readStaged(ctx, iteration)
	} else {
		raw, err = p.readSync(ctx, iteration)
	}
	if err != nil {
		return nil, nil, err
	}

	flat := make([]float64, 0, len(raw))
	for i, v := range raw {
		f := p.formats[i]
		if sideFileData(f) {
			if !f.File {
				if err := p.writeSideFile(i, iteration, v); err != nil {
					return nil, nil, err
				}
			}
			// The iteration index stands in for redirected data.
			flat = append(flat, float64(iteration))
			continue
		}
		cols, err := device.FlattenValue(v, iteration)
		if err != nil {
			return nil, nil, fmt.Errorf("device %s: %w", f.HeaderName, err)
		}
		// A named multi list fixes the column count; scalars may still
		// widen (a complex reading takes two columns).
		if f.Multi.Kind == device.MultiNamed {
			if want := len(f.Multi.Names); len(cols) != want {
				return nil, nil, fmt.Errorf("device %s returned %d columns, want %d",
					f.HeaderName, len(cols), want)
			}
		}
		flat = append(flat, cols...)
	}
	return flat, raw, nil
}

func (p *readPipeline) readSync(ctx context.Context, iteration int) ([]device.Value, error) {
	raw := make([]device.Value, len(p.reads))
	for i, rd := range p.reads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := rd.Device.Get(p.callOptions(i, iteration))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p.formats[i].HeaderName, err)
		}
		raw[i] = v
	}
	return raw, nil
}

// readStaged runs the four-stage protocol as one pass per stage over the
// whole batch, so total settle time approaches the slowest device's instead
// of the sum. Stage n completes for every device before stage n+1 starts
// for any. FinishFetch is chained directly after BeginFetch per device.
// Cancellation between stages rewinds every device before propagating.
func (p *readPipeline) readStaged(ctx context.Context, iteration int) ([]device.Value, error) {
	for _, stage := range []device.AsyncStage{device.StageArm, device.StageSettle} {
		for i, rd := range p.reads {
			if _, err := rd.Device.GetAsync(stage, p.callOptions(i, iteration)); err != nil {
				return nil, fmt.Errorf("%s %s: %w", stage, p.formats[i].HeaderName, err)
			}
		}
		if err := ctx.Err(); err != nil {
			p.rewind(iteration)
			return nil, err
		}
	}

	raw := make([]device.Value, len(p.reads))
	for i, rd := range p.reads {
		opts := p.callOptions(i, iteration)
		if _, err := rd.Device.GetAsync(device.StageBeginFetch, opts); err != nil {
			return nil, fmt.Errorf("%s %s: %w", device.StageBeginFetch, p.formats[i].HeaderName, err)
		}
		v, err := rd.Device.GetAsync(device.StageFinishFetch, opts)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", device.StageFinishFetch, p.formats[i].HeaderName, err)
		}
		raw[i] = v
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return raw, nil
}

// rewind returns every device in the batch to a safe idle state after an
// interrupted staged read. Best effort: rewind errors are not reported over
// the interrupt that caused them.
func (p *readPipeline) rewind(iteration int) {
	for i, rd := range p.reads {
		rd.Device.GetAsync(device.StageRewind, p.callOptions(i, iteration))
	}
}

// callOptions returns the device's call options, adding the rendered side
// filename for devices that write their own output file.
func (p *readPipeline) callOptions(i, iteration int) device.Options {
	f := p.formats[i]
	if !f.File {
		return p.reads[i].Options
	}
	opts := device.Options{}
	for k, v := range p.reads[i].Options {
		opts[k] = v
	}
	opts["filename"] = p.sideFileName(i, iteration)
	return opts
}

func (p *readPipeline) sideFileName(i, iteration int) string {
	f := p.formats[i]
	if f.Append {
		return f.Basename
	}
	return fmt.Sprintf(f.Basename, iteration)
}

func (p *readPipeline) writeSideFile(i, iteration int, v device.Value) error {
	f := p.formats[i]
	vec, ok := v.([]float64)
	if !ok {
		return fmt.Errorf("device %s: side-file data is %T, want []float64", f.HeaderName, v)
	}
	first := !p.sideStarted[i]
	p.sideStarted[i] = true
	name := p.sideFileName(i, iteration)
	if err := output.WriteSideFile(p.fs, name, vec, f, first); err != nil {
		return fmt.Errorf("writing %s side file: %w", f.HeaderName, err)
	}
	return nil
}

func sideFileData(f device.Format) bool {
	return f.File || f.Multi.Kind == device.MultiVector || f.Multi.Kind == device.MultiNamedFile
}
