package device

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/labsweep/internal/timeutil"
)

// Memory is a settable in-process device. It stands in for a slow
// instrument output (a gate voltage, a field setpoint) in tests and in the
// CLI's simulation mode. An optional quantization step models instruments
// that round the requested value, so the cached value after Set can differ
// from the requested one.
type Memory struct {
	name string
	step float64
	min  float64
	max  float64

	mu    sync.Mutex
	value float64
}

// NewMemory creates a Memory device holding initial, with no range limit.
func NewMemory(name string, initial float64) *Memory {
	return &Memory{
		name:  name,
		min:   math.Inf(-1),
		max:   math.Inf(1),
		value: initial,
	}
}

// WithRange limits the device to [min, max].
func (m *Memory) WithRange(min, max float64) *Memory {
	m.min, m.max = min, max
	return m
}

// WithStep quantizes set values to multiples of step.
func (m *Memory) WithStep(step float64) *Memory {
	m.step = step
	return m
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Get(Options) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

func (m *Memory) Set(value float64, opts Options) error {
	if err := m.Check(value, opts); err != nil {
		return err
	}
	if m.step > 0 {
		value = math.Round(value/m.step) * m.step
	}
	m.mu.Lock()
	m.value = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Check(value float64, _ Options) error {
	if value < m.min || value > m.max {
		return &RangeError{Device: m.name, Value: value, Min: m.min, Max: m.max}
	}
	return nil
}

func (m *Memory) GetCache() Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func (m *Memory) GetFormat(Options) Format { return Format{} }

func (m *Memory) GetAsync(stage AsyncStage, opts Options) (Value, error) {
	// A memory device has no latency to hide; only the fetch stage does work.
	switch stage {
	case StageFinishFetch:
		return m.Get(opts)
	case StageArm, StageSettle, StageBeginFetch, StageRewind:
		return nil, nil
	}
	return nil, fmt.Errorf("%s: unknown async stage %d", m.name, int(stage))
}

// Func is a read-only device computing its value from a caller-supplied
// function. It implements the full staged read protocol with a configurable
// settle time, which makes it the workhorse of the pipeline tests and the
// simulation mode.
type Func struct {
	name   string
	fn     func() (Value, error)
	format Format
	settle time.Duration
	clock  timeutil.Clock

	mu     sync.Mutex
	cache  Value
	armed  bool
	staged Value
	inErr  error
	fetch  bool
}

// NewFunc creates a Func device reading scalar values from fn.
func NewFunc(name string, fn func() (Value, error)) *Func {
	return &Func{name: name, fn: fn, clock: timeutil.RealClock{}}
}

// WithFormat overrides the device's format descriptor (named multi columns,
// vector-to-file redirection, graph selection).
func (d *Func) WithFormat(f Format) *Func {
	d.format = f
	return d
}

// WithSettle sets the settle time honoured by the staged read protocol.
func (d *Func) WithSettle(settle time.Duration, clock timeutil.Clock) *Func {
	d.settle = settle
	if clock != nil {
		d.clock = clock
	}
	return d
}

func (d *Func) Name() string { return d.name }

func (d *Func) Get(Options) (Value, error) {
	v, err := d.fn()
	if err != nil {
		return nil, fmt.Errorf("%s: get: %w", d.name, err)
	}
	d.mu.Lock()
	d.cache = v
	d.mu.Unlock()
	return v, nil
}

func (d *Func) Set(float64, Options) error {
	return fmt.Errorf("%s: read-only device", d.name)
}

func (d *Func) Check(float64, Options) error {
	return fmt.Errorf("%s: read-only device", d.name)
}

func (d *Func) GetCache() Value {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache
}

func (d *Func) GetFormat(Options) Format { return d.format }

func (d *Func) GetAsync(stage AsyncStage, opts Options) (Value, error) {
	switch stage {
	case StageArm:
		d.mu.Lock()
		d.armed = true
		d.staged, d.inErr = nil, nil
		d.fetch = false
		d.mu.Unlock()
		return nil, nil
	case StageSettle:
		d.mu.Lock()
		armed := d.armed
		d.mu.Unlock()
		if !armed {
			return nil, fmt.Errorf("%s: settle before arm", d.name)
		}
		d.clock.Sleep(d.settle)
		return nil, nil
	case StageBeginFetch:
		d.mu.Lock()
		if !d.armed {
			d.mu.Unlock()
			return nil, fmt.Errorf("%s: fetch before arm", d.name)
		}
		d.fetch = true
		d.mu.Unlock()
		v, err := d.fn()
		d.mu.Lock()
		d.staged, d.inErr = v, err
		d.mu.Unlock()
		return nil, err
	case StageFinishFetch:
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.fetch {
			return nil, fmt.Errorf("%s: finish-fetch without begin-fetch", d.name)
		}
		d.armed, d.fetch = false, false
		if d.inErr != nil {
			return nil, d.inErr
		}
		d.cache = d.staged
		return d.staged, nil
	case StageRewind:
		d.mu.Lock()
		d.armed, d.fetch = false, false
		d.staged, d.inErr = nil, nil
		d.mu.Unlock()
		return nil, nil
	}
	return nil, fmt.Errorf("%s: unknown async stage %d", d.name, int(stage))
}

// NewClock creates a device reading seconds since the epoch; handy as a
// cheap extra data column.
func NewClock(clock timeutil.Clock) *Func {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return NewFunc("clock.time", func() (Value, error) {
		t := clock.Now()
		return float64(t.UnixNano()) / 1e9, nil
	})
}
