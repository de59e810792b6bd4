package sweep

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/labsweep/internal/device"
)

// Updown selects how one axis handles direction.
type Updown int

const (
	// UpdownOff runs the span forward only.
	UpdownOff Updown = iota
	// UpdownBoth runs forward then reverse. With a shared output file the
	// two directions concatenate into one doubled span; with distinct
	// files the runner performs two cycles with identical headers.
	UpdownBoth
	// UpdownReverse runs the span in reverse only.
	UpdownReverse
	// UpdownAlternate flips this axis's direction each time the
	// next-slower axis advances. Incompatible with parallel mode.
	UpdownAlternate
)

func (u Updown) String() string {
	switch u {
	case UpdownOff:
		return "off"
	case UpdownBoth:
		return "both"
	case UpdownReverse:
		return "reverse"
	case UpdownAlternate:
		return "alternate"
	}
	return fmt.Sprintf("updown(%d)", int(u))
}

// Axis is one sweep dimension: a device, its ordered setpoints and the
// settle waits applied when the axis moves. Read-only once built.
type Axis struct {
	Device  device.Device
	Options device.Options

	// Values is the base setpoint span, before updown expansion.
	Values []float64
	// Log records logarithmic spacing, for plot presentation.
	Log bool
	// Negative records a negative log span: values were negated, spanned,
	// then re-negated, so downstream code can flip the sign back when a
	// log scale is wanted.
	Negative bool

	Updown Updown

	// CloseAfter clears the live trace of this axis each time the
	// next-slower axis advances. Off by default, so outer-axis steps
	// leave earlier curves on the plot.
	CloseAfter bool

	// BeforeWait is the settle time applied whenever this axis moves.
	BeforeWait time.Duration
	// FirstWait is extra settle time added when this axis jumps back to
	// its first value after completing a pass.
	FirstWait time.Duration
}

// NewAxis builds an axis from start/stop/npts. Both endpoints are validated
// against the device before any span value is generated, so a bad range
// fails before hardware or disk is touched.
func NewAxis(dev device.Device, opts device.Options, logspace bool, start, stop float64, npts int) (*Axis, error) {
	if npts < 1 {
		return nil, fmt.Errorf("axis %s: npts %d < 1", dev.Name(), npts)
	}
	if err := dev.Check(start, opts); err != nil {
		return nil, fmt.Errorf("axis %s start: %w", dev.Name(), err)
	}
	if err := dev.Check(stop, opts); err != nil {
		return nil, fmt.Errorf("axis %s stop: %w", dev.Name(), err)
	}

	a := &Axis{Device: dev, Options: opts, Log: logspace}
	if !logspace {
		a.Values = linSpan(start, stop, npts)
		return a, nil
	}

	if start == 0 || stop == 0 || (start < 0) != (stop < 0) {
		return nil, fmt.Errorf("axis %s: log span needs non-zero endpoints of the same sign, got [%g, %g]",
			dev.Name(), start, stop)
	}
	if start < 0 {
		// Negative log span: span the magnitudes, then restore the sign.
		a.Negative = true
		a.Values = logSpan(-start, -stop, npts)
		for i := range a.Values {
			a.Values[i] = -a.Values[i]
		}
		return a, nil
	}
	a.Values = logSpan(start, stop, npts)
	return a, nil
}

// NewAxisFromList builds an axis from an explicit setpoint list. The list's
// extremes are validated against the device; the list itself is used as is.
func NewAxisFromList(dev device.Device, opts device.Options, values []float64) (*Axis, error) {
	if len(values) < 1 {
		return nil, fmt.Errorf("axis %s: empty setpoint list", dev.Name())
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if err := dev.Check(lo, opts); err != nil {
		return nil, fmt.Errorf("axis %s min: %w", dev.Name(), err)
	}
	if err := dev.Check(hi, opts); err != nil {
		return nil, fmt.Errorf("axis %s max: %w", dev.Name(), err)
	}
	a := &Axis{Device: dev, Options: opts}
	a.Values = append([]float64(nil), values...)
	return a, nil
}

// Truncate reduces the span to its two endpoints, used by dry-run validation
// to check reachability without measuring every point.
func (a *Axis) Truncate() {
	if len(a.Values) > 2 {
		a.Values = []float64{a.Values[0], a.Values[len(a.Values)-1]}
	}
}

// expandedValues returns the setpoints the iterator walks: the base span,
// doubled for UpdownBoth (shared file), or reversed for UpdownReverse.
// UpdownAlternate mirrors at iteration time, not here.
func (a *Axis) expandedValues() []float64 {
	switch a.Updown {
	case UpdownBoth:
		out := make([]float64, 0, 2*len(a.Values))
		out = append(out, a.Values...)
		for i := len(a.Values) - 1; i >= 0; i-- {
			out = append(out, a.Values[i])
		}
		return out
	case UpdownReverse:
		return reversed(a.Values)
	}
	return a.Values
}

// expandedForward returns the per-point direction matching expandedValues:
// the reverse half of an UpdownBoth span and every point of an UpdownReverse
// span run backward. UpdownAlternate direction is iteration state, not a
// property of the span.
func (a *Axis) expandedForward() []bool {
	n := len(a.Values)
	switch a.Updown {
	case UpdownBoth:
		out := make([]bool, 2*n)
		for i := 0; i < n; i++ {
			out[i] = true
		}
		return out
	case UpdownReverse:
		return make([]bool, n)
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

// GraphValue is the value as presented on a plot axis: the magnitude when
// the span is a negative log span (so a log scale still applies), the plain
// value otherwise.
func (a *Axis) GraphValue(v float64) float64 {
	if a.Negative {
		return -v
	}
	return v
}

func linSpan(start, stop float64, npts int) []float64 {
	if npts == 1 {
		return []float64{start}
	}
	return floats.Span(make([]float64, npts), start, stop)
}

func logSpan(start, stop float64, npts int) []float64 {
	if npts == 1 {
		return []float64{start}
	}
	return floats.LogSpan(make([]float64, npts), start, stop)
}

func reversed(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[len(v)-1-i] = x
	}
	return out
}
