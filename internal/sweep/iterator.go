package sweep

import (
	"fmt"
	"time"
)

// Step is one yielded iteration of the axis iterator.
type Step struct {
	// Index is the flat iteration counter within the current cycle.
	Index int
	// Part and Total report progress: Part is Index, Total the cycle's
	// point count.
	Part, Total int
	// Values holds the requested setpoint per axis.
	Values []float64
	// Set marks the axes whose value changed this iteration and must be
	// driven.
	Set []bool
	// Waits holds the settle wait per axis, already including the
	// first-value extra where it applies. The executor takes the max of
	// the changed axes.
	Waits []time.Duration
	// Forward holds the per-axis direction.
	Forward []bool
	// Clear signals a live-plot clear: a slower axis advanced past an
	// axis marked CloseAfter, so its trace starts over.
	Clear bool
}

// Iterator walks the setpoint grid: odometer order in serial mode with the
// innermost (last) axis fastest, or lock-step in parallel mode. It yields a
// Step per iteration and false past the end; termination is a sentinel, not
// an error.
type Iterator struct {
	axes     []*Axis
	vals     [][]float64
	fwd      [][]bool
	parallel bool

	idx     []int
	dir     []int
	total   int
	i       int
	started bool
	done    bool
}

// NewIterator builds an iterator over axes, in order slowest to fastest.
// Parallel mode requires equal span lengths after updown expansion and is
// incompatible with alternate axes.
func NewIterator(axes []*Axis, parallel bool) (*Iterator, error) {
	if len(axes) == 0 {
		return nil, fmt.Errorf("no axes")
	}
	it := &Iterator{
		axes:     axes,
		parallel: parallel,
		idx:      make([]int, len(axes)),
		dir:      make([]int, len(axes)),
	}
	it.total = 1
	for k, a := range axes {
		it.dir[k] = 1
		if a.Updown == UpdownAlternate {
			if parallel {
				return nil, fmt.Errorf("axis %s: alternate updown is incompatible with parallel mode", a.Device.Name())
			}
			if k == 0 {
				return nil, fmt.Errorf("axis %s: the outermost axis has no slower axis to alternate against", a.Device.Name())
			}
		}
		vals := a.expandedValues()
		if len(vals) == 0 {
			return nil, fmt.Errorf("axis %s: empty span", a.Device.Name())
		}
		it.vals = append(it.vals, vals)
		it.fwd = append(it.fwd, a.expandedForward())
		if parallel {
			if len(vals) != len(it.vals[0]) {
				return nil, fmt.Errorf("parallel mode needs equal span lengths, axis %s has %d points, axis %s has %d",
					a.Device.Name(), len(vals), axes[0].Device.Name(), len(it.vals[0]))
			}
			it.total = len(vals)
		} else {
			it.total *= len(vals)
		}
	}
	return it, nil
}

// Total is the number of iterations in one cycle.
func (it *Iterator) Total() int { return it.total }

// Next yields the next step, or false when the grid is exhausted.
func (it *Iterator) Next() (*Step, bool) {
	if it.done {
		return nil, false
	}
	if !it.started {
		it.started = true
		return it.first(), true
	}
	if it.parallel {
		return it.nextParallel()
	}
	return it.nextSerial()
}

// Reset rewinds the iterator for another cycle over the same axes.
func (it *Iterator) Reset() {
	for k := range it.idx {
		it.idx[k] = 0
		it.dir[k] = 1
	}
	it.i = 0
	it.started = false
	it.done = false
}

// first yields iteration zero: every axis moves to its first value and gets
// its full first-value settle time.
func (it *Iterator) first() *Step {
	s := it.newStep()
	for k := range it.axes {
		s.Set[k] = true
		s.Waits[k] = it.axes[k].BeforeWait + it.axes[k].FirstWait
	}
	return s
}

func (it *Iterator) nextSerial() (*Step, bool) {
	prev := append([]int(nil), it.idx...)

	// Odometer increment, innermost axis (last) fastest.
	k := len(it.idx) - 1
	for {
		it.idx[k]++
		if it.idx[k] < len(it.vals[k]) {
			break
		}
		it.idx[k] = 0
		k--
		if k < 0 {
			it.done = true
			return nil, false
		}
	}
	it.i++

	// Alternate axes flip direction when the next-slower axis advances.
	for a := range it.axes {
		if it.axes[a].Updown == UpdownAlternate && it.idx[a-1] != prev[a-1] {
			it.dir[a] = -it.dir[a]
		}
	}

	s := it.newStep()
	for a := range it.axes {
		if it.idx[a] == prev[a] {
			continue
		}
		s.Set[a] = true
		s.Waits[a] = it.axes[a].BeforeWait
		if it.idx[a] == 0 && prev[a] != 0 && it.needsFirstWait(a) {
			s.Waits[a] += it.axes[a].FirstWait
		}
		if a < len(it.axes)-1 && it.axes[a+1].CloseAfter {
			s.Clear = true
		}
	}
	return s, true
}

// needsFirstWait reports whether a wrap back to index zero is a jump. An
// updown-both axis ends its doubled span back at the start, and an alternate
// axis reverses in place, so neither jumps.
func (it *Iterator) needsFirstWait(a int) bool {
	ax := it.axes[a]
	return ax.Updown != UpdownBoth && ax.Updown != UpdownAlternate
}

func (it *Iterator) nextParallel() (*Step, bool) {
	it.idx[0]++
	if it.idx[0] >= len(it.vals[0]) {
		it.done = true
		return nil, false
	}
	for k := 1; k < len(it.idx); k++ {
		it.idx[k] = it.idx[0]
	}
	it.i++

	// All axes move every step; no change suppression in parallel mode.
	s := it.newStep()
	for k := range it.axes {
		s.Set[k] = true
		s.Waits[k] = it.axes[k].BeforeWait
	}
	return s, true
}

func (it *Iterator) newStep() *Step {
	n := len(it.axes)
	s := &Step{
		Index:   it.i,
		Part:    it.i,
		Total:   it.total,
		Values:  make([]float64, n),
		Set:     make([]bool, n),
		Waits:   make([]time.Duration, n),
		Forward: make([]bool, n),
	}
	for k := range it.axes {
		vi := it.idx[k]
		if it.dir[k] < 0 {
			vi = len(it.vals[k]) - 1 - vi
		}
		s.Values[k] = it.vals[k][vi]
		s.Forward[k] = it.fwd[k][vi] && it.dir[k] > 0
	}
	return s
}
