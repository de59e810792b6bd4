package sweep

import (
	"testing"
	"time"

	"github.com/banshee-data/labsweep/internal/device"
)

func listAxis(t *testing.T, name string, vals []float64) *Axis {
	t.Helper()
	a, err := NewAxisFromList(device.NewMemory(name, 0), nil, vals)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func collect(t *testing.T, it *Iterator) []*Step {
	t.Helper()
	var steps []*Step
	for {
		s, ok := it.Next()
		if !ok {
			return steps
		}
		steps = append(steps, s)
	}
}

func TestOdometerOrder(t *testing.T) {
	outer := listAxis(t, "outer", []float64{0, 1})
	inner := listAxis(t, "inner", []float64{10, 11, 12})
	it, err := NewIterator([]*Axis{outer, inner}, false)
	if err != nil {
		t.Fatal(err)
	}
	if it.Total() != 6 {
		t.Fatalf("Total = %d, want 6", it.Total())
	}

	steps := collect(t, it)
	if len(steps) != 6 {
		t.Fatalf("got %d iterations, want 6", len(steps))
	}
	want := [][2]float64{{0, 10}, {0, 11}, {0, 12}, {1, 10}, {1, 11}, {1, 12}}
	for i, s := range steps {
		if s.Values[0] != want[i][0] || s.Values[1] != want[i][1] {
			t.Errorf("step %d values = %v, want %v", i, s.Values, want[i])
		}
		if s.Index != i {
			t.Errorf("step %d index = %d", i, s.Index)
		}
	}
}

func TestOdometerChangingFlags(t *testing.T) {
	outer := listAxis(t, "outer", []float64{0, 1})
	inner := listAxis(t, "inner", []float64{10, 11})
	inner.CloseAfter = true
	it, err := NewIterator([]*Axis{outer, inner}, false)
	if err != nil {
		t.Fatal(err)
	}
	steps := collect(t, it)

	// Iteration 0 drives every axis; afterwards only changed axes.
	wantSet := [][2]bool{{true, true}, {false, true}, {true, true}, {false, true}}
	for i, s := range steps {
		if s.Set[0] != wantSet[i][0] || s.Set[1] != wantSet[i][1] {
			t.Errorf("step %d Set = %v, want %v", i, s.Set, wantSet[i])
		}
	}
	// The inner trace closes when the outer axis advances.
	for i, wantClear := range []bool{false, false, true, false} {
		if steps[i].Clear != wantClear {
			t.Errorf("step %d Clear = %v, want %v", i, steps[i].Clear, wantClear)
		}
	}
}

func TestClearOffByDefault(t *testing.T) {
	outer := listAxis(t, "outer", []float64{0, 1})
	inner := listAxis(t, "inner", []float64{10, 11})
	it, err := NewIterator([]*Axis{outer, inner}, false)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range collect(t, it) {
		if s.Clear {
			t.Errorf("step %d Clear = true without CloseAfter", i)
		}
	}
}

func TestFirstWaitOnWrap(t *testing.T) {
	outer := listAxis(t, "outer", []float64{0, 1})
	inner := listAxis(t, "inner", []float64{10, 11})
	inner.BeforeWait = time.Second
	inner.FirstWait = 4 * time.Second
	it, err := NewIterator([]*Axis{outer, inner}, false)
	if err != nil {
		t.Fatal(err)
	}
	steps := collect(t, it)

	// Iteration 0 and every wrap back to the first value get the extra
	// settle; ordinary moves get the plain wait.
	wantInner := []time.Duration{5 * time.Second, time.Second, 5 * time.Second, time.Second}
	for i, want := range wantInner {
		if steps[i].Waits[1] != want {
			t.Errorf("step %d inner wait = %v, want %v", i, steps[i].Waits[1], want)
		}
	}
}

func TestUpdownBothNoFirstWaitOnWrap(t *testing.T) {
	outer := listAxis(t, "outer", []float64{0, 1})
	inner := listAxis(t, "inner", []float64{10, 11})
	inner.Updown = UpdownBoth
	inner.BeforeWait = time.Second
	inner.FirstWait = 4 * time.Second
	it, err := NewIterator([]*Axis{outer, inner}, false)
	if err != nil {
		t.Fatal(err)
	}
	steps := collect(t, it)
	if len(steps) != 8 {
		t.Fatalf("got %d iterations, want 8", len(steps))
	}
	// The doubled span ends back at its first value, so the wrap is not a
	// jump and gets only the ordinary wait.
	if steps[4].Waits[1] != time.Second {
		t.Errorf("wrap wait = %v, want %v", steps[4].Waits[1], time.Second)
	}
}

func TestUpdownBothForwardFlags(t *testing.T) {
	a := listAxis(t, "a", []float64{10, 11})
	a.Updown = UpdownBoth
	it, err := NewIterator([]*Axis{a}, false)
	if err != nil {
		t.Fatal(err)
	}
	steps := collect(t, it)
	if len(steps) != 4 {
		t.Fatalf("got %d iterations, want 4", len(steps))
	}
	for i, want := range []bool{true, true, false, false} {
		if steps[i].Forward[0] != want {
			t.Errorf("step %d Forward = %v, want %v", i, steps[i].Forward[0], want)
		}
	}
}

func TestUpdownReverseForwardFlags(t *testing.T) {
	a := listAxis(t, "a", []float64{10, 11})
	a.Updown = UpdownReverse
	it, err := NewIterator([]*Axis{a}, false)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range collect(t, it) {
		if s.Forward[0] {
			t.Errorf("step %d Forward = true on a reverse-only axis", i)
		}
	}
}

func TestAlternateReversesEachOuterAdvance(t *testing.T) {
	outer := listAxis(t, "outer", []float64{0, 1, 2})
	inner := listAxis(t, "inner", []float64{10, 11})
	inner.Updown = UpdownAlternate
	inner.FirstWait = 4 * time.Second
	it, err := NewIterator([]*Axis{outer, inner}, false)
	if err != nil {
		t.Fatal(err)
	}
	steps := collect(t, it)

	wantInner := []float64{10, 11, 11, 10, 10, 11}
	for i, s := range steps {
		if s.Values[1] != wantInner[i] {
			t.Errorf("step %d inner value = %g, want %g", i, s.Values[1], wantInner[i])
		}
	}
	// A reversal is not a jump: no extra settle at the direction change.
	if steps[2].Waits[1] != 0 {
		t.Errorf("reversal wait = %v, want 0", steps[2].Waits[1])
	}
	if steps[2].Forward[1] {
		t.Error("inner axis still forward after outer advance")
	}
}

func TestAlternateRejectedOutermostAndParallel(t *testing.T) {
	alt := listAxis(t, "a", []float64{0, 1})
	alt.Updown = UpdownAlternate
	if _, err := NewIterator([]*Axis{alt}, false); err == nil {
		t.Error("outermost alternate axis accepted")
	}

	outer := listAxis(t, "outer", []float64{0, 1})
	alt2 := listAxis(t, "b", []float64{0, 1})
	alt2.Updown = UpdownAlternate
	if _, err := NewIterator([]*Axis{outer, alt2}, true); err == nil {
		t.Error("alternate axis accepted in parallel mode")
	}
}

func TestParallelMode(t *testing.T) {
	a := listAxis(t, "a", []float64{0, 1, 2})
	b := listAxis(t, "b", []float64{10, 11, 12})
	it, err := NewIterator([]*Axis{a, b}, true)
	if err != nil {
		t.Fatal(err)
	}
	if it.Total() != 3 {
		t.Fatalf("Total = %d, want 3", it.Total())
	}
	steps := collect(t, it)
	for i, s := range steps {
		if s.Values[0] != float64(i) || s.Values[1] != float64(10+i) {
			t.Errorf("step %d values = %v", i, s.Values)
		}
		if !s.Set[0] || !s.Set[1] {
			t.Errorf("step %d: parallel axes must both move", i)
		}
	}
}

func TestParallelUnequalLengths(t *testing.T) {
	a := listAxis(t, "a", []float64{0, 1, 2})
	b := listAxis(t, "b", []float64{10, 11})
	if _, err := NewIterator([]*Axis{a, b}, true); err == nil {
		t.Error("unequal parallel spans accepted")
	}
}

func TestIteratorReset(t *testing.T) {
	a := listAxis(t, "a", []float64{0, 1})
	it, err := NewIterator([]*Axis{a}, false)
	if err != nil {
		t.Fatal(err)
	}
	first := collect(t, it)
	it.Reset()
	second := collect(t, it)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("cycles yielded %d and %d iterations", len(first), len(second))
	}
	if second[0].Index != 0 {
		t.Errorf("index after reset = %d", second[0].Index)
	}
}
