package sequencer

import (
	"testing"
	"time"

	"github.com/banshee-data/labsweep/internal/timeutil"
)

func stepAll(s *Sequencer, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = s.Step(i)
	}
	return out
}

func TestWaitIterationsThenEnd(t *testing.T) {
	s := New(nil, WaitIterations(3), EndOp())

	got := stepAll(s, 5)
	// Iterations 0..2 wait, 3 advances, 4 hits the end op.
	want := []bool{true, true, true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Step(%d) = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAdvancePastLastOpStops(t *testing.T) {
	s := New(nil, WaitIterations(2))

	got := stepAll(s, 4)
	want := []bool{true, true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Step(%d) = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNeverRunsForever(t *testing.T) {
	s := New(nil, Never())
	for i := 0; i < 100; i++ {
		if !s.Step(i) {
			t.Fatalf("Step(%d) stopped", i)
		}
	}
}

func TestWaitDuration(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	s := New(clock, WaitDuration(3*time.Second), EndOp())

	for i := 0; i < 3; i++ {
		if !s.Step(i) {
			t.Fatalf("Step(%d) stopped early", i)
		}
		clock.Advance(time.Second)
	}
	// 3s elapsed: the wait advances, the next call ends.
	if !s.Step(3) {
		t.Fatal("Step(3) should advance, not stop")
	}
	if s.Step(4) {
		t.Fatal("Step(4) should stop")
	}
}

func TestDoRunsOnce(t *testing.T) {
	calls := 0
	s := New(nil, Do(func() { calls++ }), Never())

	stepAll(s, 5)
	if calls != 1 {
		t.Errorf("Do ran %d times, want 1", calls)
	}
}

func TestCallSeesContext(t *testing.T) {
	var seen []int
	s := New(nil, Call(func(c *Context) Result {
		seen = append(seen, c.I)
		if c.I >= 2 {
			return End
		}
		return Stay
	}))

	for i := 0; s.Step(i); i++ {
	}
	want := []int{0, 1, 2}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %d, want %d", i, seen[i], want[i])
		}
	}
}

func TestCompositeChildrenRunInOrder(t *testing.T) {
	var order []string
	s := New(nil,
		Composite(
			Do(func() { order = append(order, "a") }),
			Do(func() { order = append(order, "b") }),
		),
		Call(func(*Context) Result {
			order = append(order, "after")
			return End
		}),
	)

	for i := 0; s.Step(i); i++ {
	}
	want := []string{"a", "b", "after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestIterationZeroRestartsSequence(t *testing.T) {
	calls := 0
	s := New(nil, Do(func() { calls++ }), Never())

	stepAll(s, 3)
	stepAll(s, 3)
	if calls != 2 {
		t.Errorf("Do ran %d times across two sweeps, want 2", calls)
	}
}
