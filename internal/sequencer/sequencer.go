// Package sequencer runs a small program of steps alongside a sweep. The
// sweep calls Step once per iteration; the current operation decides whether
// to stay active, hand over to the next operation, or end the sweep.
package sequencer

import (
	"time"

	"github.com/banshee-data/labsweep/internal/timeutil"
)

// Result is an operation's verdict for one iteration.
type Result int

const (
	// Stay keeps the current operation active for the next iteration.
	Stay Result = iota
	// Advance moves to the next operation. The next operation first runs
	// on the following iteration, never in the same call.
	Advance
	// End stops the sequence, and with it the sweep.
	End
)

// Context is the state visible to operations. Operations keep no iteration
// state of their own; everything they need to decide is in here.
type Context struct {
	// I is the current sweep iteration, counted from zero.
	I int
	// Now is the time of the current Step call.
	Now time.Time
	// StepStartI is the iteration at which the active operation started.
	StepStartI int
	// StepStartTime is when the active operation started.
	StepStartTime time.Time
	// StepStartTimePrev is when the previous operation started.
	StepStartTimePrev time.Time
	// StepStartFirst is when the whole sequence started.
	StepStartFirst time.Time
	// User carries caller state for Call operations.
	User any
}

// Op is one operation in a sequence.
type Op interface {
	Step(c *Context) Result
	// Reset clears any internal state; called when the sequence restarts.
	Reset()
}

type opFunc func(c *Context) Result

func (f opFunc) Step(c *Context) Result { return f(c) }
func (f opFunc) Reset()                 {}

// WaitIterations stays active for n iterations, then advances.
func WaitIterations(n int) Op {
	return opFunc(func(c *Context) Result {
		if c.I-c.StepStartI >= n {
			return Advance
		}
		return Stay
	})
}

// WaitDuration stays active until d has elapsed since the operation started,
// then advances.
func WaitDuration(d time.Duration) Op {
	return opFunc(func(c *Context) Result {
		if c.Now.Sub(c.StepStartTime) >= d {
			return Advance
		}
		return Stay
	})
}

// EndOp stops the sequence as soon as it becomes active.
func EndOp() Op {
	return opFunc(func(*Context) Result { return End })
}

// Never stays active forever. A sequence ending in Never runs until the
// sweep itself finishes.
func Never() Op {
	return opFunc(func(*Context) Result { return Stay })
}

// Call runs fn each iteration the operation is active; fn's result decides
// what happens next.
func Call(fn func(c *Context) Result) Op {
	return opFunc(fn)
}

// Do runs fn once and advances.
func Do(fn func()) Op {
	return opFunc(func(*Context) Result {
		fn()
		return Advance
	})
}

// Composite runs its children in order within a single sequence slot, then
// advances.
func Composite(ops ...Op) Op {
	return &composite{ops: ops}
}

type composite struct {
	ops []Op
	pos int
}

func (g *composite) Step(c *Context) Result {
	for g.pos < len(g.ops) {
		switch g.ops[g.pos].Step(c) {
		case Stay:
			return Stay
		case End:
			return End
		case Advance:
			g.pos++
			// The next child waits for the next iteration.
			if g.pos < len(g.ops) {
				return Stay
			}
		}
	}
	return Advance
}

func (g *composite) Reset() {
	g.pos = 0
	for _, op := range g.ops {
		op.Reset()
	}
}

// Sequencer steps through a list of operations, one active at a time.
// It is not safe for concurrent use; a sweep drives it from its loop
// goroutine only.
type Sequencer struct {
	ops     []Op
	pos     int
	clock   timeutil.Clock
	c       Context
	started bool
}

// New creates a Sequencer over ops. A nil clock selects the real clock.
func New(clock timeutil.Clock, ops ...Op) *Sequencer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sequencer{ops: ops, clock: clock}
}

// SetUser attaches caller state made visible to operations via Context.User.
func (s *Sequencer) SetUser(v any) { s.c.User = v }

// Step runs the sequence for sweep iteration i and reports whether the sweep
// should continue. Iteration zero restarts the sequence.
func (s *Sequencer) Step(i int) bool {
	now := s.clock.Now()
	if i == 0 || !s.started {
		s.reset(now)
	}
	s.c.I = i
	s.c.Now = now
	if s.pos >= len(s.ops) {
		return false
	}
	switch s.ops[s.pos].Step(&s.c) {
	case End:
		return false
	case Advance:
		s.pos++
		s.c.StepStartI = i + 1
		s.c.StepStartTimePrev = s.c.StepStartTime
		s.c.StepStartTime = now
	}
	return true
}

func (s *Sequencer) reset(now time.Time) {
	s.started = true
	s.pos = 0
	s.c.StepStartI = 0
	s.c.StepStartTime = now
	s.c.StepStartTimePrev = now
	s.c.StepStartFirst = now
	for _, op := range s.ops {
		op.Reset()
	}
}
