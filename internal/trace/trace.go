// Package trace is the live progress surface of a sweep: accumulated plot
// points, a status line, and the user-facing pause and abort switches the
// engine polls between iterations.
package trace

// Trace receives sweep progress and exposes the user's pause/abort requests.
// Implementations must be safe for concurrent use; the engine calls from the
// sweep goroutine while a UI or test toggles the switches from another.
type Trace interface {
	// Configure declares the x axis and the plotted column names. Called
	// once before the first point.
	Configure(xlabel string, ylabels []string, xlog bool)

	// AddPoint appends one point, ys holding one value per plotted column.
	AddPoint(x float64, ys []float64)

	// SetPoints replaces all accumulated data at once.
	SetPoints(xs []float64, ys [][]float64)

	// Clear drops accumulated points but keeps the configuration. The
	// engine clears when a slower sweep axis advances.
	Clear()

	// AbortEnabled reports whether an abort has been requested.
	AbortEnabled() bool

	// PauseEnabled reports whether a pause is requested. The engine polls
	// this while paused and resumes when it goes false.
	PauseEnabled() bool

	// SetStatus updates the status line.
	SetStatus(status string)

	// SetCommentFunc registers a callback producing the free-form comment
	// recorded with the run.
	SetCommentFunc(fn func() string)
}

// Null is a Trace that ignores everything and never pauses or aborts.
type Null struct{}

func (Null) Configure(string, []string, bool) {}
func (Null) AddPoint(float64, []float64)      {}
func (Null) SetPoints([]float64, [][]float64) {}
func (Null) Clear()                           {}
func (Null) AbortEnabled() bool               { return false }
func (Null) PauseEnabled() bool               { return false }
func (Null) SetStatus(string)                 {}
func (Null) SetCommentFunc(func() string)     {}
