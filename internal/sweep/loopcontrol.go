package sweep

import "sync"

// LoopControl is the cooperative run-control state shared between a running
// sweep and outside actors (another goroutine, a UI). The engine polls it at
// iteration boundaries; it never exposes any other mutable surface.
type LoopControl struct {
	mu             sync.Mutex
	abortEnabled   bool
	pauseEnabled   bool
	finished       bool
	abortCompleted bool
}

// NewLoopControl creates a LoopControl with all flags clear.
func NewLoopControl() *LoopControl { return &LoopControl{} }

func (l *LoopControl) AbortEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.abortEnabled
}

func (l *LoopControl) SetAbortEnabled(v bool) {
	l.mu.Lock()
	l.abortEnabled = v
	l.mu.Unlock()
}

func (l *LoopControl) PauseEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pauseEnabled
}

func (l *LoopControl) SetPauseEnabled(v bool) {
	l.mu.Lock()
	l.pauseEnabled = v
	l.mu.Unlock()
}

func (l *LoopControl) Finished() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finished
}

func (l *LoopControl) SetFinished(v bool) {
	l.mu.Lock()
	l.finished = v
	l.mu.Unlock()
}

func (l *LoopControl) AbortCompleted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.abortCompleted
}

func (l *LoopControl) SetAbortCompleted(v bool) {
	l.mu.Lock()
	l.abortCompleted = v
	l.mu.Unlock()
}

// Reset clears the run-scoped flags before a new run. A pending pause
// request survives so a sweep can be started pre-paused.
func (l *LoopControl) Reset() {
	l.mu.Lock()
	l.abortEnabled = false
	l.finished = false
	l.abortCompleted = false
	l.mu.Unlock()
}

// ResetAll clears every flag, including a pause request.
func (l *LoopControl) ResetAll() {
	l.Reset()
	l.mu.Lock()
	l.pauseEnabled = false
	l.mu.Unlock()
}
