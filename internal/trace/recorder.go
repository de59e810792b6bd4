package trace

import "sync"

// Recorder is an in-memory Trace. Tests drive the pause/abort switches, and
// the renderers use a completed Recorder as their data source.
type Recorder struct {
	mu       sync.Mutex
	xlabel   string
	ylabels  []string
	xlog     bool
	xs       []float64
	ys       [][]float64
	clears   int
	abort    bool
	pause    bool
	status   string
	statuses []string
	comment  func() string
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Configure(xlabel string, ylabels []string, xlog bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.xlabel = xlabel
	r.ylabels = append([]string(nil), ylabels...)
	r.xlog = xlog
	r.ys = make([][]float64, len(ylabels))
}

func (r *Recorder) AddPoint(x float64, ys []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.xs = append(r.xs, x)
	for i := range r.ys {
		var v float64
		if i < len(ys) {
			v = ys[i]
		}
		r.ys[i] = append(r.ys[i], v)
	}
}

func (r *Recorder) SetPoints(xs []float64, ys [][]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.xs = append([]float64(nil), xs...)
	r.ys = make([][]float64, len(ys))
	for i := range ys {
		r.ys[i] = append([]float64(nil), ys[i]...)
	}
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	r.xs = nil
	for i := range r.ys {
		r.ys[i] = nil
	}
}

func (r *Recorder) AbortEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abort
}

func (r *Recorder) PauseEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pause
}

func (r *Recorder) SetStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.statuses = append(r.statuses, status)
}

func (r *Recorder) SetCommentFunc(fn func() string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comment = fn
}

// RequestAbort turns the abort switch on or off.
func (r *Recorder) RequestAbort(on bool) {
	r.mu.Lock()
	r.abort = on
	r.mu.Unlock()
}

// RequestPause turns the pause switch on or off.
func (r *Recorder) RequestPause(on bool) {
	r.mu.Lock()
	r.pause = on
	r.mu.Unlock()
}

// Points returns copies of the accumulated data.
func (r *Recorder) Points() (xs []float64, ys [][]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	xs = append([]float64(nil), r.xs...)
	ys = make([][]float64, len(r.ys))
	for i := range r.ys {
		ys[i] = append([]float64(nil), r.ys[i]...)
	}
	return xs, ys
}

// Labels returns the configured x label, column names and log-x flag.
func (r *Recorder) Labels() (xlabel string, ylabels []string, xlog bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.xlabel, append([]string(nil), r.ylabels...), r.xlog
}

// Status returns the latest status line.
func (r *Recorder) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Statuses returns every status line set, in order.
func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

// Clears returns how many times the plot was cleared.
func (r *Recorder) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

// Comment evaluates the registered comment callback, or returns "".
func (r *Recorder) Comment() string {
	r.mu.Lock()
	fn := r.comment
	r.mu.Unlock()
	if fn == nil {
		return ""
	}
	return fn()
}
