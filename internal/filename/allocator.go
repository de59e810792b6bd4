// Package filename allocates output filenames from templates: timestamp and
// named-field substitution, a unique-index counter token with filesystem
// collision avoidance, and a persisted next-index counter shared by every
// run in the process.
package filename

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/labsweep/internal/fsutil"
	"github.com/banshee-data/labsweep/internal/monitoring"
	"github.com/banshee-data/labsweep/internal/timeutil"
)

// CounterStore persists the allocator's next-file index. The sqlite-backed
// run store implements it; MemoryCounter is the in-process fallback.
type CounterStore interface {
	NextFileIndex() (int, error)
	SetNextFileIndex(int) error
}

// MemoryCounter is a process-local CounterStore.
type MemoryCounter struct {
	mu sync.Mutex
	i  int
}

// NewMemoryCounter creates a MemoryCounter starting at start.
func NewMemoryCounter(start int) *MemoryCounter {
	return &MemoryCounter{i: start}
}

func (c *MemoryCounter) NextFileIndex() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.i, nil
}

func (c *MemoryCounter) SetNextFileIndex(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.i = i
	return nil
}

// Allocator renders filename templates. All allocation runs under one lock
// so the persisted counter and the last-names list stay consistent across
// concurrent sweeps.
type Allocator struct {
	mu        sync.Mutex
	fs        fsutil.FileSystem
	clock     timeutil.Clock
	counter   CounterStore
	lastNames []string
}

// NewAllocator creates an Allocator. Nil arguments select the OS filesystem,
// the real clock and a fresh in-memory counter.
func NewAllocator(fs fsutil.FileSystem, clock timeutil.Clock, counter CounterStore) *Allocator {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if counter == nil {
		counter = NewMemoryCounter(0)
	}
	return &Allocator{fs: fs, clock: clock, counter: counter}
}

// Opts controls one allocation.
type Opts struct {
	// Now overrides the timestamp used for the date/time tokens; the zero
	// value means the clock's current time.
	Now time.Time
	// NextI overrides the persisted counter value substituted for
	// {next_i}. The persisted counter is still advanced.
	NextI *int
	// StartI is the first index probed for the %i counter token.
	StartI int
	// AutoStart starts the probe at the persisted counter value instead
	// of StartI, and ties the chosen index back to the counter.
	AutoStart bool
	// NoSearch disables the collision probe; the first index is used
	// as is.
	NoSearch bool
	// Fields supplies caller replacement fields ({start}, {stop}, ...).
	Fields map[string]any
}

var (
	fieldRe   = regexp.MustCompile(`\{([A-Za-z_]\w*)(?::(0?\d+))?\}`)
	counterRe = regexp.MustCompile(`%(\d*)i`)
)

// Allocate renders template and returns the filename plus the counter index
// chosen for the %i token (StartI when no token is present).
//
// When the counter token is searched, there is an inherent race between the
// existence probe and the eventual file creation; a file created in between
// can still be overwritten. This is a documented limitation, kept as
// best-effort behaviour.
func (a *Allocator) Allocate(template string, opts Opts) (string, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ni int
	if opts.NextI != nil {
		ni = *opts.NextI
	} else {
		var err error
		ni, err = a.counter.NextFileIndex()
		if err != nil {
			return "", 0, fmt.Errorf("loading filename counter: %w", err)
		}
	}
	filenameI := opts.StartI
	if opts.AutoStart {
		filenameI = ni
	}

	now := opts.Now
	if now.IsZero() {
		now = a.clock.Now()
	}
	dateStamp := now.Format("20060102")
	timeStamp := now.Format("150405")
	dtStamp := dateStamp + "-" + timeStamp

	fields := map[string]any{
		"datetime": dtStamp,
		"date":     dateStamp,
		"time":     timeStamp,
		"next_i":   ni,
	}
	for k, v := range opts.Fields {
		fields[k] = v
	}

	changed := false
	niPresent := false
	var fieldErr error
	filename := fieldRe.ReplaceAllStringFunc(template, func(tok string) string {
		m := fieldRe.FindStringSubmatch(tok)
		name, width := m[1], m[2]
		v, ok := fields[name]
		if !ok {
			if fieldErr == nil {
				fieldErr = fmt.Errorf("unknown filename field %q", name)
			}
			return tok
		}
		changed = true
		if name == "next_i" {
			niPresent = true
		}
		return renderField(v, width)
	})
	if fieldErr != nil {
		return "", 0, fieldErr
	}

	for tok, repl := range map[string]string{"%T": dtStamp, "%D": dateStamp, "%t": timeStamp} {
		if strings.Contains(filename, tok) {
			filename = strings.ReplaceAll(filename, tok, repl)
			changed = true
		}
	}

	siChanged := false
	if counterRe.MatchString(filename) {
		// There is a race between this existence probe and the
		// eventual creation; accepted, see the doc comment.
		if !opts.NoSearch {
			for a.fs.Exists(renderCounter(filename, filenameI)) {
				filenameI++
			}
		}
		filename = renderCounter(filename, filenameI)
		if opts.AutoStart {
			ni = filenameI
		}
		changed = true
		siChanged = true
	}

	if changed {
		monitoring.Logf("Using filename: %s", filename)
	}
	if niPresent || (opts.AutoStart && siChanged) {
		if err := a.counter.SetNextFileIndex(ni + 1); err != nil {
			return "", 0, fmt.Errorf("advancing filename counter: %w", err)
		}
	}
	a.lastNames = append(a.lastNames, filename)
	return filename, filenameI, nil
}

// NextIndex reports the persisted counter value without consuming it, so a
// caller allocating a set of files can replay the same value through
// Opts.NextI.
func (a *Allocator) NextIndex() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counter.NextFileIndex()
}

// LastNames returns the filenames produced since the last ClearLastNames.
func (a *Allocator) LastNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.lastNames))
	copy(out, a.lastNames)
	return out
}

// ClearLastNames resets the last-names list; a sweep calls it before
// allocating its files.
func (a *Allocator) ClearLastNames() {
	a.mu.Lock()
	a.lastNames = nil
	a.mu.Unlock()
}

func renderField(v any, width string) string {
	var s string
	switch val := v.(type) {
	case int:
		s = strconv.Itoa(val)
	case float64:
		s = strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		s = val
	default:
		s = fmt.Sprint(val)
	}
	if width == "" {
		return s
	}
	w, err := strconv.Atoi(strings.TrimPrefix(width, "0"))
	if err != nil || w <= 0 {
		return s
	}
	pad := "%" + width + "s"
	if strings.HasPrefix(width, "0") {
		if _, isInt := v.(int); isInt {
			return fmt.Sprintf("%0*d", w, v)
		}
	}
	return fmt.Sprintf(pad, s)
}

func renderCounter(template string, i int) string {
	return counterRe.ReplaceAllStringFunc(template, func(tok string) string {
		m := counterRe.FindStringSubmatch(tok)
		if m[1] == "" {
			return strconv.Itoa(i)
		}
		w, err := strconv.Atoi(m[1])
		if err != nil {
			return strconv.Itoa(i)
		}
		return fmt.Sprintf("%0*d", w, i)
	})
}
