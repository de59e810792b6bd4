// Package device defines the capability contract the sweep engine drives:
// settable/readable instrument endpoints with cached values, per-device I/O
// format descriptors and an optional staged asynchronous read protocol.
//
// The engine never inspects instrument protocol detail; everything it needs
// is expressed through this interface and the Format record.
package device

import "fmt"

// Value is a reading produced by a device. The engine understands nil
// (no inline value; the iteration index is written instead), float64, bool,
// complex128 and []float64. Anything else is a driver bug.
type Value any

// Options carries per-device call options, as supplied alongside a device in
// a sweep's set or read list (channel selection, units and the like). The
// engine passes them through untouched.
type Options map[string]any

// AsyncStage identifies one phase of the staged read protocol. Stages are
// issued across a whole batch of devices, one pass per stage, so device
// latencies overlap instead of accumulating.
type AsyncStage int

const (
	// StageRewind returns a partially armed device to a safe idle state.
	// It is issued across the batch when a staged read is interrupted.
	StageRewind AsyncStage = iota - 1
	// StageArm triggers the device's measurement without blocking.
	StageArm
	// StageSettle lets the device's settle/convert time elapse.
	StageSettle
	// StageBeginFetch starts result retrieval.
	StageBeginFetch
	// StageFinishFetch completes retrieval and returns the value. Drivers
	// must reject it when StageBeginFetch has not run.
	StageFinishFetch
)

func (s AsyncStage) String() string {
	switch s {
	case StageRewind:
		return "rewind"
	case StageArm:
		return "arm"
	case StageSettle:
		return "settle"
	case StageBeginFetch:
		return "begin-fetch"
	case StageFinishFetch:
		return "finish-fetch"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Device is a settable/readable instrument endpoint.
type Device interface {
	// Name returns the device's column/header name.
	Name() string

	// Get performs a synchronous read.
	Get(opts Options) (Value, error)

	// Set drives the device to the given value.
	Set(value float64, opts Options) error

	// Check validates a value against the device's range without touching
	// hardware. A value out of range returns a *RangeError.
	Check(value float64, opts Options) error

	// GetCache returns the last known value without a hardware exchange.
	// Instruments may round or clip on Set; the cache reflects that.
	GetCache() Value

	// GetFormat resolves the device's I/O format descriptor for the given
	// options. The engine resolves it once per device per run.
	GetFormat(opts Options) Format

	// GetAsync performs one stage of the staged read protocol.
	// The value is only meaningful at StageFinishFetch.
	GetAsync(stage AsyncStage, opts Options) (Value, error)
}

// RangeError reports a value outside a device's valid range.
type RangeError struct {
	Device string
	Value  float64
	Min    float64
	Max    float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("value %g out of range [%g, %g] for device %s",
		e.Value, e.Min, e.Max, e.Device)
}

// MultiKind describes how many columns a device reading contributes and
// where vector data lands.
type MultiKind int

const (
	// MultiScalar is a single inline column (the default).
	MultiScalar MultiKind = iota
	// MultiVector is unbounded vector data, written to a per-device side
	// file with the iteration index inline in its place.
	MultiVector
	// MultiNamed is a fixed named list of inline columns.
	MultiNamed
	// MultiNamedFile is named vector data that still goes to a side file,
	// with the names written as the side file's column titles.
	MultiNamedFile
)

// Multi describes a device's column multiplicity.
type Multi struct {
	Kind  MultiKind
	Names []string
}

// GraphMode selects which of a device's columns appear on the live plot.
type GraphMode int

const (
	// GraphAll shows every inline column (the default).
	GraphAll GraphMode = iota
	// GraphNone hides the device from the plot.
	GraphNone
	// GraphCols shows the listed device-relative column indices.
	GraphCols
)

// Graph is a device's plot-column selection.
type Graph struct {
	Mode GraphMode
	Cols []int
}

// Format is the per-device I/O contract, produced by GetFormat and cached by
// the engine for the duration of a run. The trailing fields are filled in by
// header aggregation, not by drivers.
type Format struct {
	// File redirects the read to a per-device output file; the device
	// receives the filename and the iteration index is written inline.
	File bool
	// Multi describes the reading's column multiplicity.
	Multi Multi
	// Graph selects plot columns.
	Graph Graph
	// Append accumulates side-file rows in one file instead of one file
	// per point.
	Append bool
	// XAxis reports whether vector data's first column is an x scale.
	// nil means no x scale is available.
	XAxis *bool
	// Header returns configuration lines dumped as comments at the head
	// of data files. May be nil.
	Header func() []string

	// HeaderName is the column/header name chosen during aggregation
	// (device name, possibly suffixed for reuse).
	HeaderName string
	// Basename is the side-file name template chosen during aggregation.
	Basename string
	// Conf holds the resolved configuration header lines.
	Conf []string
}

// Columns returns the number of inline data columns the device contributes
// to a row.
func (f Format) Columns() int {
	if f.File || f.Multi.Kind == MultiVector || f.Multi.Kind == MultiNamedFile {
		return 1
	}
	if f.Multi.Kind == MultiNamed {
		return len(f.Multi.Names)
	}
	return 1
}

// GraphColumns resolves the graph selection to device-relative column
// indices, honouring the multiplicity.
func (f Format) GraphColumns() []int {
	switch f.Graph.Mode {
	case GraphNone:
		return nil
	case GraphCols:
		return f.Graph.Cols
	}
	if f.Multi.Kind == MultiNamed && !f.File {
		cols := make([]int, len(f.Multi.Names))
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	return []int{0}
}
