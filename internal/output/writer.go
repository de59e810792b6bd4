// Package output writes the engine's text data files: tab-separated row
// vectors preceded by configuration comment blocks and a column-title
// comment line, plus the per-device side files vector readings are
// redirected to.
package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/labsweep/internal/device"
	"github.com/banshee-data/labsweep/internal/fsutil"
)

// FormatFloat renders a value with full float64 round-trip precision.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ConfBlock is one configuration header entry: the originating device (or
// annotation) name and its configuration lines.
type ConfBlock struct {
	Name  string
	Lines []string
}

// Writer emits rows and comment blocks to an underlying unbuffered stream.
// Every call lands on the stream immediately so partial sweeps remain
// readable after an abort.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w. The caller keeps ownership of the stream.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteRow writes one tab-separated data row.
func (o *Writer) WriteRow(vals []float64) error {
	cols := make([]string, len(vals))
	for i, v := range vals {
		cols[i] = FormatFloat(v)
	}
	_, err := io.WriteString(o.w, strings.Join(cols, "\t")+"\n")
	return err
}

// WriteComment writes one tab-separated comment line (column titles).
func (o *Writer) WriteComment(cols []string) error {
	_, err := io.WriteString(o.w, "#"+strings.Join(cols, "\t")+"\n")
	return err
}

// WriteConf writes the configuration comment blocks, one line per block:
//
//	#name:= line1; line2;
func (o *Writer) WriteConf(blocks []ConfBlock) error {
	for _, b := range blocks {
		if len(b.Lines) == 0 {
			continue
		}
		var sb strings.Builder
		sb.WriteString("#")
		sb.WriteString(b.Name)
		sb.WriteString(":=")
		for _, line := range b.Lines {
			sb.WriteString(" ")
			sb.WriteString(line)
			sb.WriteString(";")
		}
		sb.WriteString("\n")
		if _, err := io.WriteString(o.w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteSideFile writes a vector reading to its per-device file. Append-mode
// devices accumulate one row per iteration in a single file (header written
// only on the first row); otherwise each point gets its own file with the
// vector written one value per line.
func WriteSideFile(fs fsutil.FileSystem, filename string, val []float64, f device.Format, first bool) error {
	var (
		w   io.WriteCloser
		err error
	)
	doHeader := true
	if f.Append && !first {
		w, err = fs.Append(filename)
		doHeader = false
	} else {
		w, err = fs.Create(filename)
	}
	if err != nil {
		return fmt.Errorf("opening side file %s: %w", filename, err)
	}
	defer w.Close()

	if doHeader {
		for _, line := range f.Conf {
			if _, err := io.WriteString(w, "#"+line+"\n"); err != nil {
				return err
			}
		}
		if f.Multi.Kind == device.MultiNamedFile {
			if err := NewWriter(w).WriteComment(f.Multi.Names); err != nil {
				return err
			}
		}
	}

	if f.Append {
		return NewWriter(w).WriteRow(val)
	}
	for _, v := range val {
		if _, err := io.WriteString(w, FormatFloat(v)+"\n"); err != nil {
			return err
		}
	}
	return nil
}
