package sweep

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/labsweep/internal/device"
	"github.com/banshee-data/labsweep/internal/output"
)

// ReadDevice is one entry of a sweep's read list.
type ReadDevice struct {
	Device  device.Device
	Options device.Options
}

// HeaderSet is the aggregated column plan of a run: ordered column titles,
// absolute plot-column indices, the resolved per-device formats and the
// configuration blocks dumped at the head of the data file. Built once
// before a sweep starts and immutable during the run.
type HeaderSet struct {
	// Headers holds one title per data column, set axes first, then read
	// devices. The trailing timestamp column is appended at write time.
	Headers []string
	// Graph holds absolute column indices into the final row for the
	// columns shown on the live plot.
	Graph []int
	// SetFormats and ReadFormats are the resolved format descriptors, in
	// list order, with HeaderName/Basename/Conf filled in.
	SetFormats  []device.Format
	ReadFormats []device.Format
	// SetMultiplicities is the number of columns each set axis
	// contributes; the executor validates cached values against it.
	SetMultiplicities []int
	// ConfBlocks are the per-device configuration comment blocks.
	ConfBlocks []output.ConfBlock
	// Annotations are free-form comment lines recorded before the data.
	Annotations []string
}

// BuildHeaders combines the set axes and the read devices into a HeaderSet.
//
// Set axes must contribute a bounded number of columns: a descriptor with
// File set or vector multi data is rejected here, before any hardware or
// disk access. Read devices whose data goes to side files get a per-device
// basename derived from root; devices listed more than once get a numeric
// suffix so column titles stay unique.
func BuildHeaders(axes []*Axis, reads []ReadDevice, root string, annotations []string, confDevices []device.Device) (*HeaderSet, error) {
	hs := &HeaderSet{Annotations: append([]string(nil), annotations...)}
	seen := map[string]int{}

	for _, a := range axes {
		f := a.Device.GetFormat(a.Options)
		if f.File {
			return nil, fmt.Errorf("set axis %s: format declares file output", a.Device.Name())
		}
		if f.Multi.Kind == device.MultiVector || f.Multi.Kind == device.MultiNamedFile {
			return nil, fmt.Errorf("set axis %s: format declares vector data", a.Device.Name())
		}
		f.HeaderName = uniqueName(seen, a.Device.Name())
		f.Conf = confLines(f)
		hs.SetFormats = append(hs.SetFormats, f)
		hs.SetMultiplicities = append(hs.SetMultiplicities, f.Columns())
		hs.Headers = append(hs.Headers, columnTitles(f)...)
		if len(f.Conf) > 0 {
			hs.ConfBlocks = append(hs.ConfBlocks, output.ConfBlock{Name: f.HeaderName, Lines: f.Conf})
		}
	}

	for _, rd := range reads {
		f := rd.Device.GetFormat(rd.Options)
		f.HeaderName = uniqueName(seen, rd.Device.Name())
		f.Conf = confLines(f)
		if f.File || f.Multi.Kind == device.MultiVector || f.Multi.Kind == device.MultiNamedFile {
			f.Basename = sideFileBasename(root, f.HeaderName, f.Append)
		}
		base := len(hs.Headers)
		for _, g := range f.GraphColumns() {
			hs.Graph = append(hs.Graph, base+g)
		}
		hs.ReadFormats = append(hs.ReadFormats, f)
		hs.Headers = append(hs.Headers, columnTitles(f)...)
		if len(f.Conf) > 0 {
			hs.ConfBlocks = append(hs.ConfBlocks, output.ConfBlock{Name: f.HeaderName, Lines: f.Conf})
		}
	}

	for _, dev := range confDevices {
		f := dev.GetFormat(nil)
		lines := confLines(f)
		if len(lines) > 0 {
			hs.ConfBlocks = append(hs.ConfBlocks, output.ConfBlock{Name: dev.Name(), Lines: lines})
		}
	}

	return hs, nil
}

// TotalColumns is the number of data columns in a row, excluding the
// trailing timestamp.
func (hs *HeaderSet) TotalColumns() int { return len(hs.Headers) }

// uniqueName suffixes a device name reused within one run so columns stay
// distinct.
func uniqueName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	return fmt.Sprintf("%s.%d", name, n)
}

// columnTitles expands a format into its inline column titles.
func columnTitles(f device.Format) []string {
	if f.Multi.Kind == device.MultiNamed && !f.File {
		titles := make([]string, len(f.Multi.Names))
		for i, n := range f.Multi.Names {
			titles[i] = f.HeaderName + "." + n
		}
		return titles
	}
	return []string{f.HeaderName}
}

func confLines(f device.Format) []string {
	if f.Header == nil {
		return nil
	}
	return f.Header()
}

// sideFileBasename derives a read device's side-file name from the main
// file's root: a point-index template normally, a plain suffixed name when
// the device appends all points into one file. The returned template is
// rendered with fmt and the iteration index.
func sideFileBasename(root, headerName string, appendMode bool) string {
	ext := filepath.Ext(root)
	stem := strings.TrimSuffix(root, ext)
	name := sanitizeName(headerName)
	if appendMode {
		return stem + "_" + name + ext
	}
	return stem + "_" + name + "_%05d" + ext
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
