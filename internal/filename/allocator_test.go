package filename

import (
	"testing"
	"time"

	"github.com/banshee-data/labsweep/internal/fsutil"
	"github.com/banshee-data/labsweep/internal/timeutil"
)

func testNow() time.Time {
	return time.Date(2024, 3, 15, 9, 30, 5, 0, time.UTC)
}

func newTestAllocator(fs *fsutil.MemoryFileSystem) *Allocator {
	clock := timeutil.NewMockClock(testNow())
	return NewAllocator(fs, clock, NewMemoryCounter(0))
}

func touch(t *testing.T, fs *fsutil.MemoryFileSystem, name string) {
	t.Helper()
	f, err := fs.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestAllocateCounterSkipsExisting(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	touch(t, fs, "data_00.txt")
	a := newTestAllocator(fs)

	name, idx, err := a.Allocate("data_%02i.txt", Opts{})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if name != "data_01.txt" || idx != 1 {
		t.Errorf("got (%q, %d), want (%q, %d)", name, idx, "data_01.txt", 1)
	}
}

func TestAllocateCounterNoSearch(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	touch(t, fs, "data_00.txt")
	a := newTestAllocator(fs)

	name, idx, err := a.Allocate("data_%02i.txt", Opts{NoSearch: true})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if name != "data_00.txt" || idx != 0 {
		t.Errorf("got (%q, %d), want (%q, %d)", name, idx, "data_00.txt", 0)
	}
}

func TestAllocateTimestampTokens(t *testing.T) {
	a := newTestAllocator(fsutil.NewMemoryFileSystem())

	tests := []struct {
		template string
		want     string
	}{
		{"run_%D.txt", "run_20240315.txt"},
		{"run_%t.txt", "run_093005.txt"},
		{"run_%T.txt", "run_20240315-093005.txt"},
		{"run_{date}_{time}.txt", "run_20240315_093005.txt"},
		{"run_{datetime}.txt", "run_20240315-093005.txt"},
	}
	for _, tc := range tests {
		name, _, err := a.Allocate(tc.template, Opts{})
		if err != nil {
			t.Fatalf("Allocate(%q): %v", tc.template, err)
		}
		if name != tc.want {
			t.Errorf("Allocate(%q) = %q, want %q", tc.template, name, tc.want)
		}
	}
}

func TestAllocateNextIAdvancesCounter(t *testing.T) {
	a := newTestAllocator(fsutil.NewMemoryFileSystem())

	name, _, err := a.Allocate("run_{next_i:02}.txt", Opts{})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if name != "run_00.txt" {
		t.Errorf("first allocation = %q, want %q", name, "run_00.txt")
	}
	name, _, err = a.Allocate("run_{next_i:02}.txt", Opts{})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if name != "run_01.txt" {
		t.Errorf("second allocation = %q, want %q", name, "run_01.txt")
	}
}

func TestAllocatePlainTemplateUnchanged(t *testing.T) {
	a := newTestAllocator(fsutil.NewMemoryFileSystem())

	name, idx, err := a.Allocate("out.txt", Opts{StartI: 5})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if name != "out.txt" || idx != 5 {
		t.Errorf("got (%q, %d), want (%q, %d)", name, idx, "out.txt", 5)
	}
}

func TestAllocateAutoStart(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(testNow())
	a := NewAllocator(fs, clock, NewMemoryCounter(3))

	name, idx, err := a.Allocate("data_%02i.txt", Opts{AutoStart: true})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if name != "data_03.txt" || idx != 3 {
		t.Errorf("got (%q, %d), want (%q, %d)", name, idx, "data_03.txt", 3)
	}
	// The counter moves past the chosen index.
	name, _, err = a.Allocate("data_%02i.txt", Opts{AutoStart: true})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if name != "data_04.txt" {
		t.Errorf("second allocation = %q, want %q", name, "data_04.txt")
	}
}

func TestAllocateCallerFields(t *testing.T) {
	a := newTestAllocator(fsutil.NewMemoryFileSystem())

	name, _, err := a.Allocate("sweep_{start}_{stop}.txt", Opts{
		Fields: map[string]any{"start": 0.5, "stop": 10},
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if name != "sweep_0.5_10.txt" {
		t.Errorf("got %q, want %q", name, "sweep_0.5_10.txt")
	}
}

func TestNextIndexPeeksWithoutConsuming(t *testing.T) {
	a := NewAllocator(fsutil.NewMemoryFileSystem(), timeutil.NewMockClock(testNow()), NewMemoryCounter(3))

	if ni, err := a.NextIndex(); err != nil || ni != 3 {
		t.Fatalf("NextIndex = (%d, %v), want (3, nil)", ni, err)
	}
	if ni, err := a.NextIndex(); err != nil || ni != 3 {
		t.Errorf("second NextIndex = (%d, %v), want (3, nil)", ni, err)
	}
}

func TestAllocateUnknownField(t *testing.T) {
	a := newTestAllocator(fsutil.NewMemoryFileSystem())

	if _, _, err := a.Allocate("sweep_{bogus}.txt", Opts{}); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLastNames(t *testing.T) {
	a := newTestAllocator(fsutil.NewMemoryFileSystem())

	a.ClearLastNames()
	if _, _, err := a.Allocate("a.txt", Opts{}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := a.Allocate("b_%i.txt", Opts{}); err != nil {
		t.Fatal(err)
	}
	got := a.LastNames()
	want := []string{"a.txt", "b_0.txt"}
	if len(got) != len(want) {
		t.Fatalf("LastNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LastNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
