package runstore

import (
	"testing"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun("gate sweep")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Errorf("run id %q is not a uuid: %v", run.ID, err)
	}
	if run.Status != StatusRunning {
		t.Errorf("new run status = %q, want %q", run.Status, StatusRunning)
	}

	if err := s.AddFilename(run.ID, "data_00.txt"); err != nil {
		t.Fatalf("AddFilename: %v", err)
	}
	if err := s.AddFilename(run.ID, "data_01.txt"); err != nil {
		t.Fatalf("AddFilename: %v", err)
	}
	if err := s.SetStatus(run.ID, StatusPaused); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := s.FinishRun(run.ID, StatusDone, 42); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusDone {
		t.Errorf("status = %q, want %q", got.Status, StatusDone)
	}
	if got.Iterations != 42 {
		t.Errorf("iterations = %d, want 42", got.Iterations)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not set")
	}
	wantFiles := []string{"data_00.txt", "data_01.txt"}
	if len(got.Filenames) != len(wantFiles) {
		t.Fatalf("filenames = %v, want %v", got.Filenames, wantFiles)
	}
	for i := range wantFiles {
		if got.Filenames[i] != wantFiles[i] {
			t.Errorf("filenames[%d] = %q, want %q", i, got.Filenames[i], wantFiles[i])
		}
	}
}

func TestRunNotFound(t *testing.T) {
	s := openTestStore(t)

	id := uuid.New().String()
	if err := s.SetStatus(id, StatusDone); err == nil {
		t.Error("SetStatus on missing run: expected error")
	}
	if err := s.AddFilename(id, "x.txt"); err == nil {
		t.Error("AddFilename on missing run: expected error")
	}
	if _, err := s.GetRun(id); err == nil {
		t.Error("GetRun on missing run: expected error")
	}
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)

	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.CreateRun(name); err != nil {
			t.Fatalf("CreateRun(%q): %v", name, err)
		}
	}
	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("ListRuns(2) returned %d runs", len(runs))
	}
}

func TestFileCounter(t *testing.T) {
	s := openTestStore(t)

	v, err := s.NextFileIndex()
	if err != nil {
		t.Fatalf("NextFileIndex: %v", err)
	}
	if v != 0 {
		t.Errorf("initial counter = %d, want 0", v)
	}
	if err := s.SetNextFileIndex(7); err != nil {
		t.Fatalf("SetNextFileIndex: %v", err)
	}
	if err := s.SetNextFileIndex(8); err != nil {
		t.Fatalf("SetNextFileIndex: %v", err)
	}
	v, err = s.NextFileIndex()
	if err != nil {
		t.Fatalf("NextFileIndex: %v", err)
	}
	if v != 8 {
		t.Errorf("counter = %d, want 8", v)
	}
}

func TestMigrateVersion(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if dirty {
		t.Error("schema is dirty after Open")
	}
	if version == 0 {
		t.Error("no migrations applied after Open")
	}
}
