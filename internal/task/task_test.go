package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStartAndWait(t *testing.T) {
	want := errors.New("done")
	tk := Start(func(ctx context.Context) error { return want })
	if err := tk.Wait(); !errors.Is(err, want) {
		t.Errorf("Wait = %v, want %v", err, want)
	}
	if tk.Running() {
		t.Error("task still running after Wait")
	}
}

func TestStopCancels(t *testing.T) {
	tk := Start(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !tk.Running() {
		t.Fatal("task not running")
	}
	err := tk.Stop(time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Stop = %v, want context.Canceled", err)
	}
}

func TestStopTimeout(t *testing.T) {
	release := make(chan struct{})
	tk := Start(func(ctx context.Context) error {
		<-release
		return nil
	})
	if err := tk.Stop(10 * time.Millisecond); err == nil {
		t.Error("Stop on a stuck task returned nil")
	}
	close(release)
	tk.Wait()
}
