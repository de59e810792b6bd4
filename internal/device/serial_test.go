package device

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// mockPort simulates a line-protocol instrument: every command written gets
// its response queued for the next read.
type mockPort struct {
	mu       sync.Mutex
	readBuf  bytes.Buffer
	commands []string
	value    float64
	armed    bool
	closed   bool
}

func (p *mockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		p.commands = append(p.commands, line)
		p.respond(line)
	}
	return len(b), nil
}

func (p *mockPort) respond(command string) {
	switch {
	case strings.HasPrefix(command, "SET "):
		v, err := strconv.ParseFloat(strings.TrimPrefix(command, "SET "), 64)
		if err != nil {
			p.readBuf.WriteString("ERR\n")
			return
		}
		p.value = v
		p.readBuf.WriteString("OK\n")
	case command == "VAL?":
		fmt.Fprintf(&p.readBuf, "%g\n", p.value)
	case command == "TRIG":
		p.armed = true
		p.readBuf.WriteString("OK\n")
	case command == "FETC?":
		if !p.armed {
			p.readBuf.WriteString("ERR\n")
			return
		}
		p.armed = false
		fmt.Fprintf(&p.readBuf, "%g\n", p.value*2)
	case command == "ABOR":
		p.armed = false
		p.readBuf.WriteString("OK\n")
	default:
		p.readBuf.WriteString("ERR\n")
	}
}

func (p *mockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readBuf.Len() == 0 {
		return 0, io.EOF
	}
	return p.readBuf.Read(b)
}

func (p *mockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestSerialSetGet(t *testing.T) {
	port := &mockPort{}
	d := NewSerial("smu.out", port, SerialConfig{Min: -10, Max: 10})

	if err := d.Set(2.5, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := d.Get(nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 2.5 {
		t.Errorf("Get = %v, want 2.5", v)
	}
	if got := d.GetCache(); got != 2.5 {
		t.Errorf("GetCache = %v, want 2.5", got)
	}
}

func TestSerialCheckRange(t *testing.T) {
	d := NewSerial("smu.out", &mockPort{}, SerialConfig{Min: -1, Max: 1})
	var re *RangeError
	if err := d.Check(5, nil); !errors.As(err, &re) {
		t.Fatalf("Check(5) = %v, want *RangeError", err)
	}
	// Out-of-range Set must not touch the port.
	port := &mockPort{}
	d = NewSerial("smu.out", port, SerialConfig{Min: -1, Max: 1})
	if err := d.Set(5, nil); err == nil {
		t.Fatal("Set(5) succeeded, want range error")
	}
	if len(port.commands) != 0 {
		t.Errorf("port saw commands %v after rejected Set", port.commands)
	}
}

func TestSerialStagedRead(t *testing.T) {
	port := &mockPort{value: 3}
	d := NewSerial("dmm.readval", port, SerialConfig{})

	for _, stage := range []AsyncStage{StageArm, StageSettle, StageBeginFetch} {
		if _, err := d.GetAsync(stage, nil); err != nil {
			t.Fatalf("stage %v: %v", stage, err)
		}
	}
	v, err := d.GetAsync(StageFinishFetch, nil)
	if err != nil {
		t.Fatalf("finish-fetch: %v", err)
	}
	if v != 6.0 {
		t.Errorf("fetched = %v, want 6", v)
	}

	want := []string{"TRIG", "FETC?"}
	if len(port.commands) != 2 || port.commands[0] != want[0] || port.commands[1] != want[1] {
		t.Errorf("port commands = %v, want %v", port.commands, want)
	}
}

func TestSerialRewind(t *testing.T) {
	port := &mockPort{}
	d := NewSerial("dmm.readval", port, SerialConfig{})

	if _, err := d.GetAsync(StageArm, nil); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if _, err := d.GetAsync(StageRewind, nil); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	if port.armed {
		t.Error("instrument still armed after rewind")
	}
	if _, err := d.GetAsync(StageFinishFetch, nil); err == nil {
		t.Error("finish-fetch after rewind succeeded")
	}
}
