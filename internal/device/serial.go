package device

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/labsweep/internal/timeutil"
)

// Porter is the minimal interface needed for a serial port. The abstraction
// enables unit testing without real serial hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// SerialConfig configures a serial-backed instrument.
type SerialConfig struct {
	// BaudRate for the port; defaults to 9600.
	BaudRate int
	// Min/Max bound the settable range enforced by Check.
	Min float64
	Max float64
	// Settle is the wait honoured by the staged read protocol between
	// triggering and fetching.
	Settle time.Duration
	// Clock defaults to the real clock.
	Clock timeutil.Clock
}

// Serial is a device backed by a line-protocol instrument on a serial port.
// The wire protocol is a small SCPI-flavoured exchange:
//
//	SET <v>  -> OK          drive the output
//	VAL?     -> <float>     synchronous read
//	TRIG     -> OK          arm a measurement
//	FETC?    -> <float>     fetch the armed measurement
//	ABOR     -> OK          return to idle (staged-read rewind)
//
// One command/response exchange holds the command mutex, so concurrent
// callers serialize at the port.
type Serial struct {
	name string
	cfg  SerialConfig
	port Porter
	r    *bufio.Reader

	cmdMu sync.Mutex

	mu    sync.Mutex
	cache Value
	armed bool
	fetch bool
}

// OpenSerial opens the serial port at path and wraps it as a device.
func OpenSerial(name, path string, cfg SerialConfig) (*Serial, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = 9600
	}
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", path, err)
	}
	return NewSerial(name, port, cfg), nil
}

// NewSerial wraps an already open port. Tests pass a mock Porter.
func NewSerial(name string, port Porter, cfg SerialConfig) *Serial {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Serial{
		name: name,
		cfg:  cfg,
		port: port,
		r:    bufio.NewReader(port),
	}
}

func (s *Serial) Name() string { return s.name }

// exchange writes one command line and reads one response line.
func (s *Serial) exchange(command string) (string, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if err := s.send(command); err != nil {
		return "", err
	}
	return s.recv()
}

func (s *Serial) send(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("%s: write: %w", s.name, err)
	}
	if n != len(command) {
		return fmt.Errorf("%s: short write to serial port", s.name)
	}
	return nil
}

func (s *Serial) recv() (string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%s: read: %w", s.name, err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Serial) expectOK(command string) error {
	resp, err := s.exchange(command)
	if err != nil {
		return err
	}
	if resp != "OK" {
		return fmt.Errorf("%s: %q answered %q", s.name, command, resp)
	}
	return nil
}

func (s *Serial) parseValue(resp string) (float64, error) {
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: bad value %q from instrument: %w", s.name, resp, err)
	}
	return v, nil
}

func (s *Serial) Get(Options) (Value, error) {
	resp, err := s.exchange("VAL?")
	if err != nil {
		return nil, err
	}
	v, err := s.parseValue(resp)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache = v
	s.mu.Unlock()
	return v, nil
}

func (s *Serial) Set(value float64, opts Options) error {
	if err := s.Check(value, opts); err != nil {
		return err
	}
	if err := s.expectOK(fmt.Sprintf("SET %.12g", value)); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache = value
	s.mu.Unlock()
	return nil
}

func (s *Serial) Check(value float64, _ Options) error {
	if s.cfg.Min == 0 && s.cfg.Max == 0 {
		return nil
	}
	if value < s.cfg.Min || value > s.cfg.Max {
		return &RangeError{Device: s.name, Value: value, Min: s.cfg.Min, Max: s.cfg.Max}
	}
	return nil
}

func (s *Serial) GetCache() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache
}

func (s *Serial) GetFormat(Options) Format { return Format{} }

func (s *Serial) GetAsync(stage AsyncStage, _ Options) (Value, error) {
	switch stage {
	case StageArm:
		if err := s.expectOK("TRIG"); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.armed, s.fetch = true, false
		s.mu.Unlock()
		return nil, nil
	case StageSettle:
		s.mu.Lock()
		armed := s.armed
		s.mu.Unlock()
		if !armed {
			return nil, fmt.Errorf("%s: settle before arm", s.name)
		}
		s.cfg.Clock.Sleep(s.cfg.Settle)
		return nil, nil
	case StageBeginFetch:
		s.mu.Lock()
		if !s.armed {
			s.mu.Unlock()
			return nil, fmt.Errorf("%s: fetch before arm", s.name)
		}
		s.fetch = true
		s.mu.Unlock()
		s.cmdMu.Lock()
		err := s.send("FETC?")
		s.cmdMu.Unlock()
		return nil, err
	case StageFinishFetch:
		s.mu.Lock()
		fetch := s.fetch
		s.mu.Unlock()
		if !fetch {
			return nil, fmt.Errorf("%s: finish-fetch without begin-fetch", s.name)
		}
		s.cmdMu.Lock()
		resp, err := s.recv()
		s.cmdMu.Unlock()
		if err != nil {
			return nil, err
		}
		v, err := s.parseValue(resp)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache = v
		s.armed, s.fetch = false, false
		s.mu.Unlock()
		return v, nil
	case StageRewind:
		s.mu.Lock()
		s.armed, s.fetch = false, false
		s.mu.Unlock()
		return nil, s.expectOK("ABOR")
	}
	return nil, fmt.Errorf("%s: unknown async stage %d", s.name, int(stage))
}

// Close closes the underlying port.
func (s *Serial) Close() error { return s.port.Close() }
