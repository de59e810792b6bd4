// Command labsweep runs a sweep over simulated (or serial-attached)
// instrument devices and writes the acquired data, an optional PNG plot and
// an optional HTML report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/labsweep/internal/config"
	"github.com/banshee-data/labsweep/internal/device"
	"github.com/banshee-data/labsweep/internal/runstore"
	"github.com/banshee-data/labsweep/internal/sweep"
	"github.com/banshee-data/labsweep/internal/trace"
	"github.com/banshee-data/labsweep/internal/version"
)

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseUpdown(s string) (sweep.Updown, error) {
	switch s {
	case "off", "":
		return sweep.UpdownOff, nil
	case "both":
		return sweep.UpdownBoth, nil
	case "reverse":
		return sweep.UpdownReverse, nil
	case "alternate":
		return sweep.UpdownAlternate, nil
	}
	return 0, fmt.Errorf("invalid updown mode '%s' (off, both, reverse, alternate)", s)
}

func main() {
	startV := flag.Float64("start", 0, "Sweep start value")
	stopV := flag.Float64("stop", 1, "Sweep stop value")
	npts := flag.Int("npts", 11, "Number of sweep points")
	logSpace := flag.Bool("log", false, "Logarithmic spacing")
	listV := flag.String("list", "", "Explicit comma-separated setpoints (overrides start/stop/npts)")
	updownMode := flag.String("updown", "off", "Updown mode: 'off', 'both', 'reverse'")

	closeAfter := flag.Bool("close-after", false, "Clear the live trace each time the outer axis advances")

	outerStart := flag.Float64("outer-start", 0, "Outer axis start value")
	outerStop := flag.Float64("outer-stop", 1, "Outer axis stop value")
	outerNpts := flag.Int("outer-npts", 0, "Outer axis points (0 disables the outer axis)")
	outerUpdown := flag.String("outer-updown", "off", "Outer axis updown mode")

	nReads := flag.Int("readers", 1, "Number of simulated read devices")
	settle := flag.Duration("settle", 50*time.Millisecond, "Per-reader settle time")
	async := flag.Bool("async", true, "Use the staged read protocol")
	parallel := flag.Bool("parallel", false, "Step all axes together")
	beforeWait := flag.Duration("before-wait", 0, "Settle wait after each axis move")
	firstWait := flag.Duration("first-wait", 0, "Extra settle when an axis jumps back to its first value")

	serialPort := flag.String("serial", "", "Serial port of a line-protocol instrument to read (optional)")
	baudRate := flag.Int("baud", 115200, "Serial baud rate")

	outFile := flag.String("file", "sweep_%T_%02i.txt", "Output filename template")
	title := flag.String("title", "labsweep", "Run title")
	dbPath := flag.String("db", "", "Run-store sqlite database path (optional)")
	plotFile := flag.String("plot", "", "Write a PNG plot of the run (optional)")
	reportFile := flag.String("report", "", "Write an HTML report of the run (optional)")

	dryRun := flag.Bool("dry-run", false, "Validate endpoints without measuring the full grid")
	resetAfter := flag.Bool("reset", false, "Return axes to their first setpoint when done")

	configPath := flag.String("config", "", "JSON file of sweep defaults")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println("labsweep " + version.String())
		return
	}

	var pollInterval time.Duration
	if *configPath != "" {
		defs, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		// Flags given on the command line win over the config file.
		given := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { given[f.Name] = true })
		if !given["file"] {
			*outFile = defs.GetFilenameTemplate(*outFile)
		}
		if !given["settle"] {
			*settle = defs.GetSettleTime(*settle)
		}
		if !given["before-wait"] {
			*beforeWait = defs.GetBeforeWait(*beforeWait)
		}
		if !given["first-wait"] {
			*firstWait = defs.GetFirstWait(*firstWait)
		}
		if !given["async"] {
			*async = defs.GetAsync(*async)
		}
		if !given["db"] {
			*dbPath = defs.GetStorePath(*dbPath)
		}
		pollInterval = defs.GetPollInterval(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	updown, err := parseUpdown(*updownMode)
	if err != nil {
		log.Fatal(err)
	}

	gate := device.NewMemory("gate.v", *startV)
	var axis *sweep.Axis
	if *listV != "" {
		vals, err := parseCSVFloatSlice(*listV)
		if err != nil {
			log.Fatalf("parsing -list: %v", err)
		}
		axis, err = sweep.NewAxisFromList(gate, nil, vals)
		if err != nil {
			log.Fatalf("building axis: %v", err)
		}
	} else {
		axis, err = sweep.NewAxis(gate, nil, *logSpace, *startV, *stopV, *npts)
		if err != nil {
			log.Fatalf("building axis: %v", err)
		}
	}
	axis.Updown = updown
	axis.CloseAfter = *closeAfter
	axis.BeforeWait = *beforeWait
	axis.FirstWait = *firstWait

	axes := []*sweep.Axis{axis}
	if *outerNpts > 0 {
		outerDev := device.NewMemory("bias.v", *outerStart)
		outer, err := sweep.NewAxis(outerDev, nil, false, *outerStart, *outerStop, *outerNpts)
		if err != nil {
			log.Fatalf("building outer axis: %v", err)
		}
		if outer.Updown, err = parseUpdown(*outerUpdown); err != nil {
			log.Fatal(err)
		}
		axes = []*sweep.Axis{outer, axis}
	}

	reads := simulatedReaders(*nReads, gate, *settle)
	if *serialPort != "" {
		sd, err := device.OpenSerial("meter.val", *serialPort, device.SerialConfig{
			BaudRate: *baudRate,
			Settle:   *settle,
		})
		if err != nil {
			log.Fatalf("opening serial device: %v", err)
		}
		defer sd.Close()
		reads = append(reads, sweep.ReadDevice{Device: sd})
	}

	var store *runstore.Store
	if *dbPath != "" {
		store, err = runstore.Open(*dbPath)
		if err != nil {
			log.Fatalf("opening run store: %v", err)
		}
		defer store.Close()
	}

	rec := trace.NewRecorder()
	res, err := sweep.Run(ctx, sweep.Config{
		Axes:         axes,
		Reads:        reads,
		Filename:     *outFile,
		Title:        *title,
		Async:        *async,
		Parallel:     *parallel,
		DryRun:       *dryRun,
		ResetAfter:   *resetAfter,
		Trace:        rec,
		Store:        store,
		PollInterval: pollInterval,
	})
	if res != nil {
		log.Printf("%d points into %s", res.Iterations, strings.Join(res.Filenames, ", "))
	}
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}

	if *plotFile != "" {
		if err := writeRender(*plotFile, func(f *os.File) error {
			return trace.RenderPNG(f, rec, *title)
		}); err != nil {
			log.Fatalf("writing plot: %v", err)
		}
		log.Printf("plot written to %s", *plotFile)
	}
	if *reportFile != "" {
		if err := writeRender(*reportFile, func(f *os.File) error {
			return trace.RenderHTML(f, rec, *title)
		}); err != nil {
			log.Fatalf("writing report: %v", err)
		}
		log.Printf("report written to %s", *reportFile)
	}
}

// simulatedReaders builds n read devices reporting noiseless functions of
// the driven gate value, with a settle time so the staged protocol has
// latency to hide.
func simulatedReaders(n int, gate *device.Memory, settle time.Duration) []sweep.ReadDevice {
	reads := make([]sweep.ReadDevice, 0, n)
	for i := 0; i < n; i++ {
		scale := float64(i + 1)
		name := fmt.Sprintf("dmm%d.readval", i+1)
		d := device.NewFunc(name, func() (device.Value, error) {
			v, err := gate.Get(nil)
			if err != nil {
				return nil, err
			}
			return math.Sin(scale * v.(float64)), nil
		}).WithSettle(settle, nil)
		reads = append(reads, sweep.ReadDevice{Device: d})
	}
	return reads
}

func writeRender(path string, render func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
