package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"ember/kernel"

	"github.com/BurntSushi/toml"
)

// Workload is the set of demo threads booted by the app, decoded from TOML.
type Workload struct {
	Kernel  KernelConfig  `toml:"kernel"`
	Log     LogConfig     `toml:"log"`
	Monitor MonitorConfig `toml:"monitor"`
	Threads []ThreadSpec  `toml:"thread"`
	Sandbox []SandboxSpec `toml:"sandbox"`
}

// KernelConfig tunes the core and the kernel.
type KernelConfig struct {
	// Model is "full" or "simplified".
	Model       string `toml:"model"`
	TimeQuantum uint32 `toml:"time_quantum"`
	TraceBuffer int    `toml:"trace_buffer"`
	Checks      bool   `toml:"checks"`
}

// LogConfig tunes the logger service.
type LogConfig struct {
	Level string `toml:"level"`
	Queue int    `toml:"queue"`
}

// MonitorConfig tunes the monitor thread and its console panel.
type MonitorConfig struct {
	Enabled  bool   `toml:"enabled"`
	Period   uint32 `toml:"period"`
	LogEvery uint32 `toml:"log_every"`
	// Console is the number of terminal lines under the registry. Zero
	// hides the console.
	Console uint32 `toml:"console"`
}

// ThreadSpec describes one demo thread.
//
// Kinds:
//
//	spin    burn Work ticks, then sleep Period (yield when zero)
//	sleep   toggle the LED every Period
//	mutex   hold the shared mutex for Work ticks every Period
//	sem     wait for the shared semaphore, signalled by a timer every Period
//	sensor  read register Reg of the I2C device at Addr every Period
//	spi     exchange a test pattern on the SPI bus every Period
//	echo    echo serial input back
//	adc     convert Work rows of Channels every Period and log the averages
//	fault   halt the system after Period
type ThreadSpec struct {
	Name     string  `toml:"name"`
	Priority uint8   `toml:"priority"`
	Kind     string  `toml:"kind"`
	Period   uint32  `toml:"period"`
	Work     uint32  `toml:"work"`
	Addr     uint16  `toml:"addr"`
	Reg      uint8   `toml:"reg"`
	Channels []uint8 `toml:"channels"`
}

// SandboxSpec describes an unprivileged program printing Message to the
// serial port every Period.
type SandboxSpec struct {
	Name     string `toml:"name"`
	Priority uint8  `toml:"priority"`
	Message  string `toml:"message"`
	Period   uint32 `toml:"period"`
}

var kinds = map[string]bool{
	"spin": true, "sleep": true, "mutex": true, "sem": true,
	"sensor": true, "spi": true, "echo": true, "fault": true, "adc": true,
}

const defaultWorkload = `
[[thread]]
name = "blink"
priority = 40
kind = "sleep"
period = 50

[[thread]]
name = "sensor"
priority = 30
kind = "sensor"
period = 100
addr = 0x48

[[thread]]
name = "spi"
priority = 25
kind = "spi"
period = 40

[[thread]]
name = "adc"
priority = 35
kind = "adc"
period = 50
work = 4
channels = [0, 1]

[[thread]]
name = "echo"
priority = 60
kind = "echo"

[[thread]]
name = "lo-mtx"
priority = 10
kind = "mutex"
period = 7
work = 3

[[thread]]
name = "hi-mtx"
priority = 50
kind = "mutex"
period = 11
work = 1

[[thread]]
name = "worker"
priority = 20
kind = "sem"
period = 15

[[thread]]
name = "spin-a"
priority = 5
kind = "spin"
period = 3
work = 2

[[thread]]
name = "spin-b"
priority = 5
kind = "spin"
period = 3
work = 2

[[sandbox]]
name = "hello"
priority = 8
message = "hello from the sandbox"
period = 500
`

// workloadDefaults holds the settings a workload file may leave out.
func workloadDefaults() Workload {
	return Workload{
		Kernel:  KernelConfig{Model: "full", TimeQuantum: 4, TraceBuffer: 64, Checks: true},
		Log:     LogConfig{Level: "info", Queue: 32},
		Monitor: MonitorConfig{Enabled: true, Period: 25, LogEvery: 20, Console: 6},
	}
}

// DefaultWorkload returns the built-in demo.
func DefaultWorkload() Workload {
	w, err := ParseWorkload(defaultWorkload)
	if err != nil {
		panic(err)
	}
	return w
}

// ParseWorkload decodes and validates a TOML workload. Sections and keys
// left out keep their defaults.
func ParseWorkload(data string) (Workload, error) {
	w, err := decodeWorkload(data)
	if err != nil {
		return Workload{}, fmt.Errorf("workload: %w", err)
	}
	return w, nil
}

// LoadWorkload reads a TOML workload file.
func LoadWorkload(path string) (Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Workload{}, fmt.Errorf("workload: %w", err)
	}
	w, err := decodeWorkload(string(data))
	if err != nil {
		return Workload{}, fmt.Errorf("workload %s: %w", path, err)
	}
	return w, nil
}

func decodeWorkload(data string) (Workload, error) {
	w := workloadDefaults()
	md, err := toml.Decode(data, &w)
	if err != nil {
		return Workload{}, err
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return Workload{}, fmt.Errorf("unknown key %q", keys[0].String())
	}
	if err := w.validate(); err != nil {
		return Workload{}, err
	}
	return w, nil
}

func (w *Workload) validate() error {
	var errs []error
	switch strings.ToLower(w.Kernel.Model) {
	case "", "full", "simplified":
	default:
		errs = append(errs, fmt.Errorf("unknown priority model %q", w.Kernel.Model))
	}
	names := make(map[string]bool)
	for i, t := range w.Threads {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("thread %d: missing name", i))
		}
		if names[t.Name] {
			errs = append(errs, fmt.Errorf("thread %s: duplicate name", t.Name))
		}
		names[t.Name] = true
		if !kinds[t.Kind] {
			errs = append(errs, fmt.Errorf("thread %s: unknown kind %q", t.Name, t.Kind))
		}
		if kernel.Priority(t.Priority) < kernel.LowPriority {
			errs = append(errs, fmt.Errorf("thread %s: priority %d below the lowest thread priority", t.Name, t.Priority))
		}
		if t.Kind == "adc" && len(t.Channels) == 0 {
			errs = append(errs, fmt.Errorf("thread %s: no channels", t.Name))
		}
	}
	for _, s := range w.Sandbox {
		if kernel.Priority(s.Priority) < kernel.LowPriority {
			errs = append(errs, fmt.Errorf("sandbox %s: priority %d below the lowest thread priority", s.Name, s.Priority))
		}
	}
	return errors.Join(errs...)
}
