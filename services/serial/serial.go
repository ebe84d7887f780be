// Package serial is the interrupt-driven UART driver. The receive interrupt
// moves bytes from the hardware FIFO into an input queue and broadcasts
// flags on the driver's event source.
package serial

import (
	"ember/hal"
	"ember/kernel"
	"ember/port"
)

// Flags broadcast on the event source.
const (
	FlagInputAvailable kernel.EventFlags = 1 << iota
	FlagOverrun
	// FlagError reports a failed read from the UART.
	FlagError
)

// Config configures a driver instance.
type Config struct {
	IRQ      port.Vector
	Priority port.IRQPriority
	// BufferSize is the input queue capacity in bytes.
	BufferSize int
}

// DefaultConfig returns the configuration of the board UART.
func DefaultConfig() Config {
	return Config{
		IRQ:        port.IRQ(0),
		Priority:   0xC0,
		BufferSize: 128,
	}
}

type overrunCounter interface {
	Overruns() uint32
}

// Driver owns a UART.
type Driver struct {
	k   *kernel.Kernel
	dev hal.Serial
	cfg Config

	in   []byte
	head int
	n    int

	reader   kernel.ThreadRef
	events   kernel.EventSource
	wmu      kernel.Mutex
	overruns uint32
	errors   uint32
	scratch  [32]byte
}

// New binds dev to cfg.IRQ. It must be called from a thread.
func New(k *kernel.Kernel, dev hal.Serial, cfg Config) *Driver {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	d := &Driver{
		k:   k,
		dev: dev,
		cfg: cfg,
		in:  make([]byte, cfg.BufferSize),
	}
	d.events.Init()
	k.InitMutex(&d.wmu)
	k.Core().SetVector(cfg.IRQ, cfg.Priority, k.WrapISR("uart", d.isr))
	return d
}

// Events is the source the driver flags are broadcast on.
func (d *Driver) Events() *kernel.EventSource { return &d.events }

// Pending returns the number of queued input bytes. Call it from a thread
// or with the core settled.
func (d *Driver) Pending() int { return d.n }

// Overruns returns the number of bytes lost so far, in the hardware FIFO or
// the input queue.
func (d *Driver) Overruns() uint32 { return d.overruns }

// Errors returns the number of failed UART reads.
func (d *Driver) Errors() uint32 { return d.errors }

// Read waits up to timeout for input and copies at most len(p) queued bytes
// into p. Only one thread may read at a time.
func (d *Driver) Read(p []byte, timeout kernel.Timeout) (int, kernel.Result) {
	k := d.k
	k.Lock()
	for d.n == 0 {
		if r := k.SuspendTimeoutS(&d.reader, timeout); r != kernel.ResultOK {
			k.Unlock()
			return 0, r
		}
	}
	n := 0
	for n < len(p) && d.n > 0 {
		p[n] = d.in[d.head]
		d.head = (d.head + 1) % len(d.in)
		d.n--
		n++
	}
	k.Unlock()
	return n, kernel.ResultOK
}

// Write transmits p. Concurrent writers are serialized so lines do not
// interleave.
func (d *Driver) Write(p []byte) (int, error) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	return d.dev.Write(p)
}

func (d *Driver) isr() {
	k := d.k
	k.LockFromISR()
	var flags kernel.EventFlags
	for d.dev.Buffered() > 0 {
		got, err := d.dev.Read(d.scratch[:])
		if err != nil {
			d.errors++
			flags |= FlagError
		}
		for _, b := range d.scratch[:got] {
			if d.n == len(d.in) {
				d.overruns++
				flags |= FlagOverrun
				continue
			}
			d.in[(d.head+d.n)%len(d.in)] = b
			d.n++
			flags |= FlagInputAvailable
		}
		if got == 0 || err != nil {
			break
		}
	}
	if oc, ok := d.dev.(overrunCounter); ok {
		if lost := oc.Overruns(); lost > 0 {
			d.overruns += lost
			flags |= FlagOverrun
		}
	}
	if flags&FlagInputAvailable != 0 {
		k.ResumeI(&d.reader, kernel.ResultOK)
	}
	if flags != 0 {
		k.BroadcastFlagsI(&d.events, flags)
	}
	k.UnlockFromISR()
}
