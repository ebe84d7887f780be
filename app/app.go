// Package app boots the kernel on a board and runs a workload of demo
// threads on it.
package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"ember/hal"
	"ember/kernel"
	"ember/port"
	"ember/sandbox"
	"ember/services/adc"
	"ember/services/bus"
	"ember/services/logger"
	"ember/services/monitor"
	"ember/services/serial"

	"github.com/joeycumines/logiface"
)

// Interrupt lines of the board peripherals.
var (
	SerialIRQ = port.IRQ(0)
	I2CIRQ    = port.IRQ(1)
	SPIIRQ    = port.IRQ(2)
	ADCIRQ    = port.IRQ(3)
)

// Options tune how the system is driven.
type Options struct {
	// KeepAlive makes Step report nothing after a halt, so that a window
	// keeps showing the halt screen.
	KeepAlive bool
}

// System is a booted machine running a workload.
type System struct {
	h    hal.HAL
	w    Workload
	opts Options

	m    *port.Machine
	k    *kernel.Kernel
	logs *logger.Service
	log  *logiface.Logger[logiface.Event]

	uart *serial.Driver
	i2c  *bus.I2C
	spi  *bus.SPI
	adc  *adc.Driver
	mon  *monitor.Monitor
	con  *monitor.Console
	box  *sandbox.Host
	// out carries program output: the UART, teed into the console.
	out io.Writer

	mu       kernel.Mutex
	sem      kernel.Semaphore
	semTimer kernel.VirtualTimer
	led      bool
}

// Boot builds the machine and kernel for h and starts w. It returns once
// every workload thread has been created.
func Boot(h hal.HAL, w Workload, opts Options) (*System, error) {
	lcfg := logger.DefaultConfig()
	if w.Log.Level != "" {
		level, err := logger.ParseLevel(w.Log.Level)
		if err != nil {
			return nil, err
		}
		lcfg.Level = level
	}
	if w.Log.Queue > 0 {
		lcfg.QueueSize = w.Log.Queue
	}

	s := &System{h: h, w: w, opts: opts}
	s.logs = logger.New(h.Logger(), lcfg)
	s.log = s.logs.Logger()

	pcfg := port.DefaultConfig()
	if strings.EqualFold(w.Kernel.Model, "simplified") {
		pcfg.Model = port.Simplified
	}
	s.m = port.New(pcfg)

	kcfg := kernel.DefaultConfig()
	kcfg.TimeQuantum = w.Kernel.TimeQuantum
	if w.Kernel.TraceBuffer > 0 {
		kcfg.TraceBufferSize = w.Kernel.TraceBuffer
	}
	kcfg.Checks = w.Kernel.Checks
	kcfg.Logger = s.log
	s.k = kernel.New(s.m, kcfg)
	s.k.SetHaltHandler(s.haltScreen)

	var setupErr error
	err := s.m.Boot(func() {
		s.k.Init()
		var code int32
		if setupErr = s.setup(); setupErr != nil {
			code = 1
		}
		s.k.Exit(code)
	})
	if err == nil {
		err = setupErr
	}
	if err != nil {
		s.m.Shutdown()
		return nil, fmt.Errorf("boot: %w", err)
	}
	return s, nil
}

// New boots w on h and returns the step function of the host runners.
func New(h hal.HAL, w Workload, opts Options) func() error {
	s, err := Boot(h, w, opts)
	if err != nil {
		return func() error { return err }
	}
	return s.Step
}

// Run boots the default workload and drives it from the board tick source
// until the core fails.
func Run(h hal.HAL) {
	s, err := Boot(h, DefaultWorkload(), Options{KeepAlive: true})
	if err != nil {
		h.Logger().WriteLineString(err.Error())
		select {}
	}
	if err := s.drive(); err != nil {
		h.Logger().WriteLineString("run: " + err.Error())
	}
	select {}
}

// drive delivers the board ticks one by one until the tick stream ends or
// the core fails.
func (s *System) drive() error {
	for range s.h.Time().Ticks() {
		if err := s.advance(1); err != nil {
			return err
		}
	}
	return nil
}

// Kernel returns the running kernel.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// Machine returns the simulated core.
func (s *System) Machine() *port.Machine { return s.m }

// Shutdown stops the machine.
func (s *System) Shutdown() { s.m.Shutdown() }

// Step delivers the ticks the board produced since the previous call and
// raises the serial interrupt if input is waiting.
func (s *System) Step() error {
	n := 0
	if t := s.h.Time(); t != nil {
		ch := t.Ticks()
	drain:
		for ch != nil {
			select {
			case <-ch:
				n++
			default:
				break drain
			}
		}
	}
	return s.advance(n)
}

func (s *System) advance(ticks int) error {
	err := s.tick(ticks)
	if err == nil && s.uart != nil && s.h.Serial().Buffered() > 0 {
		err = s.m.Interrupt(SerialIRQ)
	}
	if err != nil && s.opts.KeepAlive && errors.Is(err, port.ErrHalted) {
		return nil
	}
	return err
}

// tick delivers n SysTicks. While the converter is armed the board
// triggers it once per tick.
func (s *System) tick(n int) error {
	dev := s.h.ADC()
	if s.adc == nil || n == 0 {
		return s.m.Tick(n)
	}
	for ; n > 0; n-- {
		if err := s.m.Tick(1); err != nil {
			return err
		}
		if dev.Running() {
			if err := s.m.Interrupt(ADCIRQ); err != nil {
				return err
			}
		}
	}
	return nil
}

// setup runs on the main thread.
func (s *System) setup() error {
	k := s.k
	if err := s.logs.Start(k); err != nil {
		return err
	}
	k.InitMutex(&s.mu)
	k.InitSemaphore(&s.sem, 0)

	if dev := s.h.Serial(); dev != nil {
		s.uart = serial.New(k, dev, serial.Config{IRQ: SerialIRQ, Priority: 0xC0, BufferSize: 128})
	}
	if dev := s.h.I2C(); dev != nil {
		s.i2c = bus.NewI2C(k, dev, bus.Config{IRQ: I2CIRQ, Priority: 0x80, Timeout: 10})
	}
	if dev := s.h.SPI(); dev != nil {
		s.spi = bus.NewSPI(k, dev, bus.Config{IRQ: SPIIRQ, Priority: 0x80, Timeout: 10})
	}
	if dev := s.h.ADC(); dev != nil {
		s.adc = adc.New(k, dev, adc.Config{IRQ: ADCIRQ, Priority: 0x80, Timeout: 20})
	}
	s.box = sandbox.NewHost(k, s.m)

	var outs []io.Writer
	if s.uart != nil {
		outs = append(outs, s.uart)
	}
	if s.w.Monitor.Enabled {
		fb := framebuffer(s.h)
		mcfg := monitor.DefaultConfig()
		mcfg.Logger = s.log
		if s.w.Monitor.Period > 0 {
			mcfg.Period = kernel.Timeout(s.w.Monitor.Period)
		}
		mcfg.LogEvery = s.w.Monitor.LogEvery
		if fb != nil && s.w.Monitor.Console > 0 {
			s.con = monitor.NewConsole(k, fb.Width(), int(s.w.Monitor.Console))
			mcfg.Console = s.con
			outs = append(outs, s.con)
		}
		s.mon = monitor.New(k, fb, mcfg)
		if _, err := s.mon.Start(); err != nil {
			return err
		}
	}
	if len(outs) > 0 {
		s.out = io.MultiWriter(outs...)
	}

	var semPeriod uint32
	for _, ts := range s.w.Threads {
		if err := s.spawn(ts); err != nil {
			return err
		}
		if ts.Kind == "sem" && ts.Period > 0 && (semPeriod == 0 || ts.Period < semPeriod) {
			semPeriod = ts.Period
		}
	}
	for _, ts := range s.w.Sandbox {
		if err := s.spawnSandbox(ts); err != nil {
			return err
		}
	}
	if semPeriod > 0 {
		k.SetTimer(&s.semTimer, kernel.Tick(semPeriod), s.semTick, semPeriod)
	}

	s.log.Info().
		Int("threads", len(s.w.Threads)).
		Int("sandboxes", len(s.w.Sandbox)).
		Str("model", s.m.Config().Model.String()).
		Log("workload started")
	return nil
}

// semTick runs in the SysTick handler.
func (s *System) semTick(arg any) {
	period := arg.(uint32)
	s.sem.SignalI()
	s.k.SetTimerI(&s.semTimer, kernel.Tick(period), s.semTick, arg)
}

func framebuffer(h hal.HAL) hal.Framebuffer {
	d := h.Display()
	if d == nil {
		return nil
	}
	fb := d.Framebuffer()
	if fb == nil || fb.Buffer() == nil {
		return nil
	}
	return fb
}
