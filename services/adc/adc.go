// Package adc drives an analog converter from kernel threads. A conversion
// fills a sample buffer one row per converter interrupt; the interrupt
// handler reports a full buffer through the group callbacks and wakes the
// thread waiting in Convert.
package adc

import (
	"errors"
	"fmt"

	"ember/hal"
	"ember/kernel"
	"ember/port"
)

var (
	ErrTimeout     = errors.New("adc: conversion timed out")
	ErrNotAcquired = errors.New("adc: not acquired by caller")
	ErrBusy        = errors.New("adc: conversion in progress")
	ErrStopped     = errors.New("adc: conversion stopped")
	ErrBuffer      = errors.New("adc: buffer too small for group")
	ErrCircular    = errors.New("adc: circular group cannot be waited on")
)

// Config describes a converter.
type Config struct {
	IRQ      port.Vector
	Priority port.IRQPriority
	// Timeout bounds Convert. Zero waits forever.
	Timeout kernel.Timeout
}

// State is the driver state.
type State uint8

const (
	StateReady State = iota
	StateActive
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Completion is the argument of Group.End.
type Completion struct {
	// Samples holds Rows rows of one sample per group channel.
	Samples []uint16
	Rows    int
}

// Group is a conversion group: the channels sampled on each trigger and the
// callbacks run by the interrupt handler. Callbacks run with the kernel
// locked and may only use I-class calls.
type Group struct {
	Channels []uint8
	// Circular restarts at the first row each time the buffer fills, until
	// the conversion is stopped.
	Circular bool
	// End receives a Completion when the buffer fills.
	End kernel.Func
	// Error receives the converter error when a row cannot be read. The
	// conversion is abandoned.
	Error kernel.Func
}

// Stats counts conversions.
type Stats struct {
	Conversions uint32
	Errors      uint32
	Timeouts    uint32
}

// Driver is an ADC driver instance.
type Driver struct {
	k   *kernel.Kernel
	dev hal.ADC
	cfg Config
	mu  kernel.Mutex
	ref kernel.ThreadRef

	state State
	grp   *Group
	buf   []uint16
	depth int
	row   int
	err   error
	stats Stats
}

// New returns a driver for dev and installs its interrupt handler.
func New(k *kernel.Kernel, dev hal.ADC, cfg Config) *Driver {
	if cfg.Timeout == kernel.Immediate {
		cfg.Timeout = kernel.Infinite
	}
	d := &Driver{k: k, dev: dev, cfg: cfg}
	k.InitMutex(&d.mu)
	k.Core().SetVector(cfg.IRQ, cfg.Priority, k.WrapISR("adc", d.isr))
	return d
}

// Acquire gains exclusive use of the converter.
func (d *Driver) Acquire() { d.mu.Lock() }

// Release gives the converter back.
func (d *Driver) Release() { d.mu.Unlock() }

// State returns the driver state.
func (d *Driver) State() State { return d.state }

// Stats returns the conversion counters.
func (d *Driver) Stats() Stats { return d.stats }

// Start begins an asynchronous conversion of depth rows into buf. Results
// are delivered through the group callbacks only.
func (d *Driver) Start(g *Group, buf []uint16, depth int) error {
	d.k.Lock()
	err := d.startS(g, buf, depth)
	d.k.Unlock()
	return err
}

func (d *Driver) startS(g *Group, buf []uint16, depth int) error {
	if d.state == StateActive {
		return ErrBusy
	}
	if depth <= 0 || len(g.Channels) == 0 || len(buf) < depth*len(g.Channels) {
		return ErrBuffer
	}
	if err := d.dev.Start(g.Channels); err != nil {
		return fmt.Errorf("adc: %w", err)
	}
	d.grp, d.buf, d.depth = g, buf, depth
	d.row, d.err = 0, nil
	d.state = StateActive
	return nil
}

// Convert runs a linear conversion of depth rows into buf and waits for it
// to complete, fail or time out. The caller must hold the converter.
func (d *Driver) Convert(g *Group, buf []uint16, depth int) error {
	k := d.k
	if d.mu.Owner() != k.Self() {
		return ErrNotAcquired
	}
	if g.Circular {
		return ErrCircular
	}
	k.Lock()
	if err := d.startS(g, buf, depth); err != nil {
		k.Unlock()
		return err
	}
	r := k.SuspendTimeoutS(&d.ref, d.cfg.Timeout)
	var err error
	switch r {
	case kernel.ResultOK:
	case kernel.ResultTimeout:
		d.dev.Stop()
		d.state = StateReady
		d.stats.Timeouts++
		err = ErrTimeout
	default:
		err = d.err
	}
	k.Unlock()
	return err
}

// StopI abandons the conversion in flight. A thread waiting in Convert
// returns ErrStopped. It may be called from a group callback.
func (d *Driver) StopI() {
	if d.state != StateActive {
		return
	}
	d.dev.Stop()
	d.state = StateReady
	d.err = ErrStopped
	d.k.ResumeI(&d.ref, kernel.ResultReset)
}

// Stop is StopI from thread context.
func (d *Driver) Stop() {
	k := d.k
	k.Lock()
	d.StopI()
	k.RescheduleS()
	k.Unlock()
}

// isr collects one row of the conversion in flight.
func (d *Driver) isr() {
	k := d.k
	k.LockFromISR()
	if d.state == StateActive {
		n := len(d.grp.Channels)
		if err := d.dev.Read(d.buf[d.row*n : (d.row+1)*n]); err != nil {
			d.fail(err)
		} else {
			d.row++
			if d.row == d.depth {
				d.complete()
			}
		}
	}
	k.UnlockFromISR()
}

func (d *Driver) complete() {
	g := d.grp
	d.stats.Conversions++
	if g.End != nil {
		g.End(Completion{Samples: d.buf[:d.depth*len(g.Channels)], Rows: d.depth})
	}
	if d.state != StateActive {
		return
	}
	if g.Circular {
		d.row = 0
		return
	}
	d.dev.Stop()
	d.state = StateComplete
	d.k.ResumeI(&d.ref, kernel.ResultOK)
}

func (d *Driver) fail(err error) {
	d.dev.Stop()
	d.state = StateError
	d.err = fmt.Errorf("adc: %w", err)
	d.stats.Errors++
	if d.grp.Error != nil {
		d.grp.Error(d.err)
	}
	d.k.ResumeI(&d.ref, kernel.ResultReset)
}
