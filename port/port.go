// Package port implements the context-switch protocol of the kernel on a
// simulated single-core CPU.
//
// The core keeps one goroutine per execution context and passes a baton
// between them, so exactly one context runs at any instant. Exceptions are
// only taken at delivery points (unmasking, pending from privileged code,
// waiting for an interrupt), which keeps every run deterministic when the
// core is driven by the harness methods on Machine.
package port

import (
	"errors"
	"fmt"
)

// Vector is an exception number in the vector table.
type Vector uint8

const (
	VectorReset      Vector = 1
	VectorNMI        Vector = 2
	VectorHardFault  Vector = 3
	VectorMemManage  Vector = 4
	VectorBusFault   Vector = 5
	VectorUsageFault Vector = 6
	VectorSVCall     Vector = 11
	VectorPendSV     Vector = 14
	VectorSysTick    Vector = 15
	VectorIRQ0       Vector = 16

	// NumVectors is the size of the vector table.
	NumVectors = 64
)

// IRQ returns the vector of external interrupt n.
func IRQ(n int) Vector { return VectorIRQ0 + Vector(n) }

func (v Vector) String() string {
	switch v {
	case VectorReset:
		return "Reset"
	case VectorNMI:
		return "NMI"
	case VectorHardFault:
		return "HardFault"
	case VectorMemManage:
		return "MemManage"
	case VectorBusFault:
		return "BusFault"
	case VectorUsageFault:
		return "UsageFault"
	case VectorSVCall:
		return "SVCall"
	case VectorPendSV:
		return "PendSV"
	case VectorSysTick:
		return "SysTick"
	}
	if v >= VectorIRQ0 {
		return fmt.Sprintf("IRQ%d", v-VectorIRQ0)
	}
	return fmt.Sprintf("Vector(%d)", uint8(v))
}

// IRQPriority is an exception priority. Lower values are more urgent.
type IRQPriority uint8

// LowestPriority is the least urgent exception priority.
const LowestPriority IRQPriority = 0xFF

// PriorityModel selects how a deferred switch is triggered.
type PriorityModel uint8

const (
	// Full uses nested priorities. The critical section masks exceptions at
	// or below the kernel priority and the switch is deferred to PendSV.
	Full PriorityModel = iota
	// Simplified masks every interrupt in the critical section and the
	// interrupt epilogue redirects to the switch routine directly.
	Simplified
)

func (p PriorityModel) String() string {
	switch p {
	case Full:
		return "full"
	case Simplified:
		return "simplified"
	default:
		return "unknown"
	}
}

// Resume is the outcome of an exception epilogue.
type Resume uint8

const (
	// ResumeInterrupted returns to the interrupted context.
	ResumeInterrupted Resume = iota
	// ResumeSwitch returns through the switch routine into the context
	// selected by the scheduler.
	ResumeSwitch
)

func (r Resume) String() string {
	switch r {
	case ResumeInterrupted:
		return "interrupted"
	case ResumeSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Scheduler is consulted by the epilogue of the outermost exception.
//
// Both methods are called with the critical section held.
type Scheduler interface {
	PreemptionRequired() bool
	Reschedule()
}

// ExtCtx is the exception frame pushed on the interrupted stack.
type ExtCtx struct {
	R0, R1, R2, R3 uint32
	R12, LR, PC    uint32
	XPSR           uint32
}

const (
	frameSize  = 32
	midctxSize = 8
	xpsrThumb  = 0x01000000
)

// SyscallHandler dispatches a syscall. The return value goes in ctx.R0.
type SyscallHandler func(ctx *ExtCtx, n uint8)

// Fault describes why the core halted.
type Fault struct {
	Reason  string
	Vector  Vector
	Context string
}

func (f Fault) String() string {
	if f.Context == "" {
		return fmt.Sprintf("%s (%s)", f.Reason, f.Vector)
	}
	return fmt.Sprintf("%s (%s, context %s)", f.Reason, f.Vector, f.Context)
}

// ErrHalted is returned by harness calls once the core has stopped.
var ErrHalted = errors.New("port: core halted")

// Core is the capability the kernel is built on.
type Core interface {
	Lock()
	Unlock()
	LockFromISR()
	UnlockFromISR()
	Locked() bool
	InISR() bool

	NewContext(name string, stackSize uint32, entry func()) *Context
	Current() *Context
	Switch(next, prev *Context)
	Exit(next *Context)
	WaitForInterrupt()

	Pend(v Vector)
	SetVector(v Vector, prio IRQPriority, handler func())
	SetScheduler(s Scheduler)
	SetHaltHook(fn func(Fault))
	Halt(reason string)
}
