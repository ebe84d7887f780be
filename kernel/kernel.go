// Package kernel is a preemptive real-time kernel: fixed-priority scheduling
// with round-robin among equals, mutexes with priority inheritance, counting
// semaphores, virtual timers, event flags and mailboxes.
//
// API naming follows the locking class. Methods ending in I are callable
// with the critical section held from threads or interrupt handlers. Methods
// ending in S need the critical section held in thread context. The rest
// are called from threads with the critical section released.
package kernel

import (
	"errors"
	"sync"

	"ember/port"

	"github.com/joeycumines/logiface"
)

const (
	// MaxThreads is the size of the thread table.
	MaxThreads = 32
	// MaxMutexes is the size of the mutex table.
	MaxMutexes = 32
)

// Priority orders threads. Higher values are more urgent.
type Priority uint8

const (
	NoPriority     Priority = 0
	IdlePriority   Priority = 1
	LowPriority    Priority = 2
	NormalPriority Priority = 128
	HighPriority   Priority = 255
)

// ThreadID is a handle into the thread table.
type ThreadID int16

// NoThread is the absent thread.
const NoThread ThreadID = -1

// Tick counts SysTick interrupts since Init.
type Tick uint64

// Timeout is a relative timeout in ticks.
type Timeout uint32

const (
	// Immediate never blocks.
	Immediate Timeout = 0
	// Infinite never expires.
	Infinite Timeout = ^Timeout(0)
)

// Func is the shape of every callback: thread bodies, timer callbacks and
// completion hooks.
type Func func(arg any)

// Result is the outcome of a blocking operation.
type Result int8

const (
	ResultOK      Result = 0
	ResultTimeout Result = -1
	ResultReset   Result = -2
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultTimeout:
		return "timeout"
	case ResultReset:
		return "reset"
	default:
		return "unknown"
	}
}

var (
	ErrTooManyThreads = errors.New("kernel: thread table full")
	ErrBadPriority    = errors.New("kernel: priority out of range")
)

// Config is the build-time configuration of a kernel instance.
type Config struct {
	// TimeQuantum is the round-robin slice in ticks. Zero disables
	// time slicing among equal priorities.
	TimeQuantum     uint32
	IdleStackSize   uint32
	TraceBufferSize int
	SysTickPriority port.IRQPriority
	// Checks enables API class assertions.
	Checks bool
	Logger *logiface.Logger[logiface.Event]
}

// DefaultConfig returns the usual configuration.
func DefaultConfig() Config {
	return Config{
		TimeQuantum:     20,
		IdleStackSize:   256,
		TraceBufferSize: 128,
		SysTickPriority: 0x80,
		Checks:          true,
	}
}

// Kernel is the whole kernel state. It is mutated only inside the critical
// section of its core.
type Kernel struct {
	core port.Core
	cfg  Config
	log  *logiface.Logger[logiface.Event]

	threads [MaxThreads]thread
	mutexes [MaxMutexes]mutex
	ready   threadQueue
	current ThreadID
	idle    ThreadID
	now     Tick
	timers  timerList
	trace   traceBuffer

	haltOnce    sync.Once
	haltHandler func(HaltInfo)
	halted      bool
}

// New returns a kernel bound to core. Init must run on the boot context
// before anything else.
func New(core port.Core, cfg Config) *Kernel {
	k := &Kernel{
		core:    core,
		cfg:     cfg,
		log:     cfg.Logger,
		current: NoThread,
		idle:    NoThread,
	}
	k.ready.init()
	k.trace.init(cfg.TraceBufferSize)
	for i := range k.mutexes {
		k.mutexes[i].queue.init()
		k.mutexes[i].owner = NoThread
	}
	return k
}

// Init turns the calling boot context into the main thread, creates the
// idle thread and enables interrupts.
func (k *Kernel) Init() {
	k.core.Lock()
	k.core.SetHaltHook(k.onHalt)
	k.core.SetScheduler(k)

	main := k.allocThread("main", NormalPriority)
	mt := &k.threads[main]
	mt.ctx = k.core.Current()
	mt.state = StateCurrent
	k.current = main

	k.idle = k.allocThread("idle", IdlePriority)
	k.threads[k.idle].ctx = k.core.NewContext("idle", k.cfg.IdleStackSize, func() {
		for {
			k.core.WaitForInterrupt()
		}
	})
	k.readyI(k.idle, ResultOK)

	k.core.SetVector(port.VectorSysTick, k.cfg.SysTickPriority, k.WrapISR("systick", k.tickISR))
	k.core.Unlock()

	k.log.Info().
		Int("threads", MaxThreads).
		Int64("quantum", int64(k.cfg.TimeQuantum)).
		Log("kernel started")
}

// Config returns the configuration the kernel was built with.
func (k *Kernel) Config() Config { return k.cfg }

// Core returns the core the kernel runs on.
func (k *Kernel) Core() port.Core { return k.core }

// Logger returns the kernel logger, which may be nil.
func (k *Kernel) Logger() *logiface.Logger[logiface.Event] { return k.log }

// Lock enters the critical section from a thread.
func (k *Kernel) Lock() {
	k.checkThread()
	k.core.Lock()
}

// Unlock leaves the critical section from a thread.
func (k *Kernel) Unlock() {
	k.checkClassS()
	k.core.Unlock()
}

// LockFromISR enters the critical section from an interrupt handler.
func (k *Kernel) LockFromISR() { k.core.LockFromISR() }

// UnlockFromISR leaves the critical section from an interrupt handler.
func (k *Kernel) UnlockFromISR() { k.core.UnlockFromISR() }

// Now returns the current tick.
func (k *Kernel) Now() Tick { return k.now }

// Self returns the running thread.
func (k *Kernel) Self() ThreadID { return k.current }

func (k *Kernel) checkThread() {
	if k.cfg.Checks && (k.core.InISR() || k.core.Locked()) {
		k.core.Halt("api class")
	}
}

func (k *Kernel) checkClassS() {
	if k.cfg.Checks && (k.core.InISR() || !k.core.Locked()) {
		k.core.Halt("api class")
	}
}

func (k *Kernel) checkClassI() {
	if k.cfg.Checks && !k.core.Locked() {
		k.core.Halt("api class")
	}
}
