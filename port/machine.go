package port

import (
	"fmt"
	"math/bits"
	"runtime"
	"sync"
)

const (
	threadLevel = 0x100
	ramBase     = 0x20000000
)

// Config describes the simulated core.
type Config struct {
	Model PriorityModel
	// KernelPriority is the mask level of the critical section in the Full
	// model. Exceptions more urgent than it are never masked and must not
	// call the kernel.
	KernelPriority IRQPriority
	StackGuard     bool
	GuardSize      uint32
	MainStackSize  uint32
}

// DefaultConfig returns the configuration of a Cortex-M class core with the
// stack guard enabled.
func DefaultConfig() Config {
	return Config{
		Model:          Full,
		KernelPriority: 0x20,
		StackGuard:     true,
		GuardSize:      32,
		MainStackSize:  1024,
	}
}

// Stats counts core events.
type Stats struct {
	Taken       [NumVectors]uint64
	Switches    uint64
	ISRSwitches uint64
	Syscalls    uint64
}

type vector struct {
	prio    IRQPriority
	handler func()
}

// Machine is a simulated single-core CPU.
type Machine struct {
	cfg Config

	mu      sync.Mutex
	cond    *sync.Cond
	pending uint64
	parked  bool
	halted  bool
	fault   *Fault
	dead    chan struct{}

	// Owned by the goroutine holding the CPU.
	vectors  [NumVectors]vector
	active   []Vector
	primask  bool
	basepri  IRQPriority
	current  *Context
	sched    Scheduler
	svc      SyscallHandler
	haltHook func(Fault)
	stopped  bool
	guard    uint32
	nextAddr uint32
	stats    Stats
}

var _ Core = (*Machine)(nil)

// New returns a core that has not booted yet.
func New(cfg Config) *Machine {
	if cfg.GuardSize == 0 {
		cfg.GuardSize = 32
	}
	if cfg.MainStackSize == 0 {
		cfg.MainStackSize = 1024
	}
	m := &Machine{
		cfg:      cfg,
		dead:     make(chan struct{}),
		nextAddr: ramBase,
	}
	m.cond = sync.NewCond(&m.mu)
	m.vectors[VectorPendSV] = vector{prio: LowestPriority, handler: func() {}}
	m.vectors[VectorSVCall] = vector{prio: cfg.KernelPriority, handler: func() {}}
	return m
}

// Config returns the core configuration.
func (m *Machine) Config() Config { return m.cfg }

// Alloc reserves a region of simulated memory aligned to the guard size.
func (m *Machine) Alloc(size uint32) Region {
	align := m.cfg.GuardSize
	size = (size + align - 1) &^ (align - 1)
	r := Region{Base: m.nextAddr, Size: size}
	m.nextAddr += size
	return r
}

func (m *Machine) newContext(name string, stackSize uint32) *Context {
	return &Context{
		name:       name,
		stack:      newStack(m.Alloc(stackSize)),
		privileged: true,
		wake:       make(chan struct{}, 1),
	}
}

// NewContext creates a context that starts running entry, with the critical
// section released, the first time it is switched in.
func (m *Machine) NewContext(name string, stackSize uint32, entry func()) *Context {
	c := m.newContext(name, stackSize)
	go func() {
		m.wait(c)
		defer m.recoverPanic()
		m.Unlock()
		entry()
		m.halt(VectorHardFault, "thread returned")
	}()
	return c
}

func (m *Machine) recoverPanic() {
	if r := recover(); r != nil {
		m.halt(VectorHardFault, fmt.Sprint("panic: ", r))
	}
}

func (m *Machine) wait(c *Context) {
	select {
	case <-c.wake:
	case <-m.dead:
		runtime.Goexit()
	}
}

// Current returns the running context.
func (m *Machine) Current() *Context { return m.current }

// Switch saves prev and resumes next. It must be called with the critical
// section held and returns, still locked, once prev is switched back in.
func (m *Machine) Switch(next, prev *Context) {
	if m.stopped || next == prev {
		return
	}
	m.install(next)
	next.wake <- struct{}{}
	m.wait(prev)
}

// Exit resumes next and terminates the calling context.
func (m *Machine) Exit(next *Context) {
	if m.stopped {
		runtime.Goexit()
	}
	m.install(next)
	next.wake <- struct{}{}
	runtime.Goexit()
}

func (m *Machine) install(next *Context) {
	m.current = next
	m.stats.Switches++
	if m.cfg.StackGuard {
		m.guard = next.stack.Base
	}
}

// Guard returns the base of the region currently protected by the guard.
func (m *Machine) Guard() Region {
	if !m.cfg.StackGuard {
		return Region{}
	}
	return Region{Base: m.guard, Size: m.cfg.GuardSize}
}

func (m *Machine) requirePrivileged() {
	if len(m.active) == 0 && m.current != nil && !m.current.privileged {
		m.halt(VectorHardFault, "privilege")
	}
}

func (m *Machine) mask() {
	if m.cfg.Model == Simplified {
		m.primask = true
		return
	}
	m.basepri = m.cfg.KernelPriority
}

func (m *Machine) unmask() {
	m.primask = false
	m.basepri = 0
}

func (m *Machine) Lock() {
	if m.stopped {
		return
	}
	m.requirePrivileged()
	m.mask()
}

func (m *Machine) Unlock() {
	if m.stopped {
		return
	}
	m.requirePrivileged()
	m.unmask()
	m.deliver()
}

func (m *Machine) LockFromISR() {
	if m.stopped {
		return
	}
	m.mask()
}

func (m *Machine) UnlockFromISR() {
	if m.stopped {
		return
	}
	m.unmask()
	m.deliver()
}

// Locked reports whether kernel interrupts are masked.
func (m *Machine) Locked() bool { return m.primask || m.basepri != 0 }

// InISR reports whether an exception is active.
func (m *Machine) InISR() bool { return len(m.active) > 0 }

// ActiveVector returns the innermost active exception, or 0 in thread mode.
func (m *Machine) ActiveVector() Vector {
	if len(m.active) == 0 {
		return 0
	}
	return m.active[len(m.active)-1]
}

// SetVector installs an exception handler. Only SysTick and external
// interrupts can be configured.
func (m *Machine) SetVector(v Vector, prio IRQPriority, handler func()) {
	if m.stopped {
		return
	}
	m.requirePrivileged()
	if v < VectorSysTick || v >= NumVectors {
		m.halt(VectorUsageFault, fmt.Sprintf("vector %d reserved", v))
	}
	m.vectors[v] = vector{prio: prio, handler: handler}
}

func (m *Machine) SetScheduler(s Scheduler)           { m.sched = s }
func (m *Machine) SetHaltHook(fn func(Fault))         { m.haltHook = fn }
func (m *Machine) SetSyscallHandler(h SyscallHandler) { m.svc = h }

// Pend marks v pending and takes it at once if it is deliverable.
func (m *Machine) Pend(v Vector) {
	if m.stopped {
		return
	}
	m.requirePrivileged()
	m.mu.Lock()
	m.pending |= 1 << v
	m.mu.Unlock()
	m.deliver()
}

// WaitForInterrupt parks the core until an exception is deliverable, then
// takes it.
func (m *Machine) WaitForInterrupt() {
	if m.stopped {
		return
	}
	m.mu.Lock()
	if !m.deliverableLocked() {
		m.parked = true
		m.cond.Broadcast()
		for !m.halted && !m.deliverableLocked() {
			m.cond.Wait()
		}
		m.parked = false
	}
	halted := m.halted
	m.mu.Unlock()
	if halted {
		runtime.Goexit()
	}
	m.deliver()
}

// Poll is a delivery point for code that only burns cycles. On the
// simulated core it behaves like WaitForInterrupt without leaving the
// calling context.
func (m *Machine) Poll() { m.WaitForInterrupt() }

// UseStack consumes n bytes of the current stack.
func (m *Machine) UseStack(n uint32) {
	if m.stopped {
		return
	}
	m.push(m.current.active(), n)
}

// ReleaseStack returns n bytes to the current stack.
func (m *Machine) ReleaseStack(n uint32) {
	if m.stopped {
		return
	}
	pop(m.current.active(), n)
}

func (m *Machine) push(s *stack, n uint32) {
	room := s.sp - s.Base
	if m.cfg.StackGuard && s.Base == m.guard {
		if n > room || s.sp-n < s.Base+m.cfg.GuardSize {
			m.halt(VectorMemManage, "stack guard")
		}
	}
	if n > room {
		n = room
	}
	s.sp -= n
	if s.sp < s.low {
		s.low = s.sp
	}
}

func pop(s *stack, n uint32) {
	if s.End()-s.sp < n {
		s.sp = s.End()
		return
	}
	s.sp += n
}

// Halt stops the core with a diagnostic tag. It does not return.
func (m *Machine) Halt(reason string) {
	v := m.ActiveVector()
	if v == 0 {
		v = VectorHardFault
	}
	m.halt(v, reason)
}

func (m *Machine) halt(v Vector, reason string) {
	if m.stopped {
		runtime.Goexit()
	}
	m.stopped = true
	m.primask = true
	f := Fault{Reason: reason, Vector: v}
	if m.current != nil {
		f.Context = m.current.name
	}
	if m.haltHook != nil {
		m.haltHook(f)
	}
	m.mu.Lock()
	m.fault = &f
	if !m.halted {
		m.halted = true
		close(m.dead)
	}
	m.cond.Broadcast()
	m.mu.Unlock()
	runtime.Goexit()
}

func (m *Machine) execPriority() int {
	p := threadLevel
	for _, v := range m.active {
		if pr := int(m.vectors[v].prio); pr < p {
			p = pr
		}
	}
	if m.basepri != 0 && int(m.basepri) < p {
		p = int(m.basepri)
	}
	return p
}

func (m *Machine) nextPendingLocked() (Vector, bool) {
	if m.primask || m.pending == 0 {
		return 0, false
	}
	best, bestPrio := -1, m.execPriority()
	for p := m.pending; p != 0; p &= p - 1 {
		v := bits.TrailingZeros64(p)
		if pr := int(m.vectors[v].prio); pr < bestPrio {
			best, bestPrio = v, pr
		}
	}
	if best < 0 {
		return 0, false
	}
	return Vector(best), true
}

func (m *Machine) deliverableLocked() bool {
	_, ok := m.nextPendingLocked()
	return ok
}
