package port

import (
	"fmt"
	"runtime"
)

// Boot runs entry as the first context and waits until the core settles.
func (m *Machine) Boot(entry func()) error {
	c := m.newContext("main", m.cfg.MainStackSize)
	m.current = c
	if m.cfg.StackGuard {
		m.guard = c.stack.Base
	}
	go func() {
		defer m.recoverPanic()
		entry()
		m.halt(VectorHardFault, "boot returned")
	}()
	return m.Settle()
}

// Interrupt raises v and waits until the core settles.
func (m *Machine) Interrupt(v Vector) error {
	m.mu.Lock()
	m.pending |= 1 << v
	m.cond.Broadcast()
	m.mu.Unlock()
	return m.Settle()
}

// Tick raises SysTick n times, settling after each one.
func (m *Machine) Tick(n int) error {
	for i := 0; i < n; i++ {
		if err := m.Interrupt(VectorSysTick); err != nil {
			return err
		}
	}
	return nil
}

// Raise marks v pending without waiting.
func (m *Machine) Raise(v Vector) {
	m.mu.Lock()
	m.pending |= 1 << v
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Settle blocks until the core waits for an interrupt with nothing
// deliverable, or has halted.
func (m *Machine) Settle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.halted && !(m.parked && !m.deliverableLocked()) {
		m.cond.Wait()
	}
	return m.errLocked()
}

func (m *Machine) errLocked() error {
	if !m.halted {
		return nil
	}
	if m.fault == nil {
		return ErrHalted
	}
	return fmt.Errorf("%w: %s", ErrHalted, m.fault)
}

// Fault returns the halt diagnostic, if the core halted on its own.
func (m *Machine) Fault() (Fault, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fault == nil {
		return Fault{}, false
	}
	return *m.fault, true
}

// Stats returns the event counters. Call it while the core is settled.
func (m *Machine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Shutdown stops every context goroutine.
func (m *Machine) Shutdown() {
	m.mu.Lock()
	if !m.halted {
		m.halted = true
		close(m.dead)
	}
	m.cond.Broadcast()
	m.mu.Unlock()
	runtime.Gosched()
}
