package port

import "fmt"

func (m *Machine) deliver() {
	for {
		m.mu.Lock()
		v, ok := m.nextPendingLocked()
		if ok {
			m.pending &^= 1 << v
		}
		m.mu.Unlock()
		if !ok {
			return
		}
		m.take(v)
	}
}

// take runs one exception on the current context.
func (m *Machine) take(v Vector) {
	var s *stack
	outer := len(m.active) == 0
	if outer {
		s = m.current.active()
		m.push(s, frameSize)
	}
	primask, basepri := m.primask, m.basepri

	m.active = append(m.active, v)
	m.stats.Taken[v]++
	if h := m.vectors[v].handler; h != nil {
		h()
	} else {
		m.unhandled(v)
	}
	res := m.epilogue(v)
	m.active = m.active[:len(m.active)-1]

	if res == ResumeSwitch {
		m.switchFromISR()
	} else {
		m.primask, m.basepri = primask, basepri
	}
	if outer {
		pop(s, frameSize)
	}
}

func (m *Machine) unhandled(v Vector) {
	m.primask = true
	m.halt(v, fmt.Sprintf("unhandled vector %d", v))
}

// epilogue decides how the exception returns. Only the exception that
// returns to thread level may redirect into the switch routine.
func (m *Machine) epilogue(v Vector) Resume {
	if len(m.active) != 1 || m.sched == nil {
		return ResumeInterrupted
	}
	if m.cfg.Model == Full && m.vectors[v].prio < m.cfg.KernelPriority {
		return ResumeInterrupted
	}

	m.mask()
	switch m.cfg.Model {
	case Simplified:
		if m.sched.PreemptionRequired() {
			return ResumeSwitch
		}
	case Full:
		if v == VectorPendSV {
			if m.sched.PreemptionRequired() {
				return ResumeSwitch
			}
		} else if m.sched.PreemptionRequired() {
			m.mu.Lock()
			m.pending |= 1 << VectorPendSV
			m.mu.Unlock()
		}
	}
	m.unmask()
	return ResumeInterrupted
}

// switchFromISR is where the artificial return frame resumes: thread mode,
// critical section held.
func (m *Machine) switchFromISR() {
	m.stats.ISRSwitches++
	m.sched.Reschedule()
	m.discard()
}

// discard drops the artificial frame and releases the critical section.
// The Full model traps through SVCall, the Simplified one through PendSV.
func (m *Machine) discard() {
	if m.stopped {
		return
	}
	if m.cfg.Model == Full {
		m.stats.Taken[VectorSVCall]++
	} else {
		m.stats.Taken[VectorPendSV]++
	}
	m.unmask()
}
