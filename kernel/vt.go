package kernel

// VirtualTimer is a one-shot callback due at an absolute tick. The zero
// value is a disarmed timer.
type VirtualTimer struct {
	deadline   Tick
	fn         Func
	arg        any
	next, prev *VirtualTimer
	armed      bool
}

// Armed reports whether vt is waiting to fire.
func (vt *VirtualTimer) Armed() bool { return vt.armed }

// Deadline returns the tick vt is due at.
func (vt *VirtualTimer) Deadline() Tick { return vt.deadline }

// timerList keeps armed timers by ascending deadline, FIFO among equal
// deadlines.
type timerList struct {
	head, tail *VirtualTimer
}

func (l *timerList) insert(vt *VirtualTimer) {
	c := l.head
	for c != nil && c.deadline <= vt.deadline {
		c = c.next
	}
	vt.next = c
	if c == nil {
		vt.prev = l.tail
		l.tail = vt
	} else {
		vt.prev = c.prev
		c.prev = vt
	}
	if vt.prev == nil {
		l.head = vt
	} else {
		vt.prev.next = vt
	}
	vt.armed = true
}

func (l *timerList) remove(vt *VirtualTimer) {
	if vt.prev == nil {
		l.head = vt.next
	} else {
		vt.prev.next = vt.next
	}
	if vt.next == nil {
		l.tail = vt.prev
	} else {
		vt.next.prev = vt.prev
	}
	vt.next, vt.prev = nil, nil
	vt.armed = false
}

// fire runs every timer due at or before now, in deadline order.
func (l *timerList) fire(k *Kernel) {
	for vt := l.head; vt != nil && vt.deadline <= k.now; vt = l.head {
		l.remove(vt)
		vt.fn(vt.arg)
	}
}

// SetTimerAtI arms vt to call fn(arg) at deadline. A deadline that is not in
// the future fires on the next tick. Arming an armed timer is fatal.
// Callbacks run in the SysTick handler with the critical section held.
func (k *Kernel) SetTimerAtI(vt *VirtualTimer, deadline Tick, fn Func, arg any) {
	k.checkClassI()
	if vt.armed {
		k.core.Halt("timer armed")
	}
	if deadline <= k.now {
		deadline = k.now + 1
	}
	vt.deadline, vt.fn, vt.arg = deadline, fn, arg
	k.timers.insert(vt)
}

// SetTimerI arms vt to fire delay ticks from now.
func (k *Kernel) SetTimerI(vt *VirtualTimer, delay Tick, fn Func, arg any) {
	if delay == 0 {
		delay = 1
	}
	k.SetTimerAtI(vt, k.now+delay, fn, arg)
}

// SetTimer re-arms vt, cancelling it first if needed.
func (k *Kernel) SetTimer(vt *VirtualTimer, delay Tick, fn Func, arg any) {
	k.Lock()
	k.ResetTimerI(vt)
	k.SetTimerI(vt, delay, fn, arg)
	k.Unlock()
}

// SetTimerAt is the thread variant of SetTimerAtI.
func (k *Kernel) SetTimerAt(vt *VirtualTimer, deadline Tick, fn Func, arg any) {
	k.Lock()
	k.ResetTimerI(vt)
	k.SetTimerAtI(vt, deadline, fn, arg)
	k.Unlock()
}

// ResetTimerI cancels vt. It has no effect on a disarmed timer.
func (k *Kernel) ResetTimerI(vt *VirtualTimer) {
	k.checkClassI()
	if vt.armed {
		k.timers.remove(vt)
	}
}

// ResetTimer cancels vt from a thread.
func (k *Kernel) ResetTimer(vt *VirtualTimer) {
	k.Lock()
	k.ResetTimerI(vt)
	k.Unlock()
}
