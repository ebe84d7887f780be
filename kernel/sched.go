package kernel

import "ember/port"

var _ port.Scheduler = (*Kernel)(nil)

// readyI makes t runnable behind threads of equal priority.
func (k *Kernel) readyI(t ThreadID, msg Result) {
	th := &k.threads[t]
	th.state = StateReady
	th.msg = msg
	k.enqueue(&k.ready, t)
	k.traceI(TraceEvent{Kind: TraceReady, Thread: t, Value: int64(msg)})
}

func (k *Kernel) readyAheadI(t ThreadID) {
	k.threads[t].state = StateReady
	k.enqueueAhead(&k.ready, t)
	k.traceI(TraceEvent{Kind: TraceReady, Thread: t})
}

// switchTo installs next, already removed from the ready list, as the
// running thread.
func (k *Kernel) switchTo(next ThreadID) {
	prev := k.current
	nt := &k.threads[next]
	nt.state = StateCurrent
	nt.switches++
	k.current = next
	k.traceI(TraceEvent{Kind: TraceSwitch, Thread: next, State: k.threads[prev].state})
	k.core.Switch(nt.ctx, k.threads[prev].ctx)
}

// goSleepS puts the running thread in state and runs the first ready one.
func (k *Kernel) goSleepS(state State) {
	th := &k.threads[k.current]
	th.state = state
	if k.cfg.TimeQuantum > 0 {
		th.quantum = k.cfg.TimeQuantum
	}
	k.switchTo(k.popHead(&k.ready))
}

// goSleepTimeoutS is goSleepS bounded by timeout. It returns the wakeup
// message, or ResultTimeout once the timeout expired.
func (k *Kernel) goSleepTimeoutS(state State, timeout Timeout) Result {
	if timeout == Immediate {
		return ResultTimeout
	}
	self := k.current
	th := &k.threads[self]
	if timeout != Infinite {
		k.SetTimerI(&th.timer, Tick(timeout), k.wakeupTimeout, self)
	}
	k.goSleepS(state)
	if th.timer.armed {
		k.ResetTimerI(&th.timer)
	}
	return th.msg
}

// wakeupTimeout undoes whatever the thread was blocked on and readies it.
func (k *Kernel) wakeupTimeout(arg any) {
	t := arg.(ThreadID)
	th := &k.threads[t]
	switch th.state {
	case StateReady, StateCurrent, StateTerminated:
		return
	case StateWaitingSemaphore:
		th.waitSem.count++
		th.waitSem = nil
		k.dequeue(t)
	case StateWaitingMutex:
		owner := k.mutexes[th.waitMutex].owner
		th.waitMutex = noMutex
		k.dequeue(t)
		k.updatePriority(owner)
	case StateSuspended:
		if th.waitRef != nil {
			th.waitRef.waiting = false
			th.waitRef = nil
		}
	case StateWaitingExit:
		k.dequeue(t)
	}
	k.readyI(t, ResultTimeout)
}

// wakeupS readies t and switches to it at once if it is more urgent than
// the running thread.
func (k *Kernel) wakeupS(t ThreadID, msg Result) {
	th := &k.threads[t]
	if th.prio <= k.threads[k.current].prio {
		k.readyI(t, msg)
		return
	}
	th.msg = msg
	k.readyAheadI(k.current)
	k.switchTo(t)
}

func (k *Kernel) rescheduleRequiredI() bool {
	return k.headPriority(&k.ready) > k.threads[k.current].prio
}

// RescheduleS switches to the first ready thread if it is more urgent than
// the running one.
func (k *Kernel) RescheduleS() {
	k.checkClassS()
	if k.rescheduleRequiredI() {
		k.rescheduleAhead()
	}
}

// PreemptionRequired reports whether the running thread must give up the
// CPU when the outermost interrupt returns. A thread that used up its
// quantum also yields to equal priorities.
func (k *Kernel) PreemptionRequired() bool {
	p1 := k.headPriority(&k.ready)
	cur := &k.threads[k.current]
	if k.cfg.TimeQuantum > 0 && cur.quantum == 0 {
		return p1 >= cur.prio
	}
	return p1 > cur.prio
}

// Reschedule is the switch routine run on the way out of an interrupt.
func (k *Kernel) Reschedule() {
	if k.cfg.TimeQuantum > 0 && k.threads[k.current].quantum == 0 {
		k.rescheduleBehind()
		return
	}
	k.rescheduleAhead()
}

func (k *Kernel) rescheduleAhead() {
	prev := k.current
	next := k.popHead(&k.ready)
	k.readyAheadI(prev)
	k.switchTo(next)
}

func (k *Kernel) rescheduleBehind() {
	prev := k.current
	next := k.popHead(&k.ready)
	if k.cfg.TimeQuantum > 0 {
		k.threads[prev].quantum = k.cfg.TimeQuantum
	}
	k.threads[prev].state = StateReady
	k.enqueue(&k.ready, prev)
	k.traceI(TraceEvent{Kind: TraceReady, Thread: prev})
	k.switchTo(next)
}

// Yield moves the running thread behind the ready threads of its priority.
func (k *Kernel) Yield() {
	k.Lock()
	if k.headPriority(&k.ready) >= k.threads[k.current].prio {
		k.rescheduleBehind()
	}
	k.Unlock()
}

// Sleep suspends the running thread for n ticks.
func (k *Kernel) Sleep(n Timeout) {
	if n == Immediate {
		return
	}
	k.Lock()
	k.goSleepTimeoutS(StateSleeping, n)
	k.Unlock()
}

// SleepUntil suspends the running thread until tick t. It returns at once
// if t is not in the future.
func (k *Kernel) SleepUntil(t Tick) {
	k.Lock()
	if t > k.now {
		d := t - k.now
		if d >= Tick(Infinite) {
			d = Tick(Infinite) - 1
		}
		k.goSleepTimeoutS(StateSleeping, Timeout(d))
	}
	k.Unlock()
}

// tickISR is the SysTick handler: quantum accounting, then time.
func (k *Kernel) tickISR() {
	k.LockFromISR()
	cur := &k.threads[k.current]
	cur.ticks++
	if cur.quantum > 0 {
		cur.quantum--
	}
	k.now++
	k.timers.fire(k)
	k.UnlockFromISR()
}

// WrapISR returns a vector handler that records entry and exit in the trace
// buffer around fn.
func (k *Kernel) WrapISR(name string, fn func()) func() {
	return func() {
		k.LockFromISR()
		k.traceI(TraceEvent{Kind: TraceISREnter, Thread: k.current, Name: name})
		k.UnlockFromISR()
		fn()
		k.LockFromISR()
		k.traceI(TraceEvent{Kind: TraceISRLeave, Thread: k.current, Name: name})
		k.UnlockFromISR()
	}
}
