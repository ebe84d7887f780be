package kernel

import "ember/port"

// State is the lifecycle state of a thread.
type State uint8

const (
	StateFree State = iota
	StateReady
	StateCurrent
	StateSuspended
	StateWaitingMutex
	StateWaitingSemaphore
	StateSleeping
	StateWaitingEvents
	StateWaitingExit
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateReady:
		return "ready"
	case StateCurrent:
		return "current"
	case StateSuspended:
		return "suspended"
	case StateWaitingMutex:
		return "wtmtx"
	case StateWaitingSemaphore:
		return "wtsem"
	case StateSleeping:
		return "sleeping"
	case StateWaitingEvents:
		return "wtevt"
	case StateWaitingExit:
		return "wtexit"
	case StateTerminated:
		return "final"
	default:
		return "unknown"
	}
}

const defaultStackSize = 256

type thread struct {
	used  bool
	name  string
	ctx   *port.Context
	prio  Priority
	base  Priority
	state State

	next, prev ThreadID
	queue      *threadQueue
	quantum    uint32

	held      MutexID
	waitMutex MutexID
	waitSem   *Semaphore
	waitRef   *ThreadRef
	waitMask  EventMask
	waitAll   bool
	events    EventMask
	msg       Result
	timer     VirtualTimer

	joiners  threadQueue
	exitCode int32

	ticks    uint64
	switches uint64
}

// ThreadConfig describes a thread to create.
type ThreadConfig struct {
	Name      string
	Priority  Priority
	StackSize uint32
	Entry     Func
	Arg       any
}

func (k *Kernel) allocThread(name string, prio Priority) ThreadID {
	for i := range k.threads {
		th := &k.threads[i]
		if th.used {
			continue
		}
		*th = thread{
			used:      true,
			name:      name,
			prio:      prio,
			base:      prio,
			state:     StateSuspended,
			next:      NoThread,
			prev:      NoThread,
			quantum:   k.cfg.TimeQuantum,
			held:      noMutex,
			waitMutex: noMutex,
		}
		th.joiners.init()
		return ThreadID(i)
	}
	return NoThread
}

func (k *Kernel) valid(t ThreadID) bool {
	return t >= 0 && int(t) < len(k.threads) && k.threads[t].used
}

// CreateThread creates a thread and makes it ready. The thread runs at once
// if it is more urgent than the caller.
func (k *Kernel) CreateThread(tc ThreadConfig) (ThreadID, error) {
	if tc.Priority < LowPriority {
		return NoThread, ErrBadPriority
	}
	if tc.StackSize == 0 {
		tc.StackSize = defaultStackSize
	}
	k.Lock()
	t := k.allocThread(tc.Name, tc.Priority)
	if t == NoThread {
		k.Unlock()
		k.log.Warning().Str("thread", tc.Name).Log("thread table full")
		return NoThread, ErrTooManyThreads
	}
	entry, arg := tc.Entry, tc.Arg
	k.threads[t].ctx = k.core.NewContext(tc.Name, tc.StackSize, func() {
		if entry != nil {
			entry(arg)
		}
		k.Exit(0)
	})
	k.wakeupS(t, ResultOK)
	k.Unlock()
	k.log.Debug().
		Str("thread", tc.Name).
		Int("id", int(t)).
		Int("prio", int(tc.Priority)).
		Log("thread created")
	return t, nil
}

// Exit terminates the running thread with code. Holding a mutex at exit is
// fatal.
func (k *Kernel) Exit(code int32) {
	k.log.Debug().
		Str("thread", k.threads[k.current].name).
		Int64("code", int64(code)).
		Log("thread exit")
	k.Lock()
	k.ExitS(code)
}

// ExitS is Exit with the critical section already held.
func (k *Kernel) ExitS(code int32) {
	k.checkClassS()
	th := &k.threads[k.current]
	if th.held != noMutex {
		k.core.Halt("mutexes still owned")
	}
	if k.current == k.idle {
		k.core.Halt("idle exit")
	}
	th.exitCode = code
	for !th.joiners.empty() {
		k.readyI(k.popHead(&th.joiners), ResultOK)
	}
	th.state = StateTerminated

	next := k.popHead(&k.ready)
	nt := &k.threads[next]
	nt.state = StateCurrent
	nt.switches++
	k.current = next
	k.traceI(TraceEvent{Kind: TraceSwitch, Thread: next, State: StateTerminated})
	k.core.Exit(nt.ctx)
}

// Wait blocks until t terminates, releases its table slot and returns its
// exit code. Only one thread may wait for a given thread.
func (k *Kernel) Wait(t ThreadID) int32 {
	k.Lock()
	if !k.valid(t) || t == k.current {
		k.core.Halt("invalid thread")
	}
	th := &k.threads[t]
	if th.state != StateTerminated {
		k.enqueue(&th.joiners, k.current)
		k.goSleepS(StateWaitingExit)
	}
	code := th.exitCode
	th.used = false
	th.state = StateFree
	th.ctx = nil
	k.Unlock()
	return code
}

// SetPriority changes the base priority of the running thread and returns
// the old one. Inherited priority is kept while mutexes are held. A priority
// below LowPriority is fatal.
func (k *Kernel) SetPriority(p Priority) Priority {
	if p < LowPriority {
		k.core.Halt("bad priority")
	}
	k.Lock()
	th := &k.threads[k.current]
	old := th.base
	th.base = p
	k.updatePriority(k.current)
	k.RescheduleS()
	k.Unlock()
	return old
}

// ThreadRef holds a thread suspended by SuspendTimeoutS until a driver,
// usually from an interrupt handler, resumes it.
type ThreadRef struct {
	t       ThreadID
	waiting bool
}

// Waiting reports whether a thread is suspended on r.
func (r *ThreadRef) Waiting() bool { return r.waiting }

// SuspendTimeoutS suspends the running thread on r.
func (k *Kernel) SuspendTimeoutS(r *ThreadRef, timeout Timeout) Result {
	k.checkClassS()
	if r.waiting {
		k.core.Halt("thread reference busy")
	}
	if timeout == Immediate {
		return ResultTimeout
	}
	r.t, r.waiting = k.current, true
	k.threads[k.current].waitRef = r
	return k.goSleepTimeoutS(StateSuspended, timeout)
}

// ResumeI readies the thread suspended on r, if any, with msg.
func (k *Kernel) ResumeI(r *ThreadRef, msg Result) {
	k.checkClassI()
	if !r.waiting {
		return
	}
	r.waiting = false
	k.threads[r.t].waitRef = nil
	k.readyI(r.t, msg)
}

// ResumeS is ResumeI followed by a reschedule.
func (k *Kernel) ResumeS(r *ThreadRef, msg Result) {
	k.checkClassS()
	if !r.waiting {
		return
	}
	r.waiting = false
	k.threads[r.t].waitRef = nil
	k.wakeupS(r.t, msg)
}

// Resume wakes the thread suspended on r, if any, with msg.
func (k *Kernel) Resume(r *ThreadRef, msg Result) {
	k.Lock()
	k.ResumeS(r, msg)
	k.Unlock()
}

// ThreadInfo is a registry entry.
type ThreadInfo struct {
	ID           ThreadID
	Name         string
	State        State
	Priority     Priority
	BasePriority Priority
	Ticks        uint64
	Switches     uint64
	StackSize    uint32
	StackUnused  uint32
	Mutexes      int
}

// Info returns the registry entry of t. Inspection does not enter the
// critical section: call it with the section held or while the core is
// settled.
func (k *Kernel) Info(t ThreadID) (ThreadInfo, bool) {
	if !k.valid(t) {
		return ThreadInfo{}, false
	}
	th := &k.threads[t]
	info := ThreadInfo{
		ID:           t,
		Name:         th.name,
		State:        th.state,
		Priority:     th.prio,
		BasePriority: th.base,
		Ticks:        th.ticks,
		Switches:     th.switches,
	}
	if th.ctx != nil {
		info.StackSize = th.ctx.Stack().Size
		info.StackUnused = th.ctx.StackUnused()
	}
	for id := th.held; id != noMutex; id = k.mutexes[id].next {
		info.Mutexes++
	}
	return info, true
}

// Threads returns every registry entry, in table order.
func (k *Kernel) Threads() []ThreadInfo {
	var out []ThreadInfo
	for i := range k.threads {
		if info, ok := k.Info(ThreadID(i)); ok {
			out = append(out, info)
		}
	}
	return out
}
