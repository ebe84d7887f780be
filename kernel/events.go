package kernel

// EventMask is a set of events pending on a thread.
type EventMask uint32

// EventFlags is a set of source-defined status flags.
type EventFlags uint32

const (
	AllEvents EventMask  = ^EventMask(0)
	AllFlags  EventFlags = ^EventFlags(0)
)

// EventSource broadcasts flags to registered listeners.
type EventSource struct {
	listeners *EventListener
}

// EventListener connects a thread to an EventSource.
type EventListener struct {
	next   *EventListener
	thread ThreadID
	events EventMask
	flags  EventFlags
	wflags EventFlags
}

// Init detaches every listener from es.
func (es *EventSource) Init() { es.listeners = nil }

// Flags returns the flags accumulated by el without clearing them.
func (el *EventListener) Flags() EventFlags { return el.flags }

// Register connects the running thread to es. Each broadcast signals events
// to the thread.
func (k *Kernel) Register(es *EventSource, el *EventListener, events EventMask) {
	k.RegisterWithFlags(es, el, events, AllFlags)
}

// RegisterWithFlags is Register restricted to broadcasts carrying one of
// wflags.
func (k *Kernel) RegisterWithFlags(es *EventSource, el *EventListener, events EventMask, wflags EventFlags) {
	k.Lock()
	el.thread = k.current
	el.events = events
	el.flags = 0
	el.wflags = wflags
	el.next = es.listeners
	es.listeners = el
	k.Unlock()
}

// Unregister disconnects el from es.
func (k *Kernel) Unregister(es *EventSource, el *EventListener) {
	k.Lock()
	for p := &es.listeners; *p != nil; p = &(*p).next {
		if *p == el {
			*p = el.next
			el.next = nil
			break
		}
	}
	k.Unlock()
}

// BroadcastFlagsI adds flags to every listener and signals the interested
// ones.
func (k *Kernel) BroadcastFlagsI(es *EventSource, flags EventFlags) {
	k.checkClassI()
	for el := es.listeners; el != nil; el = el.next {
		el.flags |= flags
		if flags == 0 || flags&el.wflags != 0 {
			k.SignalEventsI(el.thread, el.events)
		}
	}
}

// BroadcastFlags is BroadcastFlagsI from a thread.
func (k *Kernel) BroadcastFlags(es *EventSource, flags EventFlags) {
	k.Lock()
	k.BroadcastFlagsI(es, flags)
	k.RescheduleS()
	k.Unlock()
}

// GetAndClearFlags returns and clears the flags accumulated by el.
func (k *Kernel) GetAndClearFlags(el *EventListener) EventFlags {
	k.Lock()
	f := el.flags
	el.flags = 0
	k.Unlock()
	return f
}

// SignalEventsI adds events to t and readies it if its wait is satisfied.
func (k *Kernel) SignalEventsI(t ThreadID, events EventMask) {
	k.checkClassI()
	th := &k.threads[t]
	th.events |= events
	if th.state != StateWaitingEvents {
		return
	}
	if (!th.waitAll && th.events&th.waitMask != 0) ||
		(th.waitAll && th.events&th.waitMask == th.waitMask) {
		k.readyI(t, ResultOK)
	}
}

// SignalEvents is SignalEventsI from a thread.
func (k *Kernel) SignalEvents(t ThreadID, events EventMask) {
	k.Lock()
	k.SignalEventsI(t, events)
	k.RescheduleS()
	k.Unlock()
}

// AddEvents adds events to the running thread and returns its pending set.
func (k *Kernel) AddEvents(events EventMask) EventMask {
	k.Lock()
	th := &k.threads[k.current]
	th.events |= events
	e := th.events
	k.Unlock()
	return e
}

// ClearEvents clears events on the running thread and returns the set
// pending before.
func (k *Kernel) ClearEvents(events EventMask) EventMask {
	k.Lock()
	th := &k.threads[k.current]
	e := th.events
	th.events &^= events
	k.Unlock()
	return e
}

// WaitAnyEvent waits for any event in mask, clears and returns the pending
// ones. It returns 0 on timeout.
func (k *Kernel) WaitAnyEvent(mask EventMask, timeout Timeout) EventMask {
	return k.waitEvents(mask, false, timeout)
}

// WaitAllEvents waits until every event in mask is pending.
func (k *Kernel) WaitAllEvents(mask EventMask, timeout Timeout) EventMask {
	return k.waitEvents(mask, true, timeout)
}

// WaitOneEvent waits for any event in mask and consumes only the lowest.
func (k *Kernel) WaitOneEvent(mask EventMask, timeout Timeout) EventMask {
	k.Lock()
	th := &k.threads[k.current]
	m := th.events & mask
	if m == 0 {
		if !k.sleepEvents(mask, false, timeout) {
			k.Unlock()
			return 0
		}
		m = th.events & mask
	}
	m &= -m
	th.events &^= m
	k.Unlock()
	return m
}

func (k *Kernel) waitEvents(mask EventMask, all bool, timeout Timeout) EventMask {
	k.Lock()
	th := &k.threads[k.current]
	m := th.events & mask
	if (all && m != mask) || (!all && m == 0) {
		if !k.sleepEvents(mask, all, timeout) {
			k.Unlock()
			return 0
		}
		m = th.events & mask
	}
	th.events &^= m
	k.Unlock()
	return m
}

func (k *Kernel) sleepEvents(mask EventMask, all bool, timeout Timeout) bool {
	th := &k.threads[k.current]
	th.waitMask = mask
	th.waitAll = all
	return k.goSleepTimeoutS(StateWaitingEvents, timeout) == ResultOK
}
