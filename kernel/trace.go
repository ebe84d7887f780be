package kernel

// TraceKind classifies a trace record.
type TraceKind uint8

const (
	TraceReady TraceKind = iota + 1
	TraceSwitch
	TraceISREnter
	TraceISRLeave
	TraceHalt
	TraceUser
)

func (k TraceKind) String() string {
	switch k {
	case TraceReady:
		return "ready"
	case TraceSwitch:
		return "switch"
	case TraceISREnter:
		return "isr-enter"
	case TraceISRLeave:
		return "isr-leave"
	case TraceHalt:
		return "halt"
	case TraceUser:
		return "user"
	default:
		return "unknown"
	}
}

// TraceEvent is one record of the trace buffer. State is the state the
// previous thread was left in, for switch records.
type TraceEvent struct {
	Kind   TraceKind
	Time   Tick
	Thread ThreadID
	State  State
	Name   string
	Value  int64
}

// traceBuffer is a ring of the most recent records.
type traceBuffer struct {
	buf  []TraceEvent
	next int
	full bool
}

func (b *traceBuffer) init(size int) {
	if size > 0 {
		b.buf = make([]TraceEvent, size)
	}
}

func (k *Kernel) traceI(ev TraceEvent) {
	b := &k.trace
	if len(b.buf) == 0 {
		return
	}
	ev.Time = k.now
	b.buf[b.next] = ev
	b.next++
	if b.next == len(b.buf) {
		b.next = 0
		b.full = true
	}
}

// TraceUserI records an application event.
func (k *Kernel) TraceUserI(name string, value int64) {
	k.checkClassI()
	k.traceI(TraceEvent{Kind: TraceUser, Thread: k.current, Name: name, Value: value})
}

// Trace returns a copy of the trace buffer, oldest record first.
func (k *Kernel) Trace() []TraceEvent {
	b := &k.trace
	if !b.full {
		return append([]TraceEvent(nil), b.buf[:b.next]...)
	}
	out := make([]TraceEvent, 0, len(b.buf))
	out = append(out, b.buf[b.next:]...)
	return append(out, b.buf[:b.next]...)
}
