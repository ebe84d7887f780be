package kernel

import "ember/port"

// HaltInfo describes the fault that stopped the system.
type HaltInfo struct {
	Reason     string
	Vector     port.Vector
	Context    string
	Thread     ThreadID
	ThreadName string
	Time       Tick
	Stack      []byte
}

// SetHaltHandler installs the handler run once when the system halts. It
// runs with interrupts disabled and must not block.
func (k *Kernel) SetHaltHandler(fn func(HaltInfo)) {
	k.haltHandler = fn
}

// Halted reports whether the system has halted.
func (k *Kernel) Halted() bool { return k.halted }

func (k *Kernel) onHalt(f port.Fault) {
	k.haltOnce.Do(func() {
		k.halted = true
		info := HaltInfo{
			Reason:  f.Reason,
			Vector:  f.Vector,
			Context: f.Context,
			Thread:  k.current,
			Time:    k.now,
			Stack:   captureStack(),
		}
		if k.valid(k.current) {
			info.ThreadName = k.threads[k.current].name
		}
		k.traceI(TraceEvent{Kind: TraceHalt, Thread: k.current, Name: f.Reason})

		k.log.Emerg().
			Str("reason", f.Reason).
			Stringer("vector", f.Vector).
			Str("context", f.Context).
			Str("thread", info.ThreadName).
			Uint64("tick", uint64(info.Time)).
			Log("system halted")

		if fn := k.haltHandler; fn != nil {
			fn(info)
		}
	})
}
