// Package sandbox runs programs in unprivileged threads. A sandboxed program
// owns a stack region and a data region; it reaches the kernel only through
// the syscall trap, passing pointers into its data region.
package sandbox

import (
	"errors"
	"fmt"
	"io"

	"ember/kernel"
	"ember/port"

	"github.com/joeycumines/logiface"
)

// Syscall numbers.
const (
	SysExit uint8 = iota + 1
	SysSleep
	SysWrite
	SysNow
)

// Error returns of the syscall handler.
const (
	RetFault = ^uint32(0)
	RetNoSys = ^uint32(1)
)

var ErrFault = errors.New("sandbox: bad address")

// Trap is the part of the core that implements privilege separation.
type Trap interface {
	Alloc(size uint32) port.Region
	UnprivilegedJump(user port.Region, entry func())
	Syscall(n uint8, r0, r1, r2, r3 uint32) uint32
	SetSyscallHandler(h port.SyscallHandler)
}

// Program is the body of a sandboxed thread.
type Program func(sys *Syscalls)

// Config describes one sandbox.
type Config struct {
	Name      string
	Priority  kernel.Priority
	StackSize uint32
	DataSize  uint32
	// Out receives SysWrite data.
	Out io.Writer
}

// Host dispatches the syscalls of every sandbox on a kernel.
type Host struct {
	k     *kernel.Kernel
	trap  Trap
	log   *logiface.Logger[logiface.Event]
	boxes map[kernel.ThreadID]*box
}

type box struct {
	cfg   Config
	stack port.Region
	data  port.Region
	mem   []byte
	calls uint32
}

// NewHost installs the syscall handler on trap.
func NewHost(k *kernel.Kernel, trap Trap) *Host {
	h := &Host{
		k:     k,
		trap:  trap,
		log:   k.Logger(),
		boxes: make(map[kernel.ThreadID]*box),
	}
	trap.SetSyscallHandler(h.dispatch)
	return h
}

// Spawn creates a thread that drops privilege and runs prog. Returning from
// prog exits with code 0. It must be called from a thread.
func (h *Host) Spawn(cfg Config, prog Program) (kernel.ThreadID, error) {
	if cfg.StackSize == 0 {
		cfg.StackSize = 256
	}
	if cfg.DataSize == 0 {
		cfg.DataSize = 128
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	b := &box{
		cfg:   cfg,
		stack: h.trap.Alloc(cfg.StackSize),
		data:  h.trap.Alloc(cfg.DataSize),
	}
	b.mem = make([]byte, b.data.Size)

	id, err := h.k.CreateThread(kernel.ThreadConfig{
		Name:     cfg.Name,
		Priority: cfg.Priority,
		Entry: func(any) {
			h.k.Lock()
			h.boxes[h.k.Self()] = b
			h.k.Unlock()
			sys := &Syscalls{trap: h.trap, b: b}
			h.trap.UnprivilegedJump(b.stack, func() {
				prog(sys)
				sys.Exit(0)
			})
		},
	})
	if err != nil {
		return kernel.NoThread, fmt.Errorf("sandbox %s: %w", cfg.Name, err)
	}
	return id, nil
}

// Calls returns the number of syscalls made by thread t.
func (h *Host) Calls(t kernel.ThreadID) uint32 {
	if b, ok := h.boxes[t]; ok {
		return b.calls
	}
	return 0
}

// dispatch runs privileged on the calling thread.
func (h *Host) dispatch(ctx *port.ExtCtx, n uint8) {
	self := h.k.Self()
	b, ok := h.boxes[self]
	if !ok {
		ctx.R0 = RetNoSys
		return
	}
	b.calls++

	switch n {
	case SysExit:
		delete(h.boxes, self)
		h.log.Debug().
			Str("sandbox", b.cfg.Name).
			Uint64("calls", uint64(b.calls)).
			Log("sandbox exit")
		h.k.Exit(int32(ctx.R0))
	case SysSleep:
		h.k.Sleep(kernel.Timeout(ctx.R0))
		ctx.R0 = 0
	case SysNow:
		ctx.R0 = uint32(h.k.Now())
	case SysWrite:
		p, ok := b.slice(ctx.R0, ctx.R1)
		if !ok {
			h.log.Warning().
				Str("sandbox", b.cfg.Name).
				Uint64("addr", uint64(ctx.R0)).
				Uint64("len", uint64(ctx.R1)).
				Log("sandbox write out of bounds")
			ctx.R0 = RetFault
			return
		}
		w, err := b.cfg.Out.Write(p)
		if err != nil {
			ctx.R0 = RetFault
			return
		}
		ctx.R0 = uint32(w)
	default:
		ctx.R0 = RetNoSys
	}
}

// slice returns the bytes of [addr, addr+n) if they lie in the data region.
func (b *box) slice(addr, n uint32) ([]byte, bool) {
	if n == 0 {
		return nil, true
	}
	if !b.data.Contains(addr) || uint64(addr)+uint64(n) > uint64(b.data.End()) {
		return nil, false
	}
	off := addr - b.data.Base
	return b.mem[off : off+n], true
}

// Syscalls is the interface a sandboxed program has to the kernel.
type Syscalls struct {
	trap Trap
	b    *box
}

// Data returns the program's data region.
func (s *Syscalls) Data() port.Region { return s.b.data }

// Store copies p into data memory at addr.
func (s *Syscalls) Store(addr uint32, p []byte) error {
	dst, ok := s.b.slice(addr, uint32(len(p)))
	if !ok {
		return ErrFault
	}
	copy(dst, p)
	return nil
}

// Call traps with raw arguments.
func (s *Syscalls) Call(n uint8, r0, r1 uint32) uint32 {
	return s.trap.Syscall(n, r0, r1, 0, 0)
}

// Exit terminates the sandbox thread.
func (s *Syscalls) Exit(code int32) {
	s.Call(SysExit, uint32(code), 0)
}

// Sleep suspends the sandbox thread for n ticks.
func (s *Syscalls) Sleep(n kernel.Timeout) {
	s.Call(SysSleep, uint32(n), 0)
}

// Now returns the low 32 bits of the kernel tick count.
func (s *Syscalls) Now() uint32 {
	return s.Call(SysNow, 0, 0)
}

// Write stages p in data memory a region at a time and hands it to the
// kernel.
func (s *Syscalls) Write(p []byte) (int, error) {
	base := s.b.data.Base
	chunk := int(s.b.data.Size)
	written := 0
	for len(p) > 0 {
		n := min(len(p), chunk)
		if err := s.Store(base, p[:n]); err != nil {
			return written, err
		}
		r := s.Call(SysWrite, base, uint32(n))
		if r == RetFault {
			return written, ErrFault
		}
		written += int(r)
		p = p[n:]
	}
	return written, nil
}
