package port

// UnprivilegedJump drops the current context to unprivileged mode on the
// user stack and runs entry. From then on the context reaches privileged
// code only through Syscall. Returning from entry halts the core.
func (m *Machine) UnprivilegedJump(user Region, entry func()) {
	if m.stopped {
		return
	}
	c := m.current
	if len(m.active) > 0 || !c.privileged {
		m.halt(VectorHardFault, "privilege")
	}
	u := newStack(user)
	c.user = &u
	c.privileged = false
	entry()
	m.halt(VectorSVCall, "svc")
}

// Syscall traps from unprivileged thread code into the installed handler.
//
// The trap pushes an exception frame on the user stack and a middle context
// (CONTROL and the user stack pointer) on the context stack, runs the
// handler privileged, then restores both.
func (m *Machine) Syscall(n uint8, r0, r1, r2, r3 uint32) uint32 {
	if m.stopped {
		return 0
	}
	c := m.current
	if len(m.active) > 0 || c.privileged || c.user == nil {
		m.halt(VectorSVCall, "svc")
	}
	if m.svc == nil {
		m.halt(VectorSVCall, "svc")
	}

	m.push(c.user, frameSize)
	ectx := &ExtCtx{R0: r0, R1: r1, R2: r2, R3: r3, PC: uint32(n), XPSR: xpsrThumb}
	m.push(&c.stack, midctxSize)
	c.mid = append(c.mid, midctx{control: c.control(), psp: c.user.sp})
	c.privileged = true
	m.stats.Syscalls++

	m.svc(ectx, n)

	if m.stopped {
		return 0
	}
	mc := c.mid[len(c.mid)-1]
	c.mid = c.mid[:len(c.mid)-1]
	pop(&c.stack, midctxSize)
	c.privileged = mc.control&controlNPriv == 0
	c.user.sp = mc.psp
	pop(c.user, frameSize)
	return ectx.R0
}
