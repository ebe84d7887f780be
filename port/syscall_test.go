package port

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyscallRoundTrip(t *testing.T) {
	m := newMachine(t, Full)
	var (
		got       uint32
		num       uint8
		inHandler bool
		after     bool
		user      Region
		sp        uint32
	)
	m.SetSyscallHandler(func(ctx *ExtCtx, n uint8) {
		num = n
		inHandler = m.Current().Privileged()
		ctx.R0 = ctx.R1 + ctx.R2
	})
	require.NoError(t, m.Boot(func() {
		user = m.Alloc(256)
		m.UnprivilegedJump(user, func() {
			got = m.Syscall(7, 0, 2, 3, 0)
			after = m.Current().Privileged()
			sp = m.Current().SP()
			idle(m)
		})
	}))

	assert.Equal(t, uint32(5), got)
	assert.Equal(t, uint8(7), num)
	assert.True(t, inHandler)
	assert.False(t, after)
	assert.Equal(t, user.End(), sp)
	assert.Equal(t, uint64(1), m.Stats().Syscalls)
}

func TestPrivilegeFaults(t *testing.T) {
	tests := []struct {
		name   string
		body   func(m *Machine)
		reason string
		vector Vector
	}{
		{
			name:   "lock from unprivileged",
			body:   func(m *Machine) { m.UnprivilegedJump(m.Alloc(256), func() { m.Lock() }) },
			reason: "privilege",
			vector: VectorHardFault,
		},
		{
			name:   "pend from unprivileged",
			body:   func(m *Machine) { m.UnprivilegedJump(m.Alloc(256), func() { m.Pend(IRQ(0)) }) },
			reason: "privilege",
			vector: VectorHardFault,
		},
		{
			name:   "syscall from privileged",
			body:   func(m *Machine) { m.Syscall(1, 0, 0, 0, 0) },
			reason: "svc",
			vector: VectorSVCall,
		},
		{
			name:   "syscall without handler",
			body:   func(m *Machine) { m.UnprivilegedJump(m.Alloc(256), func() { m.Syscall(1, 0, 0, 0, 0) }) },
			reason: "svc",
			vector: VectorSVCall,
		},
		{
			name:   "unprivileged entry returns",
			body:   func(m *Machine) { m.UnprivilegedJump(m.Alloc(256), func() {}) },
			reason: "svc",
			vector: VectorSVCall,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(t, Full)
			err := m.Boot(func() { tt.body(m) })
			require.ErrorIs(t, err, ErrHalted)
			f, ok := m.Fault()
			require.True(t, ok)
			assert.Equal(t, tt.reason, f.Reason)
			assert.Equal(t, tt.vector, f.Vector)
		})
	}
}
