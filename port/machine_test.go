package port

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSched struct {
	m       *Machine
	want    bool
	next    *Context
	resched int
}

func (s *fakeSched) PreemptionRequired() bool { return s.want }

func (s *fakeSched) Reschedule() {
	s.want = false
	s.resched++
	prev := s.m.Current()
	next := s.next
	s.next = prev
	s.m.Switch(next, prev)
}

func newMachine(t *testing.T, model PriorityModel) *Machine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Model = model
	m := New(cfg)
	t.Cleanup(m.Shutdown)
	return m
}

func idle(m *Machine) {
	for {
		m.WaitForInterrupt()
	}
}

func TestNestedInterruptSwitchesOnOutermostExit(t *testing.T) {
	for _, model := range []PriorityModel{Full, Simplified} {
		t.Run(model.String(), func(t *testing.T) {
			m := newMachine(t, model)
			sched := &fakeSched{m: m}
			var events []string

			err := m.Boot(func() {
				sched.next = m.NewContext("other", 256, func() {
					events = append(events, "other")
					idle(m)
				})
				m.SetScheduler(sched)
				m.SetVector(IRQ(0), 0x80, func() {
					events = append(events, "outer enter")
					m.Pend(IRQ(1))
					events = append(events, "outer exit")
				})
				m.SetVector(IRQ(1), 0x40, func() {
					sched.want = true
					events = append(events, "inner")
				})
				idle(m)
			})
			require.NoError(t, err)
			require.NoError(t, m.Interrupt(IRQ(0)))

			assert.Equal(t, []string{"outer enter", "inner", "outer exit", "other"}, events)
			assert.Equal(t, 1, sched.resched)
			st := m.Stats()
			assert.Equal(t, uint64(1), st.ISRSwitches)
			assert.Equal(t, uint64(1), st.Switches)
			if model == Full {
				assert.Equal(t, uint64(1), st.Taken[VectorPendSV])
				assert.Equal(t, uint64(1), st.Taken[VectorSVCall])
			} else {
				assert.Equal(t, uint64(1), st.Taken[VectorPendSV])
				assert.Zero(t, st.Taken[VectorSVCall])
			}
			assert.Equal(t, "other", m.Current().Name())
			assert.Equal(t, m.Current().Stack().Base, m.Guard().Base)
		})
	}
}

func TestNoSwitchWithoutPreemptionRequest(t *testing.T) {
	m := newMachine(t, Full)
	sched := &fakeSched{m: m}
	calls := 0
	require.NoError(t, m.Boot(func() {
		m.SetScheduler(sched)
		m.SetVector(IRQ(0), 0x80, func() { calls++ })
		idle(m)
	}))
	require.NoError(t, m.Interrupt(IRQ(0)))
	require.NoError(t, m.Interrupt(IRQ(0)))

	assert.Equal(t, 2, calls)
	assert.Zero(t, sched.resched)
	assert.Equal(t, "main", m.Current().Name())
	assert.Zero(t, m.Stats().Taken[VectorPendSV])
}

func TestMaskedInterruptDeliveredOnUnlock(t *testing.T) {
	m := newMachine(t, Full)
	var events []string
	require.NoError(t, m.Boot(func() {
		m.SetVector(IRQ(2), 0x80, func() { events = append(events, "irq") })
		m.Lock()
		m.Pend(IRQ(2))
		events = append(events, "locked")
		m.Unlock()
		events = append(events, "unlocked")
		idle(m)
	}))
	assert.Equal(t, []string{"locked", "irq", "unlocked"}, events)
}

func TestFastInterruptIgnoresKernelLock(t *testing.T) {
	tests := []struct {
		model PriorityModel
		want  []string
	}{
		{Full, []string{"irq", "locked"}},
		{Simplified, []string{"locked", "irq"}},
	}
	for _, tt := range tests {
		t.Run(tt.model.String(), func(t *testing.T) {
			m := newMachine(t, tt.model)
			var events []string
			require.NoError(t, m.Boot(func() {
				m.SetVector(IRQ(0), 0x10, func() { events = append(events, "irq") })
				m.Lock()
				m.Pend(IRQ(0))
				events = append(events, "locked")
				m.Unlock()
				idle(m)
			}))
			assert.Equal(t, tt.want, events)
		})
	}
}

func TestUnhandledVectorHalts(t *testing.T) {
	m := newMachine(t, Full)
	require.NoError(t, m.Boot(func() { idle(m) }))

	err := m.Interrupt(IRQ(3))
	require.ErrorIs(t, err, ErrHalted)
	f, ok := m.Fault()
	require.True(t, ok)
	assert.Equal(t, "unhandled vector 19", f.Reason)
	assert.Equal(t, IRQ(3), f.Vector)

	require.ErrorIs(t, m.Tick(1), ErrHalted)
}

func TestReservedVectorHalts(t *testing.T) {
	m := newMachine(t, Full)
	err := m.Boot(func() {
		m.SetVector(VectorPendSV, 0, func() {})
		idle(m)
	})
	require.ErrorIs(t, err, ErrHalted)
	f, _ := m.Fault()
	assert.Equal(t, "vector 14 reserved", f.Reason)
}

func TestStackGuard(t *testing.T) {
	t.Run("overflow", func(t *testing.T) {
		m := newMachine(t, Full)
		err := m.Boot(func() {
			m.UseStack(1024 - 16)
			idle(m)
		})
		require.ErrorIs(t, err, ErrHalted)
		f, _ := m.Fault()
		assert.Equal(t, Fault{Reason: "stack guard", Vector: VectorMemManage, Context: "main"}, f)
	})

	t.Run("exception frame", func(t *testing.T) {
		m := newMachine(t, Full)
		require.NoError(t, m.Boot(func() {
			m.SetVector(IRQ(0), 0x80, func() {})
			m.UseStack(1024 - 48)
			idle(m)
		}))
		require.ErrorIs(t, m.Interrupt(IRQ(0)), ErrHalted)
		f, _ := m.Fault()
		assert.Equal(t, "stack guard", f.Reason)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.StackGuard = false
		m := New(cfg)
		t.Cleanup(m.Shutdown)
		require.NoError(t, m.Boot(func() {
			m.UseStack(1024 - 16)
			m.ReleaseStack(1024 - 16)
			idle(m)
		}))
		assert.Equal(t, uint32(16), m.Current().StackUnused())
		assert.Equal(t, Region{}, m.Guard())
	})
}

func TestBootReturnHalts(t *testing.T) {
	m := newMachine(t, Full)
	err := m.Boot(func() {})
	require.ErrorIs(t, err, ErrHalted)
	f, _ := m.Fault()
	assert.Equal(t, "boot returned", f.Reason)
}

func TestPanicHalts(t *testing.T) {
	m := newMachine(t, Full)
	var hooked Fault
	m.SetHaltHook(func(f Fault) { hooked = f })
	err := m.Boot(func() { panic("boom") })
	require.ErrorIs(t, err, ErrHalted)
	assert.Equal(t, "panic: boom", hooked.Reason)
	assert.Contains(t, err.Error(), "panic: boom")
}
