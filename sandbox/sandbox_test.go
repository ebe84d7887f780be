package sandbox

import (
	"bytes"
	"fmt"
	"testing"

	"ember/kernel"
	"ember/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, fn func(k *kernel.Kernel, h *Host)) (*port.Machine, *kernel.Kernel, error) {
	t.Helper()
	m := port.New(port.DefaultConfig())
	t.Cleanup(m.Shutdown)
	cfg := kernel.DefaultConfig()
	cfg.TimeQuantum = 0
	k := kernel.New(m, cfg)
	err := m.Boot(func() {
		k.Init()
		fn(k, NewHost(k, m))
		k.Exit(0)
	})
	return m, k, err
}

func TestProgramRunsThroughSyscalls(t *testing.T) {
	var (
		out    bytes.Buffer
		t0, t1 uint32
		id     kernel.ThreadID
		host   *Host
	)
	m, k, err := start(t, func(k *kernel.Kernel, h *Host) {
		host = h
		var err error
		id, err = h.Spawn(Config{Name: "app", Priority: 10, DataSize: 32, Out: &out}, func(sys *Syscalls) {
			fmt.Fprintf(sys, "hello from %s\n", "the sandbox, in more than one chunk")
			t0 = sys.Now()
			sys.Sleep(5)
			t1 = sys.Now()
			sys.Exit(3)
		})
		assert.NoError(t, err)
	})
	require.NoError(t, err)

	assert.Equal(t, "hello from the sandbox, in more than one chunk\n", out.String())
	require.NoError(t, m.Tick(5))
	assert.Equal(t, uint32(5), t1-t0)

	info, ok := k.Info(id)
	require.True(t, ok)
	assert.Equal(t, kernel.StateTerminated, info.State)
	assert.Zero(t, host.Calls(id), "exited sandboxes are forgotten")
	assert.Equal(t, uint64(6), m.Stats().Syscalls)
}

func TestSyscallArgumentsChecked(t *testing.T) {
	var results []uint32
	var storeErr error
	_, _, err := start(t, func(k *kernel.Kernel, h *Host) {
		_, err := h.Spawn(Config{Name: "bad", Priority: 10, DataSize: 32}, func(sys *Syscalls) {
			d := sys.Data()
			results = append(results,
				sys.Call(SysWrite, 0x10, 4),
				sys.Call(SysWrite, d.Base+30, 4),
				sys.Call(SysWrite, d.Base, 0),
				sys.Call(42, 0, 0),
			)
			storeErr = sys.Store(d.End(), []byte{1})
		})
		assert.NoError(t, err)
	})
	require.NoError(t, err)

	assert.Equal(t, []uint32{RetFault, RetFault, 0, RetNoSys}, results)
	assert.ErrorIs(t, storeErr, ErrFault)
}

func TestUnprivilegedKernelCallHalts(t *testing.T) {
	m, _, err := start(t, func(k *kernel.Kernel, h *Host) {
		_, err := h.Spawn(Config{Name: "rogue", Priority: 200}, func(sys *Syscalls) {
			k.Lock()
		})
		assert.NoError(t, err)
	})
	require.ErrorIs(t, err, port.ErrHalted)
	f, ok := m.Fault()
	require.True(t, ok)
	assert.Equal(t, "privilege", f.Reason)
	assert.Equal(t, "rogue", f.Context)
}

func TestReturnFromProgramExits(t *testing.T) {
	var code int32 = -1
	_, _, err := start(t, func(k *kernel.Kernel, h *Host) {
		id, err := h.Spawn(Config{Name: "short", Priority: 10}, func(sys *Syscalls) {})
		assert.NoError(t, err)
		code = k.Wait(id)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), code)
}
