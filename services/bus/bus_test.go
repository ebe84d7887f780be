package bus

import (
	"testing"

	"ember/hal"
	"ember/kernel"
	"ember/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var busIRQ = port.IRQ(1)

func boot(t *testing.T, fn func(k *kernel.Kernel)) *port.Machine {
	t.Helper()
	m := port.New(port.DefaultConfig())
	t.Cleanup(m.Shutdown)
	cfg := kernel.DefaultConfig()
	cfg.TimeQuantum = 0
	k := kernel.New(m, cfg)
	require.NoError(t, m.Boot(func() {
		k.Init()
		fn(k)
		k.Exit(0)
	}))
	return m
}

func spawn(t *testing.T, k *kernel.Kernel, name string, prio kernel.Priority, fn func()) kernel.ThreadID {
	id, err := k.CreateThread(kernel.ThreadConfig{
		Name:     name,
		Priority: prio,
		Entry:    func(any) { fn() },
	})
	if err != nil {
		t.Errorf("create %s: %v", name, err)
	}
	return id
}

func sensor() *hal.RegisterBus {
	b := hal.NewRegisterBus()
	b.Attach(0x48, map[uint8]byte{0x00: 0x15, 0x01: 0x80})
	return b
}

func TestI2CReadRegister(t *testing.T) {
	var (
		got   [2]byte
		err   error
		stats Stats
	)
	m := boot(t, func(k *kernel.Kernel) {
		b := NewI2C(k, sensor(), Config{IRQ: busIRQ, Priority: 0x80})
		b.Acquire()
		err = b.ReadRegister(0x48, 0x00, got[:])
		b.Release()
		stats = b.Stats()
	})

	require.NoError(t, err)
	assert.Equal(t, [2]byte{0x15, 0x80}, got)
	assert.Equal(t, Stats{Transfers: 1}, stats)
	assert.Equal(t, uint64(1), m.Stats().Taken[busIRQ])
}

func TestI2CWriteThenRead(t *testing.T) {
	var got [3]byte
	boot(t, func(k *kernel.Kernel) {
		b := NewI2C(k, sensor(), Config{IRQ: busIRQ, Priority: 0x80})
		dev := b.Shared()
		assert.NoError(t, dev.Tx(0x48, []byte{0x10, 1, 2, 3}, nil))
		assert.NoError(t, dev.Tx(0x48, []byte{0x10}, got[:]))
	})
	assert.Equal(t, [3]byte{1, 2, 3}, got)
}

func TestI2CErrors(t *testing.T) {
	var (
		noAck, notHeld error
		stats          Stats
	)
	boot(t, func(k *kernel.Kernel) {
		b := NewI2C(k, sensor(), Config{IRQ: busIRQ, Priority: 0x80})
		notHeld = b.Tx(0x48, []byte{0}, nil)
		b.Acquire()
		noAck = b.Tx(0x77, []byte{0}, nil)
		b.Release()
		stats = b.Stats()
	})

	assert.ErrorIs(t, notHeld, ErrNotAcquired)
	require.Error(t, noAck)
	assert.Contains(t, noAck.Error(), "no ack")
	assert.Equal(t, Stats{Transfers: 1, Errors: 1}, stats)
}

func TestDeferredCompletionAndTimeout(t *testing.T) {
	var results []error
	m := boot(t, func(k *kernel.Kernel) {
		b := NewI2C(k, sensor(), Config{IRQ: busIRQ, Priority: 0x80, Timeout: 5, Deferred: true})
		spawn(t, k, "drv", 10, func() {
			var buf [1]byte
			b.Acquire()
			for i := 0; i < 2; i++ {
				results = append(results, b.ReadRegister(0x48, 0x01, buf[:]))
			}
			b.Release()
		})
	})

	require.NoError(t, m.Interrupt(busIRQ))
	require.Len(t, results, 1)
	assert.NoError(t, results[0])

	require.NoError(t, m.Tick(4))
	assert.Len(t, results, 1)
	require.NoError(t, m.Tick(1))
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[1], ErrTimeout)

	// A late completion finds nothing in flight.
	require.NoError(t, m.Interrupt(busIRQ))
	assert.Len(t, results, 2)
}

func TestBusSerializesThreads(t *testing.T) {
	var (
		order   []string
		boosted kernel.Priority
	)
	m := boot(t, func(k *kernel.Kernel) {
		b := NewI2C(k, sensor(), Config{IRQ: busIRQ, Priority: 0x80, Deferred: true})
		use := func(name string) func() {
			return func() {
				var buf [1]byte
				b.Acquire()
				assert.NoError(t, b.ReadRegister(0x48, 0x00, buf[:]))
				order = append(order, name)
				b.Release()
			}
		}
		low := spawn(t, k, "low", 10, use("low"))
		k.SetPriority(5)
		spawn(t, k, "high", 20, use("high"))
		info, _ := k.Info(low)
		boosted = info.Priority
	})

	assert.Equal(t, kernel.Priority(20), boosted)
	require.NoError(t, m.Interrupt(busIRQ))
	assert.Equal(t, []string{"low"}, order)
	require.NoError(t, m.Interrupt(busIRQ))
	assert.Equal(t, []string{"low", "high"}, order)
}

func TestSPIExchange(t *testing.T) {
	var (
		r   [4]byte
		x   byte
		err error
	)
	boot(t, func(k *kernel.Kernel) {
		b := NewSPI(k, hal.LoopbackSPI{}, Config{IRQ: port.IRQ(2), Priority: 0x80})
		b.Acquire()
		err = b.Tx([]byte{1, 2}, r[:])
		if err == nil {
			x, err = b.Transfer(0x5a)
		}
		b.Release()
	})

	require.NoError(t, err)
	assert.Equal(t, [4]byte{1, 2, 0xff, 0xff}, r)
	assert.Equal(t, byte(0x5a), x)
}
