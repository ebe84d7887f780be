// Package bus drives I2C and SPI controllers from kernel threads. A
// transaction is started by the calling thread, performed by the bus
// interrupt and reported back through a thread reference. The kernel mutex
// arbitrates between threads sharing a bus.
package bus

import (
	"errors"

	"ember/kernel"
	"ember/port"
)

var (
	ErrTimeout     = errors.New("bus: transaction timed out")
	ErrNotAcquired = errors.New("bus: not acquired by caller")
)

// Config describes a bus controller.
type Config struct {
	IRQ      port.Vector
	Priority port.IRQPriority
	// Timeout bounds each transaction. Zero waits forever.
	Timeout kernel.Timeout
	// Deferred leaves raising the completion interrupt to the board instead
	// of pending it when the transaction starts.
	Deferred bool
}

// Stats counts completed transactions.
type Stats struct {
	Transfers uint32
	Errors    uint32
	Timeouts  uint32
}

type controller struct {
	k     *kernel.Kernel
	cfg   Config
	mu    kernel.Mutex
	ref   kernel.ThreadRef
	op    func() error
	err   error
	stats Stats
}

func (c *controller) init(k *kernel.Kernel, name string, cfg Config) {
	if cfg.Timeout == kernel.Immediate {
		cfg.Timeout = kernel.Infinite
	}
	c.k = k
	c.cfg = cfg
	k.InitMutex(&c.mu)
	k.Core().SetVector(cfg.IRQ, cfg.Priority, k.WrapISR(name, c.isr))
}

// Acquire gains exclusive use of the bus.
func (c *controller) Acquire() { c.mu.Lock() }

// Release gives the bus back.
func (c *controller) Release() { c.mu.Unlock() }

// Stats returns the transaction counters.
func (c *controller) Stats() Stats { return c.stats }

func (c *controller) do(op func() error) error {
	k := c.k
	if c.mu.Owner() != k.Self() {
		return ErrNotAcquired
	}
	k.Lock()
	c.op, c.err = op, nil
	if !c.cfg.Deferred {
		k.Core().Pend(c.cfg.IRQ)
	}
	r := k.SuspendTimeoutS(&c.ref, c.cfg.Timeout)
	c.op = nil
	err := c.err
	k.Unlock()

	if r != kernel.ResultOK {
		c.stats.Timeouts++
		return ErrTimeout
	}
	c.stats.Transfers++
	if err != nil {
		c.stats.Errors++
	}
	return err
}

// isr completes the transaction in flight, if any.
func (c *controller) isr() {
	k := c.k
	k.LockFromISR()
	if c.op != nil && c.ref.Waiting() {
		c.err = c.op()
		c.op = nil
		k.ResumeI(&c.ref, kernel.ResultOK)
	}
	k.UnlockFromISR()
}
