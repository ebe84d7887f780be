package hal

import (
	"fmt"
	"sync"

	"tinygo.org/x/drivers"
)

var (
	_ drivers.I2C = (*RegisterBus)(nil)
	_ drivers.SPI = LoopbackSPI{}
)

// RegisterBus simulates an I2C bus of register-file devices. A write sets
// the register pointer from its first byte and stores the rest; a read
// continues from the pointer.
type RegisterBus struct {
	mu   sync.Mutex
	devs map[uint16]*regFile
}

type regFile struct {
	ptr  uint8
	regs [256]byte
}

// NewRegisterBus returns a bus with no devices.
func NewRegisterBus() *RegisterBus {
	return &RegisterBus{devs: make(map[uint16]*regFile)}
}

// Attach adds a device at addr with the given initial registers.
func (b *RegisterBus) Attach(addr uint16, init map[uint8]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := &regFile{}
	for r, v := range init {
		d.regs[r] = v
	}
	b.devs[addr] = d
}

func (b *RegisterBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devs[addr]
	if !ok {
		return fmt.Errorf("i2c: no ack from %#x", addr)
	}
	if len(w) > 0 {
		d.ptr = w[0]
		for _, v := range w[1:] {
			d.regs[d.ptr] = v
			d.ptr++
		}
	}
	for i := range r {
		r[i] = d.regs[d.ptr]
		d.ptr++
	}
	return nil
}

// LoopbackSPI echoes every transmitted byte.
type LoopbackSPI struct{}

func (LoopbackSPI) Tx(w, r []byte) error {
	for i := range r {
		if i < len(w) {
			r[i] = w[i]
		} else {
			r[i] = 0xFF
		}
	}
	return nil
}

func (LoopbackSPI) Transfer(b byte) (byte, error) { return b, nil }
