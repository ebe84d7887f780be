package bus

import (
	"ember/kernel"

	"tinygo.org/x/drivers"
)

// I2C is an I2C controller shared by kernel threads.
type I2C struct {
	controller
	dev drivers.I2C
}

// NewI2C binds dev to cfg.IRQ. It must be called from a thread.
func NewI2C(k *kernel.Kernel, dev drivers.I2C, cfg Config) *I2C {
	b := &I2C{dev: dev}
	b.init(k, "i2c", cfg)
	return b
}

// Tx writes w to and then reads r from the device at addr. The caller must
// hold the bus.
func (b *I2C) Tx(addr uint16, w, r []byte) error {
	return b.do(func() error { return b.dev.Tx(addr, w, r) })
}

// ReadRegister reads len(data) bytes starting at reg.
func (b *I2C) ReadRegister(addr uint16, reg uint8, data []byte) error {
	return b.Tx(addr, []byte{reg}, data)
}

// WriteRegister writes data starting at reg.
func (b *I2C) WriteRegister(addr uint16, reg uint8, data []byte) error {
	buf := make([]byte, 1+len(data))
	buf[0] = reg
	copy(buf[1:], data)
	return b.Tx(addr, buf, nil)
}

// Shared returns a drivers.I2C that acquires the bus around every
// transaction, for device drivers written against the plain interface.
func (b *I2C) Shared() drivers.I2C { return sharedI2C{b} }

type sharedI2C struct {
	b *I2C
}

func (s sharedI2C) Tx(addr uint16, w, r []byte) error {
	s.b.Acquire()
	defer s.b.Release()
	return s.b.Tx(addr, w, r)
}
