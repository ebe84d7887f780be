package bus

import (
	"ember/kernel"

	"tinygo.org/x/drivers"
)

// SPI is an SPI controller shared by kernel threads.
type SPI struct {
	controller
	dev drivers.SPI
}

// NewSPI binds dev to cfg.IRQ. It must be called from a thread.
func NewSPI(k *kernel.Kernel, dev drivers.SPI, cfg Config) *SPI {
	b := &SPI{dev: dev}
	b.init(k, "spi", cfg)
	return b
}

// Tx clocks w out while filling r. The caller must hold the bus.
func (b *SPI) Tx(w, r []byte) error {
	return b.do(func() error { return b.dev.Tx(w, r) })
}

// Transfer exchanges a single byte.
func (b *SPI) Transfer(w byte) (byte, error) {
	var r byte
	err := b.do(func() error {
		var err error
		r, err = b.dev.Transfer(w)
		return err
	})
	return r, err
}
