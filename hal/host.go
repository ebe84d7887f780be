//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"tinygo.org/x/drivers"
)

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	fb     *hostFramebuffer
	t      *hostTime
	serial *FIFOSerial
	i2c    *RegisterBus
	spi    drivers.SPI
	adc    *SimADC
}

// Board addresses of the simulated I2C devices.
const (
	SensorAddr = 0x48
	EEPROMAddr = 0x50
)

// Simulated ADC channels.
const (
	ADCBattery = 0
	ADCLight   = 1
)

// New returns a host HAL implementation.
func New() HAL {
	return newHost(os.Stdout, DefaultHz)
}

func newHost(out io.Writer, hz int) *hostHAL {
	logger := &hostLogger{w: out}
	bus := NewRegisterBus()
	// Temperature sensor: id register 0x0f, reading 21.5 C in 0x00..0x01.
	bus.Attach(SensorAddr, map[uint8]byte{0x00: 0x15, 0x01: 0x80, 0x0f: 0xa1})
	bus.Attach(EEPROMAddr, nil)
	adc := NewSimADC()
	adc.Set(ADCBattery, 2730)
	adc.Set(ADCLight, 1024)
	return &hostHAL{
		logger: logger,
		led:    &hostLED{logger: logger},
		fb:     newHostFramebuffer(320, 240),
		t:      newHostTime(hz),
		serial: NewFIFOSerial(out),
		i2c:    bus,
		spi:    LoopbackSPI{},
		adc:    adc,
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) LED() LED         { return h.led }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) Serial() Serial   { return h.serial }
func (h *hostHAL) I2C() drivers.I2C { return h.i2c }
func (h *hostHAL) SPI() drivers.SPI { return h.spi }
func (h *hostHAL) ADC() ADC         { return h.adc }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.w, s, "\r\n")
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\r', '\n'})
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.on {
		l.on = true
		l.logger.WriteLineString("led: HIGH")
	}
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on {
		l.on = false
		l.logger.WriteLineString("led: LOW")
	}
}
