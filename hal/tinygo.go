//go:build tinygo && baremetal

package hal

import (
	"machine"

	"tinygo.org/x/drivers"
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	fb     Framebuffer
	t      *tinyGoTime
	serial *uartSerial
	i2c    *machine.I2C
	spi    *machine.SPI
	adc    *pinADC
}

// New returns a Pico 2 (RP2350) HAL implementation.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
// I2C0 on GP4 (SDA) / GP5 (SCL), 400 kHz. SPI0 on its default pins, 4 MHz.
// ADC channels 0..3 on GP26..GP29.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	i2c := machine.I2C0
	i2c.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.GP4,
		SCL:       machine.GP5,
	})

	spi := machine.SPI0
	spi.Configure(machine.SPIConfig{Frequency: 4 * machine.MHz})

	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		led:    &pinLED{pin: ledPin},
		fb:     &stubFramebuffer{w: 320, h: 240, format: PixelFormatRGB565},
		t:      newTinyGoTime(),
		serial: &uartSerial{uart: uart},
		i2c:    i2c,
		spi:    spi,
		adc:    newPinADC(),
	}
}

func (h *tinyGoHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHAL) LED() LED         { return h.led }
func (h *tinyGoHAL) Display() Display { return tinyGoDisplay{fb: h.fb} }
func (h *tinyGoHAL) Time() Time       { return h.t }
func (h *tinyGoHAL) Serial() Serial   { return h.serial }
func (h *tinyGoHAL) I2C() drivers.I2C { return h.i2c }
func (h *tinyGoHAL) SPI() drivers.SPI { return h.spi }
func (h *tinyGoHAL) ADC() ADC         { return h.adc }
