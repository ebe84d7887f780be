//go:build tinygo && baremetal

package hal

import (
	"errors"
	"machine"
)

// pinADC samples the RP2350 ADC inputs on GP26..GP29. Conversions are
// blocking, so Read performs the whole row.
type pinADC struct {
	pins     [4]machine.ADC
	channels []uint8
	running  bool
}

func newPinADC() *pinADC {
	machine.InitADC()
	a := &pinADC{pins: [4]machine.ADC{
		{Pin: machine.ADC0},
		{Pin: machine.ADC1},
		{Pin: machine.ADC2},
		{Pin: machine.ADC3},
	}}
	for i := range a.pins {
		a.pins[i].Configure(machine.ADCConfig{})
	}
	return a
}

func (a *pinADC) Start(channels []uint8) error {
	if len(channels) == 0 {
		return errors.New("adc: no channels")
	}
	for _, ch := range channels {
		if int(ch) >= len(a.pins) {
			return errors.New("adc: no such channel")
		}
	}
	a.channels = append(a.channels[:0], channels...)
	a.running = true
	return nil
}

func (a *pinADC) Read(row []uint16) error {
	if !a.running {
		return ErrADCStopped
	}
	for i, ch := range a.channels {
		if i < len(row) {
			row[i] = a.pins[ch].Get()
		}
	}
	return nil
}

func (a *pinADC) Stop()         { a.running = false }
func (a *pinADC) Running() bool { return a.running }
