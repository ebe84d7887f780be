package hal

import (
	"errors"
	"sync"
)

var ErrADCStopped = errors.New("adc: converter not started")

// ADC is an analog-to-digital converter that samples a sequence of channels
// on each trigger. While Running reports true the board raises the converter
// interrupt once per tick and the driver collects a row with Read.
type ADC interface {
	Start(channels []uint8) error
	Read(row []uint16) error
	Stop()
	Running() bool
}

var _ ADC = (*SimADC)(nil)

// SimADC is a simulated converter. Each channel reads the value set with
// Set; channels never set read zero.
type SimADC struct {
	mu       sync.Mutex
	values   map[uint8]uint16
	channels []uint8
	running  bool
	fail     error
	rows     uint64
}

// NewSimADC returns a stopped converter with all channels at zero.
func NewSimADC() *SimADC {
	return &SimADC{values: make(map[uint8]uint16)}
}

// Set fixes the reading of channel ch.
func (a *SimADC) Set(ch uint8, v uint16) {
	a.mu.Lock()
	a.values[ch] = v
	a.mu.Unlock()
}

// Fail makes the next Read return err.
func (a *SimADC) Fail(err error) {
	a.mu.Lock()
	a.fail = err
	a.mu.Unlock()
}

// Rows returns the number of rows converted so far.
func (a *SimADC) Rows() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rows
}

func (a *SimADC) Start(channels []uint8) error {
	if len(channels) == 0 {
		return errors.New("adc: no channels")
	}
	a.mu.Lock()
	a.channels = append(a.channels[:0], channels...)
	a.running = true
	a.mu.Unlock()
	return nil
}

func (a *SimADC) Read(row []uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return ErrADCStopped
	}
	if err := a.fail; err != nil {
		a.fail = nil
		return err
	}
	for i, ch := range a.channels {
		if i < len(row) {
			row[i] = a.values[ch]
		}
	}
	a.rows++
	return nil
}

func (a *SimADC) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

func (a *SimADC) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
