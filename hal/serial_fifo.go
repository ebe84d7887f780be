package hal

import (
	"io"
	"sync"
)

const fifoSize = 256

// FIFOSerial is a simulated UART. The board side pushes received bytes with
// Push; the driver side drains them with Read. Bytes that do not fit are
// dropped and counted as overruns.
type FIFOSerial struct {
	mu      sync.Mutex
	rx      [fifoSize]byte
	head    int
	n       int
	overrun uint32
	w       io.Writer
}

// NewFIFOSerial returns a UART that transmits to w.
func NewFIFOSerial(w io.Writer) *FIFOSerial {
	return &FIFOSerial{w: w}
}

// Push stores received bytes and returns how many fit.
func (s *FIFOSerial) Push(p []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range p {
		if s.n == fifoSize {
			s.overrun++
			continue
		}
		s.rx[(s.head+s.n)%fifoSize] = b
		s.n++
		n++
	}
	return n
}

// Overruns returns and clears the number of dropped bytes.
func (s *FIFOSerial) Overruns() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.overrun
	s.overrun = 0
	return n
}

func (s *FIFOSerial) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *FIFOSerial) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for n < len(p) && s.n > 0 {
		p[n] = s.rx[s.head]
		s.head = (s.head + 1) % fifoSize
		s.n--
		n++
	}
	return n, nil
}

func (s *FIFOSerial) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, ErrNotImplemented
	}
	return s.w.Write(p)
}
