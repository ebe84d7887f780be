//go:build !tinygo

package hal

import (
	"fmt"
	"time"
)

// DefaultHz is the SysTick rate of the host runners.
const DefaultHz = 100

// hostTime turns host wall-clock time into SysTick ticks. Ticks that do not
// fit the channel are dropped and counted.
type hostTime struct {
	ch     chan uint64
	seq    uint64
	period time.Duration

	last time.Time
	acc  time.Duration
	lost uint64
}

func newHostTime(hz int) *hostTime {
	if hz <= 0 {
		hz = DefaultHz
	}
	return &hostTime{
		ch:     make(chan uint64, 1024),
		period: time.Second / time.Duration(hz),
	}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// advance converts the time elapsed since the previous call into ticks.
func (t *hostTime) advance(now time.Time) {
	if t.last.IsZero() {
		t.last = now
		t.stepN(1)
		return
	}
	if now.Before(t.last) {
		t.last = now
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	n := uint64(t.acc / t.period)
	if n == 0 {
		return
	}
	t.acc %= t.period
	t.stepN(n)
}

// Lost returns the number of ticks dropped so far.
func (t *hostTime) Lost() uint64 { return t.lost }

// reportLost logs the dropped ticks of a runner that has stopped.
func (h *hostHAL) reportLost() {
	if n := h.t.Lost(); n > 0 {
		h.logger.WriteLineString(fmt.Sprintf("host: %d ticks dropped", n))
	}
}

func (t *hostTime) stepN(n uint64) {
	for ; n > 0; n-- {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
			t.lost++
		}
	}
}
