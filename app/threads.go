package app

import (
	"bytes"
	"fmt"

	"ember/kernel"
	"ember/sandbox"
	"ember/services/adc"
)

func (s *System) spawn(ts ThreadSpec) error {
	var body func(ts ThreadSpec)
	switch ts.Kind {
	case "spin":
		body = s.spin
	case "sleep":
		body = s.blink
	case "mutex":
		body = s.lockLoop
	case "sem":
		body = s.semLoop
	case "sensor":
		body = s.sensorLoop
	case "spi":
		body = s.spiLoop
	case "echo":
		body = s.echo
	case "adc":
		body = s.adcLoop
	case "fault":
		body = s.fault
	default:
		return fmt.Errorf("thread %s: unknown kind %q", ts.Name, ts.Kind)
	}
	_, err := s.k.CreateThread(kernel.ThreadConfig{
		Name:     ts.Name,
		Priority: kernel.Priority(ts.Priority),
		Entry:    func(any) { body(ts) },
	})
	if err != nil {
		return fmt.Errorf("thread %s: %w", ts.Name, err)
	}
	return nil
}

func (s *System) spawnSandbox(ts SandboxSpec) error {
	cfg := sandbox.Config{
		Name:     ts.Name,
		Priority: kernel.Priority(ts.Priority),
	}
	if s.out != nil {
		cfg.Out = s.out
	}
	period := kernel.Timeout(max(ts.Period, 1))
	_, err := s.box.Spawn(cfg, func(sys *sandbox.Syscalls) {
		for {
			fmt.Fprintf(sys, "%s (t=%d)\r\n", ts.Message, sys.Now())
			sys.Sleep(period)
		}
	})
	return err
}

// busy burns CPU time until n more ticks have elapsed.
func (s *System) busy(n uint32) {
	deadline := s.k.Now() + kernel.Tick(n)
	for s.k.Now() < deadline {
		s.k.Core().WaitForInterrupt()
	}
}

func (s *System) trace(name string, v int64) {
	s.k.Lock()
	s.k.TraceUserI(name, v)
	s.k.Unlock()
}

func (s *System) spin(ts ThreadSpec) {
	for {
		s.busy(ts.Work)
		if ts.Period > 0 {
			s.k.Sleep(kernel.Timeout(ts.Period))
		} else {
			s.k.Yield()
		}
	}
}

func (s *System) blink(ts ThreadSpec) {
	led := s.h.LED()
	for {
		s.k.Sleep(kernel.Timeout(max(ts.Period, 1)))
		s.led = !s.led
		if led == nil {
			continue
		}
		if s.led {
			led.High()
		} else {
			led.Low()
		}
	}
}

func (s *System) lockLoop(ts ThreadSpec) {
	var n int64
	for {
		s.mu.Lock()
		s.busy(ts.Work)
		n++
		s.trace(ts.Name, n)
		s.mu.Unlock()
		s.k.Sleep(kernel.Timeout(max(ts.Period, 1)))
	}
}

func (s *System) semLoop(ts ThreadSpec) {
	var n int64
	for {
		if s.sem.WaitTimeout(kernel.Timeout(max(ts.Period, 1)*2)) != kernel.ResultOK {
			s.log.Warning().Str("thread", ts.Name).Log("semaphore wait timed out")
			continue
		}
		n++
		s.trace(ts.Name, n)
	}
}

// sensorLoop reads a 16-bit temperature register, in 1/256 degree units.
func (s *System) sensorLoop(ts ThreadSpec) {
	if s.i2c == nil {
		return
	}
	var buf [2]byte
	for {
		s.i2c.Acquire()
		err := s.i2c.ReadRegister(ts.Addr, ts.Reg, buf[:])
		s.i2c.Release()
		if err != nil {
			s.log.Err().Str("thread", ts.Name).Err(err).Log("sensor read failed")
		} else {
			centi := int64(int16(uint16(buf[0])<<8|uint16(buf[1]))) * 100 / 256
			s.trace(ts.Name, centi)
			s.log.Info().
				Str("thread", ts.Name).
				Int64("centi_c", centi).
				Log("sensor reading")
		}
		s.k.Sleep(kernel.Timeout(max(ts.Period, 1)))
	}
}

func (s *System) spiLoop(ts ThreadSpec) {
	if s.spi == nil {
		return
	}
	out := []byte{0xde, 0xad, 0xbe, 0xef}
	in := make([]byte, len(out))
	for {
		s.spi.Acquire()
		err := s.spi.Tx(out, in)
		s.spi.Release()
		switch {
		case err != nil:
			s.log.Err().Str("thread", ts.Name).Err(err).Log("spi exchange failed")
		case !bytes.Equal(in, out):
			s.log.Warning().Str("thread", ts.Name).Log("spi loopback mismatch")
		}
		out[0]++
		s.k.Sleep(kernel.Timeout(max(ts.Period, 1)))
	}
}

// adcLoop converts Work rows of the thread channels and logs the average of
// each channel.
func (s *System) adcLoop(ts ThreadSpec) {
	if s.adc == nil {
		return
	}
	depth := int(max(ts.Work, 1))
	n := len(ts.Channels)
	buf := make([]uint16, depth*n)
	g := &adc.Group{Channels: ts.Channels}
	for {
		s.adc.Acquire()
		err := s.adc.Convert(g, buf, depth)
		s.adc.Release()
		if err != nil {
			s.log.Err().Str("thread", ts.Name).Err(err).Log("adc conversion failed")
		} else {
			b := s.log.Info().Str("thread", ts.Name).Int("rows", depth)
			for i, ch := range ts.Channels {
				var sum int64
				for r := 0; r < depth; r++ {
					sum += int64(buf[r*n+i])
				}
				if i == 0 {
					s.trace(ts.Name, sum/int64(depth))
				}
				b = b.Int64(fmt.Sprintf("ch%d", ch), sum/int64(depth))
			}
			b.Log("adc reading")
		}
		s.k.Sleep(kernel.Timeout(max(ts.Period, 1)))
	}
}

// echo writes serial input back, expanding CR to CRLF.
func (s *System) echo(ts ThreadSpec) {
	if s.uart == nil {
		return
	}
	var in [32]byte
	out := make([]byte, 0, 2*len(in))
	for {
		n, r := s.uart.Read(in[:], kernel.Infinite)
		if r != kernel.ResultOK {
			continue
		}
		out = out[:0]
		for _, b := range in[:n] {
			out = append(out, b)
			if b == '\r' {
				out = append(out, '\n')
			}
		}
		if _, err := s.out.Write(out); err != nil {
			s.log.Err().Str("thread", ts.Name).Err(err).Log("serial write failed")
		}
	}
}

func (s *System) fault(ts ThreadSpec) {
	s.k.Sleep(kernel.Timeout(max(ts.Period, 1)))
	s.k.Core().Halt("workload fault: " + ts.Name)
}
