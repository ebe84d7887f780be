//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// QuitKey is the input byte (Ctrl-\) that stops a host runner.
const QuitKey = 0x1c

// ErrQuit is returned by the runners when QuitKey was typed.
var ErrQuit = errors.New("hal: quit requested")

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Hz    int
	Ticks uint64
	// Input feeds the simulated UART when set.
	Input io.Reader
}

// RunHeadless runs the system without opening a window. step is called once
// per host tick.
func RunHeadless(ctx context.Context, newApp func(HAL) func() error, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = DefaultHz
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	h := newHost(os.Stdout, cfg.Hz)
	step := newApp(h)

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Input != nil {
		g.Go(func() error { return pumpInput(ctx, cfg.Input, h.serial) })
	}
	g.Go(func() error {
		t := time.NewTicker(d)
		defer t.Stop()

		var tick uint64
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				h.t.stepN(1)
				if step != nil {
					if err := step(); err != nil {
						return err
					}
				}
				tick++
				if cfg.Ticks > 0 && tick >= cfg.Ticks {
					return errDone
				}
			}
		}
	})
	err := g.Wait()
	h.reportLost()
	if err != nil && !errors.Is(err, errDone) {
		return err
	}
	return nil
}

var errDone = errors.New("hal: tick budget reached")

// pumpInput forwards r into the UART receive FIFO. The blocking reads run on
// their own goroutine so that ctx cancellation is not held up by them.
func pumpInput(ctx context.Context, r io.Reader, s *FIFOSerial) error {
	chunks := make(chan []byte, 16)
	go func() {
		defer close(chunks)
		for {
			buf := make([]byte, 64)
			n, err := r.Read(buf)
			if n > 0 {
				chunks <- buf[:n]
			}
			if err != nil {
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-chunks:
			if !ok {
				return nil
			}
			for i, c := range b {
				if c == QuitKey {
					s.Push(b[:i])
					return ErrQuit
				}
			}
			s.Push(b)
		}
	}
}
