//go:build !tinygo

package hal

import (
	"bytes"
	"errors"
	"image/color"
	"testing"
)

func TestFIFOSerialOverrun(t *testing.T) {
	var out bytes.Buffer
	s := NewFIFOSerial(&out)

	data := bytes.Repeat([]byte{'x'}, fifoSize+3)
	if n := s.Push(data); n != fifoSize {
		t.Fatalf("Push() = %d, want %d", n, fifoSize)
	}
	if got := s.Overruns(); got != 3 {
		t.Fatalf("Overruns() = %d, want 3", got)
	}
	if got := s.Overruns(); got != 0 {
		t.Fatalf("Overruns() after clear = %d, want 0", got)
	}

	buf := make([]byte, 10)
	n, err := s.Read(buf)
	if err != nil || n != 10 {
		t.Fatalf("Read() = %d, %v, want 10, nil", n, err)
	}
	if got := s.Buffered(); got != fifoSize-10 {
		t.Fatalf("Buffered() = %d, want %d", got, fifoSize-10)
	}

	s.Write([]byte("hi"))
	if out.String() != "hi" {
		t.Fatalf("Write() output = %q, want %q", out.String(), "hi")
	}
}

func TestSimADC(t *testing.T) {
	a := NewSimADC()
	a.Set(2, 4095)
	row := make([]uint16, 2)
	if err := a.Read(row); !errors.Is(err, ErrADCStopped) {
		t.Fatalf("Read() before Start = %v, want %v", err, ErrADCStopped)
	}
	if err := a.Start(nil); err == nil {
		t.Fatalf("Start(nil) = nil, want error")
	}
	if err := a.Start([]uint8{2, 7}); err != nil || !a.Running() {
		t.Fatalf("Start() = %v, running %v", err, a.Running())
	}
	if err := a.Read(row); err != nil || row[0] != 4095 || row[1] != 0 {
		t.Fatalf("Read() = %v, %v, want [4095 0]", err, row)
	}

	overrun := errors.New("overrun")
	a.Fail(overrun)
	if err := a.Read(row); !errors.Is(err, overrun) {
		t.Fatalf("Read() = %v, want %v", err, overrun)
	}
	if err := a.Read(row); err != nil {
		t.Fatalf("Read() after failure = %v, want nil", err)
	}
	if got := a.Rows(); got != 2 {
		t.Fatalf("Rows() = %d, want 2", got)
	}
	a.Stop()
	if a.Running() {
		t.Fatalf("Running() after Stop = true")
	}
}

func TestRegisterBus(t *testing.T) {
	bus := NewRegisterBus()
	bus.Attach(0x48, map[uint8]byte{0x0f: 0xa1})

	r := make([]byte, 1)
	if err := bus.Tx(0x48, []byte{0x0f}, r); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if r[0] != 0xa1 {
		t.Fatalf("id = %#x, want 0xa1", r[0])
	}

	if err := bus.Tx(0x48, []byte{0x10, 1, 2, 3}, nil); err != nil {
		t.Fatalf("Tx write: %v", err)
	}
	r = make([]byte, 3)
	if err := bus.Tx(0x48, []byte{0x10}, r); err != nil {
		t.Fatalf("Tx read: %v", err)
	}
	if !bytes.Equal(r, []byte{1, 2, 3}) {
		t.Fatalf("read back = %v, want [1 2 3]", r)
	}

	if err := bus.Tx(0x20, nil, r); err == nil {
		t.Fatal("Tx to missing device succeeded")
	}
}

func TestFramebufferDisplayer(t *testing.T) {
	fb := newHostFramebuffer(4, 2)
	d := FramebufferDisplayer{FB: fb}

	d.SetPixel(1, 1, color.RGBA{R: 255, A: 255})
	d.SetPixel(9, 9, color.RGBA{G: 255, A: 255})
	off := 1*fb.StrideBytes() + 2
	got := uint16(fb.buf[off]) | uint16(fb.buf[off+1])<<8
	if got != 0xF800 {
		t.Fatalf("pixel = %#04x, want 0xf800", got)
	}

	dst := make([]byte, len(fb.buf))
	if _, changed := fb.snapshotRGB565(dst, 0); changed {
		t.Fatal("snapshot changed before Present")
	}
	if err := d.Display(); err != nil {
		t.Fatalf("Display: %v", err)
	}
	seen, changed := fb.snapshotRGB565(dst, 0)
	if !changed || seen != 1 {
		t.Fatalf("snapshot = %d, %v, want 1, true", seen, changed)
	}
	if !bytes.Equal(dst, fb.buf) {
		t.Fatal("snapshot differs from back buffer")
	}
}
