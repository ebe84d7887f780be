package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"ember/hal"
	"ember/kernel"
	"ember/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers"
)

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) WriteLineString(s string) {
	l.mu.Lock()
	l.lines = append(l.lines, s)
	l.mu.Unlock()
}

func (l *testLogger) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *testLogger) text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

type testLED struct{ high, low int }

func (l *testLED) High() { l.high++ }
func (l *testLED) Low()  { l.low++ }

type testFB struct {
	w, h     int
	buf      []byte
	presents int
}

func (f *testFB) Width() int              { return f.w }
func (f *testFB) Height() int             { return f.h }
func (f *testFB) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *testFB) StrideBytes() int        { return f.w * 2 }
func (f *testFB) Buffer() []byte          { return f.buf }
func (f *testFB) ClearRGB(r, g, b uint8)  {}
func (f *testFB) Present() error          { f.presents++; return nil }

func (f *testFB) pixel(x, y int) uint16 {
	off := y*f.StrideBytes() + x*2
	return uint16(f.buf[off]) | uint16(f.buf[off+1])<<8
}

type testTime struct{ ch chan uint64 }

func (t testTime) Ticks() <-chan uint64 { return t.ch }

type testDisplay struct{ fb *testFB }

func (d testDisplay) Framebuffer() hal.Framebuffer { return d.fb }

type testHAL struct {
	log    testLogger
	led    testLED
	fb     *testFB
	time   testTime
	out    bytes.Buffer
	serial *hal.FIFOSerial
	i2c    *hal.RegisterBus
	adc    *hal.SimADC
}

func newTestHAL() *testHAL {
	h := &testHAL{
		fb:   &testFB{w: 320, h: 240, buf: make([]byte, 320*240*2)},
		time: testTime{ch: make(chan uint64, 4096)},
		i2c:  hal.NewRegisterBus(),
		adc:  hal.NewSimADC(),
	}
	h.serial = hal.NewFIFOSerial(&h.out)
	h.i2c.Attach(0x48, map[uint8]byte{0x00: 0x15, 0x01: 0x80})
	h.adc.Set(0, 2730)
	h.adc.Set(1, 1024)
	return h
}

func (h *testHAL) Logger() hal.Logger   { return &h.log }
func (h *testHAL) LED() hal.LED         { return &h.led }
func (h *testHAL) Display() hal.Display { return testDisplay{h.fb} }
func (h *testHAL) Time() hal.Time       { return h.time }
func (h *testHAL) Serial() hal.Serial   { return h.serial }
func (h *testHAL) I2C() drivers.I2C     { return h.i2c }
func (h *testHAL) SPI() drivers.SPI     { return hal.LoopbackSPI{} }
func (h *testHAL) ADC() hal.ADC         { return h.adc }

func (h *testHAL) tick(n int) {
	for i := 0; i < n; i++ {
		h.time.ch <- uint64(i)
	}
}

func boot(t *testing.T, h *testHAL, w Workload, opts Options) *System {
	t.Helper()
	s, err := Boot(h, w, opts)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func TestDefaultWorkloadRuns(t *testing.T) {
	h := newTestHAL()
	s := boot(t, h, DefaultWorkload(), Options{})

	h.tick(120)
	require.NoError(t, s.Step())
	assert.Equal(t, kernel.Tick(120), s.Kernel().Now())

	logs := h.log.text()
	assert.Contains(t, logs, `"msg":"workload started"`)
	assert.Contains(t, logs, `"centi_c":2150`)
	assert.NotContains(t, logs, "semaphore wait timed out")
	assert.NotContains(t, logs, "spi exchange failed")
	assert.NotContains(t, logs, "spi loopback mismatch")
	assert.Contains(t, logs, `"ch0":2730`)
	assert.Contains(t, logs, `"ch1":1024`)
	assert.NotContains(t, logs, "adc conversion failed")
	assert.Contains(t, h.out.String(), "hello from the sandbox (t=")
	require.NotNil(t, s.con)
	assert.Equal(t, 6, s.con.Rows())
	assert.Equal(t, uint32(1), s.con.Lines())
	assert.Equal(t, 1, h.led.high)
	assert.Equal(t, 1, h.led.low)
	assert.Greater(t, h.fb.presents, 0)

	names := map[string]bool{}
	for _, info := range s.Kernel().Threads() {
		names[info.Name] = true
	}
	for _, want := range []string{"logger", "monitor", "blink", "sensor", "adc", "spi", "echo", "lo-mtx", "hi-mtx", "worker", "spin-a", "spin-b", "hello"} {
		assert.True(t, names[want], want)
	}
}

func TestEchoThread(t *testing.T) {
	h := newTestHAL()
	w, err := ParseWorkload(`
[[thread]]
name = "echo"
priority = 60
kind = "echo"
`)
	require.NoError(t, err)
	s := boot(t, h, w, Options{})

	h.serial.Push([]byte("hi\r"))
	require.NoError(t, s.Step())
	assert.Equal(t, "hi\r\n", h.out.String())
	require.NotNil(t, s.con)
	assert.Equal(t, uint32(1), s.con.Lines())
}

func TestConsoleDisabled(t *testing.T) {
	h := newTestHAL()
	w, err := ParseWorkload(`
[monitor]
console = 0

[[sandbox]]
name = "hello"
priority = 8
message = "hi"
period = 10
`)
	require.NoError(t, err)
	s := boot(t, h, w, Options{})

	h.tick(1)
	require.NoError(t, s.Step())
	assert.Nil(t, s.con)
	assert.Contains(t, h.out.String(), "hi (t=")
}

func TestADCThread(t *testing.T) {
	h := newTestHAL()
	w, err := ParseWorkload(`
[monitor]
enabled = false

[[thread]]
name = "vbat"
priority = 30
kind = "adc"
period = 10
work = 2
channels = [1]
`)
	require.NoError(t, err)
	s := boot(t, h, w, Options{})
	h.adc.Set(1, 500)

	h.tick(5)
	require.NoError(t, s.Step())
	logs := h.log.text()
	assert.Contains(t, logs, `"rows":2`)
	assert.Contains(t, logs, `"ch1":500`)
	assert.Equal(t, uint64(2), h.adc.Rows())

	h.adc.Fail(errors.New("overrun"))
	h.tick(10)
	require.NoError(t, s.Step())
	assert.Contains(t, h.log.text(), "adc conversion failed")
	assert.False(t, h.adc.Running())
}

func TestFaultShowsHaltScreen(t *testing.T) {
	h := newTestHAL()
	w, err := ParseWorkload(`
[monitor]
enabled = false

[[thread]]
name = "doomed"
priority = 60
kind = "fault"
period = 3
`)
	require.NoError(t, err)
	s := boot(t, h, w, Options{})

	h.tick(3)
	err = s.Step()
	require.Error(t, err)
	assert.True(t, s.Kernel().Halted())

	logs := h.log.text()
	assert.Contains(t, logs, "Ember halted:")
	assert.Contains(t, logs, "reason: workload fault: doomed")
	assert.Contains(t, logs, "thread: doomed")
	assert.Equal(t, 1, h.fb.presents)
	assert.Equal(t, uint16(0x8000), h.fb.pixel(319, 239))
}

func TestDriveStopsOnFault(t *testing.T) {
	h := newTestHAL()
	w, err := ParseWorkload(`
[monitor]
enabled = false

[[thread]]
name = "doomed"
priority = 60
kind = "fault"
period = 2
`)
	require.NoError(t, err)
	s := boot(t, h, w, Options{})

	h.tick(5)
	close(h.time.ch)
	err = s.drive()
	require.ErrorIs(t, err, port.ErrHalted)
	assert.Equal(t, kernel.Tick(2), s.Kernel().Now())
	assert.Len(t, h.time.ch, 3)
}

func TestKeepAliveHidesHalt(t *testing.T) {
	h := newTestHAL()
	w, err := ParseWorkload(`
[[thread]]
name = "doomed"
priority = 60
kind = "fault"
period = 1
`)
	require.NoError(t, err)
	s := boot(t, h, w, Options{KeepAlive: true})

	h.tick(1)
	assert.NoError(t, s.Step())
	assert.NoError(t, s.Step())
	assert.True(t, s.Kernel().Halted())
}

func TestParseWorkloadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown kind", "[[thread]]\nname = \"x\"\npriority = 9\nkind = \"dance\"\n", `unknown kind "dance"`},
		{"low priority", "[[thread]]\nname = \"x\"\npriority = 1\nkind = \"spin\"\n", "below the lowest thread priority"},
		{"duplicate", "[[thread]]\nname = \"x\"\npriority = 9\nkind = \"spin\"\n[[thread]]\nname = \"x\"\npriority = 9\nkind = \"spin\"\n", "duplicate name"},
		{"unknown key", "[kernel]\nmodle = \"full\"\n", "unknown key"},
		{"model", "[kernel]\nmodel = \"quantum\"\n", "unknown priority model"},
		{"adc channels", "[[thread]]\nname = \"x\"\npriority = 9\nkind = \"adc\"\n", "no channels"},
		{"syntax", "[kernel\n", "workload:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWorkload(tt.doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWorkloadKeepsDefaults(t *testing.T) {
	w, err := ParseWorkload(`
[monitor]
enabled = false

[[thread]]
name = "a"
priority = 10
kind = "spin"
`)
	require.NoError(t, err)
	def := workloadDefaults()
	assert.Equal(t, def.Kernel, w.Kernel)
	assert.Equal(t, def.Log, w.Log)
	assert.False(t, w.Monitor.Enabled)
	assert.Equal(t, def.Monitor.Period, w.Monitor.Period)
	require.Len(t, w.Threads, 1)

	h := newTestHAL()
	s := boot(t, h, w, Options{})
	assert.Equal(t, "full", s.Machine().Config().Model.String())
	assert.Equal(t, def.Kernel.TimeQuantum, s.Kernel().Config().TimeQuantum)
	assert.True(t, s.Kernel().Config().Checks)
}

func TestLoadWorkloadMissingFile(t *testing.T) {
	_, err := LoadWorkload(filepath.Join(t.TempDir(), "none.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workload:")
}

func TestLoadWorkloadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[kernel]
model = "simplified"
time_quantum = 2

[[thread]]
name = "a"
priority = 10
kind = "spin"
work = 1
period = 2
`), 0o644))

	w, err := LoadWorkload(path)
	require.NoError(t, err)
	assert.Equal(t, "simplified", w.Kernel.Model)
	assert.Equal(t, uint32(2), w.Kernel.TimeQuantum)
	assert.True(t, w.Kernel.Checks)
	assert.Equal(t, 64, w.Kernel.TraceBuffer)
	assert.Equal(t, workloadDefaults().Log, w.Log)
	assert.Equal(t, workloadDefaults().Monitor, w.Monitor)
	require.Len(t, w.Threads, 1)
	assert.Equal(t, uint32(2), w.Threads[0].Period)

	h := newTestHAL()
	s := boot(t, h, w, Options{})
	assert.Equal(t, "simplified", s.Machine().Config().Model.String())
	h.tick(10)
	require.NoError(t, s.Step())
}
