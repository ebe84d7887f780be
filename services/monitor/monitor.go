// Package monitor shows the thread registry and the most recent trace
// records on the board display and in the log.
package monitor

import (
	"fmt"

	"ember/hal"
	"ember/internal/buildinfo"
	"ember/kernel"

	"github.com/joeycumines/logiface"
)

// Config tunes the monitor thread.
type Config struct {
	// Period is the refresh interval in ticks.
	Period   kernel.Timeout
	Priority kernel.Priority
	// LogEvery logs the registry on every n-th refresh. Zero never logs.
	LogEvery uint32
	Logger   *logiface.Logger[logiface.Event]
	// Console, if set, is shown below the registry.
	Console *Console
}

// DefaultConfig returns the usual monitor configuration.
func DefaultConfig() Config {
	return Config{
		Period:   50,
		Priority: kernel.LowPriority + 2,
		LogEvery: 10,
	}
}

// Monitor renders kernel state.
type Monitor struct {
	k      *kernel.Kernel
	fb     hal.Framebuffer
	disp   hal.FramebufferDisplayer
	text   *Text
	full   *Text
	split  int
	cfg    Config
	frames uint32
}

// New returns a monitor drawing into fb. A nil fb only logs.
func New(k *kernel.Kernel, fb hal.Framebuffer, cfg Config) *Monitor {
	if cfg.Period == kernel.Immediate {
		cfg.Period = DefaultConfig().Period
	}
	m := &Monitor{k: k, fb: fb, cfg: cfg}
	if fb != nil {
		m.disp = hal.FramebufferDisplayer{FB: fb}
		m.text = NewText(m.disp)
		m.full = NewText(m.disp)
		if c := cfg.Console; c != nil {
			m.split = m.text.Rows() - c.Rows() - 1
			m.text.Clip(m.split)
		}
	}
	return m
}

// Frames returns the number of refreshes so far.
func (m *Monitor) Frames() uint32 { return m.frames }

// Start creates the monitor thread. It must be called from a thread.
func (m *Monitor) Start() (kernel.ThreadID, error) {
	id, err := m.k.CreateThread(kernel.ThreadConfig{
		Name:     "monitor",
		Priority: m.cfg.Priority,
		Entry:    m.run,
	})
	if err != nil {
		return kernel.NoThread, fmt.Errorf("monitor: %w", err)
	}
	return id, nil
}

func (m *Monitor) run(any) {
	for {
		if err := m.Refresh(); err != nil {
			m.cfg.Logger.Err().Err(err).Log("monitor refresh failed")
		}
		m.k.Sleep(m.cfg.Period)
	}
}

// Refresh takes a snapshot of the registry and the trace buffer, draws it
// and presents the frame.
func (m *Monitor) Refresh() error {
	k := m.k
	k.Lock()
	now := k.Now()
	threads := k.Threads()
	trace := k.Trace()
	k.Unlock()

	m.frames++
	if m.cfg.LogEvery != 0 && m.frames%m.cfg.LogEvery == 0 {
		m.logRegistry(now, threads)
	}
	if m.fb == nil {
		return nil
	}

	m.fb.ClearRGB(0x10, 0x10, 0x18)
	m.text.Line(0, fmt.Sprintf("ember %s  tick %d", buildinfo.Short(), now), Highlight)
	row := m.text.Wrap(1, Registry(threads), Foreground)

	if free := m.text.Rows() - row - 1; free > 0 && len(trace) > 0 {
		m.text.Line(row, "trace", Highlight)
		if len(trace) > free {
			trace = trace[len(trace)-free:]
		}
		m.text.Wrap(row+1, TraceLines(trace), Foreground)
	}
	if c := m.cfg.Console; c != nil && m.split > 0 {
		m.full.Line(m.split, "console", Highlight)
		c.DrawTo(m.disp, int16(m.split+1)*m.full.LineHeight())
	}
	return m.fb.Present()
}

func (m *Monitor) logRegistry(now kernel.Tick, threads []kernel.ThreadInfo) {
	l := m.cfg.Logger
	l.Info().
		Uint64("tick", uint64(now)).
		Int("threads", len(threads)).
		Log("thread registry")
	for _, t := range threads {
		l.Debug().
			Int("id", int(t.ID)).
			Str("name", t.Name).
			Stringer("state", t.State).
			Int("prio", int(t.Priority)).
			Int("base", int(t.BasePriority)).
			Uint64("ticks", t.Ticks).
			Uint64("switches", t.Switches).
			Uint64("stack_free", uint64(t.StackUnused)).
			Log("thread")
	}
}

// Registry formats one row per thread under a header.
func Registry(threads []kernel.ThreadInfo) []string {
	lines := make([]string, 0, len(threads)+1)
	lines = append(lines, "ID NAME     STATE    PRI BASE  FREE")
	for _, t := range threads {
		lines = append(lines, fmt.Sprintf("%2d %-8.8s %-8s %3d %4d %5d",
			t.ID, t.Name, t.State, t.Priority, t.BasePriority, t.StackUnused))
	}
	return lines
}

// TraceLines formats trace records, oldest first.
func TraceLines(events []kernel.TraceEvent) []string {
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		var detail string
		switch ev.Kind {
		case kernel.TraceSwitch, kernel.TraceReady:
			detail = fmt.Sprintf("t%d %s", ev.Thread, ev.State)
		case kernel.TraceUser:
			detail = fmt.Sprintf("%s=%d", ev.Name, ev.Value)
		default:
			detail = ev.Name
		}
		lines = append(lines, fmt.Sprintf("%6d %-6s %s", ev.Time, ev.Kind, detail))
	}
	return lines
}
