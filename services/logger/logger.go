// Package logger is the structured log sink: logiface events encoded by
// stumpy as JSON lines and written to the board logger, either directly or
// through a low-priority logger thread.
package logger

import (
	"bytes"
	"fmt"

	"ember/hal"
	"ember/kernel"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Config configures the sink.
type Config struct {
	Level logiface.Level
	// QueueSize is the number of lines buffered for the logger thread.
	QueueSize int
	Priority  kernel.Priority
}

// DefaultConfig returns the usual logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:     logiface.LevelInformational,
		QueueSize: 32,
		Priority:  kernel.LowPriority + 1,
	}
}

// Service owns the board logger.
type Service struct {
	out     hal.Logger
	cfg     Config
	k       *kernel.Kernel
	mb      *kernel.Mailbox[[]byte]
	dropped uint32
	log     *logiface.Logger[logiface.Event]
}

// New returns a sink writing to out. Lines are written synchronously until
// Start moves them to the logger thread.
func New(out hal.Logger, cfg Config) *Service {
	s := &Service{out: out, cfg: cfg}
	s.log = stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(lineWriter{s}),
			stumpy.WithTimeField(``),
		),
		stumpy.L.WithModifier(stumpy.L.NewModifierFunc(s.stamp)),
		stumpy.L.WithLevel(cfg.Level),
	).Logger()
	return s
}

// Logger returns the structured logger backed by s.
func (s *Service) Logger() *logiface.Logger[logiface.Event] { return s.log }

// Dropped returns how many lines were lost to a full queue.
func (s *Service) Dropped() uint32 { return s.dropped }

// Start creates the logger thread on k. It must be called from a thread.
func (s *Service) Start(k *kernel.Kernel) error {
	if s.cfg.QueueSize <= 0 {
		s.k = k
		return nil
	}
	mb := kernel.NewMailbox[[]byte](k, s.cfg.QueueSize)
	_, err := k.CreateThread(kernel.ThreadConfig{
		Name:     "logger",
		Priority: s.cfg.Priority,
		Entry:    s.run,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	s.k, s.mb = k, mb
	return nil
}

func (s *Service) run(any) {
	for {
		line, r := s.mb.Fetch(kernel.Infinite)
		if r == kernel.ResultOK {
			s.out.WriteLineBytes(line)
		}
	}
}

func (s *Service) stamp(e *stumpy.Event) error {
	if s.k != nil {
		e.AddField("tick", uint64(s.k.Now()))
	}
	return nil
}

// write queues line for the logger thread when called from a thread with
// the critical section free. Anything else goes straight to the board.
func (s *Service) write(line []byte) {
	k := s.k
	if s.mb == nil || k.Halted() {
		s.out.WriteLineBytes(line)
		return
	}
	core := k.Core()
	if core.InISR() || core.Locked() {
		s.out.WriteLineBytes(line)
		return
	}
	if s.mb.Post(bytes.Clone(line), kernel.Immediate) != kernel.ResultOK {
		s.dropped++
	}
}

// lineWriter receives one encoded event per Write.
type lineWriter struct {
	s *Service
}

func (w lineWriter) Write(p []byte) (int, error) {
	w.s.write(bytes.TrimRight(p, "\n"))
	return len(p), nil
}

// ParseLevel maps a syslog keyword ("info", "debug", ...) to a level.
func ParseLevel(s string) (logiface.Level, error) {
	for l := logiface.LevelEmergency; l <= logiface.LevelTrace; l++ {
		if l.String() == s {
			return l, nil
		}
	}
	if s == "disabled" {
		return logiface.LevelDisabled, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("logger: unknown level %q", s)
}
