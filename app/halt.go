package app

import (
	"fmt"
	"image/color"
	"strings"

	"ember/hal"
	"ember/kernel"
	"ember/services/monitor"
)

var haltBackground = color.RGBA{R: 0x80, A: 255}

// haltScreen dumps the halt diagnostic to the board logger and paints it on
// the display. It runs once, on the context that halted.
func (s *System) haltScreen(info kernel.HaltInfo) {
	lines := []string{
		"Ember halted:",
		"reason: " + info.Reason,
		fmt.Sprintf("vector: %s", info.Vector),
		fmt.Sprintf("thread: %s (%d)", info.ThreadName, info.Thread),
		fmt.Sprintf("tick: %d", info.Time),
	}
	var stack []string
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line != "" {
			stack = append(stack, line)
		}
	}

	if l := s.h.Logger(); l != nil {
		for _, line := range lines {
			l.WriteLineString(line)
		}
		for _, line := range stack {
			l.WriteLineString(line)
		}
	}

	fb := framebuffer(s.h)
	if fb == nil {
		return
	}
	d := hal.FramebufferDisplayer{FB: fb}
	w, h := d.Size()
	d.FillRect(0, 0, w, h, haltBackground)
	text := monitor.NewText(d)
	row := text.Wrap(0, lines, monitor.Highlight)
	if len(stack) > 0 {
		text.Wrap(row+1, append([]string{"stack:"}, stack...), monitor.Foreground)
	} else {
		text.Line(row+1, "stack: unavailable", monitor.Foreground)
	}
	_ = d.Display()
}
