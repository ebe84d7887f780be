package monitor

import (
	"bytes"
	"image/color"

	"ember/hal"
	"ember/kernel"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyterm"
)

var consoleBackground = color.RGBA{A: 255}

// Console is a scrolling terminal panel. Threads write to it as an
// io.Writer; the monitor copies it to the bottom of the display on each
// refresh.
type Console struct {
	mu    kernel.Mutex
	band  *band
	term  *tinyterm.Terminal
	rows  int
	lines uint32
}

// NewConsole returns a console width pixels wide holding rows lines of the
// system font.
func NewConsole(k *kernel.Kernel, width, rows int) *Console {
	font, _, height, offset := systemFont()
	if rows <= 0 {
		rows = 1
	}
	b := newBand(int16(width), height*int16(rows))
	c := &Console{band: b, term: tinyterm.NewTerminal(b), rows: rows}
	k.InitMutex(&c.mu)
	c.term.Configure(&tinyterm.Config{
		Font:       font,
		FontHeight: height,
		FontOffset: offset,
	})
	return c
}

// Rows returns the number of text lines the panel shows.
func (c *Console) Rows() int { return c.rows }

// Lines returns the number of line feeds written so far.
func (c *Console) Lines() uint32 { return c.lines }

// Write draws p on the panel. It must be called from a thread.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.term.Write(p)
	c.lines += uint32(bytes.Count(p[:n], []byte{'\n'}))
	return n, err
}

// DrawTo copies the panel to d with its top edge at y0, oldest line first.
func (c *Console) DrawTo(d drivers.Displayer, y0 int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.band
	for r := int16(0); r < b.h; r++ {
		src := int(r+b.scroll) % int(b.h)
		row := b.pix[src*int(b.w) : (src+1)*int(b.w)]
		for x, px := range row {
			d.SetPixel(int16(x), y0+r, px)
		}
	}
}

// band is an off-screen pixel buffer with a hardware-style scroll offset:
// row 0 of the visible panel is row scroll of the buffer.
type band struct {
	w, h   int16
	pix    []color.RGBA
	scroll int16
}

func newBand(w, h int16) *band {
	b := &band{w: w, h: h, pix: make([]color.RGBA, int(w)*int(h))}
	for i := range b.pix {
		b.pix[i] = consoleBackground
	}
	return b
}

func (b *band) Size() (x, y int16) { return b.w, b.h }

func (b *band) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || x >= b.w || y < 0 || y >= b.h {
		return
	}
	b.pix[int(y)*int(b.w)+int(x)] = c
}

func (b *band) Display() error { return nil }

func (b *band) FillRectangle(x, y, w, h int16, c color.RGBA) error {
	for j := max(y, 0); j < min(y+h, b.h); j++ {
		for i := max(x, 0); i < min(x+w, b.w); i++ {
			b.pix[int(j)*int(b.w)+int(i)] = c
		}
	}
	return nil
}

func (b *band) SetScroll(line int16) {
	if b.h > 0 {
		b.scroll = ((line % b.h) + b.h) % b.h
	}
}

func (b *band) SetRotation(r drivers.Rotation) error {
	if r != drivers.Rotation0 {
		return hal.ErrNotImplemented
	}
	return nil
}
