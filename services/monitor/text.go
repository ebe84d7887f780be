package monitor

import (
	"image/color"
	"strings"
	"unicode/utf8"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

var (
	Foreground = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 255}
	Highlight  = color.RGBA{R: 0xff, G: 0xc0, B: 0x40, A: 255}
)

// Text lays out monospace lines on a display.
type Text struct {
	d      drivers.Displayer
	font   tinyfont.Fonter
	width  int16
	height int16
	offset int16
	cols   int16
	rows   int16
}

// systemFont returns the monospace font shared by the text layer and the
// console, with its cell width, line height and baseline offset.
func systemFont() (font *tinyfont.Font, width, height, offset int16) {
	font = &proggy.TinySZ8pt7b
	_, outbox := tinyfont.LineWidth(font, "0")
	width = int16(outbox)
	height = int16(font.GetYAdvance())
	offset = -int16(font.GetGlyph('M').Info().YOffset)
	if width <= 0 {
		width = 6
	}
	if height <= 0 {
		height = 8
	}
	return font, width, height, offset
}

// NewText returns a text layer over d using the system font.
func NewText(d drivers.Displayer) *Text {
	font, width, height, offset := systemFont()
	t := &Text{
		d:      d,
		font:   font,
		width:  width,
		height: height,
		offset: offset,
	}
	w, h := d.Size()
	t.cols = w / t.width
	t.rows = h / t.height
	return t
}

// Clip limits the layer to its first rows rows.
func (t *Text) Clip(rows int) {
	if rows >= 0 && int16(rows) < t.rows {
		t.rows = int16(rows)
	}
}

// LineHeight returns the height of a row in pixels.
func (t *Text) LineHeight() int16 { return t.height }

// Cols returns the number of characters per row.
func (t *Text) Cols() int { return int(t.cols) }

// Rows returns the number of rows that fit.
func (t *Text) Rows() int { return int(t.rows) }

// Line draws s on row, cut to the row width.
func (t *Text) Line(row int, s string, fg color.RGBA) {
	if row < 0 || int16(row) >= t.rows {
		return
	}
	chunk, _ := takeRunes(s, t.cols)
	t.draw(int16(row)*t.height, chunk, fg)
}

// Wrap draws lines from row on, wrapping long ones, and returns the next
// free row.
func (t *Text) Wrap(row int, lines []string, fg color.RGBA) int {
	for _, line := range lines {
		for {
			if int16(row) >= t.rows {
				return row
			}
			chunk, rest := takeRunes(line, t.cols)
			t.draw(int16(row)*t.height, chunk, fg)
			row++
			line = strings.TrimLeft(rest, " ")
			if line == "" {
				break
			}
		}
	}
	return row
}

func (t *Text) draw(y int16, s string, fg color.RGBA) {
	x := int16(0)
	for _, r := range s {
		tinyfont.DrawChar(t.d, t.font, x, y+t.offset, r, fg)
		x += t.width
	}
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if int64(len(s)) <= int64(n) {
		return s, ""
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		i += size
		count++
	}
	if i >= len(s) {
		return s, ""
	}
	return s[:i], s[i:]
}
