//go:build !tinygo && cgo

package hal

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"time"

	"ember/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/sync/errgroup"
)

// RunWindow starts a desktop window that shows the framebuffer. It blocks
// until the window closes, step fails or input requests a quit. Ticks follow
// the wall clock at hz.
func RunWindow(newApp func(HAL) func() error, hz int, input io.Reader) error {
	h := newHost(os.Stdout, hz)
	step := newApp(h)

	parent, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(parent)
	if input != nil {
		g.Go(func() error { return pumpInput(ctx, input, h.serial) })
	}

	game := &hostGame{h: h, step: step, ctx: ctx}
	ebiten.SetWindowTitle("Ember (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	err := ebiten.RunGame(game)
	h.reportLost()
	if errors.Is(err, errClosed) {
		err = nil
	}
	cancel()
	if gerr := g.Wait(); gerr != nil && !errors.Is(gerr, context.Canceled) {
		return gerr
	}
	return err
}

var errClosed = errors.New("hal: window closed")

type hostGame struct {
	h       *hostHAL
	ctx     context.Context
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
	seen    uint64
	step    func() error
}

func (g *hostGame) Update() error {
	if g.ctx.Err() != nil {
		return errClosed
	}
	g.h.t.advance(time.Now())
	if g.step != nil {
		if err := g.step(); err != nil {
			return err
		}
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	if seen, changed := fb.snapshotRGB565(g.scratch, g.seen); changed {
		g.seen = seen
		src := g.scratch
		dst := g.img.Pix
		for i := 0; i+1 < len(src) && i/2*4+3 < len(dst); i += 2 {
			r, gg, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
			j := (i / 2) * 4
			dst[j+0] = r
			dst[j+1] = gg
			dst[j+2] = b
			dst[j+3] = 0xFF
		}
		g.fbImg.WritePixels(g.img.Pix)
	}
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
