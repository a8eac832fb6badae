package render

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/courtvision/analysis-client/internal/domain/port"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	hudBackground = color.RGBA{A: 160}
	hudText       = color.RGBA{R: 255, G: 220, B: 0, A: 255}
)

const (
	hudPadding    = 4
	hudLineHeight = 15
)

// HUD stamps the current status lines onto every frame before passing it on.
type HUD struct {
	inner port.Surface
	mu    sync.Mutex
	lines []string
}

func NewHUD(inner port.Surface) *HUD {
	return &HUD{inner: inner}
}

func (h *HUD) SetLines(lines ...string) {
	h.mu.Lock()
	h.lines = append(h.lines[:0], lines...)
	h.mu.Unlock()
}

func (h *HUD) Draw(img image.Image) error {
	h.mu.Lock()
	lines := append([]string(nil), h.lines...)
	h.mu.Unlock()

	if len(lines) == 0 {
		return h.inner.Draw(img)
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Copy(dst, image.Point{}, img, b, xdraw.Src, nil)
	drawText(dst, lines)
	return h.inner.Draw(dst)
}

func drawText(dst *image.RGBA, lines []string) {
	face := basicfont.Face7x13
	width := 0
	for _, l := range lines {
		width = max(width, font.MeasureString(face, l).Ceil())
	}
	box := image.Rect(0, 0, width+2*hudPadding, len(lines)*hudLineHeight+2*hudPadding).Intersect(dst.Bounds())
	draw.Draw(dst, box, image.NewUniform(hudBackground), image.Point{}, draw.Over)

	d := &font.Drawer{Dst: dst, Src: image.NewUniform(hudText), Face: face}
	for i, l := range lines {
		d.Dot = fixed.P(hudPadding, hudPadding+(i+1)*hudLineHeight-3)
		d.DrawString(l)
	}
}
