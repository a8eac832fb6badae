package render

import (
	"errors"
	"image"
	"image/jpeg"
	"io"
	"sync"

	"github.com/courtvision/analysis-client/internal/domain/port"
	xdraw "golang.org/x/image/draw"
)

var ErrEmptyCanvas = errors.New("canvas has no frame")

// Canvas is an in-memory surface. Every Draw resizes it to the incoming
// image's native dimensions and replaces the previous frame.
type Canvas struct {
	mu    sync.RWMutex
	frame *image.RGBA
	draws int
}

var _ port.Surface = (*Canvas)(nil)

func NewCanvas() *Canvas {
	return &Canvas{}
}

func (c *Canvas) Draw(img image.Image) error {
	b := img.Bounds()
	frame := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Copy(frame, image.Point{}, img, b, xdraw.Src, nil)

	c.mu.Lock()
	c.frame = frame
	c.draws++
	c.mu.Unlock()
	return nil
}

func (c *Canvas) Frame() (*image.RGBA, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame, c.draws
}

func (c *Canvas) WriteJPEG(w io.Writer, quality int) error {
	frame, _ := c.Frame()
	if frame == nil {
		return ErrEmptyCanvas
	}
	return jpeg.Encode(w, frame, &jpeg.Options{Quality: quality})
}

// Multi draws to every surface in order and reports the first error.
type Multi []port.Surface

func (m Multi) Draw(img image.Image) error {
	var first error
	for _, s := range m {
		if err := s.Draw(img); err != nil && first == nil {
			first = err
		}
	}
	return first
}
