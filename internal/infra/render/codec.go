package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	xdraw "golang.org/x/image/draw"
)

const jpegDataURLPrefix = "data:image/jpeg;base64,"

type Codec struct {
	quality  int
	maxWidth int
}

var _ port.FrameCodec = (*Codec)(nil)

// NewCodec encodes outbound frames as JPEG at quality (1..100), scaling them
// down to maxWidth when maxWidth > 0.
func NewCodec(quality, maxWidth int) *Codec {
	return &Codec{quality: min(max(quality, 1), 100), maxWidth: maxWidth}
}

func (c *Codec) Decode(data string, format entity.FrameFormat) (image.Image, error) {
	raw, err := decodeBase64(data)
	if err != nil {
		return nil, fmt.Errorf("decode frame base64: %w", err)
	}

	var img image.Image
	switch format {
	case entity.FrameFormatPNG:
		img, err = png.Decode(bytes.NewReader(raw))
	default:
		img, err = jpeg.Decode(bytes.NewReader(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", format, err)
	}
	return img, nil
}

func (c *Codec) EncodeDataURL(img image.Image) (string, error) {
	img = Downscale(img, c.maxWidth)

	var buf bytes.Buffer
	buf.WriteString(jpegDataURLPrefix)
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if err := jpeg.Encode(enc, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Downscale returns img unchanged when it already fits maxWidth.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := max(b.Dy()*maxWidth/b.Dx(), 1)
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func decodeBase64(data string) ([]byte, error) {
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	data = strings.TrimSpace(data)
	if raw, err := base64.StdEncoding.DecodeString(data); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
}
