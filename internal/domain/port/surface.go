package port

import (
	"image"

	"github.com/courtvision/analysis-client/internal/domain/entity"
)

// Surface is a drawable target. Draw replaces whatever was shown before.
type Surface interface {
	Draw(img image.Image) error
}

// FrameCodec converts between wire-format frames and images.
type FrameCodec interface {
	Decode(data string, format entity.FrameFormat) (image.Image, error)
	EncodeDataURL(img image.Image) (string, error)
}

// RecordingSurface keeps every drawn frame and lists where they were stored.
type RecordingSurface interface {
	Surface
	Paths() []string
}
