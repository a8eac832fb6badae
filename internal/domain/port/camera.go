package port

import (
	"context"
	"image"
)

// Camera grants access to a capture device. Open fails with
// entity.ErrCameraDenied or entity.ErrCameraUnavailable before any frame is
// produced.
type Camera interface {
	Open(ctx context.Context) (FrameSource, error)
}

// FrameSource yields the most recent captured frame. Stop releases the device
// and is safe to call more than once.
type FrameSource interface {
	CurrentFrame() (image.Image, error)
	Active() bool
	Stop() error
}
