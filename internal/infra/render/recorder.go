package render

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
)

// Recorder writes every drawn frame to dir as a numbered JPEG.
type Recorder struct {
	dir     string
	quality int
	mu      sync.Mutex
	paths   []string
}

func NewRecorder(dir string, quality int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recorder dir: %w", err)
	}
	return &Recorder{dir: dir, quality: min(max(quality, 1), 100)}, nil
}

func (r *Recorder) Draw(img image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.dir, fmt.Sprintf("frame_%05d.jpg", len(r.paths)+1))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: r.quality}); err != nil {
		f.Close()
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	r.paths = append(r.paths, path)
	return nil
}

func (r *Recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}
