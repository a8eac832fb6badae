package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"go.uber.org/zap"
)

const (
	maxFrameBytes     = 8 << 20
	defaultFirstFrame = 5 * time.Second
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

type CameraConfig struct {
	Device      string
	InputFormat string
	FPS         int
	// FirstFrameTimeout bounds how long Open waits for the device to deliver
	// its first frame.
	FirstFrameTimeout time.Duration
}

// Camera captures from a local device by piping ffmpeg's MJPEG output.
type Camera struct {
	cfg    CameraConfig
	bin    string
	logger *zap.Logger
}

var _ port.Camera = (*Camera)(nil)

func NewCamera(cfg CameraConfig, logger *zap.Logger) *Camera {
	if cfg.FirstFrameTimeout <= 0 {
		cfg.FirstFrameTimeout = defaultFirstFrame
	}
	return &Camera{cfg: cfg, bin: "ffmpeg", logger: logger}
}

func (c *Camera) Open(ctx context.Context) (port.FrameSource, error) {
	if err := checkDevice(c.cfg.Device); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(c.bin); err != nil {
		return nil, fmt.Errorf("%w: %s not found", entity.ErrCameraUnavailable, c.bin)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if c.cfg.InputFormat != "" {
		args = append(args, "-f", c.cfg.InputFormat)
	}
	if c.cfg.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(c.cfg.FPS))
	}
	args = append(args, "-i", c.cfg.Device, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-")

	cmd := exec.Command(c.bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("camera stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrCameraUnavailable, err)
	}

	s := newCaptureSession(cmd, c.logger)
	go s.read(stdout, &stderr)

	timer := time.NewTimer(c.cfg.FirstFrameTimeout)
	defer timer.Stop()
	select {
	case <-s.firstFrame:
		c.logger.Info("camera opened", zap.String("device", c.cfg.Device))
		return s, nil
	case <-s.done:
		return nil, classifyCaptureFailure(s.exitErr, stderr.String())
	case <-timer.C:
		_ = s.Stop()
		return nil, fmt.Errorf("%w: no frame within %s", entity.ErrCameraUnavailable, c.cfg.FirstFrameTimeout)
	case <-ctx.Done():
		_ = s.Stop()
		return nil, ctx.Err()
	}
}

func checkDevice(device string) error {
	if device == "" {
		return fmt.Errorf("%w: no device configured", entity.ErrCameraUnavailable)
	}
	if !strings.HasPrefix(device, "/dev/") {
		return nil
	}
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	switch {
	case err == nil:
		return f.Close()
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s", entity.ErrCameraDenied, device)
	default:
		return fmt.Errorf("%w: %v", entity.ErrCameraUnavailable, err)
	}
}

func classifyCaptureFailure(exitErr error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	if strings.Contains(strings.ToLower(msg), "permission denied") {
		return fmt.Errorf("%w: %s", entity.ErrCameraDenied, msg)
	}
	if msg == "" && exitErr != nil {
		msg = exitErr.Error()
	}
	return fmt.Errorf("%w: %s", entity.ErrCameraUnavailable, msg)
}

type captureSession struct {
	cmd    *exec.Cmd
	logger *zap.Logger

	mu     sync.RWMutex
	latest []byte

	active     atomic.Bool
	firstOnce  sync.Once
	firstFrame chan struct{}
	done       chan struct{}
	exitErr    error
	stopOnce   sync.Once
}

func newCaptureSession(cmd *exec.Cmd, logger *zap.Logger) *captureSession {
	s := &captureSession{
		cmd:        cmd,
		logger:     logger,
		firstFrame: make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.active.Store(true)
	return s
}

func (s *captureSession) read(r io.Reader, stderr *bytes.Buffer) {
	defer close(s.done)
	defer s.active.Store(false)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxFrameBytes)
	sc.Split(splitJPEG)
	for sc.Scan() {
		frame := append([]byte(nil), sc.Bytes()...)
		s.mu.Lock()
		s.latest = frame
		s.mu.Unlock()
		s.firstOnce.Do(func() { close(s.firstFrame) })
	}
	if err := sc.Err(); err != nil {
		s.logger.Warn("camera stream read failed", zap.Error(err))
	}
	s.exitErr = s.cmd.Wait()
}

func (s *captureSession) CurrentFrame() (image.Image, error) {
	s.mu.RLock()
	frame := s.latest
	s.mu.RUnlock()
	if frame == nil {
		return nil, entity.ErrNoFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode camera frame: %w", err)
	}
	return img, nil
}

func (s *captureSession) Active() bool {
	return s.active.Load()
}

func (s *captureSession) Stop() error {
	s.stopOnce.Do(func() {
		s.active.Store(false)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-s.done
	})
	return nil
}

// splitJPEG is a bufio.SplitFunc yielding complete SOI..EOI JPEG images from
// a concatenated MJPEG stream. Bytes outside an image are discarded.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	soi := bytes.Index(data, jpegSOI)
	if soi < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return max(len(data)-1, 0), nil, nil
	}
	eoi := bytes.Index(data[soi+len(jpegSOI):], jpegEOI)
	if eoi < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return soi, nil, nil
	}
	end := soi + len(jpegSOI) + eoi + len(jpegEOI)
	return end, data[soi:end], nil
}
