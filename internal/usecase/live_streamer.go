package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/courtvision/analysis-client/internal/infra/metrics"
	"go.uber.org/zap"
)

type LiveState string

const (
	LiveIdle      LiveState = "idle"
	LiveStreaming LiveState = "streaming"
	LiveStopped   LiveState = "stopped"
	LiveError     LiveState = "error"
)

// Captioner is implemented by displays that can overlay status text.
type Captioner interface {
	SetLines(lines ...string)
}

type LiveConfig struct {
	URL string
	FPS int
}

type LiveStatus struct {
	State    LiveState
	FPS      int
	Sent     int64
	Dropped  int64
	Received int64
	Notice   string
	Err      error
}

// LiveStreamer sends camera frames to the live analysis socket and displays
// the latest result. Frames that cannot be written immediately are dropped;
// nothing is ever queued.
type LiveStreamer struct {
	camera  port.Camera
	dialer  port.SocketDialer
	codec   port.FrameCodec
	display port.Surface
	cfg     LiveConfig
	logger  *zap.Logger

	mu     sync.Mutex
	state  LiveState
	notice string
	err    error
	run    *liveRun
	latest *entity.LiveAnalysisFrameResult
}

type liveRun struct {
	src      port.FrameSource
	sock     port.Socket
	open     atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	fps      fpsMeter

	sent, dropped, received atomic.Int64
}

func NewLiveStreamer(camera port.Camera, dialer port.SocketDialer, codec port.FrameCodec, display port.Surface, cfg LiveConfig, logger *zap.Logger) *LiveStreamer {
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	return &LiveStreamer{
		camera:  camera,
		dialer:  dialer,
		codec:   codec,
		display: display,
		cfg:     cfg,
		logger:  logger.With(zap.String("stream", metrics.StreamLive)),
		state:   LiveIdle,
	}
}

// Start opens the camera, then the socket. A camera failure never opens the
// socket.
func (l *LiveStreamer) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.run != nil {
		l.mu.Unlock()
		return entity.ErrStreamerRunning
	}
	l.mu.Unlock()

	src, err := l.camera.Open(ctx)
	if err != nil {
		l.fail(fmt.Errorf("open camera: %w", err))
		return err
	}

	sock, err := l.dialer.Dial(ctx, l.cfg.URL)
	if err != nil {
		_ = src.Stop()
		metrics.SocketErrorsTotal.WithLabelValues(metrics.StreamLive).Inc()
		l.fail(err)
		return err
	}

	run := &liveRun{src: src, sock: sock, stop: make(chan struct{})}
	run.open.Store(true)

	l.mu.Lock()
	if l.run != nil {
		l.mu.Unlock()
		_ = src.Stop()
		_ = sock.Close()
		return entity.ErrStreamerRunning
	}
	l.run = run
	l.state = LiveStreaming
	l.notice, l.err, l.latest = "", nil, nil
	l.mu.Unlock()

	run.wg.Add(2)
	go l.captureLoop(run)
	go l.receiveLoop(run)
	l.logger.Info("live capture started", zap.String("url", l.cfg.URL), zap.Int("fps", l.cfg.FPS))
	return nil
}

// Stop releases the camera and then closes the socket. It is safe to call at
// any time, any number of times.
func (l *LiveStreamer) Stop() error {
	l.mu.Lock()
	run := l.run
	l.run = nil
	if run != nil && l.state == LiveStreaming {
		l.state = LiveStopped
	}
	l.mu.Unlock()
	if run == nil {
		return nil
	}

	var errs []error
	run.stopOnce.Do(func() {
		close(run.stop)
		run.open.Store(false)
		if err := run.src.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop camera: %w", err))
		}
		if err := run.sock.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close socket: %w", err))
		}
	})
	run.wg.Wait()
	metrics.LiveFPS.Set(0)
	l.logger.Info("live capture stopped", zap.Int64("sent", run.sent.Load()), zap.Int64("dropped", run.dropped.Load()))
	return errors.Join(errs...)
}

func (l *LiveStreamer) Status() LiveStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := LiveStatus{State: l.state, Notice: l.notice, Err: l.err}
	if l.run != nil {
		st.FPS = l.run.fps.Rate(time.Now())
		st.Sent = l.run.sent.Load()
		st.Dropped = l.run.dropped.Load()
		st.Received = l.run.received.Load()
	}
	return st
}

// Latest returns the most recent server result, or nil.
func (l *LiveStreamer) Latest() *entity.LiveAnalysisFrameResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest
}

func (l *LiveStreamer) fail(err error) {
	l.mu.Lock()
	l.state = LiveError
	l.err = err
	l.notice = entity.UserMessage(err)
	l.mu.Unlock()
	l.logger.Error("live capture failed", zap.Error(err))
}

func (l *LiveStreamer) captureLoop(run *liveRun) {
	defer run.wg.Done()
	ticker := time.NewTicker(time.Second / time.Duration(l.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-run.stop:
			return
		case <-ticker.C:
		}

		if !run.src.Active() {
			select {
			case <-run.stop:
				return
			default:
			}
			l.fail(entity.ErrCameraUnavailable)
			go l.Stop()
			return
		}
		l.sendFrame(run)
	}
}

func (l *LiveStreamer) sendFrame(run *liveRun) {
	if !run.open.Load() {
		run.dropped.Add(1)
		metrics.StreamFramesTotal.WithLabelValues(metrics.StreamLive, metrics.OutcomeDropped).Inc()
		return
	}
	img, err := run.src.CurrentFrame()
	if err != nil {
		if !errors.Is(err, entity.ErrNoFrame) {
			l.logger.Debug("camera frame unavailable", zap.Error(err))
		}
		return
	}
	payload, err := l.codec.EncodeDataURL(img)
	if err != nil {
		l.logger.Warn("frame encode failed", zap.Error(err))
		return
	}
	if err := run.sock.WriteMessage([]byte(payload)); err != nil {
		run.dropped.Add(1)
		metrics.StreamFramesTotal.WithLabelValues(metrics.StreamLive, metrics.OutcomeDropped).Inc()
		l.socketFailed(run, err)
		return
	}
	run.sent.Add(1)
	metrics.StreamFramesTotal.WithLabelValues(metrics.StreamLive, metrics.OutcomeSent).Inc()
	metrics.LiveFPS.Set(float64(run.fps.Mark(time.Now())))
}

func (l *LiveStreamer) receiveLoop(run *liveRun) {
	defer run.wg.Done()
	for {
		data, err := run.sock.ReadMessage()
		if err != nil {
			select {
			case <-run.stop:
			default:
				if !errors.Is(err, io.EOF) {
					l.socketFailed(run, err)
				} else {
					run.open.Store(false)
				}
			}
			return
		}

		res, err := entity.ParseLiveResult(data)
		if err != nil {
			l.logger.Debug("live message ignored", zap.Error(err))
			continue
		}
		res.ReceivedAt = time.Now()
		l.show(run, res)
		run.received.Add(1)
	}
}

func (l *LiveStreamer) show(run *liveRun, res *entity.LiveAnalysisFrameResult) {
	l.mu.Lock()
	if l.run != run {
		l.mu.Unlock()
		return
	}
	l.latest = res
	l.mu.Unlock()

	if c, ok := l.display.(Captioner); ok {
		c.SetLines(
			fmt.Sprintf("%s %.0f%%", res.Action.Label, res.Action.Confidence*100),
			fmt.Sprintf("score %.2f  %d fps", res.Metrics.OverallScore, run.fps.Rate(time.Now())),
		)
	}
	if res.AnnotatedFrame == "" {
		return
	}
	img, err := l.codec.Decode(res.AnnotatedFrame, entity.FrameFormatJPEG)
	if err != nil {
		l.logger.Debug("annotated frame undecodable", zap.Error(err))
		return
	}
	if err := l.display.Draw(img); err != nil {
		l.logger.Warn("live draw failed", zap.Error(err))
	}
}

// socketFailed disables sending; the camera keeps running so the caller can
// decide whether to stop.
func (l *LiveStreamer) socketFailed(run *liveRun, err error) {
	if !run.open.Swap(false) {
		return
	}
	metrics.SocketErrorsTotal.WithLabelValues(metrics.StreamLive).Inc()
	l.logger.Warn("live socket error", zap.Error(err))
	l.mu.Lock()
	if l.run == run {
		l.notice = entity.UserMessage(&entity.SocketError{Endpoint: l.cfg.URL, Err: err})
	}
	l.mu.Unlock()
}

// fpsMeter counts frames sent within the trailing second.
type fpsMeter struct {
	mu    sync.Mutex
	marks []time.Time
}

func (m *fpsMeter) Mark(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks = append(m.prune(now), now)
	return len(m.marks)
}

func (m *fpsMeter) Rate(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks = m.prune(now)
	return len(m.marks)
}

func (m *fpsMeter) prune(now time.Time) []time.Time {
	cutoff := now.Add(-time.Second)
	i := 0
	for i < len(m.marks) && !m.marks[i].After(cutoff) {
		i++
	}
	return m.marks[i:]
}
