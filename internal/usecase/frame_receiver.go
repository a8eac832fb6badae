package usecase

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/courtvision/analysis-client/internal/infra/metrics"
	"go.uber.org/zap"
)

type ReceiverState string

const (
	ReceiverDisconnected ReceiverState = "disconnected"
	ReceiverConnecting   ReceiverState = "connecting"
	ReceiverConnected    ReceiverState = "connected"
)

type StreamEventKind int

const (
	StreamConnected StreamEventKind = iota + 1
	StreamFrameReceived
	StreamErrored
	StreamClosed
)

// StreamEvent is one thing that happened on a recorded-stream socket.
type StreamEvent struct {
	Kind    StreamEventKind
	Payload []byte
	Err     error
}

// ReceiverStatus is the observable state of a FrameReceiver.
type ReceiverStatus struct {
	State   ReceiverState
	VideoID string
	Drawn   int
	Ignored int
	// Notice is the non-fatal message shown after a socket error.
	Notice string
}

// TransitionStream applies ev to s. It returns the frame to draw, if any.
// Frames are only accepted while connected; anything that is not a valid
// frame message is counted and skipped.
func TransitionStream(s ReceiverStatus, ev StreamEvent) (ReceiverStatus, *entity.FrameMessage) {
	switch ev.Kind {
	case StreamConnected:
		if s.State == ReceiverConnecting {
			s.State = ReceiverConnected
			s.Notice = ""
		}
	case StreamFrameReceived:
		if s.State != ReceiverConnected {
			return s, nil
		}
		msg, ok := entity.ParseFrameMessage(ev.Payload)
		if !ok {
			s.Ignored++
			return s, nil
		}
		s.Drawn++
		return s, &msg
	case StreamErrored:
		if s.State != ReceiverDisconnected {
			s.State = ReceiverDisconnected
			s.Notice = entity.UserMessage(&entity.SocketError{Err: ev.Err})
		}
	case StreamClosed:
		s.State = ReceiverDisconnected
	}
	return s, nil
}

type FrameReceiverConfig struct {
	// StreamURL maps a job id to its recorded-stream socket URL.
	StreamURL func(videoID string) string
}

// FrameReceiver draws the annotated frames the server pushes for one job.
// Attaching is idempotent per job id; Detach closes the socket and no frame
// is drawn after it returns.
type FrameReceiver struct {
	dialer  port.SocketDialer
	codec   port.FrameCodec
	surface port.Surface
	cfg     FrameReceiverConfig
	logger  *zap.Logger

	mu     sync.Mutex
	status ReceiverStatus
	gen    uint64
	sock   port.Socket
	done   chan struct{}
}

func NewFrameReceiver(dialer port.SocketDialer, codec port.FrameCodec, surface port.Surface, cfg FrameReceiverConfig, logger *zap.Logger) *FrameReceiver {
	return &FrameReceiver{
		dialer:  dialer,
		codec:   codec,
		surface: surface,
		cfg:     cfg,
		logger:  logger,
		status:  ReceiverStatus{State: ReceiverDisconnected},
	}
}

func (r *FrameReceiver) Status() ReceiverStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Attach opens the stream for videoID. It is a no-op while a socket for the
// same id is connecting or connected, and replaces a stream for another id.
// Dial failures are returned as *entity.SocketError and only affect the
// visualization.
func (r *FrameReceiver) Attach(ctx context.Context, videoID string) error {
	r.mu.Lock()
	if r.status.VideoID == videoID && r.status.State != ReceiverDisconnected {
		r.mu.Unlock()
		return nil
	}
	prevSock, prevDone := r.resetLocked()
	r.gen++
	gen := r.gen
	r.status = ReceiverStatus{State: ReceiverConnecting, VideoID: videoID}
	r.mu.Unlock()
	closeAndWait(prevSock, prevDone)

	url := r.cfg.StreamURL(videoID)
	log := r.logger.With(zap.String("video_id", videoID), zap.String("url", url))

	sock, err := r.dialer.Dial(ctx, url)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		if sock != nil {
			_ = sock.Close()
		}
		return nil
	}
	if err != nil {
		metrics.SocketErrorsTotal.WithLabelValues(metrics.StreamRecorded).Inc()
		log.Warn("recorded stream unavailable", zap.Error(err))
		r.status, _ = TransitionStream(r.status, StreamEvent{Kind: StreamErrored, Err: err})
		var sockErr *entity.SocketError
		if !errors.As(err, &sockErr) {
			err = &entity.SocketError{Endpoint: url, Err: err}
		}
		return err
	}

	r.status, _ = TransitionStream(r.status, StreamEvent{Kind: StreamConnected})
	r.sock = sock
	r.done = make(chan struct{})
	go r.readLoop(gen, sock, r.done, log)
	log.Debug("recorded stream attached")
	return nil
}

// Detach closes the current stream, if any, and waits for its reader to stop.
func (r *FrameReceiver) Detach() {
	r.mu.Lock()
	r.detachLocked()
}

// DetachVideo is Detach limited to the stream of videoID; a stream for any
// other id is left alone.
func (r *FrameReceiver) DetachVideo(videoID string) {
	r.mu.Lock()
	if r.status.VideoID != videoID {
		r.mu.Unlock()
		return
	}
	r.detachLocked()
}

// detachLocked is entered with r.mu held and releases it.
func (r *FrameReceiver) detachLocked() {
	sock, done := r.resetLocked()
	r.gen++
	r.status.State = ReceiverDisconnected
	r.mu.Unlock()
	closeAndWait(sock, done)
}

// Wait blocks until the current stream ends or ctx is done.
func (r *FrameReceiver) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *FrameReceiver) resetLocked() (port.Socket, chan struct{}) {
	sock, done := r.sock, r.done
	r.sock, r.done = nil, nil
	return sock, done
}

func closeAndWait(sock port.Socket, done chan struct{}) {
	if sock == nil {
		return
	}
	_ = sock.Close()
	if done != nil {
		<-done
	}
}

func (r *FrameReceiver) readLoop(gen uint64, sock port.Socket, done chan struct{}, log *zap.Logger) {
	defer close(done)
	for {
		data, err := sock.ReadMessage()

		r.mu.Lock()
		if r.gen != gen {
			r.mu.Unlock()
			return
		}
		if err != nil {
			ev := StreamEvent{Kind: StreamClosed}
			if !errors.Is(err, io.EOF) {
				ev = StreamEvent{Kind: StreamErrored, Err: err}
				metrics.SocketErrorsTotal.WithLabelValues(metrics.StreamRecorded).Inc()
				log.Warn("recorded stream error", zap.Error(err))
			} else {
				log.Debug("recorded stream closed by server", zap.Int("frames", r.status.Drawn))
			}
			r.status, _ = TransitionStream(r.status, ev)
			r.sock = nil
			r.mu.Unlock()
			_ = sock.Close()
			return
		}

		var frame *entity.FrameMessage
		r.status, frame = TransitionStream(r.status, StreamEvent{Kind: StreamFrameReceived, Payload: data})
		if frame == nil {
			metrics.StreamFramesTotal.WithLabelValues(metrics.StreamRecorded, metrics.OutcomeIgnored).Inc()
			r.mu.Unlock()
			continue
		}
		r.drawLocked(frame, log)
		r.mu.Unlock()
	}
}

// drawLocked runs under r.mu so that Detach cannot return while a draw is in
// progress.
func (r *FrameReceiver) drawLocked(frame *entity.FrameMessage, log *zap.Logger) {
	img, err := r.codec.Decode(frame.Data, frame.Format)
	if err != nil {
		r.status.Drawn--
		r.status.Ignored++
		metrics.StreamFramesTotal.WithLabelValues(metrics.StreamRecorded, metrics.OutcomeIgnored).Inc()
		log.Debug("undecodable frame skipped", zap.Error(err))
		return
	}
	if err := r.surface.Draw(img); err != nil {
		log.Warn("frame draw failed", zap.Error(err))
		return
	}
	metrics.StreamFramesTotal.WithLabelValues(metrics.StreamRecorded, metrics.OutcomeDrawn).Inc()
}
