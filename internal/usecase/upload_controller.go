package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/courtvision/analysis-client/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type UploadControllerConfig struct {
	Rules entity.VideoRules
	// Team, when set, triggers team analysis after the upload is accepted.
	Team *entity.TeamAnalysisParams
}

// UploadController drives one video at a time through upload, analysis and
// result. All state changes go through entity.UploadJob.Apply and are
// published, in order, on the session's event stream.
type UploadController struct {
	api      port.AnalysisAPI
	poller   *Poller
	receiver *FrameReceiver
	cfg      UploadControllerConfig
	logger   *zap.Logger

	mu      sync.Mutex
	job     *entity.UploadJob
	session *UploadSession
}

// NewUploadController accepts a nil receiver when no visualization is wanted.
func NewUploadController(api port.AnalysisAPI, poller *Poller, receiver *FrameReceiver, cfg UploadControllerConfig, logger *zap.Logger) *UploadController {
	if cfg.Rules.MaxBytes == 0 && len(cfg.Rules.AllowedExtensions) == 0 {
		cfg.Rules = entity.DefaultVideoRules()
	}
	return &UploadController{
		api:      api,
		poller:   poller,
		receiver: receiver,
		cfg:      cfg,
		logger:   logger,
	}
}

// Job returns a copy of the current job, or an idle job when none exists.
func (c *UploadController) Job() entity.UploadJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return entity.UploadJob{State: entity.UploadStateIdle}
	}
	return c.job.Snapshot()
}

// Start validates file and begins the upload. Validation failures return a
// *entity.ValidationError before anything touches the network, and a second
// Start while a job is active returns entity.ErrUploadInProgress.
func (c *UploadController) Start(ctx context.Context, file entity.VideoFile) (*UploadSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job != nil && c.job.State.Active() {
		return nil, entity.ErrUploadInProgress
	}
	if err := c.cfg.Rules.Validate(file); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		c.logger.Info("upload rejected", zap.String("file", file.Name), zap.Error(err))
		return nil, err
	}

	// the previous session is terminal; release its event stream
	if c.session != nil {
		c.session.Dispose()
	}

	job := entity.NewUploadJob(file)
	runCtx, cancel := context.WithCancel(ctx)
	s := newUploadSession(job.ID, cancel)
	c.job = job
	c.session = s

	c.emitLocked(s, entity.UploadEvent{Kind: entity.EventUploadStarted, VideoID: job.ID})

	if c.receiver != nil {
		s.detach = c.receiver.DetachVideo
		c.reattach(runCtx, s, job.ID)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.run(runCtx, s, job)
	}()
	return s, nil
}

// Reset cancels any active session and returns the controller to idle.
func (c *UploadController) Reset() {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		s.Dispose()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job != nil {
		_ = c.job.Apply(entity.UploadEvent{Kind: entity.EventReset})
	}
	c.session = nil
}

func (c *UploadController) run(ctx context.Context, s *UploadSession, job *entity.UploadJob) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "UploadController.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("video.id", job.ID),
		attribute.String("video.name", job.Source.Name),
		attribute.Int64("video.size", job.Source.Size),
	)

	log := c.logger.With(zap.String("video_id", job.ID), zap.String("file", job.Source.Name))
	result, err := c.execute(ctx, s, job, log)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		log.Error("analysis failed", zap.Error(err))
		c.emit(s, entity.UploadEvent{Kind: entity.EventAnalysisFailed, VideoID: job.ID, Err: err})
	} else {
		metrics.UploadsTotal.WithLabelValues("completed").Inc()
		log.Info("analysis completed",
			zap.String("action", result.Action.Label),
			zap.Float64("overall_score", result.Metrics.OverallScore),
		)
		c.emit(s, entity.UploadEvent{Kind: entity.EventAnalysisCompleted, VideoID: result.VideoID, Result: result})
	}
	s.finish(result, err)
}

func (c *UploadController) execute(ctx context.Context, s *UploadSession, job *entity.UploadJob, log *zap.Logger) (*entity.AnalysisResult, error) {
	started := time.Now()
	handle, err := c.api.Upload(ctx, port.UploadRequest{VideoID: job.ID, File: job.Source}, func(percent int) {
		c.emit(s, entity.UploadEvent{Kind: entity.EventUploadProgress, VideoID: job.ID, Percent: percent})
	})
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("upload").Observe(time.Since(started).Seconds())

	videoID := job.ID
	if handle.VideoID != "" && handle.VideoID != job.ID {
		log.Warn("server assigned a different video id", zap.String("server_video_id", handle.VideoID))
		videoID = handle.VideoID
		c.reattach(ctx, s, videoID)
	}
	c.emit(s, entity.UploadEvent{Kind: entity.EventUploadAccepted, VideoID: videoID})

	if handle.Result != nil {
		log.Debug("server analyzed synchronously")
		if handle.Result.VideoID == "" {
			handle.Result.VideoID = videoID
		}
		return handle.Result, nil
	}

	if c.cfg.Team != nil {
		if err := c.api.TriggerTeamAnalysis(ctx, videoID, *c.cfg.Team); err != nil {
			return nil, err
		}
		log.Info("team analysis triggered",
			zap.String("jersey_color", c.cfg.Team.JerseyColor),
			zap.String("team_side", c.cfg.Team.TeamSide),
		)
	}

	return c.poller.Poll(ctx, videoID, func(report entity.StatusReport) {
		c.emit(s, entity.UploadEvent{Kind: entity.EventStatusObserved, VideoID: videoID, Status: &report})
	})
}

// reattach points the session's stream at videoID. Attaches run in the
// background and are serialized per session, so the stream always ends up on
// the most recent id.
func (c *UploadController) reattach(ctx context.Context, s *UploadSession, videoID string) {
	if c.receiver == nil {
		return
	}
	s.streamMu.Lock()
	s.streamID = videoID
	s.streamMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.attachMu.Lock()
		defer s.attachMu.Unlock()

		s.streamMu.Lock()
		id := s.streamID
		already := id == s.attachedID
		s.attachedID = id
		s.streamMu.Unlock()
		if already {
			return
		}
		if err := c.receiver.Attach(ctx, id); err != nil {
			c.logger.Warn("visualization unavailable", zap.String("video_id", id), zap.Error(err))
		}
	}()
}

func (c *UploadController) emit(s *UploadSession, ev entity.UploadEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(s, ev)
}

func (c *UploadController) emitLocked(s *UploadSession, ev entity.UploadEvent) {
	if c.session != s {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := c.job.Apply(ev); err != nil {
		var te *entity.TransitionError
		if errors.As(err, &te) {
			c.logger.Debug("event ignored", zap.Stringer("event", ev), zap.String("state", string(te.From)))
			return
		}
		c.logger.Warn("event rejected", zap.Stringer("event", ev), zap.Error(err))
		return
	}
	s.queue.push(ev)
}

// UploadSession is the handle for one Start call.
type UploadSession struct {
	ID string

	queue    *eventQueue
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	result   *entity.AnalysisResult
	err      error
	disposed sync.Once

	// detach closes the visualization stream for a video id.
	detach     func(videoID string)
	attachMu   sync.Mutex
	streamMu   sync.Mutex
	streamID   string
	attachedID string
}

func newUploadSession(id string, cancel context.CancelFunc) *UploadSession {
	return &UploadSession{
		ID:     id,
		queue:  newEventQueue(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Events yields every applied event in order and is closed after the
// terminal event, or on Dispose.
func (s *UploadSession) Events() <-chan entity.UploadEvent {
	return s.queue.out
}

// Done is closed once the job reached a terminal state.
func (s *UploadSession) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the job is terminal and returns its outcome.
func (s *UploadSession) Wait(ctx context.Context) (*entity.AnalysisResult, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settle waits for the session's background work, stream attachment
// included, without cancelling it.
func (s *UploadSession) Settle() {
	s.wg.Wait()
}

// Dispose cancels outstanding work, waits for it to stop and closes the
// session's visualization stream. No event is published and no frame is
// drawn after Dispose returns. Safe to call more than once.
func (s *UploadSession) Dispose() {
	s.disposed.Do(func() {
		s.cancel()
		s.wg.Wait()
		if s.detach != nil {
			s.streamMu.Lock()
			id := s.attachedID
			s.streamMu.Unlock()
			if id != "" {
				s.detach(id)
			}
		}
		s.queue.stop()
	})
}

func (s *UploadSession) finish(result *entity.AnalysisResult, err error) {
	s.result, s.err = result, err
	close(s.done)
	s.queue.close()
}

// eventQueue is an unbounded FIFO in front of a channel so producers never
// block on slow consumers.
type eventQueue struct {
	in   chan entity.UploadEvent
	out  chan entity.UploadEvent
	quit chan struct{}
	once sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		in:   make(chan entity.UploadEvent),
		out:  make(chan entity.UploadEvent),
		quit: make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *eventQueue) push(ev entity.UploadEvent) {
	select {
	case q.in <- ev:
	case <-q.quit:
	}
}

func (q *eventQueue) close() {
	select {
	case <-q.quit:
	default:
		close(q.in)
	}
}

func (q *eventQueue) stop() {
	q.once.Do(func() { close(q.quit) })
}

func (q *eventQueue) pump() {
	defer close(q.out)
	var pending []entity.UploadEvent
	in := q.in
	for in != nil || len(pending) > 0 {
		var out chan entity.UploadEvent
		var next entity.UploadEvent
		if len(pending) > 0 {
			out = q.out
			next = pending[0]
		}
		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			pending = append(pending, ev)
		case out <- next:
			pending = pending[1:]
		case <-q.quit:
			return
		}
	}
}
