package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/courtvision/analysis-client/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultStreamGrace = 5 * time.Second

type ProcessAnalysisConfig struct {
	TempDir    string
	MaxRetries int
	DedupTTL   time.Duration
	Rules      entity.VideoRules
	Poll       PollerConfig
	Team       entity.TeamAnalysisParams
	// StreamURL maps a video id to its recorded-stream socket.
	StreamURL func(videoID string) string
	// StreamGrace is how long to keep recording frames after the result
	// arrived.
	StreamGrace time.Duration
}

// Recorders builds the surface that captures visualization frames into dir.
type Recorders func(dir string) (port.RecordingSurface, error)

// ProcessAnalysisUseCase handles one queued analysis request: it runs the
// upload controller against a stored video, archives the recorded frames with
// the result and reports the outcome.
type ProcessAnalysisUseCase struct {
	repo      port.RecordRepository
	storage   port.VideoStorage
	api       port.AnalysisAPI
	dialer    port.SocketDialer
	codec     port.FrameCodec
	recorders Recorders
	prober    port.VideoProber
	zipper    port.Zipper
	dedup     port.Deduplicator
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       ProcessAnalysisConfig
}

type ProcessAnalysisDeps struct {
	Repo      port.RecordRepository
	Storage   port.VideoStorage
	API       port.AnalysisAPI
	Dialer    port.SocketDialer
	Codec     port.FrameCodec
	Recorders Recorders
	Prober    port.VideoProber
	Zipper    port.Zipper
	Dedup     port.Deduplicator
	Publisher port.StatusPublisher
	DLQ       port.DLQPublisher
	Notifier  port.FailureNotifier
}

func NewProcessAnalysisUseCase(deps ProcessAnalysisDeps, logger *zap.Logger, cfg ProcessAnalysisConfig) *ProcessAnalysisUseCase {
	if cfg.StreamGrace <= 0 {
		cfg.StreamGrace = defaultStreamGrace
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 24 * time.Hour
	}
	return &ProcessAnalysisUseCase{
		repo:      deps.Repo,
		storage:   deps.Storage,
		api:       deps.API,
		dialer:    deps.Dialer,
		codec:     deps.Codec,
		recorders: deps.Recorders,
		prober:    deps.Prober,
		zipper:    deps.Zipper,
		dedup:     deps.Dedup,
		publisher: deps.Publisher,
		dlq:       deps.DLQ,
		notifier:  deps.Notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

func dedupKey(id fmt.Stringer) string {
	return "courtvision:analysis:" + id.String()
}

// Execute returns an error only when the request should be requeued.
func (uc *ProcessAnalysisUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "ProcessAnalysisUseCase.Execute", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	started := time.Now()

	var msg entity.AnalysisRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.WorkerJobsTotal.WithLabelValues("dlq").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("request.id", msg.RequestID.String()),
		attribute.String("request.video_key", msg.VideoKey),
		attribute.String("request.mode", string(msg.Mode)),
	)
	log := uc.logger.With(zap.String("request_id", msg.RequestID.String()), zap.String("video_key", msg.VideoKey))

	claimed, err := uc.dedup.Claim(ctx, dedupKey(msg.RequestID), uc.cfg.DedupTTL)
	if err != nil {
		log.Warn("dedup unavailable, processing anyway", zap.Error(err))
	} else if !claimed {
		log.Info("duplicate request skipped")
		metrics.WorkerJobsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	rec, err := uc.repo.FindByID(ctx, msg.RequestID)
	if err != nil {
		rec = entity.NewAnalysisRecord(msg.RequestID, msg.UserID, msg.VideoKey, msg.FileSize, uc.cfg.MaxRetries)
		if err := uc.repo.Create(ctx, rec); err != nil {
			log.Error("failed to create analysis record", zap.Error(err))
			uc.release(ctx, msg, log)
			return fmt.Errorf("create record: %w", err)
		}
	}

	if !rec.CanRetry() {
		log.Warn("request exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, rec, msg, rawMsg, "max retries exceeded")
	}

	rec.MarkProcessing(rec.VideoID)
	if err := uc.repo.Update(ctx, rec); err != nil {
		log.Error("failed to update record to PROCESSING", zap.Error(err))
		uc.release(ctx, msg, log)
		return fmt.Errorf("update record: %w", err)
	}
	uc.publishStatus(ctx, rec, log)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.pipeline(ctx, rec, msg, log); err != nil {
		if !entity.IsRetryable(err) {
			return uc.handlePermanentFailure(ctx, rec, msg, rawMsg, entity.UserMessage(err))
		}
		return uc.handleRetryableFailure(ctx, rec, msg, rawMsg, err.Error(), log)
	}

	metrics.WorkerJobsTotal.WithLabelValues("completed").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(started).Seconds())
	return nil
}

func (uc *ProcessAnalysisUseCase) pipeline(ctx context.Context, rec *entity.AnalysisRecord, msg entity.AnalysisRequestMessage, log *zap.Logger) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, rec.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	name := filepath.Base(msg.FileName)
	if name == "." || name == "/" || name == "" {
		name = filepath.Base(msg.VideoKey)
	}
	videoPath := filepath.Join(workDir, name)

	dlStart := time.Now()
	dlCtx, dlSpan := tracer.Start(ctx, "download_video")
	err := uc.storage.DownloadVideo(dlCtx, msg.VideoKey, videoPath)
	dlSpan.End()
	if err != nil {
		return fmt.Errorf("download_video: %w", err)
	}
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	if d, err := uc.prober.Duration(ctx, videoPath); err != nil {
		log.Warn("could not probe video duration", zap.Error(err))
	} else {
		rec.Duration = d
	}

	file, err := entity.VideoFileFromPath(videoPath)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}

	framesDir := filepath.Join(workDir, "frames")
	recorder, err := uc.recorders(framesDir)
	if err != nil {
		return fmt.Errorf("create frame recorder: %w", err)
	}

	result, err := uc.analyze(ctx, file, recorder, msg, log)
	if err != nil {
		return err
	}
	rec.VideoID = result.VideoID

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return &entity.ValidationError{Field: "result", Reason: "result is not encodable", Err: err}
	}

	zipStart := time.Now()
	zipCtx, zipSpan := tracer.Start(ctx, "create_archive")
	frames := recorder.Paths()
	zipPath := filepath.Join(workDir, "analysis.zip")
	size, err := uc.zipper.CreateArchive(zipCtx, frames, resultJSON, zipPath)
	zipSpan.End()
	if err != nil {
		return fmt.Errorf("create_archive: %w", err)
	}
	metrics.StageDuration.WithLabelValues("archive").Observe(time.Since(zipStart).Seconds())

	upStart := time.Now()
	upCtx, upSpan := tracer.Start(ctx, "store_outputs")
	prefix := fmt.Sprintf("%s/%s", msg.UserID, rec.ID.String())
	archiveKey := prefix + "/analysis.zip"
	resultKey := prefix + "/result.json"
	err = uc.uploadArchive(upCtx, archiveKey, zipPath, size)
	if err == nil {
		err = uc.storage.UploadResult(upCtx, resultKey, resultJSON)
	}
	upSpan.End()
	if err != nil {
		return fmt.Errorf("store_outputs: %w", err)
	}
	metrics.StageDuration.WithLabelValues("store").Observe(time.Since(upStart).Seconds())

	rec.MarkCompleted(result, archiveKey, resultKey, len(frames))
	if err := uc.repo.Update(ctx, rec); err != nil {
		log.Error("failed to update record to COMPLETED", zap.Error(err))
		return fmt.Errorf("update record completed: %w", err)
	}
	uc.publishStatus(ctx, rec, log)

	log.Info("analysis request completed",
		zap.String("video_id", result.VideoID),
		zap.String("action", result.Action.Label),
		zap.Int("frame_count", len(frames)),
		zap.String("archive_key", archiveKey),
	)
	return nil
}

// analyze runs a dedicated controller and receiver for this request so that
// concurrent workers never share upload state. The controller owns the
// receiver, so a server-assigned video id moves the recording with it.
func (uc *ProcessAnalysisUseCase) analyze(ctx context.Context, file entity.VideoFile, recorder port.RecordingSurface, msg entity.AnalysisRequestMessage, log *zap.Logger) (*entity.AnalysisResult, error) {
	ctrlCfg := UploadControllerConfig{Rules: uc.cfg.Rules}
	if msg.Mode == entity.AnalysisModeTeam {
		team := uc.cfg.Team
		if msg.JerseyColor != "" {
			team.JerseyColor = msg.JerseyColor
		}
		if msg.TeamSide != "" {
			team.TeamSide = msg.TeamSide
		}
		ctrlCfg.Team = &team
	}
	receiver := NewFrameReceiver(uc.dialer, uc.codec, recorder, FrameReceiverConfig{StreamURL: uc.cfg.StreamURL}, log)
	ctrl := NewUploadController(uc.api, NewPoller(uc.api, uc.cfg.Poll, log), receiver, ctrlCfg, log)

	session, err := ctrl.Start(ctx, file)
	if err != nil {
		return nil, err
	}
	defer session.Dispose()

	result, err := session.Wait(ctx)
	if err != nil {
		return nil, err
	}

	// frames may still be in flight after the result
	session.Settle()
	graceCtx, cancel := context.WithTimeout(ctx, uc.cfg.StreamGrace)
	defer cancel()
	_ = receiver.Wait(graceCtx)
	if st := receiver.Status(); st.Notice != "" {
		log.Warn("frames may be missing from the archive", zap.String("notice", st.Notice))
	}
	return result, nil
}

func (uc *ProcessAnalysisUseCase) uploadArchive(ctx context.Context, key, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return uc.storage.UploadArchive(ctx, key, f, size)
}

func (uc *ProcessAnalysisUseCase) handleRetryableFailure(
	ctx context.Context,
	rec *entity.AnalysisRecord,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	rec.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, rec)

	if !rec.CanRetry() {
		return uc.handlePermanentFailure(ctx, rec, msg, rawMsg, errMsg)
	}

	uc.release(ctx, msg, log)
	metrics.RetryTotal.WithLabelValues(strconv.Itoa(rec.Attempt)).Inc()
	uc.publishStatus(ctx, rec, log)
	log.Warn("analysis attempt failed", zap.Int("attempt", rec.Attempt), zap.String("error", errMsg))

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", rec.Attempt, rec.MaxAttempts, errMsg)
}

func (uc *ProcessAnalysisUseCase) handlePermanentFailure(
	ctx context.Context,
	rec *entity.AnalysisRecord,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	rec.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, rec)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)
	uc.publishStatus(ctx, rec, uc.logger)
	metrics.WorkerJobsTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, rec.ID.String(), msg.VideoKey, errMsg)
	}
	return nil
}

func (uc *ProcessAnalysisUseCase) release(ctx context.Context, msg entity.AnalysisRequestMessage, log *zap.Logger) {
	if err := uc.dedup.Release(ctx, dedupKey(msg.RequestID)); err != nil {
		log.Warn("failed to release dedup claim", zap.Error(err))
	}
}

func (uc *ProcessAnalysisUseCase) publishStatus(ctx context.Context, rec *entity.AnalysisRecord, log *zap.Logger) {
	statusMsg := entity.AnalysisStatusMessage{
		RequestID:    rec.ID,
		UserID:       rec.UserID,
		VideoID:      rec.VideoID,
		Status:       rec.Status,
		VideoKey:     rec.VideoKey,
		ArchiveKey:   rec.ArchiveKey,
		ResultKey:    rec.ResultKey,
		FrameCount:   rec.FrameCount,
		ErrorMessage: rec.ErrorMessage,
		Attempt:      rec.Attempt,
		MaxAttempts:  rec.MaxAttempts,
	}
	if rec.Result != nil {
		statusMsg.Action = rec.Result.Action.Label
		statusMsg.OverallScore = rec.Result.Metrics.OverallScore
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
