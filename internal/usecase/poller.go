package usecase

import (
	"context"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/courtvision/analysis-client/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const DefaultPollInterval = 2 * time.Second

type PollerConfig struct {
	Interval time.Duration
	// MaxDuration bounds the whole poll; zero polls until ctx is done.
	MaxDuration time.Duration
}

// Poller queries a job's status at a constant interval until it is terminal.
// A failed status request ends the poll immediately; it is never retried.
type Poller struct {
	api    port.AnalysisAPI
	cfg    PollerConfig
	logger *zap.Logger
}

func NewPoller(api port.AnalysisAPI, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Poller{api: api, cfg: cfg, logger: logger}
}

// Poll returns the final result once the job completes. onStatus, if set, sees
// every status report in order before Poll acts on it.
func (p *Poller) Poll(ctx context.Context, videoID string, onStatus func(entity.StatusReport)) (*entity.AnalysisResult, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "Poller.Poll")
	defer span.End()
	span.SetAttributes(attribute.String("video.id", videoID))

	log := p.logger.With(zap.String("video_id", videoID))
	started := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("analysis").Observe(time.Since(started).Seconds())
	}()

	parent := ctx
	if p.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.cfg.MaxDuration, entity.ErrPollTimeout)
		defer cancel()
	}
	// stopped reports why ctx ended: the caller's own error, or the poll limit.
	stopped := func() error {
		if err := parent.Err(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			log.Warn("analysis exceeded poll limit", zap.Duration("limit", p.cfg.MaxDuration))
			return entity.ErrPollTimeout
		}
		return nil
	}

	for polls := 1; ; polls++ {
		report, err := p.api.GetStatus(ctx, videoID)
		if err != nil {
			if stopErr := stopped(); stopErr != nil {
				return nil, stopErr
			}
			log.Warn("status request failed", zap.Int("poll", polls), zap.Error(err))
			return nil, err
		}
		metrics.StatusPollsTotal.WithLabelValues(string(report.Status)).Inc()
		if onStatus != nil {
			onStatus(*report)
		}

		switch report.Status {
		case entity.JobStatusCompleted:
			log.Info("analysis completed", zap.Int("polls", polls))
			result, err := p.api.GetResult(ctx, videoID)
			if err != nil {
				if stopErr := stopped(); stopErr != nil {
					return nil, stopErr
				}
				return nil, err
			}
			if result.VideoID == "" {
				result.VideoID = videoID
			}
			return result, nil
		case entity.JobStatusFailed:
			log.Info("analysis failed", zap.Int("polls", polls), zap.String("reason", report.ErrorMessage))
			return nil, &entity.JobFailedError{VideoID: videoID, Message: report.ErrorMessage}
		}

		log.Debug("analysis in progress",
			zap.String("status", string(report.Status)),
			zap.Float64("progress", report.ProgressPercent),
			zap.String("step", report.CurrentStep),
		)

		wait := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, stopped()
		case <-wait.C:
		}
	}
}
