package port

import (
	"context"

	"github.com/courtvision/analysis-client/internal/domain/entity"
)

// ProgressFunc receives non-decreasing upload percentages while the request
// body is being sent. It is never called after Upload returns.
type ProgressFunc func(percent int)

type UploadRequest struct {
	VideoID string
	File    entity.VideoFile
}

type AnalysisAPI interface {
	Upload(ctx context.Context, req UploadRequest, onProgress ProgressFunc) (*entity.ServerJobHandle, error)
	TriggerTeamAnalysis(ctx context.Context, videoID string, params entity.TeamAnalysisParams) error
	GetStatus(ctx context.Context, videoID string) (*entity.StatusReport, error)
	GetResult(ctx context.Context, videoID string) (*entity.AnalysisResult, error)
	GetHistory(ctx context.Context, limit int) ([]entity.HistoricalData, error)
	Health(ctx context.Context) (*entity.HealthReport, error)
	SocketURL(path string) string
}
