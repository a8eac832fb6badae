package port

import (
	"context"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, rec *entity.AnalysisRecord) error
	Update(ctx context.Context, rec *entity.AnalysisRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisRecord, error)
}

type HistoryStore interface {
	RecentResults(ctx context.Context, userID string, limit int) ([]entity.HistoricalData, error)
}
