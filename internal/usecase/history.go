package usecase

import (
	"context"
	"sort"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"go.uber.org/zap"
)

// HistoryService merges the server's history with locally stored results.
// History is supplementary: every failure degrades to fewer entries.
type HistoryService struct {
	api    port.AnalysisAPI
	store  port.HistoryStore
	userID string
	logger *zap.Logger
}

// NewHistoryService accepts a nil store when no local database is configured.
func NewHistoryService(api port.AnalysisAPI, store port.HistoryStore, userID string, logger *zap.Logger) *HistoryService {
	return &HistoryService{api: api, store: store, userID: userID, logger: logger}
}

// Recent returns at most limit entries, newest first, one per video id.
func (h *HistoryService) Recent(ctx context.Context, limit int) []entity.HistoricalData {
	if limit <= 0 {
		return nil
	}

	var merged []entity.HistoricalData
	remote, err := h.api.GetHistory(ctx, limit)
	if err != nil {
		h.logger.Warn("history unavailable from server", zap.Error(err))
	}
	merged = append(merged, remote...)

	if h.store != nil {
		local, err := h.store.RecentResults(ctx, h.userID, limit)
		if err != nil {
			h.logger.Warn("local history unavailable", zap.Error(err))
		}
		merged = append(merged, local...)
	}

	out := make([]entity.HistoricalData, 0, len(merged))
	seen := make(map[string]bool, len(merged))
	for _, d := range merged {
		if d.VideoID != "" {
			if seen[d.VideoID] {
				continue
			}
			seen[d.VideoID] = true
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].Timestamp.After(out[k].Timestamp.Time)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
