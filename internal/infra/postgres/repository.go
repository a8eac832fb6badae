package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RecordRepository struct {
	pool *pgxpool.Pool
}

var (
	_ port.RecordRepository = (*RecordRepository)(nil)
	_ port.HistoryStore     = (*RecordRepository)(nil)
)

func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

func (r *RecordRepository) Create(ctx context.Context, rec *entity.AnalysisRecord) error {
	result, err := encodeResult(rec.Result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO analysis_records (
			id, user_id, video_key, video_id, archive_key, result_key, status,
			frame_count, file_size, duration, result, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	_, err = r.pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.VideoKey, rec.VideoID, rec.ArchiveKey, rec.ResultKey, string(rec.Status),
		rec.FrameCount, rec.FileSize, rec.Duration, result, rec.Attempt, rec.MaxAttempts,
		rec.ErrorMessage, rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (r *RecordRepository) Update(ctx context.Context, rec *entity.AnalysisRecord) error {
	result, err := encodeResult(rec.Result)
	if err != nil {
		return err
	}

	query := `
		UPDATE analysis_records SET
			status=$2, video_id=$3, archive_key=$4, result_key=$5, frame_count=$6,
			duration=$7, result=$8, attempt=$9, error_message=$10,
			updated_at=$11, completed_at=$12
		WHERE id=$1`

	_, err = r.pool.Exec(ctx, query,
		rec.ID, string(rec.Status), rec.VideoID, rec.ArchiveKey, rec.ResultKey, rec.FrameCount,
		rec.Duration, result, rec.Attempt, rec.ErrorMessage,
		rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

func (r *RecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisRecord, error) {
	query := `
		SELECT id, user_id, video_key, video_id, archive_key, result_key, status,
			frame_count, file_size, duration, result, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		FROM analysis_records WHERE id=$1`

	rec := &entity.AnalysisRecord{}
	var status string
	var result []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.UserID, &rec.VideoKey, &rec.VideoID, &rec.ArchiveKey, &rec.ResultKey, &status,
		&rec.FrameCount, &rec.FileSize, &rec.Duration, &result, &rec.Attempt, &rec.MaxAttempts,
		&rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find record by id: %w", err)
	}
	rec.Status = entity.RecordStatus(status)
	if len(result) > 0 {
		rec.Result = &entity.AnalysisResult{}
		if err := json.Unmarshal(result, rec.Result); err != nil {
			return nil, fmt.Errorf("decode stored result: %w", err)
		}
	}
	return rec, nil
}

// RecentResults lists completed analyses for userID, newest first. An empty
// userID matches every user.
func (r *RecordRepository) RecentResults(ctx context.Context, userID string, limit int) ([]entity.HistoricalData, error) {
	query := `
		SELECT result
		FROM analysis_records
		WHERE status = 'COMPLETED' AND result IS NOT NULL AND ($1 = '' OR user_id = $1)
		ORDER BY completed_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent results: %w", err)
	}
	defer rows.Close()

	var out []entity.HistoricalData
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var res entity.AnalysisResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("decode stored result: %w", err)
		}
		out = append(out, res.Summary())
	}
	return out, rows.Err()
}

func encodeResult(res *entity.AnalysisResult) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return b, nil
}
