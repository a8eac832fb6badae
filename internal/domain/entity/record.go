package entity

import (
	"time"

	"github.com/google/uuid"
)

type RecordStatus string

const (
	RecordStatusPending    RecordStatus = "PENDING"
	RecordStatusProcessing RecordStatus = "PROCESSING"
	RecordStatusCompleted  RecordStatus = "COMPLETED"
	RecordStatusFailed     RecordStatus = "FAILED"
)

// AnalysisRecord tracks one queued analysis request across worker attempts.
type AnalysisRecord struct {
	ID           uuid.UUID
	UserID       string
	VideoKey     string
	VideoID      string
	ArchiveKey   string
	ResultKey    string
	Status       RecordStatus
	FrameCount   int
	FileSize     int64
	Duration     float64
	Result       *AnalysisResult
	Attempt      int
	MaxAttempts  int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewAnalysisRecord(id uuid.UUID, userID, videoKey string, fileSize int64, maxAttempts int) *AnalysisRecord {
	now := time.Now().UTC()
	return &AnalysisRecord{
		ID:          id,
		UserID:      userID,
		VideoKey:    videoKey,
		FileSize:    fileSize,
		Status:      RecordStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *AnalysisRecord) MarkProcessing(videoID string) {
	r.Status = RecordStatusProcessing
	r.VideoID = videoID
	r.Attempt++
	r.ErrorMessage = ""
	r.UpdatedAt = time.Now().UTC()
}

func (r *AnalysisRecord) MarkCompleted(result *AnalysisResult, archiveKey, resultKey string, frameCount int) {
	now := time.Now().UTC()
	r.Status = RecordStatusCompleted
	r.Result = result
	r.ArchiveKey = archiveKey
	r.ResultKey = resultKey
	r.FrameCount = frameCount
	r.UpdatedAt = now
	r.CompletedAt = &now
}

func (r *AnalysisRecord) MarkFailed(errMsg string) {
	r.Status = RecordStatusFailed
	r.ErrorMessage = errMsg
	r.UpdatedAt = time.Now().UTC()
}

func (r *AnalysisRecord) CanRetry() bool {
	return r.Attempt < r.MaxAttempts
}
