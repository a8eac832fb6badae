package entity

import "github.com/google/uuid"

type AnalysisMode string

const (
	AnalysisModePlayer AnalysisMode = "player"
	AnalysisModeTeam   AnalysisMode = "team"
)

// AnalysisRequestMessage is the inbound message on the analysis.requests queue.
type AnalysisRequestMessage struct {
	RequestID   uuid.UUID    `json:"request_id"`
	UserID      string       `json:"user_id"`
	VideoKey    string       `json:"video_key"`
	FileName    string       `json:"file_name"`
	FileSize    int64        `json:"file_size"`
	UserEmail   string       `json:"user_email"`
	Mode        AnalysisMode `json:"mode,omitempty"`
	JerseyColor string       `json:"jersey_color,omitempty"`
	TeamSide    string       `json:"team_side,omitempty"`
}

// AnalysisStatusMessage is published to the analysis.status routing key.
type AnalysisStatusMessage struct {
	RequestID    uuid.UUID    `json:"request_id"`
	UserID       string       `json:"user_id"`
	VideoID      string       `json:"video_id,omitempty"`
	Status       RecordStatus `json:"status"`
	VideoKey     string       `json:"video_key"`
	ArchiveKey   string       `json:"archive_key,omitempty"`
	ResultKey    string       `json:"result_key,omitempty"`
	FrameCount   int          `json:"frame_count,omitempty"`
	Action       string       `json:"action,omitempty"`
	OverallScore float64      `json:"overall_score,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Attempt      int          `json:"attempt"`
	MaxAttempts  int          `json:"max_attempts"`
}
