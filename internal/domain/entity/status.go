package entity

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// StatusReport is the server's view of an in-flight analysis job.
type StatusReport struct {
	VideoID         string    `json:"video_id,omitempty"`
	Status          JobStatus `json:"status"`
	ProgressPercent float64   `json:"progress_percent"`
	CurrentStep     string    `json:"current_step"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// ServerJobHandle is what the upload endpoint returns. Result is set when the
// server analyzed the video synchronously.
type ServerJobHandle struct {
	VideoID string          `json:"video_id"`
	Status  JobStatus       `json:"status,omitempty"`
	Result  *AnalysisResult `json:"-"`
}

type TeamAnalysisParams struct {
	JerseyColor string `json:"jersey_color"`
	TeamSide    string `json:"team_side"`
}

type HealthReport struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
