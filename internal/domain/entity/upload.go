package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type UploadState string

const (
	UploadStateIdle       UploadState = "idle"
	UploadStateUploading  UploadState = "uploading"
	UploadStateProcessing UploadState = "processing"
	UploadStateCompleted  UploadState = "completed"
	UploadStateError      UploadState = "error"
)

func (s UploadState) IsTerminal() bool {
	return s == UploadStateCompleted || s == UploadStateError
}

// Active reports whether a job in this state still owns network work.
func (s UploadState) Active() bool {
	return s == UploadStateUploading || s == UploadStateProcessing
}

type UploadEventKind string

const (
	EventUploadStarted     UploadEventKind = "upload_started"
	EventUploadProgress    UploadEventKind = "upload_progress"
	EventUploadAccepted    UploadEventKind = "upload_accepted"
	EventStatusObserved    UploadEventKind = "status_observed"
	EventAnalysisCompleted UploadEventKind = "analysis_completed"
	EventAnalysisFailed    UploadEventKind = "analysis_failed"
	EventReset             UploadEventKind = "reset"
)

// UploadEvent is one step of an upload's lifecycle. Only the fields relevant
// to Kind are set.
type UploadEvent struct {
	Kind    UploadEventKind
	VideoID string
	Percent int
	Status  *StatusReport
	Result  *AnalysisResult
	Err     error
	At      time.Time
}

func (e UploadEvent) String() string {
	switch e.Kind {
	case EventUploadProgress:
		return fmt.Sprintf("%s(%d%%)", e.Kind, e.Percent)
	case EventStatusObserved:
		if e.Status != nil {
			return fmt.Sprintf("%s(%s)", e.Kind, e.Status.Status)
		}
	case EventAnalysisFailed:
		return fmt.Sprintf("%s(%v)", e.Kind, e.Err)
	}
	return string(e.Kind)
}

type UploadJob struct {
	ID              string
	Source          VideoFile
	State           UploadState
	ProgressPercent int
	StatusMessage   string
	CurrentStep     string
	Result          *AnalysisResult
	Err             error
	StartedAt       time.Time
	UpdatedAt       time.Time
}

// NewUploadJob assigns the job id before any network call so that stream
// consumers can correlate on it immediately.
func NewUploadJob(file VideoFile) *UploadJob {
	return &UploadJob{
		ID:     uuid.NewString(),
		Source: file,
		State:  UploadStateIdle,
	}
}

type TransitionError struct {
	From  UploadState
	Event UploadEventKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid upload transition: %s in state %s", e.Event, e.From)
}

// Apply advances the job by one event. States only move forward; the single
// exception is EventReset, which returns any job to idle.
func (j *UploadJob) Apply(ev UploadEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	switch ev.Kind {
	case EventReset:
		j.State = UploadStateIdle
		j.ProgressPercent = 0
		j.StatusMessage = ""
		j.CurrentStep = ""
		j.Result = nil
		j.Err = nil
		j.UpdatedAt = at
		return nil

	case EventUploadStarted:
		if j.State != UploadStateIdle {
			return &TransitionError{From: j.State, Event: ev.Kind}
		}
		j.State = UploadStateUploading
		j.ProgressPercent = 0
		j.StatusMessage = "Uploading video"
		j.StartedAt = at

	case EventUploadProgress:
		if j.State != UploadStateUploading {
			return &TransitionError{From: j.State, Event: ev.Kind}
		}
		j.ProgressPercent = max(j.ProgressPercent, clampPercent(ev.Percent))

	case EventUploadAccepted:
		if j.State != UploadStateUploading {
			return &TransitionError{From: j.State, Event: ev.Kind}
		}
		j.State = UploadStateProcessing
		j.ProgressPercent = 0
		j.StatusMessage = "Analyzing video"

	case EventStatusObserved:
		if j.State != UploadStateProcessing {
			return &TransitionError{From: j.State, Event: ev.Kind}
		}
		if ev.Status != nil {
			j.ProgressPercent = max(j.ProgressPercent, clampPercent(int(ev.Status.ProgressPercent)))
			j.CurrentStep = ev.Status.CurrentStep
			if ev.Status.CurrentStep != "" {
				j.StatusMessage = ev.Status.CurrentStep
			}
		}

	case EventAnalysisCompleted:
		if !j.State.Active() {
			return &TransitionError{From: j.State, Event: ev.Kind}
		}
		j.State = UploadStateCompleted
		j.ProgressPercent = 100
		j.StatusMessage = "Analysis complete"
		j.Result = ev.Result

	case EventAnalysisFailed:
		if !j.State.Active() {
			return &TransitionError{From: j.State, Event: ev.Kind}
		}
		j.State = UploadStateError
		j.Err = ev.Err
		j.StatusMessage = UserMessage(ev.Err)

	default:
		return fmt.Errorf("unknown upload event %q", ev.Kind)
	}

	j.UpdatedAt = at
	return nil
}

// Snapshot returns a copy that is safe to hand to other goroutines.
func (j *UploadJob) Snapshot() UploadJob {
	return *j
}

func clampPercent(p int) int {
	return min(max(p, 0), 100)
}
