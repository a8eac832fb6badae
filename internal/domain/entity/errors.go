package entity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUploadInProgress  = errors.New("an upload is already in progress")
	ErrPollTimeout       = errors.New("analysis did not finish in time")
	ErrNoFrame           = errors.New("no frame available yet")
	ErrCameraDenied      = errors.New("camera permission denied")
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrStreamerRunning   = errors.New("live capture already running")
)

// NetworkError means the server could not be reached at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError means the server answered with a non-2xx status. Code, Message and
// Suggestions are filled when the body carried a structured error.
type HTTPError struct {
	StatusCode  int
	Body        []byte
	Code        string
	Message     string
	Suggestions []string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// SocketError is a transport failure on a visualization socket. It never
// fails the analysis job itself.
type SocketError struct {
	Endpoint string
	Err      error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("socket %s: %v", e.Endpoint, e.Err)
}

func (e *SocketError) Unwrap() error { return e.Err }

// ValidationError is raised before any network call.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// JobFailedError carries the server's explanation for a failed job.
type JobFailedError struct {
	VideoID string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("analysis of %s failed", e.VideoID)
	}
	return fmt.Sprintf("analysis of %s failed: %s", e.VideoID, e.Message)
}

// UserMessage picks the most specific human-readable text for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var httpErr *HTTPError
	var valErr *ValidationError
	var jobErr *JobFailedError
	var netErr *NetworkError
	var sockErr *SocketError

	switch {
	case errors.As(err, &valErr):
		return valErr.Reason
	case errors.As(err, &httpErr):
		msg := httpErr.Message
		if msg == "" {
			msg = fmt.Sprintf("The server rejected the request (%d %s).", httpErr.StatusCode, http.StatusText(httpErr.StatusCode))
		}
		if len(httpErr.Suggestions) > 0 {
			msg += "\nTry:\n- " + strings.Join(httpErr.Suggestions, "\n- ")
		}
		return msg
	case errors.As(err, &jobErr):
		if jobErr.Message != "" {
			return jobErr.Message
		}
		return "The analysis failed on the server."
	case errors.Is(err, ErrPollTimeout):
		return "The analysis is taking longer than expected. Please try again later."
	case errors.As(err, &netErr):
		return "Cannot reach the analysis server. Check your connection and try again."
	case errors.As(err, &sockErr):
		return "Visualization unavailable."
	case errors.Is(err, ErrUploadInProgress):
		return "An upload is already in progress."
	case errors.Is(err, ErrCameraDenied):
		return "Camera access was denied. Grant this user access to the camera device and try again."
	case errors.Is(err, ErrCameraUnavailable):
		return "No camera found. Connect a camera or point CAMERA_DEVICE at one and try again."
	default:
		return err.Error()
	}
}

// IsRetryable reports whether a worker should requeue after err.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	var netErr *NetworkError
	var valErr *ValidationError
	var jobErr *JobFailedError

	switch {
	case errors.As(err, &valErr), errors.As(err, &jobErr):
		return false
	case errors.As(err, &httpErr):
		return httpErr.Retryable()
	case errors.As(err, &netErr), errors.Is(err, ErrPollTimeout):
		return true
	default:
		return true
	}
}
