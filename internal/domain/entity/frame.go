package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const FrameMessageType = "frame"

type FrameFormat string

const (
	FrameFormatJPEG FrameFormat = "jpeg"
	FrameFormatPNG  FrameFormat = "png"
)

// FrameMessage is one annotated frame pushed on the recorded-stream socket.
type FrameMessage struct {
	Type   string      `json:"type"`
	Data   string      `json:"data"`
	Format FrameFormat `json:"format"`
}

// ParseFrameMessage reports ok=false for anything that is not a well-formed
// frame message; callers skip those without failing.
func ParseFrameMessage(raw []byte) (FrameMessage, bool) {
	var msg FrameMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return FrameMessage{}, false
	}
	if msg.Type != FrameMessageType || msg.Data == "" {
		return FrameMessage{}, false
	}
	switch FrameFormat(strings.ToLower(string(msg.Format))) {
	case FrameFormatJPEG, "jpg":
		msg.Format = FrameFormatJPEG
	case FrameFormatPNG:
		msg.Format = FrameFormatPNG
	default:
		return FrameMessage{}, false
	}
	return msg, true
}

type LiveAction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// LiveAnalysisFrameResult is the server's answer to one live frame. A newer
// result replaces the previous one entirely.
type LiveAnalysisFrameResult struct {
	Action         LiveAction         `json:"action"`
	Metrics        PerformanceMetrics `json:"metrics"`
	AnnotatedFrame string             `json:"annotated_frame,omitempty"`
	ReceivedAt     time.Time          `json:"-"`
}

func ParseLiveResult(raw []byte) (*LiveAnalysisFrameResult, error) {
	var res LiveAnalysisFrameResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode live result: %w", err)
	}
	if res.Action.Label == "" && res.AnnotatedFrame == "" {
		return nil, fmt.Errorf("decode live result: missing action and frame")
	}
	return &res, nil
}
