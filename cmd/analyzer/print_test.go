package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/usecase"
	"github.com/stretchr/testify/assert"
)

func TestPrintPresentation(t *testing.T) {
	current := &entity.AnalysisResult{
		VideoID: "v2",
		Action:  entity.ActionClassification{Label: "jump_shot", Confidence: 0.91},
		Metrics: entity.PerformanceMetrics{OverallScore: 0.8},
		Recommendations: []entity.Recommendation{
			{Title: "Elbow", Description: "Tuck it in", Priority: entity.PriorityHigh, Drills: []string{"wall shooting"}},
		},
		Timeline:  []entity.TimelineSegment{{StartTime: 0, EndTime: 0.5, Phase: "load"}},
		Timestamp: entity.NewTimestamp(time.Now()),
	}
	history := []entity.HistoricalData{{VideoID: "v1", Metrics: entity.PerformanceMetrics{OverallScore: 0.6}}}

	var buf bytes.Buffer
	printPresentation(&buf, usecase.Aggregate(current, history))
	out := buf.String()

	assert.Contains(t, out, "jump_shot (91% confidence)")
	assert.Contains(t, out, "[high] Elbow: Tuck it in")
	assert.Contains(t, out, "drills: wall shooting")
	assert.Contains(t, out, "load")
	assert.Contains(t, out, "trends vs last 1:")
	assert.Contains(t, out, "+0.20")
}

func TestPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	assert.Equal(t, "no past analyses\n", buf.String())
}

func TestPrintEventProgress(t *testing.T) {
	var buf bytes.Buffer
	printEvent(&buf, entity.UploadEvent{Kind: entity.EventUploadProgress, Percent: 100})
	assert.Equal(t, "\ruploading 100%\n", buf.String())
}
