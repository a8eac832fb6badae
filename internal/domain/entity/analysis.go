package entity

import (
	"sort"
)

type QualityRating string

const (
	QualityExcellent QualityRating = "excellent"
	QualityGood      QualityRating = "good"
	QualityFair      QualityRating = "fair"
	QualityPoor      QualityRating = "poor"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type ActionClassification struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// PerformanceMetrics holds scores in 0..1 and joint angles in degrees,
// heights in centimetres, times in seconds.
type PerformanceMetrics struct {
	OverallScore     float64       `json:"overall_score"`
	FormScore        float64       `json:"form_score"`
	BalanceScore     float64       `json:"balance_score"`
	ConsistencyScore float64       `json:"consistency_score"`
	FollowThrough    float64       `json:"follow_through"`
	ElbowAngle       float64       `json:"elbow_angle"`
	KneeBend         float64       `json:"knee_bend"`
	ReleaseAngle     float64       `json:"release_angle"`
	JumpHeight       float64       `json:"jump_height"`
	ReleaseTime      float64       `json:"release_time"`
	QualityRating    QualityRating `json:"quality_rating,omitempty"`
}

type Recommendation struct {
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Severity    Severity `json:"severity,omitempty"`
	Drills      []string `json:"drills,omitempty"`
}

type TimelineSegment struct {
	StartTime  float64  `json:"start_time"`
	EndTime    float64  `json:"end_time"`
	Phase      string   `json:"phase"`
	Label      string   `json:"label,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Severity   Severity `json:"severity,omitempty"`
	Note       string   `json:"note,omitempty"`
}

type AnalysisResult struct {
	VideoID           string               `json:"video_id"`
	Action            ActionClassification `json:"action"`
	Metrics           PerformanceMetrics   `json:"metrics"`
	Recommendations   []Recommendation     `json:"recommendations"`
	Timeline          []TimelineSegment    `json:"timeline,omitempty"`
	AnnotatedVideoURL string               `json:"annotated_video_url,omitempty"`
	Timestamp         Timestamp            `json:"timestamp"`
}

// HistoricalData is the compact form of a past analysis used for trends.
type HistoricalData struct {
	VideoID    string             `json:"video_id"`
	Timestamp  Timestamp          `json:"timestamp"`
	Action     string             `json:"action"`
	Confidence float64            `json:"confidence"`
	Metrics    PerformanceMetrics `json:"metrics"`
}

func (r AnalysisResult) Summary() HistoricalData {
	return HistoricalData{
		VideoID:    r.VideoID,
		Timestamp:  r.Timestamp,
		Action:     r.Action.Label,
		Confidence: r.Action.Confidence,
		Metrics:    r.Metrics,
	}
}

// SortedRecommendations orders by priority, keeping server order for ties.
func SortedRecommendations(recs []Recommendation) []Recommendation {
	out := make([]Recommendation, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].Priority.rank() < out[k].Priority.rank()
	})
	return out
}
