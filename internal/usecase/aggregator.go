package usecase

import (
	"math"
	"sort"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
)

type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendSteady    TrendDirection = "steady"
)

// steadyBand is the score delta under which a metric counts as unchanged.
const steadyBand = 0.02

type TrendPoint struct {
	VideoID   string
	Timestamp time.Time
	Value     float64
}

type MetricTrend struct {
	Metric      string
	Current     float64
	HistoryMean float64
	Delta       float64
	Direction   TrendDirection
	Series      []TrendPoint
}

// Presentation is everything a results view needs, already shaped.
type Presentation struct {
	Current         *entity.AnalysisResult
	Recommendations []entity.Recommendation
	Timeline        []entity.TimelineSegment
	History         []entity.HistoricalData
	Trends          []MetricTrend
}

type trackedMetric struct {
	name  string
	value func(entity.PerformanceMetrics) float64
}

var trackedMetrics = []trackedMetric{
	{"overall_score", func(m entity.PerformanceMetrics) float64 { return m.OverallScore }},
	{"form_score", func(m entity.PerformanceMetrics) float64 { return m.FormScore }},
	{"balance_score", func(m entity.PerformanceMetrics) float64 { return m.BalanceScore }},
	{"consistency_score", func(m entity.PerformanceMetrics) float64 { return m.ConsistencyScore }},
	{"follow_through", func(m entity.PerformanceMetrics) float64 { return m.FollowThrough }},
}

// Aggregate merges the current result with past results. It has no side
// effects and does not modify its inputs; current may be nil.
func Aggregate(current *entity.AnalysisResult, history []entity.HistoricalData) Presentation {
	p := Presentation{Current: current}

	seen := map[string]bool{}
	if current != nil {
		seen[current.VideoID] = true
		p.Recommendations = entity.SortedRecommendations(current.Recommendations)
		p.Timeline = append([]entity.TimelineSegment(nil), current.Timeline...)
		sort.SliceStable(p.Timeline, func(i, k int) bool {
			return p.Timeline[i].StartTime < p.Timeline[k].StartTime
		})
	}
	for _, h := range history {
		if h.VideoID != "" && seen[h.VideoID] {
			continue
		}
		seen[h.VideoID] = true
		p.History = append(p.History, h)
	}
	sort.SliceStable(p.History, func(i, k int) bool {
		return p.History[i].Timestamp.After(p.History[k].Timestamp.Time)
	})

	if current == nil && len(p.History) == 0 {
		return p
	}

	// oldest first, current last
	points := make([]entity.HistoricalData, 0, len(p.History)+1)
	for i := len(p.History) - 1; i >= 0; i-- {
		points = append(points, p.History[i])
	}
	if current != nil {
		points = append(points, current.Summary())
	}

	for _, tm := range trackedMetrics {
		p.Trends = append(p.Trends, buildTrend(tm, points, current != nil, len(p.History)))
	}
	return p
}

func buildTrend(tm trackedMetric, points []entity.HistoricalData, hasCurrent bool, historyLen int) MetricTrend {
	t := MetricTrend{Metric: tm.name, Direction: TrendSteady}
	for _, pt := range points {
		t.Series = append(t.Series, TrendPoint{VideoID: pt.VideoID, Timestamp: pt.Timestamp.Time, Value: tm.value(pt.Metrics)})
	}
	if historyLen > 0 {
		sum := 0.0
		for _, pt := range points[:historyLen] {
			sum += tm.value(pt.Metrics)
		}
		t.HistoryMean = sum / float64(historyLen)
	}
	if !hasCurrent {
		return t
	}
	t.Current = tm.value(points[len(points)-1].Metrics)
	if historyLen == 0 {
		return t
	}
	t.Delta = t.Current - t.HistoryMean
	switch {
	case math.Abs(t.Delta) < steadyBand:
		t.Direction = TrendSteady
	case t.Delta > 0:
		t.Direction = TrendImproving
	default:
		t.Direction = TrendDeclining
	}
	return t
}
