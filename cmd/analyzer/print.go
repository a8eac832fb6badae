package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/usecase"
)

func printEvent(w io.Writer, ev entity.UploadEvent) {
	switch ev.Kind {
	case entity.EventUploadStarted:
		fmt.Fprintf(w, "uploading (job %s)\n", ev.VideoID)
	case entity.EventUploadProgress:
		fmt.Fprintf(w, "\ruploading %3d%%", ev.Percent)
		if ev.Percent >= 100 {
			fmt.Fprintln(w)
		}
	case entity.EventUploadAccepted:
		fmt.Fprintf(w, "accepted as %s, analyzing\n", ev.VideoID)
	case entity.EventStatusObserved:
		if ev.Status != nil {
			fmt.Fprintf(w, "  %-10s %5.1f%%  %s\n", ev.Status.Status, ev.Status.ProgressPercent, ev.Status.CurrentStep)
		}
	case entity.EventAnalysisCompleted:
		fmt.Fprintln(w, "analysis complete")
	case entity.EventAnalysisFailed:
		fmt.Fprintln(w, "analysis failed")
	}
}

func printPresentation(w io.Writer, p usecase.Presentation) {
	if p.Current != nil {
		r := p.Current
		fmt.Fprintf(w, "\n%s (%.0f%% confidence)\n", r.Action.Label, r.Action.Confidence*100)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "overall\t%.2f\n", r.Metrics.OverallScore)
		fmt.Fprintf(tw, "form\t%.2f\n", r.Metrics.FormScore)
		fmt.Fprintf(tw, "balance\t%.2f\n", r.Metrics.BalanceScore)
		fmt.Fprintf(tw, "consistency\t%.2f\n", r.Metrics.ConsistencyScore)
		fmt.Fprintf(tw, "follow-through\t%.2f\n", r.Metrics.FollowThrough)
		fmt.Fprintf(tw, "elbow angle\t%.1f°\n", r.Metrics.ElbowAngle)
		fmt.Fprintf(tw, "release angle\t%.1f°\n", r.Metrics.ReleaseAngle)
		tw.Flush()
		if r.AnnotatedVideoURL != "" {
			fmt.Fprintf(w, "annotated video: %s\n", r.AnnotatedVideoURL)
		}
	}

	if len(p.Recommendations) > 0 {
		fmt.Fprintln(w, "\nrecommendations:")
		for _, rec := range p.Recommendations {
			fmt.Fprintf(w, "  [%s] %s: %s\n", rec.Priority, rec.Title, rec.Description)
			if len(rec.Drills) > 0 {
				fmt.Fprintf(w, "      drills: %s\n", strings.Join(rec.Drills, ", "))
			}
		}
	}

	if len(p.Timeline) > 0 {
		fmt.Fprintln(w, "\ntimeline:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, seg := range p.Timeline {
			fmt.Fprintf(tw, "  %.2fs-%.2fs\t%s\t%s\n", seg.StartTime, seg.EndTime, seg.Phase, seg.Note)
		}
		tw.Flush()
	}

	if len(p.Trends) > 0 && len(p.History) > 0 {
		fmt.Fprintf(w, "\ntrends vs last %d:\n", len(p.History))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, t := range p.Trends {
			fmt.Fprintf(tw, "  %s\t%.2f\t%+.2f\t%s\n", t.Metric, t.Current, t.Delta, t.Direction)
		}
		tw.Flush()
	}
}

func printHistory(w io.Writer, history []entity.HistoricalData) {
	if len(history) == 0 {
		fmt.Fprintln(w, "no past analyses")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tVIDEO\tACTION\tOVERALL")
	for _, h := range history {
		when := "-"
		if !h.Timestamp.IsZero() {
			when = h.Timestamp.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", when, h.VideoID, h.Action, h.Metrics.OverallScore)
	}
	tw.Flush()
}

func printLiveStatus(w io.Writer, st usecase.LiveStatus, latest *entity.LiveAnalysisFrameResult) {
	line := fmt.Sprintf("%-9s %2d fps  sent %d  dropped %d", st.State, st.FPS, st.Sent, st.Dropped)
	if latest != nil {
		line += fmt.Sprintf("  %s %.0f%%  score %.2f", latest.Action.Label, latest.Action.Confidence*100, latest.Metrics.OverallScore)
	}
	if st.Notice != "" {
		line += "  (" + st.Notice + ")"
	}
	fmt.Fprintln(w, line)
}
