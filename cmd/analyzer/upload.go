package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/courtvision/analysis-client/internal/infra/metrics"
	"github.com/courtvision/analysis-client/internal/infra/render"
	"github.com/courtvision/analysis-client/internal/usecase"
)

func runUpload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	preview := fs.Bool("preview", a.cfg.PreviewEnabled, "serve the visualization at /preview/latest.jpg")
	record := fs.String("record", "", "also write visualization frames to this directory")
	local := fs.Bool("local-history", false, "merge locally stored results into the history")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: analyzer upload [flags] <file>")
		return errUsage
	}

	file, err := entity.VideoFileFromPath(fs.Arg(0))
	if err != nil {
		return err
	}

	canvas := render.NewCanvas()
	var surface port.Surface = canvas
	if *record != "" {
		rec, err := render.NewRecorder(*record, a.cfg.LiveJPEGQuality)
		if err != nil {
			return err
		}
		surface = render.Multi{canvas, rec}
	}
	if *preview {
		metrics.StartServer(ctx, a.cfg.MetricsPort, canvas, a.log)
	}

	receiver := usecase.NewFrameReceiver(a.dialer, a.codec, surface, usecase.FrameReceiverConfig{
		StreamURL: a.api.RecordedStreamURL,
	}, a.log)

	poller := usecase.NewPoller(a.api, usecase.PollerConfig{
		Interval:    a.cfg.PollInterval,
		MaxDuration: a.cfg.PollMaxDuration,
	}, a.log)
	ctrl := usecase.NewUploadController(a.api, poller, receiver, usecase.UploadControllerConfig{
		Rules: a.cfg.VideoRules(),
		Team:  a.cfg.TeamParams(),
	}, a.log)

	session, err := ctrl.Start(ctx, file)
	if err != nil {
		fmt.Fprintln(os.Stderr, entity.UserMessage(err))
		return errUsage
	}
	defer session.Dispose()

	for ev := range session.Events() {
		printEvent(os.Stdout, ev)
	}
	result, err := session.Wait(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "analysis failed:", entity.UserMessage(err))
		return errUsage
	}

	if st := receiver.Status(); st.Notice != "" {
		fmt.Fprintln(os.Stderr, st.Notice)
	}

	history := usecase.NewHistoryService(a.api, a.historyStore(ctx, *local), a.cfg.UserID, a.log).
		Recent(ctx, a.cfg.HistoryLimit)
	printPresentation(os.Stdout, usecase.Aggregate(result, history))
	return nil
}
