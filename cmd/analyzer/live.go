package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/courtvision/analysis-client/internal/infra/ffmpeg"
	"github.com/courtvision/analysis-client/internal/infra/metrics"
	"github.com/courtvision/analysis-client/internal/infra/render"
	"github.com/courtvision/analysis-client/internal/usecase"
)

func runLive(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	device := fs.String("device", a.cfg.CameraDevice, "camera device")
	fps := fs.Int("fps", a.cfg.LiveFPS, "frames sent per second")
	if err := fs.Parse(args); err != nil {
		return err
	}

	camera := ffmpeg.NewCamera(ffmpeg.CameraConfig{
		Device:      *device,
		InputFormat: a.cfg.CameraInputFormat,
		FPS:         *fps,
	}, a.log)

	canvas := render.NewCanvas()
	hud := render.NewHUD(canvas)
	metrics.StartServer(ctx, a.cfg.MetricsPort, canvas, a.log)

	streamer := usecase.NewLiveStreamer(camera, a.dialer, a.codec, hud, usecase.LiveConfig{
		URL: a.api.LiveStreamURL(),
		FPS: *fps,
	}, a.log)

	if err := streamer.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, streamer.Status().Notice)
		return errUsage
	}
	defer streamer.Stop()
	fmt.Println("streaming; press Ctrl+C to stop")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return streamer.Stop()
		case <-ticker.C:
		}
		st := streamer.Status()
		printLiveStatus(os.Stdout, st, streamer.Latest())
		if st.State == usecase.LiveError {
			fmt.Fprintln(os.Stderr, st.Notice)
			return errUsage
		}
	}
}
