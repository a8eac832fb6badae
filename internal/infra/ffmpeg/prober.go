package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/courtvision/analysis-client/internal/domain/port"
)

type Prober struct {
	bin string
}

var _ port.VideoProber = (*Prober)(nil)

func NewProber() *Prober {
	return &Prober{bin: "ffprobe"}
}

// Duration returns the container duration of videoPath in seconds.
func (p *Prober) Duration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDuration(string(output))
}

func parseDuration(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("ffprobe: duration unavailable")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return d, nil
}
