package ffmpeg

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveWriter_PacksFramesAndResult(t *testing.T) {
	dir := t.TempDir()
	var frames []string
	for _, name := range []string{"frame_00001.jpg", "frame_00002.jpg"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		frames = append(frames, p)
	}
	out := filepath.Join(dir, "analysis.zip")

	size, err := NewArchiveWriter().CreateArchive(context.Background(), frames, []byte(`{"video_id":"v1"}`), out)
	require.NoError(t, err)
	assert.Positive(t, size)

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"frames/frame_00001.jpg", "frames/frame_00002.jpg", "result.json"}, names)

	rc, err := zr.File[2].Open()
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.JSONEq(t, `{"video_id":"v1"}`, string(body))
}

func TestArchiveWriter_Cancelled(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "frame_00001.jpg")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewArchiveWriter().CreateArchive(ctx, []string{p}, nil, filepath.Join(dir, "out.zip"))
	assert.ErrorIs(t, err, context.Canceled)
}
