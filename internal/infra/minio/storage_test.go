package minio

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

func TestStorageRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer container.Terminate(context.Background())

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := NewStorage(StorageConfig{
		Endpoint:      endpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		VideoBucket:   "videos",
		ArchiveBucket: "analysis",
	})
	require.NoError(t, err)
	require.NoError(t, s.EnsureBuckets(ctx))
	require.NoError(t, s.EnsureBuckets(ctx))

	video := []byte("not really an mp4")
	require.NoError(t, s.PutVideo(ctx, "u/clip.mp4", bytes.NewReader(video), int64(len(video)), "video/mp4"))

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, s.DownloadVideo(ctx, "u/clip.mp4", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, video, got)

	archive := []byte("PK fake zip")
	require.NoError(t, s.UploadArchive(ctx, "u/1/analysis.zip", bytes.NewReader(archive), int64(len(archive))))
	require.NoError(t, s.UploadResult(ctx, "u/1/result.json", []byte(`{"video_id":"1"}`)))

	info, err := s.client.StatObject(ctx, "analysis", "u/1/analysis.zip", miniogo.StatObjectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "application/zip", info.ContentType)

	obj, err := s.client.GetObject(ctx, "analysis", "u/1/result.json", miniogo.GetObjectOptions{})
	require.NoError(t, err)
	body, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.JSONEq(t, `{"video_id":"1"}`, string(body))

	assert.Error(t, s.DownloadVideo(ctx, "u/missing.mp4", filepath.Join(t.TempDir(), "x.mp4")))
}
