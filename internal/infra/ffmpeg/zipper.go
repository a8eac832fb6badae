package ffmpeg

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/courtvision/analysis-client/internal/domain/port"
)

const resultEntryName = "result.json"

// ArchiveWriter packs recorded visualization frames and the analysis result
// into one zip.
type ArchiveWriter struct{}

var _ port.Zipper = (*ArchiveWriter)(nil)

func NewArchiveWriter() *ArchiveWriter {
	return &ArchiveWriter{}
}

func (a *ArchiveWriter) CreateArchive(ctx context.Context, framePaths []string, result []byte, outputPath string) (int64, error) {
	out, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, fp := range framePaths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := addFrame(zw, fp); err != nil {
			return 0, fmt.Errorf("add %s to archive: %w", fp, err)
		}
	}
	if result != nil {
		w, err := zw.Create(resultEntryName)
		if err != nil {
			return 0, err
		}
		if _, err := w.Write(result); err != nil {
			return 0, fmt.Errorf("write result entry: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finish archive: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func addFrame(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = "frames/" + filepath.Base(path)
	// JPEG frames are already compressed.
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
