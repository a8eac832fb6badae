package entity

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const DefaultMaxUploadBytes int64 = 500 * 1024 * 1024

var DefaultVideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm", ".m4v"}

var videoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

type VideoFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

func VideoFileFromPath(path string) (VideoFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return VideoFile{}, fmt.Errorf("stat video: %w", err)
	}
	if info.IsDir() {
		return VideoFile{}, &ValidationError{Field: "file", Reason: fmt.Sprintf("%s is a directory", path)}
	}
	return VideoFile{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

func (f VideoFile) Extension() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

func (f VideoFile) ContentType() string {
	if ct, ok := videoContentTypes[f.Extension()]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(f.Extension()); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type VideoRules struct {
	MaxBytes          int64
	AllowedExtensions []string
}

func DefaultVideoRules() VideoRules {
	return VideoRules{MaxBytes: DefaultMaxUploadBytes, AllowedExtensions: DefaultVideoExtensions}
}

// Validate runs the client-side pre-flight checks.
func (r VideoRules) Validate(f VideoFile) error {
	if strings.TrimSpace(f.Name) == "" {
		return &ValidationError{Field: "file", Reason: "No file selected."}
	}
	if f.Open == nil {
		return &ValidationError{Field: "file", Reason: "The selected file cannot be read."}
	}

	allowed := r.AllowedExtensions
	if len(allowed) == 0 {
		allowed = DefaultVideoExtensions
	}
	ext := f.Extension()
	supported := false
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), ext) {
			supported = true
			break
		}
	}
	if !supported {
		return &ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("Unsupported file type %q. Supported formats: %s.", ext, strings.Join(allowed, ", ")),
		}
	}

	if f.Size <= 0 {
		return &ValidationError{Field: "file", Reason: "The selected file is empty."}
	}
	maxBytes := r.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if f.Size > maxBytes {
		return &ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("File is too large (%d MB). Maximum size is %d MB.", f.Size>>20, maxBytes>>20),
		}
	}
	return nil
}
