package port

import "context"

// Zipper writes frames and an optional result document into one archive and
// returns the archive size.
type Zipper interface {
	CreateArchive(ctx context.Context, framePaths []string, result []byte, outputPath string) (int64, error)
}
