package fetch

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// File serves a saved page from disk regardless of the requested URL.
// Used to run the extractors against a stored copy of a lender page.
type File struct {
	path   string
	logger *zap.Logger
}

func NewFile(path string, logger *zap.Logger) *File {
	return &File{path: path, logger: logger}
}

func (f *File) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.logger.Info("serving page from file", zap.String("url", url), zap.String("path", f.path))

	body, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read saved page %s: %w", f.path, err)
	}
	return body, nil
}
