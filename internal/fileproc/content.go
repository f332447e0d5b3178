package fileproc

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrTooLarge is reported for files exceeding the size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// ReadFiles reads the files concurrently. Contents are returned in input
// order; unreadable files and files larger than maxSize (when positive) are
// left nil and reported in the errors.
func ReadFiles(ctx context.Context, files []string, maxSize int64, workers int) ([][]byte, *ProcessingErrors) {
	return ForEachFile(ctx, files, workers, func(_ context.Context, path string) ([]byte, error) {
		if maxSize > 0 {
			info, err := os.Stat(path)
			if err != nil {
				return nil, err
			}
			if info.Size() > maxSize {
				return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, info.Size(), maxSize)
			}
		}
		return os.ReadFile(path)
	}, nil)
}
