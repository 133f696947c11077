package editor

import (
	"context"
	"fmt"
	"os"
)

// Stater reports the on-disk size of a document.
type Stater interface {
	Size(ctx context.Context, path string) (int64, error)
}

// FileStater stats documents on the local filesystem.
type FileStater struct{}

// Size returns the byte size of the file at path.
func (FileStater) Size(ctx context.Context, path string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("stat %s: is a directory", path)
	}
	return info.Size(), nil
}
