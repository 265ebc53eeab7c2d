package port

import (
	"context"
	"io"
)

type SourceStorage interface {
	DownloadSources(ctx context.Context, prefix string, destDir string) (int, error)
	UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64) error
}
