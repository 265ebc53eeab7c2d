package minio

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Storage struct {
	client        *miniogo.Client
	sourceBucket  string
	archiveBucket string
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	SourceBucket  string
	ArchiveBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:        client,
		sourceBucket:  cfg.SourceBucket,
		archiveBucket: cfg.ArchiveBucket,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.sourceBucket, s.archiveBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// DownloadSources copies every object directly under prefix into destDir,
// keeping the object's base name. The prefix names a folder, so "user/set1"
// and "user/set1/" are equivalent. Nested "directories" are not descended.
func (s *Storage) DownloadSources(ctx context.Context, prefix string, destDir string) (int, error) {
	count := 0
	for obj := range s.client.ListObjects(ctx, s.sourceBucket, miniogo.ListObjectsOptions{
		Prefix:    folderPrefix(prefix),
		Recursive: false,
	}) {
		if obj.Err != nil {
			return count, fmt.Errorf("list sources: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}

		dest := filepath.Join(destDir, path.Base(obj.Key))
		if err := s.client.FGetObject(ctx, s.sourceBucket, obj.Key, dest, miniogo.GetObjectOptions{}); err != nil {
			return count, fmt.Errorf("download %s: %w", obj.Key, err)
		}
		count++
	}
	return count, nil
}

func folderPrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

func (s *Storage) UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.archiveBucket, objectKey, reader, size, miniogo.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	return nil
}
