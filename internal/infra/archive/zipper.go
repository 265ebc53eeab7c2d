package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ZipCreator packs frame files into a flat zip, one entry per file in the
// given order.
type ZipCreator struct{}

func NewZipCreator() *ZipCreator {
	return &ZipCreator{}
}

func (z *ZipCreator) CreateArchive(ctx context.Context, filePaths []string, outputPath string) (err error) {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer func() {
		if cerr := zipFile.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close zip file: %w", cerr)
		}
	}()

	zipWriter := zip.NewWriter(zipFile)
	seen := make(map[string]struct{}, len(filePaths))

	for _, fp := range filePaths {
		select {
		case <-ctx.Done():
			zipWriter.Close()
			return ctx.Err()
		default:
		}

		name := filepath.Base(fp)
		if _, dup := seen[name]; dup {
			zipWriter.Close()
			return fmt.Errorf("duplicate entry %s", name)
		}
		seen[name] = struct{}{}

		if err := addFileToZip(zipWriter, fp, name); err != nil {
			zipWriter.Close()
			return fmt.Errorf("add %s to zip: %w", fp, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	return nil
}

func addFileToZip(zw *zip.Writer, filename, name string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = name
	// PNG data is already deflated.
	header.Method = zip.Store

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
