package expander

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/fiapx/fiapx-frame-expander/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-expander/internal/domain/port"
)

// maxFramesPerSource bounds duration*fps before it is converted to an int.
const maxFramesPerSource = 1 << 24

// Expander repeats each source image into a numbered frame sequence so that
// every image is held for its duration at a fixed frame rate.
type Expander struct{}

func New() *Expander {
	return &Expander{}
}

// FrameCount is the number of frames a source held for duration seconds
// occupies at fps. The product is truncated; non-positive results yield 0.
func FrameCount(duration float64, fps int) int {
	n := int(duration * float64(fps))
	if n < 0 {
		return 0
	}
	return n
}

// FramePath names the output frame with the given global index.
func FramePath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("image%d.png", index))
}

// Expand copies req.Sources into req.DestinationDir as image0.png, image1.png, ...
// The destination directory must already exist. On failure the partial result
// is returned alongside the error and frames already written are left in place.
//
// Durations must be finite and non-negative, and duration*fps may not exceed
// 1<<24 frames for a single source; such requests fail with ErrInvalidArgument
// before anything is written. A frame path that resolves to any listed source
// also fails with ErrInvalidArgument and the source is left untouched.
func (e *Expander) Expand(ctx context.Context, req port.ExpansionRequest) (*port.ExpansionResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	pairs := min(len(req.Sources), len(req.Durations))
	result := &port.ExpansionResult{
		Counts:  make([]int, pairs),
		Skipped: append([]string(nil), req.Sources[pairs:]...),
	}
	guard := sourceGuard(req.Sources)

	index := 0
	for k := 0; k < pairs; k++ {
		repeat := FrameCount(req.Durations[k], req.FPS)
		if repeat == 0 {
			continue
		}

		written, err := copyRepeated(ctx, req.Sources[k], req.DestinationDir, index, repeat, guard)
		result.Frames = append(result.Frames, written...)
		result.Counts[k] = len(written)
		index += len(written)
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

func validate(req port.ExpansionRequest) error {
	if req.FPS <= 0 {
		return &entity.ExpandError{
			Kind:  entity.ErrInvalidArgument,
			Index: -1,
			Err:   fmt.Errorf("fps must be positive, got %d", req.FPS),
		}
	}

	if req.StrictPairing && len(req.Sources) != len(req.Durations) {
		return &entity.ExpandError{
			Kind:  entity.ErrInvalidArgument,
			Index: -1,
			Err:   fmt.Errorf("%d sources but %d durations", len(req.Sources), len(req.Durations)),
		}
	}

	pairs := min(len(req.Sources), len(req.Durations))
	for k, d := range req.Durations[:pairs] {
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 || d*float64(req.FPS) > maxFramesPerSource {
			return &entity.ExpandError{
				Kind:  entity.ErrInvalidArgument,
				Path:  req.Sources[k],
				Index: -1,
				Err:   fmt.Errorf("duration %v out of range", d),
			}
		}
	}

	return nil
}

// sourceGuard stats every listed source, skipped ones included. Missing
// sources are left out and reported as ErrNotFound when their turn comes.
func sourceGuard(sources []string) []os.FileInfo {
	infos := make([]os.FileInfo, 0, len(sources))
	for _, src := range sources {
		if info, err := os.Stat(src); err == nil {
			infos = append(infos, info)
		}
	}
	return infos
}

// overwritesSource reports whether dst is the same file as any source.
func overwritesSource(dst string, sources []os.FileInfo) bool {
	info, err := os.Stat(dst)
	if err != nil {
		return false
	}
	for _, src := range sources {
		if os.SameFile(info, src) {
			return true
		}
	}
	return false
}

// copyRepeated writes repeat copies of src starting at frame index first. The
// source is opened once and rewound between copies.
func copyRepeated(ctx context.Context, src, dstDir string, first, repeat int, guard []os.FileInfo) ([]string, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, &entity.ExpandError{Kind: entity.ErrNotFound, Path: src, Index: -1, Err: err}
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return nil, &entity.ExpandError{Kind: entity.ErrNotFound, Path: src, Index: -1, Err: err}
	}
	if info.IsDir() {
		return nil, &entity.ExpandError{Kind: entity.ErrNotFound, Path: src, Index: -1, Err: fmt.Errorf("is a directory")}
	}

	written := make([]string, 0, repeat)
	for i := 0; i < repeat; i++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		if _, err := in.Seek(0, io.SeekStart); err != nil {
			return written, &entity.ExpandError{Kind: entity.ErrNotFound, Path: src, Index: -1, Err: err}
		}

		dst := FramePath(dstDir, first+i)
		if overwritesSource(dst, guard) {
			return written, &entity.ExpandError{
				Kind:  entity.ErrInvalidArgument,
				Path:  dst,
				Index: first + i,
				Err:   fmt.Errorf("frame would overwrite source file"),
			}
		}
		if err := copyTo(in, dst); err != nil {
			return written, &entity.ExpandError{Kind: entity.ErrWriteFailure, Path: dst, Index: first + i, Err: err}
		}
		written = append(written, dst)
	}

	return written, nil
}

func copyTo(in io.Reader, dst string) error {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
