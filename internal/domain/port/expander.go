package port

import "context"

// ExpansionRequest pairs Sources with Durations by position. Pairing stops at
// the shorter of the two unless StrictPairing is set.
type ExpansionRequest struct {
	Sources        []string
	Durations      []float64
	FPS            int
	DestinationDir string
	StrictPairing  bool
}

type ExpansionResult struct {
	// Frames holds the written frame paths in index order.
	Frames []string
	// Counts holds the frames written per paired source.
	Counts []int
	// Skipped holds the sources left without a duration.
	Skipped []string
}

func (r *ExpansionResult) FrameCount() int {
	return len(r.Frames)
}

type FrameExpander interface {
	Expand(ctx context.Context, req ExpansionRequest) (*ExpansionResult, error)
}

type SourceLister interface {
	ListSources(dir string) ([]string, error)
}
