package localfs

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Lister enumerates source images in a directory by file name suffix.
type Lister struct {
	extension string
}

func NewLister(extension string) *Lister {
	return &Lister{extension: extension}
}

// ListSources returns the names (not paths) of regular entries in dir ending
// in the configured extension, sorted lexicographically. Matching is
// case-sensitive.
func (l *Lister) ListSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), l.extension) {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}
