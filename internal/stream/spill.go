package stream

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// DayOrdinal returns the monotonic day-ordinal used to name a trading
// day's partial file: days elapsed since a fixed epoch.
func DayOrdinal(date time.Time) int {
	return int(date.UTC().Sub(epoch).Hours() / 24)
}

// SpillDir is the scoped temp-directory resource for one symbol's partial
// files. It is acquired at symbol start and must be removed on every exit
// path, success, failure, or cancellation alike.
type SpillDir struct {
	dir    string
	symbol string
}

// NewSpillDir creates a fresh temp directory under baseDir for symbol's
// partials. baseDir may be empty to use the OS default temp location.
func NewSpillDir(baseDir, symbol string) (*SpillDir, error) {
	dir, err := os.MkdirTemp(baseDir, fmt.Sprintf("fxhistorian-%s-*", symbol))
	if err != nil {
		return nil, fmt.Errorf("stream: create spill dir: %w", err)
	}
	return &SpillDir{dir: dir, symbol: symbol}, nil
}

// PartialPath returns the path of the partial file for a given day
// ordinal.
func (s *SpillDir) PartialPath(ordinal int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.partial", ordinal))
}

// Close removes the entire spill directory and everything in it.
func (s *SpillDir) Close() error {
	return os.RemoveAll(s.dir)
}
