package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const jobStateFileName = ".download_state.json"

// JobStateStore persists the set of completed trading days per symbol so a
// subsequent run can resume instead of refetching everything.
type JobStateStore interface {
	Load(symbol string) (completed map[string]bool, err error)
	Save(symbol string, completed, total []time.Time) error
	Clear(symbol string) error
}

type jobStateEntry struct {
	Completed []string  `json:"completed"`
	Total     []string  `json:"total"`
	Updated   time.Time `json:"updated"`
}

// JSONFileJobStateStore is the default JobStateStore, writing exactly the
// .download_state.json shape the specification documents: a JSON object
// mapping symbol to {completed, total, updated}.
type JSONFileJobStateStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONFileJobStateStore builds a store rooted at outputDir.
func NewJSONFileJobStateStore(outputDir string) *JSONFileJobStateStore {
	return &JSONFileJobStateStore{path: filepath.Join(outputDir, jobStateFileName)}
}

func (s *JSONFileJobStateStore) readAll() (map[string]jobStateEntry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]jobStateEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobstate: read %s: %w", s.path, err)
	}
	var state map[string]jobStateEntry
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("jobstate: unmarshal %s: %w", s.path, err)
	}
	return state, nil
}

func (s *JSONFileJobStateStore) writeAll(state map[string]jobStateEntry) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("jobstate: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("jobstate: write %s: %w", s.path, err)
	}
	return nil
}

// Load returns the set of completed date keys (YYYY-MM-DD) for symbol.
func (s *JSONFileJobStateStore) Load(symbol string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.readAll()
	if err != nil {
		return nil, err
	}
	entry, ok := state[symbol]
	completed := make(map[string]bool)
	if !ok {
		return completed, nil
	}
	for _, d := range entry.Completed {
		completed[d] = true
	}
	return completed, nil
}

// Save persists the updated completed/total date sets for symbol.
func (s *JSONFileJobStateStore) Save(symbol string, completed, total []time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.readAll()
	if err != nil {
		return err
	}

	state[symbol] = jobStateEntry{
		Completed: dateStrings(completed),
		Total:     dateStrings(total),
		Updated:   time.Now().UTC(),
	}
	return s.writeAll(state)
}

// Clear removes symbol's entry entirely, called on successful completion.
func (s *JSONFileJobStateStore) Clear(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.readAll()
	if err != nil {
		return err
	}
	delete(state, symbol)
	return s.writeAll(state)
}

func dateStrings(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format("2006-01-02")
	}
	sort.Strings(out)
	return out
}
