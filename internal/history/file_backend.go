package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func (s *Store) ensureLoadedFile() {
	s.loadOnce.Do(func() {
		if strings.TrimSpace(s.path) == "" {
			return
		}
		b, err := os.ReadFile(s.path)
		if err != nil {
			return
		}
		var rows []Run
		if err := json.Unmarshal(b, &rows); err != nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, row := range rows {
			id := strings.TrimSpace(row.RunID)
			if id == "" {
				continue
			}
			s.byID[id] = row
		}
	})
}

func (s *Store) saveFileLocked() error {
	if strings.TrimSpace(s.path) == "" {
		return nil
	}
	rows := make([]Run, 0, len(s.byID))
	for _, run := range s.byID {
		rows = append(rows, run)
	}
	sortNewestFirst(rows)
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o644)
}

func (s *Store) putFile(run Run) error {
	s.ensureLoadedFile()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[run.RunID] = run
	if err := s.saveFileLocked(); err != nil {
		return fmt.Errorf("history save %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) getFile(runID string) (Run, bool, error) {
	s.ensureLoadedFile()
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.byID[runID]
	return run, ok, nil
}

func (s *Store) listFile(limit int) ([]Run, error) {
	s.ensureLoadedFile()
	s.mu.RLock()
	out := make([]Run, 0, len(s.byID))
	for _, run := range s.byID {
		run.Entries = nil
		out = append(out, run)
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(rows []Run) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].StartedAt.Equal(rows[j].StartedAt) {
			return rows[i].StartedAt.After(rows[j].StartedAt)
		}
		return rows[i].RunID < rows[j].RunID
	})
}
