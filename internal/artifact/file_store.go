package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore writes artifacts under a local output directory. The tree is
// laid out as <root>/<path>; runID is validated but not part of the layout,
// so a directory holds the output of one migration.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: strings.TrimSpace(root)}
}

func (s *FileStore) Put(_ context.Context, runID, path string, content []byte) error {
	full, err := s.pathFor(runID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}

func (s *FileStore) Get(_ context.Context, runID, path string) ([]byte, error) {
	full, err := s.pathFor(runID, path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *FileStore) GetURL(_ context.Context, runID, path string) (string, error) {
	return s.pathFor(runID, path)
}

func (s *FileStore) List(_ context.Context, runID string) ([]string, error) {
	if s == nil || s.root == "" {
		return nil, fmt.Errorf("artifact root is required")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	var out []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) pathFor(runID, path string) (string, error) {
	if s == nil || s.root == "" {
		return "", fmt.Errorf("artifact root is required")
	}
	_, path, err := normalize(runID, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(path)), nil
}
