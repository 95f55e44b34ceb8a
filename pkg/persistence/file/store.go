package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// jsonStore is a directory of one-JSON-document-per-entity files guarded by
// a single lock. Runs are written by the engine while the API reads them,
// so every repository shares this locking discipline.
type jsonStore struct {
	dir string
	mu  sync.RWMutex
}

func newJSONStore(dir string) *jsonStore {
	return &jsonStore{dir: dir}
}

func (s *jsonStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *jsonStore) save(id string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}

	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}

	if err := os.Rename(tmp, s.path(id)); err != nil {
		return fmt.Errorf("commit %s: %w", id, err)
	}

	return nil
}

// load decodes the document with the given id into v. Returns notFound when
// no document exists.
func (s *jsonStore) load(id string, v any, notFound error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound
		}

		return fmt.Errorf("read %s: %w", id, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", id, err)
	}

	return nil
}

// ids lists the entity ids present in the store.
func (s *jsonStore) ids() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}

	out := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}

		out = append(out, name[:len(name)-len(".json")])
	}

	return out, nil
}

func (s *jsonStore) delete(id string, notFound error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound
		}

		return fmt.Errorf("delete %s: %w", id, err)
	}

	return nil
}
