package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	workflowsDir = "workflows"
	instancesDir = "instances"
	tasksDir     = "tasks"
	historyDir   = "history"
)

// store reads and writes JSON documents grouped by kind.
type store interface {
	read(kind, id string, v any) (bool, error)
	// each calls fn for every document of a kind, in id order.
	each(kind string, fn func(data []byte) error) error
	write(kind, id string, v any) error
	// atomically runs fn with exclusive access to the store.
	atomically(fn func(s store) error) error
}

type diskStore struct {
	root string
}

func (d *diskStore) path(kind, id string) string {
	return filepath.Join(d.root, kind, id+".json")
}

func (d *diskStore) read(kind, id string, v any) (bool, error) {
	data, err := os.ReadFile(d.path(kind, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}

	return true, nil
}

func (d *diskStore) ids(kind string) ([]string, error) {
	files, err := fs.Glob(os.DirFS(filepath.Join(d.root, kind)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", kind, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

func (d *diskStore) each(kind string, fn func(data []byte) error) error {
	ids, err := d.ids(kind)
	if err != nil {
		return err
	}

	for _, id := range ids {
		data, err := os.ReadFile(d.path(kind, id))
		if err != nil {
			return fmt.Errorf("failed to read %s %s: %w", kind, id, err)
		}

		err = fn(data)
		if err != nil {
			return err
		}
	}

	return nil
}

func (d *diskStore) write(kind, id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
	}

	return d.writeRaw(kind, id, data)
}

func (d *diskStore) writeRaw(kind, id string, data []byte) error {
	err := os.MkdirAll(filepath.Join(d.root, kind), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	return os.WriteFile(d.path(kind, id), data, 0600)
}

func (d *diskStore) atomically(fn func(s store) error) error {
	return fn(d)
}

// lockedStore guards a disk store shared by readers and transactions.
type lockedStore struct {
	mu   *sync.RWMutex
	disk *diskStore
}

func (l *lockedStore) read(kind, id string, v any) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.disk.read(kind, id, v)
}

func (l *lockedStore) each(kind string, fn func(data []byte) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.disk.each(kind, fn)
}

func (l *lockedStore) write(kind, id string, v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.disk.write(kind, id, v)
}

func (l *lockedStore) atomically(fn func(s store) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return fn(l.disk)
}

// stagedStore buffers writes over a disk store until commit.
type stagedStore struct {
	disk    *diskStore
	pending map[string]map[string][]byte
}

func newStagedStore(disk *diskStore) *stagedStore {
	return &stagedStore{disk: disk, pending: make(map[string]map[string][]byte)}
}

func (s *stagedStore) read(kind, id string, v any) (bool, error) {
	if data, ok := s.pending[kind][id]; ok {
		err := json.Unmarshal(data, v)
		if err != nil {
			return false, fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
		}

		return true, nil
	}

	return s.disk.read(kind, id, v)
}

func (s *stagedStore) each(kind string, fn func(data []byte) error) error {
	ids, err := s.disk.ids(kind)
	if err != nil {
		return err
	}

	staged := s.pending[kind]
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		seen[id] = true
	}

	for id := range staged {
		if !seen[id] {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	for _, id := range ids {
		data, ok := staged[id]
		if !ok {
			data, err = os.ReadFile(s.disk.path(kind, id))
			if err != nil {
				return fmt.Errorf("failed to read %s %s: %w", kind, id, err)
			}
		}

		err = fn(data)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *stagedStore) write(kind, id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
	}

	if s.pending[kind] == nil {
		s.pending[kind] = make(map[string][]byte)
	}

	s.pending[kind][id] = data

	return nil
}

func (s *stagedStore) atomically(fn func(s store) error) error {
	return fn(s)
}

func (s *stagedStore) commit() error {
	for kind, documents := range s.pending {
		for id, data := range documents {
			err := s.disk.writeRaw(kind, id, data)
			if err != nil {
				return fmt.Errorf("failed to commit %s %s: %w", kind, id, err)
			}
		}
	}

	return nil
}

// decodeAll collects every document of a kind matching keep.
func decodeAll[T any](s store, kind string, keep func(*T) bool) ([]*T, error) {
	items := make([]*T, 0)

	err := s.each(kind, func(data []byte) error {
		var item T

		err := json.Unmarshal(data, &item)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", kind, err)
		}

		if keep(&item) {
			items = append(items, &item)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

func page[T any](items []*T, offset, limit int) []*T {
	if offset >= len(items) {
		return make([]*T, 0)
	}

	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return items[offset:end]
}
