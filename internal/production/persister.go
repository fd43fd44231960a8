// Package production provides production integrations for machines:
// snapshot stores, publishers, a Graphviz exporter and Prometheus metrics.
package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/comalice/harel"
	"github.com/comalice/harel/internal/core"
)

// MemoryStore keeps snapshots in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]harel.Snapshot
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]harel.Snapshot)}
}

func (s *MemoryStore) Save(_ context.Context, machineID string, snap harel.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[machineID] = cloneSnapshot(snap)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, machineID string) (harel.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[machineID]
	if !ok {
		return harel.Snapshot{}, fmt.Errorf("machine %q: %w", machineID, core.ErrNotFound)
	}
	return cloneSnapshot(snap), nil
}

// Delete removes the snapshot of machineID.
func (s *MemoryStore) Delete(_ context.Context, machineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, machineID)
	return nil
}

// List returns the stored machine ids, sorted.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snaps))
	for id := range s.snaps {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func cloneSnapshot(snap harel.Snapshot) harel.Snapshot {
	out := snap
	out.Active = slices.Clone(snap.Active)
	out.Entered = maps.Clone(snap.Entered)
	out.Data = maps.Clone(snap.Data)
	return out
}

// codec marshals snapshots for a file store.
type codec struct {
	ext       string
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var (
	jsonCodec = codec{
		ext:       ".json",
		marshal:   func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
		unmarshal: json.Unmarshal,
	}
	yamlCodec = codec{
		ext:       ".yaml",
		marshal:   yaml.Marshal,
		unmarshal: yaml.Unmarshal,
	}
)

// FileStore writes one file per machine into a directory.
type FileStore struct {
	dir   string
	codec codec
	mu    sync.Mutex
}

// NewJSONStore creates a FileStore writing indented JSON, creating dir if needed.
func NewJSONStore(dir string) (*FileStore, error) {
	return newFileStore(dir, jsonCodec)
}

// NewYAMLStore creates a FileStore writing YAML, creating dir if needed.
func NewYAMLStore(dir string) (*FileStore, error) {
	return newFileStore(dir, yamlCodec)
}

func newFileStore(dir string, c codec) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, codec: c}, nil
}

func (s *FileStore) path(machineID string) string {
	return filepath.Join(s.dir, machineID+s.codec.ext)
}

func (s *FileStore) Save(_ context.Context, machineID string, snap harel.Snapshot) error {
	data, err := s.codec.marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// write then rename so readers never see a partial file
	fn := s.path(machineID)
	tmp := fn + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, fn); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, machineID string) (harel.Snapshot, error) {
	fn := s.path(machineID)
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return harel.Snapshot{}, fmt.Errorf("machine %q: %w", machineID, core.ErrNotFound)
		}
		return harel.Snapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}
	var snap harel.Snapshot
	if err := s.codec.unmarshal(data, &snap); err != nil {
		return harel.Snapshot{}, fmt.Errorf("unmarshal %s: %w", fn, err)
	}
	return snap, nil
}
