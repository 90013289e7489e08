package cache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dhappy/git-remote-igis/internal/igiserr"
)

// Mem is an in-memory Cache used by tests in place of the LevelDB backend.
// Guarded by a single mutex, a plain map-plus-RWMutex index.
type Mem struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMem creates an empty in-memory cache.
func NewMem() *Mem {
	return &Mem{data: make(map[string]string)}
}

func (m *Mem) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Mem) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.data[key]; ok {
		if existing == value {
			return nil
		}
		return fmt.Errorf("%w: key %s", igiserr.ErrCacheInconsistent, key)
	}
	m.data[key] = value
	return nil
}

func (m *Mem) Drop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	return nil
}

func (m *Mem) Iterate() (func(yield func(Entry) bool), error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	snapshot := make(map[string]string, len(m.data))
	for k, v := range m.data {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	return func(yield func(Entry) bool) {
		for _, k := range keys {
			if !yield(Entry{Key: k, Value: snapshot[k]}) {
				return
			}
		}
	}, nil
}

func (m *Mem) Close() error { return nil }
