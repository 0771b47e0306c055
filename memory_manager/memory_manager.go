package memorymanager

/*
Process-wide pool registry.

The memory manager owns every open heap in the process and translates
global pointers to local byte views. Heap files live under the shelf
base directory, one file per pool id, shared with any cooperating
process using the same shelf configuration.
*/

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"famkv/config"
	"famkv/heap"
	"famkv/types"

	epoch "famkv/epoch_manager"
)

// Manager is the pool registry. Use Get for the process instance.
type Manager struct {
	mu    sync.Mutex
	cfg   config.Config
	emgr  *epoch.Manager
	heaps map[types.PoolID]*heap.Heap
}

var (
	instance *Manager
	initOnce sync.Mutex
)

// Get returns the process-wide manager, built from the environment on
// first use.
func Get() *Manager {
	initOnce.Lock()
	defer initOnce.Unlock()
	if instance == nil {
		instance = NewManager(config.FromEnv(), epoch.Get())
	}
	return instance
}

// Reset closes every open heap and discards the process instance.
// Intended for tests.
func Reset() {
	initOnce.Lock()
	defer initOnce.Unlock()
	if instance != nil {
		instance.CloseAll()
		instance = nil
	}
}

// NewManager builds a registry over the given shelf configuration.
func NewManager(cfg config.Config, emgr *epoch.Manager) *Manager {
	return &Manager{
		cfg:   cfg,
		emgr:  emgr,
		heaps: make(map[types.PoolID]*heap.Heap),
	}
}

// FindHeap returns the open heap with the given pool id, or nil.
func (m *Manager) FindHeap(id types.PoolID) *heap.Heap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heaps[id]
}

// CreateHeap creates (or reopens) the pool file for id and maps it.
// Fails if the pool is already open in this process.
func (m *Manager) CreateHeap(id types.PoolID, size int64) (*heap.Heap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.heaps[id]; ok {
		return nil, errors.Errorf("heap %d is already open", id)
	}
	if err := os.MkdirAll(m.cfg.ShelfBaseDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "shelf base dir")
	}
	if size <= 0 {
		size = m.cfg.HeapSize
	}
	h := heap.New(id, m.cfg.HeapPath(uint8(id)), m.emgr)
	if err := h.Open(size); err != nil {
		return nil, err
	}
	m.heaps[id] = h
	return h, nil
}

// CloseHeap unmaps the pool and drops it from the registry, keeping
// its backing file for a later reopen.
func (m *Manager) CloseHeap(id types.PoolID) error {
	m.mu.Lock()
	h, ok := m.heaps[id]
	delete(m.heaps, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return h.Close()
}

// DestroyHeap closes the pool and removes its backing file.
func (m *Manager) DestroyHeap(id types.PoolID) error {
	m.mu.Lock()
	h, ok := m.heaps[id]
	delete(m.heaps, id)
	m.mu.Unlock()
	if ok {
		if err := h.Close(); err != nil {
			return err
		}
	}
	return os.Remove(m.cfg.HeapPath(uint8(id)))
}

// GlobalToLocal resolves g to a local byte view of length n.
// The pool named by g must be open.
func (m *Manager) GlobalToLocal(g types.Gptr, n int) []byte {
	m.mu.Lock()
	h := m.heaps[g.Pool()]
	m.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Bytes(g, n)
}

// Epoch returns the epoch manager shared by all heaps of this registry.
func (m *Manager) Epoch() *epoch.Manager { return m.emgr }

// CloseAll closes every open heap; the registry stays usable.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for id, h := range m.heaps {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.heaps, id)
	}
	return firstErr
}
