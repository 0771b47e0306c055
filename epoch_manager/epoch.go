package epoch

/*
Operation scopes for safe deferred reclamation.

A mutator or reader wraps every traversal in an Op. While the Op is
open, any block it may have observed a pointer to stays mapped and
unreused, even if a concurrent writer unlinks and frees it. The heap
stamps each deferred free with the epoch current at free time and bumps
the epoch; a block becomes reclaimable once every scope whose entry
epoch is at or below that stamp has exited.

Entering a scope is a map insert under a mutex, no syscall. Scopes on
different goroutines are independent, and a goroutine may hold any
number of nested scopes.
*/

import (
	"sync"
	"sync/atomic"
)

// Manager tracks the global epoch and the set of live scopes.
// Process-wide; use Get for the shared instance.
type Manager struct {
	mu     sync.Mutex
	active map[uint64]uint64 // op id -> entry epoch
	global atomic.Uint64
	nextOp atomic.Uint64
}

var (
	instance *Manager
	initOnce sync.Mutex
)

// Get returns the process-wide manager, creating it on first use.
func Get() *Manager {
	initOnce.Lock()
	defer initOnce.Unlock()
	if instance == nil {
		instance = NewManager()
	}
	return instance
}

// Reset discards the process-wide manager. Intended for tests; any
// scope still open on the old instance keeps working against it.
func Reset() {
	initOnce.Lock()
	instance = nil
	initOnce.Unlock()
}

// NewManager builds an empty manager with the epoch at 1.
func NewManager() *Manager {
	m := &Manager{active: make(map[uint64]uint64)}
	m.global.Store(1)
	return m
}

// Op is one open operation scope. Exit must be called on every path;
// it is idempotent, so `defer op.Exit()` is the usual form.
type Op struct {
	m    *Manager
	id   uint64
	done bool
	mu   sync.Mutex
}

// Enter opens a scope registered at the current epoch.
func (m *Manager) Enter() *Op {
	id := m.nextOp.Add(1)
	m.mu.Lock()
	m.active[id] = m.global.Load()
	m.mu.Unlock()
	return &Op{m: m, id: id}
}

// Exit retires the scope. Idempotent.
func (o *Op) Exit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return
	}
	o.done = true
	o.m.mu.Lock()
	delete(o.m.active, o.id)
	o.m.mu.Unlock()
}

// Current returns the global epoch.
func (m *Manager) Current() uint64 {
	return m.global.Load()
}

// Advance bumps the global epoch so scopes entered from now on cannot
// be observing anything unlinked before the bump.
func (m *Manager) Advance() {
	m.global.Add(1)
}

// MinActive returns the lowest entry epoch among live scopes, or the
// current epoch when none are live. A block stamped with epoch e is
// reclaimable iff e < MinActive().
func (m *Manager) MinActive() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	min := m.global.Load()
	for _, e := range m.active {
		if e < min {
			min = e
		}
	}
	return min
}
