package heap

import (
	"github.com/juju/fslock"
	"github.com/pkg/errors"

	"famkv/fam"
	"famkv/logging"
	"famkv/status"
	"famkv/types"

	epoch "famkv/epoch_manager"
)

// New builds a closed heap handle for the pool file at path.
func New(id types.PoolID, path string, emgr *epoch.Manager) *Heap {
	return &Heap{
		id:        id,
		path:      path,
		emgr:      emgr,
		freeLists: make(map[uint64][]types.Gptr),
	}
}

// Open maps the pool, taking an exclusive lock on its file, and
// initializes the header on first use.
func (h *Heap) Open(size int64) error {
	if h.open {
		return nil
	}
	lock := fslock.New(h.path + ".lock")
	if err := lock.TryLock(); err != nil {
		return errors.Wrapf(err, "lock heap %s", h.path)
	}
	region, err := fam.Create(h.path, size)
	if err != nil {
		lock.Unlock()
		return err
	}
	h.flock = lock
	h.region = region

	if h.region.Load64(offMagic) != magic {
		h.region.Store64(offSize, uint64(region.Size()))
		h.region.Store64(offBump, headerSize)
		h.region.Store64(offRoot, 0)
		h.region.Store64(offMagic, magic)
		if err := h.region.Persist(0, headerSize); err != nil {
			h.closeLocked()
			return err
		}
	}
	h.open = true
	return nil
}

// IsOpen reports whether the pool is mapped.
func (h *Heap) IsOpen() bool { return h.open }

// Close flushes and unmaps the pool. Pending frees stay allocated in
// the pool (the free lists are process-local).
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return nil
	}
	h.open = false
	return h.closeLocked()
}

func (h *Heap) closeLocked() error {
	var firstErr error
	if h.region != nil {
		if err := h.region.Close(); err != nil {
			firstErr = err
		}
		h.region = nil
	}
	if h.flock != nil {
		if err := h.flock.Unlock(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "unlock heap")
		}
		h.flock = nil
	}
	return firstErr
}

// ID returns the pool id of this heap.
func (h *Heap) ID() types.PoolID { return h.id }

func align(n uint64) uint64 {
	return (n + blockAlign - 1) &^ uint64(blockAlign-1)
}

// Alloc returns a freshly owned block of at least n bytes at a stable
// pool address. The scope op must be open for the duration of the
// caller's use of the uninstalled block.
func (h *Heap) Alloc(op *epoch.Op, n int) (types.Gptr, status.Status) {
	_ = op
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return 0, status.New(status.NotInitialized, "heap is not open")
	}
	total := align(uint64(n) + blockPrefix)

	if lst := h.freeLists[total]; len(lst) > 0 {
		g := lst[len(lst)-1]
		h.freeLists[total] = lst[:len(lst)-1]
		return g, status.Okay
	}

	bump := h.region.Load64(offBump)
	if bump+total > uint64(h.region.Size()) {
		return 0, status.Newf(status.ResourceExhausted,
			"heap %d full: %d bytes requested", h.id, n)
	}
	h.region.Store64(offBump, bump+total)
	if err := h.region.Persist(offBump, 8); err != nil {
		return 0, status.New(status.Internal, err.Error())
	}
	h.region.Store64(bump, total)
	return types.MakeGptr(h.id, bump+blockPrefix), status.Okay
}

// Free schedules the block for deferred reclamation. The block is
// unreachable from the caller's perspective immediately, but its bytes
// stay intact until every scope active at this call has exited and
// OfflineFree has run. Never fails for a pointer produced by Alloc.
func (h *Heap) Free(op *epoch.Op, g types.Gptr) {
	_ = op
	if !g.IsValid() {
		return
	}
	size := h.region.Load64(g.Offset() - blockPrefix)
	stamp := h.emgr.Current()
	h.mu.Lock()
	h.pending = append(h.pending, pendingFree{gptr: g, size: size, epoch: stamp})
	h.mu.Unlock()
	h.emgr.Advance()
}

// OfflineFree sweeps the pending list and returns every block whose
// grace window has closed to the allocation free lists.
func (h *Heap) OfflineFree() int {
	min := h.emgr.MinActive()
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.pending[:0]
	reclaimed := 0
	for _, p := range h.pending {
		if p.epoch < min {
			h.freeLists[p.size] = append(h.freeLists[p.size], p.gptr)
			reclaimed++
		} else {
			kept = append(kept, p)
		}
	}
	h.pending = kept
	if reclaimed > 0 {
		logging.S().Debugf("heap %d reclaimed %d blocks", h.id, reclaimed)
	}
	return reclaimed
}

// PendingFrees reports how many blocks await reclamation.
func (h *Heap) PendingFrees() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Bytes returns the local view of n bytes at g.
func (h *Heap) Bytes(g types.Gptr, n int) []byte {
	return h.region.Bytes(g.Offset(), n)
}

// Region exposes the underlying FAM region for slot-level access.
func (h *Heap) Region() *fam.Region { return h.region }

// Root reads the well-known root slot of the pool header.
func (h *Heap) Root() types.Gptr {
	return types.Gptr(h.region.Load64(offRoot))
}

// SetRoot persists g into the well-known root slot. Called before the
// first child insertion of a fresh index becomes visible.
func (h *Heap) SetRoot(g types.Gptr) error {
	h.region.Store64(offRoot, uint64(g))
	return h.region.Persist(offRoot, 8)
}

// Used returns the number of bytes handed out by the bump allocator.
func (h *Heap) Used() uint64 {
	if !h.open {
		return 0
	}
	return h.region.Load64(offBump)
}
