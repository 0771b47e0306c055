package kvs

import (
	"github.com/dgraph-io/ristretto/v2"

	"famkv/logging"
	"famkv/radixtree"
	"famkv/status"
	"famkv/types"

	epoch "famkv/epoch_manager"
	memorymanager "famkv/memory_manager"
)

// Open maps (or creates) the pool and opens the index rooted at root.
// A null root reopens the pool's well-known root slot, falling back to
// a fresh index on a fresh pool.
func Open(mm *memorymanager.Manager, id types.PoolID, heapSize int64, root types.Gptr) (*KVS, status.Status) {
	return open(mm, id, heapSize, root, true, false)
}

// OpenMulti is Open for a multi-value index.
func OpenMulti(mm *memorymanager.Manager, id types.PoolID, heapSize int64, root types.Gptr) (*KVS, status.Status) {
	return open(mm, id, heapSize, root, false, false)
}

// Create starts a fresh index on the pool regardless of the root slot,
// so several named indexes can share one pool. The caller keeps Root.
func Create(mm *memorymanager.Manager, id types.PoolID, heapSize int64) (*KVS, status.Status) {
	return open(mm, id, heapSize, 0, true, true)
}

func open(mm *memorymanager.Manager, id types.PoolID, heapSize int64, root types.Gptr, singleValue, fresh bool) (*KVS, status.Status) {
	h := mm.FindHeap(id)
	if h == nil {
		var err error
		h, err = mm.CreateHeap(id, heapSize)
		if err != nil {
			return nil, status.New(status.Internal, err.Error())
		}
	}
	if !root.IsValid() && !fresh {
		root = h.Root()
	}
	tree, st := radixtree.New(mm, h, root, singleValue)
	if st.NotOk() {
		return nil, st
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, uint64]{
		NumCounters: cacheCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, status.New(status.Internal, err.Error())
	}
	return &KVS{
		mm:        mm,
		emgr:      mm.Epoch(),
		heap:      h,
		tree:      tree,
		iters:     make(map[int]*radixtree.Iter),
		nodeCache: cache,
	}, status.Okay
}

// Close releases the cursor table and the key-node cache and unmaps
// the pool. The index reopens from Root.
func (k *KVS) Close() status.Status {
	k.mu.Lock()
	k.iters = make(map[int]*radixtree.Iter)
	k.mu.Unlock()
	k.nodeCache.Close()
	if err := k.mm.CloseHeap(k.heap.ID()); err != nil {
		return status.New(status.Internal, err.Error())
	}
	return status.Okay
}

// Root returns the stable root pointer to persist for reopening.
func (k *KVS) Root() types.Gptr { return k.tree.Root() }

// Maintenance sweeps the heap's deferred frees whose grace window has
// closed.
func (k *KVS) Maintenance() {
	k.heap.OfflineFree()
}

// writeValBuf allocates, fills, and persists a value block.
func (k *KVS) writeValBuf(op *epoch.Op, val []byte) (types.Gptr, status.Status) {
	g, st := k.heap.Alloc(op, radixtree.ValBufHeader+len(val))
	if st.NotOk() {
		return 0, st
	}
	region := k.heap.Region()
	b := k.heap.Bytes(g, radixtree.ValBufHeader+len(val))
	copy(b[radixtree.ValBufHeader:], val)
	region.Store64(g.Offset(), uint64(len(val)))
	if err := region.Persist(g.Offset(), radixtree.ValBufHeader+len(val)); err != nil {
		return 0, status.New(status.Internal, err.Error())
	}
	return g, status.Okay
}

// readValBuf copies a value block into the caller's buffer. When the
// buffer is too small the required size comes back with Failed; the
// caller resizes and retries.
func (k *KVS) readValBuf(v types.Gptr, buf []byte) (int, status.Status) {
	region := k.heap.Region()
	region.Invalidate(v.Offset(), radixtree.ValBufHeader)
	size := int(region.Load64(v.Offset()))
	if len(buf) < size {
		logging.S().Debugf("value buffer too small: %d -> %d", len(buf), size)
		return size, status.New(status.Failed, "value buffer too small")
	}
	region.Invalidate(v.Offset()+radixtree.ValBufHeader, size)
	local := k.mm.GlobalToLocal(v, radixtree.ValBufHeader+size)
	region.Copy(buf, local[radixtree.ValBufHeader:])
	return size, status.Okay
}

func copyKey(key []byte, buf []byte) (int, status.Status) {
	if len(buf) < len(key) {
		return len(key), status.New(status.Failed, "key buffer too small")
	}
	copy(buf, key)
	return len(key), status.Okay
}

// Put stores val under key, replacing and deferred-freeing any
// previous value.
func (k *KVS) Put(key, val []byte) status.Status {
	if len(key) > types.MaxKeyLen || len(val) > types.MaxValLen {
		return status.New(status.InvalidArgument, "key or value too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()

	g, st := k.writeValBuf(op, val)
	if st.NotOk() {
		return st
	}
	old, st := k.tree.Put(op, key, g, radixtree.Update)
	if st.NotOk() {
		return st
	}
	if old.IsValid() {
		k.heap.Free(op, old.Ptr)
	}
	return status.Okay
}

// Get copies key's value into val and returns the copied length.
// NotFound when the key is absent; Failed with the required length
// when val is too small.
func (k *KVS) Get(key, val []byte) (int, status.Status) {
	if len(key) > types.MaxKeyLen {
		return 0, status.New(status.InvalidArgument, "key too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()

	v := k.tree.Get(key)
	if !v.IsValid() {
		return 0, status.New(status.NotFound, "key not found")
	}
	return k.readValBuf(v.Ptr, val)
}

// Del removes key and deferred-frees its value. NotFound when absent.
func (k *KVS) Del(key []byte) status.Status {
	if len(key) > types.MaxKeyLen {
		return status.New(status.InvalidArgument, "key too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()

	old, st := k.tree.Destroy(op, key)
	if st.NotOk() {
		return st
	}
	if !old.IsValid() {
		return status.New(status.NotFound, "key not found")
	}
	k.nodeCache.Del(string(key))
	k.heap.Free(op, old.Ptr)
	return status.Okay
}

// FindOrCreate stores val under key only when the key has no value.
// created reports what happened: 1 the new value was inserted, 0 an
// existing value was found (and copied into ret), -1 the operation
// failed. On 0, n is the copied length; a too-small ret reports the
// required length with Failed and created -1.
func (k *KVS) FindOrCreate(key, val, ret []byte) (n int, created int, st status.Status) {
	if len(key) > types.MaxKeyLen || len(val) > types.MaxValLen {
		return 0, -1, status.New(status.InvalidArgument, "key or value too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()

	g, s := k.writeValBuf(op, val)
	if s.NotOk() {
		return 0, -1, s
	}
	old, s := k.tree.Put(op, key, g, radixtree.FindOrCreate)
	if s.NotOk() {
		return 0, -1, s
	}
	if old.IsValid() {
		logging.S().Debugf("find-or-create: returning existing entry")
		k.heap.Free(op, g)
		n, s = k.readValBuf(old.Ptr, ret)
		if s.NotOk() {
			return n, -1, s
		}
		return n, 0, status.Okay
	}
	return 0, 1, status.Okay
}
