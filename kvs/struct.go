package kvs

/*
Buffer-copy façade over the radix tree.

Callers work with their own byte buffers; the façade owns the value
block lifecycle: allocate and persist before linking, deferred-free
after unlinking. Live range cursors are registered in a handle table so
cooperating code can resume a scan by integer handle.

The key-node cache keeps recently resolved key → key-node pointers in a
ristretto cache. PutG and GetG warm it, deletes drop entries, and
GetKeyNode reads it to skip the tree descent; PutG, GetG and DelG
themselves always descend. It is purely an accelerator: a miss (or an
evicted entry) falls back to the full walk.
*/

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"famkv/heap"
	"famkv/radixtree"

	epoch "famkv/epoch_manager"
	memorymanager "famkv/memory_manager"
)

const (
	cacheCounters = 1 << 16
	cacheMaxCost  = 1 << 14
)

// KVS is one open key-value index over a FAM pool.
type KVS struct {
	mm   *memorymanager.Manager
	emgr *epoch.Manager
	heap *heap.Heap
	tree *radixtree.RadixTree

	mu       sync.Mutex
	iters    map[int]*radixtree.Iter
	nextIter int

	nodeCache *ristretto.Cache[string, uint64]
}
