package heap

import (
	"sync"

	"github.com/juju/fslock"

	"famkv/fam"

	epoch "famkv/epoch_manager"
	"famkv/types"
)

/*
Heap layout.

A heap is one FAM pool: a mapped file with a 4 KiB header followed by
allocator-managed blocks.

Header:
    0   magic        u64
    8   size         u64   mapped length at creation
    16  bump         u64   next unallocated offset
    24  root         u64   well-known slot for the index root Gptr

Every block carries a hidden 16-byte prefix holding its rounded total
size; the Gptr handed out points just past it. Blocks are 64-byte
aligned, so any 8-byte slot inside a block is aligned for atomic access.

Freed blocks do not return to service immediately. Free stamps the block
with the current epoch and parks it on the pending list; OfflineFree
moves blocks whose stamp predates every live scope onto per-size free
lists, where Alloc reuses them. The free lists are process-local: blocks
still pending at process exit stay allocated in the pool.
*/

const (
	headerSize = 4096
	magic      = 0x46414d4b56485031 // "FAMKVHP1"

	offMagic = 0
	offSize  = 8
	offBump  = 16
	offRoot  = 24

	blockPrefix = 16
	blockAlign  = 64
)

type pendingFree struct {
	gptr  types.Gptr
	size  uint64
	epoch uint64
}

// Heap is one open pool.
type Heap struct {
	id     types.PoolID
	path   string
	region *fam.Region
	flock  *fslock.Lock
	emgr   *epoch.Manager

	mu        sync.Mutex
	freeLists map[uint64][]types.Gptr
	pending   []pendingFree
	open      bool
}
