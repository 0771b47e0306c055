// Structure of the radix tree
/*
Tree
 ├── root node (empty prefix, stable address persisted in the heap header)
 │      └── child nodes, one edge byte each, dense 256-slot child arrays
 │             └── compressed prefixes along every edge

- keys are byte strings; descent consumes one edge byte plus the child's
  compressed prefix per level
- a key ends exactly at its terminal node; the node's value slot (or its
  value chain in multi-value mode) holds the payload pointer
- slots are single 64-bit words packing a 48-bit block address and a
  16-bit generation tag; they are read and written atomically
- writers serialize on the tree mutex; readers take no lock
*/
package radixtree

import (
	"sync"

	"famkv/heap"
	"famkv/types"

	epoch "famkv/epoch_manager"
	memorymanager "famkv/memory_manager"
)

// Node block layout. All multi-byte fields are little-endian; the
// 64-bit slots sit at 8-byte-aligned offsets for atomic access.
const (
	offPrefixLen   = 0  // u16
	offNumChildren = 2  // u16, writer-side bookkeeping only
	offValueSlot   = 8  // u64 packed TagGptr
	offChainHead   = 16 // u64 packed TagGptr, multi-value mode
	offChildren    = 24 // 256 * u64 child Gptrs, byte-ordered
	offPrefix      = offChildren + 256*8
	nodeSize       = offPrefix + types.MaxKeyLen + 8
)

// Value block layout: {size u64, bytes[size]}.
const (
	valBufSizeOff = 0
	valBufDataOff = 8
	// ValBufHeader is the fixed overhead in front of the value bytes.
	ValBufHeader = valBufDataOff
)

// Chain element layout: {next u64, size u64, bytes[size]}. The tail of
// a {next, ...} element is itself a well-formed value block, so chain
// payloads are read through the same ValBuf view at gptr+chainValOff.
const (
	chainNextOff = 0
	chainValOff  = 8
	chainHeader  = chainValOff + ValBufHeader
)

// PutPolicy selects the behavior of Put on an occupied slot.
type PutPolicy int

const (
	// Update replaces an existing value, returning the displaced one.
	Update PutPolicy = iota
	// FindOrCreate leaves an existing value intact and returns it so
	// the caller can release the block it allocated for the new value.
	FindOrCreate
)

// RadixTree is an ordered byte-keyed index over one FAM heap.
// A tree is either single-value (one value per key, Put replaces) or
// multi-value (values chain under a key), chosen at construction.
type RadixTree struct {
	mm          *memorymanager.Manager
	heap        *heap.Heap
	emgr        *epoch.Manager
	root        types.Gptr
	singleValue bool

	// Writer lock. Readers go lock-free: slot words are atomic and
	// unlinked blocks are only reclaimed after every overlapping
	// scope has exited.
	mu sync.Mutex
}

// Iter is a stateful range cursor. Advancing re-seeks from the root
// using the last returned key, so a cursor never holds pointers into
// nodes a concurrent writer may have freed.
type Iter struct {
	key      []byte // last key returned
	end      []byte
	endIncl  bool
	endOpen  bool
	chainPos int // chain elements emitted from the head, 0 after the oldest
	started  bool
	done     bool
}
