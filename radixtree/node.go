package radixtree

import (
	"encoding/binary"

	"famkv/heap"
	"famkv/status"
	"famkv/types"

	epoch "famkv/epoch_manager"
	memorymanager "famkv/memory_manager"
)

/*
Node accessors.

Slot words and child pointers go through the region's atomic 64-bit
operations so lock-free readers never see a torn word. Prefix bytes and
the child count are plain fields maintained under the writer lock.
*/

// New opens (non-null root) or creates (null root) a radix tree on h.
// A fresh tree persists its root node before returning, and publishes
// it through the heap header only when the pool's root slot is empty.
func New(mm *memorymanager.Manager, h *heap.Heap, root types.Gptr, singleValue bool) (*RadixTree, status.Status) {
	t := &RadixTree{
		mm:          mm,
		heap:        h,
		emgr:        mm.Epoch(),
		root:        root,
		singleValue: singleValue,
	}
	if !root.IsValid() {
		op := t.emgr.Enter()
		defer op.Exit()
		g, st := t.allocNode(op)
		if st.NotOk() {
			return nil, st
		}
		if err := t.persistNode(g); err != nil {
			return nil, status.New(status.Internal, err.Error())
		}
		// The pool's well-known slot tracks the first tree created on
		// it; additional trees hand their root back to the caller.
		if !h.Root().IsValid() {
			if err := h.SetRoot(g); err != nil {
				return nil, status.New(status.Internal, err.Error())
			}
		}
		t.root = g
	}
	return t, status.Okay
}

// Root returns the stable global pointer of the tree root.
func (t *RadixTree) Root() types.Gptr { return t.root }

// SingleValue reports the construction mode.
func (t *RadixTree) SingleValue() bool { return t.singleValue }

func (t *RadixTree) allocNode(op *epoch.Op) (types.Gptr, status.Status) {
	g, st := t.heap.Alloc(op, nodeSize)
	if st.NotOk() {
		return 0, st
	}
	b := t.heap.Bytes(g, nodeSize)
	clear(b)
	return g, status.Okay
}

func (t *RadixTree) persistNode(g types.Gptr) error {
	return t.heap.Region().Persist(g.Offset(), nodeSize)
}

func (t *RadixTree) persistWord(off uint64) error {
	return t.heap.Region().Persist(off, 8)
}

// prefix returns the live view of the node's compressed edge bytes.
func (t *RadixTree) prefix(g types.Gptr) []byte {
	b := t.heap.Bytes(g, nodeSize)
	n := int(binary.LittleEndian.Uint16(b[offPrefixLen:]))
	return b[offPrefix : offPrefix+n]
}

// setPrefix rewrites the node's prefix: bytes first, then the length.
// Writer lock held.
func (t *RadixTree) setPrefix(g types.Gptr, p []byte) {
	b := t.heap.Bytes(g, nodeSize)
	copy(b[offPrefix:], p)
	binary.LittleEndian.PutUint16(b[offPrefixLen:], uint16(len(p)))
}

func (t *RadixTree) numChildren(g types.Gptr) int {
	b := t.heap.Bytes(g, nodeSize)
	return int(binary.LittleEndian.Uint16(b[offNumChildren:]))
}

func (t *RadixTree) setNumChildren(g types.Gptr, n int) {
	b := t.heap.Bytes(g, nodeSize)
	binary.LittleEndian.PutUint16(b[offNumChildren:], uint16(n))
}

func childOff(g types.Gptr, c byte) uint64 {
	return g.Offset() + offChildren + uint64(c)*8
}

// child atomically loads the child pointer for edge byte c.
func (t *RadixTree) child(g types.Gptr, c byte) types.Gptr {
	return types.Gptr(t.heap.Region().Load64(childOff(g, c)))
}

// setChild atomically publishes (or clears) a child pointer and keeps
// the writer-side child count. The child node must already be persisted
// when this store makes it reachable.
func (t *RadixTree) setChild(g types.Gptr, c byte, child types.Gptr) {
	old := t.child(g, c)
	t.heap.Region().Store64(childOff(g, c), uint64(child))
	n := t.numChildren(g)
	if old.IsValid() && !child.IsValid() {
		t.setNumChildren(g, n-1)
	} else if !old.IsValid() && child.IsValid() {
		t.setNumChildren(g, n+1)
	}
}

// onlyChild returns the single child of a node known to have exactly
// one, along with its edge byte.
func (t *RadixTree) onlyChild(g types.Gptr) (byte, types.Gptr) {
	for c := 0; c < 256; c++ {
		if ch := t.child(g, byte(c)); ch.IsValid() {
			return byte(c), ch
		}
	}
	return 0, 0
}

// slot atomically loads the node's value slot.
func (t *RadixTree) slot(g types.Gptr) types.TagGptr {
	return types.UnpackTagGptr(t.heap.Region().Load64(g.Offset() + offValueSlot))
}

// storeSlot atomically stores and persists the value slot.
func (t *RadixTree) storeSlot(g types.Gptr, v types.TagGptr) error {
	off := g.Offset() + offValueSlot
	t.heap.Region().Store64(off, v.Pack())
	return t.persistWord(off)
}

// chainHead atomically loads the head of the node's value chain.
func (t *RadixTree) chainHead(g types.Gptr) types.TagGptr {
	return types.UnpackTagGptr(t.heap.Region().Load64(g.Offset() + offChainHead))
}

func (t *RadixTree) storeChainHead(g types.Gptr, v types.TagGptr) error {
	off := g.Offset() + offChainHead
	t.heap.Region().Store64(off, v.Pack())
	return t.persistWord(off)
}

// chainNext reads the next pointer of a chain element.
func (t *RadixTree) chainNext(elem types.Gptr) types.Gptr {
	return types.Gptr(t.heap.Region().Load64(elem.Offset() + chainNextOff))
}

func (t *RadixTree) setChainNext(elem, next types.Gptr) error {
	off := elem.Offset() + chainNextOff
	t.heap.Region().Store64(off, uint64(next))
	return t.persistWord(off)
}

// hasEntry reports whether the node currently holds a value (or, in
// multi-value mode, a non-empty chain).
func (t *RadixTree) hasEntry(g types.Gptr) bool {
	if t.singleValue {
		return t.slot(g).IsValid()
	}
	return t.chainHead(g).IsValid()
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
