package radixtree

import (
	"famkv/status"
	"famkv/types"

	epoch "famkv/epoch_manager"
)

/*
Insert path.

A freshly allocated node is fully written and persisted before the one
atomic child-pointer store that makes it reachable, so a lock-free
reader sees either the old edge or the complete new subtree. Splits
keep the existing node at its address: the new intermediate is
published first, then the surviving node's prefix is shortened in
place. The root never carries a prefix and is never split, so its
address stays stable for the lifetime of the pool.
*/

// findOrCreateNode descends to the terminal node for key, splitting
// edges and allocating nodes as needed. Writer lock held.
func (t *RadixTree) findOrCreateNode(op *epoch.Op, key []byte) (types.Gptr, status.Status) {
	cur := t.root
	var parent types.Gptr
	var parentEdge byte
	rest := key
	for {
		p := t.prefix(cur)
		n := commonPrefixLen(rest, p)
		if n < len(p) {
			return t.splitEdge(op, parent, parentEdge, cur, p, rest, n)
		}
		rest = rest[n:]
		if len(rest) == 0 {
			return cur, status.Okay
		}
		edge := rest[0]
		next := t.child(cur, edge)
		if !next.IsValid() {
			leaf, st := t.allocNode(op)
			if st.NotOk() {
				return 0, st
			}
			t.setPrefix(leaf, rest[1:])
			if err := t.persistNode(leaf); err != nil {
				return 0, status.New(status.Internal, err.Error())
			}
			t.setChild(cur, edge, leaf)
			if err := t.persistWord(childOff(cur, edge)); err != nil {
				return 0, status.New(status.Internal, err.Error())
			}
			return leaf, status.Okay
		}
		parent, parentEdge = cur, edge
		cur = next
		rest = rest[1:]
	}
}

// splitEdge breaks the edge into cur at offset n of cur's prefix p,
// where rest is the remaining key. The new intermediate takes the
// common part; cur survives at its own address with a shortened
// prefix. Returns the terminal node for the key.
func (t *RadixTree) splitEdge(op *epoch.Op, parent types.Gptr, parentEdge byte,
	cur types.Gptr, p, rest []byte, n int) (types.Gptr, status.Status) {

	mid, st := t.allocNode(op)
	if st.NotOk() {
		return 0, st
	}
	t.setPrefix(mid, p[:n])

	terminal := mid
	if n < len(rest) {
		// The key diverges below the split point: hang a fresh leaf
		// off the intermediate.
		leaf, st := t.allocNode(op)
		if st.NotOk() {
			return 0, st
		}
		t.setPrefix(leaf, rest[n+1:])
		if err := t.persistNode(leaf); err != nil {
			return 0, status.New(status.Internal, err.Error())
		}
		t.setChild(mid, rest[n], leaf)
		terminal = leaf
	}
	t.setChild(mid, p[n], cur)
	if err := t.persistNode(mid); err != nil {
		return 0, status.New(status.Internal, err.Error())
	}

	// Publish the intermediate, then retire the consumed prefix bytes
	// from the surviving node.
	t.setChild(parent, parentEdge, mid)
	if err := t.persistWord(childOff(parent, parentEdge)); err != nil {
		return 0, status.New(status.Internal, err.Error())
	}
	suffix := append([]byte(nil), p[n+1:]...)
	t.setPrefix(cur, suffix)
	if err := t.persistNode(cur); err != nil {
		return 0, status.New(status.Internal, err.Error())
	}
	return terminal, status.Okay
}

// Put installs valGptr at key's terminal node. Under Update the slot is
// always replaced and the displaced value returned (invalid if none).
// Under FindOrCreate an occupied slot is left intact and the existing
// value returned, so the caller can release the block it allocated.
// The value block must be fully persisted before this call.
func (t *RadixTree) Put(op *epoch.Op, key []byte, valGptr types.Gptr, policy PutPolicy) (types.TagGptr, status.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, st := t.findOrCreateNode(op, key)
	if st.NotOk() {
		return types.TagGptr{}, st
	}
	old := t.slot(g)
	if policy == FindOrCreate && old.IsValid() {
		return old, status.Okay
	}
	if err := t.storeSlot(g, types.TagGptr{Ptr: valGptr, Tag: old.Tag + 1}); err != nil {
		return types.TagGptr{}, status.New(status.Internal, err.Error())
	}
	return old, status.Okay
}

// PutC is Put(Update) returning the stable key-node pointer alongside
// the freshly stored value pointer and the displaced one.
func (t *RadixTree) PutC(op *epoch.Op, key []byte, valGptr types.Gptr) (keyNode types.Gptr, newVal, old types.TagGptr, st status.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, s := t.findOrCreateNode(op, key)
	if s.NotOk() {
		return 0, types.TagGptr{}, types.TagGptr{}, s
	}
	old = t.slot(g)
	newVal = types.TagGptr{Ptr: valGptr, Tag: old.Tag + 1}
	if err := t.storeSlot(g, newVal); err != nil {
		return 0, types.TagGptr{}, types.TagGptr{}, status.New(status.Internal, err.Error())
	}
	return g, newVal, old, status.Okay
}

// PutAtC replaces the value slot of a previously resolved key node,
// skipping the descent.
func (t *RadixTree) PutAtC(op *epoch.Op, keyNode types.Gptr, valGptr types.Gptr) (newVal, old types.TagGptr, st status.Status) {
	_ = op
	t.mu.Lock()
	defer t.mu.Unlock()

	old = t.slot(keyNode)
	newVal = types.TagGptr{Ptr: valGptr, Tag: old.Tag + 1}
	if err := t.storeSlot(keyNode, newVal); err != nil {
		return types.TagGptr{}, types.TagGptr{}, status.New(status.Internal, err.Error())
	}
	return newVal, old, status.Okay
}

// Insert prepends a value to key's chain (multi-value mode). The chain
// element embeds a value block at chainValOff, so readers address the
// payload as elemGptr+chainValOff through the usual value-block view.
func (t *RadixTree) Insert(op *epoch.Op, key, val []byte) status.Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, st := t.heap.Alloc(op, chainHeader+len(val))
	if st.NotOk() {
		return st
	}
	b := t.heap.Bytes(elem, chainHeader+len(val))
	copy(b[chainHeader:], val)

	g, st := t.findOrCreateNode(op, key)
	if st.NotOk() {
		return st
	}
	head := t.chainHead(g)
	t.heap.Region().Store64(elem.Offset()+chainNextOff, uint64(head.Ptr))
	t.heap.Region().Store64(elem.Offset()+chainValOff+valBufSizeOff, uint64(len(val)))
	if err := t.heap.Region().Persist(elem.Offset(), chainHeader+len(val)); err != nil {
		return status.New(status.Internal, err.Error())
	}
	if err := t.storeChainHead(g, types.TagGptr{Ptr: elem, Tag: head.Tag + 1}); err != nil {
		return status.New(status.Internal, err.Error())
	}
	return status.Okay
}
