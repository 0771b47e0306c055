package radixtree

import (
	"bytes"

	"famkv/status"
	"famkv/types"

	epoch "famkv/epoch_manager"
)

/*
Delete path.

Clearing a slot bumps its tag and stores the null pointer, so cached
tagged pointers to the old value read as stale. Emptied nodes are
unlinked bottom-up and handed to the heap's deferred free list; a
valueless node left with a single child is collapsed by extending the
child's prefix in place and swinging the parent edge, which keeps the
surviving node — the one a caller may hold a cached key-node pointer
to — at its address. A node holding a live value or chain is never
collapsed away.
*/

// pathEntry records one descent step for bottom-up pruning.
type pathEntry struct {
	node types.Gptr
	edge byte // edge byte taken from node to the next entry
}

// descendPath walks to key's terminal node recording the path.
// Returns 0 when the key has no node. Writer lock held.
func (t *RadixTree) descendPath(key []byte, path *[]pathEntry) types.Gptr {
	cur := t.root
	rest := key
	for {
		p := t.prefix(cur)
		if !bytes.HasPrefix(rest, p) {
			return 0
		}
		rest = rest[len(p):]
		if len(rest) == 0 {
			return cur
		}
		next := t.child(cur, rest[0])
		if !next.IsValid() {
			return 0
		}
		*path = append(*path, pathEntry{node: cur, edge: rest[0]})
		cur = next
		rest = rest[1:]
	}
}

// Destroy clears key's value slot and compresses the path where
// possible. Returns the unlinked value, invalid if the key was absent.
// The caller owns freeing the returned block.
func (t *RadixTree) Destroy(op *epoch.Op, key []byte) (types.TagGptr, status.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var path []pathEntry
	g := t.descendPath(key, &path)
	if !g.IsValid() {
		return types.TagGptr{}, status.Okay
	}
	old := t.slot(g)
	if !old.IsValid() {
		return types.TagGptr{}, status.Okay
	}
	if err := t.storeSlot(g, types.TagGptr{Ptr: 0, Tag: old.Tag + 1}); err != nil {
		return types.TagGptr{}, status.New(status.Internal, err.Error())
	}
	if st := t.compressPath(op, g, path); st.NotOk() {
		return types.TagGptr{}, st
	}
	return old, status.Okay
}

// DestroyC is Destroy returning the key-node pointer that was cleared
// (0 when the key had no node).
func (t *RadixTree) DestroyC(op *epoch.Op, key []byte) (keyNode types.Gptr, old types.TagGptr, st status.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var path []pathEntry
	g := t.descendPath(key, &path)
	if !g.IsValid() {
		return 0, types.TagGptr{}, status.Okay
	}
	old = t.slot(g)
	if old.IsValid() {
		if err := t.storeSlot(g, types.TagGptr{Ptr: 0, Tag: old.Tag + 1}); err != nil {
			return 0, types.TagGptr{}, status.New(status.Internal, err.Error())
		}
		if s := t.compressPath(op, g, path); s.NotOk() {
			return 0, types.TagGptr{}, s
		}
	}
	return g, old, status.Okay
}

// DestroyAtC clears the value slot of a previously resolved key node.
// The node itself stays in place, even if it became empty. A later
// keyed Destroy of the same key finds no value and does not prune it;
// it is unlinked only when a Destroy below it removes its last child.
func (t *RadixTree) DestroyAtC(op *epoch.Op, keyNode types.Gptr) (old types.TagGptr, st status.Status) {
	_ = op
	t.mu.Lock()
	defer t.mu.Unlock()

	old = t.slot(keyNode)
	if !old.IsValid() {
		return old, status.Okay
	}
	if err := t.storeSlot(keyNode, types.TagGptr{Ptr: 0, Tag: old.Tag + 1}); err != nil {
		return types.TagGptr{}, status.New(status.Internal, err.Error())
	}
	return old, status.Okay
}

// compressPath prunes upward from a cleared terminal node: empty
// childless nodes are unlinked and defer-freed, then a surviving
// valueless single-child ancestor is merged with its child.
func (t *RadixTree) compressPath(op *epoch.Op, g types.Gptr, path []pathEntry) status.Status {
	cur := g
	i := len(path) - 1
	for cur != t.root && !t.hasEntry(cur) && t.numChildren(cur) == 0 && i >= 0 {
		parent := path[i]
		t.setChild(parent.node, parent.edge, 0)
		if err := t.persistWord(childOff(parent.node, parent.edge)); err != nil {
			return status.New(status.Internal, err.Error())
		}
		t.heap.Free(op, cur)
		cur = parent.node
		i--
	}
	if cur != t.root && !t.hasEntry(cur) && t.numChildren(cur) == 1 && i >= 0 {
		return t.mergeChild(op, path[i].node, path[i].edge, cur)
	}
	return status.Okay
}

// mergeChild collapses mid (valueless, one child) into its child: the
// child absorbs mid's prefix plus the edge byte, the grandparent edge
// swings to the child, and mid is defer-freed. The child keeps its
// address.
func (t *RadixTree) mergeChild(op *epoch.Op, parent types.Gptr, parentEdge byte, mid types.Gptr) status.Status {
	edge, ch := t.onlyChild(mid)
	joined := append([]byte(nil), t.prefix(mid)...)
	joined = append(joined, edge)
	joined = append(joined, t.prefix(ch)...)
	if len(joined) > types.MaxKeyLen {
		return status.Okay
	}
	t.setPrefix(ch, joined)
	if err := t.persistNode(ch); err != nil {
		return status.New(status.Internal, err.Error())
	}
	t.setChild(parent, parentEdge, ch)
	if err := t.persistWord(childOff(parent, parentEdge)); err != nil {
		return status.New(status.Internal, err.Error())
	}
	t.heap.Free(op, mid)
	return status.Okay
}

// Remove unlinks key's whole value chain (multi-value mode) and
// returns the chain element blocks for the caller to free.
func (t *RadixTree) Remove(op *epoch.Op, key []byte) ([]types.Gptr, status.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var path []pathEntry
	g := t.descendPath(key, &path)
	if !g.IsValid() {
		return nil, status.New(status.NotFound, "key not found")
	}
	head := t.chainHead(g)
	if !head.IsValid() {
		return nil, status.New(status.NotFound, "key holds no values")
	}
	var elems []types.Gptr
	for e := head.Ptr; e.IsValid(); e = t.chainNext(e) {
		elems = append(elems, e)
	}
	if err := t.storeChainHead(g, types.TagGptr{Ptr: 0, Tag: head.Tag + 1}); err != nil {
		return nil, status.New(status.Internal, err.Error())
	}
	if st := t.compressPath(op, g, path); st.NotOk() {
		return nil, st
	}
	return elems, status.Okay
}

// RemoveValue unlinks the first chain element whose payload equals val
// and returns its block. NotFound when neither the key nor a matching
// element exists.
func (t *RadixTree) RemoveValue(op *epoch.Op, key, val []byte) (types.Gptr, status.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var path []pathEntry
	g := t.descendPath(key, &path)
	if !g.IsValid() {
		return 0, status.New(status.NotFound, "key not found")
	}
	head := t.chainHead(g)
	region := t.heap.Region()
	var prev types.Gptr
	for e := head.Ptr; e.IsValid(); e = t.chainNext(e) {
		region.Invalidate(e.Offset()+chainValOff, ValBufHeader)
		size := region.Load64(e.Offset() + chainValOff + valBufSizeOff)
		region.Invalidate(e.Offset()+chainHeader, int(size))
		if int(size) == len(val) && bytes.Equal(t.heap.Bytes(e, chainHeader+int(size))[chainHeader:], val) {
			if !prev.IsValid() {
				next := t.chainNext(e)
				if err := t.storeChainHead(g, types.TagGptr{Ptr: next, Tag: head.Tag + 1}); err != nil {
					return 0, status.New(status.Internal, err.Error())
				}
				if !next.IsValid() {
					if st := t.compressPath(op, g, path); st.NotOk() {
						return 0, st
					}
				}
			} else {
				if err := t.setChainNext(prev, t.chainNext(e)); err != nil {
					return 0, status.New(status.Internal, err.Error())
				}
			}
			return e, status.Okay
		}
		prev = e
	}
	return 0, status.New(status.NotFound, "value not found under key")
}
