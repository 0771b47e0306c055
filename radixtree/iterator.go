package radixtree

import (
	"bytes"

	"famkv/status"
	"famkv/types"
)

/*
Range cursor.

Scan positions the cursor on the smallest key admitted by the range and
GetNext advances in lexicographic order. An advance re-seeks from the
root with the last returned key as a strict lower bound, so the cursor
never holds node pointers across calls: keys present for the cursor's
whole lifetime are visited exactly once, keys inserted or deleted
concurrently may or may not be seen, and freed nodes are never touched.

In multi-value mode a key's chain is drained before the cursor moves
on: the oldest element first, then the remaining elements newest-first.
*/

// pathClass orders a node path against a bound: -1 when every key in
// the subtree is below the bound, +1 when every key is above it, 0 when
// the path is a prefix of the bound (equality included) and the subtree
// straddles it.
func pathClass(path, bound []byte) int {
	n := len(path)
	if len(bound) < n {
		n = len(bound)
	}
	for i := 0; i < n; i++ {
		if path[i] < bound[i] {
			return -1
		}
		if path[i] > bound[i] {
			return 1
		}
	}
	if len(path) > len(bound) {
		return 1
	}
	return 0
}

func extendPath(path []byte, edge byte, prefix []byte) []byte {
	out := make([]byte, 0, len(path)+1+len(prefix))
	out = append(out, path...)
	out = append(out, edge)
	out = append(out, prefix...)
	return out
}

// leftmost returns the smallest entry-bearing key in g's subtree.
func (t *RadixTree) leftmost(g types.Gptr, path []byte) ([]byte, types.Gptr, bool) {
	if t.hasEntry(g) {
		return path, g, true
	}
	for c := 0; c < 256; c++ {
		ch := t.child(g, byte(c))
		if !ch.IsValid() {
			continue
		}
		if k, n, ok := t.leftmost(ch, extendPath(path, byte(c), t.prefix(ch))); ok {
			return k, n, ok
		}
	}
	return nil, 0, false
}

// ceil returns the smallest entry-bearing key in g's subtree that is
// >= bound (allowEqual) or > bound.
func (t *RadixTree) ceil(g types.Gptr, path, bound []byte, allowEqual bool) ([]byte, types.Gptr, bool) {
	switch pathClass(path, bound) {
	case 1:
		return t.leftmost(g, path)
	case -1:
		return nil, 0, false
	}
	if len(path) == len(bound) {
		if allowEqual && t.hasEntry(g) {
			return path, g, true
		}
		// Every child extends the path beyond the bound.
		for c := 0; c < 256; c++ {
			ch := t.child(g, byte(c))
			if !ch.IsValid() {
				continue
			}
			if k, n, ok := t.leftmost(ch, extendPath(path, byte(c), t.prefix(ch))); ok {
				return k, n, ok
			}
		}
		return nil, 0, false
	}
	b0 := int(bound[len(path)])
	for c := b0; c < 256; c++ {
		ch := t.child(g, byte(c))
		if !ch.IsValid() {
			continue
		}
		childPath := extendPath(path, byte(c), t.prefix(ch))
		if c == b0 {
			if k, n, ok := t.ceil(ch, childPath, bound, allowEqual); ok {
				return k, n, ok
			}
		} else {
			if k, n, ok := t.leftmost(ch, childPath); ok {
				return k, n, ok
			}
		}
	}
	return nil, 0, false
}

func (t *RadixTree) seekCeil(bound []byte, allowEqual bool) ([]byte, types.Gptr, bool) {
	return t.ceil(t.root, nil, bound, allowEqual)
}

func (it *Iter) withinEnd(key []byte) bool {
	if it.endOpen {
		return true
	}
	c := bytes.Compare(key, it.end)
	return c < 0 || (c == 0 && it.endIncl)
}

// chainValPtr addresses the value-block view embedded in a chain
// element.
func chainValPtr(elem types.Gptr) types.Gptr {
	return elem + chainValOff
}

// chainElems collects the chain of g, head (newest) first.
func (t *RadixTree) chainElems(g types.Gptr) []types.Gptr {
	var elems []types.Gptr
	for e := t.chainHead(g).Ptr; e.IsValid(); e = t.chainNext(e) {
		elems = append(elems, e)
	}
	return elems
}

// emitAt resolves the value the cursor should produce for the node at
// key, skipping forward past nodes whose entry vanished under a
// concurrent writer. Returns EndOfData when the range is exhausted.
func (t *RadixTree) emitAt(it *Iter, key []byte, node types.Gptr, ok bool) ([]byte, types.TagGptr, status.Status) {
	for ok {
		if !it.withinEnd(key) {
			break
		}
		if t.singleValue {
			if v := t.slot(node); v.IsValid() {
				it.key = append(it.key[:0], key...)
				return key, v, status.Okay
			}
		} else {
			if elems := t.chainElems(node); len(elems) > 0 {
				it.key = append(it.key[:0], key...)
				it.chainPos = 0
				tag := t.chainHead(node).Tag
				// The oldest element first; GetNext drains the rest
				// newest-first.
				return key, types.TagGptr{Ptr: chainValPtr(elems[len(elems)-1]), Tag: tag}, status.Okay
			}
		}
		key, node, ok = t.seekCeil(key, false)
	}
	it.done = true
	return nil, types.TagGptr{}, status.New(status.EndOfData, "")
}

// Scan positions it on the smallest key within the given range and
// returns that key and its tagged value pointer. Both endpoints accept
// the open-boundary sentinel. EndOfData when the range is empty.
func (t *RadixTree) Scan(it *Iter, begin []byte, beginIncl bool, end []byte, endIncl bool) ([]byte, types.TagGptr, status.Status) {
	*it = Iter{
		endIncl: endIncl,
		endOpen: types.IsOpenBoundary(end, endIncl),
		started: true,
	}
	if !it.endOpen {
		it.end = append([]byte(nil), end...)
	}
	var key []byte
	var node types.Gptr
	var ok bool
	if types.IsOpenBoundary(begin, beginIncl) {
		key, node, ok = t.leftmost(t.root, nil)
	} else {
		key, node, ok = t.seekCeil(begin, beginIncl)
	}
	return t.emitAt(it, key, node, ok)
}

// GetNext advances the cursor. After EndOfData every further call
// returns EndOfData.
func (t *RadixTree) GetNext(it *Iter) ([]byte, types.TagGptr, status.Status) {
	if !it.started || it.done {
		return nil, types.TagGptr{}, status.New(status.EndOfData, "")
	}
	if !t.singleValue {
		if node := t.lookup(it.key); node.IsValid() {
			elems := t.chainElems(node)
			if len(elems) > 1 && it.chainPos < len(elems)-1 {
				e := elems[it.chainPos]
				it.chainPos++
				tag := t.chainHead(node).Tag
				return it.key, types.TagGptr{Ptr: chainValPtr(e), Tag: tag}, status.Okay
			}
		}
	}
	key, node, ok := t.seekCeil(it.key, false)
	return t.emitAt(it, key, node, ok)
}
