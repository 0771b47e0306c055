package radixtree

import (
	"bytes"

	"famkv/types"
)

/*
Point lookups. Read-only: no lock is taken; the caller's operation
scope keeps every node reachable during the descent alive.
*/

// lookup descends to the node whose path spells key, or 0.
func (t *RadixTree) lookup(key []byte) types.Gptr {
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
		cur = next
		rest = rest[1:]
	}
}

// Get returns the tagged value pointer stored under key. The result is
// invalid when the key is absent or holds no value.
func (t *RadixTree) Get(key []byte) types.TagGptr {
	g := t.lookup(key)
	if !g.IsValid() {
		return types.TagGptr{}
	}
	return t.slot(g)
}

// GetC returns the terminal key node's stable pointer along with the
// current value slot. The key-node pointer may be cached by the caller
// and fed to GetAtC to skip the descent.
func (t *RadixTree) GetC(key []byte) (types.Gptr, types.TagGptr) {
	g := t.lookup(key)
	if !g.IsValid() {
		return 0, types.TagGptr{}
	}
	return g, t.slot(g)
}

// GetAtC fetches the current value slot of a previously resolved key
// node in O(1). If the key was destroyed since the node was resolved,
// the returned pointer is invalid.
func (t *RadixTree) GetAtC(keyNode types.Gptr) types.TagGptr {
	return t.slot(keyNode)
}
