package kvs

import (
	"famkv/status"
	"famkv/types"
)

/*
Cached-pointer call variants.

These return, or accept, the stable global pointer of the terminal key
node in addition to the value's tagged pointer. A caller that keeps the
key-node pointer skips the tree descent on later calls, and a caller
that also keeps the value's tagged pointer can detect "unchanged since
my snapshot" by tag equality and skip the payload copy entirely.

Key-node pointers stay valid until the key is destroyed. The façade
additionally warms a process-local ristretto cache of key → key-node
pointers; entries are dropped on delete and fall back to the descent on
miss or eviction.
*/

func (k *KVS) cacheKeyNode(key []byte, node types.Gptr) {
	k.nodeCache.Set(string(key), uint64(node), 1)
}

// cachedKeyNode resolves key through the node cache, falling back to a
// descent and warming the cache on the way out.
func (k *KVS) cachedKeyNode(key []byte) types.Gptr {
	if v, ok := k.nodeCache.Get(string(key)); ok {
		return types.Gptr(v)
	}
	node, _ := k.tree.GetC(key)
	if node.IsValid() {
		k.cacheKeyNode(key, node)
	}
	return node
}

// PutG is Put returning the key-node pointer and the stored value's
// tagged pointer for caller-side caching.
func (k *KVS) PutG(key, val []byte) (keyNode types.Gptr, valPtr types.TagGptr, st status.Status) {
	if len(key) > types.MaxKeyLen || len(val) > types.MaxValLen {
		return 0, types.TagGptr{}, status.New(status.InvalidArgument, "key or value too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()

	g, s := k.writeValBuf(op, val)
	if s.NotOk() {
		return 0, types.TagGptr{}, s
	}
	node, newVal, old, s := k.tree.PutC(op, key, g)
	if s.NotOk() {
		return 0, types.TagGptr{}, s
	}
	if old.IsValid() {
		k.heap.Free(op, old.Ptr)
	}
	k.cacheKeyNode(key, node)
	return node, newVal, status.Okay
}

// PutAtG replaces the value of a previously resolved key node and
// refreshes the caller's tagged pointer in place.
func (k *KVS) PutAtG(keyNode types.Gptr, valPtr *types.TagGptr, val []byte) status.Status {
	if len(val) > types.MaxValLen {
		return status.New(status.InvalidArgument, "value too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()

	g, s := k.writeValBuf(op, val)
	if s.NotOk() {
		return s
	}
	newVal, old, s := k.tree.PutAtC(op, keyNode, g)
	if s.NotOk() {
		return s
	}
	if old.IsValid() {
		k.heap.Free(op, old.Ptr)
	}
	*valPtr = newVal
	return status.Okay
}

// GetG is Get that also hands back the key-node and value pointers.
// An absent key returns OK with both pointers invalid; an existing key
// with its bytes copied out. A too-small buffer reports the required
// length with Failed.
func (k *KVS) GetG(key, val []byte) (keyNode types.Gptr, valPtr types.TagGptr, n int, st status.Status) {
	if len(key) > types.MaxKeyLen {
		return 0, types.TagGptr{}, 0, status.New(status.InvalidArgument, "key too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()

	node, v := k.tree.GetC(key)
	if !node.IsValid() {
		return 0, types.TagGptr{}, 0, status.Okay
	}
	k.cacheKeyNode(key, node)
	if !v.IsValid() {
		return node, v, 0, status.Okay
	}
	n, s := k.readValBuf(v.Ptr, val)
	if s.NotOk() {
		return node, v, n, s
	}
	return node, v, n, status.Okay
}

// GetAtG revalidates a cached value pointer against a previously
// resolved key node. When the slot still carries the caller's tag and
// forceFetch is false, no payload is copied. Otherwise the current
// value is copied out and the caller's pointer refreshed.
func (k *KVS) GetAtG(keyNode types.Gptr, valPtr *types.TagGptr, val []byte, forceFetch bool) (int, status.Status) {
	if len(val) > types.MaxValLen {
		return 0, status.New(status.InvalidArgument, "value buffer exceeds value limit")
	}
	op := k.emgr.Enter()
	defer op.Exit()

	cur := k.tree.GetAtC(keyNode)
	if cur == *valPtr && !forceFetch {
		return 0, status.Okay
	}
	n := 0
	if cur.IsValid() {
		var s status.Status
		n, s = k.readValBuf(cur.Ptr, val)
		if s.NotOk() {
			return n, s
		}
	}
	*valPtr = cur
	return n, status.Okay
}

// GetKeyNode resolves key to its key-node pointer through the node
// cache, returning the invalid pointer for an absent key.
func (k *KVS) GetKeyNode(key []byte) types.Gptr {
	if len(key) > types.MaxKeyLen {
		return 0
	}
	return k.cachedKeyNode(key)
}

// DelG is Del that hands back the cleared key node. An absent key
// returns OK with an invalid key node.
func (k *KVS) DelG(key []byte) (keyNode types.Gptr, valPtr types.TagGptr, st status.Status) {
	if len(key) > types.MaxKeyLen {
		return 0, types.TagGptr{}, status.New(status.InvalidArgument, "key too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()

	node, old, s := k.tree.DestroyC(op, key)
	if s.NotOk() {
		return 0, types.TagGptr{}, s
	}
	k.nodeCache.Del(string(key))
	if !node.IsValid() {
		return 0, types.TagGptr{}, status.Okay
	}
	if old.IsValid() {
		k.heap.Free(op, old.Ptr)
	}
	return node, types.TagGptr{}, status.Okay
}

// DelAtG clears the value of a previously resolved key node and
// refreshes the caller's tagged pointer to the cleared slot state.
func (k *KVS) DelAtG(keyNode types.Gptr, valPtr *types.TagGptr) status.Status {
	op := k.emgr.Enter()
	defer op.Exit()

	old, s := k.tree.DestroyAtC(op, keyNode)
	if s.NotOk() {
		return s
	}
	if old.IsValid() {
		k.heap.Free(op, old.Ptr)
		*valPtr = types.TagGptr{Ptr: 0, Tag: old.Tag + 1}
	}
	return status.Okay
}
