package kvs

import (
	"famkv/radixtree"
	"famkv/status"
	"famkv/types"
)

/*
Range scans over the buffer API.

Scan resolves the first key of the range, copies it and its value into
the caller's buffers, and registers the live cursor under an integer
handle for GetNext. Buffer capacities are validated against the key and
value limits up front, declared capacity included, matching the
original surface exactly.
*/

func (k *KVS) checkScanBuffers(keyBuf, valBuf []byte) status.Status {
	if len(keyBuf) > types.MaxKeyLen {
		return status.New(status.InvalidArgument, "key buffer exceeds key limit")
	}
	if len(valBuf) > types.MaxValLen {
		return status.New(status.InvalidArgument, "value buffer exceeds value limit")
	}
	return status.Okay
}

// Scan positions a new cursor on the smallest key k with
// begin <op> k <op> end per the two inclusivity flags, copies the key
// and value out, and returns the cursor handle. Either endpoint may be
// the open-boundary sentinel. EndOfData when no key qualifies.
func (k *KVS) Scan(keyBuf, valBuf []byte, begin []byte, beginIncl bool, end []byte, endIncl bool) (h, keyLen, valLen int, st status.Status) {
	if len(begin) > types.MaxKeyLen || len(end) > types.MaxKeyLen {
		return -1, 0, 0, status.New(status.InvalidArgument, "range endpoint too long")
	}
	if s := k.checkScanBuffers(keyBuf, valBuf); s.NotOk() {
		return -1, 0, 0, s
	}
	op := k.emgr.Enter()
	defer op.Exit()

	iter := &radixtree.Iter{}
	key, v, s := k.tree.Scan(iter, begin, beginIncl, end, endIncl)
	if s.NotOk() {
		return -1, 0, 0, s
	}
	keyLen, s = copyKey(key, keyBuf)
	if s.NotOk() {
		return -1, keyLen, 0, s
	}
	valLen, s = k.readValBuf(v.Ptr, valBuf)
	if s.NotOk() {
		return -1, keyLen, valLen, s
	}

	k.mu.Lock()
	h = k.nextIter
	k.nextIter++
	k.iters[h] = iter
	k.mu.Unlock()
	return h, keyLen, valLen, status.Okay
}

// GetNext advances the cursor named by h with the same copy contract
// as Scan. EndOfData at the end of the range, and on every call after.
func (k *KVS) GetNext(h int, keyBuf, valBuf []byte) (keyLen, valLen int, st status.Status) {
	if s := k.checkScanBuffers(keyBuf, valBuf); s.NotOk() {
		return 0, 0, s
	}
	k.mu.Lock()
	iter, ok := k.iters[h]
	k.mu.Unlock()
	if !ok {
		return 0, 0, status.New(status.NotValid, "unknown scan handle")
	}
	op := k.emgr.Enter()
	defer op.Exit()

	key, v, s := k.tree.GetNext(iter)
	if s.NotOk() {
		return 0, 0, s
	}
	keyLen, s = copyKey(key, keyBuf)
	if s.NotOk() {
		return keyLen, 0, s
	}
	valLen, s = k.readValBuf(v.Ptr, valBuf)
	if s.NotOk() {
		return keyLen, valLen, s
	}
	return keyLen, valLen, status.Okay
}

// CloseScan drops a cursor handle. Unknown handles are ignored.
func (k *KVS) CloseScan(h int) {
	k.mu.Lock()
	delete(k.iters, h)
	k.mu.Unlock()
}

// Insert prepends val to key's value chain (multi-value index).
func (k *KVS) Insert(key, val []byte) status.Status {
	if k.tree.SingleValue() {
		return status.New(status.FailedPrecondition, "single-value index")
	}
	if len(key) > types.MaxKeyLen || len(val) > types.MaxValLen {
		return status.New(status.InvalidArgument, "key or value too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()
	return k.tree.Insert(op, key, val)
}

// Remove drops key's whole value chain (multi-value index).
func (k *KVS) Remove(key []byte) status.Status {
	if k.tree.SingleValue() {
		return status.New(status.FailedPrecondition, "single-value index")
	}
	if len(key) > types.MaxKeyLen {
		return status.New(status.InvalidArgument, "key too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()
	elems, st := k.tree.Remove(op, key)
	if st.NotOk() {
		return st
	}
	for _, e := range elems {
		k.heap.Free(op, e)
	}
	return status.Okay
}

// RemoveValue drops the first chain element equal to val under key
// (multi-value index).
func (k *KVS) RemoveValue(key, val []byte) status.Status {
	if k.tree.SingleValue() {
		return status.New(status.FailedPrecondition, "single-value index")
	}
	if len(key) > types.MaxKeyLen || len(val) > types.MaxValLen {
		return status.New(status.InvalidArgument, "key or value too long")
	}
	op := k.emgr.Enter()
	defer op.Exit()
	elem, st := k.tree.RemoveValue(op, key, val)
	if st.NotOk() {
		return st
	}
	k.heap.Free(op, elem)
	return status.Okay
}
