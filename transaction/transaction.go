package transaction

import (
	"sync"

	"famkv/config"
	"famkv/kvs"
	"famkv/status"

	memorymanager "famkv/memory_manager"
)

var (
	instance *Manager
	initOnce sync.Mutex
)

// Get returns the process-wide manager, building it from the
// environment on first use.
func Get() *Manager {
	initOnce.Lock()
	defer initOnce.Unlock()
	if instance == nil {
		cfg := config.FromEnv()
		instance = &Manager{
			cfg:      cfg,
			indexes:  make(map[string]*kvs.KVS),
			txns:     make(map[Tid]*txnState),
			heapSize: cfg.HeapSize,
		}
	}
	return instance
}

// Reset forgets every named index and live transaction and restarts
// tid assignment at 1. Intended for tests.
func Reset() {
	initOnce.Lock()
	instance = nil
	initOnce.Unlock()
}

// Transaction is the caller façade over the process manager.
type Transaction struct {
	mgr *Manager
}

// NewTransaction builds a façade bound to the process manager.
func NewTransaction() *Transaction {
	return &Transaction{mgr: Get()}
}

// StartTxn begins a transaction and returns its id.
func (t *Transaction) StartTxn() (Tid, status.Status) {
	m := t.mgr
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTid++
	tid := m.nextTid
	m.txns[tid] = &txnState{id: tid, handles: make(map[IndexHandle]*openIndex)}
	return tid, status.Okay
}

func (m *Manager) txn(tid Tid) (*txnState, status.Status) {
	tx, ok := m.txns[tid]
	if !ok {
		return nil, status.Newf(status.NotValid, "transaction %d is not active", tid)
	}
	return tx, status.Okay
}

// CreateIndex creates a named index on the transaction pool.
// AlreadyExists when the name is taken.
func (t *Transaction) CreateIndex(tid Tid, name string) status.Status {
	m := t.mgr
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, st := m.txn(tid); st.NotOk() {
		return st
	}
	if _, ok := m.indexes[name]; ok {
		return status.Newf(status.AlreadyExists, "index %q exists", name)
	}
	store, st := kvs.Create(memorymanager.Get(), TxnPool, m.heapSize)
	if st.NotOk() {
		return st
	}
	m.indexes[name] = store
	return status.Okay
}

// DropIndex forgets a named index. Its tree stays allocated in the
// pool. NotFound when the name is unknown.
func (t *Transaction) DropIndex(tid Tid, name string) status.Status {
	m := t.mgr
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, st := m.txn(tid); st.NotOk() {
		return st
	}
	if _, ok := m.indexes[name]; !ok {
		return status.Newf(status.NotFound, "index %q not found", name)
	}
	delete(m.indexes, name)
	return status.Okay
}

// OpenIndex opens a named index under the transaction with the given
// access mode and returns its handle.
func (t *Transaction) OpenIndex(tid Tid, name string, mode AccessMode) (IndexHandle, status.Status) {
	m := t.mgr
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, st := m.txn(tid)
	if st.NotOk() {
		return -1, st
	}
	store, ok := m.indexes[name]
	if !ok {
		return -1, status.Newf(status.NotFound, "index %q not found", name)
	}
	ih := tx.nextHandle
	tx.nextHandle++
	tx.handles[ih] = &openIndex{name: name, mode: mode, store: store}
	return ih, status.Okay
}

// handle resolves an open index, optionally requiring write access.
func (m *Manager) handle(tid Tid, ih IndexHandle, write bool) (*openIndex, status.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, st := m.txn(tid)
	if st.NotOk() {
		return nil, st
	}
	oi, ok := tx.handles[ih]
	if !ok {
		return nil, status.Newf(status.NotValid, "handle %d is not open under transaction %d", ih, tid)
	}
	if write && oi.mode != ReadWrite {
		return nil, status.Newf(status.PermissionDenied, "index %q is open read-only", oi.name)
	}
	return oi, status.Okay
}

// InsertIndexItem stores val under key through a read-write handle.
func (t *Transaction) InsertIndexItem(ih IndexHandle, tid Tid, key, val []byte) status.Status {
	oi, st := t.mgr.handle(tid, ih, true)
	if st.NotOk() {
		return st
	}
	return oi.store.Put(key, val)
}

// UpdateIndexItem replaces key's value through a read-write handle.
func (t *Transaction) UpdateIndexItem(ih IndexHandle, tid Tid, key, val []byte) status.Status {
	oi, st := t.mgr.handle(tid, ih, true)
	if st.NotOk() {
		return st
	}
	return oi.store.Put(key, val)
}

// RemoveIndexItem deletes key through a read-write handle.
func (t *Transaction) RemoveIndexItem(ih IndexHandle, tid Tid, key []byte) status.Status {
	oi, st := t.mgr.handle(tid, ih, true)
	if st.NotOk() {
		return st
	}
	return oi.store.Del(key)
}

// GetIndexItem copies key's value through any handle.
func (t *Transaction) GetIndexItem(ih IndexHandle, tid Tid, key, valBuf []byte) (int, status.Status) {
	oi, st := t.mgr.handle(tid, ih, false)
	if st.NotOk() {
		return 0, st
	}
	return oi.store.Get(key, valBuf)
}

// ScanIndexItem positions the handle's cursor on the smallest key of
// the range and copies the first hit out. EndOfData on an empty range.
func (t *Transaction) ScanIndexItem(keyBuf, valBuf []byte, ih IndexHandle, tid Tid,
	begin []byte, beginIncl bool, end []byte, endIncl bool) (keyLen, valLen int, st status.Status) {

	oi, s := t.mgr.handle(tid, ih, false)
	if s.NotOk() {
		return 0, 0, s
	}
	if oi.hasScan {
		oi.store.CloseScan(oi.scan)
		oi.hasScan = false
	}
	h, kn, vn, s := oi.store.Scan(keyBuf, valBuf, begin, beginIncl, end, endIncl)
	if s.NotOk() {
		return kn, vn, s
	}
	oi.scan = h
	oi.hasScan = true
	return kn, vn, status.Okay
}

// GetNextIndexItem advances the handle's cursor.
func (t *Transaction) GetNextIndexItem(keyBuf, valBuf []byte, ih IndexHandle, tid Tid) (keyLen, valLen int, st status.Status) {
	oi, s := t.mgr.handle(tid, ih, false)
	if s.NotOk() {
		return 0, 0, s
	}
	if !oi.hasScan {
		return 0, 0, status.New(status.FailedPrecondition, "no scan in progress on handle")
	}
	return oi.store.GetNext(oi.scan, keyBuf, valBuf)
}

// CommitTxn completes the transaction. Writes were applied as the
// operations ran; commit releases the transaction's cursors and
// handles. committed reports whether a live transaction was completed.
func (t *Transaction) CommitTxn(tid Tid) (committed bool, st status.Status) {
	m := t.mgr
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, s := m.txn(tid)
	if s.NotOk() {
		return false, s
	}
	m.releaseLocked(tx)
	delete(m.txns, tid)
	return true, status.Okay
}

// AbortTxn abandons the transaction. Best-effort: resources are
// released but writes already applied to indexes are not undone.
func (t *Transaction) AbortTxn(tid Tid) status.Status {
	m := t.mgr
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, s := m.txn(tid)
	if s.NotOk() {
		return s
	}
	m.releaseLocked(tx)
	delete(m.txns, tid)
	return status.Okay
}

func (m *Manager) releaseLocked(tx *txnState) {
	for _, oi := range tx.handles {
		if oi.hasScan {
			oi.store.CloseScan(oi.scan)
		}
	}
	tx.handles = make(map[IndexHandle]*openIndex)
}
