package transaction

import (
	"sync"

	"famkv/config"
	"famkv/kvs"
	"famkv/types"
)

/*
Transaction manager state.

The manager is process-wide: one registry of named indexes (each a
radix tree sharing the transaction pool) and the set of active
transactions. Transactions carry their open index handles with the
access mode each was opened under; writes through a read-only handle
are refused. Writes are applied to the indexes directly as operations
run; commit releases the transaction's resources and abort is
best-effort (it releases resources but does not undo applied writes).
*/

// Tid identifies a transaction; assigned monotonically from 1.
type Tid uint64

// IndexHandle names an index opened under a transaction.
type IndexHandle int

// AccessMode restricts what a handle may do.
type AccessMode int

const (
	// ReadOnly permits scans and gets only.
	ReadOnly AccessMode = iota
	// ReadWrite additionally permits insert, update, and remove.
	ReadWrite
)

// TxnPool is the pool id holding every named index of the manager.
const TxnPool types.PoolID = 1

// openIndex is one handle's view of a named index, including its
// resumable scan cursor.
type openIndex struct {
	name    string
	mode    AccessMode
	store   *kvs.KVS
	scan    int
	hasScan bool
}

// txnState is the manager-side bookkeeping of one live transaction.
type txnState struct {
	id         Tid
	handles    map[IndexHandle]*openIndex
	nextHandle IndexHandle
}

// Manager is the process-wide transaction registry. Use Get.
type Manager struct {
	mu       sync.Mutex
	cfg      config.Config
	nextTid  Tid
	indexes  map[string]*kvs.KVS
	txns     map[Tid]*txnState
	heapSize int64
}
