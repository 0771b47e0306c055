package kvs

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"famkv/config"
	"famkv/status"
	"famkv/types"

	epoch "famkv/epoch_manager"
	memorymanager "famkv/memory_manager"
)

const loadSize = 10000

func newEnv(t *testing.T) *memorymanager.Manager {
	t.Helper()
	cfg := config.Config{
		ShelfBaseDir: t.TempDir(),
		ShelfUser:    "test",
		HeapSize:     1 << 28,
	}
	mm := memorymanager.NewManager(cfg, epoch.NewManager())
	t.Cleanup(func() { mm.CloseAll() })
	return mm
}

func newStore(t *testing.T, mm *memorymanager.Manager) *KVS {
	t.Helper()
	store, st := Open(mm, 0, 1<<28, 0)
	require.True(t, st.Ok(), st.String())
	return store
}

// randomKeys generates unique keys the way the original load does:
// a fixed path-like stem plus a short random alphanumeric suffix.
func randomKeys(n int) []string {
	const alphanum = "0123456789!@#$%^&*ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	rng := rand.New(rand.NewSource(0))
	seen := make(map[string]bool, n)
	keys := make([]string, 0, n)
	for len(keys) < n {
		l := 2 + rng.Intn(18)
		b := []byte("home/daniel/")
		for i := 0; i < l; i++ {
			b = append(b, alphanum[rng.Intn(len(alphanum))])
		}
		k := string(b)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func load(t *testing.T, store *KVS, keys []string) {
	t.Helper()
	for _, k := range keys {
		require.True(t, store.Put([]byte(k), []byte(k)).Ok(), k)
	}
}

func TestInsertFind(t *testing.T) {
	store := newStore(t, newEnv(t))
	keys := randomKeys(loadSize)
	load(t, store, keys)

	keyBuf := make([]byte, types.MaxKeyLen)
	valBuf := make([]byte, types.MaxValLen)
	for _, k := range keys {
		h, kn, vn, st := store.Scan(keyBuf, valBuf, []byte(k), true, []byte(k), true)
		require.True(t, st.Ok(), k)
		require.Equal(t, k, string(keyBuf[:kn]))
		require.Equal(t, k, string(valBuf[:vn]))
		store.CloseScan(h)
	}
}

func TestLowerBoundInclusive(t *testing.T) {
	store := newStore(t, newEnv(t))
	keys := randomKeys(loadSize)
	load(t, store, keys)

	keyBuf := make([]byte, types.MaxKeyLen)
	valBuf := make([]byte, types.MaxValLen)
	for _, k := range keys[:loadSize-1] {
		h, kn, vn, st := store.Scan(keyBuf, valBuf, []byte(k), true, types.OpenBoundary, false)
		require.True(t, st.Ok(), k)
		require.Equal(t, k, string(keyBuf[:kn]))
		require.Equal(t, k, string(valBuf[:vn]))
		store.CloseScan(h)
	}
}

func TestLowerBoundExclusive(t *testing.T) {
	store := newStore(t, newEnv(t))
	keys := randomKeys(loadSize)
	load(t, store, keys)
	sort.Strings(keys)

	keyBuf := make([]byte, types.MaxKeyLen)
	valBuf := make([]byte, types.MaxValLen)
	for i := 0; i < loadSize-1; i++ {
		h, kn, _, st := store.Scan(keyBuf, valBuf, []byte(keys[i]), false, types.OpenBoundary, false)
		require.True(t, st.Ok(), keys[i])
		require.Equal(t, keys[i+1], string(keyBuf[:kn]))
		store.CloseScan(h)
	}
}

func TestFullRangeOrdering(t *testing.T) {
	store := newStore(t, newEnv(t))
	keys := randomKeys(loadSize)
	load(t, store, keys)
	sort.Strings(keys)

	keyBuf := make([]byte, types.MaxKeyLen)
	valBuf := make([]byte, types.MaxValLen)
	h, kn, _, st := store.Scan(keyBuf, valBuf, types.OpenBoundary, false, types.OpenBoundary, false)
	require.True(t, st.Ok())

	seen := []string{string(keyBuf[:kn])}
	for {
		kn, vn, st := store.GetNext(h, keyBuf, valBuf)
		if st.Code() == status.EndOfData {
			break
		}
		require.True(t, st.Ok())
		require.Equal(t, string(keyBuf[:kn]), string(valBuf[:vn]))
		seen = append(seen, string(keyBuf[:kn]))
	}
	require.Equal(t, keys, seen)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i])
	}

	// Exhaustion is sticky.
	_, _, st = store.GetNext(h, keyBuf, valBuf)
	require.Equal(t, status.EndOfData, st.Code())
}

func TestUpdateScenario(t *testing.T) {
	store := newStore(t, newEnv(t))
	keys := randomKeys(loadSize)
	load(t, store, keys)
	sort.Strings(keys)

	for i := 0; i < loadSize-1; i++ {
		require.True(t, store.Put([]byte(keys[i]), []byte(keys[i+1])).Ok())
	}
	valBuf := make([]byte, types.MaxValLen)
	for i := 0; i < loadSize-1; i++ {
		n, st := store.Get([]byte(keys[i]), valBuf)
		require.True(t, st.Ok())
		require.Equal(t, keys[i+1], string(valBuf[:n]))
	}
}

func TestDeleteScenario(t *testing.T) {
	store := newStore(t, newEnv(t))
	keys := randomKeys(loadSize)
	load(t, store, keys)
	sort.Strings(keys)

	for i := 0; i < loadSize; i += 2 {
		require.True(t, store.Del([]byte(keys[i])).Ok())
	}
	valBuf := make([]byte, types.MaxValLen)
	for i, k := range keys {
		n, st := store.Get([]byte(k), valBuf)
		if i%2 == 0 {
			require.Equal(t, status.NotFound, st.Code(), k)
		} else {
			require.True(t, st.Ok(), k)
			require.Equal(t, k, string(valBuf[:n]))
		}
	}

	// Deleting again reports the key gone and leaves the rest intact.
	require.Equal(t, status.NotFound, store.Del([]byte(keys[0])).Code())
	n, st := store.Get([]byte(keys[1]), valBuf)
	require.True(t, st.Ok())
	require.Equal(t, keys[1], string(valBuf[:n]))
}

func TestBufferTooSmall(t *testing.T) {
	store := newStore(t, newEnv(t))
	val := bytes.Repeat([]byte("v"), 100)
	require.True(t, store.Put([]byte("k"), val).Ok())

	small := make([]byte, 10)
	n, st := store.Get([]byte("k"), small)
	require.Equal(t, status.Failed, st.Code())
	require.Equal(t, 100, n)

	// The reported size is the retry size.
	buf := make([]byte, n)
	n, st = store.Get([]byte("k"), buf)
	require.True(t, st.Ok())
	require.Equal(t, val, buf[:n])
}

func TestLengthBounds(t *testing.T) {
	store := newStore(t, newEnv(t))

	maxKey := bytes.Repeat([]byte("k"), types.MaxKeyLen)
	maxVal := bytes.Repeat([]byte("v"), types.MaxValLen)
	require.True(t, store.Put(maxKey, maxVal).Ok())

	got := make([]byte, types.MaxValLen)
	n, st := store.Get(maxKey, got)
	require.True(t, st.Ok())
	require.Equal(t, maxVal, got[:n])

	overKey := bytes.Repeat([]byte("k"), types.MaxKeyLen+1)
	overVal := bytes.Repeat([]byte("v"), types.MaxValLen+1)
	require.Equal(t, status.InvalidArgument, store.Put(overKey, maxVal).Code())
	require.Equal(t, status.InvalidArgument, store.Put(maxKey, overVal).Code())
	_, st = store.Get(overKey, got)
	require.Equal(t, status.InvalidArgument, st.Code())
	require.Equal(t, status.InvalidArgument, store.Del(overKey).Code())

	// Scan validates declared buffer capacity up front.
	bigVal := make([]byte, types.MaxValLen+1)
	_, _, _, st = store.Scan(make([]byte, 16), bigVal, types.OpenBoundary, false, types.OpenBoundary, false)
	require.Equal(t, status.InvalidArgument, st.Code())
}

func TestFindOrCreateContract(t *testing.T) {
	store := newStore(t, newEnv(t))
	ret := make([]byte, types.MaxValLen)

	n, created, st := store.FindOrCreate([]byte("k"), []byte("first"), ret)
	require.True(t, st.Ok())
	require.Equal(t, 1, created)
	require.Equal(t, 0, n)

	n, created, st = store.FindOrCreate([]byte("k"), []byte("second"), ret)
	require.True(t, st.Ok())
	require.Equal(t, 0, created)
	require.Equal(t, "first", string(ret[:n]))

	small := make([]byte, 2)
	n, created, st = store.FindOrCreate([]byte("k"), []byte("third"), small)
	require.Equal(t, status.Failed, st.Code())
	require.Equal(t, -1, created)
	require.Equal(t, len("first"), n)
}

func TestNotFoundGet(t *testing.T) {
	store := newStore(t, newEnv(t))
	_, st := store.Get([]byte("missing"), make([]byte, 8))
	require.Equal(t, status.NotFound, st.Code())
}

func TestScanHandleLifecycle(t *testing.T) {
	store := newStore(t, newEnv(t))
	load(t, store, []string{"a", "b", "c"})

	keyBuf := make([]byte, types.MaxKeyLen)
	valBuf := make([]byte, types.MaxValLen)
	h, kn, _, st := store.Scan(keyBuf, valBuf, types.OpenBoundary, false, types.OpenBoundary, false)
	require.True(t, st.Ok())
	require.Equal(t, "a", string(keyBuf[:kn]))

	_, _, st = store.GetNext(h+100, keyBuf, valBuf)
	require.Equal(t, status.NotValid, st.Code())

	kn, _, st = store.GetNext(h, keyBuf, valBuf)
	require.True(t, st.Ok())
	require.Equal(t, "b", string(keyBuf[:kn]))

	store.CloseScan(h)
	_, _, st = store.GetNext(h, keyBuf, valBuf)
	require.Equal(t, status.NotValid, st.Code())
}

func TestRangeEndInclusive(t *testing.T) {
	store := newStore(t, newEnv(t))
	load(t, store, []string{"aa", "ab", "ac", "ad"})

	keyBuf := make([]byte, types.MaxKeyLen)
	valBuf := make([]byte, types.MaxValLen)

	h, kn, _, st := store.Scan(keyBuf, valBuf, []byte("ab"), true, []byte("ac"), true)
	require.True(t, st.Ok())
	require.Equal(t, "ab", string(keyBuf[:kn]))
	kn, _, st = store.GetNext(h, keyBuf, valBuf)
	require.True(t, st.Ok())
	require.Equal(t, "ac", string(keyBuf[:kn]))
	_, _, st = store.GetNext(h, keyBuf, valBuf)
	require.Equal(t, status.EndOfData, st.Code())

	// Exclusive on both ends: only "ac" sits strictly inside.
	h, kn, _, st = store.Scan(keyBuf, valBuf, []byte("ab"), false, []byte("ad"), false)
	require.True(t, st.Ok())
	require.Equal(t, "ac", string(keyBuf[:kn]))
	_, _, st = store.GetNext(h, keyBuf, valBuf)
	require.Equal(t, status.EndOfData, st.Code())

	// An empty open interval reports exhaustion immediately.
	_, _, _, st = store.Scan(keyBuf, valBuf, []byte("ab"), false, []byte("ac"), false)
	require.Equal(t, status.EndOfData, st.Code())
}

func TestCachedPointerLifecycle(t *testing.T) {
	store := newStore(t, newEnv(t))

	node, valPtr, st := store.PutG([]byte("cached"), []byte("v1"))
	require.True(t, st.Ok())
	require.True(t, node.IsValid())
	require.True(t, valPtr.IsValid())

	// Fresh tag: no copy needed.
	buf := make([]byte, 64)
	n, st := store.GetAtG(node, &valPtr, buf, false)
	require.True(t, st.Ok())
	require.Equal(t, 0, n)

	// forceFetch bypasses the tag short-circuit.
	n, st = store.GetAtG(node, &valPtr, buf, true)
	require.True(t, st.Ok())
	require.Equal(t, "v1", string(buf[:n]))

	// A write through the key node bumps the tag; a stale snapshot
	// refetches.
	stale := valPtr
	require.True(t, store.PutAtG(node, &valPtr, []byte("v2")).Ok())
	require.Greater(t, valPtr.Tag, stale.Tag)
	n, st = store.GetAtG(node, &stale, buf, false)
	require.True(t, st.Ok())
	require.Equal(t, "v2", string(buf[:n]))
	require.Equal(t, valPtr, stale)

	// GetG resolves the same key node.
	node2, valPtr2, n, st := store.GetG([]byte("cached"), buf)
	require.True(t, st.Ok())
	require.Equal(t, node, node2)
	require.Equal(t, valPtr, valPtr2)
	require.Equal(t, "v2", string(buf[:n]))

	// Absent keys come back OK with invalid pointers.
	node3, valPtr3, _, st := store.GetG([]byte("nope"), buf)
	require.True(t, st.Ok())
	require.False(t, node3.IsValid())
	require.False(t, valPtr3.IsValid())

	// Delete through the node: slot reads invalid afterwards.
	require.True(t, store.DelAtG(node, &valPtr).Ok())
	require.False(t, valPtr.IsValid())
	cur := types.TagGptr{}
	n, st = store.GetAtG(node, &cur, buf, true)
	require.True(t, st.Ok())
	require.Equal(t, 0, n)
}

func TestDelGReportsKeyNode(t *testing.T) {
	store := newStore(t, newEnv(t))

	require.True(t, store.Put([]byte("k"), []byte("v")).Ok())
	node, valPtr, st := store.DelG([]byte("k"))
	require.True(t, st.Ok())
	require.True(t, node.IsValid())
	require.False(t, valPtr.IsValid())

	node, _, st = store.DelG([]byte("k"))
	require.True(t, st.Ok())
	require.False(t, node.IsValid())
}

func TestMultiValueFacade(t *testing.T) {
	mm := newEnv(t)
	store, st := OpenMulti(mm, 2, 1<<26, 0)
	require.True(t, st.Ok())

	vals := make([]string, 5)
	for i := range vals {
		vals[i] = fmt.Sprintf("value-%d", i+1)
		require.True(t, store.Insert([]byte("k"), []byte(vals[i])).Ok())
	}

	keyBuf := make([]byte, types.MaxKeyLen)
	valBuf := make([]byte, types.MaxValLen)
	h, _, vn, st := store.Scan(keyBuf, valBuf, []byte("k"), true, []byte("k"), true)
	require.True(t, st.Ok())
	require.Equal(t, vals[0], string(valBuf[:vn]))

	require.True(t, store.RemoveValue([]byte("k"), []byte(vals[2])).Ok())
	require.Equal(t, status.NotFound, store.RemoveValue([]byte("k"), []byte("absent")).Code())
	store.CloseScan(h)

	h, _, vn, st = store.Scan(keyBuf, valBuf, []byte("k"), true, []byte("k"), true)
	require.True(t, st.Ok())
	require.Equal(t, vals[0], string(valBuf[:vn]))
	for _, want := range []string{vals[4], vals[3], vals[1]} {
		_, vn, st = store.GetNext(h, keyBuf, valBuf)
		require.True(t, st.Ok())
		require.Equal(t, want, string(valBuf[:vn]))
	}
	_, _, st = store.GetNext(h, keyBuf, valBuf)
	require.Equal(t, status.EndOfData, st.Code())
	store.CloseScan(h)

	require.True(t, store.Remove([]byte("k")).Ok())
	_, _, _, st = store.Scan(keyBuf, valBuf, []byte("k"), true, []byte("k"), true)
	require.Equal(t, status.EndOfData, st.Code())

	// Mode checks on a single-value store.
	single := newStore(t, mm)
	require.Equal(t, status.FailedPrecondition, single.Insert([]byte("k"), []byte("v")).Code())
	require.Equal(t, status.FailedPrecondition, single.Remove([]byte("k")).Code())
}

func TestMaintenanceReclaims(t *testing.T) {
	store := newStore(t, newEnv(t))

	for i := 0; i < 100; i++ {
		require.True(t, store.Put([]byte("k"), []byte(fmt.Sprintf("v%d", i))).Ok())
	}
	store.Maintenance()

	valBuf := make([]byte, types.MaxValLen)
	n, st := store.Get([]byte("k"), valBuf)
	require.True(t, st.Ok())
	require.Equal(t, "v99", string(valBuf[:n]))
}

func TestReopenFromRoot(t *testing.T) {
	cfg := config.Config{
		ShelfBaseDir: t.TempDir(),
		ShelfUser:    "test",
		HeapSize:     1 << 26,
	}
	mm := memorymanager.NewManager(cfg, epoch.NewManager())
	defer mm.CloseAll()

	store, st := Open(mm, 0, cfg.HeapSize, 0)
	require.True(t, st.Ok())
	require.True(t, store.Put([]byte("persisted"), []byte("survives")).Ok())
	root := store.Root()
	require.True(t, store.Close().Ok())

	store, st = Open(mm, 0, cfg.HeapSize, root)
	require.True(t, st.Ok())
	valBuf := make([]byte, types.MaxValLen)
	n, s := store.Get([]byte("persisted"), valBuf)
	require.True(t, s.Ok())
	require.Equal(t, "survives", string(valBuf[:n]))

	// The pool's root slot reopens the index with a null root too.
	require.True(t, store.Close().Ok())
	store, st = Open(mm, 0, cfg.HeapSize, 0)
	require.True(t, st.Ok())
	n, s = store.Get([]byte("persisted"), valBuf)
	require.True(t, s.Ok())
	require.Equal(t, "survives", string(valBuf[:n]))
	require.True(t, store.Close().Ok())
}
