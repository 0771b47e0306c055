package heap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"famkv/status"

	epoch "famkv/epoch_manager"
)

func newHeap(t *testing.T) (*Heap, *epoch.Manager) {
	t.Helper()
	emgr := epoch.NewManager()
	h := New(0, filepath.Join(t.TempDir(), "test_0.heap"), emgr)
	require.NoError(t, h.Open(1<<24))
	t.Cleanup(func() { h.Close() })
	return h, emgr
}

func TestAllocWriteRead(t *testing.T) {
	h, emgr := newHeap(t)
	op := emgr.Enter()
	defer op.Exit()

	g, st := h.Alloc(op, 100)
	require.True(t, st.Ok())
	require.True(t, g.IsValid())

	b := h.Bytes(g, 100)
	copy(b, "hello")
	require.NoError(t, h.Region().Persist(g.Offset(), 100))
	require.Equal(t, "hello", string(h.Bytes(g, 5)))
}

func TestAllocAligned(t *testing.T) {
	h, emgr := newHeap(t)
	op := emgr.Enter()
	defer op.Exit()

	for _, n := range []int{1, 7, 64, 100, 4096} {
		g, st := h.Alloc(op, n)
		require.True(t, st.Ok())
		require.Zero(t, g.Offset()%8, "allocations must be slot-aligned")
	}
}

func TestFreeIsDeferred(t *testing.T) {
	h, emgr := newHeap(t)

	writer := emgr.Enter()
	g, st := h.Alloc(writer, 64)
	require.True(t, st.Ok())
	copy(h.Bytes(g, 8), "payload!")

	reader := emgr.Enter()
	h.Free(writer, g)
	writer.Exit()

	// The reader's scope overlapped the free: the block survives the
	// sweep and its bytes stay intact.
	require.Zero(t, h.OfflineFree())
	require.Equal(t, 1, h.PendingFrees())
	require.Equal(t, "payload!", string(h.Bytes(g, 8)))

	reader.Exit()
	require.Equal(t, 1, h.OfflineFree())
	require.Zero(t, h.PendingFrees())

	// The reclaimed block is reusable.
	op := emgr.Enter()
	defer op.Exit()
	g2, st := h.Alloc(op, 64)
	require.True(t, st.Ok())
	require.Equal(t, g, g2)
}

func TestAllocExhaustion(t *testing.T) {
	emgr := epoch.NewManager()
	h := New(0, filepath.Join(t.TempDir(), "tiny_0.heap"), emgr)
	require.NoError(t, h.Open(1 << 13))
	defer h.Close()

	op := emgr.Enter()
	defer op.Exit()
	// The header takes half of this tiny pool; the rest fills fast.
	var last status.Status
	for i := 0; i < 1024; i++ {
		if _, st := h.Alloc(op, 1024); st.NotOk() {
			last = st
			break
		}
	}
	require.Equal(t, status.ResourceExhausted, last.Code())
}

func TestRootSlotPersists(t *testing.T) {
	emgr := epoch.NewManager()
	path := filepath.Join(t.TempDir(), "root_0.heap")
	h := New(0, path, emgr)
	require.NoError(t, h.Open(1<<20))

	op := emgr.Enter()
	g, st := h.Alloc(op, 64)
	require.True(t, st.Ok())
	op.Exit()
	require.NoError(t, h.SetRoot(g))
	require.NoError(t, h.Close())

	h2 := New(0, path, emgr)
	require.NoError(t, h2.Open(1<<20))
	defer h2.Close()
	require.Equal(t, g, h2.Root())
}

func TestExclusiveOpen(t *testing.T) {
	emgr := epoch.NewManager()
	path := filepath.Join(t.TempDir(), "locked_0.heap")
	h := New(0, path, emgr)
	require.NoError(t, h.Open(1<<20))
	defer h.Close()

	other := New(0, path, emgr)
	require.Error(t, other.Open(1<<20))
}
