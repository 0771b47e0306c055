package fam

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateWriteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.fam")

	r, err := Create(path, 1<<20)
	require.NoError(t, err)
	require.Equal(t, int64(1<<20), r.Size())

	copy(r.Bytes(128, 5), "hello")
	require.NoError(t, r.Persist(128, 5))
	require.NoError(t, r.Close())

	r, err = Open(path)
	require.NoError(t, err)
	defer r.Close()
	r.Invalidate(128, 5)
	require.Equal(t, "hello", string(r.Bytes(128, 5)))
}

func TestAtomicWordAccess(t *testing.T) {
	r, err := Create(filepath.Join(t.TempDir(), "atomic.fam"), 1<<16)
	require.NoError(t, err)
	defer r.Close()

	r.Store64(64, 0xDEADBEEF)
	require.Equal(t, uint64(0xDEADBEEF), r.Load64(64))

	require.True(t, r.CompareAndSwap64(64, 0xDEADBEEF, 42))
	require.False(t, r.CompareAndSwap64(64, 0xDEADBEEF, 43))
	require.Equal(t, uint64(42), r.Load64(64))
}

func TestCreateKeepsLargerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grown.fam")
	r, err := Create(path, 1<<20)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r, err = Create(path, 1<<10)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, int64(1<<20), r.Size())
}
