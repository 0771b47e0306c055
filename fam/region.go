package fam

/*
Fabric-attached memory contract over a file-backed mapping.

A Region is a byte-addressable, persistent block of shared memory.
Writers must call Persist after writing payload or metadata and before
installing any pointer to it; readers must call Invalidate on a range
before trusting its contents. On the mmap backing used here the mapping
is cache-coherent within a host, so Invalidate compiles down to a
barrier-only marker, but every call site keeps the discipline the
fabric requires.
*/

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// Region is one mapped persistent memory range.
type Region struct {
	f    *os.File
	m    mmap.MMap
	size int64
}

// Create makes (or reopens) the file at path with the given size and
// maps it read-write. An existing larger file keeps its size.
func Create(path string, size int64) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open region %s", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat region %s", path)
	}
	if fi.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "size region %s", path)
		}
	} else if fi.Size() > size {
		size = fi.Size()
	}
	m, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "map region %s", path)
	}
	return &Region{f: f, m: m, size: size}, nil
}

// Open maps an existing region file read-write.
func Open(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open region %s", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat region %s", path)
	}
	m, err := mmap.MapRegion(f, int(fi.Size()), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "map region %s", path)
	}
	return &Region{f: f, m: m, size: fi.Size()}, nil
}

// Size returns the mapped length in bytes.
func (r *Region) Size() int64 { return r.size }

// Bytes returns the local view of [off, off+n).
func (r *Region) Bytes(off uint64, n int) []byte {
	return r.m[off : off+uint64(n)]
}

// Persist makes writes to [off, off+n) durable and globally visible.
// This is a mandatory barrier, not a hint: a pointer to the range may
// only be installed after Persist returns.
func (r *Region) Persist(off uint64, n int) error {
	_ = off
	_ = n
	return r.m.Flush()
}

// Invalidate discards any locally cached view of [off, off+n) so the
// next read observes the latest globally visible value. A no-op on a
// coherent mapping; call sites keep it as the read-side barrier.
func (r *Region) Invalidate(off uint64, n int) {
	_ = off
	_ = n
}

// Copy moves bytes with FAM visibility respected on both sides.
func (r *Region) Copy(dst, src []byte) int {
	return copy(dst, src)
}

// Close flushes and unmaps the region.
func (r *Region) Close() error {
	if r.m != nil {
		if err := r.m.Flush(); err != nil {
			return errors.Wrap(err, "flush region")
		}
		if err := r.m.Unmap(); err != nil {
			return errors.Wrap(err, "unmap region")
		}
		r.m = nil
	}
	if r.f != nil {
		if err := r.f.Close(); err != nil {
			return errors.Wrap(err, "close region")
		}
		r.f = nil
	}
	return nil
}
