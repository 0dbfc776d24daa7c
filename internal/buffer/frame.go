// Package buffer implements the fixed-size buffer pool: frames, an LRU
// replacer, and the pool manager that serves fetch/new/unpin/flush/delete
// against a disk manager.
package buffer

import (
	"sync"

	"github.com/tuannm99/fixedkv/internal/storage"
)

// Frame is a pre-allocated, reusable slot that may hold the content of one
// page. Frames are allocated once at pool construction and their memory is
// stable for the lifetime of the pool; only the PageID/PinCount/Dirty
// bookkeeping and the Data contents change as frames are recycled.
type Frame struct {
	ID int // index into the pool's frame array, stable for the frame's lifetime

	Data [storage.PageSize]byte

	PageID   storage.PageID
	PinCount int
	Dirty    bool

	// Latch is the per-page content latch. It is independent of the pool's
	// bookkeeping mutex: the pool never acquires a Latch while holding that
	// mutex, while callers may call into the pool with a Latch held.
	Latch sync.RWMutex
}

func newFrame(id int) *Frame {
	return &Frame{ID: id, PageID: storage.InvalidPageID}
}

func (f *Frame) reset() {
	f.PageID = storage.InvalidPageID
	f.PinCount = 0
	f.Dirty = false
	for i := range f.Data {
		f.Data[i] = 0
	}
}
