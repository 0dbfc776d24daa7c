package buffer

import (
	"log/slog"
	"sync"

	"github.com/tuannm99/fixedkv/internal/storage"
)

// PoolManager is the fixed-size buffer pool: a page-id-indexed cache of
// frames backed by a disk manager, with a strict-LRU replacement policy
// over unpinned frames. All bookkeeping (the page table, the free list,
// pin counts, the replacer) is protected by a single mutex; a frame's
// Latch is a separate, independent lock that callers (the B+Tree) take
// and release around content access — the pool mutex is never held
// across an acquisition of a frame's Latch.
type PoolManager struct {
	mu sync.Mutex

	disk      *storage.DiskManager
	frames    []*Frame
	pageTable map[storage.PageID]int // page id -> frame index
	freeList  []int                  // frame indices not holding any page
	replacer  *LRUReplacer
}

// NewPoolManager creates a pool of poolSize frames backed by disk.
func NewPoolManager(disk *storage.DiskManager, poolSize int) *PoolManager {
	frames := make([]*Frame, poolSize)
	free := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame(i)
		free[i] = i
	}

	return &PoolManager{
		disk:      disk,
		frames:    frames,
		pageTable: make(map[storage.PageID]int, poolSize),
		freeList:  free,
		replacer:  NewLRUReplacer(poolSize),
	}
}

// victim finds a frame index to reuse: prefer the free list, then ask the
// replacer for the least recently unpinned frame. If the chosen frame is
// dirty its content is flushed to disk before the caller overwrites it.
// Must be called with mu held.
func (p *PoolManager) victim() (int, bool, error) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, true, nil
	}

	idx, ok := p.replacer.Victim()
	if !ok {
		return 0, false, nil
	}

	f := p.frames[idx]
	if f.Dirty {
		if err := p.disk.WritePage(f.PageID, f.Data[:]); err != nil {
			return 0, false, newError("evict_flush", err)
		}
	}
	delete(p.pageTable, f.PageID)
	return idx, true, nil
}

// FetchPage returns the frame holding id's content, pinning it. The
// caller must UnpinPage when done.
func (p *PoolManager) FetchPage(id storage.PageID) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[id]; ok {
		f := p.frames[idx]
		f.PinCount++
		p.replacer.Pin(idx)
		return f, nil
	}

	idx, ok, err := p.victim()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoFreeFrame
	}

	f := p.frames[idx]
	f.reset()
	f.PageID = id
	if err := p.disk.ReadPage(id, f.Data[:]); err != nil {
		p.freeList = append(p.freeList, idx)
		return nil, newError("fetch_page", err)
	}

	p.pageTable[id] = idx
	f.PinCount = 1
	p.replacer.Pin(idx)
	return f, nil
}

// NewPage allocates a fresh page id from disk, assigns it a frame, and
// returns the pinned, zeroed frame.
func (p *PoolManager) NewPage() (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok, err := p.victim()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoFreeFrame
	}

	id := p.disk.AllocatePage()

	f := p.frames[idx]
	f.reset()
	f.PageID = id
	f.PinCount = 1

	p.pageTable[id] = idx
	p.replacer.Pin(idx)
	return f, nil
}

// UnpinPage decrements id's pin count and, if isDirty, sets the frame's
// dirty bit. The dirty bit is sticky: once set it stays set until the
// next flush, even if a later unpin passes isDirty=false. Unpinning a
// page whose pin count is already zero is refused with ErrNotPinned
// rather than silently accepted.
func (p *PoolManager) UnpinPage(id storage.PageID, isDirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return ErrPageNotFound
	}

	f := p.frames[idx]
	if f.PinCount == 0 {
		return ErrNotPinned
	}

	f.Dirty = f.Dirty || isDirty
	f.PinCount--
	if f.PinCount == 0 {
		p.replacer.Unpin(idx)
	}
	return nil
}

// FlushPage writes id's current content to disk unconditionally and
// clears its dirty bit.
func (p *PoolManager) FlushPage(id storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return ErrPageNotFound
	}

	f := p.frames[idx]
	if err := p.disk.WritePage(id, f.Data[:]); err != nil {
		return newError("flush_page", err)
	}
	f.Dirty = false
	return nil
}

// FlushAllPages flushes every resident page, stopping at the first error.
func (p *PoolManager) FlushAllPages() error {
	p.mu.Lock()
	ids := make([]storage.PageID, 0, len(p.pageTable))
	for id := range p.pageTable {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if err := p.FlushPage(id); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage evicts id from the pool and tells the disk manager to
// deallocate it. It refuses with ErrPagePinned if the page is still
// pinned by anyone — a caller must not be able to delete a page out from
// under an in-flight reader or writer.
func (p *PoolManager) DeletePage(id storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return nil
	}

	f := p.frames[idx]
	if f.PinCount > 0 {
		return ErrPagePinned
	}

	p.replacer.Pin(idx) // drop from the eviction candidate list, if present
	delete(p.pageTable, id)
	p.disk.DeallocatePage(id)
	f.reset()
	p.freeList = append(p.freeList, idx)

	slog.Debug("buffer: page deleted", "page_id", id)
	return nil
}

// Size returns the number of frames in the pool.
func (p *PoolManager) Size() int {
	return len(p.frames)
}

// poolAudit walks the page table and free list and logs any
// inconsistency it finds: a frame index claimed by both, claimed by
// neither, or a page table entry whose frame disagrees about which page
// it holds. It never mutates state and never returns an error; it is a
// diagnostic for tests to call after a sequence of pool operations, not
// part of the pool's operational contract.
func (p *PoolManager) poolAudit() {
	p.mu.Lock()
	defer p.mu.Unlock()

	owner := make(map[int]string, len(p.frames))
	for _, idx := range p.freeList {
		if prev, seen := owner[idx]; seen {
			slog.Warn("buffer: pool audit: frame claimed twice", "frame", idx, "first", prev, "second", "free_list")
		}
		owner[idx] = "free_list"
	}
	for id, idx := range p.pageTable {
		if prev, seen := owner[idx]; seen {
			slog.Warn("buffer: pool audit: frame claimed twice", "frame", idx, "first", prev, "second", "page_table")
		}
		owner[idx] = "page_table"
		if got := p.frames[idx].PageID; got != id {
			slog.Warn("buffer: pool audit: page table/frame mismatch", "frame", idx, "page_table_id", id, "frame_page_id", got)
		}
	}
	for idx := range p.frames {
		if _, claimed := owner[idx]; !claimed {
			slog.Warn("buffer: pool audit: frame not tracked by free list or page table", "frame", idx)
		}
	}
}
