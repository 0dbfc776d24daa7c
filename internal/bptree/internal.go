package bptree

import (
	"github.com/tuannm99/fixedkv/internal/buffer"
	"github.com/tuannm99/fixedkv/internal/bx"
	"github.com/tuannm99/fixedkv/internal/storage"
)

// InternalPage is a typed view over a frame holding an internal node.
// Entry i is (key_i, child_i); child_i is the subtree holding keys in
// [key_i, key_{i+1}). Slot 0's key is a sentinel, never consulted by
// Lookup.
type InternalPage struct {
	f *buffer.Frame
}

// InitInternal formats an empty frame as a new internal page.
func InitInternal(f *buffer.Frame, maxEntries int, parent storage.PageID) *InternalPage {
	bx.PutI32At(f.Data[:], offType, int32(PageTypeInternal))
	setHeaderCount(f, 0)
	setHeaderMax(f, maxEntries)
	setHeaderParent(f, parent)
	setHeaderOwn(f, f.PageID)
	return &InternalPage{f: f}
}

// LoadInternal wraps a frame already known to hold an internal page.
func LoadInternal(f *buffer.Frame) *InternalPage {
	return &InternalPage{f: f}
}

func (p *InternalPage) Count() int                  { return headerCount(p.f) }
func (p *InternalPage) Max() int                    { return headerMax(p.f) }
func (p *InternalPage) Parent() storage.PageID      { return headerParent(p.f) }
func (p *InternalPage) SetParent(id storage.PageID) { setHeaderParent(p.f, id) }
func (p *InternalPage) Own() storage.PageID         { return headerOwn(p.f) }

func (p *InternalPage) entryOffset(i int) int {
	return internalHeaderSize + i*entrySize
}

func (p *InternalPage) KeyAt(i int) int64 {
	return bx.I64At(p.f.Data[:], p.entryOffset(i))
}

func (p *InternalPage) ChildAt(i int) storage.PageID {
	return storage.PageID(bx.I32At(p.f.Data[:], p.entryOffset(i)+8))
}

func (p *InternalPage) setEntryAt(i int, key int64, child storage.PageID) {
	off := p.entryOffset(i)
	bx.PutI64At(p.f.Data[:], off, key)
	bx.PutI32At(p.f.Data[:], off+8, int32(child))
}

// FirstKey returns key slot 1 (the first real, non-sentinel separator).
// It is not the promoted key of a split: that is the value MoveHalfTo
// returns, which stays behind in the recipient's sentinel slot 0.
func (p *InternalPage) FirstKey() int64 {
	return p.KeyAt(1)
}

// Lookup descends one level: returns child_{i-1} where i is the smallest
// index with key < key_i, or the last child if key is >= every
// separator.
func (p *InternalPage) Lookup(key int64) storage.PageID {
	n := p.Count()
	for i := 1; i < n; i++ {
		if key < p.KeyAt(i) {
			return p.ChildAt(i - 1)
		}
	}
	return p.ChildAt(n - 1)
}

// ValueIndex returns the slot holding childID, or -1.
func (p *InternalPage) ValueIndex(childID storage.PageID) int {
	n := p.Count()
	for i := 0; i < n; i++ {
		if p.ChildAt(i) == childID {
			return i
		}
	}
	return -1
}

// PopulateNewRoot initialises a freshly allocated, empty internal page as
// a two-child root. oldChild is the original page being split — it holds
// the smaller keys by construction (MoveHalfTo always leaves the smaller
// half behind) — so it occupies slot 0; newChild and its promoted key k
// occupy slot 1.
func (p *InternalPage) PopulateNewRoot(oldChild storage.PageID, k int64, newChild storage.PageID) {
	p.setEntryAt(0, 0, oldChild)
	p.setEntryAt(1, k, newChild)
	setHeaderCount(p.f, 2)
}

// InsertNodeAfter inserts (k, newChild) immediately after oldChild.
func (p *InternalPage) InsertNodeAfter(oldChild storage.PageID, k int64, newChild storage.PageID) {
	idx := p.ValueIndex(oldChild)
	n := p.Count()
	for j := n; j > idx+1; j-- {
		p.setEntryAt(j, p.KeyAt(j-1), p.ChildAt(j-1))
	}
	p.setEntryAt(idx+1, k, newChild)
	setHeaderCount(p.f, n+1)
}

// removeAt deletes the entry at slot i, shifting the tail left by one.
func (p *InternalPage) removeAt(i int) {
	n := p.Count()
	for j := i; j < n-1; j++ {
		p.setEntryAt(j, p.KeyAt(j+1), p.ChildAt(j+1))
	}
	setHeaderCount(p.f, n-1)
}

func rewriteParent(pool *buffer.PoolManager, child storage.PageID, newParent storage.PageID) error {
	f, err := pool.FetchPage(child)
	if err != nil {
		return err
	}
	setHeaderParent(f, newParent)
	return pool.UnpinPage(child, true)
}

// MoveHalfTo splits this page, moving the suffix starting at ceil(n/2)
// into the empty recipient, and rewrites every moved child's parent
// pointer to recipient. Returns the first moved key, which the caller
// must push up to the grandparent as the promoted key.
func (p *InternalPage) MoveHalfTo(recipient *InternalPage, pool *buffer.PoolManager) (int64, error) {
	n := p.Count()
	splitAt := (n + 1) / 2
	middleKey := p.KeyAt(splitAt)

	for i := splitAt; i < n; i++ {
		child := p.ChildAt(i)
		recipient.setEntryAt(i-splitAt, p.KeyAt(i), child)
		if err := rewriteParent(pool, child, recipient.Own()); err != nil {
			return 0, err
		}
	}
	setHeaderCount(recipient.f, n-splitAt)
	setHeaderCount(p.f, splitAt)
	return middleKey, nil
}

// MoveAllTo merges this page into recipient (this page's left sibling),
// overwriting the first moved entry's key with middleKey — the separator
// pulled down from the parent that used to sit between recipient and
// this page. This page is left empty.
func (p *InternalPage) MoveAllTo(recipient *InternalPage, middleKey int64, pool *buffer.PoolManager) error {
	n := p.Count()
	base := recipient.Count()
	for i := 0; i < n; i++ {
		key := p.KeyAt(i)
		if i == 0 {
			key = middleKey
		}
		child := p.ChildAt(i)
		recipient.setEntryAt(base+i, key, child)
		if err := rewriteParent(pool, child, recipient.Own()); err != nil {
			return err
		}
	}
	setHeaderCount(recipient.f, base+n)
	setHeaderCount(p.f, 0)
	return nil
}

// MoveFirstToEndOf moves this page's first child onto the end of
// recipient (this page's poorer left sibling), using middleKey — the
// separator the parent currently holds between recipient and this page
// — as the key for the relocated entry. Returns the new separator the
// caller must write back into the parent.
func (p *InternalPage) MoveFirstToEndOf(recipient *InternalPage, middleKey int64, pool *buffer.PoolManager) (int64, error) {
	child := p.ChildAt(0)
	newMiddleKey := p.KeyAt(1)

	n := p.Count()
	for i := 0; i < n-1; i++ {
		p.setEntryAt(i, p.KeyAt(i+1), p.ChildAt(i+1))
	}
	setHeaderCount(p.f, n-1)

	recipient.setEntryAt(recipient.Count(), middleKey, child)
	setHeaderCount(recipient.f, recipient.Count()+1)

	if err := rewriteParent(pool, child, recipient.Own()); err != nil {
		return 0, err
	}
	return newMiddleKey, nil
}

// MoveLastToFrontOf moves this page's last child onto the front of
// recipient (this page's poorer right sibling). Returns the new
// separator the caller must write back into the parent.
func (p *InternalPage) MoveLastToFrontOf(recipient *InternalPage, middleKey int64, pool *buffer.PoolManager) (int64, error) {
	n := p.Count()
	child := p.ChildAt(n - 1)
	newMiddleKey := p.KeyAt(n - 1)
	setHeaderCount(p.f, n-1)

	rn := recipient.Count()
	for i := rn; i > 0; i-- {
		recipient.setEntryAt(i, recipient.KeyAt(i-1), recipient.ChildAt(i-1))
	}
	recipient.setEntryAt(1, middleKey, recipient.ChildAt(1))
	recipient.setEntryAt(0, 0, child)
	setHeaderCount(recipient.f, rn+1)

	if err := rewriteParent(pool, child, recipient.Own()); err != nil {
		return 0, err
	}
	return newMiddleKey, nil
}
