package bptree

import (
	"sort"

	"github.com/tuannm99/fixedkv/internal/buffer"
	"github.com/tuannm99/fixedkv/internal/bx"
	"github.com/tuannm99/fixedkv/internal/storage"
)

// LeafPage is a typed view over a frame holding a leaf node. It is a thin,
// stateless wrapper: all state lives in the frame's byte buffer. Callers
// must not hold a LeafPage across a latch release on its frame.
type LeafPage struct {
	f *buffer.Frame
}

// InitLeaf formats an empty frame as a new leaf page.
func InitLeaf(f *buffer.Frame, maxEntries int, parent storage.PageID) *LeafPage {
	bx.PutI32At(f.Data[:], offType, int32(PageTypeLeaf))
	setHeaderCount(f, 0)
	setHeaderMax(f, maxEntries)
	setHeaderParent(f, parent)
	setHeaderOwn(f, f.PageID)
	bx.PutI32At(f.Data[:], offNext, int32(storage.InvalidPageID))
	return &LeafPage{f: f}
}

// LoadLeaf wraps a frame already known to hold a leaf page.
func LoadLeaf(f *buffer.Frame) *LeafPage {
	return &LeafPage{f: f}
}

func (p *LeafPage) Count() int                { return headerCount(p.f) }
func (p *LeafPage) Max() int                  { return headerMax(p.f) }
func (p *LeafPage) Parent() storage.PageID    { return headerParent(p.f) }
func (p *LeafPage) SetParent(id storage.PageID) { setHeaderParent(p.f, id) }
func (p *LeafPage) Own() storage.PageID       { return headerOwn(p.f) }

func (p *LeafPage) NextPageID() storage.PageID {
	return storage.PageID(bx.I32At(p.f.Data[:], offNext))
}

func (p *LeafPage) SetNextPageID(id storage.PageID) {
	bx.PutI32At(p.f.Data[:], offNext, int32(id))
}

func (p *LeafPage) entryOffset(i int) int {
	return leafHeaderSize + i*entrySize
}

func (p *LeafPage) KeyAt(i int) int64 {
	return bx.I64At(p.f.Data[:], p.entryOffset(i))
}

func (p *LeafPage) ValueAt(i int) int32 {
	return bx.I32At(p.f.Data[:], p.entryOffset(i)+8)
}

func (p *LeafPage) setEntryAt(i int, key int64, value int32) {
	off := p.entryOffset(i)
	bx.PutI64At(p.f.Data[:], off, key)
	bx.PutI32At(p.f.Data[:], off+8, value)
}

// KeyIndex returns the lower-bound position of key: the first index whose
// key is >= key, or Count() if key is greater than every entry.
func (p *LeafPage) KeyIndex(key int64) int {
	n := p.Count()
	return sort.Search(n, func(i int) bool { return p.KeyAt(i) >= key })
}

// Lookup returns the value for key, if present.
func (p *LeafPage) Lookup(key int64) (int32, bool) {
	i := p.KeyIndex(key)
	if i < p.Count() && p.KeyAt(i) == key {
		return p.ValueAt(i), true
	}
	return 0, false
}

// Insert places (key, value) in sorted position. Returns false if key is
// already present; the caller is expected to have pre-checked with
// Lookup, but Insert re-checks defensively.
func (p *LeafPage) Insert(key int64, value int32) bool {
	n := p.Count()
	i := p.KeyIndex(key)
	if i < n && p.KeyAt(i) == key {
		return false
	}

	for j := n; j > i; j-- {
		k := p.KeyAt(j - 1)
		v := p.ValueAt(j - 1)
		p.setEntryAt(j, k, v)
	}
	p.setEntryAt(i, key, value)
	setHeaderCount(p.f, n+1)
	return true
}

// Remove deletes key if present, shifting the tail left by one. Returns
// whether the key was found.
func (p *LeafPage) Remove(key int64) bool {
	n := p.Count()
	i := p.KeyIndex(key)
	if i >= n || p.KeyAt(i) != key {
		return false
	}

	for j := i; j < n-1; j++ {
		k := p.KeyAt(j + 1)
		v := p.ValueAt(j + 1)
		p.setEntryAt(j, k, v)
	}
	setHeaderCount(p.f, n-1)
	return true
}

// FirstKey returns the smallest key held by the page. Caller must ensure
// Count() > 0.
func (p *LeafPage) FirstKey() int64 {
	return p.KeyAt(0)
}

// MoveHalfTo splits this page into this (kept, larger half) and an empty
// recipient (smaller half): after the move, this holds ceil(n/2) entries
// and recipient holds floor(n/2).
func (p *LeafPage) MoveHalfTo(recipient *LeafPage) {
	n := p.Count()
	splitAt := (n + 1) / 2

	for i := splitAt; i < n; i++ {
		recipient.setEntryAt(i-splitAt, p.KeyAt(i), p.ValueAt(i))
	}
	setHeaderCount(recipient.f, n-splitAt)
	setHeaderCount(p.f, splitAt)
}

// MoveAllTo appends all of this page's entries to recipient (assumed to
// be this page's left sibling) and rewrites recipient's next-page
// pointer to this page's next-page pointer. This page is left with zero
// entries.
func (p *LeafPage) MoveAllTo(recipient *LeafPage) {
	n := p.Count()
	base := recipient.Count()
	for i := 0; i < n; i++ {
		recipient.setEntryAt(base+i, p.KeyAt(i), p.ValueAt(i))
	}
	setHeaderCount(recipient.f, base+n)
	recipient.SetNextPageID(p.NextPageID())
	setHeaderCount(p.f, 0)
}

// MoveFirstToEndOf shifts this page's first entry onto the end of
// recipient, used during redistribution from a right sibling.
func (p *LeafPage) MoveFirstToEndOf(recipient *LeafPage) {
	key, value := p.KeyAt(0), p.ValueAt(0)
	recipient.setEntryAt(recipient.Count(), key, value)
	setHeaderCount(recipient.f, recipient.Count()+1)

	n := p.Count()
	for i := 0; i < n-1; i++ {
		p.setEntryAt(i, p.KeyAt(i+1), p.ValueAt(i+1))
	}
	setHeaderCount(p.f, n-1)
}

// MoveLastToFrontOf shifts this page's last entry onto the front of
// recipient, used during redistribution from a left sibling.
func (p *LeafPage) MoveLastToFrontOf(recipient *LeafPage) {
	n := p.Count()
	key, value := p.KeyAt(n-1), p.ValueAt(n-1)

	rn := recipient.Count()
	for i := rn; i > 0; i-- {
		recipient.setEntryAt(i, recipient.KeyAt(i-1), recipient.ValueAt(i-1))
	}
	recipient.setEntryAt(0, key, value)
	setHeaderCount(recipient.f, rn+1)
	setHeaderCount(p.f, n-1)
}
