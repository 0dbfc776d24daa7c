// Package bptree implements the disk-resident, concurrent B+ tree: page
// layouts for internal and leaf nodes stored in place inside buffer pool
// frames, and the top-level tree operations (lookup, insert, remove) that
// use latch crabbing to allow safe parallel traversal and structural
// modification.
package bptree

import (
	"github.com/tuannm99/fixedkv/internal/buffer"
	"github.com/tuannm99/fixedkv/internal/bx"
	"github.com/tuannm99/fixedkv/internal/storage"
)

// PageType distinguishes internal nodes from leaf nodes; stored as the
// first four bytes of every page.
type PageType int32

const (
	PageTypeInternal PageType = 0
	PageTypeLeaf     PageType = 1
)

// Header field offsets, common to both page types.
const (
	offType   = 0
	offCount  = 4
	offMax    = 8
	offParent = 12
	offOwn    = 16
	offNext   = 20 // leaf pages only

	internalHeaderSize = 20
	leafHeaderSize      = 24

	entrySize = 12 // 8-byte key + 4-byte value/child-id, both page types
)

// DefaultLeafMax and DefaultInternalMax are the default MAX header values
// derived from PageSize. Trees may be configured with smaller values (tests use
// LEAF_MAX=2, INTERNAL_MAX=3 to exercise splits cheaply).
var (
	DefaultLeafMax     = (storage.PageSize - leafHeaderSize) / entrySize
	DefaultInternalMax = (storage.PageSize - internalHeaderSize) / entrySize
)

func pageType(f *buffer.Frame) PageType {
	return PageType(bx.I32At(f.Data[:], offType))
}

func headerCount(f *buffer.Frame) int {
	return int(bx.I32At(f.Data[:], offCount))
}

func setHeaderCount(f *buffer.Frame, n int) {
	bx.PutI32At(f.Data[:], offCount, int32(n))
}

func headerMax(f *buffer.Frame) int {
	return int(bx.I32At(f.Data[:], offMax))
}

func setHeaderMax(f *buffer.Frame, n int) {
	bx.PutI32At(f.Data[:], offMax, int32(n))
}

func headerParent(f *buffer.Frame) storage.PageID {
	return storage.PageID(bx.I32At(f.Data[:], offParent))
}

func setHeaderParent(f *buffer.Frame, id storage.PageID) {
	bx.PutI32At(f.Data[:], offParent, int32(id))
}

func headerOwn(f *buffer.Frame) storage.PageID {
	return storage.PageID(bx.I32At(f.Data[:], offOwn))
}

func setHeaderOwn(f *buffer.Frame, id storage.PageID) {
	bx.PutI32At(f.Data[:], offOwn, int32(id))
}
