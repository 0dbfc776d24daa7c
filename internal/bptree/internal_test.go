package bptree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/fixedkv/internal/buffer"
	"github.com/tuannm99/fixedkv/internal/storage"
)

func newInternal(t *testing.T, pool *buffer.PoolManager, max int) *InternalPage {
	t.Helper()
	f, err := pool.NewPage()
	require.NoError(t, err)
	return InitInternal(f, max, storage.InvalidPageID)
}

func newChildLeaf(t *testing.T, pool *buffer.PoolManager, parent storage.PageID) *LeafPage {
	t.Helper()
	f, err := pool.NewPage()
	require.NoError(t, err)
	leaf := InitLeaf(f, 10, parent)
	require.NoError(t, pool.UnpinPage(f.PageID, true))
	return leaf
}

func TestInternalPage_PopulateNewRoot(t *testing.T) {
	pool := newTestPool(t, 8)
	root := newInternal(t, pool, 10)

	c0 := newChildLeaf(t, pool, storage.InvalidPageID)
	c1 := newChildLeaf(t, pool, storage.InvalidPageID)

	root.PopulateNewRoot(c0.Own(), 100, c1.Own())

	require.Equal(t, 2, root.Count())
	require.Equal(t, c0.Own(), root.ChildAt(0))
	require.Equal(t, c1.Own(), root.ChildAt(1))
	require.Equal(t, int64(100), root.KeyAt(1))
}

func TestInternalPage_LookupReturnsLastChildWhenNoSmallerKey(t *testing.T) {
	pool := newTestPool(t, 8)
	root := newInternal(t, pool, 10)
	c0 := newChildLeaf(t, pool, storage.InvalidPageID)
	c1 := newChildLeaf(t, pool, storage.InvalidPageID)
	c2 := newChildLeaf(t, pool, storage.InvalidPageID)
	root.PopulateNewRoot(c0.Own(), 10, c1.Own())
	root.InsertNodeAfter(c1.Own(), 20, c2.Own())

	require.Equal(t, c0.Own(), root.Lookup(5))
	require.Equal(t, c0.Own(), root.Lookup(9))
	require.Equal(t, c1.Own(), root.Lookup(10))
	require.Equal(t, c1.Own(), root.Lookup(15))
	require.Equal(t, c2.Own(), root.Lookup(20))
	require.Equal(t, c2.Own(), root.Lookup(1000))
}

func TestInternalPage_ValueIndex(t *testing.T) {
	pool := newTestPool(t, 8)
	root := newInternal(t, pool, 10)
	c0 := newChildLeaf(t, pool, storage.InvalidPageID)
	c1 := newChildLeaf(t, pool, storage.InvalidPageID)
	root.PopulateNewRoot(c0.Own(), 10, c1.Own())

	require.Equal(t, 0, root.ValueIndex(c0.Own()))
	require.Equal(t, 1, root.ValueIndex(c1.Own()))
	require.Equal(t, -1, root.ValueIndex(storage.PageID(9999)))
}

func TestInternalPage_InsertNodeAfter(t *testing.T) {
	pool := newTestPool(t, 8)
	root := newInternal(t, pool, 10)
	c0 := newChildLeaf(t, pool, storage.InvalidPageID)
	c1 := newChildLeaf(t, pool, storage.InvalidPageID)
	c2 := newChildLeaf(t, pool, storage.InvalidPageID)
	root.PopulateNewRoot(c0.Own(), 10, c1.Own())

	root.InsertNodeAfter(c0.Own(), 5, c2.Own())

	require.Equal(t, 3, root.Count())
	require.Equal(t, c0.Own(), root.ChildAt(0))
	require.Equal(t, c2.Own(), root.ChildAt(1))
	require.Equal(t, int64(5), root.KeyAt(1))
	require.Equal(t, c1.Own(), root.ChildAt(2))
	require.Equal(t, int64(10), root.KeyAt(2))
}

func TestInternalPage_MoveHalfToRewritesChildParents(t *testing.T) {
	pool := newTestPool(t, 8)
	parent := newInternal(t, pool, 10)

	children := make([]*LeafPage, 4)
	for i := range children {
		children[i] = newChildLeaf(t, pool, parent.Own())
	}
	parent.PopulateNewRoot(children[0].Own(), 10, children[1].Own())
	parent.InsertNodeAfter(children[1].Own(), 20, children[2].Own())
	parent.InsertNodeAfter(children[2].Own(), 30, children[3].Own())
	require.Equal(t, 4, parent.Count())

	recipient := newInternal(t, pool, 10)
	middleKey, err := parent.MoveHalfTo(recipient, pool)
	require.NoError(t, err)

	require.Equal(t, int64(20), middleKey)
	require.Equal(t, 2, parent.Count())
	require.Equal(t, 2, recipient.Count())

	movedChildFrame, err := pool.FetchPage(children[2].Own())
	require.NoError(t, err)
	require.Equal(t, recipient.Own(), LoadLeaf(movedChildFrame).Parent())
	require.NoError(t, pool.UnpinPage(children[2].Own(), false))
}

func TestInternalPage_MoveAllToMerges(t *testing.T) {
	pool := newTestPool(t, 8)
	left := newInternal(t, pool, 10)
	right := newInternal(t, pool, 10)

	lc0 := newChildLeaf(t, pool, left.Own())
	lc1 := newChildLeaf(t, pool, left.Own())
	left.PopulateNewRoot(lc0.Own(), 10, lc1.Own())

	rc0 := newChildLeaf(t, pool, right.Own())
	rc1 := newChildLeaf(t, pool, right.Own())
	right.PopulateNewRoot(rc0.Own(), 40, rc1.Own())

	require.NoError(t, right.MoveAllTo(left, 30, pool))

	require.Equal(t, 4, left.Count())
	require.Equal(t, int64(30), left.KeyAt(2))
	require.Equal(t, rc0.Own(), left.ChildAt(2))
	require.Equal(t, 0, right.Count())

	f, err := pool.FetchPage(rc0.Own())
	require.NoError(t, err)
	require.Equal(t, left.Own(), LoadLeaf(f).Parent())
	require.NoError(t, pool.UnpinPage(rc0.Own(), false))
}

func TestInternalPage_Redistribute(t *testing.T) {
	pool := newTestPool(t, 8)
	left := newInternal(t, pool, 10)
	right := newInternal(t, pool, 10)

	lc0 := newChildLeaf(t, pool, left.Own())
	lc1 := newChildLeaf(t, pool, left.Own())
	lc2 := newChildLeaf(t, pool, left.Own())
	left.PopulateNewRoot(lc0.Own(), 10, lc1.Own())
	left.InsertNodeAfter(lc1.Own(), 20, lc2.Own())

	rc0 := newChildLeaf(t, pool, right.Own())
	right.setEntryAt(0, 0, rc0.Own())
	setHeaderCount(right.f, 1) // single-child right sibling for the test

	newMiddle, err := left.MoveLastToFrontOf(right, 30, pool)
	require.NoError(t, err)
	require.Equal(t, int64(20), newMiddle)
	require.Equal(t, 2, left.Count())
	require.Equal(t, 2, right.Count())
	require.Equal(t, lc2.Own(), right.ChildAt(0))
	require.Equal(t, rc0.Own(), right.ChildAt(1))
	require.Equal(t, int64(30), right.KeyAt(1))
}
