package bptree

import (
	"sync"

	"github.com/tuannm99/fixedkv/internal/buffer"
	"github.com/tuannm99/fixedkv/internal/storage"
)

// Tree is a concurrent, disk-resident B+ tree addressed through a buffer
// pool. rootPageID is distinct, mutable state guarded by its own mutex
// (rootMu) separate from any individual page's latch, because it changes
// on root splits and root demotions.
type Tree struct {
	pool *buffer.PoolManager

	rootMu     sync.Mutex
	rootPageID storage.PageID

	leafMax     int
	internalMax int
}

// NewTree creates an empty tree. leafMax and internalMax are the MAX
// header fields new pages are initialised with; tests use small values
// (e.g. 2 and 3) to exercise splits and merges cheaply.
func NewTree(pool *buffer.PoolManager, leafMax, internalMax int) *Tree {
	return &Tree{
		pool:        pool,
		rootPageID:  storage.InvalidPageID,
		leafMax:     leafMax,
		internalMax: internalMax,
	}
}

func (t *Tree) leafMin() int     { return t.leafMax / 2 }
func (t *Tree) internalMin() int { return (t.internalMax + 1) / 2 }

func isLeafFrame(f *buffer.Frame) bool { return pageType(f) == PageTypeLeaf }

func (t *Tree) isSafeForInsert(f *buffer.Frame) bool {
	if isLeafFrame(f) {
		return headerCount(f) < headerMax(f)-1
	}
	return headerCount(f) < headerMax(f)
}

func (t *Tree) isSafeForRemove(f *buffer.Frame, isRoot bool) bool {
	if isLeafFrame(f) {
		if isRoot {
			return true
		}
		return headerCount(f) > t.leafMin()
	}
	if isRoot {
		return headerCount(f) > 2
	}
	return headerCount(f) > t.internalMin()
}

// RootPageID returns a snapshot of the current root page id.
func (t *Tree) RootPageID() storage.PageID {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	return t.rootPageID
}

// GetValue looks up key, returning its value and true if present.
func (t *Tree) GetValue(key int64) (int32, bool, error) {
	t.rootMu.Lock()
	rootHeld := true
	releaseRoot := func() {
		if rootHeld {
			t.rootMu.Unlock()
			rootHeld = false
		}
	}
	defer releaseRoot()

	if t.rootPageID == storage.InvalidPageID {
		return 0, false, nil
	}

	ctx := newCrabContext(t.pool)
	defer func() { _ = ctx.releaseAll() }()

	pageID := t.rootPageID
	for {
		f, err := t.pool.FetchPage(pageID)
		if err != nil {
			return 0, false, err
		}
		f.Latch.RLock()
		ctx.push(f, latchRead)
		releaseRoot()
		if err := ctx.releaseFront(); err != nil {
			return 0, false, err
		}

		if isLeafFrame(f) {
			v, ok := LoadLeaf(f).Lookup(key)
			return v, ok, nil
		}
		pageID = LoadInternal(f).Lookup(key)
	}
}

// Insert adds (key, value). Returns false without modifying the tree if
// key is already present.
func (t *Tree) Insert(key int64, value int32) (bool, error) {
	t.rootMu.Lock()
	rootHeld := true
	releaseRoot := func() {
		if rootHeld {
			t.rootMu.Unlock()
			rootHeld = false
		}
	}
	defer releaseRoot()

	if t.rootPageID == storage.InvalidPageID {
		f, err := t.pool.NewPage()
		if err != nil {
			return false, err
		}
		leaf := InitLeaf(f, t.leafMax, storage.InvalidPageID)
		leaf.Insert(key, value)
		t.rootPageID = f.PageID
		return true, t.pool.UnpinPage(f.PageID, true)
	}

	ctx := newCrabContext(t.pool)
	defer func() { _ = ctx.releaseAll() }()

	pageID := t.rootPageID
	for {
		f, err := t.pool.FetchPage(pageID)
		if err != nil {
			return false, err
		}
		f.Latch.Lock()
		ctx.push(f, latchWrite)

		if t.isSafeForInsert(f) {
			releaseRoot()
			if err := ctx.releaseFront(); err != nil {
				return false, err
			}
		}

		if isLeafFrame(f) {
			leaf := LoadLeaf(f)
			if _, found := leaf.Lookup(key); found {
				return false, nil
			}
			leaf.Insert(key, value)
			ctx.markDirty()

			if leaf.Count() == leaf.Max() {
				if err := t.splitAndPropagate(ctx); err != nil {
					return false, err
				}
			}
			return true, nil
		}

		pageID = LoadInternal(f).Lookup(key)
	}
}

// splitAndPropagate splits the overflowed node at the top of ctx's
// stack, inserting the promoted separator into the parent (or, if the
// overflowed node is the root, allocating a brand new root), and
// continues upward for as long as the insertion into a parent itself
// causes that parent to overflow.
func (t *Tree) splitAndPropagate(ctx *crabContext) error {
	i := len(ctx.stack) - 1
	for {
		cur := ctx.stack[i].frame
		ctx.stack[i].dirty = true

		newFrame, err := t.pool.NewPage()
		if err != nil {
			return err
		}

		var promoted int64
		if isLeafFrame(cur) {
			leaf := LoadLeaf(cur)
			newLeaf := InitLeaf(newFrame, leaf.Max(), leaf.Parent())
			leaf.MoveHalfTo(newLeaf)
			newLeaf.SetNextPageID(leaf.NextPageID())
			leaf.SetNextPageID(newLeaf.Own())
			promoted = newLeaf.FirstKey()
		} else {
			internalCur := LoadInternal(cur)
			newInternal := InitInternal(newFrame, internalCur.Max(), internalCur.Parent())
			promoted, err = internalCur.MoveHalfTo(newInternal, t.pool)
			if err != nil {
				_ = t.pool.UnpinPage(newFrame.PageID, true)
				return err
			}
		}

		if i == 0 {
			rootFrame, err := t.pool.NewPage()
			if err != nil {
				_ = t.pool.UnpinPage(newFrame.PageID, true)
				return err
			}
			newRoot := InitInternal(rootFrame, t.internalMax, storage.InvalidPageID)
			newRoot.PopulateNewRoot(cur.PageID, promoted, newFrame.PageID)
			setHeaderParent(cur, rootFrame.PageID)
			setHeaderParent(newFrame, rootFrame.PageID)
			t.rootPageID = rootFrame.PageID

			if err := t.pool.UnpinPage(rootFrame.PageID, true); err != nil {
				_ = t.pool.UnpinPage(newFrame.PageID, true)
				return err
			}
			return t.pool.UnpinPage(newFrame.PageID, true)
		}

		parentFrame := ctx.stack[i-1].frame
		ctx.stack[i-1].dirty = true
		parent := LoadInternal(parentFrame)
		parent.InsertNodeAfter(cur.PageID, promoted, newFrame.PageID)

		if err := t.pool.UnpinPage(newFrame.PageID, true); err != nil {
			return err
		}

		if parent.Count() != parent.Max()+1 {
			return nil
		}
		i--
	}
}

// Remove deletes key. Returns false without modifying the tree if key is
// absent.
func (t *Tree) Remove(key int64) (bool, error) {
	t.rootMu.Lock()
	rootHeld := true
	releaseRoot := func() {
		if rootHeld {
			t.rootMu.Unlock()
			rootHeld = false
		}
	}
	defer releaseRoot()

	if t.rootPageID == storage.InvalidPageID {
		return false, nil
	}

	ctx := newCrabContext(t.pool)
	defer func() { _ = ctx.releaseAll() }()

	pageID := t.rootPageID
	depth := 0
	for {
		f, err := t.pool.FetchPage(pageID)
		if err != nil {
			return false, err
		}
		f.Latch.Lock()
		ctx.push(f, latchWrite)
		isRoot := depth == 0
		depth++

		if t.isSafeForRemove(f, isRoot) {
			releaseRoot()
			if err := ctx.releaseFront(); err != nil {
				return false, err
			}
		}

		if isLeafFrame(f) {
			leaf := LoadLeaf(f)
			if !leaf.Remove(key) {
				return false, nil
			}
			ctx.markDirty()

			if !isRoot && leaf.Count() < t.leafMin() {
				if err := t.coalesceOrRedistribute(ctx, len(ctx.stack)-1); err != nil {
					return false, err
				}
			} else if isRoot && leaf.Count() == 0 {
				t.rootPageID = storage.InvalidPageID
				ctx.scheduleDelete(f.PageID)
			}

			return true, t.applyScheduledDeletes(ctx)
		}

		pageID = LoadInternal(f).Lookup(key)
	}
}

func (t *Tree) applyScheduledDeletes(ctx *crabContext) error {
	if err := ctx.releaseAll(); err != nil {
		return err
	}
	for _, id := range ctx.toDelete {
		_ = t.pool.DeletePage(id)
	}
	ctx.toDelete = nil
	return nil
}

// coalesceOrRedistribute repairs an underfull non-root node found at
// ctx.stack[i], or demotes the root if it has collapsed to a single
// child (internal) or gone empty (leaf).
func (t *Tree) coalesceOrRedistribute(ctx *crabContext, i int) error {
	n := ctx.stack[i].frame
	ctx.stack[i].dirty = true
	leaf := isLeafFrame(n)

	if i == 0 {
		if leaf {
			if LoadLeaf(n).Count() == 0 {
				t.rootPageID = storage.InvalidPageID
				ctx.scheduleDelete(n.PageID)
			}
			return nil
		}
		internal := LoadInternal(n)
		if internal.Count() == 1 {
			onlyChild := internal.ChildAt(0)
			if err := rewriteParent(t.pool, onlyChild, storage.InvalidPageID); err != nil {
				return err
			}
			t.rootPageID = onlyChild
			ctx.scheduleDelete(n.PageID)
		}
		return nil
	}

	parentFrame := ctx.stack[i-1].frame
	ctx.stack[i-1].dirty = true
	parent := LoadInternal(parentFrame)
	slot := parent.ValueIndex(n.PageID)

	var leftFrame, rightFrame *buffer.Frame
	if slot > 0 {
		lf, err := t.pool.FetchPage(parent.ChildAt(slot - 1))
		if err != nil {
			return err
		}
		lf.Latch.Lock()
		leftFrame = lf
		defer func() {
			leftFrame.Latch.Unlock()
			_ = t.pool.UnpinPage(leftFrame.PageID, true)
		}()
	}
	if slot < parent.Count()-1 {
		rf, err := t.pool.FetchPage(parent.ChildAt(slot + 1))
		if err != nil {
			return err
		}
		rf.Latch.Lock()
		rightFrame = rf
		defer func() {
			rightFrame.Latch.Unlock()
			_ = t.pool.UnpinPage(rightFrame.PageID, true)
		}()
	}

	if leaf {
		return t.repairLeaf(ctx, i, LoadLeaf(n), parent, leftFrame, rightFrame)
	}
	return t.repairInternal(ctx, i, LoadInternal(n), parent, leftFrame, rightFrame)
}

func (t *Tree) repairLeaf(ctx *crabContext, i int, cur *LeafPage, parent *InternalPage, leftFrame, rightFrame *buffer.Frame) error {
	capacity := cur.Max() - 1

	if leftFrame != nil {
		left := LoadLeaf(leftFrame)
		if left.Count()+cur.Count() <= capacity {
			cur.MoveAllTo(left)
			ctx.scheduleDelete(cur.Own())
			parent.removeAt(parent.ValueIndex(cur.Own()))
			return t.maybeRecurseParent(ctx, i-1)
		}
	}
	if rightFrame != nil {
		right := LoadLeaf(rightFrame)
		if cur.Count()+right.Count() <= capacity {
			right.MoveAllTo(cur)
			ctx.scheduleDelete(rightFrame.PageID)
			parent.removeAt(parent.ValueIndex(rightFrame.PageID))
			return t.maybeRecurseParent(ctx, i-1)
		}
	}
	if leftFrame != nil {
		left := LoadLeaf(leftFrame)
		left.MoveLastToFrontOf(cur)
		parent.setEntryAt(parent.ValueIndex(cur.Own()), cur.FirstKey(), cur.Own())
		return nil
	}
	if rightFrame != nil {
		right := LoadLeaf(rightFrame)
		right.MoveFirstToEndOf(cur)
		parent.setEntryAt(parent.ValueIndex(rightFrame.PageID), right.FirstKey(), rightFrame.PageID)
		return nil
	}
	return ErrInvariantViolation
}

func (t *Tree) repairInternal(ctx *crabContext, i int, cur *InternalPage, parent *InternalPage, leftFrame, rightFrame *buffer.Frame) error {
	capacity := cur.Max()

	if leftFrame != nil {
		left := LoadInternal(leftFrame)
		if left.Count()+cur.Count() <= capacity {
			idx := parent.ValueIndex(cur.Own())
			middleKey := parent.KeyAt(idx)
			if err := cur.MoveAllTo(left, middleKey, t.pool); err != nil {
				return err
			}
			ctx.scheduleDelete(cur.Own())
			parent.removeAt(idx)
			return t.maybeRecurseParent(ctx, i-1)
		}
	}
	if rightFrame != nil {
		right := LoadInternal(rightFrame)
		if cur.Count()+right.Count() <= capacity {
			idx := parent.ValueIndex(rightFrame.PageID)
			middleKey := parent.KeyAt(idx)
			if err := right.MoveAllTo(cur, middleKey, t.pool); err != nil {
				return err
			}
			ctx.scheduleDelete(rightFrame.PageID)
			parent.removeAt(idx)
			return t.maybeRecurseParent(ctx, i-1)
		}
	}
	if leftFrame != nil {
		left := LoadInternal(leftFrame)
		idx := parent.ValueIndex(cur.Own())
		middleKey := parent.KeyAt(idx)
		newMiddle, err := left.MoveLastToFrontOf(cur, middleKey, t.pool)
		if err != nil {
			return err
		}
		parent.setEntryAt(idx, newMiddle, cur.Own())
		return nil
	}
	if rightFrame != nil {
		right := LoadInternal(rightFrame)
		idx := parent.ValueIndex(rightFrame.PageID)
		middleKey := parent.KeyAt(idx)
		newMiddle, err := right.MoveFirstToEndOf(cur, middleKey, t.pool)
		if err != nil {
			return err
		}
		parent.setEntryAt(idx, newMiddle, rightFrame.PageID)
		return nil
	}
	return ErrInvariantViolation
}

// maybeRecurseParent checks whether the ancestor at ctx.stack[i] (the
// parent of a node that was just merged away) has itself become
// underfull, recursing into coalesceOrRedistribute if so.
func (t *Tree) maybeRecurseParent(ctx *crabContext, i int) error {
	if i < 0 {
		return nil
	}
	f := ctx.stack[i].frame
	internal := LoadInternal(f)

	var underfull bool
	if i == 0 {
		underfull = internal.Count() < 2
	} else {
		underfull = internal.Count() < t.internalMin()
	}
	if underfull {
		return t.coalesceOrRedistribute(ctx, i)
	}
	return nil
}
