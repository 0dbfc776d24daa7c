package bptree

import (
	"fmt"
	"strings"

	"github.com/tuannm99/fixedkv/internal/storage"
)

// DebugString renders the tree's structure depth-first, root to leaves,
// one line per page. It is a read-only diagnostic: it takes no latches
// beyond plain FetchPage/UnpinPage pins and is intended for use in tests
// against a quiescent tree, not under concurrent mutation.
func (t *Tree) DebugString() (string, error) {
	root := t.RootPageID()
	if root == storage.InvalidPageID {
		return "<empty>\n", nil
	}

	var b strings.Builder
	if err := t.debugPage(&b, root, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (t *Tree) debugPage(b *strings.Builder, id storage.PageID, depth int) error {
	f, err := t.pool.FetchPage(id)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(id, false)

	indent := strings.Repeat("  ", depth)
	if isLeafFrame(f) {
		leaf := LoadLeaf(f)
		keys := make([]int64, leaf.Count())
		for i := range keys {
			keys[i] = leaf.KeyAt(i)
		}
		fmt.Fprintf(b, "%sleaf(%d) parent=%d next=%d keys=%v\n", indent, id, leaf.Parent(), leaf.NextPageID(), keys)
		return nil
	}

	internal := LoadInternal(f)
	fmt.Fprintf(b, "%sinternal(%d) parent=%d count=%d\n", indent, id, internal.Parent(), internal.Count())
	children := make([]storage.PageID, internal.Count())
	for i := range children {
		children[i] = internal.ChildAt(i)
	}
	for _, child := range children {
		if err := t.debugPage(b, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// CheckInvariants walks the tree verifying: every leaf is at the same
// depth, no non-root page violates its min/max, and the keys met along
// the leaf sibling chain are strictly ascending. It does not check that
// the chain reaches every leaf of the tree. It is meant for tests against
// a quiescent tree.
func (t *Tree) CheckInvariants() error {
	root := t.RootPageID()
	if root == storage.InvalidPageID {
		return nil
	}

	leafDepth := -1
	if err := t.checkPage(root, 0, true, &leafDepth); err != nil {
		return err
	}

	return t.checkSiblingChain()
}

func (t *Tree) checkPage(id storage.PageID, depth int, isRoot bool, leafDepth *int) error {
	f, err := t.pool.FetchPage(id)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(id, false)

	if isLeafFrame(f) {
		leaf := LoadLeaf(f)
		if *leafDepth == -1 {
			*leafDepth = depth
		} else if *leafDepth != depth {
			return fmt.Errorf("bptree: leaf %d at depth %d, expected %d", id, depth, *leafDepth)
		}
		if !isRoot && leaf.Count() < t.leafMin() {
			return fmt.Errorf("bptree: leaf %d underfull: %d < %d", id, leaf.Count(), t.leafMin())
		}
		if leaf.Count() > leaf.Max()-1 {
			return fmt.Errorf("bptree: leaf %d overfull: %d", id, leaf.Count())
		}
		for i := 1; i < leaf.Count(); i++ {
			if leaf.KeyAt(i-1) >= leaf.KeyAt(i) {
				return fmt.Errorf("bptree: leaf %d keys not strictly ascending at %d", id, i)
			}
		}
		return nil
	}

	internal := LoadInternal(f)
	if isRoot {
		if internal.Count() < 2 {
			return fmt.Errorf("bptree: root internal %d has %d children", id, internal.Count())
		}
	} else if internal.Count() < t.internalMin() {
		return fmt.Errorf("bptree: internal %d underfull: %d < %d", id, internal.Count(), t.internalMin())
	}
	if internal.Count() > internal.Max() {
		return fmt.Errorf("bptree: internal %d overfull: %d", id, internal.Count())
	}

	children := make([]storage.PageID, internal.Count())
	for i := range children {
		children[i] = internal.ChildAt(i)
	}
	for _, child := range children {
		if err := t.checkPage(child, depth+1, false, leafDepth); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) checkSiblingChain() error {
	root := t.RootPageID()
	id := root
	for {
		f, err := t.pool.FetchPage(id)
		if err != nil {
			return err
		}
		if isLeafFrame(f) {
			t.pool.UnpinPage(id, false)
			break
		}
		next := LoadInternal(f).ChildAt(0)
		t.pool.UnpinPage(id, false)
		id = next
	}

	var last int64
	haveLast := false
	for id != storage.InvalidPageID {
		f, err := t.pool.FetchPage(id)
		if err != nil {
			return err
		}
		leaf := LoadLeaf(f)
		for i := 0; i < leaf.Count(); i++ {
			k := leaf.KeyAt(i)
			if haveLast && k <= last {
				t.pool.UnpinPage(id, false)
				return fmt.Errorf("bptree: sibling chain out of order at key %d", k)
			}
			last, haveLast = k, true
		}
		next := leaf.NextPageID()
		t.pool.UnpinPage(id, false)
		id = next
	}
	return nil
}
