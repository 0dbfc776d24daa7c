package bptree

import (
	"github.com/tuannm99/fixedkv/internal/buffer"
	"github.com/tuannm99/fixedkv/internal/storage"
)

// latchMode distinguishes a read-latched hold from a write-latched one so
// the context releases each frame's latch with the matching call.
type latchMode int

const (
	latchRead latchMode = iota
	latchWrite
)

// held is one entry in a crabbing context's stack: a pinned, latched
// frame and the mode it was latched in.
type held struct {
	frame *buffer.Frame
	mode  latchMode
	dirty bool
}

// crabContext is the per-operation stack of latches and pins accumulated
// while descending the tree. Ancestors are released from the front
// (oldest first) as the descent determines they are safe; ReleaseAll
// drains whatever remains on every exit path, including early returns
// for duplicate keys and errors.
type crabContext struct {
	pool     *buffer.PoolManager
	stack    []held
	toDelete []storage.PageID
}

// scheduleDelete records a page for deletion once every latch/pin this
// operation holds has been released. A structurally-removed page cannot
// be handed to DeletePage immediately: it is still pinned by this very
// context.
func (c *crabContext) scheduleDelete(id storage.PageID) {
	c.toDelete = append(c.toDelete, id)
}

func newCrabContext(pool *buffer.PoolManager) *crabContext {
	return &crabContext{pool: pool}
}

// push records a newly latched, pinned frame at the top of the stack
// (the most recently descended-to page).
func (c *crabContext) push(frame *buffer.Frame, mode latchMode) {
	c.stack = append(c.stack, held{frame: frame, mode: mode})
}

// markDirty flags the most recently pushed frame as needing a dirty
// unpin when it is released.
func (c *crabContext) markDirty() {
	if n := len(c.stack); n > 0 {
		c.stack[n-1].dirty = true
	}
}

// releaseFront unlatches and unpins every frame from the front of the
// stack up to (not including) the last one — the ancestors that are now
// known to be uninvolved in any structural change. Used mid-descent once
// a safe node is reached.
func (c *crabContext) releaseFront() error {
	if len(c.stack) <= 1 {
		return nil
	}
	ancestors := c.stack[:len(c.stack)-1]
	for _, h := range ancestors {
		if err := c.release(h); err != nil {
			return err
		}
	}
	c.stack = c.stack[len(c.stack)-1:]
	return nil
}

// releaseAll unlatches and unpins every frame still held, in order from
// the root down. Safe to call multiple times.
func (c *crabContext) releaseAll() error {
	var firstErr error
	for _, h := range c.stack {
		if err := c.release(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.stack = nil
	return firstErr
}

func (c *crabContext) release(h held) error {
	switch h.mode {
	case latchWrite:
		h.frame.Latch.Unlock()
	case latchRead:
		h.frame.Latch.RUnlock()
	}
	return c.pool.UnpinPage(h.frame.PageID, h.dirty)
}

// frames returns the currently-held frames bottom to top, for callers
// that need direct access (e.g. the leaf/ancestor pages during a split).
func (c *crabContext) frames() []*buffer.Frame {
	out := make([]*buffer.Frame, len(c.stack))
	for i, h := range c.stack {
		out[i] = h.frame
	}
	return out
}

// top returns the most recently pushed frame, or nil if the context is empty.
func (c *crabContext) top() *buffer.Frame {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1].frame
}

// parentOf returns the frame immediately above the most recently pushed
// one (the current node's parent), or nil if there is none held.
func (c *crabContext) parentOf() *buffer.Frame {
	if len(c.stack) < 2 {
		return nil
	}
	return c.stack[len(c.stack)-2].frame
}
