// Package kvstore exposes the public get/insert/update/remove
// key-value contract over a bptree.Tree: the thin façade the indexed
// storage engine serves, not part of its hard core.
package kvstore

import (
	"log/slog"

	"github.com/tuannm99/fixedkv/internal/bptree"
)

// NotFound is the sentinel value Get returns when key is absent.
const NotFound int32 = -1

// Store is the public key-value surface over one B+ tree index.
type Store struct {
	tree *bptree.Tree
}

// New wraps an already-constructed tree.
func New(tree *bptree.Tree) *Store {
	return &Store{tree: tree}
}

// Insert adds (key, value), returning false if key already exists.
func (s *Store) Insert(key int64, value int32) (bool, error) {
	ok, err := s.tree.Insert(key, value)
	if err != nil {
		slog.Error("kvstore: insert failed", "key", key, "err", err)
		return false, err
	}
	return ok, nil
}

// Update sets key to value if, and only if, key is not already present
// — the same insert-on-absent semantics as Insert, exposed under a
// distinct name per the public contract.
func (s *Store) Update(key int64, value int32) (bool, error) {
	return s.Insert(key, value)
}

// Remove deletes key, returning false if it was not present.
func (s *Store) Remove(key int64) (bool, error) {
	ok, err := s.tree.Remove(key)
	if err != nil {
		slog.Error("kvstore: remove failed", "key", key, "err", err)
		return false, err
	}
	return ok, nil
}

// Get returns key's value, or NotFound if key is absent.
func (s *Store) Get(key int64) (int32, error) {
	v, ok, err := s.tree.GetValue(key)
	if err != nil {
		slog.Error("kvstore: get failed", "key", key, "err", err)
		return NotFound, err
	}
	if !ok {
		return NotFound, nil
	}
	return v, nil
}
