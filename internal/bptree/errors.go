package bptree

import "fmt"

// ErrInvariantViolation marks a branch that should be unreachable if the
// tree's invariants hold — e.g. coalesce-or-redistribute finding no
// sibling to act on. Treated as fatal: the tree state may be corrupt.
var ErrInvariantViolation = fmt.Errorf("bptree: invariant violation")

// not_found and duplicate_key are deliberately not errors: GetValue,
// Insert and Remove return them as ordinary booleans/sentinels, per the
// key-value contract. Only out_of_memory (buffer.ErrNoFreeFrame),
// io_error (storage.Error) and ErrInvariantViolation propagate as errors.
