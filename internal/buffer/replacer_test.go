package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUReplacer_VictimIsLeastRecentlyUnpinned(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	require.Equal(t, 3, r.Size())

	v, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestLRUReplacer_PinRemovesFromCandidates(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)
	require.Equal(t, 1, r.Size())

	v, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestLRUReplacer_VictimOnEmptyReturnsFalse(t *testing.T) {
	r := NewLRUReplacer(3)
	_, ok := r.Victim()
	require.False(t, ok)
}

func TestLRUReplacer_UnpinIsIdempotent(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(1)
	require.Equal(t, 1, r.Size())
}

func TestLRUReplacer_ReUnpinMovesToBack(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)
	r.Unpin(1)

	v, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 2, v)
}
