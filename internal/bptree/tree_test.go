package bptree

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/fixedkv/internal/storage"
)

func newTestTree(t *testing.T, poolSize, leafMax, internalMax int) *Tree {
	t.Helper()
	pool := newTestPool(t, poolSize)
	return NewTree(pool, leafMax, internalMax)
}

func TestTree_InsertAndGetRoundTrip(t *testing.T) {
	tree := newTestTree(t, 32, 2, 3)

	for i := int64(0); i < 5; i++ {
		ok, err := tree.Insert(i, int32(i+100))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(0); i < 5; i++ {
		v, ok, err := tree.GetValue(i)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int32(i+100), v)
	}

	_, ok, err := tree.GetValue(5)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tree.CheckInvariants())
}

func TestTree_DuplicateInsertRejected(t *testing.T) {
	tree := newTestTree(t, 32, 2, 3)

	ok, err := tree.Insert(1, 10)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(1, 99)
	require.NoError(t, err)
	require.False(t, ok)

	v, found, err := tree.GetValue(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int32(10), v)
}

func TestTree_InsertThenRemoveThenNotFound(t *testing.T) {
	tree := newTestTree(t, 32, 2, 3)

	ok, err := tree.Insert(7, 70)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Remove(7)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := tree.GetValue(7)
	require.NoError(t, err)
	require.False(t, found)
}

func TestTree_RemoveLastElementSetsRootInvalid(t *testing.T) {
	tree := newTestTree(t, 32, 2, 3)

	ok, err := tree.Insert(1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Remove(1)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, storage.InvalidPageID, tree.RootPageID())
}

func TestTree_SplitOccursOnLeafMaxMinusOneBoundary(t *testing.T) {
	tree := newTestTree(t, 32, 2, 3)

	// LEAF_MAX=2: one key fits with no split.
	ok, err := tree.Insert(1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tree.CheckInvariants())

	// Second key triggers a split (size would reach LEAF_MAX).
	ok, err = tree.Insert(2, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tree.CheckInvariants())

	for _, k := range []int64{1, 2} {
		v, found, err := tree.GetValue(k)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int32(k), v)
	}
}

func TestTree_AscendingInsertBuildsDepth(t *testing.T) {
	tree := newTestTree(t, 64, 2, 3)

	for k := int64(1); k <= 1000; k++ {
		ok, err := tree.Insert(k, int32(k))
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, tree.CheckInvariants())

	depth := 1
	id := tree.RootPageID()
	for {
		f, err := tree.pool.FetchPage(id)
		require.NoError(t, err)
		leaf := isLeafFrame(f)
		next := storage.InvalidPageID
		if !leaf {
			next = LoadInternal(f).ChildAt(0)
		}
		require.NoError(t, tree.pool.UnpinPage(id, false))
		if leaf {
			break
		}
		id = next
		depth++
	}
	require.GreaterOrEqual(t, depth, 3)

	for k := int64(1); k <= 1000; k++ {
		v, found, err := tree.GetValue(k)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int32(k), v)
	}
}

func TestTree_RedistributeOrCoalesceOnUnderflow(t *testing.T) {
	tree := newTestTree(t, 64, 2, 3)

	for k := int64(0); k < 30; k++ {
		ok, err := tree.Insert(k, int32(k))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, tree.CheckInvariants())

	for k := int64(0); k < 20; k++ {
		ok, err := tree.Remove(k)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tree.CheckInvariants())
	}

	for k := int64(0); k < 20; k++ {
		_, found, err := tree.GetValue(k)
		require.NoError(t, err)
		require.False(t, found)
	}
	for k := int64(20); k < 30; k++ {
		v, found, err := tree.GetValue(k)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int32(k), v)
	}
}

func TestTree_ConcurrentRandomInsertsThenGet(t *testing.T) {
	tree := newTestTree(t, 256, 64, 64)

	const perWorker = 2000
	const workers = 4
	keys := make([][]int64, workers)
	rng := rand.New(rand.NewSource(1))
	seen := make(map[int64]bool)
	for w := 0; w < workers; w++ {
		for len(keys[w]) < perWorker {
			k := rng.Int63()
			if !seen[k] {
				seen[k] = true
				keys[w] = append(keys[w], k)
			}
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, k := range keys[w] {
				_, err := tree.Insert(k, int32(k))
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		for _, k := range keys[w] {
			v, found, err := tree.GetValue(k)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, int32(k), v)
		}
	}
}

func TestTree_ConcurrentDeletes(t *testing.T) {
	tree := newTestTree(t, 256, 16, 16)

	const n = 2000
	for k := int64(0); k < n; k++ {
		ok, err := tree.Insert(k, int32(k))
		require.NoError(t, err)
		require.True(t, ok)
	}

	const toDelete = 100
	const workers = 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := int64(w * (toDelete / workers)); k < int64((w+1)*(toDelete/workers)); k++ {
				_, err := tree.Remove(k)
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for k := int64(0); k < toDelete; k++ {
		_, found, err := tree.GetValue(k)
		require.NoError(t, err)
		require.False(t, found)
	}
	for k := int64(toDelete); k < n; k++ {
		v, found, err := tree.GetValue(k)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int32(k), v)
	}
}

func TestTree_ConcurrentReadersDuringWrites(t *testing.T) {
	tree := newTestTree(t, 256, 16, 16)

	const n = 2000
	var stop sync.WaitGroup
	stopCh := make(chan struct{})

	stop.Add(4)
	for i := 0; i < 4; i++ {
		go func() {
			defer stop.Done()
			for {
				select {
				case <-stopCh:
					return
				default:
				}
				for k := int64(0); k < n; k++ {
					v, found, err := tree.GetValue(k)
					require.NoError(t, err)
					if found {
						require.Equal(t, int32(k), v)
					}
				}
			}
		}()
	}

	for k := int64(0); k < n; k++ {
		ok, err := tree.Insert(k, int32(k))
		require.NoError(t, err)
		require.True(t, ok)
	}

	close(stopCh)
	stop.Wait()
}

func TestTree_PoolSizeOneDoesNotDeadlock(t *testing.T) {
	tree := newTestTree(t, 1, 4, 4)

	ok, err := tree.Insert(1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 1000; i++ {
		v, found, err := tree.GetValue(1)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int32(1), v)
	}
}
