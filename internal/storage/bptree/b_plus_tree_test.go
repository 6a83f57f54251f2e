package bptree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"ridgedb/internal/buffer"
	"ridgedb/internal/common"
	"ridgedb/internal/disk"
)

func newTestTree(t *testing.T, cfg common.Config) *BPlusTree {
	t.Helper()
	dm := disk.NewMemManager(cfg.PageSize)
	bpm := buffer.NewBufferPoolManager(cfg.BufferPoolSize, cfg.PageSize, dm)
	tree, err := NewBPlusTree("t", bpm, cfg)
	require.NoError(t, err)
	return tree
}

func rid(i int64) common.RID { return common.RID{PageID: i, SlotIdx: 0} }

// TestBPlusTree_SplitsLeafIntoInternalRoot inserts enough keys into a
// leaf-max-size-4 tree to force the root to split into an internal node
// with one separator key and two leaf children.
func TestBPlusTree_SplitsLeafIntoInternalRoot(t *testing.T) {
	cfg := common.DefaultConfig()
	cfg.LeafMaxSize = 4
	cfg.InternalMaxSize = 4
	tree := newTestTree(t, cfg)

	for _, k := range []int64{1, 2, 3, 4} {
		ok, err := tree.Insert(common.Int64Key(k), rid(k))
		require.NoError(t, err)
		require.True(t, ok)
	}

	root, err := tree.pager.FetchNode(tree.RootPageID())
	require.NoError(t, err)
	require.False(t, root.IsLeaf(), "root should have split into an internal node")
	internal := root.(*InternalPage)
	require.Equal(t, 2, internal.Size())
	require.NoError(t, tree.pager.Unpin(root.PageID(), false))

	for _, k := range []int64{1, 2, 3, 4} {
		v, found, err := tree.GetValue(common.Int64Key(k))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, rid(k), v)
	}

	ok, err := tree.Insert(common.Int64Key(0), rid(0))
	require.NoError(t, err)
	require.True(t, ok)
	v, found, err := tree.GetValue(common.Int64Key(0))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid(0), v)
}

func TestBPlusTree_DuplicateInsertRejected(t *testing.T) {
	tree := newTestTree(t, common.DefaultConfig())

	ok, err := tree.Insert(common.Int64Key(5), rid(5))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(common.Int64Key(5), rid(50))
	require.NoError(t, err)
	require.False(t, ok, "duplicate key insert must be rejected")

	v, found, err := tree.GetValue(common.Int64Key(5))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid(5), v, "original value must be unchanged")
}

func TestBPlusTree_RemoveUnknownKeyIsNoop(t *testing.T) {
	tree := newTestTree(t, common.DefaultConfig())
	_, err := tree.Insert(common.Int64Key(1), rid(1))
	require.NoError(t, err)

	ok, err := tree.Remove(common.Int64Key(99))
	require.NoError(t, err)
	require.False(t, ok)

	_, found, err := tree.GetValue(common.Int64Key(1))
	require.NoError(t, err)
	require.True(t, found)
}

// TestBPlusTree_RemoveCascadesToRootDemotion removes keys from a split tree
// until a leaf underflows, forcing a merge with its sibling, which in turn
// collapses the internal root back down to a single leaf.
func TestBPlusTree_RemoveCascadesToRootDemotion(t *testing.T) {
	cfg := common.DefaultConfig()
	cfg.LeafMaxSize = 4
	cfg.InternalMaxSize = 4
	tree := newTestTree(t, cfg)

	for _, k := range []int64{1, 2, 3, 4} {
		_, err := tree.Insert(common.Int64Key(k), rid(k))
		require.NoError(t, err)
	}

	root, err := tree.pager.FetchNode(tree.RootPageID())
	require.NoError(t, err)
	require.False(t, root.IsLeaf())
	require.NoError(t, tree.pager.Unpin(root.PageID(), false))

	ok, err := tree.Remove(common.Int64Key(3))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = tree.Remove(common.Int64Key(4))
	require.NoError(t, err)
	require.True(t, ok)

	root, err = tree.pager.FetchNode(tree.RootPageID())
	require.NoError(t, err)
	require.True(t, root.IsLeaf(), "root should have demoted back to a single leaf")
	leaf := root.(*LeafPage)
	require.Equal(t, 2, leaf.Size())
	require.NoError(t, tree.pager.Unpin(root.PageID(), false))

	for _, k := range []int64{1, 2} {
		_, found, err := tree.GetValue(common.Int64Key(k))
		require.NoError(t, err)
		require.True(t, found)
	}
	for _, k := range []int64{3, 4} {
		_, found, err := tree.GetValue(common.Int64Key(k))
		require.NoError(t, err)
		require.False(t, found)
	}
}

func TestBPlusTree_InsertRemoveRoundTripSortedUnique(t *testing.T) {
	cfg := common.DefaultConfig()
	cfg.LeafMaxSize = 4
	cfg.InternalMaxSize = 4
	tree := newTestTree(t, cfg)

	rnd := rand.New(rand.NewSource(7))
	keys := rnd.Perm(200)

	for _, k := range keys {
		ok, err := tree.Insert(common.Int64Key(k), rid(int64(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var seen []int64
	for it.Valid() {
		k := it.Key().(common.Int64Key)
		seen = append(seen, int64(k))
		require.NoError(t, it.Next())
	}
	require.Len(t, seen, 200)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i], "iteration order must be strictly ascending")
	}

	for i := 0; i < 200; i += 2 {
		ok, err := tree.Remove(common.Int64Key(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 0; i < 200; i++ {
		_, found, err := tree.GetValue(common.Int64Key(i))
		require.NoError(t, err)
		require.Equal(t, i%2 != 0, found)
	}
}

// TestBPlusTree_RemoveFromHighEndBorrowsFromLeftSibling inserts a shuffled
// run (which leaves many nodes above min size) and then deletes from the
// high end down, which repeatedly underflows the rightmost leaves and
// internal nodes while some of their left siblings can still lend - the
// redistribute-from-left-sibling path on both page types
// (InternalPage.MoveLastToFrontOf, LeafPage.MoveLastToFrontOf). An
// ascending run would not do: it leaves every left sibling at min size, so
// each underflow coalesces instead.
func TestBPlusTree_RemoveFromHighEndBorrowsFromLeftSibling(t *testing.T) {
	cfg := common.DefaultConfig()
	cfg.LeafMaxSize = 4
	cfg.InternalMaxSize = 4
	tree := newTestTree(t, cfg)

	const n = 120
	for _, k := range rand.New(rand.NewSource(7)).Perm(n) {
		i := int64(k)
		ok, err := tree.Insert(common.Int64Key(i), rid(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(n - 1); i >= n/2; i-- {
		ok, err := tree.Remove(common.Int64Key(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(0); i < n; i++ {
		_, found, err := tree.GetValue(common.Int64Key(i))
		require.NoError(t, err)
		require.Equal(t, i < n/2, found, "key %d", i)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var seen []int64
	for it.Valid() {
		seen = append(seen, int64(it.Key().(common.Int64Key)))
		require.NoError(t, it.Next())
	}
	require.Len(t, seen, int(n/2))
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i])
	}
}
