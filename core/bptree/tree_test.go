package bptree

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intKey(n int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(n))
	return buf
}

func intCmp(a, b []byte) int {
	av := int32(binary.BigEndian.Uint32(a))
	bv := int32(binary.BigEndian.Uint32(b))
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

func newTestTree(t *testing.T, pageSize int) *Tree {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	tree, err := Create(filepath.Join(t.TempDir(), "t.idx"), pageSize, 4, 16, intCmp, logger.Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

func TestInsertThenGetValue_RoundTrips(t *testing.T) {
	tree := newTestTree(t, 4096)
	rid := heap.Rid{PageNo: storage.PageID(3), SlotNo: 5}

	_, inserted, err := tree.InsertEntry(intKey(42), rid)
	require.NoError(t, err)
	require.True(t, inserted)

	got, ok, err := tree.GetValue(intKey(42))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rid, got)
}

func TestInsertEntry_DuplicateKey_ReturnsInsertedFalse(t *testing.T) {
	tree := newTestTree(t, 4096)
	rid := heap.Rid{PageNo: 1, SlotNo: 0}
	_, inserted, err := tree.InsertEntry(intKey(1), rid)
	require.NoError(t, err)
	require.True(t, inserted)

	_, inserted, err = tree.InsertEntry(intKey(1), heap.Rid{PageNo: 2, SlotNo: 0})
	require.NoError(t, err)
	require.False(t, inserted, "duplicate key insert must be a silent no-op, mirroring the original's insert-returns-current-size behavior")
}

func TestGetValue_MissingKey_ReturnsNotFound(t *testing.T) {
	tree := newTestTree(t, 4096)
	_, ok, err := tree.GetValue(intKey(999))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteEntry_RemovesKey(t *testing.T) {
	tree := newTestTree(t, 4096)
	_, _, err := tree.InsertEntry(intKey(5), heap.Rid{PageNo: 1, SlotNo: 0})
	require.NoError(t, err)

	require.NoError(t, tree.DeleteEntry(intKey(5)))

	_, ok, err := tree.GetValue(intKey(5))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteEntry_MissingKey_ReturnsErrIndexEntryNotFound(t *testing.T) {
	tree := newTestTree(t, 4096)
	err := tree.DeleteEntry(intKey(1))
	require.ErrorIs(t, err, ErrIndexEntryNotFound)
}

// TestSplitAndMerge_SurvivesManyInsertsAndDeletes forces leaf splits and
// internal-node growth by using a small page size (few keys per node),
// then deletes everything back out again, exercising coalesce/redistribute
// (spec §4.2).
func TestSplitAndMerge_SurvivesManyInsertsAndDeletes(t *testing.T) {
	tree := newTestTree(t, 128)

	const n = 200
	for i := int32(0); i < n; i++ {
		_, inserted, err := tree.InsertEntry(intKey(i), heap.Rid{PageNo: storage.PageID(i), SlotNo: 0})
		require.NoError(t, err)
		require.True(t, inserted)
	}
	for i := int32(0); i < n; i++ {
		got, ok, err := tree.GetValue(intKey(i))
		require.NoError(t, err)
		require.True(t, ok, "key %d should be found after %d inserts", i, n)
		require.Equal(t, storage.PageID(i), got.PageNo)
	}

	// Delete every other key, then confirm both the deleted and the
	// surviving keys are exactly right.
	for i := int32(0); i < n; i += 2 {
		require.NoError(t, tree.DeleteEntry(intKey(i)))
	}
	for i := int32(0); i < n; i++ {
		_, ok, err := tree.GetValue(intKey(i))
		require.NoError(t, err)
		if i%2 == 0 {
			require.False(t, ok, "key %d should have been deleted", i)
		} else {
			require.True(t, ok, "key %d should still be present", i)
		}
	}
}

func TestRangeScan_YieldsKeysInOrderWithinBounds(t *testing.T) {
	tree := newTestTree(t, 128)
	for i := int32(0); i < 50; i++ {
		_, _, err := tree.InsertEntry(intKey(i), heap.Rid{PageNo: storage.PageID(i), SlotNo: 0})
		require.NoError(t, err)
	}

	lower, err := tree.LowerBoundIid(intKey(10))
	require.NoError(t, err)
	upper, err := tree.UpperBoundIid(intKey(20))
	require.NoError(t, err)

	rs := NewRangeScan(tree, lower, upper)
	var keys []int32
	for {
		key, _, ok, err := rs.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, int32(binary.BigEndian.Uint32(key)))
	}

	expected := make([]int32, 0, 11)
	for i := int32(10); i <= 20; i++ {
		expected = append(expected, i)
	}
	require.Equal(t, expected, keys)
}

func TestRangeScan_Unbounded_YieldsEverythingInOrder(t *testing.T) {
	tree := newTestTree(t, 128)
	for i := int32(9); i >= 0; i-- {
		_, _, err := tree.InsertEntry(intKey(i), heap.Rid{PageNo: storage.PageID(i), SlotNo: 0})
		require.NoError(t, err)
	}

	rs := NewRangeScan(tree, tree.LeafBegin(), tree.LeafEnd())
	var keys []int32
	for {
		key, _, ok, err := rs.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, int32(binary.BigEndian.Uint32(key)))
	}
	require.Len(t, keys, 10)
	for i := 1; i < len(keys); i++ {
		require.Less(t, keys[i-1], keys[i])
	}
}
