package heap

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFile(t *testing.T, recordSize int) *File {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	f, err := Create(filepath.Join(t.TempDir(), "t.heap"), 4096, recordSize, 8, logger.Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func recOf(n int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(n))
	return buf
}

func TestInsertThenGet_RoundTrips(t *testing.T) {
	f := newTestFile(t, 4)
	rid, err := f.Insert(recOf(42))
	require.NoError(t, err)

	got, err := f.Get(rid)
	require.NoError(t, err)
	require.Equal(t, recOf(42), got)
}

func TestGet_UnoccupiedSlot_ReturnsNotFound(t *testing.T) {
	f := newTestFile(t, 4)
	rid, err := f.Insert(recOf(1))
	require.NoError(t, err)
	require.NoError(t, f.Delete(rid))

	_, err = f.Get(rid)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_RelinksFullPageOntoFreelist(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	f, err := Create(filepath.Join(t.TempDir(), "small.heap"), 128, 4, 8, logger.Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	// Fill the first data page completely.
	var rids []Rid
	firstPage := InvalidRid.PageNo
	for {
		rid, err := f.Insert(recOf(int32(len(rids))))
		require.NoError(t, err)
		if len(rids) == 0 {
			firstPage = rid.PageNo
		}
		rids = append(rids, rid)
		if rid.PageNo != firstPage {
			break
		}
	}
	// The page rolled over, meaning the first page became full and was
	// unlinked from the freelist (spec §4.1, §8 freelist property).
	require.NotEqual(t, firstPage, rids[len(rids)-1].PageNo)

	// Deleting a record on the full first page must relink it onto the
	// freelist head so the next insert can reuse its slot.
	require.NoError(t, f.Delete(rids[0]))
	reused, err := f.Insert(recOf(999))
	require.NoError(t, err)
	require.Equal(t, firstPage, reused.PageNo)
}

func TestUpdate_OverwritesInPlaceWithoutChangingRid(t *testing.T) {
	f := newTestFile(t, 4)
	rid, err := f.Insert(recOf(1))
	require.NoError(t, err)

	require.NoError(t, f.Update(rid, recOf(2)))
	got, err := f.Get(rid)
	require.NoError(t, err)
	require.Equal(t, recOf(2), got)
}

func TestInsertAt_RejectsOccupiedSlot(t *testing.T) {
	f := newTestFile(t, 4)
	rid, err := f.Insert(recOf(1))
	require.NoError(t, err)

	err = f.InsertAt(rid, recOf(2))
	require.ErrorIs(t, err, ErrSlotOccupied)
}

func TestScan_YieldsOccupiedSlotsInRidOrder(t *testing.T) {
	f := newTestFile(t, 4)
	var rids []Rid
	for i := int32(0); i < 5; i++ {
		rid, err := f.Insert(recOf(i))
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	require.NoError(t, f.Delete(rids[2]))

	scan := f.NewScan()
	var seen []Rid
	for {
		rid, ok, err := scan.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, rid)
	}
	require.Len(t, seen, 4)
	for i := 1; i < len(seen); i++ {
		require.True(t, seen[i-1].Less(seen[i]))
	}
	require.NotContains(t, seen, rids[2])
}

func TestInsert_RejectsWrongRecordSize(t *testing.T) {
	f := newTestFile(t, 4)
	_, err := f.Insert([]byte{1, 2, 3})
	require.Error(t, err)
}
