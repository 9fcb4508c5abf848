package txn

import (
	"errors"
	"testing"

	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/lockmgr"
	"github.com/gojodb/txcore/core/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errIndexEntryNotFound = errors.New("fakeIndex: entry not found")

// fakeTable is an in-memory stand-in for *heap.File, keyed by rid.
type fakeTable struct {
	rows map[heap.Rid][]byte
}

func newFakeTable() *fakeTable { return &fakeTable{rows: make(map[heap.Rid][]byte)} }

func (f *fakeTable) Get(rid heap.Rid) ([]byte, error) {
	v, ok := f.rows[rid]
	if !ok {
		return nil, heap.ErrNotFound
	}
	return v, nil
}

func (f *fakeTable) InsertAt(rid heap.Rid, buf []byte) error {
	if _, ok := f.rows[rid]; ok {
		return heap.ErrSlotOccupied
	}
	f.rows[rid] = append([]byte(nil), buf...)
	return nil
}

func (f *fakeTable) Delete(rid heap.Rid) error {
	if _, ok := f.rows[rid]; !ok {
		return heap.ErrNotFound
	}
	delete(f.rows, rid)
	return nil
}

func (f *fakeTable) Update(rid heap.Rid, buf []byte) error {
	if _, ok := f.rows[rid]; !ok {
		return heap.ErrNotFound
	}
	f.rows[rid] = append([]byte(nil), buf...)
	return nil
}

// fakeIndex is an in-memory stand-in for *bptree.Tree.
type fakeIndex struct {
	entries map[string]heap.Rid
}

func newFakeIndex() *fakeIndex { return &fakeIndex{entries: make(map[string]heap.Rid)} }

func (f *fakeIndex) InsertEntry(key []byte, rid heap.Rid) (storage.PageID, bool, error) {
	if _, ok := f.entries[string(key)]; ok {
		return storage.InvalidPageID, false, nil
	}
	f.entries[string(key)] = rid
	return storage.PageID(1), true, nil
}

func (f *fakeIndex) DeleteEntry(key []byte) error {
	if _, ok := f.entries[string(key)]; !ok {
		return errIndexEntryNotFound
	}
	delete(f.entries, string(key))
	return nil
}

// fakeResolver wires table/index names to fake handles.
type fakeResolver struct {
	tables  map[string]TableHandle
	indexes map[string]IndexHandle
	// tableIndexes mirrors catalog.Table.Indexes for TableIndexes, keyed
	// by table name.
	tableIndexes map[string][]IndexMeta
}

func (r *fakeResolver) Table(name string) (TableHandle, bool) {
	h, ok := r.tables[name]
	return h, ok
}

func (r *fakeResolver) Index(name string) (IndexHandle, bool) {
	h, ok := r.indexes[name]
	return h, ok
}

func (r *fakeResolver) TableIndexes(name string) ([]IndexMeta, bool) {
	metas, ok := r.tableIndexes[name]
	return metas, ok
}

// fixedWidthKey builds an IndexMeta.EncodeKey that reads a column of width
// bytes at offset off out of a record, standing in for
// catalog.IndexDef.EncodeKey in these tests.
func fixedWidthKey(indexName string, off, width int) IndexMeta {
	return IndexMeta{
		IndexName: indexName,
		EncodeKey: func(record []byte) ([]byte, error) {
			return append([]byte(nil), record[off:off+width]...), nil
		},
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeTable, *fakeIndex) {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	table := newFakeTable()
	index := newFakeIndex()
	resolver := &fakeResolver{
		tables:       map[string]TableHandle{"t": table},
		indexes:      map[string]IndexHandle{"t.pk": index},
		tableIndexes: map[string][]IndexMeta{"t": {fixedWidthKey("t.pk", 0, 4)}},
	}
	lockMgr := lockmgr.NewManager(logger.Sugar(), nil)
	return NewManager(lockMgr, resolver, logger.Sugar(), nil), table, index
}

func TestCommit_ClearsWriteSetAndReleasesLocks(t *testing.T) {
	m, table, _ := newTestManager(t)
	txn := m.Begin()

	rid := heap.Rid{PageNo: 1, SlotNo: 0}
	require.NoError(t, table.InsertAt(rid, []byte("row")))
	require.NoError(t, m.lockMgr.LockExclusiveOnRecord(txn, 1, rid))
	txn.AppendWrite(&WriteRecord{Type: WInsert, Table: "t", Rid: rid})

	require.NoError(t, m.Commit(txn))
	require.Equal(t, StateCommitted, txn.GetState())
	require.Empty(t, txn.LockSet())

	_, err := table.Get(rid)
	require.NoError(t, err, "commit must not undo the insert")
}

func TestAbort_UndoesInsertAndItsIndexEntry(t *testing.T) {
	m, table, index := newTestManager(t)
	txn := m.Begin()

	rid := heap.Rid{PageNo: 1, SlotNo: 0}
	require.NoError(t, table.InsertAt(rid, []byte("row")))
	_, _, err := index.InsertEntry([]byte("key1"), rid)
	require.NoError(t, err)

	wr := &WriteRecord{Type: WInsert, Table: "t", Rid: rid}
	txn.AppendWrite(wr)
	txn.AppendIndexOp(IndexUndoRecord{IndexName: "t.pk", Key: []byte("key1"), Rid: rid, Op: IndexInsert})

	require.NoError(t, m.Abort(txn))
	require.Equal(t, StateAborted, txn.GetState())

	_, err = table.Get(rid)
	require.ErrorIs(t, err, heap.ErrNotFound)
	_, stillPresent := index.entries["key1"]
	require.False(t, stillPresent)
}

// TestAbort_UndoesDeleteWithReoccupiedRid_PurgesOccupantIndexEntry covers
// spec §4.4 ¶2's DELETE_TUPLE-undo branch: DeleteExecutor takes only a
// table IX lock, so another transaction can reuse the freed rid (and add
// its own index entry for it) before this transaction's abort replays.
// The fallback update must purge that occupant's now-stale index entry
// before overwriting the rid with the old record.
func TestAbort_UndoesDeleteWithReoccupiedRid_PurgesOccupantIndexEntry(t *testing.T) {
	m, table, index := newTestManager(t)
	txn := m.Begin()

	rid := heap.Rid{PageNo: 1, SlotNo: 0}
	oldRecord := []byte{0, 0, 0, 1}
	require.NoError(t, table.InsertAt(rid, oldRecord))
	_, _, err := index.InsertEntry(oldRecord, rid)
	require.NoError(t, err)
	// DeleteExecutor removes the index entry before the heap record (spec
	// §4.4 ¶2's lock-then-mutate-then-undo ordering).
	require.NoError(t, index.DeleteEntry(oldRecord))
	require.NoError(t, table.Delete(rid))

	wr := &WriteRecord{Type: WDelete, Table: "t", Rid: rid, OldRecord: oldRecord}
	txn.AppendWrite(wr)
	txn.AppendIndexOp(IndexUndoRecord{IndexName: "t.pk", Key: oldRecord, Rid: rid, Op: IndexDelete})

	// A concurrent transaction reuses the freed rid and indexes it under
	// its own key before this transaction's abort runs.
	occupantRecord := []byte{0, 0, 0, 9}
	require.NoError(t, table.InsertAt(rid, occupantRecord))
	_, _, err = index.InsertEntry(occupantRecord, rid)
	require.NoError(t, err)

	require.NoError(t, m.Abort(txn))

	got, err := table.Get(rid)
	require.NoError(t, err)
	require.Equal(t, oldRecord, got, "abort must still restore the old record over the reoccupied rid")

	_, occupantStillIndexed := index.entries[string(occupantRecord)]
	require.False(t, occupantStillIndexed, "occupant's stale index entry must be purged")

	gotRid, ok := index.entries[string(oldRecord)]
	require.True(t, ok, "the deleted row's own index entry must be restored")
	require.Equal(t, rid, gotRid)
}

func TestAbort_UndoesDeleteByReinsertingOldRecord(t *testing.T) {
	m, table, index := newTestManager(t)
	txn := m.Begin()

	rid := heap.Rid{PageNo: 1, SlotNo: 0}
	oldRow := []byte("old-row")
	_, _, err := index.InsertEntry([]byte("key1"), rid)
	require.NoError(t, err)
	require.NoError(t, table.Delete(rid))
	require.Error(t, table.Delete(rid)) // sanity: already gone

	wr := &WriteRecord{Type: WDelete, Table: "t", Rid: rid, OldRecord: oldRow}
	txn.AppendWrite(wr)
	txn.AppendIndexOp(IndexUndoRecord{IndexName: "t.pk", Key: []byte("key1"), Rid: rid, Op: IndexDelete})

	require.NoError(t, m.Abort(txn))

	got, err := table.Get(rid)
	require.NoError(t, err)
	require.Equal(t, oldRow, got)
	require.Equal(t, rid, index.entries["key1"])
}
