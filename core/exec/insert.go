package exec

import (
	"fmt"

	"github.com/gojodb/txcore/core/catalog"
	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/txn"
)

// InsertExecutor writes one new record and its index entries.
//
// Grounded on original_source/src/execution/executor_insert.h: IX lock on
// the table, heap insert, append the WriteRecord, then per index take the
// exclusive gap lock (single-column INT only) before writing the index
// entry and appending its undo entry. Duplicate keys are not pre-checked
// (spec §9 "Duplicate-key inserts"): bptree.Tree.InsertEntry silently
// no-ops on an existing key, and this executor does not inspect its
// inserted flag.
type InsertExecutor struct {
	ctx     *Context
	tabName string
	table   *catalog.Table
}

// NewInsertExecutor builds an insert operator for tabName.
func NewInsertExecutor(ctx *Context, tabName string) (*InsertExecutor, error) {
	table, _, ok := ctx.DB.Table(tabName)
	if !ok {
		return nil, fmt.Errorf("exec: unknown table %q", tabName)
	}
	return &InsertExecutor{ctx: ctx, tabName: tabName, table: table}, nil
}

// Insert writes record into the heap file and every index over the table,
// recording undo entries as it goes. record must already be laid out per
// the table's column offsets.
func (e *InsertExecutor) Insert(record []byte) (heap.Rid, error) {
	tableID, err := e.ctx.DB.mustTableID(e.tabName)
	if err != nil {
		return heap.Rid{}, err
	}
	if err := e.ctx.LockMgr.LockIXOnTable(e.ctx.Txn, tableID); err != nil {
		return heap.Rid{}, err
	}

	_, file, _ := e.ctx.DB.Table(e.tabName)
	rid, err := file.Insert(record)
	if err != nil {
		return heap.Rid{}, err
	}

	wr := &txn.WriteRecord{Type: txn.WInsert, Table: e.tabName, Rid: rid}
	e.ctx.Txn.AppendWrite(wr)

	for _, idxDef := range e.table.Indexes {
		if err := e.writeIndexEntry(tableID, idxDef, record, rid); err != nil {
			return heap.Rid{}, err
		}
	}
	return rid, nil
}

func (e *InsertExecutor) writeIndexEntry(tableID uint32, idxDef *catalog.IndexDef, record []byte, rid heap.Rid) error {
	key, err := idxDef.EncodeKey(record)
	if err != nil {
		return err
	}
	if idxDef.IsSingleColumnInt() {
		if err := e.ctx.LockMgr.LockExclusiveOnGap(e.ctx.Txn, tableID); err != nil {
			return err
		}
	}
	_, tree, ok := e.ctx.DB.Index(idxDef.Name)
	if !ok {
		return fmt.Errorf("exec: index %q not open", idxDef.Name)
	}
	if _, _, err := tree.InsertEntry(key, rid); err != nil {
		return err
	}
	e.ctx.Txn.AppendIndexOp(txn.IndexUndoRecord{IndexName: idxDef.Name, Key: key, Rid: rid, Op: txn.IndexInsert})
	return nil
}
