package exec

import (
	"bytes"
	"fmt"

	"github.com/gojodb/txcore/core/catalog"
	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/txn"
)

// UpdateExecutor overwrites a record in place, maintaining every index that
// covers it.
//
// Grounded on original_source/src/execution/executor_update.h: IX lock on
// the table; per rid, exclusive record lock, read the old image, append
// its WriteRecord; then for every index, remove the old entry (gap lock on
// the old key first, for single-column INT indexes) and append its undo
// entry; only once every old entry is gone does it overwrite the heap
// record; then for every index, insert the new entry (gap lock on the new
// key first, only if it differs from the old key) and append its undo
// entry. Planning the new image (evaluating SET clauses) is out of scope
// (spec §1); callers supply the already-computed new record, as
// InsertExecutor's callers supply the already-built record.
type UpdateExecutor struct {
	ctx     *Context
	tabName string
	table   *catalog.Table
}

// NewUpdateExecutor builds an update operator for tabName.
func NewUpdateExecutor(ctx *Context, tabName string) (*UpdateExecutor, error) {
	table, _, ok := ctx.DB.Table(tabName)
	if !ok {
		return nil, fmt.Errorf("exec: unknown table %q", tabName)
	}
	return &UpdateExecutor{ctx: ctx, tabName: tabName, table: table}, nil
}

// Update overwrites the record at rid with newRecord, maintaining indexes.
func (e *UpdateExecutor) Update(rid heap.Rid, newRecord []byte) error {
	tableID, err := e.ctx.DB.mustTableID(e.tabName)
	if err != nil {
		return err
	}
	if err := e.ctx.LockMgr.LockIXOnTable(e.ctx.Txn, tableID); err != nil {
		return err
	}
	if err := e.ctx.LockMgr.LockExclusiveOnRecord(e.ctx.Txn, tableID, rid); err != nil {
		return err
	}

	_, file, _ := e.ctx.DB.Table(e.tabName)
	oldRecord, err := file.Get(rid)
	if err != nil {
		return err
	}

	wr := &txn.WriteRecord{Type: txn.WUpdate, Table: e.tabName, Rid: rid, OldRecord: oldRecord}
	e.ctx.Txn.AppendWrite(wr)

	oldKeys := make([][]byte, len(e.table.Indexes))
	for i, idxDef := range e.table.Indexes {
		oldKey, err := idxDef.EncodeKey(oldRecord)
		if err != nil {
			return err
		}
		oldKeys[i] = oldKey
		if idxDef.IsSingleColumnInt() {
			if err := e.ctx.LockMgr.LockExclusiveOnGap(e.ctx.Txn, tableID); err != nil {
				return err
			}
		}
		_, tree, ok := e.ctx.DB.Index(idxDef.Name)
		if !ok {
			return fmt.Errorf("exec: index %q not open", idxDef.Name)
		}
		if err := tree.DeleteEntry(oldKey); err != nil {
			return err
		}
		e.ctx.Txn.AppendIndexOp(txn.IndexUndoRecord{IndexName: idxDef.Name, Key: oldKey, Rid: rid, Op: txn.IndexDelete})
	}

	if err := file.Update(rid, newRecord); err != nil {
		return err
	}

	for i, idxDef := range e.table.Indexes {
		newKey, err := idxDef.EncodeKey(newRecord)
		if err != nil {
			return err
		}
		if idxDef.IsSingleColumnInt() && !bytes.Equal(newKey, oldKeys[i]) {
			if err := e.ctx.LockMgr.LockExclusiveOnGap(e.ctx.Txn, tableID); err != nil {
				return err
			}
		}
		_, tree, ok := e.ctx.DB.Index(idxDef.Name)
		if !ok {
			return fmt.Errorf("exec: index %q not open", idxDef.Name)
		}
		if _, _, err := tree.InsertEntry(newKey, rid); err != nil {
			return err
		}
		e.ctx.Txn.AppendIndexOp(txn.IndexUndoRecord{IndexName: idxDef.Name, Key: newKey, Rid: rid, Op: txn.IndexInsert})
	}

	return nil
}
