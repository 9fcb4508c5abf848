package exec

import (
	"fmt"

	"github.com/gojodb/txcore/core/catalog"
	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/txn"
)

// DeleteExecutor removes a record and every index entry computed from it.
//
// Grounded on original_source/src/execution/executor_delete.h: IX lock on
// the table; per rid, read the record and append its WriteRecord (with the
// pre-image) before any mutation; per index, take the exclusive gap lock
// (single-column INT only), delete the index entry and append its undo
// entry; delete the heap record last.
type DeleteExecutor struct {
	ctx     *Context
	tabName string
	table   *catalog.Table
}

// NewDeleteExecutor builds a delete operator for tabName.
func NewDeleteExecutor(ctx *Context, tabName string) (*DeleteExecutor, error) {
	table, _, ok := ctx.DB.Table(tabName)
	if !ok {
		return nil, fmt.Errorf("exec: unknown table %q", tabName)
	}
	return &DeleteExecutor{ctx: ctx, tabName: tabName, table: table}, nil
}

// Delete removes the record at rid and its index entries.
func (e *DeleteExecutor) Delete(rid heap.Rid) error {
	tableID, err := e.ctx.DB.mustTableID(e.tabName)
	if err != nil {
		return err
	}
	if err := e.ctx.LockMgr.LockIXOnTable(e.ctx.Txn, tableID); err != nil {
		return err
	}

	_, file, _ := e.ctx.DB.Table(e.tabName)
	record, err := file.Get(rid)
	if err != nil {
		return err
	}

	wr := &txn.WriteRecord{Type: txn.WDelete, Table: e.tabName, Rid: rid, OldRecord: record}
	e.ctx.Txn.AppendWrite(wr)

	for _, idxDef := range e.table.Indexes {
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
		if err := tree.DeleteEntry(key); err != nil {
			return err
		}
		e.ctx.Txn.AppendIndexOp(txn.IndexUndoRecord{IndexName: idxDef.Name, Key: key, Rid: rid, Op: txn.IndexDelete})
	}

	return file.Delete(rid)
}
