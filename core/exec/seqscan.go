package exec

import (
	"fmt"

	"github.com/gojodb/txcore/core/catalog"
	"github.com/gojodb/txcore/core/heap"
)

// SeqScanExecutor walks every occupied slot of a table's heap file in rid
// order and yields the tuples matching a conjunctive predicate.
//
// Grounded on original_source/src/execution/executor_seq_scan.h: beginTuple
// builds the table iterator and advances to the first matching record;
// nextTuple/Next fold into a single pull here. Lock boundary per spec §4.4:
// IS on the table, then (sequential scan only) table-level S.
type SeqScanExecutor struct {
	ctx     *Context
	tabName string
	table   *catalog.Table
	file    *heap.File
	conds   []Condition

	scan *heap.Scan
}

// NewSeqScanExecutor builds a sequential scan over tabName filtered by conds.
func NewSeqScanExecutor(ctx *Context, tabName string, conds []Condition) (*SeqScanExecutor, error) {
	table, file, ok := ctx.DB.Table(tabName)
	if !ok {
		return nil, fmt.Errorf("exec: unknown table %q", tabName)
	}
	return &SeqScanExecutor{ctx: ctx, tabName: tabName, table: table, file: file, conds: conds}, nil
}

func (e *SeqScanExecutor) Columns() []catalog.Column { return e.table.Columns }
func (e *SeqScanExecutor) TupleLen() int             { return e.table.RecordSize }

// Open acquires the table-level locks the original takes before scanning:
// IS, then S (spec §4.4 "sequential scan additionally takes a table-level S").
func (e *SeqScanExecutor) Open() error {
	tableID, err := e.ctx.DB.mustTableID(e.tabName)
	if err != nil {
		return err
	}
	if err := e.ctx.LockMgr.LockISOnTable(e.ctx.Txn, tableID); err != nil {
		return err
	}
	if err := e.ctx.LockMgr.LockSharedOnTable(e.ctx.Txn, tableID); err != nil {
		return err
	}
	e.scan = e.file.NewScan()
	return nil
}

// Next returns the next tuple satisfying the predicate, advancing past any
// that don't (original's beginTuple/nextTuple loop collapsed into one call).
func (e *SeqScanExecutor) Next() (Tuple, bool, error) {
	for {
		rid, ok, err := e.scan.Next()
		if err != nil {
			return Tuple{}, false, err
		}
		if !ok {
			return Tuple{}, false, nil
		}
		rec, err := e.file.Get(rid)
		if err != nil {
			return Tuple{}, false, err
		}
		matched, err := evalConds(e.conds, rec)
		if err != nil {
			return Tuple{}, false, err
		}
		if matched {
			return Tuple{Data: rec, Rid: rid}, true, nil
		}
	}
}
