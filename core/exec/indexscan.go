package exec

import (
	"fmt"

	"github.com/gojodb/txcore/core/bptree"
	"github.com/gojodb/txcore/core/catalog"
	"github.com/gojodb/txcore/core/heap"
)

// IndexScanExecutor walks an ordered key range of a B+ tree index, fetching
// the backing heap record for each entry and filtering it with a
// conjunctive predicate. SQL planning (deciding whether an index applies
// to a WHERE clause) is out of scope (spec §1); callers supply the bounds
// directly, mirroring executor_index_scan.h's beginTuple once it has
// already computed `key` from an equality condition.
//
// Grounded on original_source/src/execution/executor_index_scan.h. Lock
// boundary per spec §4.4: IS on the table, plus a shared gap lock when the
// index is single-column INT (spec §9: gap locks are keyed on INT only).
// The gap lock is the table's single gap class, not the scanned interval.
type IndexScanExecutor struct {
	ctx     *Context
	tabName string
	table   *catalog.Table
	file    *heap.File
	idx     *catalog.IndexDef
	tree    *bptree.Tree
	conds   []Condition

	// Lower is inclusive, Upper is exclusive. A nil bound means unbounded
	// in that direction.
	Lower, Upper []byte

	rs *bptree.RangeScan
}

// NewIndexScanExecutor builds an index range scan over idxName on tabName.
func NewIndexScanExecutor(ctx *Context, tabName, idxName string, lower, upper []byte, conds []Condition) (*IndexScanExecutor, error) {
	table, file, ok := ctx.DB.Table(tabName)
	if !ok {
		return nil, fmt.Errorf("exec: unknown table %q", tabName)
	}
	idx, tree, ok := ctx.DB.Index(idxName)
	if !ok {
		return nil, fmt.Errorf("exec: unknown index %q", idxName)
	}
	return &IndexScanExecutor{
		ctx: ctx, tabName: tabName, table: table, file: file,
		idx: idx, tree: tree, conds: conds, Lower: lower, Upper: upper,
	}, nil
}

func (e *IndexScanExecutor) Columns() []catalog.Column { return e.table.Columns }
func (e *IndexScanExecutor) TupleLen() int             { return e.table.RecordSize }

// Open acquires IS on the table, a shared lock on the table's gap class
// for single-column INT indexes (phantom prevention, spec §5), and
// positions the range cursor over [Lower, Upper).
func (e *IndexScanExecutor) Open() error {
	tableID, err := e.ctx.DB.mustTableID(e.tabName)
	if err != nil {
		return err
	}
	if err := e.ctx.LockMgr.LockISOnTable(e.ctx.Txn, tableID); err != nil {
		return err
	}
	if e.idx.IsSingleColumnInt() {
		if err := e.ctx.LockMgr.LockSharedOnGap(e.ctx.Txn, tableID); err != nil {
			return err
		}
	}

	lower := e.tree.LeafBegin()
	if e.Lower != nil {
		lower, err = e.tree.LowerBoundIid(e.Lower)
		if err != nil {
			return err
		}
	}
	upper := e.tree.LeafEnd()
	if e.Upper != nil {
		upper, err = e.tree.LowerBoundIid(e.Upper)
		if err != nil {
			return err
		}
	}
	e.rs = bptree.NewRangeScan(e.tree, lower, upper)
	return nil
}

// Next returns the next matching tuple, skipping index entries whose
// backing record fails the residual predicate.
func (e *IndexScanExecutor) Next() (Tuple, bool, error) {
	for {
		_, rid, ok, err := e.rs.Next()
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
