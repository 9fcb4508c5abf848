// Package exec implements the executor layer: the scan, insert, delete,
// update, join, and projection operators that drive the heap store, the
// B+ tree indexes, the lock manager, and the transaction manager together
// (spec §4.4 boundary contract).
//
// Grounded on original_source/src/execution/executor_insert.h,
// executor_update.h, executor_delete.h, executor_seq_scan.h,
// executor_index_scan.h, executor_nestedloop_join.h, and
// executor_projection.h. The original splits iteration into
// beginTuple/nextTuple/Next/is_end; this port collapses that into a single
// pull-based Next, which is the idiomatic Go shape for the same control
// flow (each executor still advances internally exactly as the original
// does, it just reports one tuple per call instead of three).
package exec

import (
	"github.com/gojodb/txcore/core/catalog"
	"github.com/gojodb/txcore/core/heap"
)

// Tuple is one record flowing through the executor tree: its bytes in the
// producing executor's column layout, plus the heap rid it came from (the
// zero Rid for tuples synthesized by a join or projection).
type Tuple struct {
	Data []byte
	Rid  heap.Rid
}

// Executor is the common shape of every operator in the tree.
type Executor interface {
	// Columns describes the layout of tuples this executor produces.
	Columns() []catalog.Column
	// TupleLen is the byte length of a produced tuple's Data.
	TupleLen() int
	// Open (re)initializes iteration from the beginning, acquiring any
	// locks the operator needs before it can return its first tuple.
	Open() error
	// Next returns the next tuple, or ok=false once the operator is
	// exhausted. A non-nil error aborts the statement (spec §7: executors
	// never catch storage errors).
	Next() (Tuple, bool, error)
}
