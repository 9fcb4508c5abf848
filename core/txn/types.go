package txn

import (
	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/lockmgr"
	"github.com/gojodb/txcore/core/storage"
)

// TransactionState is the two-phase-locking phase of a transaction.
// It is an alias of lockmgr.TxnState so both packages share one enum
// without an import cycle: lockmgr cannot depend on txn, since txn
// depends on lockmgr to release locks on commit and abort.
type TransactionState = lockmgr.TxnState

const (
	StateDefault   = lockmgr.TxnDefault
	StateGrowing   = lockmgr.TxnGrowing
	StateShrinking = lockmgr.TxnShrinking
	StateCommitted = lockmgr.TxnCommitted
	StateAborted   = lockmgr.TxnAborted
)

// WType is the kind of heap mutation a WriteRecord undoes (spec §6,
// txn_defs.h's WType).
type WType int

const (
	WInsert WType = iota
	WDelete
	WUpdate
)

// IndexOpType is the kind of index mutation an IndexUndoRecord undoes.
type IndexOpType int

const (
	IndexInsert IndexOpType = iota
	IndexDelete
)

// IndexUndoRecord undoes one index mutation performed alongside a heap
// write: an IndexInsert is undone by deleting Key, an IndexDelete is
// undone by reinserting (Key, Rid) (spec §6, txn_defs.h's IndexWriteRecord).
type IndexUndoRecord struct {
	IndexName string
	Key       []byte
	Rid       heap.Rid
	Op        IndexOpType
}

// WriteRecord is one entry in a transaction's undo log: enough to reverse
// a single heap mutation and the index mutations that came with it, in
// LIFO order (spec §6, txn_defs.h's WriteRecord).
type WriteRecord struct {
	Type      WType
	Table     string
	Rid       heap.Rid
	OldRecord []byte // nil for WInsert; the pre-image for WDelete/WUpdate
	IndexOps  []IndexUndoRecord
}

// TableHandle is the heap-file surface the transaction manager needs to
// undo a write. *heap.File satisfies it structurally.
type TableHandle interface {
	Get(rid heap.Rid) ([]byte, error)
	InsertAt(rid heap.Rid, buf []byte) error
	Delete(rid heap.Rid) error
	Update(rid heap.Rid, buf []byte) error
}

// IndexHandle is the B+ tree surface the transaction manager needs to
// undo an index mutation. *bptree.Tree satisfies it structurally.
type IndexHandle interface {
	InsertEntry(key []byte, rid heap.Rid) (storage.PageID, bool, error)
	DeleteEntry(key []byte) error
}

// IndexMeta is enough catalog metadata for undo to recompute an index key
// from a raw record, without the txn package importing core/catalog
// itself: EncodeKey closes over the index's column offsets, mirroring
// transaction_manager.cpp's DELETE_TUPLE branch building a key from
// ih->col_tabs against the occupant's record.
type IndexMeta struct {
	IndexName string
	EncodeKey func(record []byte) ([]byte, error)
}

// Resolver looks up the live table/index handles a table or index name
// refers to. core/exec supplies the implementation backed by the open
// catalog (spec §1: catalog persistence itself is out of scope, but the
// in-memory mapping from name to open handle is what undo needs).
type Resolver interface {
	Table(name string) (TableHandle, bool)
	Index(name string) (IndexHandle, bool)
	// TableIndexes returns metadata for every index defined over table
	// name, used to purge an occupant's stale index entries when a
	// DELETE's undo finds its rid reoccupied (spec §4.4 ¶2).
	TableIndexes(name string) ([]IndexMeta, bool)
}
