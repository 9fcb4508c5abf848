package exec

import (
	"fmt"
	"sync"

	"github.com/gojodb/txcore/core/bptree"
	"github.com/gojodb/txcore/core/catalog"
	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/txn"
)

// Database is the open, in-memory catalog of tables and indexes an
// executor tree runs against: table metadata, the open heap files backing
// them, and the open B+ tree indexes over them. Catalog persistence itself
// is out of scope (spec §1); Database only tracks what is currently open.
//
// Database implements txn.Resolver, so core/txn.Manager can look up the
// live handle a WriteRecord or IndexUndoRecord names during abort replay.
type Database struct {
	mu sync.RWMutex

	tables   map[string]*catalog.Table
	tableIDs map[string]uint32
	nextID   uint32

	files   map[string]*heap.File
	indexes map[string]*catalog.IndexDef
	trees   map[string]*bptree.Tree
}

// NewDatabase creates an empty, open database.
func NewDatabase() *Database {
	return &Database{
		tables:   make(map[string]*catalog.Table),
		tableIDs: make(map[string]uint32),
		files:    make(map[string]*heap.File),
		indexes:  make(map[string]*catalog.IndexDef),
		trees:    make(map[string]*bptree.Tree),
	}
}

// RegisterTable binds table metadata to its already-open heap file and
// assigns it the uint32 id used as LockDataId.Table.
func (d *Database) RegisterTable(table *catalog.Table, file *heap.File) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.tables[table.Name] = table
	d.tableIDs[table.Name] = d.nextID
	d.files[table.Name] = file
}

// RegisterIndex binds an index definition to its already-open B+ tree.
func (d *Database) RegisterIndex(idx *catalog.IndexDef, tree *bptree.Tree) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.indexes[idx.Name] = idx
	d.trees[idx.Name] = tree
}

// TableID returns the uint32 lock-table identity assigned to a table name.
func (d *Database) TableID(name string) (uint32, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.tableIDs[name]
	return id, ok
}

// Table returns the catalog metadata and the open heap file for a table.
func (d *Database) Table(name string) (*catalog.Table, *heap.File, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[name]
	if !ok {
		return nil, nil, false
	}
	return t, d.files[name], true
}

// Index returns the index definition and the open B+ tree for an index.
func (d *Database) Index(name string) (*catalog.IndexDef, *bptree.Tree, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.indexes[name]
	if !ok {
		return nil, nil, false
	}
	return idx, d.trees[name], true
}

// TableHandle satisfies txn.Resolver.Table.
func (d *Database) TableHandle(name string) (txn.TableHandle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.files[name]
	if !ok {
		return nil, false
	}
	return f, true
}

// IndexHandle satisfies txn.Resolver.Index.
func (d *Database) IndexHandle(name string) (txn.IndexHandle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.trees[name]
	if !ok {
		return nil, false
	}
	return t, true
}

// IndexesOf returns the index definitions registered over a table, for
// txn.Resolver.TableIndexes to adapt into key-recompute closures.
func (d *Database) IndexesOf(name string) ([]*catalog.IndexDef, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[name]
	if !ok {
		return nil, false
	}
	return t.Indexes, true
}

var _ txn.Resolver = resolverAdapter{}

// resolverAdapter exposes Database's TableHandle/IndexHandle methods under
// the exact method names txn.Resolver requires, keeping Database's own
// Table/Index accessors (which return catalog metadata too) unshadowed.
type resolverAdapter struct{ db *Database }

func (r resolverAdapter) Table(name string) (txn.TableHandle, bool) { return r.db.TableHandle(name) }
func (r resolverAdapter) Index(name string) (txn.IndexHandle, bool) { return r.db.IndexHandle(name) }

func (r resolverAdapter) TableIndexes(name string) ([]txn.IndexMeta, bool) {
	defs, ok := r.db.IndexesOf(name)
	if !ok {
		return nil, false
	}
	metas := make([]txn.IndexMeta, len(defs))
	for i, idx := range defs {
		metas[i] = txn.IndexMeta{IndexName: idx.Name, EncodeKey: idx.EncodeKey}
	}
	return metas, true
}

// Resolver returns the txn.Resolver view of this database, for wiring into
// txn.NewManager.
func (d *Database) Resolver() txn.Resolver { return resolverAdapter{db: d} }

func (d *Database) mustTableID(name string) (uint32, error) {
	id, ok := d.TableID(name)
	if !ok {
		return 0, fmt.Errorf("exec: unknown table %q", name)
	}
	return id, nil
}
