package exec

import (
	"github.com/gojodb/txcore/core/lockmgr"
	"github.com/gojodb/txcore/core/txn"
)

// Context is the per-statement execution context every executor receives:
// the current transaction, the lock manager it locks through, and the
// open database it reads and mutates (spec §6 "Control plane").
type Context struct {
	Txn     *txn.Transaction
	LockMgr *lockmgr.Manager
	DB      *Database
}
