package lockmgr

// TxnState is the two-phase-locking phase of a transaction (spec §5,
// txn_defs.h's TransactionState). core/txn.TransactionState is an alias
// of this type so the two packages share one enum without an import
// cycle (lockmgr must not depend on txn: txn depends on lockmgr to
// release locks on commit/abort).
type TxnState int

const (
	TxnDefault TxnState = iota
	TxnGrowing
	TxnShrinking
	TxnCommitted
	TxnAborted
)

func (s TxnState) String() string {
	switch s {
	case TxnDefault:
		return "DEFAULT"
	case TxnGrowing:
		return "GROWING"
	case TxnShrinking:
		return "SHRINKING"
	case TxnCommitted:
		return "COMMITTED"
	case TxnAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Txn is the view of a transaction the lock manager needs: its id, its
// 2PL phase, and the set of resources it holds locks on (so unlock-all
// on commit/abort doesn't need the manager to scan every queue).
type Txn interface {
	ID() uint64
	GetState() TxnState
	SetState(TxnState)
	AddLock(LockDataId)
	RemoveLock(LockDataId)
	LockSet() []LockDataId
}
