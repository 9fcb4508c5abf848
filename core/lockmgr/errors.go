package lockmgr

import "fmt"

// AbortReason mirrors txn_defs.h's AbortReason: why a transaction was
// forced to abort by the lock manager rather than being allowed to wait.
type AbortReason int

const (
	LockOnShrinking AbortReason = iota
	UpgradeConflict
	DeadlockPrevention
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "lock requested during SHRINKING phase"
	case UpgradeConflict:
		return "conflicting upgrade already in progress"
	case DeadlockPrevention:
		return "no-wait deadlock prevention"
	default:
		return "unknown abort reason"
	}
}

// AbortError is returned in place of txn_defs.h's TransactionAbortException:
// Go has no exceptions, so callers (the executors, via core/txn) are
// expected to treat any AbortError as "abort this transaction now."
type AbortError struct {
	TxnID  uint64
	Reason AbortReason
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("transaction %d aborted: %s", e.TxnID, e.Reason)
}

func newAbortError(txnID uint64, reason AbortReason) *AbortError {
	return &AbortError{TxnID: txnID, Reason: reason}
}
