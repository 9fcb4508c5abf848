package txn

import (
	"sync"

	"github.com/gojodb/txcore/core/lockmgr"
	"github.com/google/uuid"
)

// Transaction is one unit of work: its 2PL phase, the locks it holds, and
// the undo log needed to reverse its writes on abort (spec §6).
// Implements lockmgr.Txn.
type Transaction struct {
	mu      sync.Mutex
	id      uint64
	traceID string
	state   TransactionState
	lockSet []lockmgr.LockDataId
	writes  []*WriteRecord
}

func newTransaction(id uint64) *Transaction {
	return &Transaction{
		id:      id,
		traceID: uuid.NewString(),
		state:   StateDefault,
	}
}

func (t *Transaction) ID() uint64      { return t.id }
func (t *Transaction) TraceID() string { return t.traceID }

func (t *Transaction) GetState() TransactionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s TransactionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Transaction) AddLock(id lockmgr.LockDataId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lockSet = append(t.lockSet, id)
}

func (t *Transaction) RemoveLock(id lockmgr.LockDataId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, held := range t.lockSet {
		if held == id {
			t.lockSet = append(t.lockSet[:i], t.lockSet[i+1:]...)
			return
		}
	}
}

func (t *Transaction) LockSet() []lockmgr.LockDataId {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]lockmgr.LockDataId(nil), t.lockSet...)
}

// AppendWrite adds a new entry to the tail of the undo log. Executors
// call this once per heap mutation, before recording any index ops that
// went with it.
func (t *Transaction) AppendWrite(wr *WriteRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, wr)
}

// AppendIndexOp attaches an index undo entry to the most recently
// appended write record (spec §6: index undo travels with the heap
// write it accompanied).
func (t *Transaction) AppendIndexOp(op IndexUndoRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.writes) == 0 {
		return
	}
	last := t.writes[len(t.writes)-1]
	last.IndexOps = append(last.IndexOps, op)
}

func (t *Transaction) writeSet() []*WriteRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes
}
