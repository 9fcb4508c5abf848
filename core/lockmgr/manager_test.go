package lockmgr

import (
	"testing"

	"github.com/gojodb/txcore/core/heap"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTxn is the minimal Txn implementation the lock manager needs;
// core/txn.Transaction provides the real thing.
type fakeTxn struct {
	id      uint64
	state   TxnState
	lockSet []LockDataId
}

func newFakeTxn(id uint64) *fakeTxn { return &fakeTxn{id: id, state: TxnDefault} }

func (t *fakeTxn) ID() uint64         { return t.id }
func (t *fakeTxn) GetState() TxnState { return t.state }
func (t *fakeTxn) SetState(s TxnState) { t.state = s }
func (t *fakeTxn) AddLock(id LockDataId) {
	t.lockSet = append(t.lockSet, id)
}
func (t *fakeTxn) RemoveLock(id LockDataId) {
	for i, held := range t.lockSet {
		if held == id {
			t.lockSet = append(t.lockSet[:i], t.lockSet[i+1:]...)
			return
		}
	}
}
func (t *fakeTxn) LockSet() []LockDataId { return t.lockSet }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return NewManager(logger.Sugar(), nil)
}

func TestLockSharedOnRecord_SameTxnReentrant(t *testing.T) {
	m := newTestManager(t)
	txn := newFakeTxn(1)
	rid := heap.Rid{PageNo: 1, SlotNo: 0}

	require.NoError(t, m.LockSharedOnRecord(txn, 10, rid))
	require.NoError(t, m.LockSharedOnRecord(txn, 10, rid))
	require.Equal(t, TxnGrowing, txn.GetState())
}

func TestLockExclusiveOnRecord_ConflictsWithOtherSharedHolder(t *testing.T) {
	m := newTestManager(t)
	t1, t2 := newFakeTxn(1), newFakeTxn(2)
	rid := heap.Rid{PageNo: 1, SlotNo: 0}

	require.NoError(t, m.LockSharedOnRecord(t1, 10, rid))
	err := m.LockExclusiveOnRecord(t2, 10, rid)
	require.Error(t, err)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, DeadlockPrevention, abortErr.Reason)
}

func TestLockExclusiveOnRecord_UpgradesSoleSharedHolder(t *testing.T) {
	m := newTestManager(t)
	txn := newFakeTxn(1)
	rid := heap.Rid{PageNo: 1, SlotNo: 0}

	require.NoError(t, m.LockSharedOnRecord(txn, 10, rid))
	require.NoError(t, m.LockExclusiveOnRecord(txn, 10, rid))

	id := NewRecordLockDataId(10, rid)
	require.Equal(t, X, m.table[id].groupMode)
}

func TestGapLocks_CollapseToOnePerTable(t *testing.T) {
	m := newTestManager(t)
	t1, t2 := newFakeTxn(1), newFakeTxn(2)

	require.NoError(t, m.LockSharedOnGap(t1, 10))
	err := m.LockExclusiveOnGap(t2, 10)
	require.Error(t, err)

	require.Len(t, m.table, 1)
}

func TestLockOnShrinking_Aborts(t *testing.T) {
	m := newTestManager(t)
	txn := newFakeTxn(1)
	rid := heap.Rid{PageNo: 1, SlotNo: 0}

	require.NoError(t, m.LockSharedOnRecord(txn, 10, rid))
	require.NoError(t, m.Unlock(txn, NewRecordLockDataId(10, rid)))
	require.Equal(t, TxnShrinking, txn.GetState())

	err := m.LockSharedOnRecord(txn, 10, heap.Rid{PageNo: 2, SlotNo: 0})
	require.Error(t, err)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, LockOnShrinking, abortErr.Reason)
}

func TestLockIXThenSharedOnTable_UpgradesToSIX(t *testing.T) {
	m := newTestManager(t)
	txn := newFakeTxn(1)

	require.NoError(t, m.LockIXOnTable(txn, 10))
	require.NoError(t, m.LockSharedOnTable(txn, 10))

	id := NewTableLockDataId(10)
	require.Equal(t, GroupSIX, m.table[id].groupMode)
}

func TestUnlockAll_ReleasesEveryHeldLock(t *testing.T) {
	m := newTestManager(t)
	txn := newFakeTxn(1)

	require.NoError(t, m.LockISOnTable(txn, 10))
	require.NoError(t, m.LockSharedOnRecord(txn, 10, heap.Rid{PageNo: 1, SlotNo: 0}))
	require.NoError(t, m.LockSharedOnGap(txn, 10))
	require.Len(t, txn.LockSet(), 3)

	require.NoError(t, m.UnlockAll(txn))
	require.Empty(t, txn.LockSet())
}
