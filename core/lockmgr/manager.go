package lockmgr

import (
	"context"
	"errors"
	"sync"

	"github.com/gojodb/txcore/core/heap"
	internaltelemetry "github.com/gojodb/txcore/internal/telemetry"
	"go.uber.org/zap"
)

// ErrTransactionEnded is returned when a lock is requested by a
// transaction that has already committed or aborted.
var ErrTransactionEnded = errors.New("lockmgr: transaction has already ended")

// Manager is the multi-granularity lock table: one request queue per
// LockDataId, guarded by a single mutex (spec §5 — a coarse lock table
// latch is sufficient since individual acquisitions are O(queue length)
// and never block).
type Manager struct {
	mu      sync.Mutex
	table   map[LockDataId]*lockRequestQueue
	log     *zap.SugaredLogger
	metrics *internaltelemetry.LockMetrics
}

// NewManager constructs an empty lock table. metrics may be nil if
// telemetry is disabled.
func NewManager(log *zap.SugaredLogger, metrics *internaltelemetry.LockMetrics) *Manager {
	return &Manager{
		table:   make(map[LockDataId]*lockRequestQueue),
		log:     log,
		metrics: metrics,
	}
}

// checkLock mirrors lock_manager.cpp's check_lock: transactions that have
// already ended may not take new locks, and a transaction in its
// SHRINKING phase may never grow its lock set again (spec §5, strict
// 2PL). On first successful check it moves DEFAULT -> GROWING.
func (m *Manager) checkLock(txn Txn) error {
	switch txn.GetState() {
	case TxnCommitted, TxnAborted:
		return ErrTransactionEnded
	case TxnShrinking:
		return newAbortError(txn.ID(), LockOnShrinking)
	case TxnDefault:
		txn.SetState(TxnGrowing)
	}
	return nil
}

func (m *Manager) queueFor(id LockDataId) *lockRequestQueue {
	q, ok := m.table[id]
	if !ok {
		q = &lockRequestQueue{}
		m.table[id] = q
	}
	return q
}

func (m *Manager) grant(txn Txn, id LockDataId, mode LockMode) {
	q := m.table[id]
	q.requests = append(q.requests, &lockRequest{txnID: txn.ID(), mode: mode, granted: true})
	txn.AddLock(id)
	if m.metrics != nil {
		m.metrics.GrantedCounter.Add(context.Background(), 1)
		m.metrics.HeldGauge.Add(context.Background(), 1)
	}
	m.log.Debugw("lock granted", "txn", txn.ID(), "resource", id, "mode", mode)
}

func (m *Manager) deny(txn Txn, id LockDataId, reason AbortReason) error {
	if m.metrics != nil {
		m.metrics.DeniedCounter.Add(context.Background(), 1)
	}
	m.log.Warnw("lock denied", "txn", txn.ID(), "resource", id, "reason", reason)
	return newAbortError(txn.ID(), reason)
}

// LockSharedOnRecord acquires a shared lock on rid within table. A
// transaction already holding S or X on rid succeeds immediately; a
// conflicting X held by another transaction aborts (no-wait).
func (m *Manager) LockSharedOnRecord(txn Txn, table uint32, rid heap.Rid) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLock(txn); err != nil {
		return err
	}
	id := NewRecordLockDataId(table, rid)
	q := m.queueFor(id)

	if r := q.findByTxn(txn.ID()); r != nil {
		if r.mode == Shared || r.mode == Exclusive {
			return nil
		}
	}

	if q.groupMode == X || q.groupMode == IX || q.groupMode == GroupSIX {
		return m.deny(txn, id, DeadlockPrevention)
	}

	q.groupMode = S
	q.sharedCount++
	m.grant(txn, id, Shared)
	return nil
}

// LockExclusiveOnRecord acquires an exclusive lock on rid, upgrading an
// existing solely-held S lock in place.
func (m *Manager) LockExclusiveOnRecord(txn Txn, table uint32, rid heap.Rid) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLock(txn); err != nil {
		return err
	}
	id := NewRecordLockDataId(table, rid)
	q := m.queueFor(id)

	if r := q.findByTxn(txn.ID()); r != nil {
		switch r.mode {
		case Exclusive:
			return nil
		case Shared:
			if q.groupMode == X {
				return m.deny(txn, id, DeadlockPrevention)
			}
			if q.sharedCount == 1 {
				r.mode = Exclusive
				q.groupMode = X
				q.sharedCount--
				if m.metrics != nil {
					m.metrics.UpgradedCounter.Add(context.Background(), 1)
				}
				m.log.Debugw("lock upgraded", "txn", txn.ID(), "resource", id, "mode", Exclusive)
				return nil
			}
		}
		return m.deny(txn, id, DeadlockPrevention)
	}

	if q.groupMode != NonLock {
		return m.deny(txn, id, DeadlockPrevention)
	}

	q.groupMode = X
	m.grant(txn, id, Exclusive)
	return nil
}

// LockSharedOnGap acquires a shared gap lock on table's single gap
// equivalence class.
func (m *Manager) LockSharedOnGap(txn Txn, table uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLock(txn); err != nil {
		return err
	}
	id := NewGapLockDataId(table)
	q := m.queueFor(id)

	if r := q.findByTxn(txn.ID()); r != nil {
		if r.mode == Shared || r.mode == Exclusive {
			return nil
		}
	}

	if q.groupMode == X {
		return m.deny(txn, id, DeadlockPrevention)
	}

	q.groupMode = S
	q.sharedCount++
	m.grant(txn, id, Shared)
	return nil
}

// LockExclusiveOnGap acquires an exclusive gap lock on table's single gap
// equivalence class, preventing phantom inserts anywhere in the table
// while held (spec §5: gaps collapse to a per-table equivalence class).
func (m *Manager) LockExclusiveOnGap(txn Txn, table uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLock(txn); err != nil {
		return err
	}
	id := NewGapLockDataId(table)
	q := m.queueFor(id)

	if r := q.findByTxn(txn.ID()); r != nil {
		if r.mode == Exclusive {
			return nil
		}
		if r.mode == Shared && q.sharedCount == 1 {
			r.mode = Exclusive
			q.groupMode = X
			q.sharedCount--
			if m.metrics != nil {
				m.metrics.UpgradedCounter.Add(context.Background(), 1)
			}
			return nil
		}
		return m.deny(txn, id, DeadlockPrevention)
	}

	if q.groupMode != NonLock {
		return m.deny(txn, id, DeadlockPrevention)
	}

	q.groupMode = X
	m.grant(txn, id, Exclusive)
	return nil
}

// LockISOnTable acquires an intention-shared lock on the whole table,
// taken before any per-record S lock within it.
func (m *Manager) LockISOnTable(txn Txn, table uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLock(txn); err != nil {
		return err
	}
	id := NewTableLockDataId(table)
	q := m.queueFor(id)

	if q.findByTxn(txn.ID()) != nil {
		return nil
	}
	if q.groupMode == X {
		return m.deny(txn, id, DeadlockPrevention)
	}
	if q.groupMode == NonLock {
		q.groupMode = IS
	}
	m.grant(txn, id, IntentionShared)
	return nil
}

// LockIXOnTable acquires an intention-exclusive lock on the whole table,
// upgrading IS to IX or a sole S to SIX in place.
func (m *Manager) LockIXOnTable(txn Txn, table uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLock(txn); err != nil {
		return err
	}
	id := NewTableLockDataId(table)
	q := m.queueFor(id)

	if r := q.findByTxn(txn.ID()); r != nil {
		switch {
		case r.mode == IntentionExclusive || r.mode == SIX || r.mode == Exclusive:
			return nil
		case r.mode == Shared && q.sharedCount == 1:
			q.ixCount++
			r.mode = SIX
			q.groupMode = GroupSIX
			return nil
		case r.mode == IntentionShared && (q.groupMode == IS || q.groupMode == IX):
			q.ixCount++
			r.mode = IntentionExclusive
			q.groupMode = IX
			return nil
		}
		return m.deny(txn, id, DeadlockPrevention)
	}

	if q.groupMode == S || q.groupMode == GroupSIX || q.groupMode == X {
		return m.deny(txn, id, DeadlockPrevention)
	}

	q.groupMode = IX
	q.ixCount++
	m.grant(txn, id, IntentionExclusive)
	return nil
}

// LockSharedOnTable acquires a table-wide shared lock, upgrading an
// existing IS to S or a sole IX to SIX in place.
func (m *Manager) LockSharedOnTable(txn Txn, table uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLock(txn); err != nil {
		return err
	}
	id := NewTableLockDataId(table)
	q := m.queueFor(id)

	if r := q.findByTxn(txn.ID()); r != nil {
		switch {
		case r.mode == Shared || r.mode == Exclusive || r.mode == SIX:
			return nil
		case r.mode == IntentionShared && (q.groupMode == S || q.groupMode == IS):
			r.mode = Shared
			q.groupMode = S
			q.sharedCount++
			return nil
		case r.mode == IntentionExclusive && q.ixCount == 1:
			r.mode = SIX
			q.groupMode = GroupSIX
			q.sharedCount++
			return nil
		}
		return m.deny(txn, id, DeadlockPrevention)
	}

	if q.groupMode == X || q.groupMode == IX || q.groupMode == GroupSIX {
		return m.deny(txn, id, DeadlockPrevention)
	}

	q.groupMode = S
	q.sharedCount++
	m.grant(txn, id, Shared)
	return nil
}

// LockExclusiveOnTable acquires a table-wide exclusive lock. It only
// succeeds as an in-place upgrade when this transaction is the sole
// holder of the queue.
func (m *Manager) LockExclusiveOnTable(txn Txn, table uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLock(txn); err != nil {
		return err
	}
	id := NewTableLockDataId(table)
	q := m.queueFor(id)

	if r := q.findByTxn(txn.ID()); r != nil {
		if r.mode == Exclusive {
			return nil
		}
		if len(q.requests) == 1 {
			r.mode = Exclusive
			q.groupMode = X
			q.sharedCount, q.ixCount = 0, 0
			return nil
		}
		return m.deny(txn, id, DeadlockPrevention)
	}

	if q.groupMode != NonLock {
		return m.deny(txn, id, DeadlockPrevention)
	}

	q.groupMode = X
	m.grant(txn, id, Exclusive)
	return nil
}

// Unlock releases txn's lock request on id, if any, then recomputes the
// queue's group mode from what remains. Moves a GROWING transaction to
// SHRINKING (strict 2PL's second phase begins at the first release).
func (m *Manager) Unlock(txn Txn, id LockDataId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn.GetState() == TxnCommitted || txn.GetState() == TxnAborted {
		return ErrTransactionEnded
	}
	if txn.GetState() == TxnGrowing {
		txn.SetState(TxnShrinking)
	}

	q, ok := m.table[id]
	if !ok {
		return nil
	}

	idx := -1
	for i, r := range q.requests {
		if r.txnID == txn.ID() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	released := q.requests[idx]
	if released.mode == Shared || released.mode == SIX {
		q.sharedCount--
	}
	if released.mode == IntentionExclusive || released.mode == SIX {
		q.ixCount--
	}
	q.requests = append(q.requests[:idx], q.requests[idx+1:]...)
	txn.RemoveLock(id)
	if m.metrics != nil {
		m.metrics.HeldGauge.Add(context.Background(), -1)
	}

	if len(q.requests) == 0 {
		q.groupMode = NonLock
	} else {
		q.recomputeGroupMode()
	}
	m.log.Debugw("lock released", "txn", txn.ID(), "resource", id)
	return nil
}

// UnlockAll releases every lock txn currently holds, in the order
// returned by LockSet. Used by core/txn.Manager on commit and abort.
func (m *Manager) UnlockAll(txn Txn) error {
	for _, id := range append([]LockDataId(nil), txn.LockSet()...) {
		if err := m.Unlock(txn, id); err != nil {
			return err
		}
	}
	return nil
}
