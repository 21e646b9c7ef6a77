package txn

import (
	"sort"
	"sync"

	"github.com/dshills/StrataDB/internal/concurrency"
	"github.com/dshills/StrataDB/internal/errors"
	"github.com/dshills/StrataDB/internal/log"
)

// Manager tracks active transactions and ties their lifecycle to the lock
// manager: commit and abort release every lock the transaction holds,
// deepest resources first so no descendant lock is ever orphaned.
type Manager struct {
	mu         sync.RWMutex
	activeTxns map[concurrency.TransactionID]*Transaction
	lockMgr    *concurrency.LockManager
	logger     log.Logger
}

// NewManager creates a transaction manager bound to a lock manager.
func NewManager(lockMgr *concurrency.LockManager, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		activeTxns: make(map[concurrency.TransactionID]*Transaction),
		lockMgr:    lockMgr,
		logger:     logger,
	}
}

// LockManager returns the underlying lock manager.
func (m *Manager) LockManager() *concurrency.LockManager {
	return m.lockMgr
}

// Begin starts a new transaction.
func (m *Manager) Begin() *Transaction {
	t := newTransaction(m)
	m.mu.Lock()
	m.activeTxns[t.id] = t
	m.mu.Unlock()
	m.logger.Debug("transaction started", "txn", uint64(t.id))
	return t
}

// ActiveTransactions returns the number of currently active transactions.
func (m *Manager) ActiveTransactions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeTxns)
}

// finish moves t to a terminal status and releases its locks.
func (m *Manager) finish(t *Transaction, status Status) error {
	t.mu.Lock()
	if t.status != Active {
		t.mu.Unlock()
		return errors.TransactionClosedError(uint64(t.id))
	}
	t.status = status
	t.mu.Unlock()

	m.releaseAll(t)

	m.mu.Lock()
	delete(m.activeTxns, t.id)
	m.mu.Unlock()
	m.logger.Debug("transaction finished", "txn", uint64(t.id), "status", status.String())
	return nil
}

// releaseAll releases every lock held by t through the context tree,
// deepest first, so descendant locks always go before their ancestors'.
func (m *Manager) releaseAll(t *Transaction) {
	held := m.lockMgr.TransactionLocks(t)
	sort.SliceStable(held, func(i, j int) bool {
		return held[i].Name.Depth() > held[j].Name.Depth()
	})
	for _, l := range held {
		ctx := concurrency.FromResourceName(m.lockMgr, l.Name)
		if err := ctx.Release(t); err != nil {
			m.logger.Warn("failed to release lock at shutdown of transaction",
				"txn", uint64(t.id), "resource", l.Name.String(), "error", err)
		}
	}
}
