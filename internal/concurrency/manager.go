package concurrency

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dshills/StrataDB/internal/errors"
	"github.com/dshills/StrataDB/internal/log"
)

// LockManager maintains the bookkeeping for which transactions hold which
// locks on which resources. It treats every resource as an independent
// object: requests that would be invalid from a multigranularity
// perspective (e.g. X on a table without IX on the database) are still
// valid here. The hierarchy is enforced one layer up, by LockContext.
//
// Each resource has a FIFO queue of requests that could not be granted.
// The queue is processed on every release, head first, stopping at the
// first request that still conflicts: a queue [S X S] where the head S has
// become grantable drains exactly one request.
//
// A single mutex guards all table state. Blocking and unblocking of
// transactions happens strictly outside the critical section.
type LockManager struct {
	mu        sync.Mutex
	resources map[ResourceName]*resourceEntry
	txnLocks  map[TransactionID][]*Lock
	contexts  map[string]*LockContext
	logger    log.Logger
}

// Stats reports lock table counters.
type Stats struct {
	Resources int
	Grants    int
	Waiters   int
}

// NewLockManager creates an empty lock manager.
func NewLockManager(logger log.Logger) *LockManager {
	if logger == nil {
		logger = log.Default()
	}
	return &LockManager{
		resources: make(map[ResourceName]*resourceEntry),
		txnLocks:  make(map[TransactionID][]*Lock),
		contexts:  make(map[string]*LockContext),
		logger:    logger,
	}
}

// entry returns the resourceEntry for name, creating it if needed.
// Callers must hold mu.
func (m *LockManager) entry(name ResourceName) *resourceEntry {
	e, ok := m.resources[name]
	if !ok {
		e = &resourceEntry{}
		m.resources[name] = e
	}
	return e
}

// heldLock returns the lock txn holds on name, without materializing an
// entry for a never-locked resource. Callers must hold mu.
func (m *LockManager) heldLock(tid TransactionID, name ResourceName) *Lock {
	if e, ok := m.resources[name]; ok {
		return e.lockFor(tid)
	}
	return nil
}

// addTxnLock appends l to the holder's acquisition-ordered lock list.
// Callers must hold mu.
func (m *LockManager) addTxnLock(l *Lock) {
	m.txnLocks[l.Txn] = append(m.txnLocks[l.Txn], l)
}

// removeTxnLock drops l from the holder's lock list. Callers must hold mu.
func (m *LockManager) removeTxnLock(l *Lock) {
	held := m.txnLocks[l.Txn]
	for i, cur := range held {
		if cur == l {
			held = append(held[:i], held[i+1:]...)
			break
		}
	}
	if len(held) == 0 {
		delete(m.txnLocks, l.Txn)
	} else {
		m.txnLocks[l.Txn] = held
	}
}

// Acquire takes a lock of type lt on name for txn.
//
// If the lock conflicts with another transaction's lock, or if any request
// is already queued on name, the request is placed at the back of the
// queue and the transaction blocks until it is granted. Compatible
// requests do not barge past existing waiters.
func (m *LockManager) Acquire(txn Transaction, name ResourceName, lt LockType) error {
	if lt == NL {
		return errors.InvalidLockError(uint64(txn.ID()), name.String(), "cannot acquire NL; use release")
	}

	blocked := false
	m.mu.Lock()
	e := m.entry(name)
	tid := txn.ID()
	if e.lockFor(tid) != nil {
		m.mu.Unlock()
		return errors.DuplicateLockRequestError(uint64(tid), name.String())
	}
	lock := &Lock{Name: name, Type: lt, Txn: tid}
	if e.conflict(tid, lt) != nil || len(e.waiters) > 0 {
		e.waiters = append(e.waiters, &lockRequest{txn: txn, lock: lock})
		blocked = true
		m.logger.Debug("lock request queued", "txn", uint64(tid), "resource", name.String(), "mode", lt.String())
	} else {
		e.locks = append(e.locks, lock)
		m.addTxnLock(lock)
	}
	m.mu.Unlock()

	if blocked {
		txn.Block()
	}
	return nil
}

// Release drops txn's lock on name and processes the resource's queue.
// Queued requests that carry release sets cascade: their releases are
// performed and the queues of those resources processed as well.
func (m *LockManager) Release(txn Transaction, name ResourceName) error {
	m.mu.Lock()
	tid := txn.ID()
	lock := m.heldLock(tid, name)
	if lock == nil {
		m.mu.Unlock()
		return errors.NoLockHeldError(uint64(tid), name.String())
	}
	e := m.resources[name]
	e.removeLock(lock)
	m.removeTxnLock(lock)
	granted := m.drain([]ResourceName{name})
	m.mu.Unlock()

	for _, waiter := range granted {
		waiter.Unblock()
	}
	return nil
}

// Promote replaces txn's lock on name with the strictly more permissive
// newType, without changing the lock's acquisition-order slot. If another
// transaction's lock conflicts with newType, the request goes to the front
// of the queue (it is an upgrade, not a fresh admission) and txn blocks.
func (m *LockManager) Promote(txn Transaction, name ResourceName, newType LockType) error {
	blocked := false
	m.mu.Lock()
	tid := txn.ID()
	lock := m.heldLock(tid, name)
	switch {
	case lock == nil:
		m.mu.Unlock()
		return errors.NoLockHeldError(uint64(tid), name.String())
	case lock.Type == newType:
		m.mu.Unlock()
		return errors.DuplicateLockRequestError(uint64(tid), name.String())
	case !Substitutable(newType, lock.Type):
		m.mu.Unlock()
		return errors.InvalidLockError(uint64(tid), name.String(),
			newType.String()+" is not substitutable for "+lock.Type.String())
	}

	e := m.resources[name]
	if e.conflict(tid, newType) == nil {
		lock.Type = newType
	} else {
		req := &lockRequest{
			txn:      txn,
			lock:     &Lock{Name: name, Type: newType, Txn: tid},
			releases: []ResourceName{name},
		}
		e.waiters = append([]*lockRequest{req}, e.waiters...)
		blocked = true
		m.logger.Debug("promotion queued", "txn", uint64(tid), "resource", name.String(), "mode", newType.String())
	}
	m.mu.Unlock()

	if blocked {
		txn.Block()
	}
	return nil
}

// AcquireAndRelease takes a lock of type lt on name and releases txn's
// locks on every resource in releases, as one atomic action. The releases
// happen only once the new lock is granted. If the new lock conflicts with
// another transaction's lock, the request is placed at the front of name's
// queue with its release set attached, and txn blocks.
//
// Releasing an old lock on name itself does not change the lock's
// acquisition time: the new lock takes over the old lock's slot.
func (m *LockManager) AcquireAndRelease(txn Transaction, name ResourceName, lt LockType, releases []ResourceName) error {
	if lt == NL {
		return errors.InvalidLockError(uint64(txn.ID()), name.String(), "cannot acquire NL; use release")
	}

	blocked := false
	m.mu.Lock()
	tid := txn.ID()

	releaseSet := mapset.NewThreadUnsafeSet[ResourceName]()
	ordered := make([]ResourceName, 0, len(releases))
	for _, rn := range releases {
		if releaseSet.Add(rn) {
			ordered = append(ordered, rn)
		}
	}
	for _, rn := range ordered {
		if m.heldLock(tid, rn) == nil {
			m.mu.Unlock()
			return errors.NoLockHeldError(uint64(tid), rn.String())
		}
	}
	if m.heldLock(tid, name) != nil && !releaseSet.Contains(name) {
		m.mu.Unlock()
		return errors.DuplicateLockRequestError(uint64(tid), name.String())
	}

	e := m.entry(name)

	req := &lockRequest{
		txn:      txn,
		lock:     &Lock{Name: name, Type: lt, Txn: tid},
		releases: ordered,
	}
	if e.conflict(tid, lt) != nil {
		e.waiters = append([]*lockRequest{req}, e.waiters...)
		blocked = true
		m.logger.Debug("acquire-and-release queued",
			"txn", uint64(tid), "resource", name.String(), "mode", lt.String(), "releases", len(ordered))
		m.mu.Unlock()
	} else {
		var work []ResourceName
		m.grant(req, &work)
		granted := m.drain(work)
		m.mu.Unlock()
		for _, waiter := range granted {
			waiter.Unblock()
		}
	}

	if blocked {
		txn.Block()
	}
	return nil
}

// grant installs req's lock and performs its releases. If the requester
// already holds a lock on the resource (a promotion or an
// acquire-and-release that replaces it), the mode is overwritten in place
// so the lock keeps its acquisition-order slot. Resources whose locks were
// released are appended to work so their queues get processed.
// Callers must hold mu.
func (m *LockManager) grant(req *lockRequest, work *[]ResourceName) {
	tid := req.txn.ID()
	e := m.entry(req.lock.Name)
	own := e.lockFor(tid)
	if own != nil {
		own.Type = req.lock.Type
	} else {
		e.locks = append(e.locks, req.lock)
		m.addTxnLock(req.lock)
	}
	for _, rn := range req.releases {
		if rn == req.lock.Name {
			// Consumed by the in-place mode overwrite above.
			continue
		}
		re := m.entry(rn)
		if old := re.lockFor(tid); old != nil {
			re.removeLock(old)
			m.removeTxnLock(old)
			*work = append(*work, rn)
		}
	}
	m.logger.Debug("lock granted", "txn", uint64(tid), "resource", req.lock.Name.String(), "mode", req.lock.Type.String())
}

// drain processes the wait queues of every resource in work, treating it
// as a worklist: granting a request whose release set frees locks on other
// resources appends those resources for processing in turn. Each queue
// drains head first and stops at the first request that still conflicts.
// Returns the transactions whose requests were granted, in grant order.
// Callers must hold mu.
func (m *LockManager) drain(work []ResourceName) []Transaction {
	var granted []Transaction
	for len(work) > 0 {
		name := work[0]
		work = work[1:]
		e := m.entry(name)
		for len(e.waiters) > 0 {
			req := e.waiters[0]
			if e.conflict(req.txn.ID(), req.lock.Type) != nil {
				break
			}
			e.waiters = e.waiters[1:]
			m.grant(req, &work)
			granted = append(granted, req.txn)
		}
		if len(e.locks) == 0 && len(e.waiters) == 0 {
			delete(m.resources, name)
		}
	}
	return granted
}

// GetLockType returns the type of lock txn holds on name, or NL.
func (m *LockManager) GetLockType(txn Transaction, name ResourceName) LockType {
	if txn == nil {
		return NL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.resources[name]
	if !ok {
		return NL
	}
	if l := e.lockFor(txn.ID()); l != nil {
		return l.Type
	}
	return NL
}

// GetLocks returns the locks held on name, in acquisition order. A
// promotion or acquire-and-release counts as acquired at the original
// time.
func (m *LockManager) GetLocks(name ResourceName) []Lock {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.resources[name]
	if !ok {
		return nil
	}
	locks := make([]Lock, len(e.locks))
	for i, l := range e.locks {
		locks[i] = *l
	}
	return locks
}

// TransactionLocks returns the locks held by txn, in acquisition order.
func (m *LockManager) TransactionLocks(txn Transaction) []Lock {
	if txn == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.txnLocks[txn.ID()]
	locks := make([]Lock, len(held))
	for i, l := range held {
		locks[i] = *l
	}
	return locks
}

// Stats returns current lock table counters.
func (m *LockManager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Resources: len(m.resources)}
	for _, e := range m.resources {
		s.Grants += len(e.locks)
		s.Waiters += len(e.waiters)
	}
	return s
}

// DatabaseContext returns the lock context at the root of the main
// hierarchy, creating it on first use.
func (m *LockManager) DatabaseContext() *LockContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[rootResource]
	if !ok {
		ctx = newLockContext(m, nil, rootResource, false)
		m.contexts[rootResource] = ctx
	}
	return ctx
}

// OrphanContext returns a top-level lock context disjoint from the main
// hierarchy. The name "database" is reserved for DatabaseContext.
func (m *LockManager) OrphanContext(name string) (*LockContext, error) {
	if name == rootResource {
		return nil, errors.InvalidLockError(0, name, `orphan context cannot be named "database"`)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[name]
	if !ok {
		ctx = newLockContext(m, nil, name, false)
		m.contexts[name] = ctx
	}
	return ctx, nil
}
