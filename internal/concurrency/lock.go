package concurrency

import "fmt"

// TransactionID represents a unique transaction identifier.
type TransactionID uint64

// Transaction is the capability the lock subsystem requires from the
// enclosing engine's transaction objects. The lock manager never inspects
// transaction state beyond these four methods.
//
// Block suspends the calling goroutine until another goroutine calls
// Unblock. The lock manager always decides whether to block inside its
// critical section, releases the section, and only then calls Block.
type Transaction interface {
	ID() TransactionID
	Block()
	Unblock()
	IsBlocked() bool
}

// Lock records that a transaction holds a lock of some type on a resource.
// The same *Lock is shared between the per-resource and per-transaction
// indices; a promotion overwrites Type in place so the lock keeps its
// acquisition-order slot in both.
type Lock struct {
	Name ResourceName
	Type LockType
	Txn  TransactionID
}

func (l *Lock) String() string {
	return fmt.Sprintf("%s(%s) by txn %d", l.Type, l.Name, l.Txn)
}

// lockRequest is a pending request sitting in a resource's wait queue.
// releases lists the resources whose locks are released atomically when the
// request is granted; it is empty for a plain acquire.
type lockRequest struct {
	txn      Transaction
	lock     *Lock
	releases []ResourceName
}

// resourceEntry is the per-resource lock table state: the granted locks in
// acquisition order, and the FIFO queue of requests that could not be
// granted yet.
type resourceEntry struct {
	locks   []*Lock
	waiters []*lockRequest
}

// lockFor returns the lock held by txn on this resource, or nil.
func (e *resourceEntry) lockFor(txn TransactionID) *Lock {
	for _, l := range e.locks {
		if l.Txn == txn {
			return l
		}
	}
	return nil
}

// conflict returns a granted lock that is incompatible with a request of
// type t by txn, or nil if every granted lock is compatible. Locks held by
// txn itself never conflict; duplicate holds are rejected before this check.
func (e *resourceEntry) conflict(txn TransactionID, t LockType) *Lock {
	for _, l := range e.locks {
		if l.Txn != txn && !Compatible(l.Type, t) {
			return l
		}
	}
	return nil
}

// removeLock drops l from the granted list, preserving order.
func (e *resourceEntry) removeLock(l *Lock) {
	for i, held := range e.locks {
		if held == l {
			e.locks = append(e.locks[:i], e.locks[i+1:]...)
			return
		}
	}
}
