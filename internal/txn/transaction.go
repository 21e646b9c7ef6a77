package txn

import (
	"fmt"
	"sync"
	"time"

	"github.com/dshills/StrataDB/internal/concurrency"
)

// Transaction is a unit of work holding locks through the lock manager.
// Each transaction runs on its own goroutine; the lock manager suspends it
// with Block when a lock request cannot be granted and resumes it with
// Unblock when the request is granted.
type Transaction struct {
	id        concurrency.TransactionID
	manager   *Manager
	startTime time.Time

	mu      sync.Mutex
	status  Status
	blocked bool

	// signal carries the one-shot wakeup token. It is buffered so an
	// Unblock that races ahead of the corresponding Block is not lost.
	signal chan struct{}
}

func newTransaction(m *Manager) *Transaction {
	return &Transaction{
		id:        nextTransactionID(),
		manager:   m,
		startTime: time.Now(),
		status:    Active,
		signal:    make(chan struct{}, 1),
	}
}

// ID returns the transaction's stable identifier.
func (t *Transaction) ID() concurrency.TransactionID {
	return t.id
}

// Status returns the transaction's lifecycle status.
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Block suspends the calling goroutine until Unblock is called. The lock
// manager calls it after enqueueing a request, outside its critical
// section; if the matching Unblock already happened, the buffered token
// makes Block return immediately.
func (t *Transaction) Block() {
	t.mu.Lock()
	t.blocked = true
	t.mu.Unlock()

	<-t.signal

	t.mu.Lock()
	t.blocked = false
	t.mu.Unlock()
}

// Unblock wakes the transaction's goroutine. A second Unblock before the
// token is consumed is dropped.
func (t *Transaction) Unblock() {
	select {
	case t.signal <- struct{}{}:
	default:
	}
}

// IsBlocked reports whether the transaction is suspended waiting for a
// lock.
func (t *Transaction) IsBlocked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocked
}

// Commit finishes the transaction, releasing all of its locks.
func (t *Transaction) Commit() error {
	return t.manager.finish(t, Committed)
}

// Abort rolls the transaction back, releasing all of its locks.
func (t *Transaction) Abort() error {
	return t.manager.finish(t, Aborted)
}

func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %d, Status: %s}", t.id, t.Status())
}
