package txn

import (
	"sync/atomic"

	"github.com/dshills/StrataDB/internal/concurrency"
)

// Status represents the transaction status.
type Status int

const (
	// Active means the transaction is running.
	Active Status = iota
	// Committed means the transaction has committed successfully.
	Committed
	// Aborted means the transaction has been rolled back.
	Aborted
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Global transaction ID generator.
var globalTxnID uint64

// nextTransactionID returns the next transaction ID.
func nextTransactionID() concurrency.TransactionID {
	return concurrency.TransactionID(atomic.AddUint64(&globalTxnID, 1))
}
