package errors

// SQLSTATE error codes used by StrataDB.
// Based on PostgreSQL error codes: https://www.postgresql.org/docs/current/errcodes-appendix.html
// Codes with a "P" digit are implementation-defined.

// Class 00 - Successful Completion
const (
	SuccessfulCompletion = "00000"
)

// Class 0A - Feature Not Supported
const (
	FeatureNotSupported = "0A000"
)

// Class 25 - Invalid Transaction State
const (
	InvalidTransactionState = "25000"
	ActiveSQLTransaction    = "25001"
	NoActiveSQLTransaction  = "25P01"
)

// Class 40 - Transaction Rollback
const (
	TransactionRollback = "40000"
	DeadlockDetected    = "40P01"
)

// Class 55 - Object Not In Prerequisite State
const (
	ObjectNotInPrerequisiteState = "55000"
	ObjectInUse                  = "55006"
	LockNotAvailable             = "55P03"
	// InvalidLockRequest is a StrataDB-specific code for lock requests that
	// are structurally invalid: not a promotion, or a request that would
	// break the multigranularity hierarchy.
	InvalidLockRequest = "55P05"
)

// Class XX - Internal Error
const (
	InternalError = "XX000"
)
