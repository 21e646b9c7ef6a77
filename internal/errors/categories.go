package errors

// Category-specific error constructors for the lock subsystem and
// transaction lifecycle.

// Lock manager errors

// DuplicateLockRequestError reports an acquire for a resource the
// transaction already holds a lock on.
func DuplicateLockRequestError(txn uint64, resource string) *Error {
	return Newf(ObjectInUse, "transaction %d already holds a lock on %s", txn, resource).
		WithResource(resource).
		WithTxn(txn).
		WithHint("Use promote to change the mode of a held lock.")
}

// NoLockHeldError reports a release or promote on a resource the
// transaction holds no lock on.
func NoLockHeldError(txn uint64, resource string) *Error {
	return Newf(ObjectNotInPrerequisiteState, "transaction %d holds no lock on %s", txn, resource).
		WithResource(resource).
		WithTxn(txn)
}

// InvalidLockError reports a structurally invalid lock request.
func InvalidLockError(txn uint64, resource string, reason string) *Error {
	return Newf(InvalidLockRequest, "invalid lock request on %s: %s", resource, reason).
		WithResource(resource).
		WithTxn(txn)
}

// ReadOnlyContextError reports a mutating call on a readonly lock context.
func ReadOnlyContextError(resource string) *Error {
	return Newf(FeatureNotSupported, "lock context %s is readonly", resource).
		WithResource(resource)
}

// Transaction lifecycle errors

// TransactionClosedError reports an operation on a committed or aborted
// transaction.
func TransactionClosedError(txn uint64) *Error {
	return Newf(NoActiveSQLTransaction, "transaction %d is not active", txn).
		WithTxn(txn)
}

// IsDuplicateLockRequest reports whether err is a duplicate lock request.
func IsDuplicateLockRequest(err error) bool {
	return IsError(err, ObjectInUse)
}

// IsNoLockHeld reports whether err is a no-lock-held error.
func IsNoLockHeld(err error) bool {
	return IsError(err, ObjectNotInPrerequisiteState)
}

// IsInvalidLock reports whether err is an invalid lock request.
func IsInvalidLock(err error) bool {
	return IsError(err, InvalidLockRequest)
}

// IsReadOnlyContext reports whether err is a readonly-context error.
func IsReadOnlyContext(err error) bool {
	return IsError(err, FeatureNotSupported)
}
