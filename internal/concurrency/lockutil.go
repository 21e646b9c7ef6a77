package concurrency

// EnsureSufficientLock brings the hierarchy into a state where txn
// effectively holds a lock of type required at ctx, acquiring intention
// locks on ancestors and promoting or escalating as needed. It grants the
// least permissive set of locks that satisfies the request.
//
// required must be S or X; intention types and NL are ignored, as is a nil
// transaction. Errors from the underlying layers propagate unchanged.
func EnsureSufficientLock(txn Transaction, ctx *LockContext, required LockType) error {
	if txn == nil || ctx == nil {
		return nil
	}
	if required != S && required != X {
		return nil
	}

	parentType := ParentLock(required)
	effective := ctx.GetEffectiveLockType(txn)
	explicit := ctx.GetExplicitLockType(txn)

	if effective == required {
		return nil
	}
	if explicit == NL {
		// An inherited non-intention lock may already cover the request
		// (an ancestor's X serving a read); nothing to do then.
		if Substitutable(effective, required) {
			return nil
		}
		if err := acquireParent(txn, parentType, ctx.ParentContext()); err != nil {
			return err
		}
		return ctx.Acquire(txn, required)
	}
	if Substitutable(effective, required) {
		return nil
	}
	if Substitutable(required, effective) {
		if err := promoteParent(txn, parentType, ctx.ParentContext()); err != nil {
			return err
		}
		if ctx.NumChildLocks(txn) > 0 {
			// Promoting IX to X in place would leave S descendant locks
			// under X; escalating folds them into the X lock instead.
			return ctx.Escalate(txn)
		}
		return ctx.Promote(txn, required)
	}

	// The held lock and the requirement are incomparable. With an IS lock
	// and an S requirement, descendant locks are folded into a single S
	// here; the saturation heuristic is what makes a table-scan under many
	// page locks collapse to one table lock.
	if explicit == IS && required == S && ctx.Saturation(txn) > 0 {
		return ctx.Escalate(txn)
	}

	if err := ctx.Escalate(txn); err != nil {
		return err
	}
	if Substitutable(ctx.GetEffectiveLockType(txn), required) {
		return nil
	}
	if err := promoteParent(txn, parentType, ctx.ParentContext()); err != nil {
		return err
	}
	return ctx.Promote(txn, required)
}

// acquireParent ensures the chain of ancestors above ctx holds at least an
// lt lock, acquiring top-down on the way back from the root. An ancestor
// with any effective lock is left alone, even one weaker than lt (IS where
// IX is needed); the acquire below it then fails with InvalidLock.
func acquireParent(txn Transaction, lt LockType, ctx *LockContext) error {
	if ctx == nil {
		return nil
	}
	if ctx.GetEffectiveLockType(txn) != NL {
		return nil
	}
	if err := acquireParent(txn, lt, ctx.ParentContext()); err != nil {
		return err
	}
	return ctx.Acquire(txn, lt)
}

// promoteParent upgrades ancestors of ctx to lt where the held lock is
// weaker, walking top-down on the way back so the root is promoted first.
// Ancestors already holding lt, or something stronger, are left alone.
func promoteParent(txn Transaction, lt LockType, ctx *LockContext) error {
	if ctx == nil {
		return nil
	}
	if err := promoteParent(txn, lt, ctx.ParentContext()); err != nil {
		return err
	}
	cur := ctx.GetExplicitLockType(txn)
	if cur == NL || cur == lt || !Substitutable(lt, cur) {
		return nil
	}
	return ctx.Promote(txn, lt)
}
