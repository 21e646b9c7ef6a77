package concurrency

import (
	"github.com/dshills/StrataDB/internal/errors"
)

// rootResource is the conventional name of the main hierarchy's root.
const rootResource = "database"

// LockContext wraps the LockManager to provide the hierarchical structure
// of multigranularity locking: a tree of contexts mirroring the resource
// tree (database, table, page, ...). Lock acquisition should generally go
// through a LockContext (or LockUtil) rather than the LockManager
// directly, so the parent-intention rule is enforced and per-context child
// lock counts stay accurate.
//
// Contexts form a tree with non-owning parent back-pointers; children are
// created lazily. All numChildLocks bookkeeping happens under the lock
// manager's mutex.
type LockContext struct {
	lm     *LockManager
	parent *LockContext
	name   ResourceName

	// readonly contexts reject all mutating operations. Children of a
	// readonly context, and children created while childLocksDisabled is
	// set, are themselves readonly.
	readonly           bool
	childLocksDisabled bool

	// capacity overrides the child count used by Saturation, for levels
	// whose children are not all materialized as contexts (a table's pages).
	capacity int

	// numChildLocks counts, per transaction, the locks held on any
	// descendant of this context.
	numChildLocks map[TransactionID]int

	children map[string]*LockContext
}

func newLockContext(lm *LockManager, parent *LockContext, name string, readonly bool) *LockContext {
	rn := NewResourceName(name)
	if parent != nil {
		rn = parent.name.Child(name)
	}
	return &LockContext{
		lm:                 lm,
		parent:             parent,
		name:               rn,
		readonly:           readonly,
		childLocksDisabled: readonly,
		numChildLocks:      make(map[TransactionID]int),
		children:           make(map[string]*LockContext),
	}
}

// FromResourceName returns the lock context for name, creating the chain
// of contexts down from the hierarchy root as needed.
func FromResourceName(lm *LockManager, name ResourceName) *LockContext {
	names := name.Names()
	var ctx *LockContext
	if names[0] == rootResource {
		ctx = lm.DatabaseContext()
	} else {
		// Top-level names other than "database" are orphan hierarchies;
		// the reserved-name error cannot occur here.
		ctx, _ = lm.OrphanContext(names[0])
	}
	for _, n := range names[1:] {
		ctx = ctx.ChildContext(n)
	}
	return ctx
}

// Resource returns the name of the resource this context pertains to.
func (c *LockContext) Resource() ResourceName {
	return c.name
}

// Acquire takes a lock of type lt at this level for txn, after checking
// that txn holds a sufficient intention lock on the parent.
func (c *LockContext) Acquire(txn Transaction, lt LockType) error {
	if c.readonly {
		return errors.ReadOnlyContextError(c.name.String())
	}
	if c.parent != nil {
		parentType := c.parent.GetExplicitLockType(txn)
		if !Substitutable(parentType, ParentLock(lt)) {
			return errors.InvalidLockError(uint64(txn.ID()), c.name.String(),
				"parent holds "+parentType.String()+", need at least "+ParentLock(lt).String())
		}
	}
	if err := c.lm.Acquire(txn, c.name, lt); err != nil {
		return err
	}

	c.lm.mu.Lock()
	for p := c.parent; p != nil; p = p.parent {
		p.numChildLocks[txn.ID()]++
	}
	c.lm.mu.Unlock()
	return nil
}

// Release drops txn's lock at this level. Fails if txn still holds locks
// on descendants, since releasing would orphan them.
func (c *LockContext) Release(txn Transaction) error {
	if c.readonly {
		return errors.ReadOnlyContextError(c.name.String())
	}
	c.lm.mu.Lock()
	held := c.numChildLocks[txn.ID()]
	c.lm.mu.Unlock()
	if held > 0 {
		return errors.InvalidLockError(uint64(txn.ID()), c.name.String(),
			"descendant locks would be orphaned")
	}
	if err := c.lm.Release(txn, c.name); err != nil {
		return err
	}

	c.lm.mu.Lock()
	for p := c.parent; p != nil; p = p.parent {
		c.decrementLocked(p, txn.ID())
	}
	c.lm.mu.Unlock()
	return nil
}

// Promote replaces txn's lock at this level with newType. The
// parent-intention invariant is the caller's concern; LockUtil promotes
// ancestors first.
func (c *LockContext) Promote(txn Transaction, newType LockType) error {
	if c.readonly {
		return errors.ReadOnlyContextError(c.name.String())
	}
	return c.lm.Promote(txn, c.name, newType)
}

// Escalate replaces every lock txn holds on this subtree with a single
// lock at this level: X if any of them permits writes (IX, SIX, X), S
// otherwise. For example, with
//
//	IX(database) IX(table1) S(table2) S(table1/page3) X(table1/page5)
//
// escalating at table1 leaves IX(database) X(table1) S(table2).
//
// Calling escalate again immediately is a no-op: no lock manager mutation
// happens when the held locks would not change.
func (c *LockContext) Escalate(txn Transaction) error {
	if c.readonly {
		return errors.ReadOnlyContextError(c.name.String())
	}
	explicit := c.lm.GetLockType(txn, c.name)
	if explicit == NL {
		return errors.NoLockHeldError(uint64(txn.ID()), c.name.String())
	}

	var descendants []ResourceName
	target := S
	for _, l := range c.lm.TransactionLocks(txn) {
		if !l.Name.IsDescendantOf(c.name) {
			continue
		}
		descendants = append(descendants, l.Name)
		if l.Type == IX || l.Type == SIX || l.Type == X {
			target = X
		}
	}
	if len(descendants) == 0 && (explicit == S || explicit == X) {
		return nil
	}
	if explicit == IX || explicit == SIX || explicit == X {
		target = X
	}

	releases := append([]ResourceName{c.name}, descendants...)
	if err := c.lm.AcquireAndRelease(txn, c.name, target, releases); err != nil {
		return err
	}

	// Every descendant lock is gone: decrement the counts of all its
	// ancestor contexts. The lock at this level was replaced in place, so
	// contexts above this one see no change from it.
	c.lm.mu.Lock()
	for _, d := range descendants {
		for p := c.contextForLocked(d).parent; p != nil; p = p.parent {
			c.decrementLocked(p, txn.ID())
		}
	}
	c.lm.mu.Unlock()
	return nil
}

// GetExplicitLockType returns the lock txn holds at exactly this level, or
// NL.
func (c *LockContext) GetExplicitLockType(txn Transaction) LockType {
	if txn == nil {
		return NL
	}
	return c.lm.GetLockType(txn, c.name)
}

// GetEffectiveLockType returns the lock txn can exercise at this level,
// either held explicitly or inherited from an ancestor. A non-intention
// ancestor lock flows down (SIX confers S); intention-only ancestors (IS,
// IX) confer nothing.
func (c *LockContext) GetEffectiveLockType(txn Transaction) LockType {
	if txn == nil {
		return NL
	}
	explicit := c.GetExplicitLockType(txn)
	if explicit != NL || c.parent == nil {
		return explicit
	}
	switch inherited := c.parent.GetEffectiveLockType(txn); inherited {
	case IS, IX:
		return NL
	case SIX:
		return S
	default:
		return inherited
	}
}

// DisableChildLocks makes all new child contexts readonly. Used for
// indices and temporary tables, where finer-grain locks are disallowed.
func (c *LockContext) DisableChildLocks() {
	c.lm.mu.Lock()
	c.childLocksDisabled = true
	c.lm.mu.Unlock()
}

// ParentContext returns the parent context, or nil at a hierarchy root.
func (c *LockContext) ParentContext() *LockContext {
	return c.parent
}

// ChildContext returns the context for the child named name, creating it
// lazily.
func (c *LockContext) ChildContext(name string) *LockContext {
	c.lm.mu.Lock()
	defer c.lm.mu.Unlock()
	return c.childLocked(name)
}

func (c *LockContext) childLocked(name string) *LockContext {
	child, ok := c.children[name]
	if !ok {
		child = newLockContext(c.lm, c, name, c.readonly || c.childLocksDisabled)
		c.children[name] = child
	}
	return child
}

// contextForLocked resolves the context for a descendant resource name.
// Callers must hold the manager mutex.
func (c *LockContext) contextForLocked(name ResourceName) *LockContext {
	if name == c.name {
		return c
	}
	ctx := c
	for _, n := range name.Names()[c.name.Depth():] {
		ctx = ctx.childLocked(n)
	}
	return ctx
}

func (c *LockContext) decrementLocked(ctx *LockContext, tid TransactionID) {
	if n := ctx.numChildLocks[tid]; n <= 1 {
		delete(ctx.numChildLocks, tid)
	} else {
		ctx.numChildLocks[tid] = n - 1
	}
}

// SetCapacity overrides the child count used by Saturation, for levels
// whose children are created lazily (a table declares its page count).
func (c *LockContext) SetCapacity(capacity int) {
	c.lm.mu.Lock()
	c.capacity = capacity
	c.lm.mu.Unlock()
}

// Capacity returns the declared capacity, defaulting to the number of
// materialized child contexts.
func (c *LockContext) Capacity() int {
	c.lm.mu.Lock()
	defer c.lm.mu.Unlock()
	return c.capacityLocked()
}

func (c *LockContext) capacityLocked() int {
	if c.capacity != 0 {
		return c.capacity
	}
	return len(c.children)
}

// Saturation returns the number of locks txn holds on descendants of this
// context divided by its capacity, or 0 if the capacity is 0.
func (c *LockContext) Saturation(txn Transaction) float64 {
	if txn == nil {
		return 0
	}
	c.lm.mu.Lock()
	defer c.lm.mu.Unlock()
	capacity := c.capacityLocked()
	if capacity == 0 {
		return 0
	}
	return float64(c.numChildLocks[txn.ID()]) / float64(capacity)
}

// NumChildLocks returns the number of locks txn holds on descendants of
// this context.
func (c *LockContext) NumChildLocks(txn Transaction) int {
	if txn == nil {
		return 0
	}
	c.lm.mu.Lock()
	defer c.lm.mu.Unlock()
	return c.numChildLocks[txn.ID()]
}

func (c *LockContext) String() string {
	return "LockContext(" + c.name.String() + ")"
}
