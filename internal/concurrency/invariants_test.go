package concurrency

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/StrataDB/internal/errors"
)

// checkTableInvariants verifies, for every resource in names and every
// transaction in txns:
//   - granted locks are pairwise compatible
//   - no transaction holds more than one lock per resource
//   - the per-resource and per-transaction indices agree on every lock
func checkTableInvariants(t *testing.T, lm *LockManager, names []ResourceName, txns []*testTxn) {
	t.Helper()

	type key struct {
		name ResourceName
		txn  TransactionID
	}
	byResource := make(map[key]LockType)
	for _, name := range names {
		locks := lm.GetLocks(name)
		seen := make(map[TransactionID]bool)
		for i, a := range locks {
			require.False(t, seen[a.Txn], "txn %d holds two locks on %s", a.Txn, name)
			seen[a.Txn] = true
			byResource[key{name, a.Txn}] = a.Type
			for _, b := range locks[i+1:] {
				if a.Txn != b.Txn {
					require.True(t, Compatible(a.Type, b.Type),
						"incompatible grants on %s: %s and %s", name, a.Type, b.Type)
				}
			}
		}
	}

	byTxn := make(map[key]LockType)
	for _, txn := range txns {
		for _, l := range lm.TransactionLocks(txn) {
			k := key{l.Name, l.Txn}
			_, dup := byTxn[k]
			require.False(t, dup, "txn %d lists %s twice", l.Txn, l.Name)
			byTxn[k] = l.Type
		}
	}
	require.Equal(t, byResource, byTxn, "byResource and byTransaction indices disagree")
}

// Random flat-manager workloads keep the two indices consistent and the
// grant sets compatible, no matter the interleaving.
func TestRandomWorkloadInvariants(t *testing.T) {
	names := []ResourceName{resA(), resB(), resC()}
	allModes := []LockType{IS, IX, S, SIX, X}

	for seed := int64(0); seed < 20; seed++ {
		seed := seed
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			lm := NewLockManager(nil)
			txns := make([]*testTxn, 6)
			for i := range txns {
				txns[i] = newTestTxn(TransactionID(i + 1))
			}

			for step := 0; step < 400; step++ {
				txn := txns[rng.Intn(len(txns))]
				if txn.IsBlocked() {
					// A blocked transaction issues no further requests.
					continue
				}
				name := names[rng.Intn(len(names))]
				switch rng.Intn(3) {
				case 0:
					_ = lm.Acquire(txn, name, allModes[rng.Intn(len(allModes))])
				case 1:
					_ = lm.Release(txn, name)
				case 2:
					_ = lm.Promote(txn, name, allModes[rng.Intn(len(allModes))])
				}
				checkTableInvariants(t, lm, names, txns)
			}
		})
	}
}

// A sequence of acquires undone by releases leaves the manager exactly as
// it started.
func TestRoundTripLeavesNoState(t *testing.T) {
	lm := NewLockManager(nil)
	t1, t2 := newTestTxn(1), newTestTxn(2)

	require.NoError(t, lm.Acquire(t1, resA(), IS))
	require.NoError(t, lm.Acquire(t2, resA(), IS))
	require.NoError(t, lm.Acquire(t1, resB(), X))
	require.NoError(t, lm.Acquire(t2, resC(), S))

	require.NoError(t, lm.Release(t1, resB()))
	require.NoError(t, lm.Release(t2, resC()))
	require.NoError(t, lm.Release(t2, resA()))
	require.NoError(t, lm.Release(t1, resA()))

	assert.Equal(t, Stats{}, lm.Stats())
	assert.Empty(t, lm.TransactionLocks(t1))
	assert.Empty(t, lm.TransactionLocks(t2))
}

// Hierarchical workloads driven through the declarative layer keep the
// parent-intention rule and the child-lock counts accurate.
func TestHierarchyInvariants(t *testing.T) {
	const tables, pages = 3, 4

	for seed := int64(0); seed < 10; seed++ {
		seed := seed
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			lm := NewLockManager(nil)
			db := lm.DatabaseContext()

			var ctxs []*LockContext
			for i := 0; i < tables; i++ {
				table := db.ChildContext(fmt.Sprintf("t%d", i))
				ctxs = append(ctxs, table)
				for j := 0; j < pages; j++ {
					ctxs = append(ctxs, table.ChildContext(fmt.Sprintf("p%d", j)))
				}
			}

			t1 := newTestTxn(1)
			for step := 0; step < 100; step++ {
				ctx := ctxs[rng.Intn(len(ctxs))]
				required := S
				if rng.Intn(2) == 0 {
					required = X
				}
				if err := EnsureSufficientLock(t1, ctx, required); err != nil {
					// Requests the policy cannot satisfy: X below an
					// ancestor holding plain S, or holding only IS (which
					// acquireParent leaves alone). State must be untouched.
					require.True(t, errors.IsInvalidLock(err), "got %v", err)
				}
				checkHierarchyInvariants(t, lm, db, t1)
			}
		})
	}
}

// checkHierarchyInvariants walks every lock t1 holds and asserts the
// parent-intention rule, then recomputes child-lock counts from scratch
// and compares them with each context's counter.
func checkHierarchyInvariants(t *testing.T, lm *LockManager, db *LockContext, txn *testTxn) {
	t.Helper()
	held := lm.TransactionLocks(txn)

	for _, l := range held {
		parent, ok := l.Name.Parent()
		if !ok {
			continue
		}
		parentType := lm.GetLockType(txn, parent)
		require.True(t, Substitutable(parentType, ParentLock(l.Type)),
			"%s held under parent %s with only %s", l.Type, parent, parentType)
	}

	var walk func(ctx *LockContext)
	walk = func(ctx *LockContext) {
		count := 0
		for _, l := range held {
			if l.Name.IsDescendantOf(ctx.Resource()) {
				count++
			}
		}
		require.Equal(t, count, ctx.NumChildLocks(txn),
			"child-lock count off at %s", ctx.Resource())
		ctx.lm.mu.Lock()
		children := make([]*LockContext, 0, len(ctx.children))
		for _, c := range ctx.children {
			children = append(children, c)
		}
		ctx.lm.mu.Unlock()
		for _, c := range children {
			walk(c)
		}
	}
	walk(db)
}
