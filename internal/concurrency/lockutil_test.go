package concurrency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario: a transaction holding nothing asks for X on a page; the whole
// intent chain is acquired on the way down.
func TestEnsureAcquiresAncestorIntents(t *testing.T) {
	lm := NewLockManager(nil)
	t1 := newTestTxn(1)
	db := lm.DatabaseContext()
	table := db.ChildContext("table1")
	page := table.ChildContext("page5")

	require.NoError(t, EnsureSufficientLock(t1, page, X))

	assert.Equal(t, IX, db.GetExplicitLockType(t1))
	assert.Equal(t, IX, table.GetExplicitLockType(t1))
	assert.Equal(t, X, page.GetExplicitLockType(t1))
	assert.Len(t, lm.TransactionLocks(t1), 3)
}

func TestEnsureSharedRead(t *testing.T) {
	lm := NewLockManager(nil)
	t1 := newTestTxn(1)
	page := lm.DatabaseContext().ChildContext("table1").ChildContext("page1")

	require.NoError(t, EnsureSufficientLock(t1, page, S))

	assert.Equal(t, IS, lm.DatabaseContext().GetExplicitLockType(t1))
	assert.Equal(t, S, page.GetExplicitLockType(t1))
}

func TestEnsureNoOpWhenAlreadySufficient(t *testing.T) {
	lm := NewLockManager(nil)
	t1 := newTestTxn(1)
	db := lm.DatabaseContext()
	table := db.ChildContext("table1")
	page := table.ChildContext("page1")

	require.NoError(t, EnsureSufficientLock(t1, page, X))
	before := lm.TransactionLocks(t1)

	// X satisfies S.
	require.NoError(t, EnsureSufficientLock(t1, page, S))
	assert.Equal(t, before, lm.TransactionLocks(t1))
	assert.Equal(t, IX, db.GetExplicitLockType(t1))
	assert.Equal(t, IX, table.GetExplicitLockType(t1))
}

func TestEnsureInheritedSharedSuffices(t *testing.T) {
	lm := NewLockManager(nil)
	t1 := newTestTxn(1)
	db := lm.DatabaseContext()
	table := db.ChildContext("table1")
	page := table.ChildContext("page1")

	require.NoError(t, EnsureSufficientLock(t1, table, S))
	before := lm.TransactionLocks(t1)

	// The page inherits S from the table; nothing new is acquired.
	require.NoError(t, EnsureSufficientLock(t1, page, S))
	assert.Equal(t, before, lm.TransactionLocks(t1))
	assert.Equal(t, NL, page.GetExplicitLockType(t1))
}

func TestEnsureUpgradePromotesAncestors(t *testing.T) {
	lm := NewLockManager(nil)
	t1 := newTestTxn(1)
	db := lm.DatabaseContext()
	table := db.ChildContext("table1")
	page := table.ChildContext("page1")

	require.NoError(t, EnsureSufficientLock(t1, page, S))
	require.NoError(t, EnsureSufficientLock(t1, page, X))

	// The S ladder was upgraded to the X ladder, root first.
	assert.Equal(t, IX, db.GetExplicitLockType(t1))
	assert.Equal(t, IX, table.GetExplicitLockType(t1))
	assert.Equal(t, X, page.GetExplicitLockType(t1))
	assert.Len(t, lm.TransactionLocks(t1), 3)
}

// Scenario: IS(db) IS(table) and S on 8 of the table's 10 pages. Asking
// for S on the table escalates instead of promoting page by page.
func TestEnsureEscalatesSaturatedTable(t *testing.T) {
	lm := NewLockManager(nil)
	t1 := newTestTxn(1)
	db := lm.DatabaseContext()
	table := db.ChildContext("table1")
	table.SetCapacity(10)

	for i := 0; i < 8; i++ {
		page := table.ChildContext(pageName(i))
		require.NoError(t, EnsureSufficientLock(t1, page, S))
	}
	require.Equal(t, 0.8, table.Saturation(t1))

	require.NoError(t, EnsureSufficientLock(t1, table, S))

	assert.Equal(t, IS, db.GetExplicitLockType(t1))
	assert.Equal(t, S, table.GetExplicitLockType(t1))
	assert.Equal(t, 0, table.NumChildLocks(t1))
	// Exactly two locks remain: IS(db) and S(table).
	assert.Len(t, lm.TransactionLocks(t1), 2)
}

func TestEnsureEscalateThenPromote(t *testing.T) {
	lm := NewLockManager(nil)
	t1 := newTestTxn(1)
	db := lm.DatabaseContext()
	table := db.ChildContext("table1")
	page := table.ChildContext("page1")

	// IX(table) with an X page lock, then a table-wide S requirement:
	// incomparable modes force an escalate, which already yields X.
	require.NoError(t, EnsureSufficientLock(t1, page, X))
	require.NoError(t, EnsureSufficientLock(t1, table, S))

	assert.Equal(t, X, table.GetExplicitLockType(t1))
	assert.Equal(t, NL, page.GetExplicitLockType(t1))
	assert.Equal(t, IX, db.GetExplicitLockType(t1))
}

func TestEnsureIdempotent(t *testing.T) {
	for _, required := range []LockType{S, X} {
		lm := NewLockManager(nil)
		t1 := newTestTxn(1)
		page := lm.DatabaseContext().ChildContext("table1").ChildContext("page1")

		require.NoError(t, EnsureSufficientLock(t1, page, required))
		before := lm.TransactionLocks(t1)

		require.NoError(t, EnsureSufficientLock(t1, page, required))
		assert.Equal(t, before, lm.TransactionLocks(t1), "ensure(%s) twice must equal once", required)
	}
}

func TestEnsureIgnoresBadInputs(t *testing.T) {
	lm := NewLockManager(nil)
	t1 := newTestTxn(1)
	page := lm.DatabaseContext().ChildContext("table1").ChildContext("page1")

	require.NoError(t, EnsureSufficientLock(nil, page, S))
	require.NoError(t, EnsureSufficientLock(t1, nil, S))
	for _, lt := range []LockType{NL, IS, IX, SIX} {
		require.NoError(t, EnsureSufficientLock(t1, page, lt))
	}
	assert.Empty(t, lm.TransactionLocks(t1))
	assert.Equal(t, 0, lm.Stats().Resources)
}

func pageName(i int) string {
	return "page" + string(rune('0'+i))
}
