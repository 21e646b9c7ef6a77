package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/StrataDB/internal/concurrency"
	"github.com/dshills/StrataDB/internal/config"
	"github.com/dshills/StrataDB/internal/log"
	"github.com/dshills/StrataDB/internal/txn"
)

var (
	version = "0.1.0"
	commit  = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		workers     = flag.Int("workers", 0, "Number of workload workers")
		seed        = flag.Int64("seed", 1, "Workload random seed")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("StrataDB v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config file: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	cfg.LoadFromFlags(*logLevel, *workers)

	logger := log.NewTextLogger(log.ParseLevel(cfg.LogLevel))
	logger.Info("Starting StrataDB lock service demo",
		"version", version,
		"commit", commit,
		"tables", cfg.Workload.Tables,
		"pages_per_table", cfg.Workload.PagesPerTable,
		"workers", cfg.Workload.Workers,
		"operations", cfg.Workload.Operations)

	lockMgr := concurrency.NewLockManager(logger)
	txnMgr := txn.NewManager(lockMgr, logger)

	// Materialize the resource tree and declare page capacities so
	// saturation-driven escalation has real denominators.
	db := lockMgr.DatabaseContext()
	tables := make([]*concurrency.LockContext, cfg.Workload.Tables)
	for i := range tables {
		tables[i] = db.ChildContext(fmt.Sprintf("table%d", i))
		tables[i].SetCapacity(cfg.Workload.PagesPerTable)
	}

	if err := runWorkload(cfg, txnMgr, tables, *seed); err != nil {
		logger.Error("Workload failed", "error", err)
		os.Exit(1)
	}

	if err := demoEscalation(cfg, txnMgr, tables[0], logger); err != nil {
		logger.Error("Escalation demo failed", "error", err)
		os.Exit(1)
	}

	stats := lockMgr.Stats()
	logger.Info("Workload complete",
		"resources", stats.Resources,
		"grants", stats.Grants,
		"waiters", stats.Waiters,
		"active_txns", txnMgr.ActiveTransactions())
}

// runWorkload drives concurrent transactions through the lock hierarchy.
// Multi-lock transactions only take shared locks and walk pages in
// ascending order; exclusive-lock transactions touch a single page. That
// keeps the workload deadlock-free without a detector.
func runWorkload(cfg *config.Config, txnMgr *txn.Manager, tables []*concurrency.LockContext, seed int64) error {
	var g errgroup.Group
	for w := 0; w < cfg.Workload.Workers; w++ {
		rng := rand.New(rand.NewSource(seed + int64(w)))
		g.Go(func() error {
			for op := 0; op < cfg.Workload.Operations; op++ {
				if err := runOperation(rng, cfg, txnMgr, tables); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func runOperation(rng *rand.Rand, cfg *config.Config, txnMgr *txn.Manager, tables []*concurrency.LockContext) error {
	t := txnMgr.Begin()
	table := tables[rng.Intn(len(tables))]

	var err error
	switch rng.Intn(4) {
	case 0: // point read
		page := table.ChildContext(fmt.Sprintf("page%d", rng.Intn(cfg.Workload.PagesPerTable)))
		err = concurrency.EnsureSufficientLock(t, page, concurrency.S)
	case 1: // point write
		page := table.ChildContext(fmt.Sprintf("page%d", rng.Intn(cfg.Workload.PagesPerTable)))
		err = concurrency.EnsureSufficientLock(t, page, concurrency.X)
	case 2: // table scan
		err = concurrency.EnsureSufficientLock(t, table, concurrency.S)
	case 3: // range read over a prefix of the table's pages
		n := 1 + rng.Intn(cfg.Workload.PagesPerTable)
		for i := 0; i < n && err == nil; i++ {
			page := table.ChildContext(fmt.Sprintf("page%d", i))
			err = concurrency.EnsureSufficientLock(t, page, concurrency.S)
		}
	}
	if err != nil {
		_ = t.Abort()
		return err
	}
	return t.Commit()
}

// demoEscalation runs a single saturated reader after the concurrent
// phase: it takes page locks across most of a table, then asks for a
// table-level S, which the declarative layer satisfies by escalating.
func demoEscalation(cfg *config.Config, txnMgr *txn.Manager, table *concurrency.LockContext, logger log.Logger) error {
	t := txnMgr.Begin()
	for i := 0; i < cfg.Workload.PagesPerTable; i++ {
		page := table.ChildContext(fmt.Sprintf("page%d", i))
		if err := concurrency.EnsureSufficientLock(t, page, concurrency.S); err != nil {
			_ = t.Abort()
			return err
		}
	}
	logger.Info("Reader saturated table",
		"table", table.Resource().String(),
		"saturation", table.Saturation(t))

	if err := concurrency.EnsureSufficientLock(t, table, concurrency.S); err != nil {
		_ = t.Abort()
		return err
	}
	logger.Info("Escalated to table lock",
		"table", table.Resource().String(),
		"mode", table.GetExplicitLockType(t).String(),
		"child_locks", table.NumChildLocks(t))
	return t.Commit()
}
