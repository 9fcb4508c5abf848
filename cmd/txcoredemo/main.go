// Command txcoredemo wires the transactional execution core end to end:
// it creates a table with a single-column INT index, runs a transaction
// that inserts a few rows, commits, then runs a second transaction that
// updates one row's key and aborts it, printing what the index and heap
// show after each step. It stands in for the teacher's many network
// server binaries (cluster server, gateway, CLI) — this module's scope
// ends at the storage/lock/transaction core, with no session or wire
// protocol layer (spec §1 non-goals).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gojodb/txcore/core/bptree"
	"github.com/gojodb/txcore/core/catalog"
	"github.com/gojodb/txcore/core/exec"
	"github.com/gojodb/txcore/core/heap"
	"github.com/gojodb/txcore/core/lockmgr"
	"github.com/gojodb/txcore/core/txn"
	"github.com/gojodb/txcore/internal/config"
	"github.com/gojodb/txcore/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "txcoredemo:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	zapLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	dir, err := os.MkdirTemp("", "txcoredemo-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	table := catalog.NewTable("accounts", []catalog.Column{
		{Name: "id", Type: catalog.INT32, Length: 4},
		{Name: "balance", Type: catalog.INT32, Length: 4},
	})
	idxDef, err := catalog.NewIndexDef("accounts.id_idx", table, []string{"id"})
	if err != nil {
		return err
	}
	table.Indexes = append(table.Indexes, idxDef)

	heapFile, err := heap.Create(filepath.Join(dir, "accounts.heap"), cfg.Storage.PageSize, table.RecordSize, cfg.Storage.BufferPoolPages, log)
	if err != nil {
		return err
	}
	defer heapFile.Close()

	cmp := func(a, b []byte) int { return catalog.CompareValue(catalog.INT32, a, b) }
	tree, err := bptree.Create(filepath.Join(dir, "accounts.id_idx"), cfg.Storage.PageSize, idxDef.KeyLen, cfg.Storage.BufferPoolPages, cmp, log)
	if err != nil {
		return err
	}
	defer tree.Close()

	db := exec.NewDatabase()
	db.RegisterTable(table, heapFile)
	db.RegisterIndex(idxDef, tree)

	lockMgr := lockmgr.NewManager(log, nil)
	txnMgr := txn.NewManager(lockMgr, db.Resolver(), log, nil)

	t1 := txnMgr.Begin()
	ctx := &exec.Context{Txn: t1, LockMgr: lockMgr, DB: db}
	ins, err := exec.NewInsertExecutor(ctx, "accounts")
	if err != nil {
		return err
	}
	for _, row := range [][2]int32{{1, 100}, {2, 200}, {3, 300}} {
		if _, err := ins.Insert(accountRecord(row[0], row[1])); err != nil {
			return err
		}
	}
	if err := txnMgr.Commit(t1); err != nil {
		return err
	}
	log.Infow("inserted and committed 3 accounts")

	printAllAccounts(log, ctx.LockMgr, txnMgr, db, idxDef)

	t2 := txnMgr.Begin()
	updCtx := &exec.Context{Txn: t2, LockMgr: lockMgr, DB: db}
	upd, err := exec.NewUpdateExecutor(updCtx, "accounts")
	if err != nil {
		return err
	}
	rid, ok, err := tree.GetValue(catalog.EncodeInt32(2))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("txcoredemo: account 2 not found")
	}
	if err := upd.Update(rid, accountRecord(9, 200)); err != nil {
		return err
	}
	log.Infow("renumbered account 2 to 9 within an uncommitted transaction, then aborting")
	if err := txnMgr.Abort(t2); err != nil {
		return err
	}

	printAllAccounts(log, lockMgr, txnMgr, db, idxDef)
	return nil
}

func accountRecord(id, balance int32) []byte {
	buf := make([]byte, 8)
	copy(buf[0:4], catalog.EncodeInt32(id))
	copy(buf[4:8], catalog.EncodeInt32(balance))
	return buf
}

func printAllAccounts(log interface {
	Infow(string, ...interface{})
}, lockMgr *lockmgr.Manager, txnMgr *txn.Manager, db *exec.Database, idxDef *catalog.IndexDef) {
	t := txnMgr.Begin()
	ctx := &exec.Context{Txn: t, LockMgr: lockMgr, DB: db}
	scan, err := exec.NewIndexScanExecutor(ctx, "accounts", idxDef.Name, nil, nil, nil)
	if err != nil {
		log.Infow("scan setup failed", "err", err)
		return
	}
	if err := scan.Open(); err != nil {
		log.Infow("scan open failed", "err", err)
		return
	}
	for {
		tup, ok, err := scan.Next()
		if err != nil {
			log.Infow("scan failed", "err", err)
			break
		}
		if !ok {
			break
		}
		log.Infow("account",
			"id", catalog.DecodeInt32(tup.Data[0:4]),
			"balance", catalog.DecodeInt32(tup.Data[4:8]))
	}
	_ = txnMgr.Commit(t)
}
