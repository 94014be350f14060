package walletstatedb

import (
	"path/filepath"
	"testing"
	"time"
)

func initTestDB(t *testing.T) {
	t.Helper()
	if err := InitSQLiteDB(filepath.Join(t.TempDir(), "wallet.db")); err != nil {
		t.Fatalf("InitSQLiteDB: %v", err)
	}
	t.Cleanup(func() { DB = nil })
}

func TestTransactionUpsert(t *testing.T) {
	initTestDB(t)

	tx := &SQLiteTransaction{
		TxID:       "tx1",
		Kind:       "send",
		AmountSats: 1000,
		Status:     TxStatusPending,
		Address:    "bc1qdest",
		Timestamp:  time.Now().UTC(),
	}
	if err := SaveTransaction(tx); err != nil {
		t.Fatalf("SaveTransaction: %v", err)
	}

	tx.Status = TxStatusConfirmed
	tx.Confirmations = 2
	if err := SaveTransaction(tx); err != nil {
		t.Fatalf("SaveTransaction update: %v", err)
	}

	txs, err := GetTransactions()
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1 after upsert", len(txs))
	}
	if txs[0].Status != TxStatusConfirmed || txs[0].Confirmations != 2 {
		t.Fatalf("stored transaction = %+v", txs[0])
	}

	if err := DeleteTransaction("tx1"); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	txs, err = GetTransactions()
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("got %d transactions after delete, want 0", len(txs))
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	initTestDB(t)

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		err := SaveTransaction(&SQLiteTransaction{
			TxID:      id,
			Kind:      "send",
			Status:    TxStatusPending,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("SaveTransaction %s: %v", id, err)
		}
	}

	txs, err := GetTransactions()
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	want := []string{"new", "mid", "old"}
	for i, w := range want {
		if txs[i].TxID != w {
			t.Fatalf("order = %v, want %v", txs, want)
		}
	}
}

func TestExitTransactionsFilteredByPath(t *testing.T) {
	initTestDB(t)

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	records := []SQLiteExitTransaction{
		{TxID: "exit1", Path: ExitPathPreSigned, AmountSats: 500, IssuedAt: base, RawHex: []byte{0x01}},
		{TxID: "exit2", Path: ExitPathPreSigned, AmountSats: 600, IssuedAt: base.Add(time.Hour), RawHex: []byte{0x02}},
		{TxID: "exit3", Path: ExitPathTimelock, AmountSats: 700, IssuedAt: base, RawHex: []byte{0x03}},
	}
	for i := range records {
		if err := SaveExitTransaction(&records[i]); err != nil {
			t.Fatalf("SaveExitTransaction: %v", err)
		}
	}

	presigned, err := GetExitTransactions(ExitPathPreSigned)
	if err != nil {
		t.Fatalf("GetExitTransactions: %v", err)
	}
	if len(presigned) != 2 {
		t.Fatalf("got %d presigned exits, want 2", len(presigned))
	}
	// Newest issued first
	if presigned[0].TxID != "exit2" {
		t.Fatalf("first = %s, want exit2", presigned[0].TxID)
	}

	timelock, err := GetExitTransactions(ExitPathTimelock)
	if err != nil {
		t.Fatalf("GetExitTransactions: %v", err)
	}
	if len(timelock) != 1 || timelock[0].TxID != "exit3" {
		t.Fatalf("timelock exits = %+v", timelock)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	initTestDB(t)

	// Missing key reads as empty, not as an error
	value, err := GetMetadata("exit_has_presigned")
	if err != nil {
		t.Fatalf("GetMetadata on empty db: %v", err)
	}
	if value != "" {
		t.Fatalf("value = %q, want empty", value)
	}

	if err := SetMetadata("exit_has_presigned", "true"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := SetMetadata("exit_has_presigned", "false"); err != nil {
		t.Fatalf("SetMetadata overwrite: %v", err)
	}

	value, err = GetMetadata("exit_has_presigned")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if value != "false" {
		t.Fatalf("value = %q, want false", value)
	}
}
