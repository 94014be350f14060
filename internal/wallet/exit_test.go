package wallet

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	walletstatedb "github.com/hashline-labs/walletd/internal/database"
	"github.com/hashline-labs/walletd/internal/provider"
)

// fakeBroadcaster records broadcasts instead of touching public explorers
type fakeBroadcaster struct {
	calls int
	err   error
}

func (b *fakeBroadcaster) BroadcastAndVerify(tx *wire.MsgTx) (chainhash.Hash, bool, error) {
	b.calls++
	if b.err != nil {
		return chainhash.Hash{}, false, b.err
	}
	return tx.TxHash(), true, nil
}

func initWalletDB(t *testing.T) {
	t.Helper()
	if err := walletstatedb.InitDB(filepath.Join(t.TempDir(), "wallet.db")); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { walletstatedb.DB = nil })
}

// rawExitTx builds a deterministic signed-looking exit transaction paying
// valueSats to a fixed P2WPKH script at output 0.
func rawExitTx(t *testing.T, valueSats int64) (*wire.MsgTx, []byte) {
	t.Helper()

	addr, err := btcutil.NewAddressWitnessPubKeyHash(bytes.Repeat([]byte{0x44}, 20), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewAddressWitnessPubKeyHash: %v", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("PayToAddrScript: %v", err)
	}

	var prevHash chainhash.Hash
	copy(prevHash[:], bytes.Repeat([]byte{0x55}, chainhash.HashSize))

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(valueSats, script))

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return tx, buf.Bytes()
}

func storeExitTx(t *testing.T, path string, tx *wire.MsgTx, raw []byte, amountSats uint64) {
	t.Helper()
	err := walletstatedb.SaveExitTransaction(&walletstatedb.SQLiteExitTransaction{
		TxID:       tx.TxHash().String(),
		Path:       path,
		AmountSats: amountSats,
		Address:    "bc1qrefund",
		IssuedAt:   time.Now().UTC(),
		RawHex:     raw,
	})
	if err != nil {
		t.Fatalf("SaveExitTransaction: %v", err)
	}
}

func TestCanExecute(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := base.Add(24 * time.Hour)

	cases := []struct {
		name string
		info *provider.ExitInfo
		path ExitPath
		now  time.Time
		want bool
	}{
		{"nil info", nil, ExitPathPreSigned, base, false},
		{"presigned available", &provider.ExitInfo{HasPreSignedExit: true}, ExitPathPreSigned, base, true},
		{"presigned missing", &provider.ExitInfo{}, ExitPathPreSigned, base, false},
		{"timelock no expiry", &provider.ExitInfo{HasPreSignedExit: true}, ExitPathTimelock, base, false},
		{"timelock before expiry", &provider.ExitInfo{TimelockExpiry: &expiry}, ExitPathTimelock, expiry.Add(-time.Second), false},
		{"timelock at expiry", &provider.ExitInfo{TimelockExpiry: &expiry}, ExitPathTimelock, expiry, true},
		{"timelock after expiry", &provider.ExitInfo{TimelockExpiry: &expiry}, ExitPathTimelock, expiry.Add(time.Hour), true},
		// The paths are independent: timelock eligibility does not require
		// a pre-signed exit and vice versa.
		{"timelock without presigned", &provider.ExitInfo{HasPreSignedExit: false, TimelockExpiry: &expiry}, ExitPathTimelock, expiry, true},
		{"presigned before timelock expiry", &provider.ExitInfo{HasPreSignedExit: true, TimelockExpiry: &expiry}, ExitPathPreSigned, base, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanExecute(tc.info, tc.path, tc.now); got != tc.want {
				t.Fatalf("CanExecute(%+v, %v, %v) = %v, want %v", tc.info, tc.path, tc.now, got, tc.want)
			}
		})
	}
}

func TestCanExecuteIsPure(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	info := &provider.ExitInfo{HasPreSignedExit: true, TimelockExpiry: &expiry}

	for i := 0; i < 10; i++ {
		if !CanExecute(info, ExitPathTimelock, expiry) {
			t.Fatal("result changed between identical calls")
		}
	}
	if info.TimelockExpiry == nil || !info.TimelockExpiry.Equal(expiry) {
		t.Fatal("input mutated")
	}
}

func TestExecuteExitIneligiblePath(t *testing.T) {
	fake := newFakeProvider()
	expiry := time.Now().Add(48 * time.Hour)
	fake.exitInfo = &provider.ExitInfo{HasPreSignedExit: false, TimelockExpiry: &expiry}

	s := connectedSession(t, fake)

	if _, err := s.ExecuteExit(context.Background(), ExitPathPreSigned, 5, ""); !errors.Is(err, ErrExitPathUnavailable) {
		t.Fatalf("presigned: err = %v, want ErrExitPathUnavailable", err)
	}
	if _, err := s.ExecuteExit(context.Background(), ExitPathTimelock, 5, ""); !errors.Is(err, ErrExitPathUnavailable) {
		t.Fatalf("timelock: err = %v, want ErrExitPathUnavailable", err)
	}
}

func TestExecuteExitChecksEligibilityAtCallTime(t *testing.T) {
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expiry := clock.Add(time.Hour)

	fake := newFakeProvider()
	fake.exitInfo = &provider.ExitInfo{TimelockExpiry: &expiry}

	s := NewSession(Config{
		Provider: fake,
		Store:    NewSessionStore(t.TempDir()),
		Now:      func() time.Time { return clock },
	})
	defer s.Close()

	if _, err := s.Connect(context.Background(), "embedded", "addr1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Before expiry the path is unavailable even though info is cached
	if _, err := s.ExecuteExit(context.Background(), ExitPathTimelock, 5, ""); !errors.Is(err, ErrExitPathUnavailable) {
		t.Fatalf("before expiry: err = %v, want ErrExitPathUnavailable", err)
	}

	// At expiry the predicate flips; without a stored exit transaction the
	// path still reports unavailable rather than broadcasting nothing.
	clock = expiry
	_, err := s.ExecuteExit(context.Background(), ExitPathTimelock, 5, "")
	if !errors.Is(err, ErrExitPathUnavailable) {
		t.Fatalf("at expiry without stored tx: err = %v, want ErrExitPathUnavailable", err)
	}
}

func TestExitInfoWorksWhileDisconnected(t *testing.T) {
	fake := newFakeProvider()
	expiry := time.Now().Add(-time.Hour)
	fake.exitInfo = &provider.ExitInfo{HasPreSignedExit: true, TimelockExpiry: &expiry}

	s := connectedSession(t, fake)
	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	// Exit info captured while connected survives the disconnect
	info := s.ExitInfo()
	if info == nil || !info.HasPreSignedExit {
		t.Fatalf("exit info lost on disconnect: %+v", info)
	}
	if !CanExecute(info, ExitPathTimelock, time.Now()) {
		t.Fatal("timelock path must stay executable while disconnected")
	}
}

func TestRefreshExitInfoProviderError(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	fake.mu.Lock()
	fake.exitErr = errors.New("coordinator unreachable")
	fake.mu.Unlock()

	if _, err := s.RefreshExitInfo(context.Background()); !errors.Is(err, ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestExecuteExitBroadcastsWhileDropped(t *testing.T) {
	initWalletDB(t)

	fake := newFakeProvider()
	fake.exitInfo = &provider.ExitInfo{HasPreSignedExit: true}
	caster := &fakeBroadcaster{}

	s := NewSession(Config{
		Provider:    fake,
		Broadcaster: caster,
		Store:       NewSessionStore(t.TempDir()),
	})
	t.Cleanup(s.Close)

	if _, err := s.Connect(context.Background(), "embedded", "addr1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	exitTx, raw := rawExitTx(t, 50000)
	storeExitTx(t, walletstatedb.ExitPathPreSigned, exitTx, raw, 50000)

	// A dropped provider session must not block the exit
	s.HandleNetworkChange(false)
	if got := s.State().Status; got != Dropped {
		t.Fatalf("status = %v, want %v", got, Dropped)
	}

	fake.mu.Lock()
	balanceGetsBefore := fake.balanceGets
	fake.mu.Unlock()

	txid, err := s.ExecuteExit(context.Background(), ExitPathPreSigned, 5, "bc1qdest")
	if err != nil {
		t.Fatalf("ExecuteExit: %v", err)
	}
	if txid != exitTx.TxHash().String() {
		t.Fatalf("txid = %s, want %s", txid, exitTx.TxHash().String())
	}
	if caster.calls != 1 {
		t.Fatalf("broadcast calls = %d, want 1", caster.calls)
	}

	var tracked *Transaction
	for _, tx := range s.Transactions() {
		if tx.ID == txid {
			out := tx
			tracked = &out
		}
	}
	if tracked == nil {
		t.Fatal("exit transaction not tracked")
	}
	if tracked.Kind != TxEmergencyExit || tracked.Status != StatusPending || !tracked.IsExitTx {
		t.Fatalf("tracked exit = %+v", tracked)
	}
	if tracked.Address != "bc1qdest" || tracked.AmountSats != 50000 {
		t.Fatalf("tracked exit = %+v", tracked)
	}

	// While dropped no provider refresh fires
	fake.mu.Lock()
	balanceGets := fake.balanceGets
	fake.mu.Unlock()
	if balanceGets != balanceGetsBefore {
		t.Fatal("balance refresh hit the provider while dropped")
	}

	// The exit transaction is persisted for the next start
	records, err := walletstatedb.GetTransactions()
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	found := false
	for _, rec := range records {
		if rec.TxID == txid && rec.IsExitTx {
			found = true
		}
	}
	if !found {
		t.Fatal("exit transaction not persisted")
	}
}

func TestExecuteExitRefreshesWhileConnected(t *testing.T) {
	initWalletDB(t)

	fake := newFakeProvider()
	fake.exitInfo = &provider.ExitInfo{HasPreSignedExit: true}
	caster := &fakeBroadcaster{}

	s := NewSession(Config{
		Provider:    fake,
		Broadcaster: caster,
		Store:       NewSessionStore(t.TempDir()),
	})
	t.Cleanup(s.Close)

	if _, err := s.Connect(context.Background(), "embedded", "addr1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	exitTx, raw := rawExitTx(t, 75000)
	storeExitTx(t, walletstatedb.ExitPathPreSigned, exitTx, raw, 75000)

	fake.mu.Lock()
	balanceGetsBefore := fake.balanceGets
	fake.mu.Unlock()

	if _, err := s.ExecuteExit(context.Background(), ExitPathPreSigned, 5, ""); err != nil {
		t.Fatalf("ExecuteExit: %v", err)
	}

	fake.mu.Lock()
	balanceGets := fake.balanceGets
	fake.mu.Unlock()
	if balanceGets <= balanceGetsBefore {
		t.Fatal("successful exit did not refresh the balance")
	}
}

func TestExecuteExitBroadcastFailureLeavesNothingTracked(t *testing.T) {
	initWalletDB(t)

	fake := newFakeProvider()
	fake.exitInfo = &provider.ExitInfo{HasPreSignedExit: true}
	caster := &fakeBroadcaster{err: errors.New("all API broadcasts failed")}

	s := NewSession(Config{
		Provider:    fake,
		Broadcaster: caster,
		Store:       NewSessionStore(t.TempDir()),
	})
	t.Cleanup(s.Close)

	if _, err := s.Connect(context.Background(), "embedded", "addr1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	exitTx, raw := rawExitTx(t, 50000)
	storeExitTx(t, walletstatedb.ExitPathPreSigned, exitTx, raw, 50000)

	if _, err := s.ExecuteExit(context.Background(), ExitPathPreSigned, 5, ""); !errors.Is(err, ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
	for _, tx := range s.Transactions() {
		if tx.ID == exitTx.TxHash().String() {
			t.Fatal("failed exit broadcast left a tracked transaction")
		}
	}
}

func TestParseExitPath(t *testing.T) {
	cases := []struct {
		in   string
		want ExitPath
		ok   bool
	}{
		{"presigned", ExitPathPreSigned, true},
		{"timelock", ExitPathTimelock, true},
		{"", ExitPathPreSigned, false},
		{"cooperative", ExitPathPreSigned, false},
	}
	for _, tc := range cases {
		got, ok := ParseExitPath(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseExitPath(%q) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
