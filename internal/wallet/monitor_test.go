package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hashline-labs/walletd/internal/provider"
)

func connectedSession(t *testing.T, fake *fakeProvider) *Session {
	t.Helper()
	s := newTestSession(t, fake)
	if _, err := s.Connect(context.Background(), "embedded", "addr1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return s
}

func TestSubmitCreatesPendingTransaction(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	tx, err := s.Submit(context.Background(), SendIntent{
		Kind:       TxSend,
		Address:    "bc1qdest",
		AmountSats: 25000,
		FeeRate:    3,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tx.Status != StatusPending {
		t.Fatalf("status = %v, want %v", tx.Status, StatusPending)
	}
	if tx.RecoveryAttempts != 0 {
		t.Fatalf("recoveryAttempts = %d, want 0", tx.RecoveryAttempts)
	}
	if tx.ID == "" {
		t.Fatal("transaction has no provider-assigned id")
	}

	snapshot := s.Transactions()
	if len(snapshot) != 1 || snapshot[0].ID != tx.ID {
		t.Fatalf("tracked transactions = %+v, want exactly %s", snapshot, tx.ID)
	}
}

func TestSubmitRequiresConnection(t *testing.T) {
	fake := newFakeProvider()
	s := newTestSession(t, fake)

	_, err := s.Submit(context.Background(), SendIntent{Kind: TxSend, Address: "bc1qdest", AmountSats: 100})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("err = %v, want ErrConnectionFailed", err)
	}
	if fake.sendCalls != 0 {
		t.Fatalf("provider send calls = %d, want 0", fake.sendCalls)
	}
}

func TestSubmitValidatesIntent(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	cases := []struct {
		name   string
		intent SendIntent
	}{
		{"missing address", SendIntent{Kind: TxSend, AmountSats: 100}},
		{"zero amount", SendIntent{Kind: TxSend, Address: "bc1qdest"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Submit(context.Background(), tc.intent); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestSubmitInsufficientBalance(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	fake.mu.Lock()
	fake.sendErr = errors.New("Insufficient funds for requested amount")
	fake.mu.Unlock()

	_, err := s.Submit(context.Background(), SendIntent{Kind: TxSend, Address: "bc1qdest", AmountSats: 1 << 40})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if len(s.Transactions()) != 0 {
		t.Fatal("failed submission must not be tracked")
	}
}

func TestSubmitInsufficientBalanceStructuredCode(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	// The structured code decides even when the message never says so
	fake.mu.Lock()
	fake.sendErr = &provider.APIError{
		StatusCode: 422,
		Code:       provider.ErrCodeInsufficientBalance,
		Message:    "not enough funds for requested amount",
	}
	fake.mu.Unlock()

	_, err := s.Submit(context.Background(), SendIntent{Kind: TxSend, Address: "bc1qdest", AmountSats: 1 << 40})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	// And a different structured code is never misread from the message
	fake.mu.Lock()
	fake.sendErr = &provider.APIError{
		StatusCode: 429,
		Code:       "rate_limited",
		Message:    "insufficient request budget remaining",
	}
	fake.mu.Unlock()

	_, err = s.Submit(context.Background(), SendIntent{Kind: TxSend, Address: "bc1qdest", AmountSats: 100})
	if !errors.Is(err, ErrProvider) || errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want plain ErrProvider", err)
	}
}

func TestRetrySurvivesRestart(t *testing.T) {
	initWalletDB(t)

	fake := newFakeProvider()
	s := connectedSession(t, fake)

	tx, err := s.Submit(context.Background(), SendIntent{
		Kind:       TxSend,
		Address:    "bc1qdest",
		AmountSats: 25000,
		FeeRate:    7,
		Offchain:   true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	fake.mu.Lock()
	fake.statuses[tx.ID] = []*provider.TxStatus{
		{TxID: tx.ID, Status: "failed", ErrorMessage: "rejected by mempool"},
	}
	fake.mu.Unlock()
	s.mu.Lock()
	s.pollPendingLocked()
	s.mu.Unlock()

	s.Close()

	// A fresh session restores the transaction cache from the database
	s2 := NewSession(Config{Provider: fake, Store: NewSessionStore(t.TempDir())})
	t.Cleanup(s2.Close)
	s2.loadPersistedState()

	s2.mu.Lock()
	restored := s2.txs[tx.ID]
	s2.mu.Unlock()
	if restored == nil || restored.Status != StatusFailed {
		t.Fatalf("restored transaction = %+v", restored)
	}
	if restored.intent == nil {
		t.Fatal("restored transaction lost its submission parameters")
	}
	if restored.intent.FeeRate != 7 || !restored.intent.Offchain {
		t.Fatalf("restored intent = %+v", restored.intent)
	}

	if _, err := s2.Connect(context.Background(), "embedded", "addr1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	retried, err := s2.Retry(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Retry after restart: %v", err)
	}
	if retried.RecoveryAttempts != 1 {
		t.Fatalf("recoveryAttempts = %d, want 1", retried.RecoveryAttempts)
	}
	// The resubmission went back out through the offchain path
	if !strings.HasPrefix(retried.ID, "offchain") {
		t.Fatalf("retried txid = %s, want an offchain submission", retried.ID)
	}
}

// failTx submits a transaction and drives the poll loop until the provider
// reports it failed.
func failTx(t *testing.T, s *Session, fake *fakeProvider) *Transaction {
	t.Helper()
	tx, err := s.Submit(context.Background(), SendIntent{
		Kind:       TxSend,
		Address:    "bc1qdest",
		AmountSats: 25000,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	fake.mu.Lock()
	fake.statuses[tx.ID] = []*provider.TxStatus{
		{TxID: tx.ID, Status: "failed", ErrorMessage: "rejected by mempool"},
	}
	fake.mu.Unlock()

	s.mu.Lock()
	s.pollPendingLocked()
	s.mu.Unlock()

	for _, got := range s.Transactions() {
		if got.ID != tx.ID {
			continue
		}
		if got.Status != StatusFailed {
			t.Fatalf("status = %v, want %v", got.Status, StatusFailed)
		}
		if got.ErrorMessage != "rejected by mempool" {
			t.Fatalf("errorMessage = %q", got.ErrorMessage)
		}
		out := got
		return &out
	}
	t.Fatalf("transaction %s not tracked", tx.ID)
	return nil
}

func TestPollMarksFailedAndRetrySupersedes(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	failed := failTx(t, s, fake)

	retried, err := s.Retry(context.Background(), failed.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Status != StatusPending {
		t.Fatalf("retried status = %v, want %v", retried.Status, StatusPending)
	}
	if retried.RecoveryAttempts != 1 {
		t.Fatalf("recoveryAttempts = %d, want 1", retried.RecoveryAttempts)
	}
	if retried.ID == failed.ID {
		t.Fatal("retry must produce a new provider submission")
	}

	// The superseded failure is no longer tracked
	for _, tx := range s.Transactions() {
		if tx.ID == failed.ID {
			t.Fatalf("superseded transaction %s still tracked", failed.ID)
		}
	}
}

func TestRetryLimit(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	failed := failTx(t, s, fake)

	// Fail each resubmission to walk the counter up to the cap
	id := failed.ID
	for attempt := 1; attempt <= 3; attempt++ {
		retried, err := s.Retry(context.Background(), id)
		if err != nil {
			t.Fatalf("attempt %d: Retry: %v", attempt, err)
		}
		fake.mu.Lock()
		fake.statuses[retried.ID] = []*provider.TxStatus{
			{TxID: retried.ID, Status: "failed", ErrorMessage: "rejected by mempool"},
		}
		fake.mu.Unlock()
		s.mu.Lock()
		s.pollPendingLocked()
		s.mu.Unlock()
		id = retried.ID
	}

	fake.mu.Lock()
	callsBefore := fake.sendCalls
	fake.mu.Unlock()

	if _, err := s.Retry(context.Background(), id); !errors.Is(err, ErrRetryLimitExceeded) {
		t.Fatalf("err = %v, want ErrRetryLimitExceeded", err)
	}

	fake.mu.Lock()
	calls := fake.sendCalls
	fake.mu.Unlock()
	if calls != callsBefore {
		t.Fatal("retry past the cap must not resubmit")
	}
}

func TestRetryRejectsNonFailed(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	tx, err := s.Submit(context.Background(), SendIntent{Kind: TxSend, Address: "bc1qdest", AmountSats: 100})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := s.Retry(context.Background(), tx.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("retry of pending tx: err = %v, want ErrInvalidInput", err)
	}
	if _, err := s.Retry(context.Background(), "no-such-tx"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("retry of unknown tx: err = %v, want ErrInvalidInput", err)
	}
}

func TestPollConfirmsAtThreshold(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	tx, err := s.Submit(context.Background(), SendIntent{Kind: TxSend, Address: "bc1qdest", AmountSats: 100})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	fake.mu.Lock()
	fake.statuses[tx.ID] = []*provider.TxStatus{
		{TxID: tx.ID, Status: "pending", Confirmations: 0},
		{TxID: tx.ID, Status: "pending", Confirmations: 1},
	}
	fake.mu.Unlock()

	s.mu.Lock()
	s.pollPendingLocked()
	s.mu.Unlock()
	if got := s.Transactions()[0].Status; got != StatusPending {
		t.Fatalf("status after first poll = %v, want %v", got, StatusPending)
	}

	s.mu.Lock()
	s.pollPendingLocked()
	s.mu.Unlock()
	if got := s.Transactions()[0].Status; got != StatusConfirmed {
		t.Fatalf("status after second poll = %v, want %v", got, StatusConfirmed)
	}

	// Confirmed is terminal: further polls must not hit the provider
	fake.mu.Lock()
	callsBefore := fake.statusCalls
	fake.mu.Unlock()
	s.mu.Lock()
	s.pollPendingLocked()
	s.mu.Unlock()
	fake.mu.Lock()
	calls := fake.statusCalls
	fake.mu.Unlock()
	if calls != callsBefore {
		t.Fatal("confirmed transaction was polled again")
	}
}

func TestPollErrorLeavesPending(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	if _, err := s.Submit(context.Background(), SendIntent{Kind: TxSend, Address: "bc1qdest", AmountSats: 100}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	fake.mu.Lock()
	fake.statusErr = errors.New("status endpoint timed out")
	fake.mu.Unlock()

	s.mu.Lock()
	s.pollPendingLocked()
	s.mu.Unlock()

	if got := s.Transactions()[0].Status; got != StatusPending {
		t.Fatalf("status after poll error = %v, want %v", got, StatusPending)
	}
}

func TestClearOnlyFailed(t *testing.T) {
	fake := newFakeProvider()
	s := connectedSession(t, fake)

	pending, err := s.Submit(context.Background(), SendIntent{Kind: TxSend, Address: "bc1qdest", AmountSats: 100})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Clear(pending.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("clear of pending tx: err = %v, want ErrInvalidInput", err)
	}

	failed := failTx(t, s, fake)
	if err := s.Clear(failed.ID); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, tx := range s.Transactions() {
		if tx.ID == failed.ID {
			t.Fatal("cleared transaction still tracked")
		}
	}
	if err := s.Clear(failed.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("clear of unknown tx: err = %v, want ErrInvalidInput", err)
	}
}
