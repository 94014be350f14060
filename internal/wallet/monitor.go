package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	walletstatedb "github.com/hashline-labs/walletd/internal/database"
	"github.com/hashline-labs/walletd/internal/provider"
)

// isInsufficientBalance prefers the provider's structured error code; the
// text match remains for providers that return unstructured bodies.
func isInsufficientBalance(err error) bool {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return apiErr.Code == provider.ErrCodeInsufficientBalance
	}
	return strings.Contains(strings.ToLower(err.Error()), "insufficient")
}

// Submit sends a transaction through the provider and begins tracking it as
// Pending. The balance is refreshed afterwards rather than adjusted locally.
func (s *Session) Submit(ctx context.Context, intent SendIntent) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != Connected {
		return nil, fmt.Errorf("%w: wallet is not connected", ErrConnectionFailed)
	}
	if intent.Address == "" || intent.AmountSats == 0 {
		return nil, fmt.Errorf("%w: send requires an address and a positive amount", ErrInvalidInput)
	}

	tx, err := s.submitIntentLocked(ctx, intent, 0)
	if err != nil {
		return nil, err
	}

	if err := s.refreshBalanceLocked(ctx); err != nil {
		log.Printf("Balance refresh after submit failed: %v", err)
		s.appendNoticeLocked("balance refresh failed: " + err.Error())
	}

	out := *tx
	return &out, nil
}

func (s *Session) submitIntentLocked(ctx context.Context, intent SendIntent, attempts uint8) (*Transaction, error) {
	var txid string
	var err error
	if intent.Offchain {
		txid, err = s.provider.SendOffchain(ctx, intent.Address, intent.AmountSats, intent.FeeRate)
	} else {
		txid, err = s.provider.SendOnchain(ctx, intent.Address, intent.AmountSats, intent.FeeRate)
	}
	if err != nil {
		if isInsufficientBalance(err) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	intentCopy := intent
	tx := &Transaction{
		ID:               txid,
		Kind:             intent.Kind,
		AmountSats:       intent.AmountSats,
		Status:           StatusPending,
		Address:          intent.Address,
		RecoveryAttempts: attempts,
		Timestamp:        s.now(),
		intent:           &intentCopy,
	}
	s.txs[txid] = tx
	s.persistTxLocked(tx)
	return tx, nil
}

// Retry resubmits a failed transaction with its original parameters. It
// fails with ErrRetryLimitExceeded once the cap is reached and never
// resubmits past it.
func (s *Session) Retry(ctx context.Context, id string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction %s", ErrInvalidInput, id)
	}
	if tx.Status != StatusFailed {
		return nil, fmt.Errorf("%w: only failed transactions can be retried", ErrInvalidInput)
	}
	if tx.RecoveryAttempts >= maxRecoveryAttempts {
		return nil, fmt.Errorf("%w: transaction %s already retried %d times", ErrRetryLimitExceeded, id, tx.RecoveryAttempts)
	}
	if tx.intent == nil {
		return nil, fmt.Errorf("%w: transaction %s has no retained submission parameters", ErrInvalidInput, id)
	}
	if s.state.Status != Connected {
		return nil, fmt.Errorf("%w: wallet is not connected", ErrConnectionFailed)
	}

	newTx, err := s.submitIntentLocked(ctx, *tx.intent, tx.RecoveryAttempts+1)
	if err != nil {
		return nil, err
	}

	// The failed submission is superseded by the new one
	delete(s.txs, id)
	if walletstatedb.DB != nil {
		if dbErr := walletstatedb.DeleteTransaction(id); dbErr != nil {
			log.Printf("Error removing superseded transaction %s: %v", id, dbErr)
		}
	}

	out := *newTx
	return &out, nil
}

// Clear removes a failed transaction from active tracking. It has no
// on-chain effect.
func (s *Session) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return fmt.Errorf("%w: unknown transaction %s", ErrInvalidInput, id)
	}
	if tx.Status != StatusFailed {
		return fmt.Errorf("%w: only failed transactions can be cleared", ErrInvalidInput)
	}

	delete(s.txs, id)
	if walletstatedb.DB != nil {
		if err := walletstatedb.DeleteTransaction(id); err != nil {
			log.Printf("Error removing cleared transaction %s: %v", id, err)
		}
	}
	return nil
}

// pollPendingLocked advances every Pending transaction one status check.
// Confirmed and Failed are terminal for the poll loop: confirmed stays
// tracked for display, failed waits for an explicit Retry or Clear.
func (s *Session) pollPendingLocked() {
	for id, tx := range s.txs {
		if tx.Status != StatusPending {
			continue
		}

		status, err := s.provider.GetTransactionStatus(s.ctx, id)
		if err != nil {
			// Absence of an answer is not failure; try again next tick
			log.Printf("Status poll for %s failed: %v", id, err)
			continue
		}

		tx.Confirmations = status.Confirmations

		switch status.Status {
		case walletstatedb.TxStatusFailed:
			tx.Status = StatusFailed
			tx.ErrorMessage = status.ErrorMessage
			s.appendNoticeLocked(fmt.Sprintf("transaction %s failed: %s", id, status.ErrorMessage))
		case walletstatedb.TxStatusConfirmed:
			tx.Status = StatusConfirmed
		default:
			if status.Confirmations >= s.confThreshold {
				tx.Status = StatusConfirmed
			}
		}

		s.persistTxLocked(tx)
	}
}

// RefreshHistory pulls the provider-side transaction history into the local
// cache. Provider data wins for everything except locally tracked retry
// counters and retained submission parameters.
func (s *Session) RefreshHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshHistoryLocked(ctx)
}

func (s *Session) refreshHistoryLocked(ctx context.Context) error {
	history, err := s.provider.GetTransactionHistory(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}

	for _, entry := range history {
		tx, ok := s.txs[entry.TxID]
		if !ok {
			tx = &Transaction{ID: entry.TxID}
			s.txs[entry.TxID] = tx
		}
		tx.Kind = TxKind(entry.Kind)
		tx.AmountSats = entry.AmountSats
		tx.FeeSats = entry.FeeSats
		tx.Status = TxState(entry.Status)
		tx.Confirmations = entry.Confirmations
		tx.Address = entry.Address
		tx.IsExitTx = entry.IsExitTx
		tx.Timestamp = entry.Timestamp
		s.persistTxLocked(tx)
	}
	return nil
}
