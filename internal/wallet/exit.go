package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	walletstatedb "github.com/hashline-labs/walletd/internal/database"
	"github.com/hashline-labs/walletd/internal/logger"
	"github.com/hashline-labs/walletd/internal/provider"
	"github.com/hashline-labs/walletd/lib/recovery"
)

const (
	metaExitHasPreSigned  = "exit_has_presigned"
	metaExitTimelockStart = "exit_timelock_start"
	metaExitTimelockEnd   = "exit_timelock_expiry"
)

// CanExecute is the one shared eligibility predicate for both exit paths.
// It is a pure function of the exit info and the supplied clock reading so
// eligibility cannot drift between call sites; the timelock boundary is
// inclusive.
func CanExecute(info *provider.ExitInfo, path ExitPath, now time.Time) bool {
	if info == nil {
		return false
	}
	switch path {
	case ExitPathPreSigned:
		return info.HasPreSignedExit
	case ExitPathTimelock:
		return info.TimelockExpiry != nil && !now.Before(*info.TimelockExpiry)
	default:
		return false
	}
}

// ExitInfo returns a copy of the last known exit info, which may come from
// the local cache when the provider has never been reachable this run.
func (s *Session) ExitInfo() *provider.ExitInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exitInfo == nil {
		return nil
	}
	info := *s.exitInfo
	return &info
}

// RefreshExitInfo fetches exit info from the provider and persists it, along
// with any pre-signed exit transactions, so the exit paths survive a total
// provider outage.
func (s *Session) RefreshExitInfo(ctx context.Context) (*provider.ExitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshExitInfoLocked(ctx); err != nil {
		return nil, err
	}
	info := *s.exitInfo
	return &info, nil
}

func (s *Session) refreshExitInfoLocked(ctx context.Context) error {
	info, err := s.provider.GetExitInfo(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	s.exitInfo = info
	s.persistExitInfoLocked(info)
	return nil
}

func (s *Session) persistExitInfoLocked(info *provider.ExitInfo) {
	if walletstatedb.DB == nil {
		return
	}

	setMeta := func(key, value string) {
		if err := walletstatedb.SetMetadata(key, value); err != nil {
			log.Printf("Error persisting exit metadata %s: %v", key, err)
		}
	}

	setMeta(metaExitHasPreSigned, fmt.Sprintf("%t", info.HasPreSignedExit))
	if info.TimelockStart != nil {
		setMeta(metaExitTimelockStart, info.TimelockStart.Format(time.RFC3339))
	}
	if info.TimelockExpiry != nil {
		setMeta(metaExitTimelockEnd, info.TimelockExpiry.Format(time.RFC3339))
	}

	for _, exitTx := range info.ExitTransactions {
		rawBytes, err := hex.DecodeString(exitTx.RawHex)
		if err != nil {
			log.Printf("Skipping exit transaction %s with invalid hex: %v", exitTx.TxID, err)
			continue
		}
		err = walletstatedb.SaveExitTransaction(&walletstatedb.SQLiteExitTransaction{
			TxID:       exitTx.TxID,
			Path:       exitTx.Path,
			AmountSats: exitTx.AmountSats,
			Address:    exitTx.Address,
			IssuedAt:   exitTx.IssuedAt,
			RawHex:     rawBytes,
		})
		if err != nil {
			log.Printf("Error persisting exit transaction %s: %v", exitTx.TxID, err)
			logger.Error("Error persisting exit transaction: ", err)
		}
	}
}

// loadExitInfoLocked restores exit info from the local cache at startup
func (s *Session) loadExitInfoLocked() {
	if walletstatedb.DB == nil {
		return
	}

	hasPreSigned, err := walletstatedb.GetMetadata(metaExitHasPreSigned)
	if err != nil {
		log.Printf("Error loading cached exit info: %v", err)
		return
	}
	if hasPreSigned == "" {
		return
	}

	info := &provider.ExitInfo{HasPreSignedExit: hasPreSigned == "true"}
	if start, err := walletstatedb.GetMetadata(metaExitTimelockStart); err == nil && start != "" {
		if t, parseErr := time.Parse(time.RFC3339, start); parseErr == nil {
			info.TimelockStart = &t
		}
	}
	if expiry, err := walletstatedb.GetMetadata(metaExitTimelockEnd); err == nil && expiry != "" {
		if t, parseErr := time.Parse(time.RFC3339, expiry); parseErr == nil {
			info.TimelockExpiry = &t
		}
	}
	s.exitInfo = info
}

// ExecuteExit broadcasts the stored exit transaction for the chosen path.
// Eligibility is re-checked at call time, and the broadcast goes through
// public explorers, so a Disconnected or Dropped provider session does not
// block it. Either one transaction is broadcast or nothing is submitted.
//
// feeRate is ignored here: the fee of a stored exit transaction is fixed
// when the provider signs it. Raising the fee means spending its output at
// the chosen rate through the recovery builder instead.
func (s *Session) ExecuteExit(ctx context.Context, path ExitPath, feeRate uint64, destination string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanExecute(s.exitInfo, path, s.now()) {
		return "", fmt.Errorf("%w: %s path is not currently executable", ErrExitPathUnavailable, path)
	}

	var stored []walletstatedb.SQLiteExitTransaction
	if walletstatedb.DB != nil {
		var err error
		stored, err = walletstatedb.GetExitTransactions(path.String())
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrProvider, err)
		}
	}
	if len(stored) == 0 {
		return "", fmt.Errorf("%w: no stored exit transaction for %s path", ErrExitPathUnavailable, path)
	}
	exitTx := stored[0]

	msgTx, err := recovery.ParseRawTransaction(hex.EncodeToString(exitTx.RawHex))
	if err != nil {
		return "", err
	}

	txid, verified, err := s.broadcaster.BroadcastAndVerify(msgTx)
	if err != nil {
		return "", fmt.Errorf("%w: exit broadcast failed: %v", ErrProvider, err)
	}
	if !verified {
		log.Printf("Exit transaction %s broadcast but not yet visible in mempool", txid.String())
	}

	logger.Info("Emergency exit broadcast via ", path.String(), " path: ", txid.String())

	tx := &Transaction{
		ID:         txid.String(),
		Kind:       TxEmergencyExit,
		AmountSats: exitTx.AmountSats,
		Status:     StatusPending,
		Address:    destination,
		IsExitTx:   true,
		Timestamp:  s.now(),
	}
	if tx.Address == "" {
		tx.Address = exitTx.Address
	}
	s.txs[tx.ID] = tx
	s.persistTxLocked(tx)

	// Refreshes are best-effort: the provider may be the very outage this
	// exit is escaping.
	if s.state.Status == Connected {
		if err := s.refreshBalanceLocked(ctx); err != nil {
			log.Printf("Balance refresh after exit failed: %v", err)
		}
		if err := s.refreshHistoryLocked(ctx); err != nil {
			log.Printf("History refresh after exit failed: %v", err)
		}
	}

	return txid.String(), nil
}
