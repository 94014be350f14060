package provider

import (
	"context"
	"time"
)

// Balance is the provider-reported balance breakdown in satoshis.
// Totals are authoritative on the provider side and never derived locally.
type Balance struct {
	Total     uint64 `json:"total"`
	Available uint64 `json:"available"`
	Pending   uint64 `json:"pending"`
	Locked    uint64 `json:"locked"`

	Onchain struct {
		Confirmed   uint64 `json:"confirmed"`
		Unconfirmed uint64 `json:"unconfirmed"`
	} `json:"onchain"`

	Offchain struct {
		Settled uint64 `json:"settled"`
		Pending uint64 `json:"pending"`
	} `json:"offchain"`
}

// TxStatus is the provider-reported status of a single transaction
type TxStatus struct {
	TxID          string `json:"txid"`
	Status        string `json:"status"` // pending, confirmed, failed
	Confirmations uint32 `json:"confirmations"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// HistoryEntry is one transaction in the provider-side history
type HistoryEntry struct {
	TxID          string    `json:"txid"`
	Kind          string    `json:"kind"`
	AmountSats    uint64    `json:"amount_sats"`
	FeeSats       uint64    `json:"fee_sats"`
	Status        string    `json:"status"`
	Confirmations uint32    `json:"confirmations"`
	Address       string    `json:"address"`
	IsExitTx      bool      `json:"is_exit_tx"`
	Timestamp     time.Time `json:"timestamp"`
}

// ExitTransaction is a pre-signed withdrawal transaction issued by the
// provider at deposit time, held locally for unilateral recovery.
type ExitTransaction struct {
	TxID       string    `json:"txid"`
	Path       string    `json:"path"` // presigned or timelock
	AmountSats uint64    `json:"amount_sats"`
	Address    string    `json:"address"`
	IssuedAt   time.Time `json:"issued_at"`
	RawHex     string    `json:"raw_hex"`
}

// ExitInfo describes which unilateral exit paths the provider has set up
// for this wallet. The record is authoritative and fetched, not computed.
type ExitInfo struct {
	HasPreSignedExit bool              `json:"has_presigned_exit"`
	TimelockStart    *time.Time        `json:"timelock_start,omitempty"`
	TimelockExpiry   *time.Time        `json:"timelock_expiry,omitempty"`
	ExitTransactions []ExitTransaction `json:"exit_transactions,omitempty"`
}

// Client is the wallet provider API consumed by the session core.
// Every call is a remote call and may block until its context is cancelled.
type Client interface {
	Connect(ctx context.Context, walletType, walletAddress string) error
	Disconnect(ctx context.Context) error
	GetBalance(ctx context.Context) (*Balance, error)
	SendOnchain(ctx context.Context, address string, amountSats, feeRate uint64) (string, error)
	SendOffchain(ctx context.Context, address string, amountSats, feeRate uint64) (string, error)
	GetTransactionStatus(ctx context.Context, txID string) (*TxStatus, error)
	GetExitInfo(ctx context.Context) (*ExitInfo, error)
	GetTransactionHistory(ctx context.Context) ([]HistoryEntry, error)
}
