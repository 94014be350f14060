package wallet

import (
	"time"
)

// ConnectionStatus is the lifecycle state of the provider session
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
	Dropped
	Reconnecting
)

func (s ConnectionStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Dropped:
		return "dropped"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Reconnects and transaction retries share the same per-episode cap.
const (
	maxReconnectAttempts = 3
	maxRecoveryAttempts  = 3
)

// ConnectionState is the full connection record owned by the session
type ConnectionState struct {
	Status            ConnectionStatus `json:"status"`
	WalletType        string           `json:"wallet_type"`
	WalletAddress     string           `json:"wallet_address"`
	ReconnectAttempts uint8            `json:"reconnect_attempts"`
	LastError         string           `json:"last_error,omitempty"`
}

// TxKind classifies a tracked transaction
type TxKind string

const (
	TxSend          TxKind = "send"
	TxReceive       TxKind = "receive"
	TxContract      TxKind = "contract"
	TxEmergencyExit TxKind = "emergency_exit"
)

// TxState is the tracked status of a transaction
type TxState string

const (
	StatusPending   TxState = "pending"
	StatusConfirmed TxState = "confirmed"
	StatusFailed    TxState = "failed"
)

// SendIntent captures the parameters of a submission so a failed
// transaction can be resubmitted unchanged.
type SendIntent struct {
	Kind       TxKind `json:"kind"`
	Address    string `json:"address"`
	AmountSats uint64 `json:"amount_sats"`
	FeeRate    uint64 `json:"fee_rate"`
	Offchain   bool   `json:"offchain"`
}

// Transaction is a tracked wallet transaction. Identity is the
// provider-assigned ID.
type Transaction struct {
	ID               string    `json:"id"`
	Kind             TxKind    `json:"kind"`
	AmountSats       uint64    `json:"amount_sats"`
	FeeSats          uint64    `json:"fee_sats"`
	Status           TxState   `json:"status"`
	Confirmations    uint32    `json:"confirmations"`
	Address          string    `json:"address"`
	RecoveryAttempts uint8     `json:"recovery_attempts"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	IsExitTx         bool      `json:"is_exit_tx"`
	Timestamp        time.Time `json:"timestamp"`

	// intent is retained so Retry can resubmit with identical parameters
	intent *SendIntent
}

// ExitPath is a tagged selection between the two independent exit paths
type ExitPath int

const (
	ExitPathPreSigned ExitPath = iota
	ExitPathTimelock
)

func (p ExitPath) String() string {
	switch p {
	case ExitPathPreSigned:
		return "presigned"
	case ExitPathTimelock:
		return "timelock"
	default:
		return "unknown"
	}
}

// ParseExitPath maps the wire name of an exit path to its tag
func ParseExitPath(s string) (ExitPath, bool) {
	switch s {
	case "presigned":
		return ExitPathPreSigned, true
	case "timelock":
		return ExitPathTimelock, true
	default:
		return ExitPathPreSigned, false
	}
}

// Notice is a non-fatal event surfaced to the dashboard
type Notice struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}
