package api

import (
	"github.com/golang-jwt/jwt/v4"

	"github.com/hashline-labs/walletd/internal/provider"
	"github.com/hashline-labs/walletd/internal/wallet"
)

// API serves the dashboard-facing HTTP surface over the wallet session
type API struct {
	Session  *wallet.Session
	Health   *provider.HealthWatcher
	Network  string
	HttpMode bool
}

type Claims struct {
	jwt.RegisteredClaims
}

type contextKey string

type ConnectRequest struct {
	WalletType    string `json:"wallet_type"`
	WalletAddress string `json:"wallet_address"`
}

type SendRequest struct {
	Kind       string `json:"kind"`
	Address    string `json:"address"`
	AmountSats uint64 `json:"amount_sats"`
	FeeRate    uint64 `json:"fee_rate"`
	Offchain   bool   `json:"offchain"`
}

type ExitRequest struct {
	Path        string `json:"path"` // presigned or timelock
	FeeRate     uint64 `json:"fee_rate"`
	Destination string `json:"destination"`
}

type RecoveryRequest struct {
	RawTxHex    string `json:"raw_tx_hex"`
	Destination string `json:"destination"`
	FeeRate     uint64 `json:"fee_rate"`
}

type NetworkRequest struct {
	Online bool `json:"online"`
}

type LoginRequest struct {
	APIKey string `json:"api_key"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type StatusResponse struct {
	Connection           wallet.ConnectionState `json:"connection"`
	CoordinatorAvailable bool                   `json:"coordinator_available"`
	Notices              []wallet.Notice        `json:"notices,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type TxIDResponse struct {
	TxID string `json:"txid"`
}
