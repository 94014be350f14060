package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/viper"

	"github.com/hashline-labs/walletd/internal/provider"
	"github.com/hashline-labs/walletd/internal/wallet"
)

func NewAPI(session *wallet.Session, health *provider.HealthWatcher, network string, httpMode bool) *API {
	return &API{
		Session:  session,
		Health:   health,
		Network:  network,
		HttpMode: httpMode,
	}
}

// StartServer registers the routes and serves the dashboard API
func (s *API) StartServer() error {
	mux := http.NewServeMux()

	public := func(h http.HandlerFunc) http.HandlerFunc {
		return ApplyMiddleware(h, s.LoggingMiddleware, s.ErrorMiddleware, s.CORSMiddleware)
	}
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return ApplyMiddleware(h, s.JWTMiddleware, s.LoggingMiddleware, s.ErrorMiddleware, s.CORSMiddleware)
	}

	mux.HandleFunc("POST /v1/auth/login", public(s.handleLogin))
	mux.HandleFunc("GET /v1/status", public(s.handleStatus))
	mux.HandleFunc("GET /v1/health", public(s.handleHealth))

	mux.HandleFunc("POST /v1/wallet/connect", protected(s.handleConnect))
	mux.HandleFunc("POST /v1/wallet/disconnect", protected(s.handleDisconnect))
	mux.HandleFunc("POST /v1/wallet/reconnect", protected(s.handleReconnect))
	mux.HandleFunc("POST /v1/network", protected(s.handleNetworkChange))
	mux.HandleFunc("GET /v1/wallet/balance", protected(s.handleBalance))
	mux.HandleFunc("POST /v1/wallet/balance/refresh", protected(s.handleBalanceRefresh))

	mux.HandleFunc("GET /v1/transactions", protected(s.handleListTransactions))
	mux.HandleFunc("POST /v1/transactions", protected(s.handleSubmitTransaction))
	mux.HandleFunc("POST /v1/transactions/{id}/retry", protected(s.handleRetryTransaction))
	mux.HandleFunc("DELETE /v1/transactions/{id}", protected(s.handleClearTransaction))

	mux.HandleFunc("GET /v1/exit/info", protected(s.handleExitInfo))
	mux.HandleFunc("POST /v1/exit/execute", protected(s.handleExecuteExit))
	mux.HandleFunc("POST /v1/recovery/template", protected(s.handleRecoveryTemplate))

	addr := fmt.Sprintf(":%d", viper.GetInt("api_port"))
	log.Printf("Starting wallet API server on %s", addr)

	if viper.GetBool("use_https") {
		return http.ListenAndServeTLS(addr, viper.GetString("cert_file"), viper.GetString("key_file"), mux)
	}
	return http.ListenAndServe(addr, mux)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError maps the core error taxonomy onto HTTP responses so the
// dashboard can tell "still trying" from "gave up".
func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, wallet.ErrInvalidInput):
		resp.Kind = "invalid_input"
		status = http.StatusBadRequest
	case errors.Is(err, wallet.ErrFeeExceedsValue):
		resp.Kind = "fee_exceeds_value"
		status = http.StatusBadRequest
	case errors.Is(err, wallet.ErrRetryLimitExceeded):
		resp.Kind = "retry_limit_exceeded"
		status = http.StatusConflict
	case errors.Is(err, wallet.ErrExitPathUnavailable):
		resp.Kind = "exit_path_unavailable"
		status = http.StatusConflict
	case errors.Is(err, wallet.ErrInsufficientBalance):
		resp.Kind = "insufficient_balance"
		status = http.StatusConflict
	case errors.Is(err, wallet.ErrConnectionFailed):
		resp.Kind = "connection_failed"
		status = http.StatusBadGateway
	case errors.Is(err, wallet.ErrProvider):
		resp.Kind = "provider_error"
		status = http.StatusBadGateway
	}

	writeJSON(w, status, resp)
}
