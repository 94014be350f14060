package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashline-labs/walletd/internal/logger"
)

func (s *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !Authenticate(req.APIKey) {
		logger.Error("Rejected login with bad API key")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := IssueToken(time.Now())
	if err != nil {
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

func (s *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	available := true
	if s.Health != nil {
		available = s.Health.Available()
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Connection:           s.Session.State(),
		CoordinatorAvailable: available,
		Notices:              s.Session.Notices(),
	})
}

// handleHealth reports coordinator availability for the dashboard's warning
// banner. Advisory only; exits do not depend on it.
func (s *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	available, checked := true, false
	if s.Health != nil {
		available = s.Health.Available()
		checked = s.Health.Checked()
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"coordinator_available": available,
		"checked":               checked,
	})
}

func (s *API) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	state, err := s.Session.Connect(r.Context(), req.WalletType, req.WalletAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *API) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.Session.Disconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Session.State())
}

func (s *API) handleReconnect(w http.ResponseWriter, r *http.Request) {
	state, err := s.Session.Reconnect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleNetworkChange receives browser online/offline transitions from the
// dashboard, the session's only source of network availability events.
func (s *API) handleNetworkChange(w http.ResponseWriter, r *http.Request) {
	var req NetworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.Session.HandleNetworkChange(req.Online)
	writeJSON(w, http.StatusOK, s.Session.State())
}

func (s *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance := s.Session.Balance()
	if balance == nil {
		http.Error(w, "No balance available yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *API) handleBalanceRefresh(w http.ResponseWriter, r *http.Request) {
	balance, err := s.Session.RefreshBalance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}
