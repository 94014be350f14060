package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashline-labs/walletd/internal/wallet"
)

func (s *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Session.Transactions())
}

func (s *API) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	kind := wallet.TxKind(req.Kind)
	switch kind {
	case wallet.TxSend, wallet.TxContract:
	case "":
		kind = wallet.TxSend
	default:
		writeError(w, fmt.Errorf("%w: unsupported transaction kind %q", wallet.ErrInvalidInput, req.Kind))
		return
	}

	tx, err := s.Session.Submit(r.Context(), wallet.SendIntent{
		Kind:       kind,
		Address:    req.Address,
		AmountSats: req.AmountSats,
		FeeRate:    req.FeeRate,
		Offchain:   req.Offchain,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *API) handleRetryTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tx, err := s.Session.Retry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *API) handleClearTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Session.Clear(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
