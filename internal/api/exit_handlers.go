package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashline-labs/walletd/internal/wallet"
	"github.com/hashline-labs/walletd/lib/recovery"
)

type exitInfoResponse struct {
	HasPreSignedExit    bool       `json:"has_presigned_exit"`
	TimelockStart       *time.Time `json:"timelock_start,omitempty"`
	TimelockExpiry      *time.Time `json:"timelock_expiry,omitempty"`
	CanExecutePreSigned bool       `json:"can_execute_presigned"`
	CanExecuteTimelock  bool       `json:"can_execute_timelock"`
}

func (s *API) handleExitInfo(w http.ResponseWriter, r *http.Request) {
	info := s.Session.ExitInfo()
	if info == nil {
		refreshed, err := s.Session.RefreshExitInfo(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		info = refreshed
	}

	now := time.Now()
	writeJSON(w, http.StatusOK, exitInfoResponse{
		HasPreSignedExit:    info.HasPreSignedExit,
		TimelockStart:       info.TimelockStart,
		TimelockExpiry:      info.TimelockExpiry,
		CanExecutePreSigned: wallet.CanExecute(info, wallet.ExitPathPreSigned, now),
		CanExecuteTimelock:  wallet.CanExecute(info, wallet.ExitPathTimelock, now),
	})
}

func (s *API) handleExecuteExit(w http.ResponseWriter, r *http.Request) {
	var req ExitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	path, ok := wallet.ParseExitPath(req.Path)
	if !ok {
		writeError(w, fmt.Errorf("%w: unknown exit path %q", wallet.ErrInvalidInput, req.Path))
		return
	}

	txid, err := s.Session.ExecuteExit(r.Context(), path, req.FeeRate, req.Destination)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TxIDResponse{TxID: txid})
}

type recoveryResponse struct {
	Template *recovery.Template `json:"template"`
	PSBT     string             `json:"psbt"`
}

// handleRecoveryTemplate runs the offline recovery builder. The builder
// itself performs no network I/O; serving it over the local API is a
// convenience for the dashboard while the daemon is still reachable.
func (s *API) handleRecoveryTemplate(w http.ResponseWriter, r *http.Request) {
	var req RecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tpl, packet, err := recovery.BuildPSBT(recovery.BuildRequest{
		RawTxHex:    req.RawTxHex,
		Destination: req.Destination,
		Network:     s.Network,
		FeeRate:     req.FeeRate,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recoveryResponse{Template: tpl, PSBT: packet})
}
