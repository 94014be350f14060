package wallet

import (
	"context"
	"fmt"
	"log"

	"github.com/hashline-labs/walletd/internal/logger"
)

// Connect establishes a provider session. On failure the state remains
// Disconnected and the failure is returned to the caller.
func (s *Session) Connect(ctx context.Context, walletType, walletAddress string) (ConnectionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status == Connected {
		return s.state, nil
	}
	if s.state.Status == Connecting || s.state.Status == Reconnecting {
		return s.state, fmt.Errorf("%w: connection attempt already in progress", ErrConnectionFailed)
	}

	s.state = ConnectionState{
		Status:        Connecting,
		WalletType:    walletType,
		WalletAddress: walletAddress,
	}

	if err := s.provider.Connect(ctx, walletType, walletAddress); err != nil {
		s.state.Status = Disconnected
		s.state.LastError = err.Error()
		return s.state, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s.state.Status = Connected
	s.state.LastError = ""
	s.autoReconnected = false

	if err := s.store.Save(true, walletType, walletAddress); err != nil {
		log.Printf("Error persisting session flag: %v", err)
		logger.Error("Error persisting session flag: ", err)
	}

	s.afterConnectLocked(ctx)
	return s.state, nil
}

// Disconnect ends the provider session and clears the persisted flag. Local
// state is reset even when the provider call fails.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status == Disconnected {
		return nil
	}

	err := s.provider.Disconnect(ctx)

	s.state.Status = Disconnected
	s.state.ReconnectAttempts = 0
	s.state.LastError = ""
	s.balance = nil

	if saveErr := s.store.Clear(s.state.WalletType, s.state.WalletAddress); saveErr != nil {
		log.Printf("Error clearing session flag: %v", saveErr)
		logger.Error("Error clearing session flag: ", saveErr)
	}

	if err != nil {
		return fmt.Errorf("%w: disconnect: %v", ErrProvider, err)
	}
	return nil
}

// Reconnect retries the dropped provider session. It is only meaningful from
// Dropped or Reconnecting, attempts are strictly sequential, and the fourth
// attempt of an episode fails without another provider call.
func (s *Session) Reconnect(ctx context.Context) (ConnectionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectLocked(ctx)
}

func (s *Session) reconnectLocked(ctx context.Context) (ConnectionState, error) {
	if s.state.Status != Dropped && s.state.Status != Reconnecting {
		return s.state, fmt.Errorf("%w: reconnect requires a dropped session", ErrConnectionFailed)
	}

	if s.state.ReconnectAttempts >= maxReconnectAttempts {
		return s.state, fmt.Errorf("%w: %d reconnect attempts exhausted, disconnect and connect manually", ErrRetryLimitExceeded, maxReconnectAttempts)
	}

	s.state.Status = Reconnecting
	s.state.ReconnectAttempts++

	if err := s.provider.Connect(ctx, s.state.WalletType, s.state.WalletAddress); err != nil {
		s.state.Status = Dropped
		s.state.LastError = err.Error()
		return s.state, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s.state.Status = Connected
	s.state.LastError = ""

	if err := s.store.Save(true, s.state.WalletType, s.state.WalletAddress); err != nil {
		log.Printf("Error persisting session flag: %v", err)
		logger.Error("Error persisting session flag: ", err)
	}

	s.afterConnectLocked(ctx)
	return s.state, nil
}

// HandleNetworkChange reacts to a network availability transition. Going
// offline while Connected drops the session without disconnecting it; coming
// back online triggers exactly one auto reconnect per drop episode.
func (s *Session) HandleNetworkChange(online bool) {
	s.mu.Lock()

	s.networkOnline = online

	if !online && s.state.Status == Connected {
		s.state.Status = Dropped
		s.autoReconnected = false
		s.appendNoticeLocked("network connection lost, wallet session dropped")
		log.Println("Network offline while connected: session dropped")
		s.mu.Unlock()
		return
	}

	if online && s.state.Status == Dropped && !s.autoReconnected {
		s.autoReconnected = true
		s.mu.Unlock()

		// Reconnect takes the session lock itself; run it to completion
		// before returning so attempts stay sequential.
		if _, err := s.Reconnect(s.ctx); err != nil {
			log.Printf("Automatic reconnect failed: %v", err)
			s.mu.Lock()
			s.appendNoticeLocked("automatic reconnect failed: " + err.Error())
			s.mu.Unlock()
		}
		return
	}

	s.mu.Unlock()
}

// autoResume performs the best-effort reconnect on startup when the previous
// process was connected. Failure is silent: the flag is cleared and no error
// reaches the user.
func (s *Session) autoResume() {
	connected, walletType, walletAddress, err := s.store.Load()
	if err != nil {
		log.Printf("Error reading session file: %v", err)
		logger.Error("Error reading session file: ", err)
		return
	}
	if !connected || walletAddress == "" {
		return
	}

	log.Printf("Resuming previous wallet session for %s", walletAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.WalletType = walletType
	s.state.WalletAddress = walletAddress
	s.state.Status = Connecting

	if err := s.provider.Connect(s.ctx, walletType, walletAddress); err != nil {
		s.state.Status = Disconnected
		if clearErr := s.store.Clear(walletType, walletAddress); clearErr != nil {
			log.Printf("Error clearing session flag: %v", clearErr)
		}
		log.Printf("Session resume failed, will wait for manual connect: %v", err)
		logger.Info("Session resume failed: ", err)
		return
	}

	s.state.Status = Connected
	s.afterConnectLocked(s.ctx)
	log.Println("Previous wallet session resumed")
}

// afterConnectLocked runs the refreshes every successful connect or
// reconnect triggers. Failures here are non-fatal notices.
func (s *Session) afterConnectLocked(ctx context.Context) {
	if err := s.refreshBalanceLocked(ctx); err != nil {
		log.Printf("Balance refresh after connect failed: %v", err)
		s.appendNoticeLocked("balance refresh failed: " + err.Error())
	}
	if err := s.refreshExitInfoLocked(ctx); err != nil {
		log.Printf("Exit info refresh after connect failed: %v", err)
		s.appendNoticeLocked("exit info refresh failed: " + err.Error())
	}
	if err := s.refreshHistoryLocked(ctx); err != nil {
		log.Printf("History refresh after connect failed: %v", err)
		s.appendNoticeLocked("history refresh failed: " + err.Error())
	}
}
