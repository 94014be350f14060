package wallet

import (
	"context"
	"fmt"

	"github.com/hashline-labs/walletd/internal/provider"
)

// Balance returns a copy of the last provider-reported balance, or nil when
// no refresh has succeeded yet.
func (s *Session) Balance() *provider.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balance == nil {
		return nil
	}
	balance := *s.balance
	return &balance
}

// RefreshBalance fetches the balance from the provider. The cached balance
// is replaced wholesale, never adjusted in place: settlement timing is
// provider-controlled, so a local guess would drift.
func (s *Session) RefreshBalance(ctx context.Context) (*provider.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != Connected {
		return nil, fmt.Errorf("%w: wallet is not connected", ErrConnectionFailed)
	}

	if err := s.refreshBalanceLocked(ctx); err != nil {
		return nil, err
	}
	balance := *s.balance
	return &balance, nil
}

func (s *Session) refreshBalanceLocked(ctx context.Context) error {
	balance, err := s.provider.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	s.balance = balance
	return nil
}
