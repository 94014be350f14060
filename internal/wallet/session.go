package wallet

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	walletstatedb "github.com/hashline-labs/walletd/internal/database"
	"github.com/hashline-labs/walletd/internal/logger"
	"github.com/hashline-labs/walletd/internal/provider"
)

const maxNotices = 50

// Broadcaster pushes a raw transaction to the public network, reporting the
// txid and whether it was seen in a mempool. Satisfied by
// broadcast.Broadcaster; the session never broadcasts through the provider.
type Broadcaster interface {
	BroadcastAndVerify(tx *wire.MsgTx) (chainhash.Hash, bool, error)
}

// Config assembles a Session
type Config struct {
	Provider    provider.Client
	Broadcaster Broadcaster
	Store       *SessionStore

	BalanceRefreshInterval time.Duration
	TxPollInterval         time.Duration
	ConfirmationThreshold  uint32

	// Now is the session clock; nil means time.Now
	Now func() time.Time
}

// Session is the single owner of all wallet session state. Every state
// transition runs under one mutex so no two mutating operations interleave;
// the background tickers are owned here and cancelled on Close, never by
// callers.
type Session struct {
	mu sync.Mutex

	provider    provider.Client
	broadcaster Broadcaster
	store       *SessionStore
	now         func() time.Time

	balanceInterval time.Duration
	pollInterval    time.Duration
	confThreshold   uint32

	state    ConnectionState
	balance  *provider.Balance
	txs      map[string]*Transaction
	exitInfo *provider.ExitInfo
	notices  []Notice

	// networkOnline mirrors the last reported network transition;
	// autoReconnected guards the once-per-drop-episode auto reconnect.
	networkOnline   bool
	autoReconnected bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(cfg Config) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.BalanceRefreshInterval <= 0 {
		cfg.BalanceRefreshInterval = 30 * time.Second
	}
	if cfg.TxPollInterval <= 0 {
		cfg.TxPollInterval = 12 * time.Second
	}
	if cfg.ConfirmationThreshold == 0 {
		cfg.ConfirmationThreshold = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		provider:        cfg.Provider,
		broadcaster:     cfg.Broadcaster,
		store:           cfg.Store,
		now:             now,
		balanceInterval: cfg.BalanceRefreshInterval,
		pollInterval:    cfg.TxPollInterval,
		confThreshold:   cfg.ConfirmationThreshold,
		state:           ConnectionState{Status: Disconnected},
		txs:             make(map[string]*Transaction),
		networkOnline:   true,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start loads persisted state, attempts the best-effort auto-resume and
// starts the balance and polling loops.
func (s *Session) Start() {
	s.loadPersistedState()
	s.autoResume()

	s.wg.Add(2)
	go s.balanceLoop()
	go s.pollLoop()
}

// Close stops the background loops. In-flight provider calls are abandoned;
// the next process start reconciles status from the provider.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

// State returns a copy of the current connection state
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notices drains and returns the accumulated non-fatal notices
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *Session) appendNoticeLocked(msg string) {
	s.notices = append(s.notices, Notice{Message: msg, Time: s.now()})
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
	logger.Info(msg)
}

func (s *Session) balanceLoop() {
	defer s.wg.Done()

	balanceTicker := time.NewTicker(s.balanceInterval)
	defer balanceTicker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-balanceTicker.C:
			s.mu.Lock()
			if s.state.Status == Connected {
				if err := s.refreshBalanceLocked(s.ctx); err != nil {
					// Background failure: notice only, state unchanged
					log.Printf("Periodic balance refresh failed: %v", err)
					s.appendNoticeLocked("balance refresh failed: " + err.Error())
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) pollLoop() {
	defer s.wg.Done()

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-pollTicker.C:
			s.mu.Lock()
			if s.state.Status == Connected {
				s.pollPendingLocked()
			}
			s.mu.Unlock()
		}
	}
}

// loadPersistedState restores the transaction cache and exit info from the
// local database so exits work with the provider unreachable.
func (s *Session) loadPersistedState() {
	if walletstatedb.DB == nil {
		return
	}

	records, err := walletstatedb.GetTransactions()
	if err != nil {
		log.Printf("Error loading cached transactions: %v", err)
		logger.Error("Error loading cached transactions: ", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		rec := records[i]
		tx := &Transaction{
			ID:               rec.TxID,
			Kind:             TxKind(rec.Kind),
			AmountSats:       rec.AmountSats,
			FeeSats:          rec.FeeSats,
			Status:           TxState(rec.Status),
			Confirmations:    rec.Confirmations,
			Address:          rec.Address,
			RecoveryAttempts: rec.RecoveryAttempts,
			ErrorMessage:     rec.ErrorMessage,
			IsExitTx:         rec.IsExitTx,
			Timestamp:        rec.Timestamp,
		}
		// Locally submitted transactions get their submission parameters
		// back so Retry keeps working across a daemon restart.
		if tx.Kind == TxSend || tx.Kind == TxContract {
			tx.intent = &SendIntent{
				Kind:       tx.Kind,
				Address:    rec.Address,
				AmountSats: rec.AmountSats,
				FeeRate:    rec.FeeRate,
				Offchain:   rec.Offchain,
			}
		}
		s.txs[rec.TxID] = tx
	}
	s.loadExitInfoLocked()
}

func (s *Session) persistTxLocked(tx *Transaction) {
	if walletstatedb.DB == nil {
		return
	}
	record := &walletstatedb.SQLiteTransaction{
		TxID:             tx.ID,
		Kind:             string(tx.Kind),
		AmountSats:       tx.AmountSats,
		FeeSats:          tx.FeeSats,
		Status:           string(tx.Status),
		Confirmations:    tx.Confirmations,
		Address:          tx.Address,
		RecoveryAttempts: tx.RecoveryAttempts,
		ErrorMessage:     tx.ErrorMessage,
		IsExitTx:         tx.IsExitTx,
		Timestamp:        tx.Timestamp,
	}
	if tx.intent != nil {
		record.FeeRate = tx.intent.FeeRate
		record.Offchain = tx.intent.Offchain
	}
	if err := walletstatedb.SaveTransaction(record); err != nil {
		log.Printf("Error persisting transaction %s: %v", tx.ID, err)
		logger.Error("Error persisting transaction: ", err)
	}
}

// Transactions returns a snapshot of the active transaction set, newest first
func (s *Session) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
