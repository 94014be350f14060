package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/hashline-labs/walletd/internal/logger"
)

// HealthWatcher polls the coordinator availability endpoint on a fixed
// interval, independent of wallet connectivity. It only feeds a warning
// banner; no exit operation depends on it.
type HealthWatcher struct {
	url      string
	interval time.Duration
	client   *http.Client

	mu        sync.Mutex
	available bool
	checked   bool

	cancel context.CancelFunc
	done   chan struct{}
}

type healthResponse struct {
	Available bool `json:"available"`
}

func NewHealthWatcher(coordinatorURL string, interval time.Duration) *HealthWatcher {
	return &HealthWatcher{
		url:       coordinatorURL + "/v1/health",
		interval:  interval,
		client:    &http.Client{Timeout: 10 * time.Second},
		available: true,
	}
}

// Start begins the periodic availability poll
func (w *HealthWatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)

		healthTicker := time.NewTicker(w.interval)
		defer healthTicker.Stop()

		w.checkOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-healthTicker.C:
				w.checkOnce(ctx)
			}
		}
	}()
}

// Stop cancels the poll loop and waits for it to finish
func (w *HealthWatcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Available reports the last observed coordinator availability.
// Before the first check completes it optimistically reports true.
func (w *HealthWatcher) Available() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.available
}

// Checked reports whether at least one poll has completed
func (w *HealthWatcher) Checked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checked
}

func (w *HealthWatcher) checkOnce(ctx context.Context) {
	available, err := w.probe(ctx)
	if err != nil {
		// Background failure: surface as a notice, never fatal
		log.Printf("Coordinator health check failed: %v", err)
		logger.Error("Coordinator health check failed: ", err)
		available = false
	}

	w.mu.Lock()
	prev := w.available
	w.available = available
	w.checked = true
	w.mu.Unlock()

	if prev && !available {
		log.Println("Coordinator is unavailable. Emergency exit paths remain usable.")
		logger.Info("Coordinator is unavailable")
	} else if !prev && available {
		log.Println("Coordinator is available again.")
		logger.Info("Coordinator is available again")
	}
}

func (w *HealthWatcher) probe(ctx context.Context) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, w.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, fmt.Errorf("failed to decode health response: %v", err)
	}
	return health.Available, nil
}
