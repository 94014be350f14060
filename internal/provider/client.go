package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to the wallet provider over its REST API
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type connectRequest struct {
	WalletType    string `json:"wallet_type"`
	WalletAddress string `json:"wallet_address"`
}

type sendRequest struct {
	Address    string `json:"address"`
	AmountSats uint64 `json:"amount_sats"`
	FeeRate    uint64 `json:"fee_rate"`
}

type sendResponse struct {
	TxID string `json:"txid"`
}

// Error codes the provider attaches to failed requests
const (
	ErrCodeInsufficientBalance = "insufficient_balance"
)

// APIError is a structured failure decoded from a provider error response.
// Code may be empty when the provider returned an unstructured body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider returned status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

func (c *HTTPClient) Connect(ctx context.Context, walletType, walletAddress string) error {
	req := connectRequest{WalletType: walletType, WalletAddress: walletAddress}
	return c.post(ctx, "/v1/session/connect", req, nil)
}

func (c *HTTPClient) Disconnect(ctx context.Context) error {
	return c.post(ctx, "/v1/session/disconnect", nil, nil)
}

func (c *HTTPClient) GetBalance(ctx context.Context) (*Balance, error) {
	var balance Balance
	if err := c.get(ctx, "/v1/wallet/balance", &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

func (c *HTTPClient) SendOnchain(ctx context.Context, address string, amountSats, feeRate uint64) (string, error) {
	req := sendRequest{Address: address, AmountSats: amountSats, FeeRate: feeRate}
	var resp sendResponse
	if err := c.post(ctx, "/v1/wallet/send/onchain", req, &resp); err != nil {
		return "", err
	}
	return resp.TxID, nil
}

func (c *HTTPClient) SendOffchain(ctx context.Context, address string, amountSats, feeRate uint64) (string, error) {
	req := sendRequest{Address: address, AmountSats: amountSats, FeeRate: feeRate}
	var resp sendResponse
	if err := c.post(ctx, "/v1/wallet/send/offchain", req, &resp); err != nil {
		return "", err
	}
	return resp.TxID, nil
}

func (c *HTTPClient) GetTransactionStatus(ctx context.Context, txID string) (*TxStatus, error) {
	var status TxStatus
	if err := c.get(ctx, "/v1/transactions/"+txID+"/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *HTTPClient) GetExitInfo(ctx context.Context) (*ExitInfo, error) {
	var info ExitInfo
	if err := c.get(ctx, "/v1/wallet/exit-info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) GetTransactionHistory(ctx context.Context) ([]HistoryEntry, error) {
	var history []HistoryEntry
	if err := c.get(ctx, "/v1/transactions", &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}

		var structured struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if jsonErr := json.Unmarshal(body, &structured); jsonErr == nil && structured.Error != "" {
			apiErr.Message = structured.Error
			apiErr.Code = structured.Code
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %v", err)
	}
	return nil
}
