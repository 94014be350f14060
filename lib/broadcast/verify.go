package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/checksum0/go-electrum/electrum"
)

// ElectrumConfig holds connection settings for an Electrum server
type ElectrumConfig struct {
	ServerAddr string
	UseSSL     bool
}

// VerifyTransactionInMempool checks a public explorer for the transaction
func (b *Broadcaster) VerifyTransactionInMempool(txHash chainhash.Hash) (bool, error) {
	url := fmt.Sprintf("https://api.blockcypher.com/v1/btc/main/txs/%s", txHash.String())
	if b.network == "testnet" {
		url = fmt.Sprintf("https://api.blockcypher.com/v1/btc/test3/txs/%s", txHash.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to get transaction: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("failed to get transaction: status code %d", resp.StatusCode)
	}

	var result map[string]interface{}
	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return false, fmt.Errorf("failed to decode response: %v", err)
	}

	return result["hash"] == txHash.String(), nil
}

// CreateElectrumClient connects to an Electrum server
func CreateElectrumClient(config ElectrumConfig) (*electrum.Client, error) {
	ctx := context.Background()
	if config.UseSSL {
		return electrum.NewClientSSL(ctx, config.ServerAddr, nil)
	}
	return electrum.NewClientTCP(ctx, config.ServerAddr)
}

// VerifyTransactionInElectrumMempool checks an Electrum server for the transaction
func VerifyTransactionInElectrumMempool(client *electrum.Client, txid string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := client.GetRawTransaction(ctx, txid)
	if err != nil {
		return false, fmt.Errorf("error checking Electrum mempool: %v", err)
	}
	return tx != "", nil
}
