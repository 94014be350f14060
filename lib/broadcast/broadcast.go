package broadcast

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/viper"
)

// Broadcaster pushes raw transactions to public block explorers. It never
// touches the wallet provider, so exits stay broadcastable while the
// provider session is down.
type Broadcaster struct {
	network string // mainnet or testnet
	client  *http.Client
}

func New(network string) *Broadcaster {
	return &Broadcaster{
		network: network,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// BroadcastTransaction tries each public API in turn and returns the txid of
// the first successful broadcast.
func (b *Broadcaster) BroadcastTransaction(tx *wire.MsgTx) (chainhash.Hash, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return chainhash.Hash{}, fmt.Errorf("failed to serialize transaction: %v", err)
	}
	txHex := hex.EncodeToString(buf.Bytes())

	// Try mempool.space API
	err := b.broadcastToMempoolSpace(txHex)
	if err == nil {
		return tx.TxHash(), nil
	}
	log.Printf("mempool.space broadcast failed: %v. Trying BlockCypher...", err)

	// Try BlockCypher API
	err = b.broadcastToBlockCypher(txHex)
	if err == nil {
		return tx.TxHash(), nil
	}
	log.Printf("BlockCypher broadcast failed: %v. Trying Blockstream...", err)

	// Try Blockstream API
	err = b.broadcastToBlockstream(txHex)
	if err == nil {
		return tx.TxHash(), nil
	}
	log.Printf("Blockstream broadcast failed: %v", err)

	return chainhash.Hash{}, fmt.Errorf("all API broadcasts failed")
}

// BroadcastAndVerify broadcasts the transaction and falls back to a mempool
// check when every API rejects it, in case an earlier attempt went through.
func (b *Broadcaster) BroadcastAndVerify(tx *wire.MsgTx) (chainhash.Hash, bool, error) {
	txid, err := b.BroadcastTransaction(tx)
	if err == nil {
		log.Printf("Transaction broadcast successfully via API. TxID: %s", txid.String())
		return txid, true, nil
	}

	log.Printf("API broadcast failed: %v. Performing mempool check...", err)
	time.Sleep(5 * time.Second)

	inMempool, verifyErr := b.VerifyTransactionInMempool(tx.TxHash())
	if verifyErr != nil {
		log.Printf("Failed to verify transaction in mempool: %v", verifyErr)
		return chainhash.Hash{}, false, fmt.Errorf("all broadcasts failed and mempool check error: %v", verifyErr)
	}

	if inMempool {
		log.Printf("Transaction found in mempool despite broadcast failures")
		return tx.TxHash(), true, nil
	}

	// Second opinion from an Electrum server before giving up
	found, electrumErr := b.verifyViaElectrum(tx.TxHash().String())
	if electrumErr != nil {
		log.Printf("Electrum mempool check failed: %v", electrumErr)
	} else if found {
		log.Printf("Transaction found in Electrum mempool despite broadcast failures")
		return tx.TxHash(), true, nil
	}

	log.Printf("Transaction not found in mempool. Broadcast likely failed.")
	return chainhash.Hash{}, false, fmt.Errorf("all broadcast attempts failed and transaction not found in mempool")
}

func (b *Broadcaster) verifyViaElectrum(txid string) (bool, error) {
	serverAddr := viper.GetString("electrum_server")
	if serverAddr == "" {
		return false, fmt.Errorf("no electrum server configured")
	}

	electrumClient, err := CreateElectrumClient(ElectrumConfig{
		ServerAddr: serverAddr,
		UseSSL:     viper.GetBool("electrum_use_ssl"),
	})
	if err != nil {
		return false, fmt.Errorf("failed to create Electrum client: %v", err)
	}
	defer electrumClient.Shutdown()

	return VerifyTransactionInElectrumMempool(electrumClient, txid)
}

func (b *Broadcaster) broadcastToMempoolSpace(txHex string) error {
	url := "https://mempool.space/api/tx"
	if b.network == "testnet" {
		url = "https://mempool.space/testnet/api/tx"
	}
	return b.broadcastToAPI(url, txHex, "text/plain")
}

func (b *Broadcaster) broadcastToBlockCypher(txHex string) error {
	url := "https://api.blockcypher.com/v1/btc/main/txs/push"
	if b.network == "testnet" {
		url = "https://api.blockcypher.com/v1/btc/test3/txs/push"
	}
	jsonData := map[string]string{"tx": txHex}
	jsonBytes, err := json.Marshal(jsonData)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %v", err)
	}
	return b.broadcastToAPI(url, string(jsonBytes), "application/json")
}

func (b *Broadcaster) broadcastToBlockstream(txHex string) error {
	url := "https://blockstream.info/api/tx"
	if b.network == "testnet" {
		url = "https://blockstream.info/testnet/api/tx"
	}
	return b.broadcastToAPI(url, txHex, "text/plain")
}

func (b *Broadcaster) broadcastToAPI(url, data, contentType string) error {
	resp, err := b.client.Post(url, contentType, bytes.NewBufferString(data))
	if err != nil {
		return fmt.Errorf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode == http.StatusOK {
		log.Printf("Transaction broadcast successfully via %s. Response: %s", url, string(body))
		return nil
	}

	return fmt.Errorf("API returned non-200 status code: %d, Body: %s", resp.StatusCode, string(body))
}
