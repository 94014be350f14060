package recovery

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Build constructs a recovery template from a raw pre-signed exit transaction,
// a destination address and a fee rate. It performs no network I/O and no
// signing: the template is handed to an external, possibly air-gapped signer.
func Build(req BuildRequest) (*Template, error) {
	tpl, _, err := construct(req)
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// construct parses and validates the inputs and assembles both the template
// and the unsigned spend transaction it describes.
func construct(req BuildRequest) (*Template, *wire.MsgTx, error) {
	params, err := chainParams(req.Network)
	if err != nil {
		return nil, nil, err
	}

	if req.FeeRate == 0 {
		return nil, nil, fmt.Errorf("%w: fee rate must be positive", ErrInvalidInput)
	}

	sourceTx, err := ParseRawTransaction(req.RawTxHex)
	if err != nil {
		return nil, nil, err
	}

	if len(sourceTx.TxOut) <= SpendableOutputIndex {
		return nil, nil, fmt.Errorf("%w: exit transaction has no output at index %d", ErrInvalidInput, SpendableOutputIndex)
	}
	sourceOut := sourceTx.TxOut[SpendableOutputIndex]
	if sourceOut.Value <= 0 {
		return nil, nil, fmt.Errorf("%w: exit output value is zero", ErrInvalidInput)
	}
	inputValue := uint64(sourceOut.Value)

	destAddr, err := btcutil.DecodeAddress(req.Destination, params)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad destination address: %v", ErrInvalidInput, err)
	}
	if !destAddr.IsForNet(params) {
		return nil, nil, fmt.Errorf("%w: destination address is not valid for %s", ErrInvalidInput, req.Network)
	}

	destScript, err := txscript.PayToAddrScript(destAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cannot build destination script: %v", ErrInvalidInput, err)
	}

	// Assemble the unsigned spend: one input from the exit output, one
	// output to the destination. The output value is fixed up after the
	// fee is known.
	spendTx := wire.NewMsgTx(wire.TxVersion)
	sourceHash := sourceTx.TxHash()
	prevOut := wire.NewOutPoint(&sourceHash, SpendableOutputIndex)
	spendTx.AddTxIn(wire.NewTxIn(prevOut, nil, nil))
	spendTx.AddTxOut(wire.NewTxOut(int64(inputValue), destScript))

	size := EstimateSize(spendTx)
	fee := FeeForSize(size, req.FeeRate)
	if fee >= inputValue {
		return nil, nil, fmt.Errorf("%w: fee %d sats >= input value %d sats", ErrFeeExceedsValue, fee, inputValue)
	}

	outputValue := inputValue - fee
	spendTx.TxOut[0].Value = int64(outputValue)

	tpl := &Template{
		SourceTxID:        sourceHash.String(),
		SourceOutputIndex: SpendableOutputIndex,
		SourceScript:      hex.EncodeToString(sourceOut.PkScript),
		InputValueSats:    inputValue,
		OutputValueSats:   outputValue,
		FeeSats:           fee,
		FeeRate:           req.FeeRate,
		Destination:       req.Destination,
	}
	return tpl, spendTx, nil
}

// ParseRawTransaction decodes and deserializes a raw transaction hex string
func ParseRawTransaction(rawHex string) (*wire.MsgTx, error) {
	rawBytes, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: raw transaction is not valid hex: %v", ErrInvalidInput, err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(rawBytes)); err != nil {
		return nil, fmt.Errorf("%w: raw transaction does not parse: %v", ErrInvalidInput, err)
	}
	return tx, nil
}

// EstimateSize returns the estimated final size in bytes of the spend
// transaction once signature material is attached.
func EstimateSize(tx *wire.MsgTx) uint64 {
	return uint64(tx.SerializeSize()) + signatureAllowance
}

// FeeForSize computes the fee in satoshis for an estimated transaction size
// at the given rate in sat/vB.
func FeeForSize(sizeBytes, feeRate uint64) uint64 {
	return sizeBytes * feeRate
}

func chainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	default:
		return nil, fmt.Errorf("%w: unknown network %q", ErrInvalidInput, network)
	}
}
