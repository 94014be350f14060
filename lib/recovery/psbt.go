package recovery

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// BuildPSBT constructs the recovery template and returns it together with a
// base64-encoded PSBT of the unsigned spend. The packet carries the witness
// utxo of the exit output so an offline signer needs nothing else.
func BuildPSBT(req BuildRequest) (*Template, string, error) {
	tpl, spendTx, err := construct(req)
	if err != nil {
		return nil, "", err
	}

	packet, err := psbt.NewFromUnsignedTx(spendTx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create PSBT packet: %v", err)
	}

	sourceTx, err := ParseRawTransaction(req.RawTxHex)
	if err != nil {
		return nil, "", err
	}
	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(
		int64(tpl.InputValueSats),
		sourceTx.TxOut[SpendableOutputIndex].PkScript,
	)

	encoded, err := packet.B64Encode()
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode PSBT packet: %v", err)
	}
	return tpl, encoded, nil
}
