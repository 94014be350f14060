package recovery

import "errors"

// Spendable output of a pre-signed exit transaction. The index is a protocol
// convention fixed when the provider issues the exit transaction; it is never
// inferred from the outputs themselves.
const SpendableOutputIndex = 0

// signatureAllowance is the worst-case serialized size in bytes of the
// signature material added when the template is signed externally.
const signatureAllowance = 110

var (
	// ErrInvalidInput indicates a malformed raw transaction, destination
	// address, or network selector
	ErrInvalidInput = errors.New("invalid recovery input")

	// ErrFeeExceedsValue indicates the computed fee meets or exceeds the
	// value of the spendable output
	ErrFeeExceedsValue = errors.New("fee exceeds recoverable value")
)

// BuildRequest is the full input to the recovery builder
type BuildRequest struct {
	RawTxHex    string
	Destination string
	Network     string // mainnet or testnet
	FeeRate     uint64 // sat/vB
}

// Template is an unsigned spend of a pre-signed exit transaction output,
// carrying enough metadata for independent offline signing. It is not itself
// a signed transaction.
type Template struct {
	SourceTxID        string `json:"source_txid"`
	SourceOutputIndex uint32 `json:"source_output_index"`
	SourceScript      string `json:"source_script"`
	InputValueSats    uint64 `json:"input_value_sats"`
	OutputValueSats   uint64 `json:"output_value_sats"`
	FeeSats           uint64 `json:"fee_sats"`
	FeeRate           uint64 `json:"fee_rate"`
	Destination       string `json:"destination"`
}
