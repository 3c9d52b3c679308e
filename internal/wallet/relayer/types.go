package relayer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github/chapool/smart-wallet/internal/wallet"
)

// Client is the wire client to the relaying service. It submits signed
// payloads, quotes fees and countersigns messages; it performs no retries.
type Client interface {
	// SendTransaction submits an ABI-encoded execute() call for the given
	// wallet and returns the relayer-assigned transaction id.
	SendTransaction(ctx context.Context, walletAddress common.Address, signedData []byte) (string, error)

	// GetTransactionByHash returns the relayer's view of a submitted transaction.
	GetTransactionByHash(ctx context.Context, relayerID string) (*wallet.RelayerTransaction, error)

	// GetFeeOptions quotes fee options for the given encoded call.
	GetFeeOptions(ctx context.Context, walletAddress common.Address, encodedCall []byte) ([]wallet.FeeOption, error)

	// Sign requests the relaying service's counter-signature over a raw message.
	Sign(ctx context.Context, walletAddress common.Address, message string) ([]byte, error)

	// SignTypedData requests the relaying service's counter-signature over an
	// EIP-712 payload.
	SignTypedData(ctx context.Context, walletAddress common.Address, typedData apitypes.TypedData) ([]byte, error)
}

// ChainSource supplies the id of the chain requests are made against.
type ChainSource interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

const (
	methodSendTransaction      = "eth_sendTransaction"
	methodGetTransactionByHash = "im_getTransactionByHash"
	methodGetFeeOptions        = "im_getFeeOptions"
	methodSign                 = "im_sign"
	methodSignTypedData        = "im_signTypedData"
)

type rpcRequest struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Error is a structured error body returned by the relaying service. Any
// response carrying one is surfaced as this error, never as a success value.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("relayer error %d: %s", e.Code, e.Message)
}

type sendTransactionParams struct {
	To      string        `json:"to"`
	Data    hexutil.Bytes `json:"data"`
	ChainID string        `json:"chainId"`
}

type getFeeOptionsParams struct {
	UserAddress string        `json:"userAddress"`
	Data        hexutil.Bytes `json:"data"`
	ChainID     string        `json:"chainId"`
}

type signParams struct {
	ChainID string `json:"chainId"`
	Address string `json:"address"`
	Message string `json:"message"`
}

type signTypedDataParams struct {
	ChainID   string             `json:"chainId"`
	Address   string             `json:"address"`
	TypedData apitypes.TypedData `json:"typedData"`
}

type sendTransactionResult struct {
	RelayerID string `json:"relayerId"`
}

type signResult struct {
	Signature hexutil.Bytes `json:"signature"`
}
