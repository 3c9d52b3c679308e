package pipeline

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github/chapool/smart-wallet/internal/wallet"
	"github/chapool/smart-wallet/internal/wallet/guardian"
)

// RelayerClient is the subset of the relaying client the orchestrator uses.
type RelayerClient interface {
	SendTransaction(ctx context.Context, walletAddress common.Address, signedData []byte) (string, error)
	GetTransactionByHash(ctx context.Context, relayerID string) (*wallet.RelayerTransaction, error)
	GetFeeOptions(ctx context.Context, walletAddress common.Address, encodedCall []byte) ([]wallet.FeeOption, error)
}

// GuardianService is the subset of the policy client the orchestrator uses.
type GuardianService interface {
	CheckTransaction(ctx context.Context, evaluation *guardian.TransactionEvaluation) error
}

// ChainClient supplies the network id and the wallet's on-chain nonce.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	WalletNonce(ctx context.Context, walletAddress common.Address) (*big.Int, error)
}

// Result is a prepared and submitted transaction. Nonce is the exact value
// that was signed and submitted.
type Result struct {
	SignedData hexutil.Bytes
	RelayerID  string
	Nonce      *big.Int
}

// EjectionRequest describes a transaction to detach a wallet from the managed
// environment. Nonce and ChainID are explicit because there is no live
// session to source them from.
type EjectionRequest struct {
	To      *common.Address `json:"to,omitempty"`
	Value   *hexutil.Big    `json:"value,omitempty"`
	Data    hexutil.Bytes   `json:"data,omitempty"`
	Nonce   *hexutil.Big    `json:"nonce,omitempty"`
	ChainID *hexutil.Big    `json:"chainId,omitempty"`
}

// EjectionResult is a ready-to-submit payload for an ejection transaction.
type EjectionResult struct {
	To      common.Address `json:"to"`
	Data    hexutil.Bytes  `json:"data"`
	ChainID string         `json:"chainId"`
	Nonce   *big.Int       `json:"nonce"`
}

// Service orchestrates transaction preparation: concurrent state fan-out,
// meta-transaction assembly with an optional fee leg, concurrent policy
// validation and signing, submission and status polling.
type Service interface {
	// PrepareAndSubmit builds, validates, signs and submits the transaction.
	PrepareAndSubmit(ctx context.Context, req *wallet.TransactionRequest, signer wallet.Signer, walletAddress common.Address) (*Result, error)

	// PollToCompletion polls the relaying service until the transaction
	// leaves PENDING, bounded by a fixed attempt count.
	PollToCompletion(ctx context.Context, relayerID string) (*wallet.RelayerTransaction, error)

	// PrepareEjectionTransaction signs a transaction without relaying or
	// policy evaluation, for detaching a wallet from the managed environment.
	PrepareEjectionTransaction(ctx context.Context, req *EjectionRequest, signer wallet.Signer, walletAddress common.Address) (*EjectionResult, error)
}

// Config bounds the polling loop and selects the fee token. Zero values fall
// back to the defaults (1s interval, 30 attempts, first quoted option).
type Config struct {
	PollInterval    time.Duration
	PollMaxAttempts int
	FeeTokenSymbol  string
}
