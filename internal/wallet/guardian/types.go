package guardian

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github/chapool/smart-wallet/internal/wallet"
)

// SigningMode identifies the kind of message under evaluation.
type SigningMode string

const (
	ModeERC191    SigningMode = "ERC191"
	ModeTypedData SigningMode = "EIP712"
)

// TransactionEvaluation describes a pending meta-transaction set.
type TransactionEvaluation struct {
	ChainID          *big.Int
	Nonce            *big.Int
	WalletAddress    common.Address
	MetaTransactions []wallet.MetaTransactionNormalised
}

// MessageEvaluation describes a pending message or typed-data signature.
type MessageEvaluation struct {
	ChainID   *big.Int
	Mode      SigningMode
	Message   string
	TypedData *apitypes.TypedData
}

// Result is the policy service's verdict on a pending operation.
type Result struct {
	ConfirmationRequired bool   `json:"confirmationRequired"`
	TransactionID        string `json:"transactionId,omitempty"`
	MessageID            string `json:"messageId,omitempty"`
}

// ConfirmationScreen is the interactive surface shown to the user while a
// pending operation awaits confirmation. It is absent in bridge-restricted
// runtimes.
type ConfirmationScreen interface {
	// Open prepares the surface before a potentially slow operation runs.
	Open(ctx context.Context) error

	// ConfirmTransaction shows the pending transaction and reports the user's decision.
	ConfirmTransaction(ctx context.Context, transactionID string, chainReference string) (bool, error)

	// ConfirmMessage shows the pending message and reports the user's decision.
	ConfirmMessage(ctx context.Context, messageID string, chainReference string) (bool, error)

	// Close tears the surface down. Closing an already-closed surface is a no-op.
	Close()
}

// Service evaluates pending operations for risk and gates release of control
// on interactive confirmation when the policy service requires it.
type Service interface {
	// EvaluateTransaction asks the policy service to evaluate a meta-transaction set.
	EvaluateTransaction(ctx context.Context, evaluation *TransactionEvaluation) (*Result, error)

	// EvaluateMessage asks the policy service to evaluate a message signature.
	EvaluateMessage(ctx context.Context, evaluation *MessageEvaluation) (*Result, error)

	// CheckTransaction evaluates and, when required, drives interactive
	// confirmation. A rejection is returned as a user-rejected error.
	CheckTransaction(ctx context.Context, evaluation *TransactionEvaluation) error

	// CheckMessage is CheckTransaction for message signatures.
	CheckMessage(ctx context.Context, evaluation *MessageEvaluation) error

	// WithConfirmationScreen opens the confirmation surface, runs task and
	// guarantees the surface is closed on every error exit, propagating the
	// original error unchanged. On success the surface is left open for the
	// caller to close once it has the final result to display.
	WithConfirmationScreen(ctx context.Context, task func(ctx context.Context) error) error
}

type evaluateTransactionPayload struct {
	ChainID         string                 `json:"chainId"`
	TransactionData transactionDataPayload `json:"transactionData"`
}

type transactionDataPayload struct {
	Nonce            string                `json:"nonce"`
	UserAddress      string                `json:"userAddress"`
	MetaTransactions []metaTransactionWire `json:"metaTransactions"`
}

type metaTransactionWire struct {
	DelegateCall  bool   `json:"delegateCall"`
	RevertOnError bool   `json:"revertOnError"`
	GasLimit      string `json:"gasLimit"`
	Target        string `json:"target"`
	Value         string `json:"value"`
	Data          string `json:"data"`
}

type evaluateMessagePayload struct {
	ChainID     string              `json:"chainId"`
	SigningMode SigningMode         `json:"signingMode"`
	Message     string              `json:"message,omitempty"`
	TypedData   *apitypes.TypedData `json:"typedData,omitempty"`
}
