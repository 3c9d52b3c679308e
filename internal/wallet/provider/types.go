package provider

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github/chapool/smart-wallet/internal/wallet"
	"github/chapool/smart-wallet/internal/wallet/guardian"
	"github/chapool/smart-wallet/internal/wallet/pipeline"
	"github/chapool/smart-wallet/internal/wallet/rpcerrors"
)

// Supported request methods. Dispatch is a closed match over this vocabulary;
// anything else fails with an unsupported-method error.
const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodAccounts        = "eth_accounts"
	MethodSendTransaction = "eth_sendTransaction"
	MethodPersonalSign    = "personal_sign"
	MethodSignTypedDataV4 = "eth_signTypedData_v4"
	MethodChainID         = "eth_chainId"

	MethodGasPrice              = "eth_gasPrice"
	MethodGetBalance            = "eth_getBalance"
	MethodGetCode               = "eth_getCode"
	MethodGetStorageAt          = "eth_getStorageAt"
	MethodCall                  = "eth_call"
	MethodEstimateGas           = "eth_estimateGas"
	MethodGetTransactionCount   = "eth_getTransactionCount"
	MethodGetBlockByHash        = "eth_getBlockByHash"
	MethodGetBlockByNumber      = "eth_getBlockByNumber"
	MethodGetTransactionByHash  = "eth_getTransactionByHash"
	MethodGetTransactionReceipt = "eth_getTransactionReceipt"
	MethodGetLogs               = "eth_getLogs"
)

// User is the logged-in identity as reported by the authentication provider.
type User struct {
	AccessToken   string
	WalletAddress string
}

// Authenticator is the external authentication provider.
type Authenticator interface {
	// GetUser returns the currently logged-in user, or an error when there is none.
	GetUser(ctx context.Context) (*User, error)

	// GetUserOrLogin returns the current user, forcing a login flow if required.
	GetUserOrLogin(ctx context.Context) (*User, error)

	// OnLogin registers fn to run whenever an identity logs in.
	OnLogin(fn func(user *User))

	// OnLogout registers fn to run whenever the identity logs out.
	OnLogout(fn func())
}

// SignerFactory materialises the key-custody signer for a logged-in user.
type SignerFactory interface {
	NewSigner(ctx context.Context, user *User) (wallet.Signer, error)
}

// Registrar registers a freshly authenticated identity as a smart wallet and
// returns the wallet's canonical (counterfactual or deployed) address.
type Registrar interface {
	RegisterWallet(ctx context.Context, user *User, signerAddress common.Address) (common.Address, error)
}

// ChainClient is the subset of the chain RPC client the provider uses.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Send(ctx context.Context, result any, method string, params ...any) error
}

// RelaySigner is the subset of the relaying client used for message signing.
type RelaySigner interface {
	Sign(ctx context.Context, walletAddress common.Address, message string) ([]byte, error)
	SignTypedData(ctx context.Context, walletAddress common.Address, typedData apitypes.TypedData) ([]byte, error)
}

// Guardian is the subset of the policy client the provider uses.
type Guardian interface {
	CheckMessage(ctx context.Context, evaluation *guardian.MessageEvaluation) error
	WithConfirmationScreen(ctx context.Context, task func(ctx context.Context) error) error
}

// Pipeline is the transaction orchestrator.
type Pipeline interface {
	PrepareAndSubmit(ctx context.Context, req *wallet.TransactionRequest, signer wallet.Signer, walletAddress common.Address) (*pipeline.Result, error)
	PollToCompletion(ctx context.Context, relayerID string) (*wallet.RelayerTransaction, error)
}

// RPCRequest is one envelope of the batched/callback transport.
type RPCRequest struct {
	ID      any    `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// RPCResponse is the reply envelope: result or error, never both.
type RPCResponse struct {
	ID      any                 `json:"id"`
	JSONRPC string              `json:"jsonrpc"`
	Result  any                 `json:"result,omitempty"`
	Error   *rpcerrors.RPCError `json:"error,omitempty"`
}

// Deps bundles the provider's collaborators.
type Deps struct {
	Auth      Authenticator
	Signers   SignerFactory
	Registrar Registrar
	Chain     ChainClient
	Relayer   RelaySigner
	Guardian  Guardian
	Pipeline  Pipeline
}
