package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// MetaTransaction is a single call the smart wallet should perform, as
// supplied by the caller. Optional fields are pointers so that absence is
// distinguishable from a zero value.
type MetaTransaction struct {
	To            *common.Address
	Value         *big.Int
	Data          []byte
	Nonce         *big.Int
	GasLimit      *big.Int
	DelegateCall  *bool
	RevertOnError *bool
}

// MetaTransactionNormalised is the canonical, fully-defaulted form of a
// MetaTransaction. Only this form participates in digests and encoding.
type MetaTransactionNormalised struct {
	DelegateCall  bool
	RevertOnError bool
	GasLimit      *big.Int
	Target        common.Address
	Value         *big.Int
	Data          []byte
}

// AsMetaTransaction converts the normalised form back into the source form.
func (m MetaTransactionNormalised) AsMetaTransaction() MetaTransaction {
	target := m.Target
	delegateCall := m.DelegateCall
	revertOnError := m.RevertOnError
	return MetaTransaction{
		To:            &target,
		Value:         m.Value,
		Data:          m.Data,
		GasLimit:      m.GasLimit,
		DelegateCall:  &delegateCall,
		RevertOnError: &revertOnError,
	}
}

// TransactionRequest is the eth_sendTransaction parameter shape.
type TransactionRequest struct {
	From  *common.Address `json:"from,omitempty"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// FeeOption is a relayer quote for paying gas in a specific token. A token
// price of zero designates a sponsored transaction.
type FeeOption struct {
	TokenPrice       string `json:"tokenPrice"`
	TokenSymbol      string `json:"tokenSymbol"`
	TokenDecimals    int    `json:"tokenDecimals"`
	TokenAddress     string `json:"tokenAddress"`
	RecipientAddress string `json:"recipientAddress"`
}

// RelayerTransactionStatus is the lifecycle status reported by the relaying service.
type RelayerTransactionStatus string

const (
	StatusPending    RelayerTransactionStatus = "PENDING"
	StatusSubmitted  RelayerTransactionStatus = "SUBMITTED"
	StatusSuccessful RelayerTransactionStatus = "SUCCESSFUL"
	StatusFailed     RelayerTransactionStatus = "FAILED"
	StatusCancelled  RelayerTransactionStatus = "CANCELLED"
	StatusError      RelayerTransactionStatus = "ERROR"
)

// RelayerTransaction is a transaction as tracked by the relaying service.
// Hash is populated only once the transaction is visible on-chain.
type RelayerTransaction struct {
	Status        RelayerTransactionStatus `json:"status"`
	ChainID       string                   `json:"chainId"`
	RelayerID     string                   `json:"relayerId"`
	Hash          string                   `json:"hash,omitempty"`
	StatusMessage string                   `json:"statusMessage,omitempty"`
}

// Signer is the key-custody collaborator able to produce ERC-191 personal
// message signatures for the current identity.
type Signer interface {
	// Address returns the signer's EOA address.
	Address(ctx context.Context) (common.Address, error)

	// SignMessage signs the ERC-191 personal-message hash of message and
	// returns the 65-byte [R || S || V] signature with V in {27, 28}.
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// TokenSource supplies the bearer token of the current session.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// EIP155ChainReference formats a chain id in "eip155:<id>" form.
func EIP155ChainReference(chainID *big.Int) string {
	return fmt.Sprintf("eip155:%s", chainID.String())
}

// ParseBigInt parses a decimal or 0x-prefixed hexadecimal integer string.
func ParseBigInt(s string) (*big.Int, error) {
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}

	val, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, errors.Errorf("invalid integer value %q", s)
	}

	return val, nil
}
