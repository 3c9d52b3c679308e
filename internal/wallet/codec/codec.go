// Package codec implements the pure encoding layer of the smart wallet:
// meta-transaction normalisation, transaction digests, multi-signer signature
// envelopes and the final execute() call data. It performs no I/O; signatures
// are obtained through the caller-supplied wallet.Signer.
package codec

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github/chapool/smart-wallet/internal/util"
	"github/chapool/smart-wallet/internal/wallet"
)

// ethSignPrefix is the EIP-191 version 0x01 prefix binding a digest to one
// wallet on one chain before it is signed.
const ethSignPrefix = "\x19\x01"

const executeABIJSON = `[{
	"name": "execute",
	"type": "function",
	"inputs": [
		{"name": "_txs", "type": "tuple[]", "components": [
			{"name": "delegateCall", "type": "bool"},
			{"name": "revertOnError", "type": "bool"},
			{"name": "gasLimit", "type": "uint256"},
			{"name": "target", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "data", "type": "bytes"}
		]},
		{"name": "_nonce", "type": "uint256"},
		{"name": "_signature", "type": "bytes"}
	]
}]`

// abiMetaTransaction mirrors the wallet contract's transaction tuple. Field
// names must match the ABI component names for go-ethereum's tuple packing.
type abiMetaTransaction struct {
	DelegateCall  bool
	RevertOnError bool
	GasLimit      *big.Int
	Target        common.Address
	Value         *big.Int
	Data          []byte
}

var (
	walletABI       abi.ABI
	digestArguments abi.Arguments
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(executeABIJSON))
	if err != nil {
		panic(err)
	}
	walletABI = parsed

	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}

	metaTransactionsType, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "delegateCall", Type: "bool"},
		{Name: "revertOnError", Type: "bool"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}

	digestArguments = abi.Arguments{
		{Type: uint256Type},
		{Type: metaTransactionsType},
	}
}

// Normalise returns the canonical, fully-defaulted form of the given
// meta-transactions. It is total and idempotent, and never reorders the list.
func Normalise(txs []wallet.MetaTransaction) []wallet.MetaTransactionNormalised {
	normalised := make([]wallet.MetaTransactionNormalised, 0, len(txs))

	for _, tx := range txs {
		norm := wallet.MetaTransactionNormalised{
			DelegateCall:  util.FalseIfNil(tx.DelegateCall),
			RevertOnError: util.FalseIfNil(tx.RevertOnError),
			GasLimit:      big.NewInt(0),
			Target:        common.Address{},
			Value:         big.NewInt(0),
			Data:          []byte{},
		}

		if tx.To != nil {
			norm.Target = *tx.To
		}
		if tx.GasLimit != nil {
			norm.GasLimit = tx.GasLimit
		}
		if tx.Value != nil {
			norm.Value = tx.Value
		}
		if len(tx.Data) > 0 {
			norm.Data = tx.Data
		}

		normalised = append(normalised, norm)
	}

	return normalised
}

// Digest computes the keccak256 hash of the ABI encoding of the nonce and the
// normalised meta-transaction list.
func Digest(nonce *big.Int, txs []wallet.MetaTransactionNormalised) (common.Hash, error) {
	packed, err := digestArguments.Pack(nonce, toABITransactions(txs))
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to pack meta transactions")
	}

	return crypto.Keccak256Hash(packed), nil
}

// SubDigest binds a digest to one wallet on one chain. The result is the
// exact payload the underlying key is asked to sign.
func SubDigest(chainID *big.Int, walletAddress common.Address, digest common.Hash) common.Hash {
	const uint256Length = 32

	payload := make([]byte, 0, len(ethSignPrefix)+uint256Length+common.AddressLength+common.HashLength)
	payload = append(payload, ethSignPrefix...)
	payload = append(payload, common.LeftPadBytes(chainID.Bytes(), uint256Length)...)
	payload = append(payload, walletAddress.Bytes()...)
	payload = append(payload, digest.Bytes()...)

	return crypto.Keccak256Hash(payload)
}

// EncodeExecute ABI-encodes the wallet's execute(transactions, nonce,
// signature) call. An empty signature is valid and used for fee estimation.
func EncodeExecute(txs []wallet.MetaTransactionNormalised, nonce *big.Int, signature []byte) ([]byte, error) {
	if signature == nil {
		signature = []byte{}
	}

	data, err := walletABI.Pack("execute", toABITransactions(txs), nonce, signature)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode execute call")
	}

	return data, nil
}

// SignMetaTransactions normalises the given transactions, signs their
// chain- and wallet-bound sub-digest with the supplied signer and returns the
// ABI-encoded execute() call carrying a single-signer signature envelope.
func SignMetaTransactions(
	ctx context.Context,
	txs []wallet.MetaTransaction,
	nonce *big.Int,
	chainID *big.Int,
	walletAddress common.Address,
	signer wallet.Signer,
) ([]byte, error) {
	normalised := Normalise(txs)

	digest, err := Digest(nonce, normalised)
	if err != nil {
		return nil, err
	}

	subDigest := SubDigest(chainID, walletAddress, digest)

	signature, err := signEthSign(ctx, signer, subDigest)
	if err != nil {
		return nil, err
	}

	envelope, err := EncodeEnvelope(singleSignerThreshold, []SignaturePart{
		{Weight: fullWeight, Signature: signature},
	})
	if err != nil {
		return nil, err
	}

	return EncodeExecute(normalised, nonce, envelope)
}

// signEthSign obtains an ERC-191 signature over the sub-digest and appends
// the eth_sign type flag expected by the wallet contract.
func signEthSign(ctx context.Context, signer wallet.Signer, subDigest common.Hash) ([]byte, error) {
	signature, err := signer.SignMessage(ctx, subDigest.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign sub-digest")
	}

	if len(signature) != ecdsaSignatureLength {
		return nil, errors.Errorf("unexpected signature length %d", len(signature))
	}

	return append(signature, ethSignFlag), nil
}

func toABITransactions(txs []wallet.MetaTransactionNormalised) []abiMetaTransaction {
	out := make([]abiMetaTransaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, abiMetaTransaction{
			DelegateCall:  tx.DelegateCall,
			RevertOnError: tx.RevertOnError,
			GasLimit:      tx.GasLimit,
			Target:        tx.Target,
			Value:         tx.Value,
			Data:          tx.Data,
		})
	}
	return out
}
