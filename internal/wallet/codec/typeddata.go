package codec

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"

	"github/chapool/smart-wallet/internal/wallet"
)

// TypedDataDigest computes the EIP-712 hash of the given payload.
func TypedDataDigest(typedData apitypes.TypedData) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to hash typed data")
	}

	return common.BytesToHash(hash), nil
}

// ERC191MessageDigest computes the ERC-191 personal-message hash of message.
func ERC191MessageDigest(message []byte) common.Hash {
	return common.BytesToHash(accounts.TextHash(message))
}

// SignAndPackTypedData signs the sub-digest of the EIP-712 payload hash with
// the supplied signer and combines it with the relaying service's signature
// into a threshold-2 envelope.
func SignAndPackTypedData(
	ctx context.Context,
	typedData apitypes.TypedData,
	relayerSignature []byte,
	chainID *big.Int,
	walletAddress common.Address,
	signer wallet.Signer,
) ([]byte, error) {
	digest, err := TypedDataDigest(typedData)
	if err != nil {
		return nil, err
	}

	return signAndPackDigest(ctx, digest, relayerSignature, chainID, walletAddress, signer)
}

// SignERC191Message signs the sub-digest of the personal-message hash with
// the supplied signer and combines it with the relaying service's signature
// into a threshold-2 envelope.
func SignERC191Message(
	ctx context.Context,
	message []byte,
	relayerSignature []byte,
	chainID *big.Int,
	walletAddress common.Address,
	signer wallet.Signer,
) ([]byte, error) {
	return signAndPackDigest(ctx, ERC191MessageDigest(message), relayerSignature, chainID, walletAddress, signer)
}

func signAndPackDigest(
	ctx context.Context,
	digest common.Hash,
	relayerSignature []byte,
	chainID *big.Int,
	walletAddress common.Address,
	signer wallet.Signer,
) ([]byte, error) {
	subDigest := SubDigest(chainID, walletAddress, digest)

	eoaSignature, err := signEthSign(ctx, signer, subDigest)
	if err != nil {
		return nil, err
	}

	eoaAddress, err := signer.Address(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve signer address")
	}

	return PackSignatures(eoaSignature, eoaAddress, relayerSignature)
}
