// Package signer provides the in-process key-custody signer used where no
// external custody provider is wired in, such as the bridge server and the
// ejection CLI.
package signer

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// legacyVOffset converts the recovery id produced by crypto.Sign (0/1) into
// the legacy V value (27/28) expected by ecrecover-style verification.
const legacyVOffset = 27

// PrivateKeySigner signs ERC-191 personal messages with an in-memory
// secp256k1 key. It implements wallet.Signer.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewPrivateKeySigner creates a signer from a hex-encoded private key.
func NewPrivateKeySigner(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}

	publicKey, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("failed to cast public key to ECDSA")
	}

	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// Address returns the signer's EOA address.
func (s *PrivateKeySigner) Address(_ context.Context) (common.Address, error) {
	return s.address, nil
}

// SignMessage signs the ERC-191 personal-message hash of message and returns
// the 65-byte [R || S || V] signature with V in {27, 28}.
func (s *PrivateKeySigner) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	signature, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign message")
	}

	signature[crypto.RecoveryIDOffset] += legacyVOffset

	return signature, nil
}
