package signer_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/smart-wallet/internal/wallet/signer"
)

func TestNewPrivateKeySignerRejectsInvalidKey(t *testing.T) {
	_, err := signer.NewPrivateKeySigner("not-a-key")
	require.Error(t, err)
}

func TestNewPrivateKeySignerAcceptsPrefixedKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	s, err := signer.NewPrivateKeySigner(hexutil.Encode(crypto.FromECDSA(key)))
	require.NoError(t, err)

	address, err := s.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), address)
}

func TestSignMessageRecoversToSignerAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	s, err := signer.NewPrivateKeySigner(hexutil.Encode(crypto.FromECDSA(key)))
	require.NoError(t, err)

	ctx := context.Background()
	address, err := s.Address(ctx)
	require.NoError(t, err)

	message := []byte("smart wallet message")
	signature, err := s.SignMessage(ctx, message)
	require.NoError(t, err)
	require.Len(t, signature, 65)

	v := signature[crypto.RecoveryIDOffset]
	assert.Contains(t, []byte{27, 28}, v)

	recoverable := append([]byte(nil), signature...)
	recoverable[crypto.RecoveryIDOffset] -= 27

	publicKey, err := crypto.SigToPub(accounts.TextHash(message), recoverable)
	require.NoError(t, err)
	assert.Equal(t, address, crypto.PubkeyToAddress(*publicKey))
}
