package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrWalletNotDeployed signals that the wallet address carries no contract
// code yet. A wallet that has never transacted is defined to have nonce 0.
var ErrWalletNotDeployed = errors.New("smart wallet contract is not deployed")

// nonceMethodID is the 4-byte selector of the wallet contract's nonce() view.
var nonceMethodID = common.Hex2Bytes("affed0e0")

// WalletNonce reads the smart wallet's meta-transaction nonce from its
// deployed contract. An empty return value means the wallet is not deployed
// and is reported as ErrWalletNotDeployed; any other failure propagates.
func (c *Client) WalletNonce(ctx context.Context, walletAddress common.Address) (*big.Int, error) {
	result, err := c.CallContract(ctx, ethereum.CallMsg{
		To:   &walletAddress,
		Data: nonceMethodID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read wallet nonce")
	}

	if len(result) == 0 {
		return nil, ErrWalletNotDeployed
	}

	return new(big.Int).SetBytes(result), nil
}
