package provider

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/sync/errgroup"

	"github/chapool/smart-wallet/internal/wallet/codec"
	"github/chapool/smart-wallet/internal/wallet/guardian"
	"github/chapool/smart-wallet/internal/wallet/rpcerrors"
)

// personalSign signs an ERC-191 personal message with the smart wallet,
// combining the relayer's counter-signature with the session signer's.
// Params are [message, address].
func (p *Provider) personalSign(ctx context.Context, params []any) (any, error) {
	sess, err := p.authorisedSession()
	if err != nil {
		return nil, err
	}

	message, err := stringParam(params, 0)
	if err != nil {
		return nil, err
	}

	address, err := stringParam(params, 1)
	if err != nil {
		return nil, err
	}

	walletAddress := sess.walletAddress()
	if common.HexToAddress(address) != walletAddress {
		return nil, rpcerrors.New(rpcerrors.CodeUnauthorized, "address does not match the active session")
	}

	var signature []byte
	err = p.guardian.WithConfirmationScreen(ctx, func(ctx context.Context) error {
		chainID, err := p.chain.ChainID(ctx)
		if err != nil {
			return err
		}

		// The relayer counter-signature and the policy verdict are
		// independent; request them together.
		var relayerSignature []byte
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			var err error
			relayerSignature, err = p.relayer.Sign(groupCtx, walletAddress, message)
			return err
		})
		group.Go(func() error {
			return p.guardian.CheckMessage(groupCtx, &guardian.MessageEvaluation{
				ChainID: chainID,
				Mode:    guardian.ModeERC191,
				Message: message,
			})
		})
		if err := group.Wait(); err != nil {
			return err
		}

		signer, err := sess.resolveSigner(ctx)
		if err != nil {
			return err
		}

		signature, err = codec.SignERC191Message(ctx, messageBytes(message), relayerSignature, chainID, walletAddress, signer)
		return err
	})
	if err != nil {
		return nil, err
	}

	return hexutil.Encode(signature), nil
}

// signTypedDataV4 signs an EIP-712 payload with the smart wallet. Params are
// [address, typedData], with typedData as a JSON string or object.
func (p *Provider) signTypedDataV4(ctx context.Context, params []any) (any, error) {
	sess, err := p.authorisedSession()
	if err != nil {
		return nil, err
	}

	address, err := stringParam(params, 0)
	if err != nil {
		return nil, err
	}

	walletAddress := sess.walletAddress()
	if common.HexToAddress(address) != walletAddress {
		return nil, rpcerrors.New(rpcerrors.CodeUnauthorized, "address does not match the active session")
	}

	typedData, err := typedDataParam(params, 1)
	if err != nil {
		return nil, err
	}

	// The domain chain id, when present, must match the detected network
	// before any policy or relayer call is made.
	chainID, err := p.chain.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if typedData.Domain.ChainId != nil && (*big.Int)(typedData.Domain.ChainId).Cmp(chainID) != 0 {
		return nil, rpcerrors.Newf(rpcerrors.CodeInvalidParams,
			"typed data domain chain id %s does not match the detected network %s",
			(*big.Int)(typedData.Domain.ChainId).String(), chainID.String())
	}

	var signature []byte
	err = p.guardian.WithConfirmationScreen(ctx, func(ctx context.Context) error {
		var relayerSignature []byte
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			var err error
			relayerSignature, err = p.relayer.SignTypedData(groupCtx, walletAddress, *typedData)
			return err
		})
		group.Go(func() error {
			return p.guardian.CheckMessage(groupCtx, &guardian.MessageEvaluation{
				ChainID:   chainID,
				Mode:      guardian.ModeTypedData,
				TypedData: typedData,
			})
		})
		if err := group.Wait(); err != nil {
			return err
		}

		signer, err := sess.resolveSigner(ctx)
		if err != nil {
			return err
		}

		signature, err = codec.SignAndPackTypedData(ctx, *typedData, relayerSignature, chainID, walletAddress, signer)
		return err
	})
	if err != nil {
		return nil, err
	}

	return hexutil.Encode(signature), nil
}

// messageBytes interprets a personal_sign message parameter: hex-encoded
// bytes when 0x-prefixed and decodable, raw UTF-8 bytes otherwise.
func messageBytes(message string) []byte {
	if strings.HasPrefix(message, "0x") {
		if decoded, err := hexutil.Decode(message); err == nil {
			return decoded
		}
	}
	return []byte(message)
}

func typedDataParam(params []any, i int) (*apitypes.TypedData, error) {
	if i >= len(params) {
		return nil, rpcerrors.Newf(rpcerrors.CodeInvalidParams, "missing parameter at position %d", i)
	}

	var raw []byte
	switch v := params[i].(type) {
	case string:
		raw = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, rpcerrors.Newf(rpcerrors.CodeInvalidParams, "invalid typed data parameter")
		}
		raw = encoded
	}

	var typedData apitypes.TypedData
	if err := json.Unmarshal(raw, &typedData); err != nil {
		return nil, rpcerrors.Newf(rpcerrors.CodeInvalidParams, "malformed typed data payload: %s", err)
	}

	return &typedData, nil
}
