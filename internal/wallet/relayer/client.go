// Package relayer implements the JSON-RPC-over-HTTP client to the relaying
// service that submits signed smart-wallet payloads on-chain.
package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github/chapool/smart-wallet/internal/util"
	"github/chapool/smart-wallet/internal/wallet"
)

const transactionsPath = "/v1/transactions"

const defaultRequestTimeout = 30 * time.Second

type client struct {
	baseURL    string
	httpClient *http.Client
	tokens     wallet.TokenSource
	chain      ChainSource
}

// NewClient creates a relaying client against the given base URL. Every
// request carries a bearer token from tokens and the eip155 chain reference
// from chain.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewClient(baseURL string, tokens wallet.TokenSource, chain ChainSource) Client {
	return &client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		tokens:     tokens,
		chain:      chain,
	}
}

// SendTransaction submits signed call data for the given wallet.
func (c *client) SendTransaction(ctx context.Context, walletAddress common.Address, signedData []byte) (string, error) {
	chainReference, err := c.chainReference(ctx)
	if err != nil {
		return "", err
	}

	var result sendTransactionResult
	err = c.call(ctx, methodSendTransaction, []any{sendTransactionParams{
		To:      walletAddress.Hex(),
		Data:    signedData,
		ChainID: chainReference,
	}}, &result)
	if err != nil {
		return "", err
	}

	return result.RelayerID, nil
}

// GetTransactionByHash returns the relayer's view of a submitted transaction.
func (c *client) GetTransactionByHash(ctx context.Context, relayerID string) (*wallet.RelayerTransaction, error) {
	var result wallet.RelayerTransaction
	if err := c.call(ctx, methodGetTransactionByHash, []any{relayerID}, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// GetFeeOptions quotes fee options for the given encoded call.
func (c *client) GetFeeOptions(ctx context.Context, walletAddress common.Address, encodedCall []byte) ([]wallet.FeeOption, error) {
	chainReference, err := c.chainReference(ctx)
	if err != nil {
		return nil, err
	}

	var result []wallet.FeeOption
	err = c.call(ctx, methodGetFeeOptions, []any{getFeeOptionsParams{
		UserAddress: walletAddress.Hex(),
		Data:        encodedCall,
		ChainID:     chainReference,
	}}, &result)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Sign requests the relaying service's counter-signature over a raw message.
func (c *client) Sign(ctx context.Context, walletAddress common.Address, message string) ([]byte, error) {
	chainReference, err := c.chainReference(ctx)
	if err != nil {
		return nil, err
	}

	var result signResult
	err = c.call(ctx, methodSign, []any{signParams{
		ChainID: chainReference,
		Address: walletAddress.Hex(),
		Message: message,
	}}, &result)
	if err != nil {
		return nil, err
	}

	return result.Signature, nil
}

// SignTypedData requests the relaying service's counter-signature over an
// EIP-712 payload.
func (c *client) SignTypedData(ctx context.Context, walletAddress common.Address, typedData apitypes.TypedData) ([]byte, error) {
	chainReference, err := c.chainReference(ctx)
	if err != nil {
		return nil, err
	}

	var result signResult
	err = c.call(ctx, methodSignTypedData, []any{signTypedDataParams{
		ChainID:   chainReference,
		Address:   walletAddress.Hex(),
		TypedData: typedData,
	}}, &result)
	if err != nil {
		return nil, err
	}

	return result.Signature, nil
}

func (c *client) chainReference(ctx context.Context) (string, error) {
	chainID, err := c.chain.ChainID(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve chain id")
	}

	return wallet.EIP155ChainReference(chainID), nil
}

// call performs one JSON-RPC request. A response body carrying an error
// member is returned as that error.
func (c *client) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		ID:      uuid.NewString(),
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transactionsPath, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to resolve access token")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "relayer call %s failed", method)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		util.LogFromContext(ctx).Warn().
			Str("method", method).
			Int("status", res.StatusCode).
			Msg("Relayer returned unexpected status")
		return errors.Errorf("relayer call %s returned status %d", method, res.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return errors.Wrap(err, "failed to decode response body")
	}

	if envelope.Error != nil {
		return envelope.Error
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return errors.Wrapf(err, "failed to decode %s result", method)
		}
	}

	return nil
}
