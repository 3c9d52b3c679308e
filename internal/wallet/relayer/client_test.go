package relayer_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/smart-wallet/internal/wallet"
	"github/chapool/smart-wallet/internal/wallet/relayer"
)

type staticTokens struct {
	token string
}

func (s staticTokens) AccessToken(_ context.Context) (string, error) {
	return s.token, nil
}

type staticChain struct {
	id *big.Int
}

func (s staticChain) ChainID(_ context.Context) (*big.Int, error) {
	return s.id, nil
}

type capturedRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func (c *capturedRequest) objectParam(t *testing.T, i int) map[string]any {
	t.Helper()

	require.Greater(t, len(c.Params), i)
	param, ok := c.Params[i].(map[string]any)
	require.True(t, ok)

	return param
}

func newTestServer(t *testing.T, result string, captured *capturedRequest) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transactions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":` + result + `}`))
	}))
}

func newTestClient(baseURL string) relayer.Client {
	return relayer.NewClient(baseURL, staticTokens{token: "test-token"}, staticChain{id: big.NewInt(13473)})
}

func TestSendTransaction(t *testing.T) {
	var captured capturedRequest
	server := newTestServer(t, `{"relayerId":"relayer-id-1"}`, &captured)
	defer server.Close()

	client := newTestClient(server.URL)

	walletAddress := common.HexToAddress("0x1111111111111111111111111111111111111111")
	relayerID, err := client.SendTransaction(context.Background(), walletAddress, []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, "relayer-id-1", relayerID)

	assert.Equal(t, "eth_sendTransaction", captured.Method)
	param := captured.objectParam(t, 0)
	assert.Equal(t, walletAddress.Hex(), param["to"])
	assert.Equal(t, "0xdead", param["data"])
	assert.Equal(t, "eip155:13473", param["chainId"])
}

func TestGetTransactionByHash(t *testing.T) {
	var captured capturedRequest
	server := newTestServer(t, `{"status":"SUCCESSFUL","chainId":"eip155:13473","relayerId":"relayer-id-1","hash":"0xabc"}`, &captured)
	defer server.Close()

	client := newTestClient(server.URL)

	tx, err := client.GetTransactionByHash(context.Background(), "relayer-id-1")
	require.NoError(t, err)
	assert.Equal(t, "im_getTransactionByHash", captured.Method)
	assert.Equal(t, wallet.StatusSuccessful, tx.Status)
	assert.Equal(t, "0xabc", tx.Hash)
}

func TestGetFeeOptions(t *testing.T) {
	var captured capturedRequest
	server := newTestServer(t, `[{"tokenPrice":"0x64","tokenSymbol":"IMX","tokenDecimals":18,"tokenAddress":"0x0","recipientAddress":"0x2222222222222222222222222222222222222222"}]`, &captured)
	defer server.Close()

	client := newTestClient(server.URL)

	options, err := client.GetFeeOptions(context.Background(), common.Address{}, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, "im_getFeeOptions", captured.Method)
	require.Len(t, options, 1)
	assert.Equal(t, "IMX", options[0].TokenSymbol)
	assert.Equal(t, "0x64", options[0].TokenPrice)
}

func TestSign(t *testing.T) {
	var captured capturedRequest
	server := newTestServer(t, `{"signature":"0x010203"}`, &captured)
	defer server.Close()

	client := newTestClient(server.URL)

	signature, err := client.Sign(context.Background(), common.Address{}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "im_sign", captured.Method)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, signature)
	assert.Equal(t, "hello", captured.objectParam(t, 0)["message"])
}

func TestErrorBodyIsReturnedAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32000,"message":"intent expired"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.SendTransaction(context.Background(), common.Address{}, nil)
	require.Error(t, err)

	var relayerErr *relayer.Error
	require.ErrorAs(t, err, &relayerErr)
	assert.Equal(t, -32000, relayerErr.Code)
	assert.Equal(t, "intent expired", relayerErr.Message)
}

func TestNon2xxStatusIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetTransactionByHash(context.Background(), "relayer-id-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
