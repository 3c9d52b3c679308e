package guardian_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/smart-wallet/internal/wallet"
	"github/chapool/smart-wallet/internal/wallet/guardian"
	"github/chapool/smart-wallet/internal/wallet/rpcerrors"
)

type staticTokens struct{}

func (staticTokens) AccessToken(_ context.Context) (string, error) {
	return "test-token", nil
}

// fakeScreen records the lifecycle of the confirmation surface.
type fakeScreen struct {
	openErr     error
	confirm     bool
	confirmErr  error
	opened      int
	closed      int
	transaction int
	message     int
}

func (s *fakeScreen) Open(_ context.Context) error {
	s.opened++
	return s.openErr
}

func (s *fakeScreen) ConfirmTransaction(_ context.Context, _ string, _ string) (bool, error) {
	s.transaction++
	return s.confirm, s.confirmErr
}

func (s *fakeScreen) ConfirmMessage(_ context.Context, _ string, _ string) (bool, error) {
	s.message++
	return s.confirm, s.confirmErr
}

func (s *fakeScreen) Close() {
	s.closed++
}

func newEvaluationServer(t *testing.T, result guardian.Result, capturedPath *string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		if capturedPath != nil {
			*capturedPath = r.URL.Path
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(result))
	}))
}

func TestCheckTransactionWithoutConfirmation(t *testing.T) {
	var path string
	server := newEvaluationServer(t, guardian.Result{ConfirmationRequired: false}, &path)
	defer server.Close()

	screen := &fakeScreen{}
	svc := guardian.NewService(server.URL, staticTokens{}, screen, false)

	err := svc.CheckTransaction(context.Background(), &guardian.TransactionEvaluation{
		ChainID:       big.NewInt(13473),
		Nonce:         big.NewInt(0),
		WalletAddress: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MetaTransactions: []wallet.MetaTransactionNormalised{{
			GasLimit: big.NewInt(0),
			Value:    big.NewInt(0),
			Data:     []byte{},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/transactions/evaluate", path)
	// No confirmation needed: any open surface is released.
	assert.Equal(t, 1, screen.closed)
	assert.Zero(t, screen.transaction)
}

func TestCheckTransactionConfirmed(t *testing.T) {
	server := newEvaluationServer(t, guardian.Result{ConfirmationRequired: true, TransactionID: "tx-1"}, nil)
	defer server.Close()

	screen := &fakeScreen{confirm: true}
	svc := guardian.NewService(server.URL, staticTokens{}, screen, false)

	err := svc.CheckTransaction(context.Background(), &guardian.TransactionEvaluation{
		ChainID:       big.NewInt(13473),
		Nonce:         big.NewInt(0),
		WalletAddress: common.Address{},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, screen.transaction)
}

func TestCheckTransactionRejected(t *testing.T) {
	server := newEvaluationServer(t, guardian.Result{ConfirmationRequired: true, TransactionID: "tx-1"}, nil)
	defer server.Close()

	screen := &fakeScreen{confirm: false}
	svc := guardian.NewService(server.URL, staticTokens{}, screen, false)

	err := svc.CheckTransaction(context.Background(), &guardian.TransactionEvaluation{
		ChainID:       big.NewInt(13473),
		Nonce:         big.NewInt(0),
		WalletAddress: common.Address{},
	})
	require.Error(t, err)
	assert.True(t, rpcerrors.HasCode(err, rpcerrors.CodeUserRejected))
}

func TestCheckMessageBridgeRestricted(t *testing.T) {
	var path string
	server := newEvaluationServer(t, guardian.Result{ConfirmationRequired: true, MessageID: "msg-1"}, &path)
	defer server.Close()

	svc := guardian.NewService(server.URL, staticTokens{}, nil, true)

	err := svc.CheckMessage(context.Background(), &guardian.MessageEvaluation{
		ChainID: big.NewInt(13473),
		Mode:    guardian.ModeERC191,
		Message: "hello",
	})
	require.Error(t, err)
	assert.True(t, rpcerrors.HasCode(err, rpcerrors.CodeUserRejected))
	assert.Equal(t, "/v1/messages/evaluate", path)
}

func TestWithConfirmationScreenSuccessLeavesScreenOpen(t *testing.T) {
	screen := &fakeScreen{}
	svc := guardian.NewService("http://unused", staticTokens{}, screen, false)

	err := svc.WithConfirmationScreen(context.Background(), func(_ context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, screen.opened)
	assert.Zero(t, screen.closed)
}

func TestWithConfirmationScreenClosesOnTaskError(t *testing.T) {
	screen := &fakeScreen{}
	svc := guardian.NewService("http://unused", staticTokens{}, screen, false)

	taskErr := errors.New("boom")
	err := svc.WithConfirmationScreen(context.Background(), func(_ context.Context) error {
		return taskErr
	})
	// The original error must come through unchanged.
	require.Equal(t, taskErr, err)
	assert.Equal(t, 1, screen.closed)
}

func TestWithConfirmationScreenClosesOnOpenError(t *testing.T) {
	screen := &fakeScreen{openErr: errors.New("window blocked")}
	svc := guardian.NewService("http://unused", staticTokens{}, screen, false)

	called := false
	err := svc.WithConfirmationScreen(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, 1, screen.closed)
}

func TestWithConfirmationScreenWithoutScreenRunsTask(t *testing.T) {
	svc := guardian.NewService("http://unused", staticTokens{}, nil, true)

	called := false
	err := svc.WithConfirmationScreen(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestEvaluateErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	svc := guardian.NewService(server.URL, staticTokens{}, nil, true)

	_, err := svc.EvaluateMessage(context.Background(), &guardian.MessageEvaluation{
		ChainID: big.NewInt(13473),
		Mode:    guardian.ModeERC191,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
