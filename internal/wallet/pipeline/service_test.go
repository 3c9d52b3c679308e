package pipeline_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/smart-wallet/internal/wallet"
	"github/chapool/smart-wallet/internal/wallet/chain"
	"github/chapool/smart-wallet/internal/wallet/guardian"
	"github/chapool/smart-wallet/internal/wallet/pipeline"
	"github/chapool/smart-wallet/internal/wallet/rpcerrors"
)

type stubRelayer struct {
	mu           sync.Mutex
	feeOptions   []wallet.FeeOption
	feeErr       error
	sendCalls    int
	sentData     []byte
	sendErr      error
	transactions []*wallet.RelayerTransaction
	pollCalls    int
	pollErr      error
}

func (s *stubRelayer) SendTransaction(_ context.Context, _ common.Address, signedData []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCalls++
	s.sentData = signedData
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return "relayer-id-1", nil
}

func (s *stubRelayer) GetTransactionByHash(_ context.Context, _ string) (*wallet.RelayerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollCalls++
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	if len(s.transactions) == 0 {
		return &wallet.RelayerTransaction{Status: wallet.StatusPending}, nil
	}
	tx := s.transactions[0]
	if len(s.transactions) > 1 {
		s.transactions = s.transactions[1:]
	}
	return tx, nil
}

func (s *stubRelayer) GetFeeOptions(_ context.Context, _ common.Address, _ []byte) ([]wallet.FeeOption, error) {
	if s.feeErr != nil {
		return nil, s.feeErr
	}
	return s.feeOptions, nil
}

type stubGuardian struct {
	mu         sync.Mutex
	checkCalls int
	checkErr   error
	evaluation *guardian.TransactionEvaluation
}

func (s *stubGuardian) CheckTransaction(_ context.Context, evaluation *guardian.TransactionEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkCalls++
	s.evaluation = evaluation
	return s.checkErr
}

type stubChain struct {
	chainID  *big.Int
	nonce    *big.Int
	nonceErr error
}

func (s *stubChain) ChainID(_ context.Context) (*big.Int, error) {
	return s.chainID, nil
}

func (s *stubChain) WalletNonce(_ context.Context, _ common.Address) (*big.Int, error) {
	if s.nonceErr != nil {
		return nil, s.nonceErr
	}
	return s.nonce, nil
}

type stubSigner struct{}

func (stubSigner) Address(_ context.Context) (common.Address, error) {
	return common.HexToAddress("0x9999999999999999999999999999999999999999"), nil
}

func (stubSigner) SignMessage(_ context.Context, _ []byte) ([]byte, error) {
	signature := make([]byte, 65)
	signature[64] = 27
	return signature, nil
}

func sponsoredOption() []wallet.FeeOption {
	return []wallet.FeeOption{{TokenPrice: "0x0", TokenSymbol: "IMX"}}
}

func transactionRequest() *wallet.TransactionRequest {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	return &wallet.TransactionRequest{To: &to, Data: hexutil.Bytes{0xde, 0xad}}
}

func TestPrepareAndSubmitSponsored(t *testing.T) {
	relayer := &stubRelayer{feeOptions: sponsoredOption()}
	guard := &stubGuardian{}
	chainClient := &stubChain{chainID: big.NewInt(13473), nonce: big.NewInt(7)}

	svc := pipeline.NewService(relayer, guard, chainClient, pipeline.Config{})

	result, err := svc.PrepareAndSubmit(context.Background(), transactionRequest(), stubSigner{}, common.Address{})
	require.NoError(t, err)

	assert.Equal(t, "relayer-id-1", result.RelayerID)
	assert.Equal(t, big.NewInt(7), result.Nonce)
	assert.NotEmpty(t, result.SignedData)

	// Sponsored quotes produce a single meta-transaction, no fee leg.
	require.NotNil(t, guard.evaluation)
	assert.Len(t, guard.evaluation.MetaTransactions, 1)
	assert.Equal(t, big.NewInt(7), guard.evaluation.Nonce)
	assert.Equal(t, 1, relayer.sendCalls)
}

func TestPrepareAndSubmitAppendsFeeLeg(t *testing.T) {
	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")
	relayer := &stubRelayer{feeOptions: []wallet.FeeOption{{
		TokenPrice:       "100",
		TokenSymbol:      "IMX",
		RecipientAddress: recipient.Hex(),
	}}}
	guard := &stubGuardian{}
	chainClient := &stubChain{chainID: big.NewInt(13473), nonce: big.NewInt(0)}

	svc := pipeline.NewService(relayer, guard, chainClient, pipeline.Config{})

	_, err := svc.PrepareAndSubmit(context.Background(), transactionRequest(), stubSigner{}, common.Address{})
	require.NoError(t, err)

	require.NotNil(t, guard.evaluation)
	require.Len(t, guard.evaluation.MetaTransactions, 2)
	feeLeg := guard.evaluation.MetaTransactions[1]
	assert.Equal(t, recipient, feeLeg.Target)
	assert.Equal(t, big.NewInt(100), feeLeg.Value)
}

func TestPrepareAndSubmitSelectsConfiguredFeeToken(t *testing.T) {
	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")
	relayer := &stubRelayer{feeOptions: []wallet.FeeOption{
		{TokenPrice: "55", TokenSymbol: "USDC", RecipientAddress: recipient.Hex()},
		{TokenPrice: "100", TokenSymbol: "IMX", RecipientAddress: recipient.Hex()},
	}}
	guard := &stubGuardian{}
	chainClient := &stubChain{chainID: big.NewInt(13473), nonce: big.NewInt(0)}

	svc := pipeline.NewService(relayer, guard, chainClient, pipeline.Config{FeeTokenSymbol: "IMX"})

	_, err := svc.PrepareAndSubmit(context.Background(), transactionRequest(), stubSigner{}, common.Address{})
	require.NoError(t, err)

	require.Len(t, guard.evaluation.MetaTransactions, 2)
	assert.Equal(t, big.NewInt(100), guard.evaluation.MetaTransactions[1].Value)
}

func TestPrepareAndSubmitRequiresTo(t *testing.T) {
	svc := pipeline.NewService(&stubRelayer{}, &stubGuardian{}, &stubChain{}, pipeline.Config{})

	_, err := svc.PrepareAndSubmit(context.Background(), &wallet.TransactionRequest{}, stubSigner{}, common.Address{})
	require.Error(t, err)
	assert.True(t, rpcerrors.HasCode(err, rpcerrors.CodeInvalidParams))
}

func TestPrepareAndSubmitNoFeeOptions(t *testing.T) {
	relayer := &stubRelayer{feeOptions: []wallet.FeeOption{}}
	svc := pipeline.NewService(relayer, &stubGuardian{}, &stubChain{chainID: big.NewInt(1), nonce: big.NewInt(0)}, pipeline.Config{})

	_, err := svc.PrepareAndSubmit(context.Background(), transactionRequest(), stubSigner{}, common.Address{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fee options")
	assert.Zero(t, relayer.sendCalls)
}

func TestPrepareAndSubmitRejectionSkipsSubmission(t *testing.T) {
	relayer := &stubRelayer{feeOptions: sponsoredOption()}
	guard := &stubGuardian{checkErr: rpcerrors.New(rpcerrors.CodeUserRejected, "user rejected the request")}
	chainClient := &stubChain{chainID: big.NewInt(13473), nonce: big.NewInt(0)}

	svc := pipeline.NewService(relayer, guard, chainClient, pipeline.Config{})

	_, err := svc.PrepareAndSubmit(context.Background(), transactionRequest(), stubSigner{}, common.Address{})
	require.Error(t, err)
	assert.True(t, rpcerrors.HasCode(err, rpcerrors.CodeUserRejected))

	// The signed payload never reaches the relayer.
	assert.Zero(t, relayer.sendCalls)
}

func TestGetNonceMapsNotDeployedToZero(t *testing.T) {
	relayer := &stubRelayer{feeOptions: sponsoredOption()}
	guard := &stubGuardian{}
	chainClient := &stubChain{chainID: big.NewInt(13473), nonceErr: chain.ErrWalletNotDeployed}

	svc := pipeline.NewService(relayer, guard, chainClient, pipeline.Config{})

	result, err := svc.PrepareAndSubmit(context.Background(), transactionRequest(), stubSigner{}, common.Address{})
	require.NoError(t, err)
	assert.Zero(t, result.Nonce.Sign())
}

func TestGetNonceOtherErrorsPropagate(t *testing.T) {
	nonceErr := errors.New("rpc unavailable")
	relayer := &stubRelayer{feeOptions: sponsoredOption()}
	chainClient := &stubChain{chainID: big.NewInt(13473), nonceErr: nonceErr}

	svc := pipeline.NewService(relayer, &stubGuardian{}, chainClient, pipeline.Config{})

	_, err := svc.PrepareAndSubmit(context.Background(), transactionRequest(), stubSigner{}, common.Address{})
	require.ErrorIs(t, err, nonceErr)
}

func TestPollToCompletionReturnsOnSettled(t *testing.T) {
	relayer := &stubRelayer{transactions: []*wallet.RelayerTransaction{
		{Status: wallet.StatusPending},
		{Status: wallet.StatusSuccessful, Hash: "0xabc"},
	}}

	svc := pipeline.NewService(relayer, &stubGuardian{}, &stubChain{}, pipeline.Config{PollInterval: time.Millisecond})

	tx, err := svc.PollToCompletion(context.Background(), "relayer-id-1")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", tx.Hash)
	assert.Equal(t, 2, relayer.pollCalls)
}

func TestPollToCompletionFailedStatus(t *testing.T) {
	relayer := &stubRelayer{transactions: []*wallet.RelayerTransaction{
		{Status: wallet.StatusFailed, StatusMessage: "reverted"},
	}}

	svc := pipeline.NewService(relayer, &stubGuardian{}, &stubChain{}, pipeline.Config{PollInterval: time.Millisecond})

	_, err := svc.PollToCompletion(context.Background(), "relayer-id-1")
	require.Error(t, err)
	assert.True(t, rpcerrors.HasCode(err, rpcerrors.CodeInternal))
	assert.Contains(t, err.Error(), "reverted")
}

func TestPollToCompletionBounded(t *testing.T) {
	relayer := &stubRelayer{}

	svc := pipeline.NewService(relayer, &stubGuardian{}, &stubChain{}, pipeline.Config{
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 30,
	})

	_, err := svc.PollToCompletion(context.Background(), "relayer-id-1")
	require.Error(t, err)
	assert.True(t, rpcerrors.HasCode(err, rpcerrors.CodeServerError))
	assert.Contains(t, err.Error(), "transaction hash not generated in time")
	assert.Equal(t, 30, relayer.pollCalls)
}

func TestPrepareEjectionTransaction(t *testing.T) {
	svc := pipeline.NewService(nil, nil, nil, pipeline.Config{})

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	walletAddress := common.HexToAddress("0x3333333333333333333333333333333333333333")

	result, err := svc.PrepareEjectionTransaction(context.Background(), &pipeline.EjectionRequest{
		To:      &to,
		Nonce:   (*hexutil.Big)(big.NewInt(4)),
		ChainID: (*hexutil.Big)(big.NewInt(13473)),
	}, stubSigner{}, walletAddress)
	require.NoError(t, err)

	assert.Equal(t, walletAddress, result.To)
	assert.Equal(t, "eip155:13473", result.ChainID)
	assert.Equal(t, big.NewInt(4), result.Nonce)
	assert.NotEmpty(t, result.Data)
}

func TestPrepareEjectionTransactionValidation(t *testing.T) {
	svc := pipeline.NewService(nil, nil, nil, pipeline.Config{})
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")

	tests := []struct {
		name string
		req  *pipeline.EjectionRequest
	}{
		{"missing to", &pipeline.EjectionRequest{Nonce: (*hexutil.Big)(big.NewInt(0)), ChainID: (*hexutil.Big)(big.NewInt(1))}},
		{"missing nonce", &pipeline.EjectionRequest{To: &to, ChainID: (*hexutil.Big)(big.NewInt(1))}},
		{"missing chain id", &pipeline.EjectionRequest{To: &to, Nonce: (*hexutil.Big)(big.NewInt(0))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PrepareEjectionTransaction(context.Background(), tt.req, stubSigner{}, common.Address{})
			require.Error(t, err)
			assert.True(t, rpcerrors.HasCode(err, rpcerrors.CodeInvalidParams))
		})
	}
}
