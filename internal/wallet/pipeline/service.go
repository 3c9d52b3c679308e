// Package pipeline composes the codec, relaying and policy clients into the
// transaction orchestrator: it fetches nonce, fee quote and network id
// concurrently, assembles the meta-transaction set, runs policy validation
// and signing in parallel, submits and polls to completion.
package pipeline

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github/chapool/smart-wallet/internal/util"
	"github/chapool/smart-wallet/internal/wallet"
	"github/chapool/smart-wallet/internal/wallet/chain"
	"github/chapool/smart-wallet/internal/wallet/codec"
	"github/chapool/smart-wallet/internal/wallet/guardian"
	"github/chapool/smart-wallet/internal/wallet/rpcerrors"
)

const (
	defaultPollInterval    = time.Second
	defaultPollMaxAttempts = 30
)

type service struct {
	relayer  RelayerClient
	guardian GuardianService
	chain    ChainClient
	cfg      Config
}

// NewService creates the transaction orchestrator.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(relayerClient RelayerClient, guardianService GuardianService, chainClient ChainClient, cfg Config) Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = defaultPollMaxAttempts
	}

	return &service{
		relayer:  relayerClient,
		guardian: guardianService,
		chain:    chainClient,
		cfg:      cfg,
	}
}

// PrepareAndSubmit builds, validates, signs and submits the transaction.
func (s *service) PrepareAndSubmit(
	ctx context.Context,
	req *wallet.TransactionRequest,
	signer wallet.Signer,
	walletAddress common.Address,
) (*Result, error) {
	if req == nil || req.To == nil {
		return nil, rpcerrors.New(rpcerrors.CodeInvalidParams, "eth_sendTransaction requires a \"to\" field")
	}

	var (
		metaTransactions []wallet.MetaTransaction
		nonce            *big.Int
		chainID          *big.Int
	)

	// Fee quote, nonce and network id are independent network calls; issue
	// them together.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		metaTransactions, err = s.buildMetaTransactions(groupCtx, req, walletAddress)
		return err
	})
	group.Go(func() error {
		var err error
		nonce, err = s.getNonce(groupCtx, walletAddress)
		return err
	})
	group.Go(func() error {
		var err error
		chainID, err = s.chain.ChainID(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Policy validation and signing run concurrently: signing does not wait
	// for approval, and a rejection discards the signed blob unsubmitted.
	var signedData []byte
	group, groupCtx = errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.guardian.CheckTransaction(groupCtx, &guardian.TransactionEvaluation{
			ChainID:          chainID,
			Nonce:            nonce,
			WalletAddress:    walletAddress,
			MetaTransactions: codec.Normalise(metaTransactions),
		})
	})
	group.Go(func() error {
		var err error
		signedData, err = codec.SignMetaTransactions(groupCtx, metaTransactions, nonce, chainID, walletAddress, signer)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	relayerID, err := s.relayer.SendTransaction(ctx, walletAddress, signedData)
	if err != nil {
		return nil, err
	}

	util.LogFromContext(ctx).Debug().
		Str("relayerId", relayerID).
		Str("nonce", nonce.String()).
		Int("metaTransactions", len(metaTransactions)).
		Msg("Submitted transaction to relayer")

	return &Result{
		SignedData: signedData,
		RelayerID:  relayerID,
		Nonce:      nonce,
	}, nil
}

// buildMetaTransactions assembles the candidate call and appends a
// fee-payment leg unless the quoted fee designates a sponsored transaction.
func (s *service) buildMetaTransactions(
	ctx context.Context,
	req *wallet.TransactionRequest,
	walletAddress common.Address,
) ([]wallet.MetaTransaction, error) {
	revertOnError := true

	candidate := wallet.MetaTransaction{
		To:            req.To,
		Data:          req.Data,
		RevertOnError: &revertOnError,
	}
	if req.Value != nil {
		candidate.Value = req.Value.ToInt()
	}

	// The quote is taken against the encoded call with a zero nonce and an
	// empty signature; the relayer only prices calldata shape and gas.
	encoded, err := codec.EncodeExecute(codec.Normalise([]wallet.MetaTransaction{candidate}), big.NewInt(0), nil)
	if err != nil {
		return nil, err
	}

	feeOptions, err := s.relayer.GetFeeOptions(ctx, walletAddress, encoded)
	if err != nil {
		return nil, err
	}

	feeOption, err := s.selectFeeOption(feeOptions)
	if err != nil {
		return nil, err
	}

	tokenPrice, err := wallet.ParseBigInt(feeOption.TokenPrice)
	if err != nil {
		return nil, errors.Wrap(err, "invalid fee option token price")
	}

	metaTransactions := []wallet.MetaTransaction{candidate}

	// A zero token price is a sponsored transaction; no fee leg is appended.
	if tokenPrice.Sign() != 0 {
		recipient := common.HexToAddress(feeOption.RecipientAddress)
		metaTransactions = append(metaTransactions, wallet.MetaTransaction{
			To:            &recipient,
			Value:         tokenPrice,
			RevertOnError: &revertOnError,
		})
	}

	return metaTransactions, nil
}

func (s *service) selectFeeOption(options []wallet.FeeOption) (*wallet.FeeOption, error) {
	if len(options) == 0 {
		return nil, errors.New("relayer quoted no fee options")
	}

	if s.cfg.FeeTokenSymbol == "" {
		return &options[0], nil
	}

	for i := range options {
		if options[i].TokenSymbol == s.cfg.FeeTokenSymbol {
			return &options[i], nil
		}
	}

	return nil, errors.Errorf("relayer quoted no fee option for token %s", s.cfg.FeeTokenSymbol)
}

// getNonce reads the wallet's nonce, mapping the not-deployed case to 0. Any
// other failure propagates unchanged.
func (s *service) getNonce(ctx context.Context, walletAddress common.Address) (*big.Int, error) {
	nonce, err := s.chain.WalletNonce(ctx, walletAddress)
	if err != nil {
		if errors.Is(err, chain.ErrWalletNotDeployed) {
			return big.NewInt(0), nil
		}
		return nil, err
	}

	return nonce, nil
}

// PollToCompletion polls the relayer until the transaction leaves PENDING,
// bounded at a fixed attempt count with a fixed interval.
func (s *service) PollToCompletion(ctx context.Context, relayerID string) (*wallet.RelayerTransaction, error) {
	for attempt := 0; attempt < s.cfg.PollMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.PollInterval):
			}
		}

		tx, err := s.relayer.GetTransactionByHash(ctx, relayerID)
		if err != nil {
			return nil, err
		}

		switch tx.Status {
		case wallet.StatusPending:
			continue
		case wallet.StatusSubmitted, wallet.StatusSuccessful:
			return tx, nil
		case wallet.StatusFailed, wallet.StatusCancelled:
			return nil, rpcerrors.Newf(rpcerrors.CodeInternal, "transaction failed to settle: %s", tx.StatusMessage)
		default:
			return nil, rpcerrors.Newf(rpcerrors.CodeInternal, "relayer reported unexpected status %s", tx.Status)
		}
	}

	return nil, rpcerrors.New(rpcerrors.CodeServerError, "transaction hash not generated in time")
}

// PrepareEjectionTransaction signs a transaction for detaching the wallet
// from the managed environment, skipping relaying and policy entirely.
func (s *service) PrepareEjectionTransaction(
	ctx context.Context,
	req *EjectionRequest,
	signer wallet.Signer,
	walletAddress common.Address,
) (*EjectionResult, error) {
	if req == nil || req.To == nil {
		return nil, rpcerrors.New(rpcerrors.CodeInvalidParams, "ejection transactions require a \"to\" field")
	}
	if req.Nonce == nil {
		return nil, rpcerrors.New(rpcerrors.CodeInvalidParams, "ejection transactions require an explicit nonce")
	}
	if req.ChainID == nil {
		return nil, rpcerrors.New(rpcerrors.CodeInvalidParams, "ejection transactions require an explicit chain id")
	}

	revertOnError := true
	metaTransaction := wallet.MetaTransaction{
		To:            req.To,
		Data:          req.Data,
		RevertOnError: &revertOnError,
	}
	if req.Value != nil {
		metaTransaction.Value = req.Value.ToInt()
	}

	nonce := req.Nonce.ToInt()
	chainID := req.ChainID.ToInt()

	signedData, err := codec.SignMetaTransactions(ctx, []wallet.MetaTransaction{metaTransaction}, nonce, chainID, walletAddress, signer)
	if err != nil {
		return nil, err
	}

	return &EjectionResult{
		To:      walletAddress,
		Data:    signedData,
		ChainID: wallet.EIP155ChainReference(chainID),
		Nonce:   nonce,
	}, nil
}
