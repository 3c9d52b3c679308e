// Package guardian implements the policy/confirmation client: it evaluates
// pending transactions and messages against the policy service and pauses for
// interactive user confirmation when the verdict requires it.
package guardian

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github/chapool/smart-wallet/internal/util"
	"github/chapool/smart-wallet/internal/wallet"
	"github/chapool/smart-wallet/internal/wallet/rpcerrors"
)

const (
	evaluateTransactionPath = "/v1/transactions/evaluate"
	evaluateMessagePath     = "/v1/messages/evaluate"
)

const defaultRequestTimeout = 30 * time.Second

type service struct {
	baseURL          string
	httpClient       *http.Client
	tokens           wallet.TokenSource
	screen           ConfirmationScreen
	bridgeRestricted bool
}

// NewService creates a policy client. screen may be nil only when
// bridgeRestricted is set; in that mode operations requiring confirmation
// fail instead of prompting.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(baseURL string, tokens wallet.TokenSource, screen ConfirmationScreen, bridgeRestricted bool) Service {
	return &service{
		baseURL:          baseURL,
		httpClient:       &http.Client{Timeout: defaultRequestTimeout},
		tokens:           tokens,
		screen:           screen,
		bridgeRestricted: bridgeRestricted,
	}
}

// EvaluateTransaction asks the policy service to evaluate a meta-transaction set.
func (s *service) EvaluateTransaction(ctx context.Context, evaluation *TransactionEvaluation) (*Result, error) {
	metaTransactions := make([]metaTransactionWire, 0, len(evaluation.MetaTransactions))
	for _, tx := range evaluation.MetaTransactions {
		metaTransactions = append(metaTransactions, metaTransactionWire{
			DelegateCall:  tx.DelegateCall,
			RevertOnError: tx.RevertOnError,
			GasLimit:      tx.GasLimit.String(),
			Target:        tx.Target.Hex(),
			Value:         tx.Value.String(),
			Data:          hexutil.Encode(tx.Data),
		})
	}

	return s.evaluate(ctx, evaluateTransactionPath, evaluateTransactionPayload{
		ChainID: wallet.EIP155ChainReference(evaluation.ChainID),
		TransactionData: transactionDataPayload{
			Nonce:            evaluation.Nonce.String(),
			UserAddress:      evaluation.WalletAddress.Hex(),
			MetaTransactions: metaTransactions,
		},
	})
}

// EvaluateMessage asks the policy service to evaluate a message signature.
func (s *service) EvaluateMessage(ctx context.Context, evaluation *MessageEvaluation) (*Result, error) {
	return s.evaluate(ctx, evaluateMessagePath, evaluateMessagePayload{
		ChainID:     wallet.EIP155ChainReference(evaluation.ChainID),
		SigningMode: evaluation.Mode,
		Message:     evaluation.Message,
		TypedData:   evaluation.TypedData,
	})
}

// CheckTransaction evaluates the transaction and drives confirmation when required.
func (s *service) CheckTransaction(ctx context.Context, evaluation *TransactionEvaluation) error {
	result, err := s.EvaluateTransaction(ctx, evaluation)
	if err != nil {
		return err
	}

	return s.confirm(ctx, result.ConfirmationRequired, func(ctx context.Context) (bool, error) {
		return s.screen.ConfirmTransaction(ctx, result.TransactionID, wallet.EIP155ChainReference(evaluation.ChainID))
	})
}

// CheckMessage evaluates the message and drives confirmation when required.
func (s *service) CheckMessage(ctx context.Context, evaluation *MessageEvaluation) error {
	result, err := s.EvaluateMessage(ctx, evaluation)
	if err != nil {
		return err
	}

	return s.confirm(ctx, result.ConfirmationRequired, func(ctx context.Context) (bool, error) {
		return s.screen.ConfirmMessage(ctx, result.MessageID, wallet.EIP155ChainReference(evaluation.ChainID))
	})
}

// confirm implements the policy outcome state machine: not required closes
// any open surface and continues; required without an interactive surface is
// a rejection; otherwise the user decides.
func (s *service) confirm(ctx context.Context, required bool, prompt func(ctx context.Context) (bool, error)) error {
	if !required {
		if s.screen != nil {
			s.screen.Close()
		}
		return nil
	}

	if s.bridgeRestricted || s.screen == nil {
		return rpcerrors.New(rpcerrors.CodeUserRejected, "confirmation is required but cannot be presented in this environment")
	}

	confirmed, err := prompt(ctx)
	if err != nil {
		return errors.Wrap(err, "confirmation prompt failed")
	}
	if !confirmed {
		return rpcerrors.New(rpcerrors.CodeUserRejected, "user rejected the request")
	}

	return nil
}

// WithConfirmationScreen scopes task to an open confirmation surface. The
// surface is closed on every error exit, including a failure to open; on
// success it stays open for the caller.
func (s *service) WithConfirmationScreen(ctx context.Context, task func(ctx context.Context) error) error {
	if s.screen == nil {
		return task(ctx)
	}

	if err := s.screen.Open(ctx); err != nil {
		s.screen.Close()
		return errors.Wrap(err, "failed to open confirmation screen")
	}

	if err := task(ctx); err != nil {
		s.screen.Close()
		return err
	}

	return nil
}

func (s *service) evaluate(ctx context.Context, path string, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal evaluation payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve access token")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "policy evaluation failed")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		util.LogFromContext(ctx).Warn().
			Str("path", path).
			Int("status", res.StatusCode).
			Msg("Policy service returned unexpected status")
		return nil, errors.Errorf("policy evaluation returned status %d", res.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode evaluation result")
	}

	return &result, nil
}
