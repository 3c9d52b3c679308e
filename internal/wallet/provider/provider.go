// Package provider implements the top-level wallet provider: it owns the
// signer session across login/logout and dispatches each supported request
// method to the orchestration, policy, codec and chain layers beneath it.
package provider

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/chapool/smart-wallet/internal/util"
	"github/chapool/smart-wallet/internal/wallet/rpcerrors"
)

// Provider is the request dispatcher. It is the only component with session
// state; everything below it is stateless given its inputs.
type Provider struct {
	auth      Authenticator
	signers   SignerFactory
	registrar Registrar
	chain     ChainClient
	relayer   RelaySigner
	guardian  Guardian
	pipeline  Pipeline

	mu      sync.RWMutex
	session *session

	listenerMu       sync.RWMutex
	accountListeners []func(accounts []string)
}

// NewProvider creates the provider and subscribes it to the authentication
// provider's login/logout events. An identity already logged in at startup
// enters the session state machine immediately.
func NewProvider(ctx context.Context, deps Deps) *Provider {
	p := &Provider{
		auth:      deps.Auth,
		signers:   deps.Signers,
		registrar: deps.Registrar,
		chain:     deps.Chain,
		relayer:   deps.Relayer,
		guardian:  deps.Guardian,
		pipeline:  deps.Pipeline,
	}

	p.auth.OnLogin(func(user *User) {
		p.startSession(user)
	})
	p.auth.OnLogout(func() {
		p.clearSession()
	})

	if user, err := p.auth.GetUser(ctx); err == nil && user != nil {
		p.startSession(user)
	}

	return p
}

// OnAccountsChanged registers fn to receive the current address list whenever
// it changes; the list is empty after logout.
func (p *Provider) OnAccountsChanged(fn func(accounts []string)) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	p.accountListeners = append(p.accountListeners, fn)
}

// Request performs one provider request, returning the result or a
// code+message error from the provider's taxonomy.
func (p *Provider) Request(ctx context.Context, method string, params []any) (any, error) {
	result, err := p.dispatch(ctx, method, params)
	if err != nil {
		util.LogFromContext(ctx).Debug().
			Str("method", method).
			Err(err).
			Msg("Request failed")
		return nil, rpcerrors.Normalise(err)
	}

	return result, nil
}

// Call handles one envelope of the batched/callback transport.
func (p *Provider) Call(ctx context.Context, req RPCRequest) RPCResponse {
	res := RPCResponse{ID: req.ID, JSONRPC: "2.0"}

	result, err := p.Request(ctx, req.Method, req.Params)
	if err != nil {
		res.Error = rpcerrors.Normalise(err)
		return res
	}

	res.Result = result
	return res
}

//nolint:cyclop // The method vocabulary is a single closed match by design.
func (p *Provider) dispatch(ctx context.Context, method string, params []any) (any, error) {
	switch method {
	case MethodRequestAccounts:
		return p.requestAccounts(ctx)

	case MethodAccounts:
		if sess := p.currentSession(); sess != nil && sess.hasAddress() {
			return []string{sess.walletAddress().Hex()}, nil
		}
		return []string{}, nil

	case MethodSendTransaction:
		return p.sendTransaction(ctx, params)

	case MethodPersonalSign:
		return p.personalSign(ctx, params)

	case MethodSignTypedDataV4:
		return p.signTypedDataV4(ctx, params)

	case MethodChainID:
		chainID, err := p.chain.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		return hexutil.EncodeBig(chainID), nil

	case MethodGasPrice, MethodGetTransactionByHash, MethodGetTransactionReceipt,
		MethodGetBlockByHash, MethodGetBlockByNumber, MethodGetLogs, MethodEstimateGas:
		return p.passthrough(ctx, method, params)

	case MethodGetBalance, MethodGetCode, MethodGetTransactionCount, MethodCall:
		return p.passthrough(ctx, method, withDefaultBlockTag(params, 2))

	case MethodGetStorageAt:
		return p.passthrough(ctx, method, withDefaultBlockTag(params, 3))

	default:
		return nil, rpcerrors.Newf(rpcerrors.CodeUnsupportedMethod, "method %s is not supported", method)
	}
}

// requestAccounts returns the session address, forcing a login and a wallet
// registration for identities that have never been registered before.
func (p *Provider) requestAccounts(ctx context.Context) ([]string, error) {
	if sess := p.currentSession(); sess != nil && sess.hasAddress() {
		return []string{sess.walletAddress().Hex()}, nil
	}

	user, err := p.auth.GetUserOrLogin(ctx)
	if err != nil {
		return nil, rpcerrors.Newf(rpcerrors.CodeUnauthorized, "login failed: %s", err)
	}

	sess := p.currentSession()
	if sess == nil || sess.user != user {
		sess = p.startSession(user)
	}

	if !sess.hasAddress() {
		signer, err := sess.resolveSigner(ctx)
		if err != nil {
			return nil, err
		}

		signerAddress, err := signer.Address(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve signer address")
		}

		walletAddress, err := p.registrar.RegisterWallet(ctx, user, signerAddress)
		if err != nil {
			return nil, errors.Wrap(err, "failed to register smart wallet")
		}

		p.mu.Lock()
		if p.session == sess {
			sess.setAddress(walletAddress)
		}
		p.mu.Unlock()
	}

	address := sess.walletAddress().Hex()
	p.emitAccountsChanged([]string{address})

	return []string{address}, nil
}

// sendTransaction prepares, submits and polls a transaction to completion,
// scoped to the confirmation surface.
func (p *Provider) sendTransaction(ctx context.Context, params []any) (any, error) {
	sess, err := p.authorisedSession()
	if err != nil {
		return nil, err
	}

	req, err := transactionRequestParam(params)
	if err != nil {
		return nil, err
	}

	walletAddress := sess.walletAddress()

	var hash string
	err = p.guardian.WithConfirmationScreen(ctx, func(ctx context.Context) error {
		signer, err := sess.resolveSigner(ctx)
		if err != nil {
			return err
		}

		result, err := p.pipeline.PrepareAndSubmit(ctx, req, signer, walletAddress)
		if err != nil {
			return err
		}

		tx, err := p.pipeline.PollToCompletion(ctx, result.RelayerID)
		if err != nil {
			return err
		}

		hash = tx.Hash
		return nil
	})
	if err != nil {
		return nil, err
	}

	return hash, nil
}

func (p *Provider) passthrough(ctx context.Context, method string, params []any) (any, error) {
	var result any
	if err := p.chain.Send(ctx, &result, method, params...); err != nil {
		return nil, err
	}

	return result, nil
}

// withDefaultBlockTag appends "latest" when the optional trailing block tag
// parameter at position size-1 is omitted.
func withDefaultBlockTag(params []any, size int) []any {
	if len(params) >= size {
		return params
	}
	return append(params, "latest")
}

// startSession replaces the session wholesale.
func (p *Provider) startSession(user *User) *session {
	sess := newSession(user, p.signers)

	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()

	log.Debug().Bool("registered", sess.hasAddress()).Msg("Started wallet session")

	return sess
}

// clearSession clears the session wholesale and notifies subscribers.
func (p *Provider) clearSession() {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()

	p.emitAccountsChanged([]string{})

	log.Debug().Msg("Cleared wallet session")
}

func (p *Provider) currentSession() *session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// authorisedSession returns the session when it has a wallet address, or an
// unauthorized error otherwise.
func (p *Provider) authorisedSession() (*session, error) {
	sess := p.currentSession()
	if sess == nil || !sess.hasAddress() {
		return nil, rpcerrors.New(rpcerrors.CodeUnauthorized, "no active wallet session")
	}

	return sess, nil
}

func (p *Provider) emitAccountsChanged(accounts []string) {
	p.listenerMu.RLock()
	listeners := make([]func([]string), len(p.accountListeners))
	copy(listeners, p.accountListeners)
	p.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(accounts)
	}
}
