package server

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github/chapool/smart-wallet/internal/config"
	"github/chapool/smart-wallet/internal/wallet"
	"github/chapool/smart-wallet/internal/wallet/provider"
	"github/chapool/smart-wallet/internal/wallet/signer"
)

// staticAuthenticator serves a single identity provisioned through ENV. The
// bridge has no interactive login flow, so GetUserOrLogin cannot do more than
// return the provisioned user.
type staticAuthenticator struct {
	mu        sync.Mutex
	user      *provider.User
	loginFns  []func(user *provider.User)
	logoutFns []func()
}

func newStaticAuthenticator(cfg config.Auth) *staticAuthenticator {
	a := &staticAuthenticator{}

	if cfg.AccessToken != "" {
		a.user = &provider.User{
			AccessToken:   cfg.AccessToken,
			WalletAddress: cfg.WalletAddress,
		}
	}

	return a
}

func (a *staticAuthenticator) GetUser(_ context.Context) (*provider.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return nil, errors.New("no identity is provisioned")
	}

	return a.user, nil
}

func (a *staticAuthenticator) GetUserOrLogin(ctx context.Context) (*provider.User, error) {
	return a.GetUser(ctx)
}

func (a *staticAuthenticator) OnLogin(fn func(user *provider.User)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loginFns = append(a.loginFns, fn)
}

func (a *staticAuthenticator) OnLogout(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logoutFns = append(a.logoutFns, fn)
}

// authTokenSource exposes the authenticated user's access token to the
// relayer and guardian clients.
type authTokenSource struct {
	auth provider.Authenticator
}

func (s *authTokenSource) AccessToken(ctx context.Context) (string, error) {
	user, err := s.auth.GetUser(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve access token")
	}

	return user.AccessToken, nil
}

// staticSignerFactory materialises the session signer from the ENV-provisioned
// private key, regardless of which user logs in.
type staticSignerFactory struct {
	hexKey string
}

//nolint:ireturn // Returning interface is intentional
func (f *staticSignerFactory) NewSigner(_ context.Context, _ *provider.User) (wallet.Signer, error) {
	if f.hexKey == "" {
		return nil, errors.New("no signer private key is provisioned")
	}

	return signer.NewPrivateKeySigner(f.hexKey)
}

// staticRegistrar rejects registration. The bridge expects the wallet address
// to be provisioned alongside the access token.
type staticRegistrar struct{}

func (r *staticRegistrar) RegisterWallet(_ context.Context, _ *provider.User, _ common.Address) (common.Address, error) {
	return common.Address{}, errors.New("wallet registration is not available in bridge mode")
}
