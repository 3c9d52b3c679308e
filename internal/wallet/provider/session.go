package provider

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/chapool/smart-wallet/internal/wallet"
)

// session holds the state of one logged-in identity. It is created wholesale
// on login and discarded wholesale on logout; the signer is materialised
// asynchronously so login never blocks on key custody.
type session struct {
	user *User

	// addressMu guards address: registration fills it in after the session
	// is published, while other request goroutines read it.
	addressMu sync.RWMutex
	address   common.Address

	// done is closed once signer materialisation finished, successfully or not.
	done   chan struct{}
	signer wallet.Signer
	err    error
}

func newSession(user *User, factory SignerFactory) *session {
	s := &session{
		user: user,
		done: make(chan struct{}),
	}

	if user.WalletAddress != "" {
		s.address = common.HexToAddress(user.WalletAddress)
	}

	go func() {
		defer close(s.done)

		// Detached from the request context: the session outlives the
		// request that triggered the login.
		signer, err := factory.NewSigner(context.Background(), user)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to materialise session signer")
			s.err = errors.Wrap(err, "failed to materialise signer")
			return
		}

		s.signer = signer
	}()

	return s
}

// resolveSigner blocks until the signer is materialised or ctx is done.
func (s *session) resolveSigner(ctx context.Context) (wallet.Signer, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
	}

	if s.err != nil {
		return nil, s.err
	}

	return s.signer, nil
}

// walletAddress returns the session's wallet address, zero when unknown.
func (s *session) walletAddress() common.Address {
	s.addressMu.RLock()
	defer s.addressMu.RUnlock()
	return s.address
}

func (s *session) setAddress(address common.Address) {
	s.addressMu.Lock()
	s.address = address
	s.addressMu.Unlock()
}

// hasAddress reports whether the session's wallet address is known.
func (s *session) hasAddress() bool {
	return s.walletAddress() != (common.Address{})
}
