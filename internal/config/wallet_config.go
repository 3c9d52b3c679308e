package config

import (
	"time"

	"github/chapool/smart-wallet/internal/util"
)

// Wallet holds the configuration of the smart-wallet core: the relaying and
// guardian endpoints, the chain RPC nodes and the transaction polling bounds.
type Wallet struct {
	RelayerBaseURL   string
	GuardianBaseURL  string
	RPCURLs          []string
	FeeTokenSymbol   string
	BridgeRestricted bool
	PollInterval     time.Duration
	PollMaxAttempts  int
}

// Echo holds the bridge HTTP server configuration.
type Echo struct {
	ListenAddress                  string
	HideInternalServerErrorDetails bool
}

// Auth holds the pre-provisioned identity used by the headless bridge
// server, where no interactive login flow is available.
type Auth struct {
	AccessToken      string
	WalletAddress    string
	SignerPrivateKey string
}

// Server wraps all service configuration, sourced from ENV.
type Server struct {
	Wallet Wallet
	Echo   Echo
	Auth   Auth
}

// DefaultServiceConfigFromEnv returns the server config sourced from ENV with
// local development defaults.
func DefaultServiceConfigFromEnv() Server {
	return Server{
		Wallet: Wallet{
			RelayerBaseURL:   util.GetEnv("WALLET_RELAYER_BASE_URL", "http://localhost:8545"),
			GuardianBaseURL:  util.GetEnv("WALLET_GUARDIAN_BASE_URL", "http://localhost:8546"),
			RPCURLs:          util.GetEnvAsStringArr("WALLET_RPC_URLS", []string{"http://localhost:8547"}),
			FeeTokenSymbol:   util.GetEnv("WALLET_FEE_TOKEN_SYMBOL", ""),
			BridgeRestricted: util.GetEnvAsBool("WALLET_BRIDGE_RESTRICTED", false),
			PollInterval:     util.GetEnvAsDuration("WALLET_POLL_INTERVAL", time.Second),
			PollMaxAttempts:  util.GetEnvAsInt("WALLET_POLL_MAX_ATTEMPTS", 30),
		},
		Auth: Auth{
			AccessToken:      util.GetEnv("AUTH_ACCESS_TOKEN", ""),
			WalletAddress:    util.GetEnv("AUTH_WALLET_ADDRESS", ""),
			SignerPrivateKey: util.GetEnv("AUTH_SIGNER_PRIVATE_KEY", ""),
		},
		Echo: Echo{
			ListenAddress:                  util.GetEnv("SERVER_ECHO_LISTEN_ADDRESS", ":8080"),
			HideInternalServerErrorDetails: util.GetEnvAsBool("SERVER_ECHO_HIDE_INTERNAL_SERVER_ERROR_DETAILS", true),
		},
	}
}
