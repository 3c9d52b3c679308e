package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/chapool/smart-wallet/internal/api"
	"github/chapool/smart-wallet/internal/api/handlers"
	"github/chapool/smart-wallet/internal/config"
	"github/chapool/smart-wallet/internal/wallet/chain"
	"github/chapool/smart-wallet/internal/wallet/guardian"
	"github/chapool/smart-wallet/internal/wallet/pipeline"
	"github/chapool/smart-wallet/internal/wallet/provider"
	"github/chapool/smart-wallet/internal/wallet/relayer"
)

const shutdownTimeout = 30 * time.Second

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Starts the smart-wallet bridge server",
		Long: `Starts the smart-wallet bridge server.
Requires configuration through ENV.`,
		Run: func(_ *cobra.Command, _ []string) {
			runServer()
		},
	}
}

func runServer() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.DefaultServiceConfigFromEnv()

	chainClient, err := chain.NewClient(cfg.Wallet.RPCURLs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create chain client")
	}
	defer chainClient.Close()

	auth := newStaticAuthenticator(cfg.Auth)
	tokens := &authTokenSource{auth: auth}

	relayerClient := relayer.NewClient(cfg.Wallet.RelayerBaseURL, tokens, chainClient)

	// The bridge is headless, so no confirmation screen can be presented.
	// Requests that require one fail as user-rejected.
	guardianService := guardian.NewService(cfg.Wallet.GuardianBaseURL, tokens, nil, cfg.Wallet.BridgeRestricted)

	pipelineService := pipeline.NewService(relayerClient, guardianService, chainClient, pipeline.Config{
		PollInterval:    cfg.Wallet.PollInterval,
		PollMaxAttempts: cfg.Wallet.PollMaxAttempts,
		FeeTokenSymbol:  cfg.Wallet.FeeTokenSymbol,
	})

	walletProvider := provider.NewProvider(ctx, provider.Deps{
		Auth:      auth,
		Signers:   &staticSignerFactory{hexKey: cfg.Auth.SignerPrivateKey},
		Registrar: &staticRegistrar{},
		Chain:     chainClient,
		Relayer:   relayerClient,
		Guardian:  guardianService,
		Pipeline:  pipelineService,
	})
	walletProvider.OnAccountsChanged(func(accounts []string) {
		log.Info().Strs("accounts", accounts).Msg("Accounts changed")
	})

	s := api.NewServer(cfg, walletProvider)
	api.InitRouter(s)
	handlers.AttachAllRoutes(s)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to gracefully shut down server")
		}
	}()

	log.Info().Str("address", cfg.Echo.ListenAddress).Msg("Starting smart-wallet bridge server")

	if err := s.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
