package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github/chapool/smart-wallet/internal/config"
	"github/chapool/smart-wallet/internal/wallet/provider"
)

// RPC is the provider surface the bridge transport dispatches envelopes to.
type RPC interface {
	Call(ctx context.Context, req provider.RPCRequest) provider.RPCResponse
}

type Router struct {
	Routes     []*echo.Route
	Root       *echo.Group
	Management *echo.Group
	APIV1RPC   *echo.Group
}

// Server is a central struct keeping the bridge transport's dependencies.
type Server struct {
	Config   config.Server
	Echo     *echo.Echo
	Router   *Router
	Provider RPC
}

func NewServer(cfg config.Server, rpc RPC) *Server {
	return &Server{
		Config:   cfg,
		Provider: rpc,
	}
}

func (s *Server) Ready() bool {
	return s.Echo != nil && s.Router != nil && s.Provider != nil
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	if err := s.Echo.Start(s.Config.Echo.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Warn().Msg("Shutting down server")

	if s.Echo != nil {
		return s.Echo.Shutdown(ctx)
	}

	return nil
}
