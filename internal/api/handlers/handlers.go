package handlers

import (
	"github.com/labstack/echo/v4"

	"github/chapool/smart-wallet/internal/api"
	"github/chapool/smart-wallet/internal/api/handlers/common"
	"github/chapool/smart-wallet/internal/api/handlers/rpc"
)

// AttachAllRoutes attaches all handler routes to the server's router.
func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = []*echo.Route{
		common.GetHealthyRoute(s),
		rpc.PostRPCRoute(s),
	}
}
