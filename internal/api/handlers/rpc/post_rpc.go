package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github/chapool/smart-wallet/internal/api"
	"github/chapool/smart-wallet/internal/util"
	"github/chapool/smart-wallet/internal/wallet/provider"
	"github/chapool/smart-wallet/internal/wallet/rpcerrors"
)

func PostRPCRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1RPC.POST("", postRPCHandler(s))
}

// postRPCHandler accepts one request envelope or an array of envelopes and
// replies with the matching result-or-error envelope(s).
func postRPCHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
		}

		if isBatch(body) {
			var reqs []provider.RPCRequest
			if err := json.Unmarshal(body, &reqs); err != nil {
				return c.JSON(http.StatusOK, parseErrorResponse())
			}

			responses := make([]provider.RPCResponse, 0, len(reqs))
			for _, req := range reqs {
				responses = append(responses, s.Provider.Call(ctx, req))
			}

			return c.JSON(http.StatusOK, responses)
		}

		var req provider.RPCRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return c.JSON(http.StatusOK, parseErrorResponse())
		}

		res := s.Provider.Call(ctx, req)
		if res.Error != nil {
			util.LogFromContext(ctx).Debug().
				Str("method", req.Method).
				Int("code", int(res.Error.Code)).
				Msg("RPC request failed")
		}

		return c.JSON(http.StatusOK, res)
	}
}

func isBatch(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

func parseErrorResponse() provider.RPCResponse {
	return provider.RPCResponse{
		JSONRPC: "2.0",
		Error:   rpcerrors.New(rpcerrors.CodeParseError, "failed to parse request envelope"),
	}
}
