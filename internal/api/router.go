package api

import (
	"errors"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github/chapool/smart-wallet/internal/util"
)

// InitRouter initializes the echo instance, middleware stack and route groups.
// Handlers are attached separately via handlers.AttachAllRoutes.
func InitRouter(s *Server) {
	s.Echo = echo.New()
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.HTTPErrorHandler = echoErrorHandler(s)

	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestID())
	s.Echo.Use(echoprometheus.NewMiddleware("smart_wallet_bridge"))
	s.Echo.Use(requestLogger())

	s.Router = &Router{
		Root:       s.Echo.Group(""),
		Management: s.Echo.Group("/-"),
		APIV1RPC:   s.Echo.Group("/v1/rpc"),
	}

	s.Router.Management.GET("/metrics", echoprometheus.NewHandler())
}

// requestLogger stores a request-scoped zerolog logger in the context and
// logs one line per request on completion.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			l := log.With().
				Str("id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Logger()

			ctx := util.WithLogger(c.Request().Context(), l)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			l.Debug().
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start)).
				Msg("Handled request")

			return err
		}
	}
}

func echoErrorHandler(s *Server) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := 500
		message := "Internal Server Error"

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			code = httpErr.Code
			if msg, isString := httpErr.Message.(string); isString {
				message = msg
			}
		} else if !s.Config.Echo.HideInternalServerErrorDetails {
			message = err.Error()
		}

		if writeErr := c.JSON(code, map[string]string{"error": message}); writeErr != nil {
			log.Warn().Err(writeErr).Msg("Failed to write error response")
		}
	}
}
