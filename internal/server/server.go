// Package server exposes the budget ledger over a JSON HTTP API.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"bilancio/internal/auth"
	"bilancio/internal/config"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// New assembles the echo instance with middleware, auth and routes.
func New(cfg *config.Config, logger *applog.Logger, svc *ledger.Service, tokenManager *auth.TokenManager) *echo.Echo {
	if logger == nil {
		logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	handler := NewBudgetHandler(svc)
	registerRoutes(e, handler, auth.Middleware(tokenManager), spendRateLimiter(cfg))

	return e
}

// NewHTTPServer wraps the handler in a net/http server with timeouts.
func NewHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func requestLogger(logger *applog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"remote_ip", v.RemoteIP,
				"latency", v.Latency,
				applog.FieldRequestID, v.RequestID,
			}

			if v.Error != nil {
				args = append(args, applog.FieldError, v.Error.Error())
			}

			msg := "request completed"
			if v.Status >= http.StatusInternalServerError {
				logger.ErrorContext(c.Request().Context(), msg, args...)
				return nil
			}

			logger.InfoContext(c.Request().Context(), msg, args...)
			return nil
		},
	})
}

func spendRateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	limit := rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      limit,
		Burst:     cfg.RateLimitBurst,
		ExpiresIn: time.Minute,
	})

	return middleware.RateLimiter(store)
}
