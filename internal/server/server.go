package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"sealpost/internal/domain"
	"sealpost/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Session is what the HTTP surface needs from a user session.
type Session interface {
	Username() domain.Username
	UserID() domain.UserID
	AccountEmail() string
	Keys() domain.KeyManager
	Account() domain.Account
	Gateway() domain.Gateway
	BackgroundJobsRunning() bool
	Sync(ctx context.Context) error
}

// Options tune the server.
type Options struct {
	SyncRate  rate.Limit // POST /api/sync requests per second per client; 0 means 1 every 10s
	SyncBurst int
	Logger    *slog.Logger
}

// Server serves one session over HTTP.
type Server struct {
	echo    *echo.Echo
	session Session
	logger  *slog.Logger
}

// New builds the echo instance and registers the routes.
func New(sess Session, opts Options) *Server {
	logger := logging.Default(opts.Logger).With("component", "server")
	if opts.SyncRate == 0 {
		opts.SyncRate = rate.Every(10 * time.Second)
	}
	if opts.SyncBurst <= 0 {
		opts.SyncBurst = 1
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			if v.Error == nil {
				logger.DebugContext(ctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				logger.WarnContext(ctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{echo: e, session: sess, logger: logger}
	h := &handlers{session: sess}

	e.GET("/health", h.health)
	api := e.Group("/api")
	api.GET("/account", h.account)
	api.POST("/sync", h.sync, NewRateLimiter(opts.SyncRate, opts.SyncBurst).Middleware())
	api.GET("/mailboxes", h.mailboxes)
	api.POST("/mailboxes", h.createMailbox)
	api.GET("/mailboxes/:name/mails", h.mails)
	api.DELETE("/mails/:id", h.deleteMail)
	api.POST("/mails", h.send)
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is done, then shuts down gracefully. TLS is
// used when both certFile and keyFile are set.
func (s *Server) Run(ctx context.Context, addr, certFile, keyFile string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "address", addr, "tls", certFile != "")
		var err error
		if certFile != "" && keyFile != "" {
			err = s.echo.StartTLS(addr, certFile, keyFile)
		} else {
			err = s.echo.Start(addr)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return <-errCh
}
