package commands

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sealpost/internal/server"
)

const closeTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var (
		host    string
		port    int
		orgMode bool
		sslKey  string
		sslCert string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Log in and serve the account over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				settings.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				settings.Server.Port = port
			}
			if sslKey != "" || sslCert != "" {
				settings.Server.SSLKey, settings.Server.SSLCert = sslKey, sslCert
			}
			settings.Server.OrganizationMode = settings.Server.OrganizationMode || orgMode

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, sess, err := openSession(ctx, cmd, settings.Server.OrganizationMode)
			if err != nil {
				return err
			}
			logger.Info("logged in", "address", sess.AccountEmail())

			srv := server.New(sess, server.Options{Logger: logger})
			addr := net.JoinHostPort(settings.Server.Host, strconv.Itoa(settings.Server.Port))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx, addr, settings.Server.SSLCert, settings.Server.SSLKey)
			})
			runErr := g.Wait()

			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := w.Close(closeCtx); err != nil {
				logger.Warn("shutdown incomplete", "error", err)
			}
			return runErr
		},
	}
	f := cmd.Flags()
	f.StringVar(&host, "host", "127.0.0.1", "interface to listen on")
	f.IntVar(&port, "port", 3333, "port to listen on")
	f.BoolVar(&orgMode, "organization-mode", false, "read credentials as JSON from stdin")
	f.StringVar(&sslKey, "sslkey", "", "TLS private key file")
	f.StringVar(&sslCert, "sslcert", "", "TLS certificate file")
	return cmd
}
