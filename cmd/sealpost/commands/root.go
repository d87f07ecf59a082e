package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"sealpost/internal/config"
	"sealpost/internal/logging"
)

var (
	debug                   bool
	credentialsFile         string
	home                    string
	providerDomain          string
	providerCert            string
	providerCertFingerprint string
	settingsFile            string

	settings *config.Config
	logger   *slog.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:          "sealpost",
		Short:        "Secure webmail user agent",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(settingsFile)
			if err != nil {
				return err
			}
			if home != "" {
				cfg.Home = home
			}
			if debug {
				cfg.Debug = true
			}
			if providerDomain != "" {
				cfg.Provider.Domain = providerDomain
			}
			if providerCert != "" {
				cfg.Provider.CACertFile = providerCert
			}
			if providerCertFingerprint != "" {
				cfg.Provider.CACertFingerprint = providerCertFingerprint
			}
			settings = cfg
			logger = logging.New(os.Stderr, cfg.Debug)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&debug, "debug", false, "debug logging")
	pf.StringVarP(&credentialsFile, "config", "c", "", "credentials file (TOML: provider, username, password)")
	pf.StringVar(&home, "home", "", "data dir (default ~/.sealpost)")
	pf.StringVar(&providerDomain, "provider", "", "provider domain")
	pf.StringVar(&providerCert, "provider-cert", "", "use this CA certificate file instead of downloading one")
	pf.StringVar(&providerCertFingerprint, "provider-cert-fingerprint", "", "expected SHA-256 fingerprint of the provider CA")
	pf.StringVar(&settingsFile, "settings", "", "settings file (TOML)")

	root.AddCommand(serveCmd(), maintenanceCmd(), registerCmd())
	return root.Execute()
}
