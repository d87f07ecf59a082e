package commands

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sealpost/internal/app"
	"sealpost/internal/domain"
)

func registerCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register PROVIDER USERNAME",
		Short: "Create an account at a provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.Provider.Domain = args[0]
			username := args[1]

			if password == "" {
				r := bufio.NewReader(cmd.InOrStdin())
				p, err := readPassword(cmd, r, "Password: ")
				if err != nil {
					return err
				}
				password = p
			}
			if password == "" {
				return errors.New("password required (-p)")
			}
			if err := settings.Validate(); err != nil {
				return err
			}

			w, err := app.NewWire(app.Config{Settings: settings, Logger: logger})
			if err != nil {
				return err
			}
			defer func() { _ = w.Close(cmd.Context()) }()

			if err := w.Register(cmd.Context(), domain.Username(username), password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", w.Provider.AddressFor(username))
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	return cmd
}
