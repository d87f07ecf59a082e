package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sealpost/internal/app"
	"sealpost/internal/config"
	"sealpost/internal/domain"
	"sealpost/internal/session"
)

// orgCredentials is what organization mode reads from stdin.
type orgCredentials struct {
	Provider string `json:"provider"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// readCredentials resolves the login from -c, from stdin in organization
// mode, or by prompting.
func readCredentials(cmd *cobra.Command, orgMode bool) (config.Credentials, error) {
	var creds config.Credentials
	switch {
	case credentialsFile != "":
		c, err := config.LoadCredentials(credentialsFile)
		if err != nil {
			return creds, err
		}
		creds = c
	case orgMode:
		var in orgCredentials
		if err := json.NewDecoder(cmd.InOrStdin()).Decode(&in); err != nil {
			return creds, fmt.Errorf("read credentials from stdin: %w", err)
		}
		creds = config.Credentials{Provider: in.Provider, Username: in.Username, Password: in.Password}
	default:
		r := bufio.NewReader(cmd.InOrStdin())
		user, err := prompt(cmd, r, "Username: ")
		if err != nil {
			return creds, err
		}
		pass, err := readPassword(cmd, r, "Password: ")
		if err != nil {
			return creds, err
		}
		creds = config.Credentials{Username: user, Password: pass}
	}
	if creds.Username == "" || creds.Password == "" {
		return creds, errors.New("username and password are required")
	}
	if creds.Provider != "" && settings.Provider.Domain == "" {
		settings.Provider.Domain = creds.Provider
	}
	return creds, nil
}

func prompt(cmd *cobra.Command, r *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo when stdin is a terminal.
func readPassword(cmd *cobra.Command, r *bufio.Reader, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() != os.Stdin || !term.IsTerminal(fd) {
		return prompt(cmd, r, label)
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// openSession builds the app wiring and logs the user in. The caller closes
// the returned wire, which also closes the session.
func openSession(ctx context.Context, cmd *cobra.Command, orgMode bool) (*app.Wire, *session.Session, error) {
	creds, err := readCredentials(cmd, orgMode)
	if err != nil {
		return nil, nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, nil, err
	}
	w, err := app.NewWire(app.Config{Settings: settings, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	sess, err := w.Sessions.Create(ctx, domain.Username(creds.Username), creds.Password)
	if err != nil {
		_ = w.Close(context.WithoutCancel(ctx))
		return nil, nil, err
	}
	return w, sess, nil
}
