// Package srp authenticates users against a provider with SRP-6a
// (RFC 5054 group, SHA-256) and registers new accounts.
//
// The exchange takes two requests. The client names itself and receives
// the salt and the provider's public value B; it then sends its own public
// value A with the proof M1 and checks the provider's proof M2.
package srp

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"

	"sealpost/internal/api"
	"sealpost/internal/domain"
	"sealpost/internal/logging"
)

type sessionStart struct {
	Login string `json:"login"`
}

type challenge struct {
	Salt string `json:"salt"`
	B    string `json:"B"`
}

type sessionProof struct {
	A          string `json:"A"`
	ClientAuth string `json:"client_auth"`
}

type sessionResult struct {
	M2    string `json:"M2"`
	ID    string `json:"id"`
	Token string `json:"token"`
}

type signup struct {
	User struct {
		Login            string `json:"login"`
		PasswordSalt     string `json:"password_salt"`
		PasswordVerifier string `json:"password_verifier"`
	} `json:"user"`
}

// Client talks SRP to the provider API.
type Client struct {
	api    *api.Client
	logger *slog.Logger
}

// New returns an SRP client using apiClient.
func New(apiClient *api.Client, logger *slog.Logger) *Client {
	return &Client{api: apiClient, logger: logging.Default(logger).With("component", "srp")}
}

// Authenticate runs the SRP handshake and returns the provider's token and user id.
func (c *Client) Authenticate(
	ctx context.Context,
	username domain.Username,
	password string,
) (domain.Credentials, error) {
	var ch challenge
	if err := c.api.PostJSON(ctx, "/1/sessions", sessionStart{Login: username.String()}, &ch); err != nil {
		return domain.Credentials{}, authError("start session", err)
	}
	salt, err := hex.DecodeString(ch.Salt)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("srp: bad salt: %w", err)
	}
	B, ok := new(big.Int).SetString(ch.B, 16)
	if !ok {
		return domain.Credentials{}, errBadServerValue
	}

	hs, err := newHandshake(salt, username.String(), password, B)
	if err != nil {
		return domain.Credentials{}, err
	}
	m1 := hs.proof()

	var res sessionResult
	path := "/1/sessions/" + url.PathEscape(username.String())
	proof := sessionProof{A: hex.EncodeToString(hs.A.Bytes()), ClientAuth: hex.EncodeToString(m1)}
	if err := c.api.PutJSON(ctx, path, proof, &res); err != nil {
		return domain.Credentials{}, authError("prove session", err)
	}
	m2, err := hex.DecodeString(res.M2)
	if err != nil || !hs.verify(m1, m2) {
		return domain.Credentials{}, fmt.Errorf("%w: server proof mismatch", domain.ErrAuthFailed)
	}
	if res.ID == "" || res.Token == "" {
		return domain.Credentials{}, fmt.Errorf("%w: incomplete session response", domain.ErrAuthFailed)
	}

	c.logger.Debug("authenticated", "username", username, "uid", res.ID)
	return domain.Credentials{
		Username: username,
		UserID:   domain.UserID(res.ID),
		Token:    domain.Token(res.Token),
	}, nil
}

// Register creates the account at the provider from a fresh salt and verifier.
func (c *Client) Register(ctx context.Context, username domain.Username, password string) error {
	salt, err := newSalt()
	if err != nil {
		return err
	}
	v, err := verifier(salt, username.String(), password)
	if err != nil {
		return err
	}

	var req signup
	req.User.Login = username.String()
	req.User.PasswordSalt = hex.EncodeToString(salt)
	req.User.PasswordVerifier = hex.EncodeToString(v.Bytes())

	if err := c.api.PostJSON(ctx, "/1/users", req, nil); err != nil {
		return fmt.Errorf("register %s: %w", username, err)
	}
	c.logger.Info("account registered", "username", username)
	return nil
}

// authError folds client-side rejections (bad user, bad proof) into ErrAuthFailed.
func authError(step string, err error) error {
	var se *api.StatusError
	if errors.As(err, &se) && se.Code >= http.StatusBadRequest && se.Code < http.StatusInternalServerError &&
		!errors.Is(err, domain.ErrAuthFailed) {
		return fmt.Errorf("srp %s: %w: %w", step, domain.ErrAuthFailed, err)
	}
	return fmt.Errorf("srp %s: %w", step, err)
}

// Compile-time assertion that Client implements domain.Authenticator.
var _ domain.Authenticator = (*Client)(nil)
