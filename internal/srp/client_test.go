package srp

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	gosrp "github.com/1Password/srp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealpost/internal/api"
	"sealpost/internal/domain"
)

type account struct {
	salt []byte
	v    *big.Int
}

type pending struct {
	server *gosrp.SRP
	B      *big.Int
}

// fakeProvider is the server half of SRP-6a.
type fakeProvider struct {
	mu       sync.Mutex
	users    map[string]account
	sessions map[string]pending
	badM2    bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{users: map[string]account{}, sessions: map[string]pending{}}
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/1/users":
		var req signup
		_ = json.NewDecoder(r.Body).Decode(&req)
		salt, _ := hex.DecodeString(req.User.PasswordSalt)
		v, _ := new(big.Int).SetString(req.User.PasswordVerifier, 16)
		f.users[req.User.Login] = account{salt: salt, v: v}
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPost && r.URL.Path == "/1/sessions":
		var req sessionStart
		_ = json.NewDecoder(r.Body).Decode(&req)
		acct, ok := f.users[req.Login]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		server := gosrp.NewSRPServer(group(), acct.v, nil)
		B := server.EphemeralPublic()
		f.sessions[req.Login] = pending{server: server, B: B}
		_ = json.NewEncoder(w).Encode(challenge{Salt: hex.EncodeToString(acct.salt), B: hex.EncodeToString(B.Bytes())})

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/1/sessions/"):
		login := strings.TrimPrefix(r.URL.Path, "/1/sessions/")
		var req sessionProof
		_ = json.NewDecoder(r.Body).Decode(&req)
		sess, ok := f.sessions[login]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		A, _ := new(big.Int).SetString(req.A, 16)
		if err := sess.server.SetOthersPublic(A); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		key, err := sess.server.Key()
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}

		m1, _ := hex.DecodeString(req.ClientAuth)
		if subtle.ConstantTimeCompare(m1, clientProof(A, sess.B, key)) != 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		m2 := serverProof(A, m1, key)
		if f.badM2 {
			m2[0] ^= 0xff
		}
		_ = json.NewEncoder(w).Encode(sessionResult{M2: hex.EncodeToString(m2), ID: "uid-" + login, Token: "tok-" + login})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newClient(t *testing.T, f *fakeProvider) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(api.New(srv.URL, srv.Client()), nil)
}

func TestRegisterThenAuthenticate(t *testing.T) {
	f := newFakeProvider()
	c := newClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, "alice", "s3cret-Passw0rd!"))

	creds, err := c.Authenticate(ctx, "alice", "s3cret-Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, domain.Username("alice"), creds.Username)
	assert.Equal(t, domain.UserID("uid-alice"), creds.UserID)
	assert.Equal(t, domain.Token("tok-alice"), creds.Token)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	f := newFakeProvider()
	c := newClient(t, f)
	ctx := context.Background()
	require.NoError(t, c.Register(ctx, "alice", "right"))

	_, err := c.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	c := newClient(t, newFakeProvider())

	_, err := c.Authenticate(context.Background(), "nobody", "pw")
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
}

func TestAuthenticate_ServerProofMismatch(t *testing.T) {
	f := newFakeProvider()
	f.badM2 = true
	c := newClient(t, f)
	ctx := context.Background()
	require.NoError(t, c.Register(ctx, "alice", "pw"))

	_, err := c.Authenticate(ctx, "alice", "pw")
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
}

func TestAuthenticate_ProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(api.New(url, nil), nil).Authenticate(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.NotErrorIs(t, err, domain.ErrAuthFailed)
}

func TestHandshake_RejectsZeroB(t *testing.T) {
	_, err := newHandshake([]byte("salt"), "alice", "pw", big.NewInt(0))
	assert.ErrorIs(t, err, errBadServerValue)
}

func TestHandshake_MatchesServerKey(t *testing.T) {
	salt, err := newSalt()
	require.NoError(t, err)
	v, err := verifier(salt, "alice", "pw")
	require.NoError(t, err)

	server := gosrp.NewSRPServer(group(), v, nil)
	require.NotNil(t, server)
	hs, err := newHandshake(salt, "alice", "pw", server.EphemeralPublic())
	require.NoError(t, err)

	require.NoError(t, server.SetOthersPublic(hs.A))
	key, err := server.Key()
	require.NoError(t, err)
	assert.Equal(t, key, hs.key)
	assert.True(t, hs.verify(hs.proof(), serverProof(hs.A, hs.proof(), key)))
}
