package session_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"sealpost/internal/domain"
	"sealpost/internal/store/storetest"
)

type fakeProvider struct {
	certErr error
	certs   atomic.Int32
}

func (p *fakeProvider) Domain() string                    { return "example.org" }
func (p *fakeProvider) AddressFor(username string) string { return username + "@example.org" }
func (p *fakeProvider) APIURI() string                    { return "https://api.example.org:4430" }
func (p *fakeProvider) LocalCACert() string               { return "" }
func (p *fakeProvider) HTTPClient() (*http.Client, error) { return http.DefaultClient, nil }

func (p *fakeProvider) DownloadCertificate(context.Context) error {
	p.certs.Add(1)
	return p.certErr
}

// callLog records lifecycle calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeKeys struct {
	generated atomic.Int32
	err       error
}

func (k *fakeKeys) GenerateKeyPairIfAbsent(context.Context) error {
	k.generated.Add(1)
	return k.err
}
func (k *fakeKeys) Encrypt(_ context.Context, _ string, p []byte) ([]byte, error) { return p, nil }
func (k *fakeKeys) Decrypt(_ context.Context, p []byte) ([]byte, error)           { return p, nil }
func (k *fakeKeys) Fingerprint(context.Context) (domain.Fingerprint, error)       { return "fp", nil }

type fakeAccount struct{ domain.Account }

type fakeFetcher struct {
	log     *callLog
	mu      sync.Mutex
	running bool
	err     error
}

func (f *fakeFetcher) StartLoop() error {
	f.log.add("fetcher.start")
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	return nil
}

func (f *fakeFetcher) Stop() error {
	f.log.add("fetcher.stop")
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return nil
}

func (f *fakeFetcher) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeFetcher) FetchOnce(context.Context) (int, error) { return 0, nil }

type fakeGateway struct {
	log     *callLog
	mu      sync.Mutex
	running bool
}

func (g *fakeGateway) EnsureRunning() error {
	g.log.add("gateway.start")
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) Stop() error {
	g.log.add("gateway.stop")
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *fakeGateway) Send(context.Context, domain.OutgoingMail) error { return nil }

// fakeBuilder builds fake collaborators and records what it built.
type fakeBuilder struct {
	log   callLog
	auths atomic.Int32

	// gate, when non-nil, blocks Authenticate until closed.
	gate       chan struct{}
	authErr    error
	keysErr    error
	fetcherErr error
	syncErr    error

	mu       sync.Mutex
	stores   []*storetest.Memory
	keys     []*fakeKeys
	fetchers []*fakeFetcher
	gateways []*fakeGateway
}

func (b *fakeBuilder) Authenticate(ctx context.Context, username domain.Username, password string) (domain.Credentials, error) {
	b.auths.Add(1)
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return domain.Credentials{}, ctx.Err()
		}
	}
	if b.authErr != nil {
		return domain.Credentials{}, b.authErr
	}
	return domain.Credentials{
		Username: username,
		UserID:   domain.UserID("uid-" + username.String()),
		Token:    "token",
	}, nil
}

func (b *fakeBuilder) OpenStore(context.Context, domain.Credentials, string) (domain.StoreSession, error) {
	st := storetest.NewMemory()
	st.SyncErr = b.syncErr
	b.mu.Lock()
	b.stores = append(b.stores, st)
	b.mu.Unlock()
	return st, nil
}

func (b *fakeBuilder) KeyManager(context.Context, domain.Credentials, string, domain.StoreSession) (domain.KeyManager, error) {
	if b.keysErr != nil {
		return nil, b.keysErr
	}
	k := &fakeKeys{}
	b.mu.Lock()
	b.keys = append(b.keys, k)
	b.mu.Unlock()
	return k, nil
}

func (b *fakeBuilder) Account(context.Context, domain.Credentials, domain.StoreSession) (domain.Account, error) {
	return fakeAccount{}, nil
}

func (b *fakeBuilder) Fetcher(domain.KeyManager, domain.StoreSession, domain.Account, string) (domain.Fetcher, error) {
	f := &fakeFetcher{log: &b.log, err: b.fetcherErr}
	b.mu.Lock()
	b.fetchers = append(b.fetchers, f)
	b.mu.Unlock()
	return f, nil
}

func (b *fakeBuilder) Gateway(domain.Credentials, domain.KeyManager, domain.Account) (domain.Gateway, error) {
	g := &fakeGateway{log: &b.log}
	b.mu.Lock()
	b.gateways = append(b.gateways, g)
	b.mu.Unlock()
	return g, nil
}

func (b *fakeBuilder) lastStore() *storetest.Memory {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stores[len(b.stores)-1]
}
