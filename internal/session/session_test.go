package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealpost/internal/domain"
	"sealpost/internal/reactor"
	"sealpost/internal/session"
)

type harness struct {
	provider *fakeProvider
	builder  *fakeBuilder
	factory  *session.Factory
	registry *session.Registry
	home     string
}

type option func(*session.FactoryConfig)

func newHarness(t *testing.T, b *fakeBuilder, opts ...option) *harness {
	t.Helper()
	if b == nil {
		b = &fakeBuilder{}
	}
	loop := reactor.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	h := &harness{
		provider: &fakeProvider{},
		builder:  b,
		home:     filepath.Join(t.TempDir(), "home"),
	}
	cfg := session.FactoryConfig{
		Home:          h.home,
		Provider:      h.provider,
		Builder:       b,
		Registry:      session.NewRegistry(0),
		Loop:          loop,
		CreateTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	f, err := session.NewFactory(cfg)
	require.NoError(t, err)
	h.factory, h.registry = f, f.Registry()
	t.Cleanup(func() { _ = h.registry.CloseAll(context.Background()) })
	return h
}

func TestCreate_ReturnsCachedSessionRegardlessOfPassword(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	s1, err := h.factory.Create(ctx, "alice", "right")
	require.NoError(t, err)
	s2, err := h.factory.Create(ctx, "alice", "something else entirely")
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.EqualValues(t, 1, h.builder.auths.Load())
	assert.EqualValues(t, 1, h.provider.certs.Load())
}

func TestCreate_DistinctSessionsPerUsername(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	alice, err := h.factory.Create(ctx, "alice", "pw")
	require.NoError(t, err)
	bob, err := h.factory.Create(ctx, "bob", "pw")
	require.NoError(t, err)

	assert.NotSame(t, alice, bob)
	assert.Equal(t, 2, h.registry.Len())
	assert.Equal(t, domain.IdentityKey("example.org|alice"), alice.Key())
	assert.Equal(t, []domain.IdentityKey{"example.org|alice", "example.org|bob"}, h.registry.Keys())
}

func TestCreate_CreatesDataDirectory(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.factory.Create(context.Background(), "alice", "pw")
	require.NoError(t, err)

	fi, err := os.Stat(h.home)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestCreate_InitialSyncAndKeyPair(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.factory.Create(context.Background(), "alice", "pw")
	require.NoError(t, err)

	n, opts := h.builder.lastStore().Syncs()
	assert.Equal(t, 1, n)
	assert.True(t, opts.DeferDecryption)
	assert.EqualValues(t, 1, h.builder.keys[0].generated.Load())
	assert.Empty(t, h.builder.log.get(), "jobs not started unless configured")
}

func TestCreate_StartsBackgroundJobsWhenConfigured(t *testing.T) {
	h := newHarness(t, nil, func(c *session.FactoryConfig) { c.StartBackgroundJobs = true })
	s, err := h.factory.Create(context.Background(), "alice", "pw")
	require.NoError(t, err)

	assert.True(t, s.BackgroundJobsRunning())
	assert.Equal(t, []string{"gateway.start", "fetcher.start"}, h.builder.log.get())
}

func TestAccountEmail(t *testing.T) {
	h := newHarness(t, nil)
	s, err := h.factory.Create(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", s.AccountEmail())
	assert.Equal(t, domain.Username("alice"), s.Username())
	assert.Equal(t, domain.UserID("uid-alice"), s.UserID())
}

func TestBackgroundJobs_StartThenStop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s, err := h.factory.Create(ctx, "alice", "pw")
	require.NoError(t, err)

	require.NoError(t, s.StartBackgroundJobs(ctx))
	assert.True(t, h.builder.gateways[0].Running())
	assert.True(t, h.builder.fetchers[0].Running())

	require.NoError(t, s.StopBackgroundJobs(ctx))
	assert.False(t, h.builder.gateways[0].Running())
	assert.False(t, h.builder.fetchers[0].Running())
	assert.False(t, s.BackgroundJobsRunning())

	assert.Equal(t, []string{"gateway.start", "fetcher.start", "gateway.stop", "fetcher.stop"}, h.builder.log.get())
}

func TestBackgroundJobs_StopWithoutStart(t *testing.T) {
	h := newHarness(t, nil)
	s, err := h.factory.Create(context.Background(), "alice", "pw")
	require.NoError(t, err)

	require.NoError(t, s.StopBackgroundJobs(context.Background()))
	assert.False(t, s.BackgroundJobsRunning())
}

func TestBackgroundJobs_DoubleStartIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s, err := h.factory.Create(ctx, "alice", "pw")
	require.NoError(t, err)

	require.NoError(t, s.StartBackgroundJobs(ctx))
	require.NoError(t, s.StartBackgroundJobs(ctx))
	assert.Equal(t, []string{"gateway.start", "fetcher.start"}, h.builder.log.get())
}

func TestBackgroundJobs_FetcherFailureStopsGateway(t *testing.T) {
	boom := errors.New("scheduler down")
	h := newHarness(t, &fakeBuilder{fetcherErr: boom})
	ctx := context.Background()
	s, err := h.factory.Create(ctx, "alice", "pw")
	require.NoError(t, err)

	err = s.StartBackgroundJobs(ctx)
	require.ErrorIs(t, err, boom)
	assert.False(t, s.BackgroundJobsRunning())
	assert.False(t, h.builder.gateways[0].Running())
}

func TestSync_PropagatesErrorUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s, err := h.factory.Create(ctx, "alice", "pw")
	require.NoError(t, err)

	transport := errors.New("connection reset by peer")
	st := h.builder.lastStore()
	st.SyncErr = transport
	err = s.Sync(ctx)
	assert.Same(t, transport, err)

	// The session stays usable.
	st.SyncErr = nil
	assert.NoError(t, s.Sync(ctx))
	cached, err := h.factory.Create(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Same(t, s, cached)
}

func TestCreate_ConcurrentCallsAuthenticateOnce(t *testing.T) {
	b := &fakeBuilder{gate: make(chan struct{})}
	h := newHarness(t, b)

	const n = 16
	var (
		wg       sync.WaitGroup
		sessions = make([]*session.Session, n)
		errs     = make([]error, n)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions[i], errs[i] = h.factory.Create(context.Background(), "alice", "pw")
		}()
	}
	require.Eventually(t, func() bool { return b.auths.Load() == 1 }, time.Second, time.Millisecond)
	close(b.gate)
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i])
	}
	assert.EqualValues(t, 1, b.auths.Load())
	assert.Equal(t, 1, h.registry.Len())
}

func TestCreate_WaiterCanGiveUpWhileCreationContinues(t *testing.T) {
	b := &fakeBuilder{gate: make(chan struct{})}
	h := newHarness(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.factory.Create(ctx, "alice", "pw")
		done <- err
	}()
	require.Eventually(t, func() bool { return b.auths.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(b.gate)
	require.Eventually(t, func() bool { return h.registry.Len() == 1 }, time.Second, time.Millisecond)
}

func TestCreate_FailureNamesStepAndRegistersNothing(t *testing.T) {
	b := &fakeBuilder{authErr: domain.ErrAuthFailed}
	h := newHarness(t, b)

	_, err := h.factory.Create(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
	step, ok := session.FailedStep(err)
	require.True(t, ok)
	assert.Equal(t, session.StepAuthenticate, step)
	assert.Zero(t, h.registry.Len())

	// No retry, no memoized failure: the next call authenticates again.
	_, err = h.factory.Create(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.EqualValues(t, 2, b.auths.Load())
}

func TestCreate_CertificateFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.certErr = domain.ErrCertificateMismatch

	_, err := h.factory.Create(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, domain.ErrCertificateMismatch)
	step, _ := session.FailedStep(err)
	assert.Equal(t, session.StepCertificate, step)
	assert.Zero(t, h.builder.auths.Load())
}

func TestCreate_LaterStepFailureClosesEarlierParts(t *testing.T) {
	boom := errors.New("keys unavailable")
	b := &fakeBuilder{keysErr: boom}
	h := newHarness(t, b)

	_, err := h.factory.Create(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, boom)
	step, _ := session.FailedStep(err)
	assert.Equal(t, session.StepKeyManager, step)
	assert.True(t, b.lastStore().Closed())
}

func TestCreate_InitialSyncFailure(t *testing.T) {
	boom := errors.New("sync refused")
	b := &fakeBuilder{syncErr: boom}
	h := newHarness(t, b)

	_, err := h.factory.Create(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, boom)
	step, _ := session.FailedStep(err)
	assert.Equal(t, session.StepSession, step)
	assert.True(t, b.lastStore().Closed())
	assert.Zero(t, h.registry.Len())
}

func TestCreate_DataDirIsAFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	h := newHarness(t, nil, func(c *session.FactoryConfig) { c.Home = path })

	_, err := h.factory.Create(context.Background(), "alice", "pw")
	require.Error(t, err)
	step, _ := session.FailedStep(err)
	assert.Equal(t, session.StepDataDir, step)
	assert.Zero(t, h.provider.certs.Load())
}

func TestClose_RemovesFromRegistryAndClosesStore(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s, err := h.factory.Create(ctx, "alice", "pw")
	require.NoError(t, err)
	require.NoError(t, s.StartBackgroundJobs(ctx))

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	assert.True(t, s.Closed())
	assert.False(t, s.BackgroundJobsRunning())
	assert.True(t, h.builder.lastStore().Closed())
	_, ok := h.registry.Lookup(s.Key())
	assert.False(t, ok)

	assert.ErrorIs(t, s.Sync(ctx), domain.ErrSessionClosed)
	assert.ErrorIs(t, s.StartBackgroundJobs(ctx), domain.ErrSessionClosed)

	fresh, err := h.factory.Create(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.NotSame(t, s, fresh)
	assert.EqualValues(t, 2, h.builder.auths.Load())
}

func TestRegistry_Capacity(t *testing.T) {
	h := newHarness(t, nil, func(c *session.FactoryConfig) { c.Registry = session.NewRegistry(1) })
	ctx := context.Background()

	_, err := h.factory.Create(ctx, "alice", "pw")
	require.NoError(t, err)
	_, err = h.factory.Create(ctx, "bob", "pw")
	assert.ErrorIs(t, err, domain.ErrTooManySessions)

	// Cached sessions are still served at capacity.
	_, err = h.factory.Create(ctx, "alice", "pw")
	assert.NoError(t, err)
}

func TestRegistry_CloseAll(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a, err := h.factory.Create(ctx, "alice", "pw")
	require.NoError(t, err)
	b, err := h.factory.Create(ctx, "bob", "pw")
	require.NoError(t, err)

	require.NoError(t, h.registry.CloseAll(ctx))
	assert.Zero(t, h.registry.Len())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

func TestRegistry_RemoveKeepsSessionOpen(t *testing.T) {
	h := newHarness(t, nil)
	s, err := h.factory.Create(context.Background(), "alice", "pw")
	require.NoError(t, err)

	got, ok := h.registry.Remove(s.Key())
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.False(t, s.Closed())
	require.NoError(t, s.Close(context.Background()))
}
