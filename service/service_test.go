package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pumppilot/gatekeeper/adapters/chain"
	"github.com/pumppilot/gatekeeper/adapters/store"
	"github.com/pumppilot/gatekeeper/adapters/tokenizer"
	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/internal/eth"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testWallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func (w testWallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := eth.SignPersonal(message, w.key)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

type fakeIdentity struct {
	mu       sync.Mutex
	identity core.Identity
	pending  core.PendingConfirmation
	err      error
	block    chan struct{}
	calls    int
}

func (f *fakeIdentity) SignInWithPassword(_ context.Context, email, _ string) (core.Identity, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return core.Identity{}, f.err
	}
	id := f.identity
	if id.Email == "" {
		id.Email = email
	}
	return id, nil
}

func (f *fakeIdentity) SignUp(_ context.Context, email, _ string) (core.PendingConfirmation, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return core.PendingConfirmation{}, f.err
	}
	pending := f.pending
	pending.Email = email
	return pending, nil
}

func (f *fakeIdentity) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu       sync.Mutex
	sessions []core.Session
	logouts  []string
	err      error
}

func (p *recordingPublisher) PublishSessionIssued(_ context.Context, session core.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, session)
	return p.err
}

func (p *recordingPublisher) PublishLogout(_ context.Context, _ string, tokenID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts = append(p.logouts, tokenID)
	return p.err
}

type blockingVerifier struct {
	release chan struct{}
}

func (v blockingVerifier) Verify(context.Context, string, string, []byte) error {
	<-v.release
	return nil
}

type harness struct {
	svc      *AuthService
	clock    *testClock
	store    *store.MemoryStore
	identity *fakeIdentity
	events   *recordingPublisher
}

func newHarness(t *testing.T, opts Options, logger *zap.Logger) *harness {
	t.Helper()

	key, err := tokenizer.GenerateSigningKey()
	require.NoError(t, err)

	h := &harness{
		clock:    newTestClock(),
		store:    store.NewMemoryStore(),
		identity: &fakeIdentity{identity: core.Identity{ID: "user-1", EmailConfirmed: true}},
		events:   &recordingPublisher{},
	}
	opts.Now = h.clock.Now

	h.svc = NewAuthService(Dependencies{
		Challenges: h.store,
		Store:      h.store,
		Tokenizer:  tokenizer.NewJWTTokenizer(key),
		Verifier:   chain.NewVerifier(nil),
		Identity:   h.identity,
		Events:     h.events,
		Logger:     logger,
	}, opts)
	return h
}

func errorIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
