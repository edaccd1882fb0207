package goCounter

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goCounter/credential"
	"github.com/MrEthical07/goCounter/internal/counterstub"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdmin         = "admin"
	testAdminPassword = "admin-pw"
	testUser          = "bob"
	testUserPassword  = "bob-pw"
)

type harness struct {
	stub  *counterstub.Server
	srv   *httptest.Server
	kv    credential.KV
	store *credential.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	stub, err := counterstub.New(counterstub.Options{
		AdminUsername: testAdmin,
		AdminPassword: testAdminPassword,
		BcryptCost:    bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("stub: %v", err)
	}
	if err := stub.AddUser(testUser, testUserPassword, counterstub.RoleUser); err != nil {
		t.Fatalf("add user: %v", err)
	}
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)

	kv := credential.NewMemoryKV()
	return &harness{stub: stub, srv: srv, kv: kv, store: credential.NewStore(kv)}
}

func testConfig(base string) Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = base
	cfg.API.Timeout = 5 * time.Second
	cfg.PasswordForm.DismissDelay = 50 * time.Millisecond
	cfg.Metrics.Enabled = true
	return cfg
}

func (h *harness) client(t *testing.T, mutate ...func(*Builder)) *Client {
	t.Helper()
	b := New().
		WithConfig(testConfig(h.srv.URL)).
		WithCredentialStore(h.store).
		WithHTTPClient(h.srv.Client())
	for _, m := range mutate {
		m(b)
	}
	c, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (h *harness) login(t *testing.T, c *Client, username, password string) {
	t.Helper()
	if err := c.Login(context.Background(), username, password); err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	c.Wait()
	st := c.State()
	if !st.Authenticated || st.Counter.Status != CounterReady {
		t.Fatalf("expected ready session after login, got %+v", st)
	}
}

func (h *harness) stored(t *testing.T) (credential.Credential, bool) {
	t.Helper()
	cred, ok, err := h.store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cred, ok
}

func assertUnauthenticated(t *testing.T, st State) {
	t.Helper()
	if st.Authenticated || st.Session != (Session{}) {
		t.Fatalf("expected no session, got %+v", st.Session)
	}
	if st.Counter != (CounterState{}) {
		t.Fatalf("expected pre-session counter, got %+v", st.Counter)
	}
	if st.PasswordForm != (PasswordFormState{}) {
		t.Fatalf("expected wiped password form, got %+v", st.PasswordForm)
	}
	if st.ShowCounter() || st.ShowResetControl() || st.ShowError() {
		t.Fatal("nothing may render without a session")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// faultyKV fails the operations whose error is set.
type faultyKV struct {
	credential.KV
	mu     sync.Mutex
	getErr error
	setErr error
	delErr error
}

func newFaultyKV() *faultyKV {
	return &faultyKV{KV: credential.NewMemoryKV()}
}

var errDiskGone = errors.New("disk gone")

func (f *faultyKV) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.KV.Get(ctx, keys...)
}

func (f *faultyKV) SetMany(ctx context.Context, values map[string]string) error {
	f.mu.Lock()
	err := f.setErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.KV.SetMany(ctx, values)
}

func (f *faultyKV) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	err := f.delErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.KV.Delete(ctx, keys...)
}

// gatedKV parks SetMany until release is closed.
type gatedKV struct {
	credential.KV
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedKV() *gatedKV {
	return &gatedKV{
		KV:      credential.NewMemoryKV(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedKV) SetMany(ctx context.Context, values map[string]string) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.KV.SetMany(ctx, values)
}
