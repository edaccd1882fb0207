package goCounter

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"testing"
)

func TestFetchShowsServerValue(t *testing.T) {
	h := newHarness(t)
	h.stub.SetCounter(5)
	c := h.client(t)
	h.login(t, c, testUser, testUserPassword)

	st := c.State()
	if st.Counter.Value != 5 || !st.ShowCounter() || st.ShowError() {
		t.Fatalf("expected ready 5, got %+v", st.Counter)
	}
}

func TestIncrementTransportFailureReconcilesToServerValue(t *testing.T) {
	h := newHarness(t)
	h.stub.SetCounter(5)
	c := h.client(t)
	h.login(t, c, testAdmin, testAdminPassword)

	h.stub.DropNext(http.MethodPost, "/counter")
	if err := c.Increment(); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got := c.State().Counter; got.Value != 6 || got.Status != CounterReady {
		t.Fatalf("expected optimistic 6, got %+v", got)
	}
	c.Wait()

	st := c.State()
	if st.Counter.Value != 5 {
		t.Fatalf("expected reconciled value 5, got %d", st.Counter.Value)
	}
	if !st.ShowError() || st.Counter.Error != msgUpdateFailed {
		t.Fatalf("expected update error indicator, got %+v", st.Counter)
	}
	if !st.ShowCounter() {
		t.Fatal("reconciled value must stay visible next to the error")
	}
	if n := h.stub.Requests(http.MethodGet, "/counter"); n != 2 {
		t.Fatalf("expected initial fetch plus one reconcile, got %d", n)
	}
	snap := c.MetricsSnapshot()
	if snap.Counters[MetricReconcile] != 1 || snap.Counters[MetricTransportError] != 1 || snap.Counters[MetricIncrementFailure] != 1 {
		t.Fatalf("unexpected metrics: %+v", snap.Counters)
	}
}

func TestIncrementFromUnknownStartsAtOne(t *testing.T) {
	h := newHarness(t)
	h.stub.SetCounter(9)
	release := h.stub.Hold(http.MethodGet, "/counter")
	c := h.client(t)
	if err := c.Login(context.Background(), testUser, testUserPassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := c.Increment(); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got := c.State().Counter; got.Value != 1 || !got.Known {
		t.Fatalf("expected optimistic 1 from unknown, got %+v", got)
	}
	release()
	c.Wait()
	if got, want := c.State().Counter.Value, h.stub.Counter(); got != want {
		t.Fatalf("expected server value %d, got %d", want, got)
	}
}

func TestIncrementHTTPFailureShowsErrorAndRefetches(t *testing.T) {
	h := newHarness(t)
	h.stub.SetCounter(2)
	c := h.client(t)
	h.login(t, c, testUser, testUserPassword)

	h.stub.FailNext(http.MethodPost, "/counter", http.StatusInternalServerError, "boom")
	if err := c.Increment(); err != nil {
		t.Fatalf("increment: %v", err)
	}
	c.Wait()
	st := c.State()
	if st.Counter.Status != CounterError || st.Counter.Error != msgUpdateFailed || st.Counter.Value != 2 {
		t.Fatalf("expected error with value 2, got %+v", st.Counter)
	}

	// the next good increment clears the indicator
	if err := c.Increment(); err != nil {
		t.Fatalf("increment: %v", err)
	}
	c.Wait()
	st = c.State()
	if st.ShowError() || st.Counter.Value != 3 || st.Counter.Status != CounterReady {
		t.Fatalf("expected clean 3, got %+v", st.Counter)
	}
}

func TestResetByUserIsSentAndDenied(t *testing.T) {
	h := newHarness(t)
	h.stub.SetCounter(4)
	c := h.client(t)
	h.login(t, c, testUser, testUserPassword)

	if err := c.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := c.State().Counter.Value; got != 0 {
		t.Fatalf("expected optimistic 0, got %d", got)
	}
	c.Wait()

	if n := h.stub.Requests(http.MethodDelete, "/counter"); n != 1 {
		t.Fatalf("reset must be sent regardless of role, got %d", n)
	}
	st := c.State()
	if !st.Authenticated {
		t.Fatal("403 must not end the session")
	}
	if st.Counter.Error != msgResetFailed || st.Counter.Value != 4 {
		t.Fatalf("expected reset failure reconciled to 4, got %+v", st.Counter)
	}
}

func TestResetByAdmin(t *testing.T) {
	h := newHarness(t)
	h.stub.SetCounter(11)
	c := h.client(t)
	h.login(t, c, testAdmin, testAdminPassword)

	if err := c.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	c.Wait()
	st := c.State()
	if st.Counter.Value != 0 || h.stub.Counter() != 0 || st.ShowError() {
		t.Fatalf("expected clean 0, got %+v", st.Counter)
	}
}

func TestFetchFailureMessages(t *testing.T) {
	h := newHarness(t)
	h.stub.SetCounter(8)
	c := h.client(t)
	h.login(t, c, testUser, testUserPassword)

	h.stub.FailNext(http.MethodGet, "/counter", http.StatusInternalServerError, "db down")
	if err := c.Fetch(); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	c.Wait()
	st := c.State()
	if st.Counter.Error != msgFetchFailed || st.Counter.Value != 8 || !st.Counter.Known {
		t.Fatalf("expected fetch error keeping 8, got %+v", st.Counter)
	}

	h.stub.SetCounter(9)
	if err := c.Fetch(); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	c.Wait()
	if st := c.State(); st.ShowError() || st.Counter.Value != 9 {
		t.Fatalf("expected a plain fetch to clear the error, got %+v", st.Counter)
	}
}

func TestFetchTransportFailureShowsCause(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c, testUser, testUserPassword)

	h.srv.Close()
	if err := c.Fetch(); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	c.Wait()
	st := c.State()
	if st.Counter.Status != CounterError || st.Counter.Error == "" || st.Counter.Error == msgFetchFailed {
		t.Fatalf("expected transport description, got %+v", st.Counter)
	}
	if !strings.HasPrefix(st.Counter.Error, "Failed to connect to server: ") {
		t.Fatalf("expected a connect failure message, got %q", st.Counter.Error)
	}
	if !strings.Contains(st.Counter.Error, "/counter") {
		t.Fatalf("expected the failed URL in the message, got %q", st.Counter.Error)
	}
}

func TestConcurrentMutationsConvergeToServer(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c, testAdmin, testAdminPassword)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 25; i++ {
		var err error
		if rng.Intn(5) == 0 {
			err = c.Reset()
		} else {
			err = c.Increment()
		}
		if err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}
	c.Wait()

	st := c.State()
	if st.ShowError() {
		t.Fatalf("no failures were injected, got %q", st.Counter.Error)
	}
	if st.Counter.Value != h.stub.Counter() {
		t.Fatalf("displayed %d, server has %d", st.Counter.Value, h.stub.Counter())
	}
	if st.Counter.Pending != 0 {
		t.Fatalf("expected nothing pending, got %d", st.Counter.Pending)
	}
}

func TestSequentialIncrementsMatchServer(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c, testUser, testUserPassword)

	for i := 0; i < 5; i++ {
		if err := c.Increment(); err != nil {
			t.Fatalf("increment: %v", err)
		}
		c.Wait()
	}
	if got := c.State().Counter.Value; got != 5 || h.stub.Counter() != 5 {
		t.Fatalf("expected 5, got %d (server %d)", got, h.stub.Counter())
	}
	if n := h.stub.Requests(http.MethodGet, "/counter"); n != 1 {
		t.Fatalf("non-overlapping successes must not refetch, got %d fetches", n)
	}
}

func TestCounterOpsRequireSession(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	for name, op := range map[string]func() error{"fetch": c.Fetch, "increment": c.Increment, "reset": c.Reset} {
		if err := op(); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("%s: expected ErrNotAuthenticated, got %v", name, err)
		}
	}
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		if n := h.stub.Requests(m, "/counter"); n != 0 {
			t.Fatalf("%s sent without a session", m)
		}
	}
}
