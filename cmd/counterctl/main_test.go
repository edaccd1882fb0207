package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goCounter/internal/counterstub"
	"golang.org/x/crypto/bcrypt"
)

type cli struct {
	t       *testing.T
	stub    *counterstub.Server
	environ map[string]string
}

func newCLI(t *testing.T, store string) *cli {
	t.Helper()
	stub, err := counterstub.New(counterstub.Options{
		AdminUsername: "admin",
		AdminPassword: "admin-pw",
		BcryptCost:    bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("new stub: %v", err)
	}
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "creds")
	return &cli{
		t:    t,
		stub: stub,
		environ: map[string]string{
			"GOCOUNTER_BASE_URL":   srv.URL,
			"GOCOUNTER_TIMEOUT":    "2s",
			"GOCOUNTER_STORE":      store,
			"GOCOUNTER_STORE_PATH": path,
		},
	}
}

func (c *cli) run(args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, c.environ, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	code, out, errOut := c.run(args...)
	if code != exitOK {
		c.t.Fatalf("%v: exit %d\nstdout: %s\nstderr: %s", args, code, out, errOut)
	}
	return out
}

func TestSessionPersistsAcrossInvocations(t *testing.T) {
	for _, store := range []string{"file", "sqlite"} {
		t.Run(store, func(t *testing.T) {
			c := newCLI(t, store)

			out := c.mustRun("login", "admin", "admin-pw")
			if !strings.Contains(out, "user=admin role=admin counter=0") {
				t.Fatalf("unexpected login output %q", out)
			}

			out = c.mustRun("inc", "-n", "3")
			if !strings.Contains(out, "counter=3") {
				t.Fatalf("unexpected inc output %q", out)
			}
			if c.stub.Counter() != 3 {
				t.Fatalf("expected server counter 3, got %d", c.stub.Counter())
			}

			out = c.mustRun("status")
			if !strings.Contains(out, "user=admin") || !strings.Contains(out, "expires ") {
				t.Fatalf("unexpected status output %q", out)
			}

			out = c.mustRun("reset")
			if !strings.Contains(out, "counter=0") {
				t.Fatalf("unexpected reset output %q", out)
			}

			c.mustRun("logout")
			code, out, errOut := c.run("get")
			if code != exitFail || !strings.Contains(errOut, errNotLoggedIn.Error()) {
				t.Fatalf("expected not-logged-in failure, got %d %q %q", code, out, errOut)
			}
		})
	}
}

func TestRegisterAndNonAdminReset(t *testing.T) {
	c := newCLI(t, "file")
	c.stub.SetCounter(4)

	if out := c.mustRun("register", "bob", "bob-pw"); !strings.Contains(out, "registered bob") {
		t.Fatalf("unexpected register output %q", out)
	}
	if code, _, errOut := c.run("register", "bob", "other"); code != exitFail || !strings.Contains(errOut, "User already exists") {
		t.Fatalf("expected duplicate failure, got %d %q", code, errOut)
	}

	c.mustRun("login", "bob", "bob-pw")
	code, out, errOut := c.run("reset")
	if code != exitFail {
		t.Fatalf("expected reset denial, got %d %q", code, out)
	}
	if !strings.Contains(out, "counter=4") || !strings.Contains(errOut, "Failed to reset counter") {
		t.Fatalf("expected reconciled value with error, got %q %q", out, errOut)
	}
	if c.stub.Counter() != 4 {
		t.Fatalf("server counter must be untouched, got %d", c.stub.Counter())
	}
}

func TestLoginFailure(t *testing.T) {
	c := newCLI(t, "file")
	code, _, errOut := c.run("login", "admin", "wrong")
	if code != exitFail || !strings.Contains(errOut, "Invalid password") {
		t.Fatalf("expected login failure, got %d %q", code, errOut)
	}
	if out := c.mustRun("status"); !strings.Contains(out, "not logged in") {
		t.Fatalf("unexpected status %q", out)
	}
}

func TestPasswd(t *testing.T) {
	c := newCLI(t, "file")
	if err := c.stub.AddUser("carol", "carol-pw", counterstub.RoleUser); err != nil {
		t.Fatalf("add user: %v", err)
	}
	c.mustRun("login", "carol", "carol-pw")

	code, out, _ := c.run("passwd", "nope", "next")
	if code != exitFail || !strings.Contains(out, "Error: Invalid old password") {
		t.Fatalf("expected old-password failure, got %d %q", code, out)
	}

	out = c.mustRun("passwd", "carol-pw", "next")
	if !strings.Contains(out, "Password changed") {
		t.Fatalf("unexpected passwd output %q", out)
	}
	c.mustRun("logout")
	c.mustRun("login", "carol", "next")
}

func TestRedisStoreWithEmbeddedServer(t *testing.T) {
	c := newCLI(t, "redis")
	out := c.mustRun("login", "admin", "admin-pw")
	if !strings.Contains(out, "counter=0") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestUsageErrors(t *testing.T) {
	c := newCLI(t, "file")
	c.mustRun("login", "admin", "admin-pw")
	cases := [][]string{
		{},
		{"frobnicate"},
		{"login", "only-user"},
		{"-timeout", "0s", "status"},
		{"-store", "tape", "status"},
		{"inc", "-n", "0"},
	}
	for _, args := range cases {
		if code, _, _ := c.run(args...); code != exitUsage {
			t.Fatalf("%v: expected usage exit, got %d", args, code)
		}
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	var stderr bytes.Buffer
	cfg, rest, err := parseConfig(
		[]string{"-timeout", "3s", "-store", "memory", "status"},
		map[string]string{"GOCOUNTER_TIMEOUT": "9s", "GOCOUNTER_STORE": "sqlite", "GOCOUNTER_BASE_URL": "http://x"},
		&stderr,
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Timeout != 3*time.Second || cfg.Store != "memory" || cfg.BaseURL != "http://x" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(rest) != 1 || rest[0] != "status" {
		t.Fatalf("unexpected args %v", rest)
	}
	if cfg.RedisPrefix != "gocounter" || cfg.LogFormat != "text" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestStubServerNeedsAdminPassword(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"stub-server"}, map[string]string{}, &stdout, &stderr)
	if code != exitUsage {
		t.Fatalf("expected usage exit, got %d (%s)", code, stderr.String())
	}
}

func TestLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger("info", "json", &buf).Info("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected json record, got %q", buf.String())
	}
	buf.Reset()
	newLogger("error", "text", &buf).Warn("hidden")
	if buf.Len() != 0 {
		t.Fatalf("warn must be filtered at error level, got %q", buf.String())
	}
}
