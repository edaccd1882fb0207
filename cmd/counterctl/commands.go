package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goCounter "github.com/MrEthical07/goCounter"
	"github.com/MrEthical07/goCounter/internal/counterstub"
	"github.com/MrEthical07/goCounter/internal/rate"
	"github.com/MrEthical07/goCounter/jwt"
	promexport "github.com/MrEthical07/goCounter/metrics/export/prometheus"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

type command struct {
	name  string
	usage string
	// needsSession commands restore the stored session first and fail without one.
	needsSession bool
	run          func(ctx context.Context, env *runEnv, args []string) error
}

type runEnv struct {
	cfg    config
	client *goCounter.Client
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

var errNotLoggedIn = errors.New("not logged in")

var commands = []command{
	{name: "register", usage: "register <username> <password>", run: cmdRegister},
	{name: "login", usage: "login <username> <password>", run: cmdLogin},
	{name: "logout", usage: "logout", run: cmdLogout},
	{name: "status", usage: "status", run: cmdStatus},
	{name: "get", usage: "get", needsSession: true, run: cmdGet},
	{name: "inc", usage: "inc [-n N]", needsSession: true, run: cmdInc},
	{name: "reset", usage: "reset", needsSession: true, run: cmdReset},
	{name: "passwd", usage: "passwd <old> <new>", needsSession: true, run: cmdPasswd},
	{name: "serve-metrics", usage: "serve-metrics [-interval D]", needsSession: true, run: cmdServeMetrics},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func run(ctx context.Context, args []string, environ map[string]string, stdout, stderr io.Writer) int {
	cfg, rest, err := parseConfig(args, environ, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, stderr)

	name, cmdArgs := rest[0], rest[1:]
	if name == "stub-server" {
		return exitCode(stderr, runStub(ctx, cfg, logger))
	}
	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %s\n", c.usage)
		}
		fmt.Fprintln(stderr, "  stub-server")
		return exitUsage
	}

	kv, cleanup, err := openKV(cfg, logger)
	if err != nil {
		return exitCode(stderr, err)
	}
	defer cleanup()

	clientCfg := goCounter.DefaultConfig()
	clientCfg.API.BaseURL = cfg.BaseURL
	clientCfg.API.Timeout = cfg.Timeout
	clientCfg.Metrics.Enabled = true
	clientCfg.Metrics.EnableLatencyHistograms = true
	clientCfg.Audit.Enabled = cfg.Audit

	client, err := goCounter.New().
		WithConfig(clientCfg).
		WithLogger(logger).
		WithCredentialKV(kv).
		WithAuditSink(goCounter.NewSlogSink(logger.With("component", "audit"))).
		Build()
	if err != nil {
		return exitCode(stderr, err)
	}
	defer client.Close()

	if _, err := client.Restore(ctx); err != nil {
		return exitCode(stderr, err)
	}
	if cmd.needsSession && !client.State().Authenticated {
		return exitCode(stderr, errNotLoggedIn)
	}

	env := &runEnv{cfg: cfg, client: client, logger: logger, stdout: stdout, stderr: stderr}
	return exitCode(stderr, cmd.run(ctx, env, cmdArgs))
}

func exitCode(stderr io.Writer, err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}
}

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func twoArgs(args []string, usage string) (string, string, error) {
	if len(args) != 2 {
		return "", "", usageErr("%s", usage)
	}
	return args[0], args[1], nil
}

func cmdRegister(ctx context.Context, env *runEnv, args []string) error {
	username, password, err := twoArgs(args, "register <username> <password>")
	if err != nil {
		return err
	}
	if err := env.client.Register(ctx, username, password); err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "registered %s\n", username)
	return nil
}

func cmdLogin(ctx context.Context, env *runEnv, args []string) error {
	username, password, err := twoArgs(args, "login <username> <password>")
	if err != nil {
		return err
	}
	if err := env.client.Login(ctx, username, password); err != nil {
		return err
	}
	return settled(env)
}

func cmdLogout(ctx context.Context, env *runEnv, _ []string) error {
	if err := env.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(env.stdout, "logged out")
	return nil
}

func cmdStatus(_ context.Context, env *runEnv, _ []string) error {
	env.client.Wait()
	st := env.client.State()
	printState(env.stdout, st)
	if st.Authenticated && !st.Session.ExpiresAt.IsZero() {
		fmt.Fprintf(env.stdout, "expires %s\n", st.Session.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func cmdGet(_ context.Context, env *runEnv, _ []string) error {
	return settled(env)
}

func cmdInc(_ context.Context, env *runEnv, args []string) error {
	fs := flag.NewFlagSet("inc", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	n := fs.Int("n", 1, "number of increments")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *n <= 0 {
		return usageErr("-n must be > 0")
	}

	env.client.Wait()
	for i := 0; i < *n; i++ {
		if err := env.client.Increment(); err != nil {
			return err
		}
	}
	return settled(env)
}

func cmdReset(_ context.Context, env *runEnv, _ []string) error {
	env.client.Wait()
	if !env.client.State().IsAdmin() {
		env.logger.Warn("reset requested without admin role; the server will decide")
	}
	if err := env.client.Reset(); err != nil {
		return err
	}
	return settled(env)
}

func cmdPasswd(ctx context.Context, env *runEnv, args []string) error {
	oldPassword, newPassword, err := twoArgs(args, "passwd <old> <new>")
	if err != nil {
		return err
	}
	c := env.client
	if err := c.OpenPasswordForm(); err != nil {
		return err
	}
	if err := c.SetPasswordFields(oldPassword, newPassword); err != nil {
		return err
	}
	submitErr := c.SubmitPasswordChange(ctx)
	if msg := c.State().PasswordForm.Message; msg != "" {
		fmt.Fprintln(env.stdout, msg)
	}
	if submitErr != nil {
		return errors.New("password not changed")
	}
	return nil
}

func cmdServeMetrics(ctx context.Context, env *runEnv, args []string) error {
	fs := flag.NewFlagSet("serve-metrics", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	interval := fs.Duration("interval", 15*time.Second, "counter refresh interval; 0 disables")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promexport.NewCollector(env.client).Handler())
	srv := &http.Server{Addr: env.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	if *interval > 0 {
		go func() {
			t := time.NewTicker(*interval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if err := env.client.Fetch(); err != nil {
						env.logger.Warn("refresh stopped", "error", err)
						return
					}
				}
			}
		}()
	}

	env.logger.Info("serving metrics", "addr", srv.Addr)
	return serveUntilDone(ctx, srv)
}

func runStub(ctx context.Context, cfg config, logger *slog.Logger) error {
	if cfg.StubAdminPW == "" {
		return usageErr("GOCOUNTER_STUB_ADMIN_PASSWORD is required for stub-server")
	}
	opts := counterstub.Options{
		AdminUsername: cfg.StubAdmin,
		AdminPassword: cfg.StubAdminPW,
		SigningMethod: jwt.SigningMethod(cfg.StubSigning),
		Logger:        logger,
	}
	if cfg.StubLoginAttempts > 0 {
		rdb, cleanup, err := openRedis(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		opts.LoginLimiter = rate.New(rdb, rate.Config{
			Prefix:      cfg.RedisPrefix,
			MaxAttempts: cfg.StubLoginAttempts,
			Cooldown:    cfg.StubLockout,
		})
	}

	stub, err := counterstub.New(opts)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: cfg.StubAddr, Handler: stub.Handler(), ReadHeaderTimeout: 5 * time.Second}
	logger.Info("serving counter stub", "addr", srv.Addr, "admin", cfg.StubAdmin, "login_attempts", cfg.StubLoginAttempts, "signing", cfg.StubSigning)
	return serveUntilDone(ctx, srv)
}

func serveUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// settled waits for in-flight work, prints the state and reports a counter
// error as a failure.
func settled(env *runEnv) error {
	env.client.Wait()
	st := env.client.State()
	printState(env.stdout, st)
	if !st.Authenticated {
		return errNotLoggedIn
	}
	if st.ShowError() {
		return errors.New(st.Counter.Error)
	}
	return nil
}

func printState(w io.Writer, st goCounter.State) {
	if !st.Authenticated {
		fmt.Fprintln(w, "not logged in")
		return
	}
	var b strings.Builder
	name := st.Session.Username
	if name == "" {
		name = "?"
	}
	fmt.Fprintf(&b, "user=%s role=%s", name, st.Session.Role)
	if st.ShowCounter() {
		fmt.Fprintf(&b, " counter=%d", st.Counter.Value)
	} else {
		fmt.Fprintf(&b, " counter=%s", st.Counter.Status)
	}
	if st.Counter.Error != "" {
		fmt.Fprintf(&b, " error=%q", st.Counter.Error)
	}
	fmt.Fprintln(w, b.String())
}
