package counterstub

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goCounter/internal"
	"github.com/MrEthical07/goCounter/internal/rate"
	"github.com/MrEthical07/goCounter/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MaxPasswordLength is the longest password the service accepts. bcrypt
	// ignores input past 72 bytes.
	MaxPasswordLength = 72

	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Options configures a [Server].
type Options struct {
	// Secret signs tokens. A random one is generated when empty. With
	// jwt.MethodEd25519 a Secret of ed25519.SeedSize bytes seeds the key pair.
	Secret []byte
	// SigningMethod defaults to jwt.MethodHS256.
	SigningMethod jwt.SigningMethod
	TokenTTL      time.Duration
	// AdminUsername and AdminPassword seed an admin account when both are set.
	AdminUsername string
	AdminPassword string
	// BcryptCost defaults to bcrypt.DefaultCost; tests use bcrypt.MinCost.
	BcryptCost int
	Logger     *slog.Logger
	// LoginLimiter, when set, answers 429 once a username has too many
	// failed logins. See internal/rate.
	LoginLimiter LoginLimiter
}

// LoginLimiter tracks failed logins per username.
type LoginLimiter interface {
	Check(ctx context.Context, username string) error
	Fail(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

type account struct {
	hash []byte
	role string
}

type injected struct {
	status int
	body   string
	drop   bool
}

// Server implements the counter service contract in memory.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	users    map[string]account
	counter  int64
	tokens   *jwt.Manager
	faults   map[string][]injected
	gates    map[string][]chan struct{}
	requests map[string]int
}

// New returns a Server with its admin account seeded.
func New(opts Options) (*Server, error) {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.SigningMethod == "" {
		opts.SigningMethod = jwt.MethodHS256
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger,
		users:    map[string]account{},
		faults:   map[string][]injected{},
		gates:    map[string][]chan struct{}{},
		requests: map[string]int{},
	}
	if err := s.rotate(opts.Secret); err != nil {
		return nil, err
	}
	if opts.AdminUsername != "" && opts.AdminPassword != "" {
		if err := s.AddUser(opts.AdminUsername, opts.AdminPassword, RoleAdmin); err != nil {
			return nil, fmt.Errorf("seed admin: %w", err)
		}
	}
	return s, nil
}

func (s *Server) rotate(secret []byte) error {
	cfg := jwt.Config{TTL: s.opts.TokenTTL, SigningMethod: s.opts.SigningMethod}
	switch s.opts.SigningMethod {
	case jwt.MethodEd25519:
		var priv ed25519.PrivateKey
		if len(secret) == ed25519.SeedSize {
			priv = ed25519.NewKeyFromSeed(secret)
		} else {
			var err error
			if _, priv, err = ed25519.GenerateKey(rand.Reader); err != nil {
				return fmt.Errorf("generate signing key: %w", err)
			}
		}
		cfg.PrivateKey = priv
		cfg.PublicKey = priv.Public().(ed25519.PublicKey)
	default:
		if len(secret) == 0 {
			generated, err := internal.NewSecret(32)
			if err != nil {
				return fmt.Errorf("generate signing secret: %w", err)
			}
			secret = generated
		}
		cfg.PrivateKey = secret
	}
	m, err := jwt.NewManager(cfg)
	if err != nil {
		return err
	}
	s.tokens = m
	return nil
}

var errUserExists = errors.New("user already exists")

// AddUser creates an account directly, bypassing the HTTP surface.
func (s *Server) AddUser(username, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return errUserExists
	}
	s.users[username] = account{hash: hash, role: role}
	return nil
}

// Issue signs a token for an arbitrary identity.
func (s *Server) Issue(username, role string) (string, error) {
	s.mu.Lock()
	m := s.tokens
	s.mu.Unlock()
	return m.Issue(username, role)
}

// RevokeAll rotates the signing secret so every outstanding token is rejected
// with 401. It models credential expiry.
func (s *Server) RevokeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotate(nil)
}

// SetCounter overwrites the stored value.
func (s *Server) SetCounter(v int64) {
	s.mu.Lock()
	s.counter = v
	s.mu.Unlock()
}

// Counter returns the stored value.
func (s *Server) Counter() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Requests returns how many requests reached "METHOD /path", counting
// injected faults.
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// FailNext makes the next request to method+path answer status with body
// instead of being handled. Calls queue up.
func (s *Server) FailNext(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.faults[key] = append(s.faults[key], injected{status: status, body: body})
}

// DropNext makes the next request to method+path close the connection
// without a response, which the client sees as a transport failure.
// net/http may replay a dropped GET on a fresh connection, so prefer it for
// POST and DELETE.
func (s *Server) DropNext(method, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.faults[key] = append(s.faults[key], injected{drop: true})
}

// Hold blocks the next request to method+path before it is handled, until
// the returned release func is called. Release is idempotent.
func (s *Server) Hold(method, path string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	key := method + " " + path
	s.gates[key] = append(s.gates[key], ch)
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Handler returns the HTTP surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/change-password", s.handleChangePassword)
	mux.HandleFunc("/counter", s.handleCounter)
	return s.intercept(mux)
}

// intercept applies CORS, request accounting, holds and injected faults.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS, PUT")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requests[key]++
		var gate chan struct{}
		if q := s.gates[key]; len(q) > 0 {
			gate, s.gates[key] = q[0], q[1:]
		}
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		s.mu.Lock()
		var fault *injected
		if q := s.faults[key]; len(q) > 0 {
			f := q[0]
			fault, s.faults[key] = &f, q[1:]
		}
		s.mu.Unlock()

		if fault != nil {
			if fault.drop {
				dropConnection(w)
				return
			}
			http.Error(w, fault.body, fault.status)
			return
		}

		s.logger.Debug("stub request", "method", r.Method, "path", r.URL.Path, "request_id", r.Header.Get("X-Request-ID"))
		next.ServeHTTP(w, r)
	})
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	_ = conn.Close()
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if creds.Username == "" || creds.Password == "" {
		http.Error(w, "Username and password required", http.StatusBadRequest)
		return
	}
	if len(creds.Password) > MaxPasswordLength {
		http.Error(w, fmt.Sprintf("Password too long (max %d characters)", MaxPasswordLength), http.StatusBadRequest)
		return
	}
	if err := s.AddUser(creds.Username, creds.Password, RoleUser); err != nil {
		if errors.Is(err, errUserExists) {
			http.Error(w, "User already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Could not create user", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	limiter := s.opts.LoginLimiter
	if limiter != nil {
		if err := limiter.Check(r.Context(), creds.Username); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				http.Error(w, "Too many login attempts", http.StatusTooManyRequests)
				return
			}
			s.logger.Warn("login limiter unavailable", "error", err)
		}
	}

	s.mu.Lock()
	acct, ok := s.users[creds.Username]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword(acct.hash, []byte(creds.Password)) != nil {
		if limiter != nil {
			if err := limiter.Fail(r.Context(), creds.Username); err != nil && !errors.Is(err, rate.ErrRateLimited) {
				s.logger.Warn("login limiter unavailable", "error", err)
			}
		}
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}
	if limiter != nil {
		if err := limiter.Reset(r.Context(), creds.Username); err != nil {
			s.logger.Warn("login limiter unavailable", "error", err)
		}
	}

	token, err := s.Issue(creds.Username, acct.role)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": acct.role})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.NewPassword) > MaxPasswordLength || len(req.OldPassword) > MaxPasswordLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Password too long (max %d characters)", MaxPasswordLength)})
		return
	}

	s.mu.Lock()
	acct, found := s.users[claims.Username]
	s.mu.Unlock()
	if !found {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if bcrypt.CompareHashAndPassword(acct.hash, []byte(req.OldPassword)) != nil {
		http.Error(w, "Invalid old password", http.StatusUnauthorized)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.opts.BcryptCost)
	if err != nil {
		http.Error(w, "Could not update password", http.StatusInternalServerError)
		return
	}
	s.mu.Lock()
	acct.hash = hash
	s.users[claims.Username] = acct
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := s.authenticate(w, r); !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"value": s.Counter()})
	case http.MethodPost:
		if !s.authorize(w, r, RoleUser, RoleAdmin) {
			return
		}
		s.mu.Lock()
		s.counter++
		v := s.counter
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]int64{"value": v})
	case http.MethodDelete:
		if !s.authorize(w, r, RoleAdmin) {
			return
		}
		s.SetCounter(0)
		writeJSON(w, http.StatusOK, map[string]int64{"value": 0})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*jwt.Claims, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		http.Error(w, "Authorization header required", http.StatusUnauthorized)
		return nil, false
	}
	s.mu.Lock()
	m := s.tokens
	s.mu.Unlock()

	claims, err := m.Parse(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, roles ...string) bool {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return false
	}
	for _, role := range roles {
		if claims.Role == role {
			return true
		}
	}
	http.Error(w, "Forbidden: Insufficient permissions", http.StatusForbidden)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
