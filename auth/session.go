package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Session defaults.
const (
	// DefaultRefreshMargin renews the token this long before its expiry.
	DefaultRefreshMargin = 30 * time.Second
	// DefaultChallengePath is fetched to obtain the message to sign. An
	// empty path switches to signing StaticChallenge instead.
	DefaultChallengePath = "authorize/challenge"
	// StaticChallenge is the fixed authorization message used by gateways
	// that do not issue per-session challenges.
	StaticChallenge = "AUTHORIZE"

	authorizePath = "authorize"
)

// Transport is the request-response primitive the session manager uses to
// reach the gateway. The api package's Client implements it.
type Transport interface {
	// Call performs an unauthenticated request. body and out are JSON
	// encoded and decoded; either may be nil.
	Call(ctx context.Context, method, path string, body, out any) error
}

// Credential is a bearer token and its validity window. Replaced wholesale
// on every authorization, never mutated.
type Credential struct {
	Token    string
	IssuedAt time.Time
	// ExpiresAt is zero when the gateway declared no expiry; such tokens
	// are treated as short-lived and revalidated when a call returns 401.
	ExpiresAt time.Time
}

// ValidAt reports whether the credential is usable at t, renewing margin
// early. Credentials without a declared expiry are always considered usable.
func (c Credential) ValidAt(t time.Time, margin time.Duration) bool {
	if c.Token == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return t.Before(c.ExpiresAt.Add(-margin))
}

// Manager owns the current Credential and the key material used to refresh
// it. All methods are safe for concurrent use; at most one authorization
// exchange is in flight at a time.
type Manager struct {
	transport     Transport
	logger        *slog.Logger
	refreshMargin time.Duration
	challengePath string

	mu     sync.Mutex
	signer Signer
	cred   *Credential

	flight singleflight.Group
	nowFn  func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// NewManager creates a session manager for the given signer. The signer may
// be nil for clients that only consume public data; EnsureValid then fails
// with AuthNotAuthenticated.
func NewManager(transport Transport, signer Signer, opts ...ManagerOption) *Manager {
	m := &Manager{
		transport:     transport,
		logger:        slog.Default(),
		refreshMargin: DefaultRefreshMargin,
		challengePath: DefaultChallengePath,
		signer:        signer,
		nowFn:         time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRefreshMargin sets how long before expiry tokens are renewed.
func WithRefreshMargin(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshMargin = d
	}
}

// WithChallengePath overrides the challenge endpoint. An empty path signs
// StaticChallenge without a server round trip.
func WithChallengePath(path string) ManagerOption {
	return func(m *Manager) {
		m.challengePath = path
	}
}

type authorizeParams struct {
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
	Challenge string `json:"challenge,omitempty"`
}

type authorizeResponse struct {
	Token     string `json:"token"`
	ExpiresAt uint64 `json:"expires_at,omitempty"` // ms since epoch, 0 = none
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

// Authorize runs the full exchange: fetch a challenge, sign it, trade the
// signature for a bearer token. The new Credential replaces any cached one.
func (m *Manager) Authorize(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	signer := m.signer
	m.mu.Unlock()

	if signer == nil {
		return Credential{}, &AuthError{Kind: AuthNotAuthenticated}
	}

	challenge := StaticChallenge
	if m.challengePath != "" {
		var cr challengeResponse
		if err := m.transport.Call(ctx, http.MethodGet, m.challengePath, nil, &cr); err != nil {
			return Credential{}, &AuthError{Kind: AuthChallengeFetch, Err: err}
		}
		if cr.Challenge == "" {
			return Credential{}, &AuthError{Kind: AuthChallengeFetch, Err: errors.New("empty challenge")}
		}
		challenge = cr.Challenge
	}

	sig, err := signer.Sign([]byte(challenge))
	if err != nil {
		return Credential{}, &AuthError{Kind: AuthNotAuthenticated, Err: err}
	}

	params := authorizeParams{
		Signature: "0x" + hex.EncodeToString(sig),
		PublicKey: signer.PublicKeyHex(),
	}
	if m.challengePath != "" {
		params.Challenge = challenge
	}

	var resp authorizeResponse
	if err := m.transport.Call(ctx, http.MethodPost, authorizePath, params, &resp); err != nil {
		var se statusError
		if errors.As(err, &se) && (se.HTTPStatus() == http.StatusUnauthorized || se.HTTPStatus() == http.StatusForbidden) {
			return Credential{}, &AuthError{Kind: AuthSignatureRejected, Err: err}
		}
		return Credential{}, &AuthError{Kind: AuthTransport, Err: err}
	}

	cred := Credential{
		Token:    resp.Token,
		IssuedAt: m.nowFn(),
	}
	if resp.ExpiresAt > 0 {
		cred.ExpiresAt = time.UnixMilli(int64(resp.ExpiresAt))
	}

	m.mu.Lock()
	m.cred = &cred
	m.mu.Unlock()

	m.logger.Info("session authorized",
		"address", signer.Address(),
		"expires_at", cred.ExpiresAt)

	return cred, nil
}

// Current returns the cached credential without blocking. ok is false
// before the first authorization and after Logout or Invalidate.
func (m *Manager) Current() (Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return Credential{}, false
	}
	return *m.cred, true
}

// EnsureValid returns the cached credential, re-authorizing first if it is
// absent or inside the refresh margin. Concurrent callers share a single
// in-flight authorization.
func (m *Manager) EnsureValid(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	signer := m.signer
	cred := m.cred
	m.mu.Unlock()

	if signer == nil {
		return Credential{}, &AuthError{Kind: AuthNotAuthenticated}
	}
	if cred != nil && cred.ValidAt(m.nowFn(), m.refreshMargin) {
		return *cred, nil
	}

	v, err, _ := m.flight.Do("authorize", func() (any, error) {
		// A caller that lost the race to an earlier flight finds a fresh
		// credential here and skips the network round trip.
		m.mu.Lock()
		cached := m.cred
		m.mu.Unlock()
		if cached != nil && cached.ValidAt(m.nowFn(), m.refreshMargin) {
			return *cached, nil
		}
		return m.Authorize(ctx)
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

// Invalidate discards the cached credential so the next EnsureValid
// re-authorizes. Called by the REST layer when the gateway returns 401.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()
}

// Logout clears the credential and zeroes the key material. The manager
// cannot authorize again until it is rebuilt with a signer.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cred = nil
	if kp, ok := m.signer.(*KeyPair); ok {
		kp.Zero()
	}
	m.signer = nil
}

// Address returns the signer's account address, or "" after Logout.
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signer == nil {
		return ""
	}
	return m.signer.Address()
}
