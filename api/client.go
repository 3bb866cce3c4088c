package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ekidenfi/ekiden-go/auth"
	"github.com/ekidenfi/ekiden-go/internal/version"
)

// Defaults applied by NewClient.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = time.Second
)

// CredentialSource supplies and refreshes the bearer token for the user
// endpoints. *auth.Manager satisfies it.
type CredentialSource interface {
	EnsureValid(ctx context.Context) (auth.Credential, error)
	Invalidate()
}

// Client talks to the gateway's REST API. All methods are safe for
// concurrent use.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
	session    CredentialSource

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a REST client rooted at baseURL, e.g.
// "https://api.ekiden.fi/api/v1".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		userAgent: "ekiden-go/" + version.Version,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:       slog.Default(),
		maxRetries:   DefaultMaxRetries,
		retryBackoff: DefaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithSession attaches the credential source the user endpoints draw their
// bearer token from. Without one, those endpoints fail with
// auth.AuthNotAuthenticated.
func WithSession(src CredentialSource) ClientOption {
	return func(c *Client) {
		c.session = src
	}
}

// Call performs a single unauthenticated request with retries. body and
// out are JSON encoded and decoded; either may be nil. It implements
// auth.Transport.
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, method, path, nil, body, "", out)
}
