package ekiden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ekidenfi/ekiden-go/api"
	"github.com/ekidenfi/ekiden-go/auth"
	"github.com/ekidenfi/ekiden-go/connection"
	"github.com/ekidenfi/ekiden-go/model"
	"github.com/ekidenfi/ekiden-go/router"
)

// Client is the facade over the REST, session, and streaming layers. One
// Client owns at most one streaming connection; independent Clients in the
// same process are fully independent.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	keyPair *auth.KeyPair
	rest    *api.Client
	session *auth.Manager
	conn    *connection.Conn
	router  *router.Router
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger  *slog.Logger
	dialer  connection.Dialer
	keyPair *auth.KeyPair
}

// WithLogger sets the logger for every component. Defaults to
// slog.Default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

// WithDialer replaces the stream dialer, mainly for tests.
func WithDialer(d connection.Dialer) ClientOption {
	return func(o *clientOptions) { o.dialer = d }
}

// WithKeyPair supplies key material directly instead of cfg.PrivateKey.
func WithKeyPair(kp *auth.KeyPair) ClientOption {
	return func(o *clientOptions) { o.keyPair = kp }
}

// NewClient assembles a client from cfg. The configured private key, if
// any, is parsed here; the client then owns the key material until Logout.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	keyPair := o.keyPair
	if keyPair == nil && cfg.PrivateKey != "" {
		kp, err := auth.KeyPairFromHex(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		keyPair = kp
	}

	wsURL, err := cfg.StreamURL()
	if err != nil {
		return nil, err
	}

	rest := api.NewClient(cfg.BaseURL,
		api.WithTimeout(cfg.Timeout),
		api.WithRetries(cfg.MaxRetries, cfg.RetryDelay),
		api.WithLogger(o.logger),
	)

	c := &Client{
		cfg:     cfg,
		logger:  o.logger,
		keyPair: keyPair,
		rest:    rest,
	}

	connOpts := []connection.ConnOption{
		connection.WithLogger(o.logger),
	}
	if o.dialer != nil {
		connOpts = append(connOpts, connection.WithDialer(o.dialer))
	}
	if keyPair != nil {
		c.session = auth.NewManager(rest, keyPair,
			auth.WithLogger(o.logger),
			auth.WithRefreshMargin(cfg.RefreshMargin),
		)
		api.WithSession(c.session)(rest)
		connOpts = append(connOpts, connection.WithCredentials(c.session))
	}

	c.conn = connection.NewConn(cfg.streamConfig(wsURL), connOpts...)

	routerOpts := []router.Option{
		router.WithLogger(o.logger),
	}
	if cfg.Stream.ResubscribeOnGap {
		routerOpts = append(routerOpts,
			router.WithGapPolicy(router.GapResubscribe),
			router.WithResubscriber(c.conn))
	}
	c.router = router.New(c.conn.Registry(), routerOpts...)
	connection.WithSink(c.router)(c.conn)

	return c, nil
}

// API exposes the REST client for endpoint calls.
func (c *Client) API() *api.Client {
	return c.rest
}

// Session exposes the session manager. It is nil for clients built without
// key material.
func (c *Client) Session() *auth.Manager {
	return c.session
}

// Stream exposes the underlying streaming connection for state inspection.
func (c *Client) Stream() *connection.Conn {
	return c.conn
}

// Address returns the account address derived from the configured key, or
// "" for public-only clients.
func (c *Client) Address() string {
	if c.keyPair == nil {
		return ""
	}
	return c.keyPair.Address()
}

// Authorize runs the authorization exchange now. Most callers rely on
// EnsureValid instead and let the session refresh lazily.
func (c *Client) Authorize(ctx context.Context) (auth.Credential, error) {
	if c.session == nil {
		return auth.Credential{}, &auth.AuthError{Kind: auth.AuthNotAuthenticated}
	}
	return c.session.Authorize(ctx)
}

// EnsureValid returns a usable credential, refreshing if needed.
func (c *Client) EnsureValid(ctx context.Context) (auth.Credential, error) {
	if c.session == nil {
		return auth.Credential{}, &auth.AuthError{Kind: auth.AuthNotAuthenticated}
	}
	return c.session.EnsureValid(ctx)
}

// Logout clears the session credential and zeroes the key material. The
// client keeps serving public data.
func (c *Client) Logout() {
	if c.session != nil {
		c.session.Logout()
	}
	c.keyPair = nil
}

// ConnectStream brings the streaming connection up and blocks until it is
// open, it fails permanently, or ctx ends.
func (c *Client) ConnectStream(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// DisconnectStream tears the streaming connection down. Subscriptions are
// kept and replayed when ConnectStream brings the stream back up.
func (c *Client) DisconnectStream(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// Close logs out and tears down the streaming connection.
func (c *Client) Close(ctx context.Context) error {
	err := c.conn.Close(ctx)
	c.Logout()
	if err != nil && !errors.Is(err, connection.ErrNotConnected) {
		return err
	}
	return nil
}

// Subscribe registers a listener for ch. The subscription survives
// reconnects until the returned handle is closed.
func (c *Client) Subscribe(ch model.Channel) (*connection.Handle, error) {
	return c.conn.Subscribe(ch, c.cfg.Stream.ListenerBuffer)
}

// SubscribeOrderbook subscribes to the book feed for one market.
func (c *Client) SubscribeOrderbook(marketAddr string) (*connection.Handle, error) {
	return c.Subscribe(model.OrderbookChannel(marketAddr))
}

// SubscribeTrades subscribes to the public trade feed for one market.
func (c *Client) SubscribeTrades(marketAddr string) (*connection.Handle, error) {
	return c.Subscribe(model.TradesChannel(marketAddr))
}

// SubscribeCandles subscribes to the OHLCV feed for one market.
func (c *Client) SubscribeCandles(marketAddr, interval string) (*connection.Handle, error) {
	return c.Subscribe(model.CandlesChannel(marketAddr, interval))
}

// SubscribeUserEvents subscribes to the authenticated account's order,
// position, and balance updates.
func (c *Client) SubscribeUserEvents() (*connection.Handle, error) {
	if c.keyPair == nil {
		return nil, connection.ErrAuthRequired
	}
	return c.Subscribe(model.UserChannel(c.keyPair.Address()))
}

// ActiveSubscriptions returns the channels currently subscribed.
func (c *Client) ActiveSubscriptions() []model.Channel {
	return c.conn.Registry().ActiveChannels()
}
