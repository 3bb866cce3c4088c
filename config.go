package ekiden

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ekidenfi/ekiden-go/connection"
	"github.com/ekidenfi/ekiden-go/model"
)

// Gateway base URLs per environment.
const (
	ProductionBaseURL = "https://api.ekiden.fi/api/v1"
	StagingBaseURL    = "https://api.staging.ekiden.fi/api/v1"
	LocalBaseURL      = "http://localhost:3010/api/v1"
)

// Default values for optional configuration fields.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 1 * time.Second
	DefaultRefreshMargin = 30 * time.Second
)

// Config describes one client instance. The zero value is not usable; start
// from DefaultConfig, an environment preset, or Load.
type Config struct {
	// BaseURL is the REST root, e.g. "https://api.ekiden.fi/api/v1".
	BaseURL string `yaml:"base_url"`

	// WSURL is the stream endpoint. Empty derives it from BaseURL:
	// http becomes ws, https becomes wss, and the path becomes /ws.
	WSURL string `yaml:"ws_url"`

	// PrivateKey is the account's ed25519 seed as 64 hex characters,
	// optionally 0x-prefixed. Empty means public data only. Typically
	// supplied via ${EKIDEN_PRIVATE_KEY} expansion rather than inline.
	PrivateKey string `yaml:"private_key"`

	// Timeout bounds each REST request.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries and RetryDelay control REST retry behavior.
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// RefreshMargin renews the session token this long before expiry.
	RefreshMargin time.Duration `yaml:"refresh_margin"`

	// Stream tunes the streaming connection. Zero fields take the
	// connection package defaults.
	Stream StreamConfig `yaml:"stream"`
}

// StreamConfig is the YAML-facing subset of the connection settings.
type StreamConfig struct {
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
	JitterFraction    float64       `yaml:"jitter_fraction"`
	MaxAuthRejects    int           `yaml:"max_auth_rejects"`
	ListenerBuffer    int           `yaml:"listener_buffer"`

	// Reconnect policy. See the connection package for semantics.
	DisableResubscribe     bool `yaml:"disable_resubscribe"`
	PreserveSeqOnReconnect bool `yaml:"preserve_seq_on_reconnect"`

	// ResubscribeOnGap re-requests a snapshot when a sequence gap is
	// detected, in addition to the SequenceGap event.
	ResubscribeOnGap bool `yaml:"resubscribe_on_gap"`
}

// DefaultConfig returns the production configuration without credentials.
func DefaultConfig() Config {
	return Config{BaseURL: ProductionBaseURL}.withDefaults()
}

// ProductionConfig targets the production gateway.
func ProductionConfig() Config {
	return DefaultConfig()
}

// StagingConfig targets the staging gateway.
func StagingConfig() Config {
	return Config{BaseURL: StagingBaseURL}.withDefaults()
}

// LocalConfig targets a locally running gateway.
func LocalConfig() Config {
	return Config{BaseURL: LocalBaseURL}.withDefaults()
}

// Load reads a YAML config file, expands ${VAR} environment references,
// applies defaults, and validates.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RefreshMargin == 0 {
		c.RefreshMargin = DefaultRefreshMargin
	}
	return c
}

// Validate checks the URLs and, when set, the private key shape. The key
// value itself never appears in the returned error.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", base.Scheme)
	}
	if c.WSURL != "" {
		ws, err := url.Parse(c.WSURL)
		if err != nil {
			return fmt.Errorf("ws_url: %w", err)
		}
		if ws.Scheme != "ws" && ws.Scheme != "wss" {
			return fmt.Errorf("ws_url scheme must be ws or wss, got %q", ws.Scheme)
		}
	}
	// A seed is 32 bytes, the same hex shape as a public key.
	if c.PrivateKey != "" && !model.IsValidPublicKey(c.PrivateKey) {
		return errors.New("private_key must be 64 hex characters (32-byte seed)")
	}
	if c.Stream.JitterFraction < 0 || c.Stream.JitterFraction > 1 {
		return fmt.Errorf("stream.jitter_fraction must be in [0,1], got %v", c.Stream.JitterFraction)
	}
	return nil
}

// StreamURL returns the configured WSURL or derives one from BaseURL.
func (c Config) StreamURL() (string, error) {
	if c.WSURL != "" {
		return c.WSURL, nil
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("derive ws url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	default:
		return "", fmt.Errorf("derive ws url: unsupported scheme %q", base.Scheme)
	}
	base.Path = "/ws"
	base.RawQuery = ""
	return base.String(), nil
}

// streamConfig maps the YAML stream settings onto the connection config.
func (c Config) streamConfig(wsURL string) connection.Config {
	return connection.Config{
		URL:                    wsURL,
		PingInterval:           c.Stream.PingInterval,
		PingTimeout:            c.Stream.PingTimeout,
		ReconnectBaseWait:      c.Stream.ReconnectBaseWait,
		ReconnectMaxWait:       c.Stream.ReconnectMaxWait,
		JitterFraction:         c.Stream.JitterFraction,
		MaxAuthRejects:         c.Stream.MaxAuthRejects,
		DisableResubscribe:     c.Stream.DisableResubscribe,
		PreserveSeqOnReconnect: c.Stream.PreserveSeqOnReconnect,
	}
}
