package ledger

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rickgao/oracle-monitor/internal/version"
)

// Client reads vstorage through a Tendermint RPC node.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string

	maxRetries   int
	retryBackoff time.Duration

	follower *Follower
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a client for the RPC node at rpcURL (e.g., "http://localhost:26657").
func NewClient(rpcURL string, opts ...ClientOption) *Client {
	c := &Client{
		rpcURL: strings.TrimRight(rpcURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		userAgent:    version.UserAgent(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.follower = NewFollower(c, c.logger)
	return c
}

// RPCURL returns the node the client reads from.
func (c *Client) RPCURL() string {
	return c.rpcURL
}

// Follower returns the stream follower backing the wallet helpers.
func (c *Client) Follower() *Follower {
	return c.follower
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
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
