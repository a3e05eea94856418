package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// ErrAlreadyStarted is returned when a watcher is started twice.
var ErrAlreadyStarted = errors.New("already started")

// newBlockQuery is the Tendermint event query for committed blocks.
const newBlockQuery = "tm.event='NewBlock'"

// HeadConfig configures a HeadWatcher.
type HeadConfig struct {
	URL               string        // Websocket endpoint, e.g. "ws://localhost:26657/websocket"
	PingInterval      time.Duration // Keepalive ping period
	ReadTimeout       time.Duration // Max silence before the connection is treated as stale
	WriteTimeout      time.Duration
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
}

// WebsocketURL derives the RPC websocket endpoint from an http(s) RPC URL.
func WebsocketURL(rpcURL string) string {
	u := strings.TrimRight(rpcURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/websocket"
}

func (c *HeadConfig) applyDefaults() {
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 90 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReconnectBaseWait == 0 {
		c.ReconnectBaseWait = time.Second
	}
	if c.ReconnectMaxWait == 0 {
		c.ReconnectMaxWait = time.Minute
	}
}

// HeadWatcher tracks the chain head by subscribing to NewBlock events.
// It reconnects with exponential backoff until stopped.
type HeadWatcher struct {
	cfg     HeadConfig
	logger  *slog.Logger
	onBlock func(height int64)

	height      atomic.Int64
	lastBlockAt atomic.Int64 // unix nanos
	connected   atomic.Bool

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// NewHeadWatcher creates a watcher. onBlock, if set, is called from the
// read goroutine for every new height.
func NewHeadWatcher(cfg HeadConfig, onBlock func(height int64), logger *slog.Logger) *HeadWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &HeadWatcher{
		cfg:     cfg,
		logger:  logger,
		onBlock: onBlock,
	}
}

// Start begins watching in the background.
func (w *HeadWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("head watcher started", "url", w.cfg.URL)
	return nil
}

// Stop closes the connection and waits for the watcher to exit.
func (w *HeadWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	if w.conn != nil {
		w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		w.conn.Close()
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("head watcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Height returns the latest block height seen, or 0.
func (w *HeadWatcher) Height() int64 {
	return w.height.Load()
}

// LastBlockAt returns when the latest block event arrived.
func (w *HeadWatcher) LastBlockAt() time.Time {
	ns := w.lastBlockAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// IsConnected reports whether the subscription is live.
func (w *HeadWatcher) IsConnected() bool {
	return w.connected.Load()
}

func (w *HeadWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	wait := w.cfg.ReconnectBaseWait
	for {
		established, err := w.session(ctx)
		w.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		if established {
			wait = w.cfg.ReconnectBaseWait
		}

		if err != nil {
			w.logger.Warn("head subscription lost", "error", err, "retry_in", wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		wait *= 2
		if wait > w.cfg.ReconnectMaxWait {
			wait = w.cfg.ReconnectMaxWait
		}
	}
}

// session dials, subscribes and reads until the connection fails. It reports
// whether the node answered the subscription.
func (w *HeadWatcher) session(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	header := http.Header{}
	header.Set("Accept", "application/json")

	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
	}()

	sub, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "subscribe",
		"id":      1,
		"params":  map[string]string{"query": newBlockQuery},
	})
	if err != nil {
		return false, err
	}
	conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return false, err
	}

	conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout))
	})

	w.connected.Store(true)
	w.logger.Debug("head subscription established", "url", w.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go w.heartbeat(conn, done)

	established := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return established, err
		}
		conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout))

		if rpcErr := gjson.GetBytes(data, "error"); rpcErr.Exists() {
			return established, errors.New("subscribe: " + rpcErr.Get("message").String())
		}
		established = true

		h := gjson.GetBytes(data, "result.data.value.block.header.height")
		if !h.Exists() {
			continue // subscription ack
		}
		height := h.Int()
		if height <= 0 {
			continue
		}

		w.height.Store(height)
		w.lastBlockAt.Store(time.Now().UnixNano())
		if w.onBlock != nil {
			w.onBlock(height)
		}
	}
}

// heartbeat pings the node until done is closed.
func (w *HeadWatcher) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(w.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				w.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}
