package connection

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dropwing/dropwing-go/logger"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// AuthParams authenticate the realtime channel at connect time. Reconnects
// must re-send the same values.
type AuthParams struct {
	Token    string
	Language string
}

// Conn is a live bidirectional message connection.
type Conn interface {
	// Read blocks until the next inbound frame arrives.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one outbound frame.
	Write(ctx context.Context, data []byte) error
	// Close tears the connection down. Idempotent.
	Close(reason string) error
}

// Transport dials a Conn against a server address.
type Transport interface {
	Name() string
	Dial(ctx context.Context, rawURL string, params AuthParams) (Conn, error)
}

func authenticateURL(rawURL string, params AuthParams) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid realtime URL: %w", err)
	}
	q := u.Query()
	q.Set("token", params.Token)
	q.Set("language", params.Language)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// WebSocketTransport is the primary transport.
type WebSocketTransport struct {
	// HTTPClient is used for the handshake. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (t *WebSocketTransport) Name() string { return "websocket" }

func (t *WebSocketTransport) Dial(ctx context.Context, rawURL string, params AuthParams) (Conn, error) {
	target, err := authenticateURL(rawURL, params)
	if err != nil {
		return nil, err
	}

	opts := &websocket.DialOptions{}
	if t.HTTPClient != nil {
		opts.HTTPClient = t.HTTPClient
	}

	c, _, err := websocket.Dial(ctx, target, opts)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	// Inbound frames are application-level events; no fixed cap beyond a
	// generous per-message limit.
	c.SetReadLimit(1 << 20)

	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}

// LongPollTransport is the fallback transport: it emulates the persistent
// channel over repeated HTTP GETs against the poll endpoint and POSTs for
// outbound frames.
type LongPollTransport struct {
	HTTPClient *http.Client
	// Interval is the pause between polls returning no events.
	Interval time.Duration
}

func (t *LongPollTransport) Name() string { return "long-poll" }

func (t *LongPollTransport) Dial(ctx context.Context, rawURL string, params AuthParams) (Conn, error) {
	target, err := authenticateURL(rawURL, params)
	if err != nil {
		return nil, err
	}

	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	interval := t.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	pc := &pollConn{
		client:   client,
		url:      target,
		interval: interval,
		log:      logger.GetLogger().Named("long_poll"),
	}

	// Probe once so dial failures surface immediately, as they would for a
	// refused websocket handshake.
	if _, err := pc.poll(ctx); err != nil {
		return nil, fmt.Errorf("long-poll probe failed: %w", err)
	}
	return pc, nil
}

type pollConn struct {
	client   *http.Client
	url      string
	interval time.Duration
	log      *zap.SugaredLogger

	mu     sync.Mutex
	cursor string
	queue  [][]byte
	closed bool
}

type pollResponse struct {
	Cursor string            `json:"cursor"`
	Events []json.RawMessage `json:"events"`
}

// poll performs one GET and enqueues any returned frames.
func (c *pollConn) poll(ctx context.Context) (int, error) {
	c.mu.Lock()
	target := c.url
	if c.cursor != "" {
		target = target + "&cursor=" + url.QueryEscape(c.cursor)
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("poll endpoint returned status %d", resp.StatusCode)
	}

	var pr pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return 0, fmt.Errorf("failed to decode poll response: %w", err)
	}

	c.mu.Lock()
	if pr.Cursor != "" {
		c.cursor = pr.Cursor
	}
	for _, ev := range pr.Events {
		c.queue = append(c.queue, []byte(ev))
	}
	n := len(pr.Events)
	c.mu.Unlock()
	return n, nil
}

func (c *pollConn) Read(ctx context.Context) ([]byte, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, stderrors.New("connection closed")
		}
		if len(c.queue) > 0 {
			frame := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return frame, nil
		}
		c.mu.Unlock()

		n, err := c.poll(ctx)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.interval):
			}
		}
	}
}

func (c *pollConn) Write(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("poll endpoint rejected frame with status %d", resp.StatusCode)
	}
	return nil
}

func (c *pollConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Endpoint pairs a transport with the server address it dials. The manager
// tries endpoints in order, falling back to the next when a dial fails.
type Endpoint struct {
	Transport Transport
	URL       string
}
