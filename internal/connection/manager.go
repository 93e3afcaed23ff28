// Package connection owns the single long-lived realtime connection for an
// authenticated session. It authenticates the transport with the session
// token and language, decodes inbound notification frames onto the event
// dispatcher, and re-establishes the connection when it drops. Connection
// failures are never fatal: after the bounded retry budget is exhausted the
// manager parks in the failed state and the app continues in pull-only mode
// over REST.
package connection

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/dropwing/dropwing-go/config"
	apperrors "github.com/dropwing/dropwing-go/errors"
	"github.com/dropwing/dropwing-go/logger"
	"github.com/dropwing/dropwing-go/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// State describes the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

const (
	frameEventNotification      = "notification"
	frameEventRegisterPushToken = "register_push_token"
)

// frame is the wire envelope for every message on the realtime channel.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Publisher receives decoded notification events from the connection.
type Publisher interface {
	Publish(event types.NotificationEvent)
}

// ManagerMetrics holds Prometheus metrics for the connection manager.
type ManagerMetrics struct {
	connects          prometheus.Counter
	reconnectAttempts prometheus.Counter
	eventsReceived    prometheus.Counter
	readErrors        prometheus.Counter
}

var (
	managerMetricsOnce   sync.Once
	globalManagerMetrics *ManagerMetrics
)

func getManagerMetrics() *ManagerMetrics {
	managerMetricsOnce.Do(func() {
		globalManagerMetrics = &ManagerMetrics{
			connects: promauto.NewCounter(prometheus.CounterOpts{
				Name: "realtime_connects_total",
				Help: "Successful realtime handshakes",
			}),
			reconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "realtime_reconnect_attempts_total",
				Help: "Reconnection attempts after a dropped connection",
			}),
			eventsReceived: promauto.NewCounter(prometheus.CounterOpts{
				Name: "realtime_events_received_total",
				Help: "Notification events received over the realtime channel",
			}),
			readErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "realtime_read_errors_total",
				Help: "Read failures on the realtime channel",
			}),
		}
	})
	return globalManagerMetrics
}

// Manager maintains at most one live connection per session.
type Manager struct {
	log       *zap.SugaredLogger
	cfg       config.RealtimeConfig
	endpoints []Endpoint
	publisher Publisher
	metrics   *ManagerMetrics

	mu      sync.Mutex
	state   State
	lastErr error
	conn    Conn
	params  AuthParams
	pushReg *types.PushTokenRegistration
	cancel  context.CancelFunc
	done    chan struct{}
}

// DefaultEndpoints builds the standard transport chain from config:
// websocket first, HTTP long-polling as fallback.
func DefaultEndpoints(cfg config.RealtimeConfig) []Endpoint {
	return []Endpoint{
		{Transport: &WebSocketTransport{}, URL: cfg.URL},
		{Transport: &LongPollTransport{}, URL: cfg.PollURL},
	}
}

// NewManager creates a connection manager. Events decoded from the channel
// are handed to the publisher.
func NewManager(cfg config.RealtimeConfig, endpoints []Endpoint, publisher Publisher) *Manager {
	return &Manager{
		log:       logger.GetLogger().Named("connection"),
		cfg:       cfg,
		endpoints: endpoints,
		publisher: publisher,
		metrics:   getManagerMetrics(),
		state:     StateDisconnected,
	}
}

// Connect opens the connection, authenticating with the session token and
// current language. It is a no-op when a connection already exists or is
// being established. The initial handshake is bounded by the configured
// handshake timeout; once it completes the read loop runs until Disconnect.
func (m *Manager) Connect(ctx context.Context, session types.Session, language string) error {
	if !session.Valid() {
		return apperrors.AuthenticationFailed("cannot connect without a session")
	}

	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.params = AuthParams{Token: session.Token, Language: language}
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateFailed
		m.lastErr = err
		m.mu.Unlock()
		return apperrors.ConnectionFailed("handshake failed", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.conn = conn
	m.state = StateConnected
	m.lastErr = nil
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	m.metrics.connects.Inc()
	m.log.Infow("Realtime connection established",
		"token", logger.MaskToken(session.Token),
		"language", language)

	m.registerPushToken(runCtx, conn)

	go m.run(runCtx, conn, done)
	return nil
}

// dial walks the endpoint chain until one transport connects.
func (m *Manager) dial(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	params := m.params
	m.mu.Unlock()

	var errs []error
	for _, ep := range m.endpoints {
		dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
		conn, err := ep.Transport.Dial(dialCtx, ep.URL, params)
		cancel()
		if err == nil {
			m.log.Infow("Transport connected", "transport", ep.Transport.Name())
			return conn, nil
		}
		m.log.Warnw("Transport dial failed",
			"transport", ep.Transport.Name(),
			"error", err)
		errs = append(errs, fmt.Errorf("%s: %w", ep.Transport.Name(), err))
	}
	return nil, stderrors.Join(errs...)
}

// run is the read loop. It exits when the context is cancelled or when
// reconnection is exhausted.
func (m *Manager) run(ctx context.Context, conn Conn, done chan struct{}) {
	defer close(done)

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			m.metrics.readErrors.Inc()
			serverClose := websocket.CloseStatus(err) != -1
			m.log.Warnw("Realtime connection dropped",
				"error", err,
				"serverInitiated", serverClose)

			newConn, rerr := m.reconnect(ctx, serverClose)
			if rerr != nil {
				if ctx.Err() != nil {
					return
				}
				m.mu.Lock()
				m.state = StateFailed
				m.lastErr = rerr
				m.conn = nil
				m.mu.Unlock()
				m.log.Errorw("Reconnection exhausted, degrading to pull-only mode",
					"error", rerr)
				return
			}
			conn = newConn
			continue
		}

		m.handleFrame(data)
	}
}

// reconnect re-dials with the same auth params. A server-initiated close is
// retried immediately; all drops then fall into the bounded constant-backoff
// budget. The first successful dial wins.
func (m *Manager) reconnect(ctx context.Context, immediate bool) (Conn, error) {
	m.mu.Lock()
	m.state = StateConnecting
	m.conn = nil
	m.mu.Unlock()

	if immediate {
		m.metrics.reconnectAttempts.Inc()
		if conn, err := m.dial(ctx); err == nil {
			m.afterReconnect(ctx, conn)
			return conn, nil
		}
	}

	var conn Conn
	attempt := func() error {
		m.metrics.reconnectAttempts.Inc()
		c, err := m.dial(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(m.cfg.ReconnectDelay),
			uint64(m.cfg.MaxReconnectAttempts-1),
		),
		ctx,
	)

	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}

	m.afterReconnect(ctx, conn)
	return conn, nil
}

func (m *Manager) afterReconnect(ctx context.Context, conn Conn) {
	m.mu.Lock()
	m.conn = conn
	m.state = StateConnected
	m.lastErr = nil
	m.mu.Unlock()

	m.metrics.connects.Inc()
	m.log.Info("Realtime connection re-established")

	// The server forgets device registrations with the old connection.
	m.registerPushToken(ctx, conn)
}

// handleFrame decodes one inbound frame and publishes notification events.
// Unknown frame kinds are ignored for forward compatibility.
func (m *Manager) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		m.log.Warnw("Discarding malformed frame", "error", err)
		return
	}

	if f.Event != frameEventNotification {
		m.log.Debugw("Ignoring frame", "event", f.Event)
		return
	}

	var event types.NotificationEvent
	if err := json.Unmarshal(f.Data, &event); err != nil {
		m.log.Warnw("Discarding malformed notification event", "error", err)
		return
	}
	if err := event.Validate(); err != nil {
		m.log.Warnw("Discarding invalid notification event", "error", err)
		return
	}

	m.metrics.eventsReceived.Inc()
	m.publisher.Publish(event)
}

// SetPushToken records the device push token. If the connection is live the
// registration is sent immediately; otherwise it is sent after the next
// successful handshake.
func (m *Manager) SetPushToken(reg types.PushTokenRegistration) {
	m.mu.Lock()
	m.pushReg = &reg
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected && conn != nil {
		m.registerPushToken(context.Background(), conn)
	}
}

// registerPushToken emits the device registration frame. Failures are logged
// and swallowed: push registration is a background concern and must not take
// the connection down.
func (m *Manager) registerPushToken(ctx context.Context, conn Conn) {
	m.mu.Lock()
	reg := m.pushReg
	m.mu.Unlock()

	if reg == nil {
		return
	}

	data, err := json.Marshal(reg)
	if err != nil {
		m.log.Errorw("Failed to marshal push token registration", "error", err)
		return
	}
	payload, err := json.Marshal(frame{Event: frameEventRegisterPushToken, Data: data})
	if err != nil {
		m.log.Errorw("Failed to marshal push token frame", "error", err)
		return
	}

	if err := conn.Write(ctx, payload); err != nil {
		m.log.Warnw("Failed to register push token",
			"token", logger.MaskToken(reg.Token),
			"error", err)
		return
	}
	m.log.Infow("Push token registered",
		"token", logger.MaskToken(reg.Token),
		"platform", reg.Platform)
}

// Disconnect tears the connection down and clears state. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel := m.cancel
	conn := m.conn
	done := m.done
	m.cancel = nil
	m.conn = nil
	m.done = nil
	m.state = StateDisconnected
	m.lastErr = nil
	m.params = AuthParams{}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close("client disconnect")
	}
	if done != nil {
		<-done
	}
	m.log.Info("Realtime connection closed")
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error that put the connection into the failed state.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Connected reports whether the connection is live.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}
