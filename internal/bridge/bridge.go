// Package bridge translates heterogeneous event sources, the realtime
// connection and OS push deliveries, into a single consistent stream of
// changes applied to the notification list, and raises a local alert for
// new notifications so the user is notified even while the app is
// foregrounded.
package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dropwing/dropwing-go/internal/events"
	"github.com/dropwing/dropwing-go/internal/notification"
	"github.com/dropwing/dropwing-go/logger"
	"github.com/dropwing/dropwing-go/types"
	"go.uber.org/zap"
)

// maxSeen bounds the alert dedup window. Ids beyond this are forgotten
// oldest-first; by then any duplicate delivery has long passed.
const maxSeen = 512

// Alerter raises a user-visible alert for a freshly arrived notification.
// Implementations are the platform local-notification hook; a nil alerter
// disables alerting.
type Alerter interface {
	Alert(n types.Notification)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithAlerter sets the local alert hook.
func WithAlerter(a Alerter) Option {
	return func(b *Bridge) {
		b.alerter = a
	}
}

// Bridge consumes notification events and folds them into the list. It
// enforces strict per-user isolation and deduplicates alerts across the
// connection and push channels.
type Bridge struct {
	log        *zap.SugaredLogger
	dispatcher *events.Dispatcher
	list       *notification.List
	userID     string
	alerter    Alerter

	mu        sync.Mutex
	seen      map[string]struct{}
	seenOrder []string

	sub    *events.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a bridge for the signed-in user.
func New(dispatcher *events.Dispatcher, list *notification.List, userID string, opts ...Option) *Bridge {
	b := &Bridge{
		log:        logger.GetLogger().Named("notification_bridge"),
		dispatcher: dispatcher,
		list:       list,
		userID:     userID,
		seen:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start subscribes to the dispatcher and processes events until Stop. Events
// are handled strictly in delivery order; no reordering or batching.
func (b *Bridge) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.sub = b.dispatcher.Subscribe(64, types.KnownEventTypes()...)

	go func() {
		defer close(b.done)
		for {
			select {
			case <-runCtx.Done():
				return
			case event, ok := <-b.sub.Events():
				if !ok {
					return
				}
				b.Handle(runCtx, event)
			}
		}
	}()

	b.log.Infow("Notification bridge started", "userID", b.userID)
}

// Stop unsubscribes and waits for in-flight event handling to finish.
// Idempotent.
func (b *Bridge) Stop() {
	if b.sub != nil {
		b.sub.Cancel()
	}
	if b.cancel != nil {
		b.cancel()
	}
	if b.done != nil {
		<-b.done
		b.done = nil
	}
}

// HandlePushDelivery feeds a raw OS push payload through the same pipeline
// as connection events, normalizing the two sources.
func (b *Bridge) HandlePushDelivery(ctx context.Context, payload []byte) error {
	var event types.NotificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		b.log.Warnw("Discarding malformed push delivery", "error", err)
		return err
	}
	if err := event.Validate(); err != nil {
		b.log.Warnw("Discarding invalid push delivery", "error", err)
		return err
	}
	b.Handle(ctx, event)
	return nil
}

// Handle processes one event. Events for other users are dropped outright;
// unknown event types are ignored.
func (b *Bridge) Handle(ctx context.Context, event types.NotificationEvent) {
	if !event.Known() {
		b.log.Debugw("Ignoring unknown event type", "eventType", event.Type)
		return
	}
	if event.UserID != b.userID {
		b.log.Debugw("Dropping event for other user",
			"eventType", event.Type,
			"eventUserID", event.UserID)
		return
	}

	if err := b.list.ApplyEvent(ctx, event); err != nil {
		// A failed refetch leaves the list stale until the next reconcile;
		// the event itself is not retried.
		b.log.Warnw("Failed to apply event",
			"eventType", event.Type,
			"error", err)
	}

	if event.Type == types.EventTypeNewNotification && event.HasFullPayload() {
		b.alertOnce(event)
	}
}

// alertOnce raises the local alert for a new notification exactly once, even
// when the same notification arrives over both the connection and the push
// channel.
func (b *Bridge) alertOnce(event types.NotificationEvent) {
	b.mu.Lock()
	if _, dup := b.seen[event.NotificationID]; dup {
		b.mu.Unlock()
		return
	}
	b.seen[event.NotificationID] = struct{}{}
	b.seenOrder = append(b.seenOrder, event.NotificationID)
	if len(b.seenOrder) > maxSeen {
		oldest := b.seenOrder[0]
		b.seenOrder = b.seenOrder[1:]
		delete(b.seen, oldest)
	}
	alerter := b.alerter
	b.mu.Unlock()

	if alerter != nil {
		alerter.Alert(event.Record())
	}
}
