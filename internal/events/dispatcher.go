// Package events provides an in-process publish-subscribe dispatcher for
// realtime notification events. Subscribers receive typed events over a
// channel and hold an explicit handle used to unsubscribe, so lifecycle is
// enforced by the API rather than by convention.
package events

import (
	"sync"

	"github.com/dropwing/dropwing-go/logger"
	"github.com/dropwing/dropwing-go/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DispatcherMetrics holds Prometheus metrics for the dispatcher.
type DispatcherMetrics struct {
	subscriberCount  prometheus.Gauge
	eventsDispatched *prometheus.CounterVec
	eventsDiscarded  *prometheus.CounterVec
}

var (
	dispatcherMetricsOnce   sync.Once
	globalDispatcherMetrics *DispatcherMetrics
)

// getDispatcherMetrics initializes dispatcher metrics if they haven't been,
// and returns them. This ensures metrics are registered only once.
func getDispatcherMetrics() *DispatcherMetrics {
	dispatcherMetricsOnce.Do(func() {
		globalDispatcherMetrics = &DispatcherMetrics{
			subscriberCount: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "notification_event_subscribers_total",
				Help: "Number of active event subscriptions",
			}),
			eventsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "notification_events_dispatched_total",
				Help: "Total number of events dispatched by type",
			}, []string{"event_type"}),
			eventsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "notification_events_discarded_total",
				Help: "Total number of events discarded by reason",
			}, []string{"reason"}),
		}
	})
	return globalDispatcherMetrics
}

// Dispatcher fans events out to subscribers, filtered by event type.
// Publishing never blocks: an event a subscriber cannot keep up with is
// dropped for that subscriber and counted.
type Dispatcher struct {
	log     *zap.SugaredLogger
	metrics *DispatcherMetrics
	mu      sync.RWMutex
	nextID  int
	subs    map[int]*Subscription
	closed  bool
}

// Subscription is the handle held by a subscriber. Events arrive on
// Events(); Cancel releases the subscription and closes the channel.
type Subscription struct {
	id      int
	ch      chan types.NotificationEvent
	filters map[types.EventType]bool
	d       *Dispatcher
	once    sync.Once
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		log:     logger.GetLogger().Named("event_dispatcher"),
		metrics: getDispatcherMetrics(),
		subs:    make(map[int]*Subscription),
	}
}

// Subscribe registers a new subscriber. With no filters, all event types are
// delivered; otherwise only the listed types.
func (d *Dispatcher) Subscribe(buffer int, filters ...types.EventType) *Subscription {
	if buffer < 1 {
		buffer = 1
	}

	sub := &Subscription{
		ch: make(chan types.NotificationEvent, buffer),
		d:  d,
	}
	if len(filters) > 0 {
		sub.filters = make(map[types.EventType]bool, len(filters))
		for _, f := range filters {
			sub.filters[f] = true
		}
	}

	d.mu.Lock()
	d.nextID++
	sub.id = d.nextID
	if d.closed {
		d.mu.Unlock()
		close(sub.ch)
		return sub
	}
	d.subs[sub.id] = sub
	count := len(d.subs)
	d.mu.Unlock()

	d.metrics.subscriberCount.Set(float64(count))
	d.log.Debugw("Subscriber registered", "id", sub.id, "filters", filters)
	return sub
}

// Events returns the subscriber's event channel. It is closed by Cancel or
// by Dispatcher.Close.
func (s *Subscription) Events() <-chan types.NotificationEvent {
	return s.ch
}

// Cancel removes the subscription and closes its channel. Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.d.mu.Lock()
		_, live := s.d.subs[s.id]
		delete(s.d.subs, s.id)
		count := len(s.d.subs)
		s.d.mu.Unlock()

		if live {
			close(s.ch)
		}
		s.d.metrics.subscriberCount.Set(float64(count))
		s.d.log.Debugw("Subscriber cancelled", "id", s.id)
	})
}

// Publish delivers an event to every matching subscriber in registration
// order. Events are delivered in the order they are published; there is no
// batching or reordering.
func (d *Dispatcher) Publish(event types.NotificationEvent) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.metrics.eventsDiscarded.WithLabelValues("dispatcher_closed").Inc()
		return
	}
	targets := make([]*Subscription, 0, len(d.subs))
	for _, sub := range d.subs {
		if sub.filters == nil || sub.filters[event.Type] {
			targets = append(targets, sub)
		}
	}
	d.mu.RUnlock()

	if len(targets) == 0 {
		d.metrics.eventsDiscarded.WithLabelValues("no_subscribers").Inc()
		d.log.Debugw("No subscribers for event", "eventType", event.Type)
		return
	}

	d.metrics.eventsDispatched.WithLabelValues(string(event.Type)).Inc()

	for _, sub := range targets {
		select {
		case sub.ch <- event:
		default:
			d.metrics.eventsDiscarded.WithLabelValues("subscriber_buffer_full").Inc()
			d.log.Warnw("Subscriber buffer full, dropping event",
				"subscriberID", sub.id,
				"eventType", event.Type)
		}
	}
}

// Close cancels all subscriptions. Further publishes are discarded.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := make([]*Subscription, 0, len(d.subs))
	for _, sub := range d.subs {
		subs = append(subs, sub)
	}
	d.subs = make(map[int]*Subscription)
	d.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
	d.metrics.subscriberCount.Set(0)
	d.log.Info("Event dispatcher closed")
}

// SubscriberCount returns the number of active subscriptions.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}
