package types

import (
	"encoding/json"
	"time"

	"github.com/dropwing/dropwing-go/errors"
)

type EventType string

const (
	EventTypeNewNotification         EventType = "NEW_NOTIFICATION"
	EventTypeNotificationUpdated     EventType = "NOTIFICATION_UPDATED"
	EventTypeNotificationDeleted     EventType = "NOTIFICATION_DELETED"
	EventTypeNotificationsReset      EventType = "NOTIFICATIONS_RESET"
	EventTypeAllNotificationsDeleted EventType = "ALL_NOTIFICATIONS_DELETED"
)

// KnownEventTypes lists every event type the client understands. Events with
// other types are ignored for forward compatibility.
func KnownEventTypes() []EventType {
	return []EventType{
		EventTypeNewNotification,
		EventTypeNotificationUpdated,
		EventTypeNotificationDeleted,
		EventTypeNotificationsReset,
		EventTypeAllNotificationsDeleted,
	}
}

// NotificationEvent is a transient, server-pushed message describing a change
// to notification state. It is consumed once and never persisted.
type NotificationEvent struct {
	ID                string           `json:"id,omitempty"`
	Type              EventType        `json:"type"`
	UserID            string           `json:"user_id"`
	NotificationID    string           `json:"notification_id,omitempty"`
	NotificationType  NotificationType `json:"notification_type,omitempty"`
	TranslatedMessage string           `json:"translated_message,omitempty"`
	OrderID           string           `json:"order_id,omitempty"`
	Metadata          json.RawMessage  `json:"metadata,omitempty"`
	IsRead            *bool            `json:"is_read,omitempty"`
	Timestamp         time.Time        `json:"timestamp,omitempty"`
}

// Validate checks the fields every event must carry.
func (e NotificationEvent) Validate() error {
	if e.Type == "" {
		return errors.ValidationFailed("invalid event", "event type is required")
	}
	if e.UserID == "" {
		return errors.ValidationFailed("invalid event", "user ID is required")
	}
	return nil
}

// Known reports whether the event type is one the client understands.
func (e NotificationEvent) Known() bool {
	for _, t := range KnownEventTypes() {
		if e.Type == t {
			return true
		}
	}
	return false
}

// HasFullPayload reports whether a NEW_NOTIFICATION event carries enough
// data to synthesize a Notification locally. Events without a full payload
// force a page refetch instead.
func (e NotificationEvent) HasFullPayload() bool {
	return e.NotificationID != "" && e.TranslatedMessage != ""
}

// Record synthesizes a Notification from a full-payload NEW_NOTIFICATION
// event.
func (e NotificationEvent) Record() Notification {
	createdAt := e.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	notifType := e.NotificationType
	if notifType == "" {
		notifType = NotificationTypeSystem
	}
	return Notification{
		ID:                e.NotificationID,
		UserID:            e.UserID,
		TranslatedMessage: e.TranslatedMessage,
		Type:              notifType,
		OrderID:           e.OrderID,
		Metadata:          e.Metadata,
		IsRead:            false,
		CreatedAt:         createdAt,
	}
}
