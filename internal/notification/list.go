package notification

import (
	"context"
	"sync"

	"github.com/dropwing/dropwing-go/logger"
	"github.com/dropwing/dropwing-go/types"
	"go.uber.org/zap"
)

// List is the client-side view over a user's notifications: paginated
// fetches from the API, optimistic local mutations, and id-keyed merges of
// live events. It owns its records exclusively; other components hand it
// events or patches, they never touch the slice.
//
// Mutations are optimistic and never rolled back on request failure; drift
// is bounded by Reconcile, which refetches the first page and merges it
// field-preservingly.
type List struct {
	mu       sync.Mutex
	log      *zap.SugaredLogger
	client   *Client
	userID   string
	pageSize int

	records []types.Notification
	hasMore bool

	// pendingReads holds ids flipped to read locally whose flip has not yet
	// been observed in a fetched page. A page-1 replace keeps these read so
	// a stale concurrent fetch cannot undo the user's action.
	pendingReads map[string]struct{}
}

// NewList creates an empty list for the given user.
func NewList(client *Client, userID string, pageSize int) *List {
	return &List{
		log:          logger.GetLogger().Named("notification_list"),
		client:       client,
		userID:       userID,
		pageSize:     pageSize,
		pendingReads: make(map[string]struct{}),
	}
}

// Records returns a copy of the current notifications, newest first.
func (l *List) Records() []types.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Notification, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of notifications currently held.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// HasMore reports whether another page is likely available, based on the
// size of the last fetched page.
func (l *List) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// UnreadCount returns the number of locally held unread notifications.
func (l *List) UnreadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for i := range l.records {
		if !l.records[i].IsRead {
			n++
		}
	}
	return n
}

// FetchPage loads one page from the API. Page 1 replaces the list (keeping
// pending optimistic read flips); later pages append, skipping ids already
// present. Returns whether more data is likely available.
func (l *List) FetchPage(ctx context.Context, page int) (bool, error) {
	fetched, err := l.client.List(ctx, l.userID, page)
	if err != nil {
		return l.HasMore(), err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if page <= 1 {
		for i := range fetched {
			if _, pending := l.pendingReads[fetched[i].ID]; pending {
				if fetched[i].IsRead {
					// Server caught up; the flip is no longer pending.
					delete(l.pendingReads, fetched[i].ID)
				} else {
					fetched[i].IsRead = true
				}
			}
		}
		l.records = fetched
	} else {
		existing := make(map[string]struct{}, len(l.records))
		for i := range l.records {
			existing[l.records[i].ID] = struct{}{}
		}
		for i := range fetched {
			if _, ok := existing[fetched[i].ID]; ok {
				continue
			}
			l.records = append(l.records, fetched[i])
		}
	}

	l.hasMore = len(fetched) >= l.pageSize
	return l.hasMore, nil
}

// Reconcile refreshes the list against the authoritative server state. It is
// the periodic counterweight to optimistic mutations that failed silently.
func (l *List) Reconcile(ctx context.Context) error {
	_, err := l.FetchPage(ctx, 1)
	return err
}

// MarkRead flips a notification to read locally, then confirms with the API.
// The local flip is kept even when the request fails; this path is
// non-critical and failures are surfaced only to the caller's logs.
func (l *List) MarkRead(ctx context.Context, id string) error {
	l.mu.Lock()
	found := false
	for i := range l.records {
		if l.records[i].ID == id {
			if l.records[i].IsRead {
				l.mu.Unlock()
				return nil
			}
			l.records[i].IsRead = true
			found = true
			break
		}
	}
	if found {
		l.pendingReads[id] = struct{}{}
	}
	l.mu.Unlock()

	if !found {
		return nil
	}

	if err := l.client.MarkRead(ctx, id, l.userID); err != nil {
		l.log.Warnw("Failed to persist read flag, keeping optimistic state",
			"notificationID", id,
			"error", err)
		return err
	}
	return nil
}

// Delete removes a notification locally, then confirms with the API. No
// rollback on failure.
func (l *List) Delete(ctx context.Context, id string) error {
	if !l.removeLocal(id) {
		return nil
	}

	if err := l.client.Delete(ctx, id, l.userID); err != nil {
		l.log.Warnw("Failed to persist delete, keeping optimistic state",
			"notificationID", id,
			"error", err)
		return err
	}
	return nil
}

// DeleteAll clears the list locally, then confirms with the API.
func (l *List) DeleteAll(ctx context.Context) error {
	l.mu.Lock()
	l.records = nil
	l.hasMore = false
	l.pendingReads = make(map[string]struct{})
	l.mu.Unlock()

	if err := l.client.DeleteAll(ctx, l.userID); err != nil {
		l.log.Warnw("Failed to persist delete-all, keeping optimistic state",
			"error", err)
		return err
	}
	return nil
}

// Discard removes a notification locally without an API call. Used after a
// confirmation the server has already resolved.
func (l *List) Discard(id string) {
	l.removeLocal(id)
}

func (l *List) removeLocal(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].ID == id {
			l.records = append(l.records[:i], l.records[i+1:]...)
			delete(l.pendingReads, id)
			return true
		}
	}
	return false
}

// Get returns a copy of the notification with the given id.
func (l *List) Get(id string) (types.Notification, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].ID == id {
			return l.records[i], true
		}
	}
	return types.Notification{}, false
}

// ApplyEvent merges one live event into the list. All patches key on the
// notification id and are no-ops when the id is absent, so events and REST
// responses can land in any order. A NEW_NOTIFICATION without a full payload
// forces a page-1 refetch since there is nothing to synthesize locally.
func (l *List) ApplyEvent(ctx context.Context, event types.NotificationEvent) error {
	needRefetch := false

	l.mu.Lock()
	switch event.Type {
	case types.EventTypeNewNotification:
		if !event.HasFullPayload() {
			needRefetch = true
			break
		}
		if l.indexOfLocked(event.NotificationID) >= 0 {
			break // already present, dedup
		}
		l.records = append([]types.Notification{event.Record()}, l.records...)

	case types.EventTypeNotificationUpdated:
		if i := l.indexOfLocked(event.NotificationID); i >= 0 {
			if event.IsRead != nil {
				l.records[i].IsRead = *event.IsRead
				if *event.IsRead {
					delete(l.pendingReads, event.NotificationID)
				}
			} else {
				l.records[i].IsRead = true
				delete(l.pendingReads, event.NotificationID)
			}
		}

	case types.EventTypeNotificationDeleted:
		if i := l.indexOfLocked(event.NotificationID); i >= 0 {
			l.records = append(l.records[:i], l.records[i+1:]...)
			delete(l.pendingReads, event.NotificationID)
		}

	case types.EventTypeNotificationsReset:
		for i := range l.records {
			l.records[i].IsRead = true
		}
		l.pendingReads = make(map[string]struct{})

	case types.EventTypeAllNotificationsDeleted:
		l.records = nil
		l.hasMore = false
		l.pendingReads = make(map[string]struct{})

	default:
		// Unknown event types are ignored for forward compatibility.
	}
	l.mu.Unlock()

	if needRefetch {
		_, err := l.FetchPage(ctx, 1)
		return err
	}
	return nil
}

func (l *List) indexOfLocked(id string) int {
	for i := range l.records {
		if l.records[i].ID == id {
			return i
		}
	}
	return -1
}
