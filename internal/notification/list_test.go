package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dropwing/dropwing-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLang string

func (l staticLang) Language() string { return string(l) }

func boolPtr(b bool) *bool { return &b }

func seededList(t *testing.T, client *Client, records ...types.Notification) *List {
	t.Helper()
	list := NewList(client, "user-1", 2)
	list.records = append(list.records, records...)
	return list
}

func record(id string) types.Notification {
	return types.Notification{
		ID:                id,
		UserID:            "user-1",
		TranslatedMessage: "message " + id,
		Type:              types.NotificationTypeOrder,
	}
}

func unusedClient(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected API call: %s %s", r.Method, r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, staticLang("en"))
}

func TestList_ApplyEvent_DeleteMissingIsNoop(t *testing.T) {
	list := seededList(t, unusedClient(t), record("1"), record("2"))

	err := list.ApplyEvent(context.Background(), types.NotificationEvent{
		Type:           types.EventTypeNotificationDeleted,
		UserID:         "user-1",
		NotificationID: "missing",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())
}

func TestList_ApplyEvent_Delete(t *testing.T) {
	list := seededList(t, unusedClient(t), record("1"), record("2"))

	err := list.ApplyEvent(context.Background(), types.NotificationEvent{
		Type:           types.EventTypeNotificationDeleted,
		UserID:         "user-1",
		NotificationID: "1",
	})
	require.NoError(t, err)

	records := list.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0].ID)
}

func TestList_ApplyEvent_UpdateMarksRead(t *testing.T) {
	list := seededList(t, unusedClient(t), record("1"))

	err := list.ApplyEvent(context.Background(), types.NotificationEvent{
		Type:           types.EventTypeNotificationUpdated,
		UserID:         "user-1",
		NotificationID: "1",
		IsRead:         boolPtr(true),
	})
	require.NoError(t, err)

	n, ok := list.Get("1")
	require.True(t, ok)
	assert.True(t, n.IsRead)
}

func TestList_ApplyEvent_UpdateMissingIsNoop(t *testing.T) {
	list := seededList(t, unusedClient(t), record("1"))

	err := list.ApplyEvent(context.Background(), types.NotificationEvent{
		Type:           types.EventTypeNotificationUpdated,
		UserID:         "user-1",
		NotificationID: "missing",
		IsRead:         boolPtr(true),
	})
	require.NoError(t, err)

	n, _ := list.Get("1")
	assert.False(t, n.IsRead)
}

func TestList_ApplyEvent_NewDedup(t *testing.T) {
	list := seededList(t, unusedClient(t), record("1"))

	err := list.ApplyEvent(context.Background(), types.NotificationEvent{
		Type:              types.EventTypeNewNotification,
		UserID:            "user-1",
		NotificationID:    "1",
		TranslatedMessage: "duplicate",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Len())
}

func TestList_ApplyEvent_NewPrepends(t *testing.T) {
	list := seededList(t, unusedClient(t), record("1"))

	err := list.ApplyEvent(context.Background(), types.NotificationEvent{
		Type:              types.EventTypeNewNotification,
		UserID:            "user-1",
		NotificationID:    "2",
		TranslatedMessage: "fresh",
	})
	require.NoError(t, err)

	records := list.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "2", records[0].ID)
	assert.False(t, records[0].IsRead)
}

func TestList_ApplyEvent_AllDeletedIdempotent(t *testing.T) {
	list := seededList(t, unusedClient(t), record("1"), record("2"))

	event := types.NotificationEvent{
		Type:   types.EventTypeAllNotificationsDeleted,
		UserID: "user-1",
	}
	require.NoError(t, list.ApplyEvent(context.Background(), event))
	assert.Equal(t, 0, list.Len())

	require.NoError(t, list.ApplyEvent(context.Background(), event))
	assert.Equal(t, 0, list.Len())
}

func TestList_ApplyEvent_ResetClearsUnread(t *testing.T) {
	list := seededList(t, unusedClient(t), record("1"), record("2"))

	err := list.ApplyEvent(context.Background(), types.NotificationEvent{
		Type:   types.EventTypeNotificationsReset,
		UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, list.UnreadCount())
	assert.Equal(t, 2, list.Len())
}

func TestList_ApplyEvent_UnknownTypeIgnored(t *testing.T) {
	list := seededList(t, unusedClient(t), record("1"))

	err := list.ApplyEvent(context.Background(), types.NotificationEvent{
		Type:   "SOMETHING_NEW",
		UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Len())
}

func TestList_ApplyEvent_PartialNewTriggersRefetch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []types.Notification{record("7")},
		})
	}))
	defer srv.Close()

	list := NewList(NewClient(srv.URL, staticLang("en")), "user-1", 2)

	err := list.ApplyEvent(context.Background(), types.NotificationEvent{
		Type:   types.EventTypeNewNotification,
		UserID: "user-1",
		// no notification_id or message: not enough to synthesize locally
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	records := list.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "7", records[0].ID)
}

func TestList_FetchPage_ReplaceThenAppend(t *testing.T) {
	pages := map[string][]types.Notification{
		"1": {record("1"), record("2")},
		"2": {record("2"), record("3")}, // id 2 repeats across page boundary
		"3": {},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user-1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "en", r.URL.Query().Get("language_code"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": pages[r.URL.Query().Get("page")],
		})
	}))
	defer srv.Close()

	list := NewList(NewClient(srv.URL, staticLang("en")), "user-1", 2)

	hasMore, err := list.FetchPage(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, hasMore)
	assert.Equal(t, 2, list.Len())

	hasMore, err = list.FetchPage(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, hasMore)
	assert.Equal(t, 3, list.Len()) // duplicate id skipped

	hasMore, err = list.FetchPage(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Equal(t, 3, list.Len()) // empty page appends nothing, keeps prior entries

	// page 1 replaces wholesale
	_, err = list.FetchPage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())
}

func TestList_MarkRead_OptimisticSurvivesStalePageOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			// Server page still shows the notification unread, as when a
			// page fetch was already in flight when markRead fired.
			stale := record("1")
			stale.IsRead = false
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []types.Notification{stale},
			})
		}
	}))
	defer srv.Close()

	list := seededList(t, NewClient(srv.URL, staticLang("en")), record("1"))

	require.NoError(t, list.MarkRead(context.Background(), "1"))

	_, err := list.FetchPage(context.Background(), 1)
	require.NoError(t, err)

	n, ok := list.Get("1")
	require.True(t, ok)
	assert.True(t, n.IsRead, "optimistic read flip must survive a stale page-1 refresh")
}

func TestList_MarkRead_PendingClearedOnceServerCatchesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			caughtUp := record("1")
			caughtUp.IsRead = true
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []types.Notification{caughtUp},
			})
		}
	}))
	defer srv.Close()

	list := seededList(t, NewClient(srv.URL, staticLang("en")), record("1"))

	require.NoError(t, list.MarkRead(context.Background(), "1"))
	_, err := list.FetchPage(context.Background(), 1)
	require.NoError(t, err)

	list.mu.Lock()
	_, pending := list.pendingReads["1"]
	list.mu.Unlock()
	assert.False(t, pending)
}

func TestList_MarkRead_NoRollbackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	list := seededList(t, NewClient(srv.URL, staticLang("en")), record("1"))

	err := list.MarkRead(context.Background(), "1")
	require.Error(t, err)

	n, _ := list.Get("1")
	assert.True(t, n.IsRead, "optimistic state is kept on failure")
}

func TestList_Delete_NoRollbackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	list := seededList(t, NewClient(srv.URL, staticLang("en")), record("1"), record("2"))

	err := list.Delete(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, 1, list.Len())
}

func TestList_Delete_MissingSkipsAPICall(t *testing.T) {
	list := seededList(t, unusedClient(t), record("1"))

	require.NoError(t, list.Delete(context.Background(), "missing"))
	assert.Equal(t, 1, list.Len())
}
