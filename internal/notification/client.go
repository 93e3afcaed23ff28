// Package notification implements the notification API client and the
// in-memory notification list it feeds.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/dropwing/dropwing-go/errors"
	"github.com/dropwing/dropwing-go/types"
)

// LanguageProvider supplies the language tag sent with every call.
type LanguageProvider interface {
	Language() string
}

// Client is a client for the notification REST API.
type Client struct {
	baseURL     string
	language    LanguageProvider
	tokenSource func() string
	httpClient  *http.Client
}

// ClientOption is a function that configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTokenSource sets a callback providing the bearer token attached to
// every request.
func WithTokenSource(source func() string) ClientOption {
	return func(c *Client) {
		c.tokenSource = source
	}
}

// NewClient creates a new notification API client.
func NewClient(baseURL string, language LanguageProvider, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		language: language,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// apiError is the error shape the notification API returns on failure.
type apiError struct {
	Error  string            `json:"error,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// do executes one API call, decoding a successful response into out when
// out is non-nil and mapping failures onto the error taxonomy.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body interface{}, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokenSource != nil {
		if token := c.tokenSource(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.RequestError, operation+" failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp apiError
		_ = json.NewDecoder(resp.Body).Decode(&errResp)

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return apperrors.AuthenticationFailed("session rejected by server")
		case resp.StatusCode >= 400 && resp.StatusCode < 500 && len(errResp.Errors) > 0:
			return apperrors.ValidationFailed(operation+" rejected", fieldErrors(errResp.Errors))
		default:
			return apperrors.RequestFailed(operation, resp.StatusCode, errResp.Error)
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.MalformedPayload(operation+" response", err)
		}
	}
	return nil
}

func fieldErrors(errs map[string]string) string {
	parts := make([]string, 0, len(errs))
	for field, msg := range errs {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// List retrieves one page of notifications for a user.
func (c *Client) List(ctx context.Context, userID string, page int) ([]types.Notification, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("page", strconv.Itoa(page))
	query.Set("language_code", c.language.Language())

	var resp struct {
		Data []types.Notification `json:"data"`
	}
	if err := c.do(ctx, "list notifications", http.MethodGet, "/api/notifications", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// MarkRead marks one notification as read.
func (c *Client) MarkRead(ctx context.Context, notificationID, userID string) error {
	body := map[string]string{"user_id": userID}
	return c.do(ctx, "mark notification read", http.MethodPut,
		"/api/notifications/"+url.PathEscape(notificationID), nil, body, nil)
}

// Delete removes one notification.
func (c *Client) Delete(ctx context.Context, notificationID, userID string) error {
	body := map[string]string{"user_id": userID}
	return c.do(ctx, "delete notification", http.MethodDelete,
		"/api/notifications/"+url.PathEscape(notificationID), nil, body, nil)
}

// DeleteAll removes every notification for the user.
func (c *Client) DeleteAll(ctx context.Context, userID string) error {
	body := map[string]string{"user_id": userID}
	return c.do(ctx, "delete all notifications", http.MethodDelete,
		"/api/notifications/all", nil, body, nil)
}

// UnreadCount returns the server-side unread counter.
func (c *Client) UnreadCount(ctx context.Context, userID string) (int, error) {
	query := url.Values{}
	query.Set("user_id", userID)

	var resp struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := c.do(ctx, "fetch unread count", http.MethodGet, "/api/notifications/count", query, nil, &resp); err != nil {
		return 0, err
	}
	return resp.UnreadCount, nil
}

// ResetUnreadCount zeroes the server-side unread counter.
func (c *Client) ResetUnreadCount(ctx context.Context, userID string) error {
	body := map[string]string{"user_id": userID}
	return c.do(ctx, "reset unread count", http.MethodPut, "/api/notifications/count", nil, body, nil)
}

// RegisterPushToken registers the device push token over REST. Used when the
// realtime channel is down.
func (c *Client) RegisterPushToken(ctx context.Context, reg types.PushTokenRegistration) error {
	body := map[string]string{
		"pushToken": reg.Token,
		"platform":  reg.Platform,
		"tokenType": "expo",
	}
	return c.do(ctx, "register push token", http.MethodPost, "/api/notifications/token", nil, body, nil)
}

// ConfirmCODValueUpdate approves or rejects a cash-on-delivery value change
// for an order.
func (c *Client) ConfirmCODValueUpdate(ctx context.Context, orderID, notificationID string, approve bool) error {
	action := "reject"
	if approve {
		action = "approve"
	}
	body := map[string]string{
		"notification_id": notificationID,
		"action":          action,
	}
	return c.do(ctx, "confirm COD value update", http.MethodPost,
		"/api/orders/"+url.PathEscape(orderID)+"/confirm_cod_value_update", nil, body, nil)
}

// ConfirmMoneyTransaction approves or rejects a money record.
func (c *Client) ConfirmMoneyTransaction(ctx context.Context, notificationID string, confirm bool) error {
	body := map[string]interface{}{
		"notificationId": notificationID,
		"confirm":        confirm,
	}
	return c.do(ctx, "confirm money transaction", http.MethodPost,
		"/api/finance/money_records/confirmation", nil, body, nil)
}

// ConfirmGeneric resolves a confirmation notification whose metadata carries
// no recognized routing type.
func (c *Client) ConfirmGeneric(ctx context.Context, notificationID string, approve bool) error {
	action := "reject"
	if approve {
		action = "approve"
	}
	body := map[string]string{"action": action}
	return c.do(ctx, "confirm notification", http.MethodPost,
		"/api/notifications/"+url.PathEscape(notificationID)+"/confirm", nil, body, nil)
}
