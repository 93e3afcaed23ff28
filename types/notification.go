package types

import (
	"encoding/json"
	"strings"
	"time"
)

// NotificationType categorizes a notification for display and routing.
type NotificationType string

const (
	NotificationTypeOrder        NotificationType = "order"
	NotificationTypeDelivery     NotificationType = "delivery"
	NotificationTypeConfirmation NotificationType = "confirmation"
	NotificationTypeSystem       NotificationType = "system"
)

// Notification is the client-side representation of one notification shown
// to the user. All notification data is server-authoritative; this shape is
// what the list endpoint returns and what live events synthesize.
type Notification struct {
	ID                string           `json:"notification_id"`
	UserID            string           `json:"user_id"`
	Message           string           `json:"message"`
	TranslatedMessage string           `json:"translated_message"`
	Type              NotificationType `json:"type"`
	OrderID           string           `json:"order_id,omitempty"`
	Metadata          json.RawMessage  `json:"metadata,omitempty"` // flexible server-defined JSON, decoded defensively
	IsRead            bool             `json:"is_read"`
	CreatedAt         time.Time        `json:"created_at"`
}

// ConfirmationKind identifies which backend confirmation endpoint a
// confirmation-type notification routes to.
type ConfirmationKind string

const (
	ConfirmationCODValueUpdate   ConfirmationKind = "cod_value_update"
	ConfirmationMoneyTransaction ConfirmationKind = "money_transaction"
	ConfirmationGeneric          ConfirmationKind = "generic"
)

// ConfirmationMetadata is the decoded form of a confirmation notification's
// metadata blob.
type ConfirmationMetadata struct {
	Kind     ConfirmationKind `json:"type"`
	OrderID  string           `json:"order_id,omitempty"`
	RecordID string           `json:"record_id,omitempty"`
	Amount   string           `json:"amount,omitempty"`
	Note     string           `json:"note,omitempty"`
}

// DecodeConfirmationMetadata decodes the metadata of a confirmation-type
// notification. The server sometimes sends the metadata as a JSON object and
// sometimes as a JSON-encoded string containing the object; both are
// accepted. Unknown or unparsable shapes collapse to ConfirmationGeneric
// rather than failing the caller.
func DecodeConfirmationMetadata(raw json.RawMessage) ConfirmationMetadata {
	generic := ConfirmationMetadata{Kind: ConfirmationGeneric}
	if len(raw) == 0 {
		return generic
	}

	data := []byte(raw)

	// Double-encoded metadata: a JSON string wrapping the real object.
	var inner string
	if err := json.Unmarshal(data, &inner); err == nil {
		data = []byte(inner)
	}

	var meta ConfirmationMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return generic
	}

	switch normalizeConfirmationKind(string(meta.Kind)) {
	case ConfirmationCODValueUpdate:
		meta.Kind = ConfirmationCODValueUpdate
	case ConfirmationMoneyTransaction:
		meta.Kind = ConfirmationMoneyTransaction
	default:
		meta.Kind = ConfirmationGeneric
	}
	return meta
}

func normalizeConfirmationKind(kind string) ConfirmationKind {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "cod_value_update", "codvalueupdate", "cod":
		return ConfirmationCODValueUpdate
	case "money_transaction", "moneytransaction", "money_record":
		return ConfirmationMoneyTransaction
	default:
		return ConfirmationGeneric
	}
}
