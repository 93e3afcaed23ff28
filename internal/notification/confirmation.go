package notification

import (
	"context"
	"sync"

	apperrors "github.com/dropwing/dropwing-go/errors"
	"github.com/dropwing/dropwing-go/logger"
	"github.com/dropwing/dropwing-go/types"
	"go.uber.org/zap"
)

// ConfirmationState is the state of the confirmation dialog flow.
type ConfirmationState string

const (
	ConfirmationHidden  ConfirmationState = "hidden"
	ConfirmationPending ConfirmationState = "pending"
	ConfirmationLoading ConfirmationState = "loading"
	ConfirmationSuccess ConfirmationState = "success"
	ConfirmationError   ConfirmationState = "error"
)

// ConfirmationFlow drives the approve/reject dialog for confirmation-type
// notifications. Transitions: hidden → pending → loading → success|error.
// The terminal states are only left through Dismiss, which returns to
// hidden; after an error the user retries by reopening.
type ConfirmationFlow struct {
	mu     sync.Mutex
	log    *zap.SugaredLogger
	client *Client
	list   *List

	state   ConfirmationState
	target  types.Notification
	meta    types.ConfirmationMetadata
	lastErr error
}

// NewConfirmationFlow creates a flow in the hidden state.
func NewConfirmationFlow(client *Client, list *List) *ConfirmationFlow {
	return &ConfirmationFlow{
		log:    logger.GetLogger().Named("confirmation"),
		client: client,
		list:   list,
		state:  ConfirmationHidden,
	}
}

// State returns the current flow state.
func (f *ConfirmationFlow) State() ConfirmationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err returns the failure that put the flow into the error state.
func (f *ConfirmationFlow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Open presents the confirmation for a notification, decoding its metadata.
// Unknown or malformed metadata degrades to the generic routing rather than
// failing.
func (f *ConfirmationFlow) Open(n types.Notification) error {
	if n.Type != types.NotificationTypeConfirmation {
		return apperrors.ValidationFailed("not a confirmation notification", "ID: "+n.ID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != ConfirmationHidden {
		return apperrors.New(apperrors.ConflictError, "a confirmation is already open", string(f.state))
	}

	f.target = n
	f.meta = types.DecodeConfirmationMetadata(n.Metadata)
	f.state = ConfirmationPending
	f.lastErr = nil

	f.log.Debugw("Confirmation opened",
		"notificationID", n.ID,
		"kind", f.meta.Kind)
	return nil
}

// Respond approves or rejects the open confirmation, routing to the backend
// endpoint selected by the metadata kind. A call while a response is already
// in flight is a no-op, so double taps cannot fire duplicate requests.
func (f *ConfirmationFlow) Respond(ctx context.Context, approve bool) error {
	f.mu.Lock()
	switch f.state {
	case ConfirmationLoading:
		f.mu.Unlock()
		return nil
	case ConfirmationPending:
		// proceed
	default:
		state := f.state
		f.mu.Unlock()
		return apperrors.New(apperrors.ConflictError, "no confirmation awaiting response", string(state))
	}
	f.state = ConfirmationLoading
	target := f.target
	meta := f.meta
	f.mu.Unlock()

	err := f.send(ctx, target, meta, approve)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		// Keep the target so the user can dismiss and reopen to retry.
		f.state = ConfirmationError
		f.lastErr = err
		f.log.Warnw("Confirmation failed",
			"notificationID", target.ID,
			"kind", meta.Kind,
			"error", err)
		return err
	}

	f.state = ConfirmationSuccess
	f.lastErr = nil
	f.list.Discard(target.ID)
	f.log.Infow("Confirmation resolved",
		"notificationID", target.ID,
		"kind", meta.Kind,
		"approved", approve)
	return nil
}

func (f *ConfirmationFlow) send(ctx context.Context, target types.Notification, meta types.ConfirmationMetadata, approve bool) error {
	switch meta.Kind {
	case types.ConfirmationCODValueUpdate:
		orderID := meta.OrderID
		if orderID == "" {
			orderID = target.OrderID
		}
		return f.client.ConfirmCODValueUpdate(ctx, orderID, target.ID, approve)
	case types.ConfirmationMoneyTransaction:
		return f.client.ConfirmMoneyTransaction(ctx, target.ID, approve)
	default:
		return f.client.ConfirmGeneric(ctx, target.ID, approve)
	}
}

// Dismiss closes the dialog from any state and resets to hidden.
func (f *ConfirmationFlow) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = ConfirmationHidden
	f.target = types.Notification{}
	f.meta = types.ConfirmationMetadata{}
	f.lastErr = nil
}
