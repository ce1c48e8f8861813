package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"vacuum-rental-backend/internal/model"
	"vacuum-rental-backend/internal/realtime"
	"vacuum-rental-backend/internal/session"
	"vacuum-rental-backend/internal/store"
)

// SessionControl is the slice of the session manager the confirmation
// handler drives.
type SessionControl interface {
	ActivateSession(ctx context.Context, sessionID string) error
	StopSession(ctx context.Context, sessionID string, reason session.StopReason) (*model.Session, error)
}

// Notifier fans payment events out to connected clients.
type Notifier interface {
	Publish(userID string, ev realtime.Event)
}

// ConfirmationHandler consumes inbound payment webhooks. Processing is
// idempotent by external payment identifier: the same delivery N times
// produces one balance credit, one session activation and one event.
type ConfirmationHandler struct {
	store    store.Store
	gateway  *Gateway
	sessions SessionControl
	notifier Notifier
}

// NewConfirmationHandler wires the handler to its collaborators.
func NewConfirmationHandler(s store.Store, gateway *Gateway, sessions SessionControl, notifier Notifier) *ConfirmationHandler {
	return &ConfirmationHandler{
		store:    s,
		gateway:  gateway,
		sessions: sessions,
		notifier: notifier,
	}
}

// Process handles one webhook delivery for the given provider payment id.
// Errors are for the caller's log only; the webhook endpoint acknowledges
// the delivery regardless, because no synchronous caller waits on the
// business outcome.
func (h *ConfirmationHandler) Process(ctx context.Context, paymentID string) error {
	txn, err := h.store.TransactionByExternalID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("failed to look up payment %s: %w", paymentID, err)
	}
	if txn == nil {
		// Not ours. Ask the provider before declaring it untraceable, in
		// case our record lags a created event.
		if _, err := h.gateway.LookupStatus(ctx, paymentID); err != nil {
			return fmt.Errorf("payment %s: %w", paymentID, err)
		}
		return fmt.Errorf("%w: provider knows payment %s but no transaction references it", ErrUnknownPayment, paymentID)
	}

	// Duplicate delivery of a settled payment: acknowledge, mutate nothing.
	if txn.Status.Terminal() {
		log.Printf("payment %s already %s, ignoring duplicate delivery", paymentID, txn.Status)
		return nil
	}

	status, err := h.gateway.ResolveStatus(ctx, txn)
	if err != nil {
		return fmt.Errorf("failed to resolve payment %s: %w", paymentID, err)
	}

	switch status {
	case model.TransactionApproved:
		return h.approve(ctx, txn)
	case model.TransactionRejected, model.TransactionCancelled:
		return h.settle(ctx, txn, status)
	case model.TransactionPending:
		log.Printf("payment %s still pending at provider, awaiting a later callback", paymentID)
		return nil
	}
	return fmt.Errorf("unexpected provider status %q for payment %s", status, paymentID)
}

// approve marks the transaction approved and credits the user balance in one
// atomic unit, then activates the linked session and emits the confirmation
// event. The guarded status flip is what makes concurrent duplicate
// deliveries credit at most once.
func (h *ConfirmationHandler) approve(ctx context.Context, txn *model.Transaction) error {
	var (
		won        bool
		newBalance int64
	)
	err := h.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Transaction{}).
			Where("id = ? AND status = ?", txn.ID, model.TransactionPending).
			Update("status", model.TransactionApproved)
		if res.Error != nil {
			return fmt.Errorf("failed to approve transaction: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// A concurrent delivery got there first.
			return nil
		}
		won = true

		if err := tx.Model(&model.User{}).
			Where("id = ?", txn.UserID).
			Update("balance_cents", gorm.Expr("balance_cents + ?", txn.AmountCents)).Error; err != nil {
			return fmt.Errorf("failed to credit balance: %w", err)
		}
		var user model.User
		if err := tx.First(&user, "id = ?", txn.UserID).Error; err != nil {
			return fmt.Errorf("failed to read balance back: %w", err)
		}
		newBalance = user.BalanceCents
		return nil
	})
	if err != nil {
		return err
	}
	if !won {
		log.Printf("payment %s approved by a concurrent delivery, nothing to do", txn.ExternalPaymentID)
		return nil
	}

	if txn.SessionID != nil {
		if err := h.sessions.ActivateSession(ctx, *txn.SessionID); err != nil {
			if errors.Is(err, session.ErrSessionConflict) {
				log.Printf("payment %s: session %s already transitioned: %v", txn.ExternalPaymentID, *txn.SessionID, err)
			} else {
				log.Printf("payment %s: session activation failed: %v", txn.ExternalPaymentID, err)
			}
		}
	}

	h.notifier.Publish(txn.UserID, realtime.Event{
		Type: realtime.EventPaymentConfirmed,
		Payload: realtime.PaymentConfirmedPayload{
			TransactionID: txn.ID,
			PaymentID:     txn.ExternalPaymentID,
			AmountCents:   txn.AmountCents,
			NewBalance:    newBalance,
			Method:        string(txn.Method),
			Timestamp:     time.Now().UTC(),
		},
	})

	log.Printf("payment %s approved, credited %d cents to user %s", txn.ExternalPaymentID, txn.AmountCents, txn.UserID)
	return nil
}

// settle marks the transaction rejected or cancelled, cancels the linked
// pending session and emits the failure event.
func (h *ConfirmationHandler) settle(ctx context.Context, txn *model.Transaction, status model.TransactionStatus) error {
	res := h.store.DB().WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, model.TransactionPending).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to settle transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("payment %s settled by a concurrent delivery, nothing to do", txn.ExternalPaymentID)
		return nil
	}

	if txn.SessionID != nil {
		if _, err := h.sessions.StopSession(ctx, *txn.SessionID, session.ReasonCancelled); err != nil {
			log.Printf("payment %s: session cancellation failed: %v", txn.ExternalPaymentID, err)
		}
	}

	h.notifier.Publish(txn.UserID, realtime.Event{
		Type: realtime.EventPaymentFailed,
		Payload: realtime.PaymentFailedPayload{
			PaymentID: txn.ExternalPaymentID,
			Status:    string(status),
			Timestamp: time.Now().UTC(),
		},
	})

	log.Printf("payment %s %s, no charge applied", txn.ExternalPaymentID, status)
	return nil
}
