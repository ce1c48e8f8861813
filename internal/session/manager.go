package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"vacuum-rental-backend/internal/model"
	"vacuum-rental-backend/internal/realtime"
	"vacuum-rental-backend/internal/store"
)

// StopReason describes why a session is being stopped.
type StopReason string

const (
	ReasonUserRequested StopReason = "user_requested"
	ReasonExpired       StopReason = "expired"
	ReasonCancelled     StopReason = "cancelled"
)

// DeviceControl is the slice of the command dispatcher the manager needs.
type DeviceControl interface {
	RequestActivation(machineID string, duration time.Duration) error
	RequestDeactivation(machineID string) error
}

// Notifier fans session events out to connected clients. Best-effort; never
// on the critical path of a state mutation.
type Notifier interface {
	Publish(userID string, ev realtime.Event)
}

// PaymentCreator opens a payment attempt with the provider and returns the
// external payment identifier the webhook will later reference.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, userID string, amountCents int64, method model.PaymentMethod) (string, error)
}

// Manager is the state machine for rental sessions. Every transition is one
// atomic read-modify-write against the store under the per-machine exclusive
// lock, which is what keeps at most one session active per machine under
// concurrent start attempts.
type Manager struct {
	store    store.Store
	devices  DeviceControl
	notifier Notifier
	payments PaymentCreator

	pricePerMinuteCents int64
}

// NewManager wires the session manager to its collaborators.
func NewManager(s store.Store, devices DeviceControl, notifier Notifier, payments PaymentCreator, pricePerMinuteCents int64) *Manager {
	return &Manager{
		store:               s,
		devices:             devices,
		notifier:            notifier,
		payments:            payments,
		pricePerMinuteCents: pricePerMinuteCents,
	}
}

// StartSession creates a pending session and its linked pending transaction
// in one atomic unit. The device is not touched; activation waits for the
// payment confirmation. The provider call happens before the machine lock is
// taken; no lock is ever held across network I/O.
func (m *Manager) StartSession(ctx context.Context, machineID, userID string, durationMinutes int, method model.PaymentMethod) (*model.Session, *model.Transaction, error) {
	if durationMinutes <= 0 {
		return nil, nil, fmt.Errorf("duration must be positive, got %d", durationMinutes)
	}

	machine, err := m.store.GetMachine(ctx, machineID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load machine %s: %w", machineID, err)
	}
	if machine.Status != model.MachineOnline {
		return nil, nil, fmt.Errorf("%w: machine %s is %s", ErrMachineUnavailable, machine.Code, machine.Status)
	}
	if _, err := m.store.GetUser(ctx, userID); err != nil {
		return nil, nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	amountCents := int64(durationMinutes) * m.pricePerMinuteCents
	externalID, err := m.payments.CreatePayment(ctx, userID, amountCents, method)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initiate payment: %w", err)
	}

	sess := &model.Session{
		ID:              uuid.NewString(),
		MachineID:       machineID,
		UserID:          userID,
		Status:          model.SessionPending,
		DurationMinutes: durationMinutes,
	}
	txn := &model.Transaction{
		ID:                uuid.NewString(),
		UserID:            userID,
		ExternalPaymentID: externalID,
		AmountCents:       amountCents,
		Method:            method,
		Status:            model.TransactionPending,
		SessionID:         &sess.ID,
	}

	err = m.store.WithMachineLock(machineID, func() error {
		return m.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var current model.Machine
			if err := tx.First(&current, "id = ?", machineID).Error; err != nil {
				return err
			}
			// Re-checked under the lock: a concurrent start may have won.
			if current.Status != model.MachineOnline {
				return fmt.Errorf("%w: machine %s is %s", ErrMachineUnavailable, current.Code, current.Status)
			}
			if err := tx.Create(sess).Error; err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			if err := tx.Create(txn).Error; err != nil {
				return fmt.Errorf("failed to create transaction: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	log.Printf("session %s created pending for machine %s (payment %s)", sess.ID, machineID, externalID)
	return sess, txn, nil
}

// ActivateSession transitions a session pending -> active, marks its machine
// in_use and requests device activation. Invoked by the payment confirmation
// handler once the transaction is approved. A session that is not pending is
// rejected with ErrSessionConflict; the caller treats that as a duplicate
// and does not retry.
func (m *Manager) ActivateSession(ctx context.Context, sessionID string) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var activated model.Session
	err = m.store.WithMachineLock(sess.MachineID, func() error {
		return m.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var current model.Session
			if err := tx.First(&current, "id = ?", sessionID).Error; err != nil {
				return err
			}
			if current.Status != model.SessionPending {
				return fmt.Errorf("%w: session %s is %s, not pending", ErrSessionConflict, sessionID, current.Status)
			}
			var machine model.Machine
			if err := tx.First(&machine, "id = ?", current.MachineID).Error; err != nil {
				return err
			}
			// Two pending sessions can exist for one machine; only the
			// first confirmed payment wins the activation.
			if machine.Status != model.MachineOnline {
				return fmt.Errorf("%w: machine %s is %s, cannot activate session %s",
					ErrSessionConflict, machine.Code, machine.Status, sessionID)
			}
			now := time.Now().UTC()
			current.Status = model.SessionActive
			current.StartTime = &now
			if err := tx.Save(&current).Error; err != nil {
				return fmt.Errorf("failed to activate session: %w", err)
			}
			if err := tx.Model(&model.Machine{}).
				Where("id = ?", current.MachineID).
				Update("status", model.MachineInUse).Error; err != nil {
				return fmt.Errorf("failed to mark machine in use: %w", err)
			}
			activated = current
			return nil
		})
	})
	if err != nil {
		return err
	}

	// Command delivery is decoupled from session state; the store is already
	// authoritative, so a publish failure is logged and left to the sweeper.
	duration := time.Duration(activated.DurationMinutes) * time.Minute
	if err := m.devices.RequestActivation(activated.MachineID, duration); err != nil {
		log.Printf("session %s: device activation not delivered: %v", sessionID, err)
	}

	m.notifier.Publish(activated.UserID, realtime.Event{
		Type: realtime.EventSessionStarted,
		Payload: realtime.SessionPayload{
			SessionID: activated.ID,
			MachineID: activated.MachineID,
			Timestamp: *activated.StartTime,
		},
	})

	log.Printf("session %s activated on machine %s for %d minutes", sessionID, activated.MachineID, activated.DurationMinutes)
	return nil
}

// StopSession moves a session to its terminal status, frees the machine and
// requests device deactivation. Idempotent: stopping an already-terminal
// session is a no-op that returns the existing terminal state.
func (m *Manager) StopSession(ctx context.Context, sessionID string, reason StopReason) (*model.Session, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sess.Status.Terminal() {
		return sess, nil
	}

	var (
		stopped     model.Session
		wasActive   bool
		alreadyDone bool
	)
	err = m.store.WithMachineLock(sess.MachineID, func() error {
		return m.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var current model.Session
			if err := tx.First(&current, "id = ?", sessionID).Error; err != nil {
				return err
			}
			if current.Status.Terminal() {
				stopped = current
				alreadyDone = true
				return nil
			}

			target, ok := terminalStatusFor(current.Status, reason)
			if !ok {
				return fmt.Errorf("%w: cannot stop session %s (%s) with reason %s",
					ErrSessionConflict, sessionID, current.Status, reason)
			}

			now := time.Now().UTC()
			wasActive = current.Status == model.SessionActive
			current.Status = target
			current.EndTime = &now
			if err := tx.Save(&current).Error; err != nil {
				return fmt.Errorf("failed to stop session: %w", err)
			}

			if wasActive {
				updates := map[string]any{"status": model.MachineOnline}
				if current.StartTime != nil {
					runtime := now.Sub(*current.StartTime).Hours()
					updates["operating_hours"] = gorm.Expr("operating_hours + ?", runtime)
				}
				if err := tx.Model(&model.Machine{}).
					Where("id = ?", current.MachineID).
					Updates(updates).Error; err != nil {
					return fmt.Errorf("failed to free machine: %w", err)
				}
			}
			stopped = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if alreadyDone {
		return &stopped, nil
	}

	if wasActive {
		if err := m.devices.RequestDeactivation(stopped.MachineID); err != nil {
			log.Printf("session %s: device deactivation not delivered: %v", sessionID, err)
		}
		m.notifier.Publish(stopped.UserID, realtime.Event{
			Type: realtime.EventSessionEnded,
			Payload: realtime.SessionPayload{
				SessionID: stopped.ID,
				MachineID: stopped.MachineID,
				Timestamp: *stopped.EndTime,
			},
		})
	}

	log.Printf("session %s stopped (%s -> %s)", sessionID, reason, stopped.Status)
	return &stopped, nil
}

// terminalStatusFor maps the current status and stop reason to the terminal
// status, or reports that the transition is not allowed.
func terminalStatusFor(current model.SessionStatus, reason StopReason) (model.SessionStatus, bool) {
	switch {
	case current == model.SessionPending && reason == ReasonCancelled:
		return model.SessionCancelled, true
	case current == model.SessionActive && reason == ReasonUserRequested:
		return model.SessionCompleted, true
	case current == model.SessionActive && reason == ReasonExpired:
		return model.SessionExpired, true
	}
	return "", false
}
