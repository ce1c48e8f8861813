package realtime

import "time"

// EventType identifies a realtime event delivered to connected clients.
type EventType string

const (
	EventPaymentConfirmed EventType = "payment-confirmed"
	EventPaymentFailed    EventType = "payment-failed"
	EventSessionStarted   EventType = "session-started"
	EventSessionEnded     EventType = "session-ended"
)

// Event is the envelope pushed over the realtime channel. Payload is one of
// the typed payload structs below; each event is self-describing so clients
// can apply them idempotently and out of order.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// PaymentConfirmedPayload carries the settled transaction and the user's new
// balance.
type PaymentConfirmedPayload struct {
	TransactionID string    `json:"transactionId"`
	PaymentID     string    `json:"paymentId"`
	AmountCents   int64     `json:"amount"`
	NewBalance    int64     `json:"newBalance"`
	Method        string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentFailedPayload reports a rejected or cancelled payment.
type PaymentFailedPayload struct {
	PaymentID string    `json:"paymentId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionPayload reports a session lifecycle change.
type SessionPayload struct {
	SessionID string    `json:"sessionId"`
	MachineID string    `json:"machineId"`
	Timestamp time.Time `json:"timestamp"`
}
