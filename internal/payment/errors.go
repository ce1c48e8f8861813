package payment

import "errors"

var (
	// ErrUnknownPayment means a webhook referenced a payment that neither
	// the store nor the provider can resolve. Logged and acknowledged with
	// no side effects so the gateway stops redelivering.
	ErrUnknownPayment = errors.New("unknown payment")

	// ErrTransientProvider wraps a provider lookup that failed on network
	// errors or 5xx responses after the bounded retries were exhausted.
	ErrTransientProvider = errors.New("transient provider error")
)
